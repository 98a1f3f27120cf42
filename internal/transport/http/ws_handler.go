package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/auth"
	"github.com/vovakirdan/bancho-server/internal/core"
	"github.com/vovakirdan/bancho-server/internal/packet"
)

// flushInterval paces the outbound queue drain. Frames enqueued within
// one interval leave in a single websocket message.
const flushInterval = 50 * time.Millisecond

// WSHandler upgrades HTTP connections, authenticates them and bridges
// the binary packet stream to the protocol core.
type WSHandler struct {
	srv         *core.Server
	authService *auth.Service
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(srv *core.Server, authService *auth.Service, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{srv: srv, authService: authService, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth failed")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := h.srv.Login(ctx, claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("login failed")
		conn.Close(websocket.StatusPolicyViolation, "login failed")
		return
	}
	defer func() {
		// Skip the logout when a newer login already took this user
		// over; the takeover broadcast its own quit.
		if h.srv.Sessions.GetByToken(session.Token) == session {
			h.srv.Logout(session)
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			reason = err.Error()
			h.log.Warn().Err(err).Int64("user_id", session.UserID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// authenticate resolves the JWT from the Authorization header or the
// token query parameter.
func (h *WSHandler) authenticate(r *stdhttp.Request) (*auth.Claims, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return h.authService.ValidateToken(token)
}

// readLoop decodes inbound messages into frames and hands each one to
// the dispatcher. A message may batch several frames.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if msgType != websocket.MessageBinary {
			continue
		}

		packets, err := packet.Split(data)
		if err != nil {
			h.log.Warn().Err(err).Int64("user_id", session.UserID).Msg("malformed packet stream")
			return err
		}
		session.Touch(time.Now())
		for _, p := range packets {
			h.srv.Dispatch(ctx, session, p)
		}
	}
}

// writeLoop flushes the session's outbound queue to the socket until
// the connection or the session ends.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() error {
		out := session.DrainOutbound()
		if len(out) == 0 {
			return nil
		}
		return conn.Write(ctx, websocket.MessageBinary, out)
	}

	for {
		select {
		case <-ticker.C:
			if err := flush(); err != nil {
				h.log.Error().Err(err).Int64("user_id", session.UserID).Msg("write ws frames")
				return err
			}
		case <-session.Closed():
			// Deliver the goodbye frames before the socket goes away.
			_ = flush()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
