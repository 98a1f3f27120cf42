package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/bancho-server/internal/packet"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	wsAddr := flag.String("ws", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "username")
	pass := flag.String("pass", "smoketest", "password")
	channel := flag.String("channel", "#osu", "channel to chat in")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := obtainToken(ctx, *base, *user, *pass)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, *wsAddr+"?token="+token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(frame []byte) error {
		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if err := send(packet.Frame(packet.ClientPing, nil)); err != nil {
		return err
	}
	joinPayload := packet.NewWriter().String(*channel).Bytes()
	if err := send(packet.Frame(packet.ClientChannelJoin, joinPayload)); err != nil {
		return err
	}
	msgPayload := packet.NewWriter().
		String(*user).
		String(*text).
		String(*channel).
		Int32(0).
		Bytes()
	if err := send(packet.Frame(packet.ClientSendPublicMessage, msgPayload)); err != nil {
		return err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		packets, err := packet.Split(data)
		if err != nil {
			return fmt.Errorf("split: %w", err)
		}
		for _, p := range packets {
			fmt.Printf("Received: type=%s len=%d\n", p.Type, len(p.Payload))
			if p.Type == packet.SrvChannelJoinSuccess {
				return nil
			}
		}
	}
}

// obtainToken registers the user (ignoring an existing account) and
// logs in.
func obtainToken(ctx context.Context, base, user, pass string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": user, "password": pass})

	_, _ = postJSON(ctx, base+"/api/v1/register", body)

	resp, err := postJSON(ctx, base+"/api/v1/login", body)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	var auth struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp, &auth); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if auth.Token == "" {
		return "", fmt.Errorf("login returned no token: %s", resp)
	}
	return auth.Token, nil
}

func postJSON(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return buf.Bytes(), fmt.Errorf("%s: %s", resp.Status, buf.String())
	}
	return buf.Bytes(), nil
}
