package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/metrics"
	"github.com/vovakirdan/bancho-server/internal/packet"
)

// HandlerFunc processes one decoded packet on behalf of a session.
// Handlers are stateless and reused across calls; errors are caught at
// the dispatch boundary and logged, never propagated.
type HandlerFunc func(ctx context.Context, s *Session, p packet.Packet) error

type handlerEntry struct {
	fn          HandlerFunc
	suppressLog bool
}

// Dispatcher maps inbound packet types onto handlers. The table is
// assembled eagerly at startup; registering two handlers for one type
// is a configuration error.
type Dispatcher struct {
	log      *zerolog.Logger
	counters *metrics.Collector
	handlers map[packet.Type]handlerEntry
}

// NewDispatcher builds an empty dispatcher.
func NewDispatcher(logger *zerolog.Logger, counters *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		log:      logger,
		counters: counters,
		handlers: make(map[packet.Type]handlerEntry),
	}
}

// Register associates a packet type with its handler.
func (d *Dispatcher) Register(t packet.Type, fn HandlerFunc) error {
	return d.register(t, fn, false)
}

// RegisterSuppressed registers a handler whose dispatches are not
// logged, for high-frequency packets such as pings.
func (d *Dispatcher) RegisterSuppressed(t packet.Type, fn HandlerFunc) error {
	return d.register(t, fn, true)
}

func (d *Dispatcher) register(t packet.Type, fn HandlerFunc, suppress bool) error {
	if _, exists := d.handlers[t]; exists {
		return fmt.Errorf("duplicate handler registration for %s", t)
	}
	d.handlers[t] = handlerEntry{fn: fn, suppressLog: suppress}
	return nil
}

// Dispatch resolves and invokes the handler for the packet. Unknown
// types are logged and dropped; handler errors and panics stop at this
// boundary.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, p packet.Packet) {
	entry, ok := d.handlers[p.Type]
	if !ok {
		d.counters.Inc("packet_unknown")
		d.log.Error().
			Stringer("packet", p.Type).
			Int64("user_id", s.UserID).
			Msg("no handler registered for packet")
		return
	}

	if !entry.suppressLog {
		d.log.Debug().
			Stringer("packet", p.Type).
			Int64("user_id", s.UserID).
			Str("username", s.Username).
			Msg("dispatching packet")
	}
	d.counters.Inc("packet_" + p.Type.String())

	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error().
				Stringer("packet", p.Type).
				Int64("user_id", s.UserID).
				Interface("panic", rec).
				Msg("handler panicked")
		}
	}()

	if err := entry.fn(ctx, s, p); err != nil {
		d.log.Warn().
			Err(err).
			Stringer("packet", p.Type).
			Int64("user_id", s.UserID).
			Str("username", s.Username).
			Msg("handler failed")
	}
}
