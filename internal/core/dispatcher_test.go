package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/metrics"
	"github.com/vovakirdan/bancho-server/internal/packet"
	"github.com/vovakirdan/bancho-server/internal/store"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *metrics.Collector) {
	t.Helper()
	logger := zerolog.Nop()
	counters := metrics.NewCollector()
	return NewDispatcher(&logger, counters), counters
}

func testSession() *Session {
	return newSession(&store.User{ID: 1, Username: "alice"}, "token", time.Now())
}

func TestDispatchUnknownPacketIsDropped(t *testing.T) {
	d, counters := newTestDispatcher(t)
	d.Dispatch(context.Background(), testSession(), packet.Packet{Type: packet.ClientPing})
	if got := counters.Get("packet_unknown"); got != 1 {
		t.Fatalf("expected 1 unknown packet, got %d", got)
	}
}

func TestDispatchInvokesHandlerAndCounts(t *testing.T) {
	d, counters := newTestDispatcher(t)

	invoked := 0
	err := d.Register(packet.ClientPing, func(_ context.Context, _ *Session, _ packet.Packet) error {
		invoked++
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	d.Dispatch(context.Background(), testSession(), packet.Packet{Type: packet.ClientPing})
	if invoked != 1 {
		t.Fatalf("handler invoked %d times", invoked)
	}
	if got := counters.Get("packet_ping"); got != 1 {
		t.Fatalf("expected packet_ping counter 1, got %d", got)
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	d, _ := newTestDispatcher(t)
	noop := func(_ context.Context, _ *Session, _ packet.Packet) error { return nil }

	if err := d.Register(packet.ClientPing, noop); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := d.RegisterSuppressed(packet.ClientPing, noop); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestDispatchRecoversPanicAndSwallowsError(t *testing.T) {
	d, _ := newTestDispatcher(t)

	if err := d.Register(packet.ClientPing, func(_ context.Context, _ *Session, _ packet.Packet) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Register(packet.ClientLogout, func(_ context.Context, _ *Session, _ packet.Packet) error {
		return errors.New("handler error")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	s := testSession()
	d.Dispatch(context.Background(), s, packet.Packet{Type: packet.ClientPing})
	d.Dispatch(context.Background(), s, packet.Packet{Type: packet.ClientLogout})
	// Reaching this point means neither the panic nor the error escaped.
}
