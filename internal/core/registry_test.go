package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/store"
)

func newTestRegistry(t *testing.T) *SessionRegistry {
	t.Helper()
	logger := zerolog.Nop()
	return NewSessionRegistry(&logger, time.Minute, time.Second)
}

func TestRegistryCreateAndLookup(t *testing.T) {
	r := newTestRegistry(t)
	s, evicted := r.Create(&store.User{ID: 1, Username: "Alice"})
	if evicted != nil {
		t.Fatalf("unexpected eviction on first login")
	}

	if got := r.GetByID(1); got != s {
		t.Fatalf("GetByID returned wrong session")
	}
	if got := r.GetByUsername("alice"); got != s {
		t.Fatalf("username lookup should be case-insensitive")
	}
	if got := r.GetByToken(s.Token); got != s {
		t.Fatalf("GetByToken returned wrong session")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Count())
	}
}

func TestRegistryLastLoginWins(t *testing.T) {
	r := newTestRegistry(t)
	var removed []*Session
	r.OnSessionRemoved = func(s *Session) { removed = append(removed, s) }

	first, _ := r.Create(&store.User{ID: 1, Username: "Alice"})
	second, evicted := r.Create(&store.User{ID: 1, Username: "Alice"})

	if evicted != first {
		t.Fatalf("expected first session to be evicted")
	}
	if r.GetByID(1) != second {
		t.Fatalf("registry should hold the newer session")
	}
	if r.GetByToken(first.Token) != nil {
		t.Fatalf("evicted token still resolves")
	}
	if len(removed) != 1 || removed[0] != first {
		t.Fatalf("removal hook not fired for evicted session")
	}
}

func TestRegistryRemoveIgnoresStaleSession(t *testing.T) {
	r := newTestRegistry(t)
	first, _ := r.Create(&store.User{ID: 1, Username: "Alice"})
	second, _ := r.Create(&store.User{ID: 1, Username: "Alice"})

	// A disconnect of the replaced session must not drop the new one.
	r.Remove(first)
	if r.GetByID(1) != second {
		t.Fatalf("stale remove dropped the newer session")
	}

	r.Remove(second)
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d sessions", r.Count())
	}
}

func TestSweepEvictsTimedOutSessions(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Now()
	r.now = func() time.Time { return base }

	stale, _ := r.Create(&store.User{ID: 1, Username: "stale"})
	fresh, _ := r.Create(&store.User{ID: 2, Username: "fresh"})
	bot := r.CreateBot(&store.User{ID: 3, Username: "bot", Privileges: store.PrivilegeBot})

	r.now = func() time.Time { return base.Add(2 * time.Minute) }
	fresh.Touch(base.Add(90 * time.Second))
	r.sweep()

	if r.GetByID(stale.UserID) != nil {
		t.Fatalf("stale session survived the sweep")
	}
	select {
	case <-stale.Closed():
	default:
		t.Fatalf("swept session not closed")
	}
	if r.GetByID(fresh.UserID) == nil {
		t.Fatalf("fresh session swept")
	}
	if r.GetByID(bot.UserID) == nil {
		t.Fatalf("bot session swept")
	}
}
