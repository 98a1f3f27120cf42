package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/packet"
	"github.com/vovakirdan/bancho-server/internal/store"
)

// Limiter is a sliding-window permit counter keyed by an identity.
// Each identity may consume capacity permits per window.
type Limiter struct {
	capacity int
	window   time.Duration
	now      func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewLimiter builds a limiter allowing capacity permits per window.
func NewLimiter(capacity int, window time.Duration) *Limiter {
	return &Limiter{
		capacity: capacity,
		window:   window,
		now:      time.Now,
		hits:     make(map[string][]time.Time),
	}
}

// CanSend consumes one permit when available and reports whether the
// identity is still within its budget.
func (l *Limiter) CanSend(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[identity][:0]
	for _, ts := range l.hits[identity] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.capacity {
		l.hits[identity] = kept
		return false
	}
	l.hits[identity] = append(kept, now)
	return true
}

// Forget drops an identity's window, releasing its memory.
func (l *Limiter) Forget(identity string) {
	l.mu.Lock()
	delete(l.hits, identity)
	l.mu.Unlock()
}

// ChatFilter wraps a Limiter with the chat escalation policy: a
// non-privileged sender exhausting its permits is silenced, the change
// is persisted, and the silence is broadcast so other clients can
// suppress the user's messages.
type ChatFilter struct {
	log      *zerolog.Logger
	limiter  *Limiter
	silence  time.Duration
	users    store.UserStore
	sessions *SessionRegistry
	now      func() time.Time
}

// NewChatFilter builds a filter that silences offenders for the given
// duration.
func NewChatFilter(logger *zerolog.Logger, limiter *Limiter, silence time.Duration, users store.UserStore, sessions *SessionRegistry) *ChatFilter {
	return &ChatFilter{
		log:      logger,
		limiter:  limiter,
		silence:  silence,
		users:    users,
		sessions: sessions,
		now:      time.Now,
	}
}

// Allow reports whether the sender's message may be processed. A
// blocked message must be dropped entirely. Staff are never limited.
func (f *ChatFilter) Allow(ctx context.Context, s *Session) bool {
	if s.Privileges.IsStaff() || s.Privileges.Has(store.PrivilegeBot) {
		return true
	}
	if f.limiter.CanSend(s.Token) {
		return true
	}

	until := f.now().Add(f.silence)
	s.Silence(until)

	// Persistence lags behind the live state on failure; the in-memory
	// silence is the source of truth for this session.
	if err := f.users.SetSilencedUntil(ctx, s.UserID, until); err != nil {
		f.log.Error().Err(err).Int64("user_id", s.UserID).Msg("persist silence")
	}

	seconds := int32(f.silence / time.Second)
	s.Enqueue(packet.SilenceEndFrame(seconds))
	s.Enqueue(packet.Notification(fmt.Sprintf(
		"You have been silenced for %d seconds for spamming.", seconds)))
	f.sessions.Broadcast(packet.UserSilencedFrame(int32(s.UserID)), s.UserID)

	f.log.Info().
		Int64("user_id", s.UserID).
		Str("username", s.Username).
		Time("until", until).
		Msg("user silenced for chat flooding")
	return false
}
