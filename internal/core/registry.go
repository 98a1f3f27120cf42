package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/packet"
	"github.com/vovakirdan/bancho-server/internal/store"
)

// SessionRegistry owns every live session. All lookups are consistent
// with the primary id index; mutations are confined to short critical
// sections so handlers never block each other on unrelated sessions.
type SessionRegistry struct {
	log      *zerolog.Logger
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time

	// OnSessionCreated and OnSessionRemoved, when set before the
	// registry is used, are invoked outside the registry lock.
	OnSessionCreated func(*Session)
	OnSessionRemoved func(*Session)

	mu      sync.RWMutex
	byID    map[int64]*Session
	byName  map[string]*Session
	byToken map[string]*Session
}

// NewSessionRegistry builds a registry with the given liveness timeout
// and sweep interval.
func NewSessionRegistry(logger *zerolog.Logger, timeout, interval time.Duration) *SessionRegistry {
	return &SessionRegistry{
		log:      logger,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
		byID:     make(map[int64]*Session),
		byName:   make(map[string]*Session),
		byToken:  make(map[string]*Session),
	}
}

// Create registers a session for the user under a fresh opaque token.
// Last login wins: an existing session for the same user id is removed
// inside the same critical section and returned so the caller can
// force-disconnect it.
func (r *SessionRegistry) Create(user *store.User) (created, evicted *Session) {
	now := r.now()
	s := newSession(user, uuid.NewString(), now)

	r.mu.Lock()
	if old, ok := r.byID[user.ID]; ok {
		r.removeLocked(old)
		evicted = old
	}
	r.byID[s.UserID] = s
	r.byName[strings.ToLower(s.Username)] = s
	r.byToken[s.Token] = s
	r.mu.Unlock()

	if evicted != nil && r.OnSessionRemoved != nil {
		r.OnSessionRemoved(evicted)
	}
	if r.OnSessionCreated != nil {
		r.OnSessionCreated(s)
	}
	return s, evicted
}

// CreateBot registers a transport-less session for the in-process bot.
func (r *SessionRegistry) CreateBot(user *store.User) *Session {
	s, _ := r.Create(user)
	s.bot = true
	return s
}

// GetByID looks a session up by user id.
func (r *SessionRegistry) GetByID(userID int64) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[userID]
}

// GetByUsername looks a session up by username, case-insensitively.
func (r *SessionRegistry) GetByUsername(username string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[strings.ToLower(username)]
}

// GetByToken looks a session up by its opaque token.
func (r *SessionRegistry) GetByToken(token string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byToken[token]
}

// Remove unregisters a session from every index. Idempotent: a session
// already replaced by a newer login for the same user is left alone.
func (r *SessionRegistry) Remove(s *Session) {
	r.mu.Lock()
	removed := false
	if current, ok := r.byID[s.UserID]; ok && current == s {
		r.removeLocked(s)
		removed = true
	}
	r.mu.Unlock()

	if removed && r.OnSessionRemoved != nil {
		r.OnSessionRemoved(s)
	}
}

func (r *SessionRegistry) removeLocked(s *Session) {
	delete(r.byID, s.UserID)
	delete(r.byName, strings.ToLower(s.Username))
	delete(r.byToken, s.Token)
}

// Snapshot returns the current sessions. The slice is a copy; sessions
// registered afterwards are not included.
func (r *SessionRegistry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Broadcast enqueues a frame on every session except the excluded
// user id (0 excludes nobody).
func (r *SessionRegistry) Broadcast(frame []byte, excludeID int64) {
	for _, s := range r.Snapshot() {
		if s.UserID == excludeID {
			continue
		}
		s.Enqueue(frame)
	}
}

// Run sweeps for timed-out sessions until the context is cancelled.
func (r *SessionRegistry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep force-removes every session whose last ping is older than the
// timeout and issues a quit broadcast for each.
func (r *SessionRegistry) sweep() {
	now := r.now()
	deadline := now.Add(-r.timeout)
	for _, s := range r.Snapshot() {
		if s.bot || s.LastPing().After(deadline) {
			continue
		}
		r.log.Info().
			Int64("user_id", s.UserID).
			Str("username", s.Username).
			Time("last_ping", s.LastPing()).
			Msg("evicting timed-out session")
		r.Remove(s)
		s.Close()
		r.Broadcast(packet.UserLogoutFrame(int32(s.UserID)), s.UserID)
	}
}
