package core

import (
	"sync"
	"time"

	"github.com/vovakirdan/bancho-server/internal/packet"
	"github.com/vovakirdan/bancho-server/internal/store"
)

// Client action ids carried in status updates.
const (
	ActionIdle         uint8 = 0
	ActionAFK          uint8 = 1
	ActionPlaying      uint8 = 2
	ActionEditing      uint8 = 3
	ActionModding      uint8 = 4
	ActionMultiplay    uint8 = 5
	ActionWatching     uint8 = 6
	ActionTesting      uint8 = 8
	ActionSubmitting   uint8 = 9
	ActionLobby        uint8 = 11
	ActionMultiplaying uint8 = 12
)

// Status is a session's current activity snapshot.
type Status struct {
	Action          uint8
	Text            string
	BeatmapChecksum string
	Mods            uint32
	Mode            uint8
	BeatmapID       int32
}

// Session is the live per-connection state of one authenticated client.
// Identity fields are immutable for the session's life; mutable
// attributes are guarded by the session's own mutex and changed only
// through its methods.
type Session struct {
	UserID     int64
	Username   string
	Token      string
	Country    string
	Privileges store.Privileges
	Timezone   int
	LoginTime  time.Time

	bot bool

	closeOnce sync.Once
	closed    chan struct{}

	mu               sync.Mutex
	status           Status
	awayMessage      string
	blockNonFriendPM bool
	lastPing         time.Time
	silencedUntil    time.Time
	stats            packet.Stats
	queue            []byte
	spectators       map[int64]struct{}
	spectatingID     int64
	matchID          int32
}

func newSession(user *store.User, token string, now time.Time) *Session {
	s := &Session{
		UserID:     user.ID,
		Username:   user.Username,
		Token:      token,
		Country:    user.Country,
		Privileges: user.Privileges,
		Timezone:   user.Timezone,
		LoginTime:  now,
		closed:     make(chan struct{}),
		lastPing:   now,
		spectators: make(map[int64]struct{}),
	}
	s.silencedUntil = user.SilencedUntil
	s.stats = packet.Stats{
		UserID:      int32(user.ID),
		RankedScore: user.RankedScore,
		TotalScore:  user.TotalScore,
		Accuracy:    float32(user.Accuracy / 100),
		PlayCount:   int32(user.PlayCount),
		Rank:        int32(user.Rank),
		Performance: int16(user.Performance),
	}
	return s
}

// Closed is closed when the session is force-disconnected; the
// transport write loop selects on it.
func (s *Session) Closed() <-chan struct{} { return s.closed }

// Close marks the session disconnected. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Enqueue appends an encoded frame to the outbound queue. Frames for
// the in-process bot are discarded since nothing drains them.
func (s *Session) Enqueue(frame []byte) {
	if s.bot || len(frame) == 0 {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, frame...)
	s.mu.Unlock()
}

// DrainOutbound atomically returns and clears the queued bytes.
func (s *Session) DrainOutbound() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	out := s.queue
	s.queue = nil
	return out
}

// Touch refreshes the last-ping timestamp.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastPing = now
	s.mu.Unlock()
}

// LastPing returns the last-ping timestamp.
func (s *Session) LastPing() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPing
}

// SetStatus replaces the activity snapshot.
func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Status returns the current activity snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetAwayMessage sets or clears the away message.
func (s *Session) SetAwayMessage(msg string) {
	s.mu.Lock()
	s.awayMessage = msg
	s.mu.Unlock()
}

// AwayMessage returns the away message, empty when unset.
func (s *Session) AwayMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awayMessage
}

// SetBlockNonFriendPM toggles the ignore-non-friend-PM flag.
func (s *Session) SetBlockNonFriendPM(block bool) {
	s.mu.Lock()
	s.blockNonFriendPM = block
	s.mu.Unlock()
}

// BlocksNonFriendPM reports the ignore-non-friend-PM flag.
func (s *Session) BlocksNonFriendPM() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockNonFriendPM
}

// Silence sets the silenced-until timestamp.
func (s *Session) Silence(until time.Time) {
	s.mu.Lock()
	s.silencedUntil = until
	s.mu.Unlock()
}

// SilencedUntil returns the silence expiry (zero when never silenced).
func (s *Session) SilencedUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silencedUntil
}

// IsSilenced reports whether the session is muted at the given time.
func (s *Session) IsSilenced(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silencedUntil.After(now)
}

// AddSpectator records a watcher by user id.
func (s *Session) AddSpectator(userID int64) {
	s.mu.Lock()
	s.spectators[userID] = struct{}{}
	s.mu.Unlock()
}

// RemoveSpectator drops a watcher; reports whether it was present.
func (s *Session) RemoveSpectator(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spectators[userID]; !ok {
		return false
	}
	delete(s.spectators, userID)
	return true
}

// Spectators returns the watcher user ids.
func (s *Session) Spectators() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.spectators))
	for id := range s.spectators {
		out = append(out, id)
	}
	return out
}

// HasSpectator reports whether the given user is watching this session.
func (s *Session) HasSpectator(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.spectators[userID]
	return ok
}

// SetSpectating records which session this one is watching (0 = none).
func (s *Session) SetSpectating(userID int64) {
	s.mu.Lock()
	s.spectatingID = userID
	s.mu.Unlock()
}

// Spectating returns the watched user id (0 = none).
func (s *Session) Spectating() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spectatingID
}

// SetMatchID records the current match membership (0 = none).
func (s *Session) SetMatchID(id int32) {
	s.mu.Lock()
	s.matchID = id
	s.mu.Unlock()
}

// MatchID returns the current match membership (0 = none).
func (s *Session) MatchID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

// ClientPrivileges maps the stored privilege bits onto the byte the
// protocol exposes to clients.
func (s *Session) ClientPrivileges() uint8 {
	var p uint8
	if s.Privileges.Has(store.PrivilegeNormal) {
		p |= 1
	}
	if s.Privileges.IsStaff() {
		p |= 2
	}
	if s.Privileges.Has(store.PrivilegeSupporter) {
		p |= 4
	}
	return p
}

// Presence builds the publicly broadcastable identity snapshot.
func (s *Session) Presence() packet.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return packet.Presence{
		UserID:      int32(s.UserID),
		Username:    s.Username,
		Timezone:    uint8(24 + s.Timezone),
		CountryCode: countryCode(s.Country),
		Privileges:  s.ClientPrivileges(),
		Rank:        s.stats.Rank,
	}
}

// Stats builds the activity plus score-statistics payload.
func (s *Session) Stats() packet.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Action = s.status.Action
	st.ActionText = s.status.Text
	st.BeatmapChecksum = s.status.BeatmapChecksum
	st.Mods = s.status.Mods
	st.Mode = s.status.Mode
	st.BeatmapID = s.status.BeatmapID
	return st
}

// countryCodes maps ISO country codes onto the protocol's numeric ids.
// Countries not listed map to 0 ("unknown").
var countryCodes = map[string]uint8{
	"EU": 1, "AR": 13, "AT": 15, "AU": 16, "BE": 20, "BR": 31,
	"CA": 38, "CH": 43, "CL": 45, "CN": 48, "CZ": 55, "DE": 56,
	"DK": 58, "ES": 67, "FI": 69, "FR": 71, "GB": 72, "HK": 84,
	"ID": 90, "IE": 91, "IL": 92, "IN": 94, "IT": 97, "JP": 102,
	"KR": 108, "MX": 140, "MY": 146, "NL": 156, "NO": 160,
	"NZ": 164, "PH": 171, "PL": 174, "PT": 179, "RU": 185,
	"SE": 191, "SG": 192, "TH": 210, "TR": 217, "TW": 220,
	"UA": 222, "US": 225, "VN": 233,
}

func countryCode(country string) uint8 { return countryCodes[country] }
