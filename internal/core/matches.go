package core

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/packet"
)

// MatchRepository owns every multiplayer match and the lobby
// subscription set. The repository serializes operations per match
// through each match's own mutex; unrelated matches never contend.
type MatchRepository struct {
	log      *zerolog.Logger
	sessions *SessionRegistry
	channels *ChannelRegistry

	mu      sync.RWMutex
	nextID  int32
	matches map[int32]*Match
	lobby   map[int64]struct{}
}

// NewMatchRepository builds an empty repository.
func NewMatchRepository(logger *zerolog.Logger, sessions *SessionRegistry, channels *ChannelRegistry) *MatchRepository {
	return &MatchRepository{
		log:      logger,
		sessions: sessions,
		channels: channels,
		matches:  make(map[int32]*Match),
		lobby:    make(map[int64]struct{}),
	}
}

// Get returns a match by id, nil when absent.
func (r *MatchRepository) Get(id int32) *Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matches[id]
}

// GetForSession returns the match the session is seated in, nil when
// it is not in one.
func (r *MatchRepository) GetForSession(s *Session) *Match {
	id := s.MatchID()
	if id == 0 {
		return nil
	}
	return r.Get(id)
}

// ChannelName returns the synthetic chat channel name of a match.
func ChannelName(matchID int32) string {
	return fmt.Sprintf("%s%d", MultiplayerChannelPrefix, matchID)
}

// Create allocates the next match id, seats the creator as host, and
// announces the new match to the lobby.
func (r *MatchRepository) Create(state packet.MatchState, host *Session) *Match {
	r.mu.Lock()
	r.nextID++
	m := newMatch(r.nextID, state, host)
	r.matches[m.ID()] = m
	r.mu.Unlock()

	host.SetMatchID(m.ID())
	channel := r.channels.CreateSynthetic(ChannelName(m.ID()))
	channel.add(host.UserID)
	host.Enqueue(packet.ChannelJoinSuccess(channel.Name))

	snapshot := m.State()
	host.Enqueue(packet.MatchFrame(packet.SrvMatchJoinSuccess, snapshot, false))
	r.broadcastToLobby(packet.MatchFrame(packet.SrvNewMatch, snapshot, true))

	r.log.Info().
		Int32("match_id", m.ID()).
		Str("name", snapshot.Name).
		Int64("host_id", host.UserID).
		Msg("match created")
	return m
}

// Join seats the session in the match. Failures send a join-failure
// packet to the requester and leave all state untouched.
func (r *MatchRepository) Join(s *Session, matchID int32, password string) error {
	m := r.Get(matchID)
	if m == nil {
		s.Enqueue(packet.MatchJoinFailFrame())
		return ErrMatchNotFound
	}
	if err := m.join(s.UserID, password); err != nil {
		s.Enqueue(packet.MatchJoinFailFrame())
		return err
	}

	s.SetMatchID(m.ID())
	channel := r.channels.CreateSynthetic(ChannelName(m.ID()))
	channel.add(s.UserID)
	s.Enqueue(packet.ChannelJoinSuccess(channel.Name))

	s.Enqueue(packet.MatchFrame(packet.SrvMatchJoinSuccess, m.State(), false))
	r.BroadcastState(m)
	return nil
}

// Part removes the session from its match. The last occupant leaving
// removes the match from the repository within the same operation.
func (r *MatchRepository) Part(s *Session) {
	m := r.GetForSession(s)
	if m == nil {
		return
	}
	s.SetMatchID(0)
	r.channels.Leave(ChannelName(m.ID()), s)

	empty, newHostID := m.leave(s.UserID)
	if empty {
		r.remove(m.ID())
		return
	}
	if newHostID != 0 {
		if newHost := r.sessions.GetByID(newHostID); newHost != nil {
			newHost.Enqueue(packet.MatchTransferHostFrame())
		}
	}
	r.BroadcastState(m)
}

func (r *MatchRepository) remove(matchID int32) {
	r.mu.Lock()
	delete(r.matches, matchID)
	r.mu.Unlock()

	r.broadcastToLobby(packet.DisposeMatchFrame(matchID))
	r.log.Info().Int32("match_id", matchID).Msg("match removed")
}

// JoinLobby subscribes the session to match create/update/remove
// broadcasts and replays the current match list to it.
func (r *MatchRepository) JoinLobby(s *Session) {
	r.mu.Lock()
	r.lobby[s.UserID] = struct{}{}
	current := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		current = append(current, m)
	}
	r.mu.Unlock()

	for _, m := range current {
		s.Enqueue(packet.MatchFrame(packet.SrvNewMatch, m.State(), true))
	}
}

// PartLobby unsubscribes the session from lobby broadcasts.
func (r *MatchRepository) PartLobby(s *Session) {
	r.mu.Lock()
	delete(r.lobby, s.UserID)
	r.mu.Unlock()
}

// BroadcastState sends the full match state to room members and the
// password-hidden form to lobby subscribers.
func (r *MatchRepository) BroadcastState(m *Match) {
	state := m.State()
	r.BroadcastToMembers(m, packet.MatchFrame(packet.SrvUpdateMatch, state, false))
	r.broadcastToLobby(packet.MatchFrame(packet.SrvUpdateMatch, state, true))
}

// BroadcastToMembers enqueues a frame on every seated session.
func (r *MatchRepository) BroadcastToMembers(m *Match, frame []byte) {
	for _, id := range m.OccupantIDs() {
		if s := r.sessions.GetByID(id); s != nil {
			s.Enqueue(frame)
		}
	}
}

func (r *MatchRepository) broadcastToLobby(frame []byte) {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.lobby))
	for id := range r.lobby {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if s := r.sessions.GetByID(id); s != nil {
			s.Enqueue(frame)
		}
	}
}
