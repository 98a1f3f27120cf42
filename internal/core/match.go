package core

import (
	"sync"

	"github.com/vovakirdan/bancho-server/internal/packet"
)

// Team ids inside a match slot.
const (
	TeamNeutral uint8 = 0
	TeamBlue    uint8 = 1
	TeamRed     uint8 = 2
)

// Slot is one seat of a match: an occupant, a status, a team and the
// per-slot mods used when free-mod is enabled. The progress flags are
// reset on every match start.
type Slot struct {
	UserID int64
	Status uint8
	Team   uint8
	Mods   uint32

	loaded    bool
	skipped   bool
	completed bool
}

func (s *Slot) occupied() bool {
	return s.Status&packet.SlotOccupiedMask != 0
}

func (s *Slot) vacate() {
	*s = Slot{Status: packet.SlotStatusOpen}
}

// Match is a single multiplayer room. Every mutating operation takes
// the match mutex, which linearizes joins, leaves and settings changes
// per match without blocking unrelated matches.
type Match struct {
	mu sync.Mutex

	id              int32
	name            string
	password        string
	hostID          int64
	beatmapName     string
	beatmapID       int32
	beatmapChecksum string
	matchType       uint8
	mode            uint8
	mods            uint32
	scoringType     uint8
	teamType        uint8
	freeMod         bool
	seed            int32
	inProgress      bool
	closed          bool
	slots           [packet.MaxSlots]Slot
}

func newMatch(id int32, state packet.MatchState, host *Session) *Match {
	m := &Match{
		id:              id,
		name:            state.Name,
		password:        state.Password,
		hostID:          host.UserID,
		beatmapName:     state.BeatmapName,
		beatmapID:       state.BeatmapID,
		beatmapChecksum: state.BeatmapChecksum,
		matchType:       state.MatchType,
		mode:            state.Mode,
		mods:            state.Mods,
		scoringType:     state.ScoringType,
		teamType:        state.TeamType,
		freeMod:         state.FreeMod,
		seed:            state.Seed,
	}
	for i := range m.slots {
		m.slots[i].Status = packet.SlotStatusOpen
		if state.SlotStatuses[i] == packet.SlotStatusLocked {
			m.slots[i].Status = packet.SlotStatusLocked
		}
	}
	m.slots[0] = Slot{UserID: host.UserID, Status: packet.SlotStatusNotReady}
	return m
}

// ID returns the match id.
func (m *Match) ID() int32 { return m.id }

// HostID returns the current host's user id.
func (m *Match) HostID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hostID
}

// Name returns the match name.
func (m *Match) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// IsHost reports whether the user currently holds the host seat.
func (m *Match) IsHost(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hostID == userID
}

// State snapshots the match in wire form.
func (m *Match) State() packet.MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Match) stateLocked() packet.MatchState {
	state := packet.MatchState{
		ID:              m.id,
		InProgress:      m.inProgress,
		MatchType:       m.matchType,
		Mods:            m.mods,
		Name:            m.name,
		Password:        m.password,
		BeatmapName:     m.beatmapName,
		BeatmapID:       m.beatmapID,
		BeatmapChecksum: m.beatmapChecksum,
		HostID:          int32(m.hostID),
		Mode:            m.mode,
		ScoringType:     m.scoringType,
		TeamType:        m.teamType,
		FreeMod:         m.freeMod,
		Seed:            m.seed,
	}
	for i, slot := range m.slots {
		state.SlotStatuses[i] = slot.Status
		state.SlotTeams[i] = slot.Team
		state.SlotMods[i] = slot.Mods
		state.SlotUserIDs[i] = -1
		if slot.occupied() {
			state.SlotUserIDs[i] = int32(slot.UserID)
		}
	}
	return state
}

// OccupantIDs returns the user ids currently seated.
func (m *Match) OccupantIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, slot := range m.slots {
		if slot.occupied() {
			out = append(out, slot.UserID)
		}
	}
	return out
}

// OccupantCount returns the number of occupied slots.
func (m *Match) OccupantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, slot := range m.slots {
		if slot.occupied() {
			n++
		}
	}
	return n
}

// join seats the user in the first open slot. A closed match rejects
// joins: the repository may still list it for the instant between the
// last occupant leaving and the removal broadcast.
func (m *Match) join(userID int64, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMatchNotFound
	}
	if m.password != "" && m.password != password {
		return ErrWrongPassword
	}
	for i := range m.slots {
		if m.slots[i].Status == packet.SlotStatusOpen {
			m.slots[i] = Slot{UserID: userID, Status: packet.SlotStatusNotReady}
			return nil
		}
	}
	return ErrMatchFull
}

// leave vacates the user's slot. When the host leaves and occupants
// remain, the host seat moves to the first occupied slot; newHostID is
// non-zero in that case. empty reports whether the match is now vacant,
// which also closes the match against further joins.
func (m *Match) leave(userID int64) (empty bool, newHostID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].occupied() && m.slots[i].UserID == userID {
			m.slots[i].vacate()
			break
		}
	}

	occupied := 0
	var firstOccupant int64
	for _, slot := range m.slots {
		if slot.occupied() {
			occupied++
			if firstOccupant == 0 {
				firstOccupant = slot.UserID
			}
		}
	}
	if occupied == 0 {
		m.closed = true
		return true, 0
	}
	if m.hostID == userID {
		m.hostID = firstOccupant
		return false, firstOccupant
	}
	return false, 0
}

// applySettings merges a settings change from the host. A beatmap
// change resets every ready occupant back to not-ready.
func (m *Match) applySettings(state packet.MatchState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	beatmapChanged := state.BeatmapChecksum != m.beatmapChecksum

	m.name = state.Name
	m.beatmapName = state.BeatmapName
	m.beatmapID = state.BeatmapID
	m.beatmapChecksum = state.BeatmapChecksum
	m.matchType = state.MatchType
	m.mode = state.Mode
	m.scoringType = state.ScoringType
	m.teamType = state.TeamType
	m.seed = state.Seed

	if state.FreeMod != m.freeMod {
		m.freeMod = state.FreeMod
		if m.freeMod {
			for i := range m.slots {
				if m.slots[i].occupied() {
					m.slots[i].Mods = m.mods
				}
			}
			m.mods = 0
		} else {
			for i := range m.slots {
				m.slots[i].Mods = 0
			}
		}
	}

	if beatmapChanged {
		for i := range m.slots {
			if m.slots[i].Status == packet.SlotStatusReady {
				m.slots[i].Status = packet.SlotStatusNotReady
			}
		}
	}
}

// setPassword replaces the join password.
func (m *Match) setPassword(password string) {
	m.mu.Lock()
	m.password = password
	m.mu.Unlock()
}

// setMods changes the active mods. With free-mod enabled, non-host
// players change only their own slot.
func (m *Match) setMods(userID int64, mods uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.freeMod {
		for i := range m.slots {
			if m.slots[i].occupied() && m.slots[i].UserID == userID {
				m.slots[i].Mods = mods
			}
		}
		return
	}
	if userID == m.hostID {
		m.mods = mods
	}
}

// setSlotStatus flips the invoking user's own slot to the given status.
func (m *Match) setSlotStatus(userID int64, status uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].occupied() && m.slots[i].UserID == userID {
			m.slots[i].Status = status
			return
		}
	}
}

// changeSlot moves the user to a chosen open slot.
func (m *Match) changeSlot(userID int64, slotID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slotID < 0 || slotID >= packet.MaxSlots {
		return ErrSlotUnavailable
	}
	if m.slots[slotID].Status != packet.SlotStatusOpen {
		return ErrSlotUnavailable
	}
	for i := range m.slots {
		if m.slots[i].occupied() && m.slots[i].UserID == userID {
			m.slots[slotID] = m.slots[i]
			m.slots[i].vacate()
			return nil
		}
	}
	return ErrNotInMatch
}

// toggleLock locks an open slot or opens a locked one. Occupied slots
// are left alone.
func (m *Match) toggleLock(slotID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slotID < 0 || slotID >= packet.MaxSlots {
		return
	}
	switch m.slots[slotID].Status {
	case packet.SlotStatusOpen:
		m.slots[slotID].Status = packet.SlotStatusLocked
	case packet.SlotStatusLocked:
		m.slots[slotID].Status = packet.SlotStatusOpen
	}
}

// changeTeam rotates the user's team assignment in team modes.
func (m *Match) changeTeam(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].occupied() && m.slots[i].UserID == userID {
			if m.slots[i].Team == TeamBlue {
				m.slots[i].Team = TeamRed
			} else {
				m.slots[i].Team = TeamBlue
			}
			return
		}
	}
}

// setHost hands the host seat to the given occupant; reports whether
// the user is seated.
func (m *Match) setHost(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].occupied() && m.slots[i].UserID == userID {
			m.hostID = userID
			return true
		}
	}
	return false
}

// transferHost hands the host seat to the occupant of the given slot.
func (m *Match) transferHost(slotID int) (newHostID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slotID < 0 || slotID >= packet.MaxSlots || !m.slots[slotID].occupied() {
		return 0, ErrSlotUnavailable
	}
	m.hostID = m.slots[slotID].UserID
	return m.hostID, nil
}

// start flips every seated player with the beatmap into playing state
// and returns their ids. Players without the map sit the round out.
func (m *Match) start() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgress = true
	var playing []int64
	for i := range m.slots {
		if !m.slots[i].occupied() || m.slots[i].Status == packet.SlotStatusNoMap {
			continue
		}
		m.slots[i].Status = packet.SlotStatusPlaying
		m.slots[i].loaded = false
		m.slots[i].skipped = false
		m.slots[i].completed = false
		playing = append(playing, m.slots[i].UserID)
	}
	return playing
}

// loadComplete marks the player loaded; reports whether every playing
// slot finished loading.
func (m *Match) loadComplete(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markAndCheckLocked(userID, func(s *Slot) *bool { return &s.loaded })
}

// skipRequest marks the player's skip vote; reports the slot id and
// whether every playing slot voted.
func (m *Match) skipRequest(userID int64) (slotID int, all bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slotID = -1
	for i := range m.slots {
		if m.slots[i].Status == packet.SlotStatusPlaying && m.slots[i].UserID == userID {
			m.slots[i].skipped = true
			slotID = i
		}
	}
	return slotID, m.allPlayingLocked(func(s *Slot) bool { return s.skipped })
}

// complete marks the player finished; reports whether the whole round
// is over, in which case the match leaves the in-progress state.
func (m *Match) complete(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	done := m.markAndCheckLocked(userID, func(s *Slot) *bool { return &s.completed })
	if done {
		m.finishLocked()
	}
	return done
}

// fail returns the failing player's slot id, -1 when not playing.
func (m *Match) fail(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].Status == packet.SlotStatusPlaying && m.slots[i].UserID == userID {
			return i
		}
	}
	return -1
}

// abort ends the round immediately.
func (m *Match) abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishLocked()
}

func (m *Match) finishLocked() {
	m.inProgress = false
	for i := range m.slots {
		if m.slots[i].Status == packet.SlotStatusPlaying || m.slots[i].Status == packet.SlotStatusComplete {
			m.slots[i].Status = packet.SlotStatusNotReady
		}
	}
}

func (m *Match) markAndCheckLocked(userID int64, flag func(*Slot) *bool) bool {
	for i := range m.slots {
		if m.slots[i].Status == packet.SlotStatusPlaying && m.slots[i].UserID == userID {
			*flag(&m.slots[i]) = true
		}
	}
	return m.allPlayingLocked(func(s *Slot) bool { return *flag(s) })
}

func (m *Match) allPlayingLocked(done func(*Slot) bool) bool {
	any := false
	for i := range m.slots {
		if m.slots[i].Status != packet.SlotStatusPlaying {
			continue
		}
		any = true
		if !done(&m.slots[i]) {
			return false
		}
	}
	return any
}
