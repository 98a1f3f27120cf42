package packet

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Slot status bits inside a match payload.
const (
	SlotStatusOpen     uint8 = 1
	SlotStatusLocked   uint8 = 2
	SlotStatusNotReady uint8 = 4
	SlotStatusReady    uint8 = 8
	SlotStatusNoMap    uint8 = 16
	SlotStatusPlaying  uint8 = 32
	SlotStatusComplete uint8 = 64

	// SlotOccupiedMask selects every status that implies an occupant.
	SlotOccupiedMask = SlotStatusNotReady | SlotStatusReady |
		SlotStatusNoMap | SlotStatusPlaying | SlotStatusComplete
)

// MaxSlots is the fixed slot count of every match.
const MaxSlots = 16

// MatchState is the wire form of a multiplayer match.
type MatchState struct {
	ID              int32
	InProgress      bool
	MatchType       uint8
	Mods            uint32
	Name            string
	Password        string
	BeatmapName     string
	BeatmapID       int32
	BeatmapChecksum string
	SlotStatuses    [MaxSlots]uint8
	SlotTeams       [MaxSlots]uint8
	SlotUserIDs     [MaxSlots]int32
	SlotMods        [MaxSlots]uint32
	HostID          int32
	Mode            uint8
	ScoringType     uint8
	TeamType        uint8
	FreeMod         bool
	Seed            int32
}

// Presence is the publicly broadcastable identity snapshot of a user.
type Presence struct {
	UserID      int32
	Username    string
	Timezone    uint8
	CountryCode uint8
	Privileges  uint8
	Longitude   float32
	Latitude    float32
	Rank        int32
}

// Stats is a user's current activity plus score statistics.
type Stats struct {
	UserID          int32
	Action          uint8
	ActionText      string
	BeatmapChecksum string
	Mods            uint32
	Mode            uint8
	BeatmapID       int32
	RankedScore     int64
	Accuracy        float32
	PlayCount       int32
	TotalScore      int64
	Rank            int32
	Performance     int16
}

// Writer accumulates payload fields in wire order.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty payload writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) *Writer {
	w.buf.WriteByte(v)
	return w
}

// Bool appends a 0/1 byte.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.Uint8(1)
	}
	return w.Uint8(0)
}

// Uint16 appends a little-endian uint16.
func (w *Writer) Uint16(v uint16) *Writer {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
	return w
}

// Int16 appends a little-endian int16.
func (w *Writer) Int16(v int16) *Writer { return w.Uint16(uint16(v)) }

// Uint32 appends a little-endian uint32.
func (w *Writer) Uint32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
	return w
}

// Int32 appends a little-endian int32.
func (w *Writer) Int32(v int32) *Writer { return w.Uint32(uint32(v)) }

// Int64 appends a little-endian int64.
func (w *Writer) Int64(v int64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
	return w
}

// Float32 appends a little-endian IEEE 754 float.
func (w *Writer) Float32(v float32) *Writer { return w.Uint32(math.Float32bits(v)) }

// String appends a length-prefixed string (0x00 when empty).
func (w *Writer) String(s string) *Writer {
	if s == "" {
		return w.Uint8(0x00)
	}
	w.Uint8(0x0b)
	w.uleb128(uint32(len(s)))
	w.buf.WriteString(s)
	return w
}

// Int32List appends a uint16 count followed by the values.
func (w *Writer) Int32List(values []int32) *Writer {
	w.Uint16(uint16(len(values)))
	for _, v := range values {
		w.Int32(v)
	}
	return w
}

// Raw appends bytes verbatim.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf.Write(b)
	return w
}

func (w *Writer) uleb128(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// Notification builds a server notification frame.
func Notification(text string) []byte {
	return Frame(SrvNotification, NewWriter().String(text).Bytes())
}

// LoginReply builds the login response carrying the user id (or a
// negative error code).
func LoginReply(userID int32) []byte {
	return Frame(SrvLoginReply, NewWriter().Int32(userID).Bytes())
}

// ProtocolVersionFrame announces the protocol revision.
func ProtocolVersionFrame() []byte {
	return Frame(SrvProtocolVersion, NewWriter().Int32(ProtocolVersion).Bytes())
}

// PrivilegesFrame announces the client-visible privilege bits.
func PrivilegesFrame(privileges int32) []byte {
	return Frame(SrvPrivileges, NewWriter().Int32(privileges).Bytes())
}

// ChatMessage builds a chat message frame.
func ChatMessage(m Message) []byte {
	payload := NewWriter().
		String(m.Sender).
		String(m.Text).
		String(m.Target).
		Int32(m.SenderID).
		Bytes()
	return Frame(SrvSendMessage, payload)
}

// UserLogoutFrame announces a session quitting.
func UserLogoutFrame(userID int32) []byte {
	return Frame(SrvUserLogout, NewWriter().Int32(userID).Uint8(0).Bytes())
}

// ChannelInfo describes one channel in a listing.
func ChannelInfo(name, description string, members uint16) []byte {
	payload := NewWriter().String(name).String(description).Uint16(members).Bytes()
	return Frame(SrvChannelInfo, payload)
}

// ChannelInfoEnd terminates a channel listing.
func ChannelInfoEnd() []byte { return Frame(SrvChannelInfoEnd, nil) }

// ChannelJoinSuccess confirms a channel join.
func ChannelJoinSuccess(name string) []byte {
	return Frame(SrvChannelJoinSuccess, NewWriter().String(name).Bytes())
}

// ChannelKicked tells the client it was removed from a channel.
func ChannelKicked(name string) []byte {
	return Frame(SrvChannelKicked, NewWriter().String(name).Bytes())
}

// FriendsList carries the user's friend ids.
func FriendsList(ids []int32) []byte {
	return Frame(SrvFriendsList, NewWriter().Int32List(ids).Bytes())
}

// UserPresenceFrame encodes a presence snapshot.
func UserPresenceFrame(p Presence) []byte {
	payload := NewWriter().
		Int32(p.UserID).
		String(p.Username).
		Uint8(p.Timezone).
		Uint8(p.CountryCode).
		Uint8(p.Privileges).
		Float32(p.Longitude).
		Float32(p.Latitude).
		Int32(p.Rank).
		Bytes()
	return Frame(SrvUserPresence, payload)
}

// UserStatsFrame encodes a stats snapshot.
func UserStatsFrame(s Stats) []byte {
	payload := NewWriter().
		Int32(s.UserID).
		Uint8(s.Action).
		String(s.ActionText).
		String(s.BeatmapChecksum).
		Uint32(s.Mods).
		Uint8(s.Mode).
		Int32(s.BeatmapID).
		Int64(s.RankedScore).
		Float32(s.Accuracy).
		Int32(s.PlayCount).
		Int64(s.TotalScore).
		Int32(s.Rank).
		Int16(s.Performance).
		Bytes()
	return Frame(SrvUserStats, payload)
}

// SilenceEndFrame tells a client how many seconds of silence remain.
func SilenceEndFrame(seconds int32) []byte {
	return Frame(SrvSilenceEnd, NewWriter().Int32(seconds).Bytes())
}

// UserSilencedFrame broadcasts that a user was silenced.
func UserSilencedFrame(userID int32) []byte {
	return Frame(SrvUserSilenced, NewWriter().Int32(userID).Bytes())
}

// SpectatorJoinedFrame notifies a host of a new spectator.
func SpectatorJoinedFrame(userID int32) []byte {
	return Frame(SrvSpectatorJoined, NewWriter().Int32(userID).Bytes())
}

// SpectatorLeftFrame notifies a host a spectator stopped watching.
func SpectatorLeftFrame(userID int32) []byte {
	return Frame(SrvSpectatorLeft, NewWriter().Int32(userID).Bytes())
}

// FellowSpectatorJoinedFrame notifies co-spectators of a new arrival.
func FellowSpectatorJoinedFrame(userID int32) []byte {
	return Frame(SrvFellowSpectatorIn, NewWriter().Int32(userID).Bytes())
}

// FellowSpectatorLeftFrame notifies co-spectators of a departure.
func FellowSpectatorLeftFrame(userID int32) []byte {
	return Frame(SrvFellowSpectatorOut, NewWriter().Int32(userID).Bytes())
}

// SpectatorCantMapFrame relays that a spectator lacks the beatmap.
func SpectatorCantMapFrame(userID int32) []byte {
	return Frame(SrvSpectatorCantMap, NewWriter().Int32(userID).Bytes())
}

// SpectateFramesFrame relays raw replay frames to spectators.
func SpectateFramesFrame(raw []byte) []byte {
	return Frame(SrvSpectateFrames, raw)
}

// EncodeMatch serializes a match payload. The password is replaced by a
// marker when hidePassword is set so lobby viewers learn only that one
// exists.
func EncodeMatch(m MatchState, hidePassword bool) []byte {
	w := NewWriter()
	w.Uint16(uint16(m.ID))
	w.Bool(m.InProgress)
	w.Uint8(m.MatchType)
	w.Uint32(m.Mods)
	w.String(m.Name)
	password := m.Password
	if hidePassword && password != "" {
		password = " "
	}
	w.String(password)
	w.String(m.BeatmapName)
	w.Int32(m.BeatmapID)
	w.String(m.BeatmapChecksum)
	for _, s := range m.SlotStatuses {
		w.Uint8(s)
	}
	for _, t := range m.SlotTeams {
		w.Uint8(t)
	}
	for i, id := range m.SlotUserIDs {
		if m.SlotStatuses[i]&SlotOccupiedMask != 0 {
			w.Int32(id)
		}
	}
	w.Int32(m.HostID)
	w.Uint8(m.Mode)
	w.Uint8(m.ScoringType)
	w.Uint8(m.TeamType)
	w.Bool(m.FreeMod)
	if m.FreeMod {
		for _, mods := range m.SlotMods {
			w.Uint32(mods)
		}
	}
	w.Int32(m.Seed)
	return w.Bytes()
}

// MatchFrame wraps an encoded match in the given frame type.
func MatchFrame(t Type, m MatchState, hidePassword bool) []byte {
	return Frame(t, EncodeMatch(m, hidePassword))
}

// DisposeMatchFrame announces a match removal to the lobby.
func DisposeMatchFrame(matchID int32) []byte {
	return Frame(SrvDisposeMatch, NewWriter().Int32(matchID).Bytes())
}

// MatchJoinFailFrame tells a client its join attempt failed.
func MatchJoinFailFrame() []byte { return Frame(SrvMatchJoinFail, nil) }

// MatchChangePasswordFrame carries the room's new password to members.
func MatchChangePasswordFrame(password string) []byte {
	return Frame(SrvMatchChangePassword, NewWriter().String(password).Bytes())
}

// MatchTransferHostFrame tells a client it became the host.
func MatchTransferHostFrame() []byte { return Frame(SrvMatchTransferHost, nil) }

// MatchAllLoadedFrame signals every player finished loading.
func MatchAllLoadedFrame() []byte { return Frame(SrvMatchAllLoaded, nil) }

// MatchPlayerFailedFrame relays a player failure by slot id.
func MatchPlayerFailedFrame(slotID int32) []byte {
	return Frame(SrvMatchPlayerFailed, NewWriter().Int32(slotID).Bytes())
}

// MatchSkipFrame signals all players agreed to skip the intro.
func MatchSkipFrame() []byte { return Frame(SrvMatchSkip, nil) }

// MatchPlayerSkippedFrame relays one player's skip vote by slot id.
func MatchPlayerSkippedFrame(slotID int32) []byte {
	return Frame(SrvMatchPlayerSkipped, NewWriter().Int32(slotID).Bytes())
}

// MatchCompleteFrame signals the round finished for everyone.
func MatchCompleteFrame() []byte { return Frame(SrvMatchComplete, nil) }

// MatchInviteFrame carries a match invitation as a chat-shaped payload.
func MatchInviteFrame(m Message) []byte {
	payload := NewWriter().
		String(m.Sender).
		String(m.Text).
		String(m.Target).
		Int32(m.SenderID).
		Bytes()
	return Frame(SrvMatchInvite, payload)
}

// MatchScoreUpdateFrame relays a raw score frame to the room.
func MatchScoreUpdateFrame(raw []byte) []byte {
	return Frame(SrvMatchScoreUpdate, raw)
}

// PongFrame answers a client ping.
func PongFrame() []byte { return Frame(SrvPong, nil) }

// UserPMBlockedFrame tells a sender the target blocks non-friend PMs.
func UserPMBlockedFrame(target string) []byte {
	payload := NewWriter().String("").String("").String(target).Int32(0).Bytes()
	return Frame(SrvUserPMBlocked, payload)
}

// TargetSilencedFrame tells a sender the PM target is silenced.
func TargetSilencedFrame(target string) []byte {
	payload := NewWriter().String("").String("").String(target).Int32(0).Bytes()
	return Frame(SrvTargetSilenced, payload)
}
