package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPayload reports a payload that ended before a field.
var ErrShortPayload = errors.New("payload too short")

// Reader walks a payload field by field. Errors are sticky: once a read
// fails every subsequent read returns the zero value, and Err exposes
// the first failure.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader wraps a raw payload.
func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

// Err returns the first read error, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d", ErrShortPayload, n, r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// Uint8 reads one byte.
func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Int32 reads a little-endian int32.
func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// String reads a length-prefixed string. A 0x00 marker is the empty
// string; 0x0b is followed by a ULEB128 length and UTF-8 bytes.
func (r *Reader) String() string {
	marker := r.Uint8()
	if r.err != nil || marker == 0x00 {
		return ""
	}
	if marker != 0x0b {
		r.err = fmt.Errorf("invalid string marker 0x%02x at offset %d", marker, r.off-1)
		return ""
	}
	length := r.uleb128()
	b := r.take(int(length))
	if b == nil {
		return ""
	}
	return string(b)
}

// Int32List reads a uint16 count followed by that many int32 values.
func (r *Reader) Int32List() []int32 {
	n := int(r.Uint16())
	if r.err != nil {
		return nil
	}
	out := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.Int32())
		if r.err != nil {
			return nil
		}
	}
	return out
}

// Remaining returns the unread tail of the payload.
func (r *Reader) Remaining() []byte {
	if r.err != nil {
		return nil
	}
	return r.buf[r.off:]
}

func (r *Reader) uleb128() uint32 {
	var value uint32
	var shift uint
	for {
		b := r.Uint8()
		if r.err != nil {
			return 0
		}
		value |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return value
		}
		shift += 7
		if shift > 28 {
			r.err = errors.New("uleb128 overflow")
			return 0
		}
	}
}

// Message is a decoded chat message payload.
type Message struct {
	Sender   string
	Text     string
	Target   string
	SenderID int32
}

// DecodeMessage parses a public or private chat message payload.
func DecodeMessage(payload []byte) (Message, error) {
	r := NewReader(payload)
	m := Message{
		Sender: r.String(),
		Text:   r.String(),
		Target: r.String(),
	}
	m.SenderID = r.Int32()
	return m, r.Err()
}

// Action is a decoded status-change payload.
type Action struct {
	ID              uint8
	Text            string
	BeatmapChecksum string
	Mods            uint32
	Mode            uint8
	BeatmapID       int32
}

// DecodeAction parses a client status update.
func DecodeAction(payload []byte) (Action, error) {
	r := NewReader(payload)
	a := Action{
		ID:              r.Uint8(),
		Text:            r.String(),
		BeatmapChecksum: r.String(),
		Mods:            r.Uint32(),
		Mode:            r.Uint8(),
		BeatmapID:       r.Int32(),
	}
	return a, r.Err()
}

// MatchJoin is a decoded match-join request.
type MatchJoin struct {
	MatchID  int32
	Password string
}

// DecodeMatchJoin parses a match-join request payload.
func DecodeMatchJoin(payload []byte) (MatchJoin, error) {
	r := NewReader(payload)
	j := MatchJoin{
		MatchID:  r.Int32(),
		Password: r.String(),
	}
	return j, r.Err()
}

// DecodeMatch parses a full match payload as sent by the client on
// match creation and settings changes.
func DecodeMatch(payload []byte) (MatchState, error) {
	r := NewReader(payload)
	var m MatchState
	m.ID = int32(r.Uint16())
	m.InProgress = r.Uint8() == 1
	m.MatchType = r.Uint8()
	m.Mods = r.Uint32()
	m.Name = r.String()
	m.Password = r.String()
	m.BeatmapName = r.String()
	m.BeatmapID = r.Int32()
	m.BeatmapChecksum = r.String()
	for i := range m.SlotStatuses {
		m.SlotStatuses[i] = r.Uint8()
	}
	for i := range m.SlotTeams {
		m.SlotTeams[i] = r.Uint8()
	}
	for i := range m.SlotUserIDs {
		// Occupied slots carry the occupant's user id.
		if m.SlotStatuses[i]&SlotOccupiedMask != 0 {
			m.SlotUserIDs[i] = r.Int32()
		} else {
			m.SlotUserIDs[i] = -1
		}
	}
	m.HostID = r.Int32()
	m.Mode = r.Uint8()
	m.ScoringType = r.Uint8()
	m.TeamType = r.Uint8()
	m.FreeMod = r.Uint8() == 1
	if m.FreeMod {
		for i := range m.SlotMods {
			m.SlotMods[i] = r.Uint32()
		}
	}
	m.Seed = r.Int32()
	return m, r.Err()
}
