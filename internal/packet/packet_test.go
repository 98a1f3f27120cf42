package packet

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := NewWriter().String("hello").Int32(42).Bytes()
	frame := Frame(SrvNotification, payload)

	p, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if p.Type != SrvNotification {
		t.Fatalf("unexpected type: %v", p.Type)
	}
	if !bytes.Equal(p.Payload, payload) {
		t.Fatalf("payload mismatch: got %v want %v", p.Payload, payload)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	// A header cut short is still an orderly disconnect.
	if _, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3})); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for short header, got %v", err)
	}
}

func TestSplitBatchedFrames(t *testing.T) {
	data := append(PongFrame(), Notification("hi")...)
	packets, err := Split(data)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(packets))
	}
	if packets[0].Type != SrvPong || packets[1].Type != SrvNotification {
		t.Fatalf("unexpected types: %v, %v", packets[0].Type, packets[1].Type)
	}
}

func TestSplitTruncated(t *testing.T) {
	frame := Notification("hi")
	if _, err := Split(frame[:len(frame)-1]); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
	if _, err := Split(frame[:3]); err == nil {
		t.Fatalf("expected error for truncated header")
	}
}

func TestStringEncoding(t *testing.T) {
	payload := NewWriter().String("").String("#osu").Bytes()
	r := NewReader(payload)
	if got := r.String(); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := r.String(); got != "#osu" {
		t.Fatalf("expected %q, got %q", "#osu", got)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{0x01})
	r.Int32()
	if r.Err() == nil {
		t.Fatalf("expected short payload error")
	}
	// Every later read keeps returning zero values.
	if got := r.Uint8(); got != 0 {
		t.Fatalf("expected zero after error, got %d", got)
	}
	if !errors.Is(r.Err(), ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", r.Err())
	}
}

func TestMatchEncodeDecode(t *testing.T) {
	m := MatchState{
		ID:              3,
		InProgress:      true,
		Mods:            8,
		Name:            "test room",
		Password:        "secret",
		BeatmapName:     "artist - title",
		BeatmapID:       1234,
		BeatmapChecksum: "abc123",
		HostID:          7,
		Mode:            0,
		ScoringType:     1,
		TeamType:        2,
		FreeMod:         true,
		Seed:            99,
	}
	m.SlotStatuses[0] = SlotStatusReady
	m.SlotUserIDs[0] = 7
	m.SlotMods[0] = 64
	m.SlotStatuses[1] = SlotStatusLocked
	for i := 2; i < MaxSlots; i++ {
		m.SlotStatuses[i] = SlotStatusOpen
	}

	decoded, err := DecodeMatch(EncodeMatch(m, false))
	if err != nil {
		t.Fatalf("decode match: %v", err)
	}
	if decoded.Name != m.Name || decoded.Password != m.Password {
		t.Fatalf("name/password mismatch: %+v", decoded)
	}
	if decoded.SlotUserIDs[0] != 7 || decoded.SlotUserIDs[1] != -1 {
		t.Fatalf("slot user ids mismatch: %v", decoded.SlotUserIDs)
	}
	if !decoded.FreeMod || decoded.SlotMods[0] != 64 {
		t.Fatalf("free mod state mismatch: %+v", decoded)
	}
	if decoded.Seed != 99 {
		t.Fatalf("seed mismatch: %d", decoded.Seed)
	}
}

func TestEncodeMatchHidesPassword(t *testing.T) {
	m := MatchState{Name: "room", Password: "secret"}
	for i := range m.SlotStatuses {
		m.SlotStatuses[i] = SlotStatusOpen
	}

	decoded, err := DecodeMatch(EncodeMatch(m, true))
	if err != nil {
		t.Fatalf("decode match: %v", err)
	}
	if decoded.Password == "secret" {
		t.Fatalf("password leaked to lobby form")
	}
	if decoded.Password == "" {
		t.Fatalf("hidden password should still signal that one exists")
	}
}

func TestDecodeMessage(t *testing.T) {
	payload := NewWriter().String("alice").String("hi all").String("#osu").Int32(5).Bytes()
	m, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if m.Sender != "alice" || m.Text != "hi all" || m.Target != "#osu" || m.SenderID != 5 {
		t.Fatalf("unexpected message: %+v", m)
	}
}
