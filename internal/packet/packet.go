// Package packet implements the binary Bancho framing and the payload
// codecs for the values the server owns. Every frame carries a 2-byte
// little-endian packet type, one pad byte, and a 4-byte little-endian
// payload length, followed by the payload itself.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Type identifies a protocol packet.
type Type uint16

// Client-to-server packet types.
const (
	ClientChangeAction        Type = 0
	ClientSendPublicMessage   Type = 1
	ClientLogout              Type = 2
	ClientRequestStatusUpdate Type = 3
	ClientPing                Type = 4
	ClientStartSpectating     Type = 16
	ClientStopSpectating      Type = 17
	ClientSpectateFrames      Type = 18
	ClientCantSpectate        Type = 21
	ClientSendPrivateMessage  Type = 25
	ClientPartLobby           Type = 29
	ClientJoinLobby           Type = 30
	ClientCreateMatch         Type = 31
	ClientJoinMatch           Type = 32
	ClientPartMatch           Type = 33
	ClientMatchChangeSlot     Type = 38
	ClientMatchReady          Type = 39
	ClientMatchLock           Type = 40
	ClientMatchChangeSettings Type = 41
	ClientMatchStart          Type = 44
	ClientMatchScoreUpdate    Type = 47
	ClientMatchComplete       Type = 49
	ClientMatchChangeMods     Type = 51
	ClientMatchLoadComplete   Type = 52
	ClientMatchNoBeatmap      Type = 54
	ClientMatchNotReady       Type = 55
	ClientMatchFailed         Type = 56
	ClientMatchHasBeatmap     Type = 59
	ClientMatchSkipRequest    Type = 60
	ClientChannelJoin         Type = 63
	ClientMatchChangeTeam     Type = 70
	ClientFriendAdd           Type = 73
	ClientFriendRemove        Type = 74
	ClientMatchChangePassword Type = 77
	ClientChannelPart         Type = 78
	ClientSetAwayMessage      Type = 82
	ClientUserStatsRequest    Type = 85
	ClientMatchInvite         Type = 87
	ClientMatchTransferHost   Type = 90
	ClientUserPresenceRequest Type = 97
	ClientTogglePMBlock       Type = 99
	ClientMatchAbort          Type = 100
)

// Server-to-client packet types.
const (
	SrvLoginReply          Type = 5
	SrvSendMessage         Type = 7
	SrvPong                Type = 8
	SrvUserStats           Type = 11
	SrvUserLogout          Type = 12
	SrvSpectatorJoined     Type = 13
	SrvSpectatorLeft       Type = 14
	SrvSpectateFrames      Type = 15
	SrvSpectatorCantMap    Type = 22
	SrvNotification        Type = 24
	SrvUpdateMatch         Type = 26
	SrvNewMatch            Type = 27
	SrvDisposeMatch        Type = 28
	SrvMatchJoinSuccess    Type = 36
	SrvMatchJoinFail       Type = 37
	SrvFellowSpectatorIn   Type = 42
	SrvFellowSpectatorOut  Type = 43
	SrvMatchStart          Type = 46
	SrvMatchScoreUpdate    Type = 48
	SrvMatchTransferHost   Type = 50
	SrvMatchAllLoaded      Type = 53
	SrvMatchPlayerFailed   Type = 57
	SrvMatchComplete       Type = 58
	SrvMatchSkip           Type = 61
	SrvMatchPlayerSkipped  Type = 81
	SrvChannelJoinSuccess  Type = 64
	SrvChannelInfo         Type = 65
	SrvChannelKicked       Type = 66
	SrvPrivileges          Type = 71
	SrvFriendsList         Type = 72
	SrvProtocolVersion     Type = 75
	SrvMatchInvite         Type = 88
	SrvChannelInfoEnd      Type = 89
	SrvMatchChangePassword Type = 91
	SrvSilenceEnd          Type = 92
	SrvUserSilenced        Type = 94
	SrvUserPresence        Type = 83
	SrvUserPMBlocked       Type = 101
	SrvTargetSilenced      Type = 102
)

// ProtocolVersion is the protocol revision announced on login.
const ProtocolVersion = 19

// headerSize is the fixed frame header length in bytes.
const headerSize = 7

// MaxPayloadSize bounds a single frame payload.
const MaxPayloadSize = 1 << 20

// ErrPayloadTooLarge is returned for frames exceeding MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("packet payload too large")

// Packet is one decoded frame: a type and its raw payload.
type Packet struct {
	Type    Type
	Payload []byte
}

// ReadFrame reads one frame from r. io.EOF is returned unchanged on a
// clean end of stream so callers can detect orderly disconnects.
func ReadFrame(r io.Reader) (Packet, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, io.EOF
		}
		return Packet{}, err
	}

	length := binary.LittleEndian.Uint32(hdr[3:7])
	if length > MaxPayloadSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}

	p := Packet{Type: Type(binary.LittleEndian.Uint16(hdr[0:2]))}
	if length > 0 {
		p.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, p.Payload); err != nil {
			return Packet{}, fmt.Errorf("read payload: %w", err)
		}
	}
	return p, nil
}

// Frame encodes a complete frame for the given type and payload.
func Frame(t Type, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(t))
	binary.LittleEndian.PutUint32(buf[3:7], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf
}

// Split parses a byte stream containing zero or more whole frames.
// Used by the transport when a websocket message batches frames.
func Split(data []byte) ([]Packet, error) {
	var packets []Packet
	for len(data) > 0 {
		if len(data) < headerSize {
			return nil, errors.New("truncated packet header")
		}
		length := binary.LittleEndian.Uint32(data[3:7])
		if length > MaxPayloadSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
		}
		if uint32(len(data)-headerSize) < length {
			return nil, errors.New("truncated packet payload")
		}
		p := Packet{Type: Type(binary.LittleEndian.Uint16(data[0:2]))}
		if length > 0 {
			p.Payload = append([]byte(nil), data[headerSize:headerSize+int(length)]...)
		}
		packets = append(packets, p)
		data = data[headerSize+int(length):]
	}
	return packets, nil
}
