package core

import (
	"context"
	"fmt"

	"github.com/vovakirdan/bancho-server/internal/packet"
)

// seatedMatch resolves the match the session is seated in.
func (srv *Server) seatedMatch(s *Session) (*Match, error) {
	m := srv.Matches.GetForSession(s)
	if m == nil {
		return nil, ErrNotInMatch
	}
	return m, nil
}

// hostMatch resolves the session's match and verifies host (or staff)
// rights. Rejections are visible: the room channel gets a bot message
// naming the refused action.
func (srv *Server) hostMatch(s *Session, action string) (*Match, error) {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return nil, err
	}
	if !m.IsHost(s.UserID) && !s.Privileges.IsStaff() {
		srv.sendBotMessage(ChannelName(m.ID()),
			fmt.Sprintf("%s: only the host can %s.", s.Username, action))
		return nil, ErrNotHost
	}
	return m, nil
}

func (srv *Server) handleJoinLobby(_ context.Context, s *Session, _ packet.Packet) error {
	srv.Matches.JoinLobby(s)
	return nil
}

func (srv *Server) handlePartLobby(_ context.Context, s *Session, _ packet.Packet) error {
	srv.Matches.PartLobby(s)
	return nil
}

func (srv *Server) handleCreateMatch(_ context.Context, s *Session, p packet.Packet) error {
	state, err := packet.DecodeMatch(p.Payload)
	if err != nil {
		return fmt.Errorf("decode match: %w", err)
	}
	if m := srv.Matches.GetForSession(s); m != nil {
		srv.Matches.Part(s)
	}
	srv.Matches.Create(state, s)
	return nil
}

func (srv *Server) handleJoinMatch(_ context.Context, s *Session, p packet.Packet) error {
	req, err := packet.DecodeMatchJoin(p.Payload)
	if err != nil {
		return fmt.Errorf("decode match join: %w", err)
	}
	if m := srv.Matches.GetForSession(s); m != nil {
		srv.Matches.Part(s)
	}
	return srv.Matches.Join(s, req.MatchID, req.Password)
}

func (srv *Server) handlePartMatch(_ context.Context, s *Session, _ packet.Packet) error {
	srv.Matches.Part(s)
	return nil
}

func (srv *Server) handleMatchChangeSettings(_ context.Context, s *Session, p packet.Packet) error {
	m, err := srv.hostMatch(s, "change the match settings")
	if err != nil {
		return err
	}
	state, err := packet.DecodeMatch(p.Payload)
	if err != nil {
		return fmt.Errorf("decode match: %w", err)
	}
	m.applySettings(state)
	srv.Matches.BroadcastState(m)
	return nil
}

func (srv *Server) handleMatchChangePassword(_ context.Context, s *Session, p packet.Packet) error {
	m, err := srv.hostMatch(s, "change the password")
	if err != nil {
		return err
	}
	state, err := packet.DecodeMatch(p.Payload)
	if err != nil {
		return fmt.Errorf("decode match: %w", err)
	}
	m.setPassword(state.Password)
	srv.Matches.BroadcastToMembers(m, packet.MatchChangePasswordFrame(state.Password))
	srv.Matches.BroadcastState(m)
	return nil
}

func (srv *Server) handleMatchReady(_ context.Context, s *Session, _ packet.Packet) error {
	return srv.setOwnSlotStatus(s, packet.SlotStatusReady)
}

func (srv *Server) handleMatchNotReady(_ context.Context, s *Session, _ packet.Packet) error {
	return srv.setOwnSlotStatus(s, packet.SlotStatusNotReady)
}

func (srv *Server) handleMatchNoBeatmap(_ context.Context, s *Session, _ packet.Packet) error {
	return srv.setOwnSlotStatus(s, packet.SlotStatusNoMap)
}

func (srv *Server) handleMatchHasBeatmap(_ context.Context, s *Session, _ packet.Packet) error {
	return srv.setOwnSlotStatus(s, packet.SlotStatusNotReady)
}

func (srv *Server) setOwnSlotStatus(s *Session, status uint8) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	m.setSlotStatus(s.UserID, status)
	srv.Matches.BroadcastState(m)
	return nil
}

func (srv *Server) handleMatchChangeSlot(_ context.Context, s *Session, p packet.Packet) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	slotID := packet.NewReader(p.Payload).Int32()
	if err := m.changeSlot(s.UserID, int(slotID)); err != nil {
		return fmt.Errorf("change slot: %w", err)
	}
	srv.Matches.BroadcastState(m)
	return nil
}

func (srv *Server) handleMatchLock(_ context.Context, s *Session, p packet.Packet) error {
	m, err := srv.hostMatch(s, "lock slots")
	if err != nil {
		return err
	}
	slotID := packet.NewReader(p.Payload).Int32()
	m.toggleLock(int(slotID))
	srv.Matches.BroadcastState(m)
	return nil
}

func (srv *Server) handleMatchChangeMods(_ context.Context, s *Session, p packet.Packet) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	mods := packet.NewReader(p.Payload).Uint32()
	m.setMods(s.UserID, mods)
	srv.Matches.BroadcastState(m)
	return nil
}

func (srv *Server) handleMatchChangeTeam(_ context.Context, s *Session, _ packet.Packet) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	m.changeTeam(s.UserID)
	srv.Matches.BroadcastState(m)
	return nil
}

func (srv *Server) handleMatchTransferHost(_ context.Context, s *Session, p packet.Packet) error {
	m, err := srv.hostMatch(s, "transfer the host seat")
	if err != nil {
		return err
	}
	slotID := packet.NewReader(p.Payload).Int32()
	newHostID, err := m.transferHost(int(slotID))
	if err != nil {
		return fmt.Errorf("transfer host: %w", err)
	}
	if newHost := srv.Sessions.GetByID(newHostID); newHost != nil {
		newHost.Enqueue(packet.MatchTransferHostFrame())
	}
	srv.Matches.BroadcastState(m)
	return nil
}

// handleMatchInvite relays an invitation carrying the room's join
// details to the invited player.
func (srv *Server) handleMatchInvite(_ context.Context, s *Session, p packet.Packet) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	inviteeID := packet.NewReader(p.Payload).Int32()
	invitee := srv.Sessions.GetByID(int64(inviteeID))
	if invitee == nil {
		return fmt.Errorf("invite target %d: %w", inviteeID, ErrSessionNotFound)
	}
	state := m.State()
	invitee.Enqueue(packet.MatchInviteFrame(packet.Message{
		Sender: s.Username,
		Text: fmt.Sprintf("Come join my game: [osump://%d/%s %s]",
			m.ID(), state.Password, state.Name),
		Target:   invitee.Username,
		SenderID: int32(s.UserID),
	}))
	return nil
}

func (srv *Server) handleMatchStart(_ context.Context, s *Session, _ packet.Packet) error {
	m, err := srv.hostMatch(s, "start the match")
	if err != nil {
		return err
	}
	playing := m.start()
	frame := packet.MatchFrame(packet.SrvMatchStart, m.State(), false)
	for _, id := range playing {
		if member := srv.Sessions.GetByID(id); member != nil {
			member.Enqueue(frame)
		}
	}
	srv.Matches.BroadcastState(m)
	srv.log.Info().Int32("match_id", m.ID()).Int("players", len(playing)).Msg("match started")
	return nil
}

func (srv *Server) handleMatchLoadComplete(_ context.Context, s *Session, _ packet.Packet) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	if m.loadComplete(s.UserID) {
		srv.Matches.BroadcastToMembers(m, packet.MatchAllLoadedFrame())
	}
	return nil
}

// handleMatchScoreUpdate relays the raw score frame to every other
// member; the payload is opaque to the server.
func (srv *Server) handleMatchScoreUpdate(_ context.Context, s *Session, p packet.Packet) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	frame := packet.MatchScoreUpdateFrame(p.Payload)
	for _, id := range m.OccupantIDs() {
		if id == s.UserID {
			continue
		}
		if member := srv.Sessions.GetByID(id); member != nil {
			member.Enqueue(frame)
		}
	}
	return nil
}

func (srv *Server) handleMatchSkipRequest(_ context.Context, s *Session, _ packet.Packet) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	slotID, all := m.skipRequest(s.UserID)
	if slotID >= 0 {
		srv.Matches.BroadcastToMembers(m, packet.MatchPlayerSkippedFrame(int32(slotID)))
	}
	if all {
		srv.Matches.BroadcastToMembers(m, packet.MatchSkipFrame())
	}
	return nil
}

func (srv *Server) handleMatchFailed(_ context.Context, s *Session, _ packet.Packet) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	if slotID := m.fail(s.UserID); slotID >= 0 {
		srv.Matches.BroadcastToMembers(m, packet.MatchPlayerFailedFrame(int32(slotID)))
	}
	return nil
}

func (srv *Server) handleMatchComplete(_ context.Context, s *Session, _ packet.Packet) error {
	m, err := srv.seatedMatch(s)
	if err != nil {
		return err
	}
	if m.complete(s.UserID) {
		srv.Matches.BroadcastToMembers(m, packet.MatchCompleteFrame())
		srv.Matches.BroadcastState(m)
	}
	return nil
}

func (srv *Server) handleMatchAbort(_ context.Context, s *Session, _ packet.Packet) error {
	m, err := srv.hostMatch(s, "abort the match")
	if err != nil {
		return err
	}
	m.abort()
	srv.Matches.BroadcastToMembers(m, packet.MatchCompleteFrame())
	srv.Matches.BroadcastState(m)
	srv.log.Info().Int32("match_id", m.ID()).Msg("match aborted")
	return nil
}
