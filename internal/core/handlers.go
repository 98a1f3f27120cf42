package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vovakirdan/bancho-server/internal/packet"
)

// loginGuard ignores a client logout arriving right after login.
// Unstable clients bounce immediately and would otherwise wipe the
// session they just opened.
const loginGuard = 2 * time.Second

// registerHandlers assembles the packet-type -> handler table. Every
// inbound packet type the server understands is bound here, once.
func (srv *Server) registerHandlers() error {
	d := srv.dispatcher

	registrations := []error{
		d.RegisterSuppressed(packet.ClientPing, srv.handlePing),
		d.Register(packet.ClientLogout, srv.handleLogout),
		d.Register(packet.ClientChangeAction, srv.handleChangeAction),
		d.Register(packet.ClientRequestStatusUpdate, srv.handleRequestStatusUpdate),
		d.Register(packet.ClientUserStatsRequest, srv.handleUserStatsRequest),
		d.Register(packet.ClientUserPresenceRequest, srv.handleUserPresenceRequest),
		d.Register(packet.ClientSendPublicMessage, srv.handlePublicMessage),
		d.Register(packet.ClientSendPrivateMessage, srv.handlePrivateMessage),
		d.Register(packet.ClientChannelJoin, srv.handleChannelJoin),
		d.Register(packet.ClientChannelPart, srv.handleChannelPart),
		d.Register(packet.ClientSetAwayMessage, srv.handleSetAwayMessage),
		d.Register(packet.ClientFriendAdd, srv.handleFriendAdd),
		d.Register(packet.ClientFriendRemove, srv.handleFriendRemove),
		d.Register(packet.ClientTogglePMBlock, srv.handleTogglePMBlock),
		d.Register(packet.ClientStartSpectating, srv.handleStartSpectating),
		d.Register(packet.ClientStopSpectating, srv.handleStopSpectating),
		d.RegisterSuppressed(packet.ClientSpectateFrames, srv.handleSpectateFrames),
		d.Register(packet.ClientCantSpectate, srv.handleCantSpectate),
		d.Register(packet.ClientJoinLobby, srv.handleJoinLobby),
		d.Register(packet.ClientPartLobby, srv.handlePartLobby),
		d.Register(packet.ClientCreateMatch, srv.handleCreateMatch),
		d.Register(packet.ClientJoinMatch, srv.handleJoinMatch),
		d.Register(packet.ClientPartMatch, srv.handlePartMatch),
		d.Register(packet.ClientMatchChangeSettings, srv.handleMatchChangeSettings),
		d.Register(packet.ClientMatchChangePassword, srv.handleMatchChangePassword),
		d.Register(packet.ClientMatchReady, srv.handleMatchReady),
		d.Register(packet.ClientMatchNotReady, srv.handleMatchNotReady),
		d.Register(packet.ClientMatchNoBeatmap, srv.handleMatchNoBeatmap),
		d.Register(packet.ClientMatchHasBeatmap, srv.handleMatchHasBeatmap),
		d.Register(packet.ClientMatchChangeSlot, srv.handleMatchChangeSlot),
		d.Register(packet.ClientMatchLock, srv.handleMatchLock),
		d.Register(packet.ClientMatchChangeMods, srv.handleMatchChangeMods),
		d.Register(packet.ClientMatchChangeTeam, srv.handleMatchChangeTeam),
		d.Register(packet.ClientMatchTransferHost, srv.handleMatchTransferHost),
		d.Register(packet.ClientMatchInvite, srv.handleMatchInvite),
		d.Register(packet.ClientMatchStart, srv.handleMatchStart),
		d.Register(packet.ClientMatchLoadComplete, srv.handleMatchLoadComplete),
		d.RegisterSuppressed(packet.ClientMatchScoreUpdate, srv.handleMatchScoreUpdate),
		d.Register(packet.ClientMatchSkipRequest, srv.handleMatchSkipRequest),
		d.Register(packet.ClientMatchFailed, srv.handleMatchFailed),
		d.Register(packet.ClientMatchComplete, srv.handleMatchComplete),
		d.Register(packet.ClientMatchAbort, srv.handleMatchAbort),
	}
	for _, err := range registrations {
		if err != nil {
			return err
		}
	}
	return nil
}

func (srv *Server) handlePing(_ context.Context, s *Session, _ packet.Packet) error {
	s.Touch(time.Now())
	s.Enqueue(packet.PongFrame())
	return nil
}

func (srv *Server) handleLogout(_ context.Context, s *Session, _ packet.Packet) error {
	if time.Since(s.LoginTime) < loginGuard {
		return nil
	}
	srv.Logout(s)
	return nil
}

func (srv *Server) handleChangeAction(_ context.Context, s *Session, p packet.Packet) error {
	action, err := packet.DecodeAction(p.Payload)
	if err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	s.SetStatus(Status{
		Action:          action.ID,
		Text:            action.Text,
		BeatmapChecksum: action.BeatmapChecksum,
		Mods:            action.Mods,
		Mode:            action.Mode,
		BeatmapID:       action.BeatmapID,
	})
	srv.Sessions.Broadcast(packet.UserStatsFrame(s.Stats()), 0)
	return nil
}

func (srv *Server) handleRequestStatusUpdate(_ context.Context, s *Session, _ packet.Packet) error {
	s.Enqueue(packet.UserStatsFrame(s.Stats()))
	return nil
}

// handleUserStatsRequest resolves a batch of user ids to sessions and
// replies with each one's stats, silently skipping offline ids.
func (srv *Server) handleUserStatsRequest(_ context.Context, s *Session, p packet.Packet) error {
	ids := packet.NewReader(p.Payload).Int32List()
	for _, id := range ids {
		if int64(id) == s.UserID {
			continue
		}
		if other := srv.Sessions.GetByID(int64(id)); other != nil {
			s.Enqueue(packet.UserStatsFrame(other.Stats()))
		}
	}
	return nil
}

func (srv *Server) handleUserPresenceRequest(_ context.Context, s *Session, p packet.Packet) error {
	ids := packet.NewReader(p.Payload).Int32List()
	for _, id := range ids {
		if other := srv.Sessions.GetByID(int64(id)); other != nil {
			s.Enqueue(packet.UserPresenceFrame(other.Presence()))
		}
	}
	return nil
}

func (srv *Server) handlePublicMessage(ctx context.Context, s *Session, p packet.Packet) error {
	msg, err := packet.DecodeMessage(p.Payload)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	now := time.Now()
	if s.IsSilenced(now) {
		s.Enqueue(packet.SilenceEndFrame(int32(s.SilencedUntil().Sub(now) / time.Second)))
		return nil
	}
	if !srv.publicFilter.Allow(ctx, s) {
		return nil
	}
	msg.Text = trimMessageText(msg.Text)
	if msg.Text == "" {
		return nil
	}

	target := msg.Target
	channel := srv.Channels.Get(target)
	if channel == nil {
		s.Enqueue(packet.ChannelKicked(target))
		return ErrChannelNotFound
	}
	if !channel.Contains(s.UserID) {
		// The kick makes the client close a tab it should not have open.
		s.Enqueue(packet.ChannelKicked(target))
		return fmt.Errorf("%s: %w", target, ErrChannelNotFound)
	}

	srv.Channels.SendToChannel(channel.Name, packet.Message{
		Sender:   s.Username,
		Text:     msg.Text,
		SenderID: int32(s.UserID),
	})

	if reply, handled := srv.commands.Handle(ctx, s, channel.Name, msg.Text); handled && reply != "" {
		srv.sendBotMessage(channel.Name, reply)
	}
	return nil
}

func (srv *Server) handlePrivateMessage(ctx context.Context, s *Session, p packet.Packet) error {
	msg, err := packet.DecodeMessage(p.Payload)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	now := time.Now()
	if s.IsSilenced(now) {
		s.Enqueue(packet.SilenceEndFrame(int32(s.SilencedUntil().Sub(now) / time.Second)))
		return nil
	}
	if !srv.privateFilter.Allow(ctx, s) {
		return nil
	}
	msg.Text = trimMessageText(msg.Text)
	if msg.Text == "" {
		return nil
	}

	target := srv.Sessions.GetByUsername(msg.Target)
	if target == nil {
		return fmt.Errorf("pm target %q: %w", msg.Target, ErrSessionNotFound)
	}

	if target.UserID == srv.bot.UserID {
		if reply, handled := srv.commands.Handle(ctx, s, srv.bot.Username, msg.Text); handled {
			srv.sendBotPM(s, reply)
		}
		return nil
	}

	if target.BlocksNonFriendPM() && !s.Privileges.IsStaff() {
		friends, err := srv.users.ListFriendIDs(ctx, target.UserID)
		if err != nil {
			return fmt.Errorf("check friendship: %w", err)
		}
		isFriend := false
		for _, id := range friends {
			if id == s.UserID {
				isFriend = true
				break
			}
		}
		if !isFriend {
			s.Enqueue(packet.UserPMBlockedFrame(target.Username))
			return nil
		}
	}

	if target.IsSilenced(now) {
		s.Enqueue(packet.TargetSilencedFrame(target.Username))
		return nil
	}

	if away := target.AwayMessage(); away != "" {
		s.Enqueue(packet.ChatMessage(packet.Message{
			Sender:   target.Username,
			Text:     fmt.Sprintf("\x01ACTION is away: %s\x01", away),
			Target:   s.Username,
			SenderID: int32(target.UserID),
		}))
	}

	target.Enqueue(packet.ChatMessage(packet.Message{
		Sender:   s.Username,
		Text:     msg.Text,
		Target:   target.Username,
		SenderID: int32(s.UserID),
	}))
	return nil
}

func (srv *Server) handleChannelJoin(_ context.Context, s *Session, p packet.Packet) error {
	name := packet.NewReader(p.Payload).String()
	if err := srv.Channels.Join(name, s); err != nil {
		s.Enqueue(packet.Notification(fmt.Sprintf("Could not join %s.", name)))
		return fmt.Errorf("join %s: %w", name, err)
	}
	return nil
}

func (srv *Server) handleChannelPart(_ context.Context, s *Session, p packet.Packet) error {
	name := packet.NewReader(p.Payload).String()
	srv.Channels.Leave(name, s)
	return nil
}

func (srv *Server) handleSetAwayMessage(_ context.Context, s *Session, p packet.Packet) error {
	msg, err := packet.DecodeMessage(p.Payload)
	if err != nil {
		return fmt.Errorf("decode away message: %w", err)
	}
	s.SetAwayMessage(msg.Text)
	if msg.Text == "" {
		s.Enqueue(packet.Notification("You are no longer marked as away."))
	} else {
		s.Enqueue(packet.Notification(fmt.Sprintf("You are now marked as away: %s", msg.Text)))
	}
	return nil
}

func (srv *Server) handleFriendAdd(ctx context.Context, s *Session, p packet.Packet) error {
	friendID := packet.NewReader(p.Payload).Int32()
	if err := srv.users.AddFriend(ctx, s.UserID, int64(friendID)); err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	return nil
}

func (srv *Server) handleFriendRemove(ctx context.Context, s *Session, p packet.Packet) error {
	friendID := packet.NewReader(p.Payload).Int32()
	if err := srv.users.RemoveFriend(ctx, s.UserID, int64(friendID)); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

func (srv *Server) handleTogglePMBlock(_ context.Context, s *Session, p packet.Packet) error {
	value := packet.NewReader(p.Payload).Int32()
	s.SetBlockNonFriendPM(value != 0)
	return nil
}

func (srv *Server) handleStartSpectating(_ context.Context, s *Session, p packet.Packet) error {
	targetID := packet.NewReader(p.Payload).Int32()
	target := srv.Sessions.GetByID(int64(targetID))
	if target == nil || target.UserID == s.UserID {
		return fmt.Errorf("spectate target %d: %w", targetID, ErrSessionNotFound)
	}
	srv.startSpectating(s, target)
	return nil
}

func (srv *Server) handleStopSpectating(_ context.Context, s *Session, _ packet.Packet) error {
	srv.stopSpectating(s)
	return nil
}

// handleSpectateFrames relays raw replay frames to every watcher.
func (srv *Server) handleSpectateFrames(_ context.Context, s *Session, p packet.Packet) error {
	frame := packet.SpectateFramesFrame(p.Payload)
	for _, watcherID := range s.Spectators() {
		if watcher := srv.Sessions.GetByID(watcherID); watcher != nil {
			watcher.Enqueue(frame)
		}
	}
	return nil
}

// handleCantSpectate tells the host and fellow watchers that this
// spectator lacks the beatmap.
func (srv *Server) handleCantSpectate(_ context.Context, s *Session, _ packet.Packet) error {
	targetID := s.Spectating()
	if targetID == 0 {
		return nil
	}
	target := srv.Sessions.GetByID(targetID)
	if target == nil {
		return nil
	}
	frame := packet.SpectatorCantMapFrame(int32(s.UserID))
	target.Enqueue(frame)
	for _, fellowID := range target.Spectators() {
		if fellowID == s.UserID {
			continue
		}
		if fellow := srv.Sessions.GetByID(fellowID); fellow != nil {
			fellow.Enqueue(frame)
		}
	}
	return nil
}

// trimMessageText keeps chat payloads inside sane bounds. Truncation
// backs up to a rune boundary so receivers never see a split rune.
func trimMessageText(text string) string {
	const maxLen = 1024
	text = strings.TrimSpace(text)
	if len(text) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
