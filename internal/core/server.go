package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/bancho-server/internal/metrics"
	"github.com/vovakirdan/bancho-server/internal/packet"
	"github.com/vovakirdan/bancho-server/internal/store"
)

// BeatmapResolver is the external beatmap/performance collaborator.
// Implementations are called off the hot path and never while any
// registry lock is held.
type BeatmapResolver interface {
	// Describe returns a short human-readable description of a beatmap.
	Describe(ctx context.Context, beatmapID int32) (string, error)
}

// Options configures the protocol core.
type Options struct {
	BotName         string
	PingTimeout     time.Duration
	SweepInterval   time.Duration
	ChatBurst       int
	ChatWindow      time.Duration
	SilenceDuration time.Duration
	Channels        []ChannelConfig
}

// Server is the protocol core: it owns the session, channel and match
// registries and every packet handler. Handlers receive their
// collaborators through this struct, never through globals.
type Server struct {
	log      *zerolog.Logger
	opts     Options
	users    store.Store
	beatmaps BeatmapResolver

	Sessions   *SessionRegistry
	Channels   *ChannelRegistry
	Matches    *MatchRepository
	Counters   *metrics.Collector
	dispatcher *Dispatcher

	publicFilter  *ChatFilter
	privateFilter *ChatFilter
	commands      *CommandSet

	// spectateMu serializes all mutations of the spectator graph so a
	// start/stop pair can never interleave with another operation on
	// the same pair.
	spectateMu sync.Mutex

	bot *Session
}

// NewServer wires the protocol core together. The handler table is
// assembled eagerly; a duplicate registration fails construction.
func NewServer(logger *zerolog.Logger, users store.Store, botUser *store.User, beatmaps BeatmapResolver, opts Options) (*Server, error) {
	counters := metrics.NewCollector()
	sessions := NewSessionRegistry(logger, opts.PingTimeout, opts.SweepInterval)
	channels := NewChannelRegistry(logger, sessions)
	channels.Provision(opts.Channels)

	srv := &Server{
		log:        logger,
		opts:       opts,
		users:      users,
		beatmaps:   beatmaps,
		Sessions:   sessions,
		Channels:   channels,
		Matches:    NewMatchRepository(logger, sessions, channels),
		Counters:   counters,
		dispatcher: NewDispatcher(logger, counters),
	}

	srv.publicFilter = NewChatFilter(logger,
		NewLimiter(opts.ChatBurst, opts.ChatWindow), opts.SilenceDuration, users, sessions)
	srv.privateFilter = NewChatFilter(logger,
		NewLimiter(opts.ChatBurst, opts.ChatWindow), opts.SilenceDuration, users, sessions)
	srv.commands = newCommandSet(srv)

	sessions.OnSessionCreated = func(s *Session) {
		logger.Info().Int64("user_id", s.UserID).Str("username", s.Username).Msg("session created")
	}
	sessions.OnSessionRemoved = srv.cleanupSession

	srv.bot = sessions.CreateBot(botUser)

	if err := srv.registerHandlers(); err != nil {
		return nil, fmt.Errorf("register handlers: %w", err)
	}
	return srv, nil
}

// Run starts the background eviction sweep and blocks until the
// context is cancelled.
func (srv *Server) Run(ctx context.Context) {
	srv.Sessions.Run(ctx)
}

// Dispatch is the transport layer's entry point for one inbound frame.
func (srv *Server) Dispatch(ctx context.Context, s *Session, p packet.Packet) {
	srv.dispatcher.Dispatch(ctx, s, p)
}

// BotName returns the in-process bot's username.
func (srv *Server) BotName() string { return srv.bot.Username }

// Login creates a session for an authenticated user and replays the
// login packet sequence to it. A previous session for the same user is
// force-disconnected first (last login wins).
func (srv *Server) Login(ctx context.Context, userID int64) (*Session, error) {
	user, err := srv.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	s, evicted := srv.Sessions.Create(user)
	if evicted != nil {
		evicted.Enqueue(packet.Notification("You signed in from another location."))
		evicted.Close()
		srv.Sessions.Broadcast(packet.UserLogoutFrame(int32(evicted.UserID)), s.UserID)
	}

	s.Enqueue(packet.LoginReply(int32(s.UserID)))
	s.Enqueue(packet.ProtocolVersionFrame())
	s.Enqueue(packet.PrivilegesFrame(int32(s.ClientPrivileges())))

	friends, err := srv.users.ListFriendIDs(ctx, s.UserID)
	if err != nil {
		srv.log.Error().Err(err).Int64("user_id", s.UserID).Msg("load friend list")
	}
	ids := make([]int32, 0, len(friends))
	for _, id := range friends {
		ids = append(ids, int32(id))
	}
	s.Enqueue(packet.FriendsList(ids))

	for _, c := range srv.Channels.VisibleTo(s) {
		s.Enqueue(packet.ChannelInfo(c.Name, c.Description, uint16(c.MemberCount())))
	}
	s.Enqueue(packet.ChannelInfoEnd())

	s.Enqueue(packet.UserPresenceFrame(s.Presence()))
	s.Enqueue(packet.UserStatsFrame(s.Stats()))
	for _, other := range srv.Sessions.Snapshot() {
		if other.UserID == s.UserID {
			continue
		}
		s.Enqueue(packet.UserPresenceFrame(other.Presence()))
		other.Enqueue(packet.UserPresenceFrame(s.Presence()))
	}

	if s.IsSilenced(time.Now()) {
		remaining := int32(time.Until(s.SilencedUntil()) / time.Second)
		s.Enqueue(packet.SilenceEndFrame(remaining))
	}

	s.Enqueue(packet.Notification(fmt.Sprintf("Welcome back, %s!", s.Username)))
	return s, nil
}

// Logout removes the session and broadcasts its departure.
func (srv *Server) Logout(s *Session) {
	srv.Sessions.Remove(s)
	s.Close()
	srv.Sessions.Broadcast(packet.UserLogoutFrame(int32(s.UserID)), s.UserID)
}

// cleanupSession detaches a removed session from every shared
// structure: its match, the spectator graph and all channels. Runs for
// every removal path (logout, eviction, login takeover).
func (srv *Server) cleanupSession(s *Session) {
	srv.Matches.Part(s)
	srv.Matches.PartLobby(s)

	srv.spectateMu.Lock()
	if targetID := s.Spectating(); targetID != 0 {
		srv.detachSpectatorLocked(s, srv.Sessions.GetByID(targetID), targetID)
	}
	for _, watcherID := range s.Spectators() {
		if watcher := srv.Sessions.GetByID(watcherID); watcher != nil {
			srv.detachSpectatorLocked(watcher, s, s.UserID)
		}
	}
	srv.spectateMu.Unlock()

	srv.Channels.LeaveAll(s)
	srv.publicFilter.limiter.Forget(s.Token)
	srv.privateFilter.limiter.Forget(s.Token)
	srv.log.Info().Int64("user_id", s.UserID).Str("username", s.Username).Msg("session removed")
}

// spectatorChannelName names the synthetic channel shadowing a host's
// spectators.
func spectatorChannelName(hostID int64) string {
	return fmt.Sprintf("%s%d", SpectatorChannelPrefix, hostID)
}

// startSpectating wires s as a watcher of target, keeping the
// spectating-reference and the target's spectator set consistent.
func (srv *Server) startSpectating(s *Session, target *Session) {
	srv.spectateMu.Lock()
	defer srv.spectateMu.Unlock()

	if prevID := s.Spectating(); prevID != 0 {
		srv.detachSpectatorLocked(s, srv.Sessions.GetByID(prevID), prevID)
	}

	s.SetSpectating(target.UserID)
	target.AddSpectator(s.UserID)

	channel := srv.Channels.CreateSynthetic(spectatorChannelName(target.UserID))
	if channel.add(target.UserID) {
		target.Enqueue(packet.ChannelJoinSuccess(channel.Name))
	}
	channel.add(s.UserID)
	s.Enqueue(packet.ChannelJoinSuccess(channel.Name))

	target.Enqueue(packet.SpectatorJoinedFrame(int32(s.UserID)))
	for _, fellowID := range target.Spectators() {
		if fellowID == s.UserID {
			continue
		}
		if fellow := srv.Sessions.GetByID(fellowID); fellow != nil {
			fellow.Enqueue(packet.FellowSpectatorJoinedFrame(int32(s.UserID)))
		}
	}
}

// stopSpectating detaches s from whoever it is watching.
func (srv *Server) stopSpectating(s *Session) {
	srv.spectateMu.Lock()
	defer srv.spectateMu.Unlock()

	targetID := s.Spectating()
	if targetID == 0 {
		return
	}
	srv.detachSpectatorLocked(s, srv.Sessions.GetByID(targetID), targetID)
}

// detachSpectatorLocked unwires one watcher/target pair. The target
// session may already be gone; the id is passed separately so channel
// teardown still works.
func (srv *Server) detachSpectatorLocked(watcher, target *Session, targetID int64) {
	watcher.SetSpectating(0)
	srv.Channels.Leave(spectatorChannelName(targetID), watcher)

	if target == nil {
		return
	}
	target.RemoveSpectator(watcher.UserID)
	target.Enqueue(packet.SpectatorLeftFrame(int32(watcher.UserID)))
	for _, fellowID := range target.Spectators() {
		if fellow := srv.Sessions.GetByID(fellowID); fellow != nil {
			fellow.Enqueue(packet.FellowSpectatorLeftFrame(int32(watcher.UserID)))
		}
	}
	// The host leaves the shadow channel once nobody watches anymore.
	if len(target.Spectators()) == 0 {
		srv.Channels.Leave(spectatorChannelName(targetID), target)
	}
}

// notifySilenced tells a freshly silenced session about its silence and
// broadcasts it so other clients suppress the user's messages.
func (srv *Server) notifySilenced(s *Session) {
	remaining := int32(time.Until(s.SilencedUntil()) / time.Second)
	s.Enqueue(packet.SilenceEndFrame(remaining))
	s.Enqueue(packet.Notification(
		fmt.Sprintf("You have been silenced for %d seconds.", remaining)))
	srv.Sessions.Broadcast(packet.UserSilencedFrame(int32(s.UserID)), s.UserID)
}

// sendBotMessage delivers a channel-visible message from the bot.
func (srv *Server) sendBotMessage(channelName, text string) {
	srv.Channels.SendToChannel(channelName, packet.Message{
		Sender:   srv.bot.Username,
		Text:     text,
		SenderID: int32(srv.bot.UserID),
	})
}

// sendBotPM delivers a private bot reply to one session.
func (srv *Server) sendBotPM(to *Session, text string) {
	to.Enqueue(packet.ChatMessage(packet.Message{
		Sender:   srv.bot.Username,
		Text:     text,
		Target:   to.Username,
		SenderID: int32(srv.bot.UserID),
	}))
}
