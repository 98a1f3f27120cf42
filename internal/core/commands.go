package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vovakirdan/bancho-server/internal/packet"
	"github.com/vovakirdan/bancho-server/internal/store"
)

// commandFunc executes one bot command. target is the channel the
// command was issued in, or the bot's username for private commands.
type commandFunc func(ctx context.Context, s *Session, target string, args []string) (string, error)

type command struct {
	name       string
	usage      string
	privileges store.Privileges
	global     bool // invocable from any channel, not only a PM to the bot
	needsMatch bool
	fn         commandFunc
}

// CommandSet is the bot's command table. Commands are resolved by their
// first word; a sender lacking the required privilege bits is told so
// rather than ignored.
type CommandSet struct {
	srv      *Server
	commands map[string]command
}

func newCommandSet(srv *Server) *CommandSet {
	cs := &CommandSet{
		srv:      srv,
		commands: make(map[string]command),
	}
	cs.add(command{
		name:   "help",
		usage:  "!help",
		global: true,
		fn:     cs.cmdHelp,
	})
	cs.add(command{
		name:   "roll",
		usage:  "!roll [max]",
		global: true,
		fn:     cs.cmdRoll,
	})
	cs.add(command{
		name:       "mp",
		usage:      "!mp <start|abort|host>",
		global:     true,
		needsMatch: true,
		fn:         cs.cmdMultiplayer,
	})
	cs.add(command{
		name:       "silence",
		usage:      "!silence <username>",
		privileges: store.PrivilegeModerator,
		fn:         cs.cmdSilence,
	})
	return cs
}

func (cs *CommandSet) add(c command) { cs.commands[c.name] = c }

// Handle inspects a chat message for a bot command and runs it. The
// returned reply is delivered by the caller; handled is false when the
// message is ordinary chat.
func (cs *CommandSet) Handle(ctx context.Context, s *Session, target, text string) (string, bool) {
	if reply, ok := cs.handleNowPlaying(ctx, text); ok {
		return reply, true
	}
	if !strings.HasPrefix(text, "!") {
		return "", false
	}

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", false
	}
	cmd, ok := cs.commands[strings.ToLower(fields[0])]
	if !ok {
		return "", false
	}

	if cmd.privileges != 0 && !s.Privileges.Has(cmd.privileges) {
		return "You are not allowed to use that command.", true
	}
	if !cmd.global && !strings.EqualFold(target, cs.srv.BotName()) {
		return fmt.Sprintf("%s only works in a private message to %s.", cmd.usage, cs.srv.BotName()), true
	}
	if cmd.needsMatch {
		matchID := s.MatchID()
		if matchID == 0 || target != ChannelName(matchID) {
			return fmt.Sprintf("%s only works inside your match channel.", cmd.usage), true
		}
	}

	reply, err := cmd.fn(ctx, s, target, fields[1:])
	if err != nil {
		cs.srv.log.Warn().
			Err(err).
			Str("command", cmd.name).
			Int64("user_id", s.UserID).
			Msg("command failed")
		return fmt.Sprintf("Usage: %s", cmd.usage), true
	}
	return reply, true
}

// handleNowPlaying answers /np actions by describing the linked
// beatmap. The client formats these as an ACTION with a /b/<id> link.
func (cs *CommandSet) handleNowPlaying(ctx context.Context, text string) (string, bool) {
	if !strings.HasPrefix(text, "\x01ACTION") || !strings.Contains(text, "/b/") {
		return "", false
	}
	idx := strings.Index(text, "/b/")
	rest := text[idx+len("/b/"):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", false
	}
	beatmapID, err := strconv.ParseInt(rest[:end], 10, 32)
	if err != nil {
		return "", false
	}

	desc, err := cs.srv.beatmaps.Describe(ctx, int32(beatmapID))
	if err != nil {
		cs.srv.log.Warn().Err(err).Int64("beatmap_id", beatmapID).Msg("describe beatmap")
		return "Could not look up that beatmap.", true
	}
	return desc, true
}

func (cs *CommandSet) cmdHelp(_ context.Context, s *Session, _ string, _ []string) (string, error) {
	names := make([]string, 0, len(cs.commands))
	for _, c := range cs.commands {
		if c.privileges != 0 && !s.Privileges.Has(c.privileges) {
			continue
		}
		names = append(names, c.usage)
	}
	sort.Strings(names)
	return "Commands: " + strings.Join(names, ", "), nil
}

func (cs *CommandSet) cmdRoll(_ context.Context, s *Session, _ string, args []string) (string, error) {
	bound := 100
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return "", fmt.Errorf("invalid roll bound %q", args[0])
		}
		bound = n
	}
	return fmt.Sprintf("%s rolls %d point(s)", s.Username, rand.IntN(bound)+1), nil
}

// cmdMultiplayer covers the host-side match controls reachable from
// chat: start, abort and host transfer by username.
func (cs *CommandSet) cmdMultiplayer(_ context.Context, s *Session, _ string, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("missing subcommand")
	}
	m := cs.srv.Matches.GetForSession(s)
	if m == nil {
		return "", ErrNotInMatch
	}
	if !m.IsHost(s.UserID) && !s.Privileges.IsStaff() {
		return "Only the host can control the match.", nil
	}

	switch strings.ToLower(args[0]) {
	case "start":
		playing := m.start()
		frame := packet.MatchFrame(packet.SrvMatchStart, m.State(), false)
		for _, id := range playing {
			if member := cs.srv.Sessions.GetByID(id); member != nil {
				member.Enqueue(frame)
			}
		}
		cs.srv.Matches.BroadcastState(m)
		return "Match started.", nil
	case "abort":
		m.abort()
		cs.srv.Matches.BroadcastState(m)
		return "Match aborted.", nil
	case "host":
		if len(args) < 2 {
			return "", fmt.Errorf("missing username")
		}
		target := cs.srv.Sessions.GetByUsername(strings.Join(args[1:], " "))
		if target == nil {
			return "No such user online.", nil
		}
		if !m.setHost(target.UserID) {
			return fmt.Sprintf("%s is not in this match.", target.Username), nil
		}
		target.Enqueue(packet.MatchTransferHostFrame())
		cs.srv.Matches.BroadcastState(m)
		return fmt.Sprintf("%s is now the host.", target.Username), nil
	default:
		return "", fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func (cs *CommandSet) cmdSilence(ctx context.Context, _ *Session, _ string, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("missing username")
	}
	target := cs.srv.Sessions.GetByUsername(strings.Join(args, " "))
	if target == nil {
		return "No such user online.", nil
	}
	if target.Privileges.IsStaff() || target.Privileges.Has(store.PrivilegeBot) {
		return "That user cannot be silenced.", nil
	}

	until := time.Now().Add(cs.srv.opts.SilenceDuration)
	target.Silence(until)
	if err := cs.srv.users.SetSilencedUntil(ctx, target.UserID, until); err != nil {
		cs.srv.log.Error().Err(err).Int64("user_id", target.UserID).Msg("persist silence")
	}
	cs.srv.notifySilenced(target)
	return fmt.Sprintf("%s has been silenced.", target.Username), nil
}
