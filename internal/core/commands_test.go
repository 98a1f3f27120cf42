package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/bancho-server/internal/packet"
	"github.com/vovakirdan/bancho-server/internal/store"
)

func TestHandleIgnoresPlainChat(t *testing.T) {
	srv, st := newTestServer(t)
	s := loginUser(t, srv, st, "alice")

	if _, handled := srv.commands.Handle(context.Background(), s, "#osu", "hello there"); handled {
		t.Fatalf("plain chat treated as command")
	}
	if _, handled := srv.commands.Handle(context.Background(), s, "#osu", "!unknowncmd"); handled {
		t.Fatalf("unknown command reported as handled")
	}
}

func TestRollCommand(t *testing.T) {
	srv, st := newTestServer(t)
	s := loginUser(t, srv, st, "alice")

	reply, handled := srv.commands.Handle(context.Background(), s, "#osu", "!roll 1")
	if !handled {
		t.Fatalf("roll not handled")
	}
	if reply != "alice rolls 1 point(s)" {
		t.Fatalf("unexpected roll reply: %q", reply)
	}

	reply, _ = srv.commands.Handle(context.Background(), s, "#osu", "!roll nonsense")
	if !strings.HasPrefix(reply, "Usage:") {
		t.Fatalf("bad argument should yield usage, got %q", reply)
	}
}

func TestHelpHidesPrivilegedCommands(t *testing.T) {
	srv, st := newTestServer(t)
	s := loginUser(t, srv, st, "alice")

	reply, handled := srv.commands.Handle(context.Background(), s, "#osu", "!help")
	if !handled {
		t.Fatalf("help not handled")
	}
	if !strings.Contains(reply, "!roll") {
		t.Fatalf("help missing roll: %q", reply)
	}
	if strings.Contains(reply, "!silence") {
		t.Fatalf("help lists staff command to regular user: %q", reply)
	}
}

func TestSilenceCommandRequiresPrivileges(t *testing.T) {
	srv, st := newTestServer(t)
	s := loginUser(t, srv, st, "alice")

	reply, handled := srv.commands.Handle(context.Background(), s, "#osu", "!silence bob")
	if !handled {
		t.Fatalf("silence not handled")
	}
	if !strings.Contains(reply, "not allowed") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestMpCommandRequiresMatchChannel(t *testing.T) {
	srv, st := newTestServer(t)
	s := loginUser(t, srv, st, "alice")

	reply, handled := srv.commands.Handle(context.Background(), s, "#osu", "!mp start")
	if !handled {
		t.Fatalf("mp not handled")
	}
	if !strings.Contains(reply, "match channel") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestMpStartAndAbort(t *testing.T) {
	srv, st := newTestServer(t)
	host := loginUser(t, srv, st, "host")

	m := srv.Matches.Create(packet.MatchState{Name: "room"}, host)
	channel := ChannelName(m.ID())

	reply, handled := srv.commands.Handle(context.Background(), host, channel, "!mp start")
	if !handled || reply != "Match started." {
		t.Fatalf("mp start: handled=%v reply=%q", handled, reply)
	}
	if !m.State().InProgress {
		t.Fatalf("match not started")
	}

	reply, _ = srv.commands.Handle(context.Background(), host, channel, "!mp abort")
	if reply != "Match aborted." {
		t.Fatalf("mp abort reply: %q", reply)
	}
	if m.State().InProgress {
		t.Fatalf("match still in progress")
	}
}

func TestMpHostTransfer(t *testing.T) {
	srv, st := newTestServer(t)
	host := loginUser(t, srv, st, "host")
	player := loginUser(t, srv, st, "player")

	m := srv.Matches.Create(packet.MatchState{Name: "room"}, host)
	if err := srv.Matches.Join(player, m.ID(), ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	channel := ChannelName(m.ID())

	reply, _ := srv.commands.Handle(context.Background(), host, channel, "!mp host player")
	if reply != "player is now the host." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if m.HostID() != player.UserID {
		t.Fatalf("host seat not moved")
	}

	// The old host lost match control.
	reply, _ = srv.commands.Handle(context.Background(), host, channel, "!mp start")
	if !strings.Contains(reply, "Only the host") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestNowPlayingLookup(t *testing.T) {
	srv, st := newTestServer(t)
	s := loginUser(t, srv, st, "alice")

	text := "\x01ACTION is listening to [https://osu.ppy.sh/b/123 artist - song]\x01"
	reply, handled := srv.commands.Handle(context.Background(), s, "#osu", text)
	if !handled {
		t.Fatalf("now-playing not handled")
	}
	if reply != "beatmap 123" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestStaffSilenceCommand(t *testing.T) {
	srv, st := newTestServer(t)
	target := loginUser(t, srv, st, "target")

	modUser, err := st.CreateUser(context.Background(), "mod", "hash", "US")
	if err != nil {
		t.Fatalf("create mod: %v", err)
	}
	if err := st.SetPrivileges(context.Background(), modUser.ID, modUser.Privileges|store.PrivilegeModerator); err != nil {
		t.Fatalf("set privileges: %v", err)
	}
	mod, err := srv.Login(context.Background(), modUser.ID)
	if err != nil {
		t.Fatalf("login mod: %v", err)
	}

	reply, handled := srv.commands.Handle(context.Background(), mod, srv.BotName(), "!silence target")
	if !handled || !strings.Contains(reply, "silenced") {
		t.Fatalf("silence: handled=%v reply=%q", handled, reply)
	}
	if !target.IsSilenced(time.Now()) {
		t.Fatalf("target not silenced")
	}
}

func TestNonGlobalCommandRequiresBotPM(t *testing.T) {
	srv, st := newTestServer(t)
	target := loginUser(t, srv, st, "target")

	modUser, err := st.CreateUser(context.Background(), "mod", "hash", "US")
	if err != nil {
		t.Fatalf("create mod: %v", err)
	}
	if err := st.SetPrivileges(context.Background(), modUser.ID, modUser.Privileges|store.PrivilegeModerator); err != nil {
		t.Fatalf("set privileges: %v", err)
	}
	mod, err := srv.Login(context.Background(), modUser.ID)
	if err != nil {
		t.Fatalf("login mod: %v", err)
	}

	reply, handled := srv.commands.Handle(context.Background(), mod, "#osu", "!silence target")
	if !handled || !strings.Contains(reply, "private message") {
		t.Fatalf("channel silence: handled=%v reply=%q", handled, reply)
	}
	if target.IsSilenced(time.Now()) {
		t.Fatalf("command ran despite being issued in a channel")
	}

	// Global commands stay usable everywhere.
	if reply, _ := srv.commands.Handle(context.Background(), mod, "#osu", "!roll 1"); !strings.Contains(reply, "rolls") {
		t.Fatalf("global command blocked in channel: %q", reply)
	}
}
