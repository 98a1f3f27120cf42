package core

import (
	"bytes"
	"testing"

	"github.com/vovakirdan/bancho-server/internal/packet"
)

func TestLobbyObservesMatchLifecycle(t *testing.T) {
	srv, st := newTestServer(t)
	host := loginUser(t, srv, st, "host")
	player := loginUser(t, srv, st, "player")
	watcher := loginUser(t, srv, st, "watcher")

	dispatch(srv, watcher, packet.ClientJoinLobby, nil)

	state := packet.MatchState{Name: "room", Password: "secret"}
	for i := range state.SlotStatuses {
		state.SlotStatuses[i] = packet.SlotStatusOpen
	}
	dispatch(srv, host, packet.ClientCreateMatch, packet.EncodeMatch(state, false))

	m := srv.Matches.GetForSession(host)
	if m == nil {
		t.Fatalf("match not created")
	}
	if !bytes.Contains(watcher.DrainOutbound(), packet.MatchFrame(packet.SrvNewMatch, m.State(), true)) {
		t.Fatalf("lobby did not observe the new match")
	}

	join := packet.NewWriter().Int32(m.ID()).String("wrong").Bytes()
	dispatch(srv, player, packet.ClientJoinMatch, join)
	if !bytes.Contains(player.DrainOutbound(), packet.MatchJoinFailFrame()) {
		t.Fatalf("wrong password not rejected")
	}

	join = packet.NewWriter().Int32(m.ID()).String("secret").Bytes()
	dispatch(srv, player, packet.ClientJoinMatch, join)
	if !bytes.Contains(player.DrainOutbound(), packet.MatchFrame(packet.SrvMatchJoinSuccess, m.State(), false)) {
		t.Fatalf("join with correct password failed")
	}

	next := m.State()
	next.BeatmapName = "artist - song"
	next.BeatmapChecksum = "abc"
	host.DrainOutbound()
	player.DrainOutbound()
	dispatch(srv, host, packet.ClientMatchChangeSettings, packet.EncodeMatch(next, false))

	update := packet.MatchFrame(packet.SrvUpdateMatch, m.State(), false)
	if !bytes.Contains(host.DrainOutbound(), update) {
		t.Fatalf("host did not receive the settings update")
	}
	if !bytes.Contains(player.DrainOutbound(), update) {
		t.Fatalf("member did not receive the settings update")
	}

	watcher.DrainOutbound()
	dispatch(srv, player, packet.ClientPartMatch, nil)
	dispatch(srv, host, packet.ClientPartMatch, nil)
	if !bytes.Contains(watcher.DrainOutbound(), packet.DisposeMatchFrame(m.ID())) {
		t.Fatalf("lobby did not observe the dispose")
	}
	if srv.Matches.Get(m.ID()) != nil {
		t.Fatalf("emptied match still listed")
	}
}

func TestNonHostSettingsChangeRejected(t *testing.T) {
	srv, st := newTestServer(t)
	host := loginUser(t, srv, st, "host")
	player := loginUser(t, srv, st, "player")

	m := srv.Matches.Create(packet.MatchState{Name: "room"}, host)
	if err := srv.Matches.Join(player, m.ID(), ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	player.DrainOutbound()

	next := m.State()
	next.Name = "hijacked"
	dispatch(srv, player, packet.ClientMatchChangeSettings, packet.EncodeMatch(next, false))

	if m.State().Name != "room" {
		t.Fatalf("non-host changed the settings")
	}
	if !bytes.Contains(player.DrainOutbound(), []byte("only the host")) {
		t.Fatalf("rejection not announced in the match channel")
	}
}

func TestPasswordChangeNotifiesMembers(t *testing.T) {
	srv, st := newTestServer(t)
	host := loginUser(t, srv, st, "host")
	player := loginUser(t, srv, st, "player")

	m := srv.Matches.Create(packet.MatchState{Name: "room"}, host)
	if err := srv.Matches.Join(player, m.ID(), ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	player.DrainOutbound()

	next := m.State()
	next.Password = "hunter2"
	dispatch(srv, host, packet.ClientMatchChangePassword, packet.EncodeMatch(next, false))

	if !bytes.Contains(player.DrainOutbound(), packet.MatchChangePasswordFrame("hunter2")) {
		t.Fatalf("password change not sent to members")
	}
	if err := m.join(99, "hunter2"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}
