package core

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/vovakirdan/bancho-server/internal/packet"
)

func dispatch(srv *Server, s *Session, t packet.Type, payload []byte) {
	srv.Dispatch(context.Background(), s, packet.Packet{Type: t, Payload: payload})
}

func TestPingHandler(t *testing.T) {
	srv, st := newTestServer(t)
	s := loginUser(t, srv, st, "alice")

	before := s.LastPing()
	time.Sleep(time.Millisecond)
	dispatch(srv, s, packet.ClientPing, nil)

	if !s.LastPing().After(before) {
		t.Fatalf("ping did not refresh liveness")
	}
	if !bytes.Equal(s.DrainOutbound(), packet.PongFrame()) {
		t.Fatalf("ping not answered with pong")
	}
}

func TestLogoutGuardIgnoresEarlyLogout(t *testing.T) {
	srv, st := newTestServer(t)
	s := loginUser(t, srv, st, "alice")

	// Right after login the logout packet is a client hiccup.
	dispatch(srv, s, packet.ClientLogout, nil)
	if srv.Sessions.GetByID(s.UserID) == nil {
		t.Fatalf("early logout removed the session")
	}

	s.LoginTime = time.Now().Add(-time.Minute)
	dispatch(srv, s, packet.ClientLogout, nil)
	if srv.Sessions.GetByID(s.UserID) != nil {
		t.Fatalf("logout ignored")
	}
}

func TestPublicMessageFanOut(t *testing.T) {
	srv, st := newTestServer(t)
	sender := loginUser(t, srv, st, "sender")
	receiver := loginUser(t, srv, st, "receiver")
	outsider := loginUser(t, srv, st, "outsider")

	if err := srv.Channels.Join("#osu", sender); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := srv.Channels.Join("#osu", receiver); err != nil {
		t.Fatalf("join: %v", err)
	}
	sender.DrainOutbound()
	receiver.DrainOutbound()

	payload := packet.NewWriter().
		String("sender").String("hello").String("#osu").Int32(0).Bytes()
	dispatch(srv, sender, packet.ClientSendPublicMessage, payload)

	want := packet.ChatMessage(packet.Message{
		Sender: "sender", Text: "hello", Target: "#osu", SenderID: int32(sender.UserID),
	})
	if !bytes.Contains(receiver.DrainOutbound(), want) {
		t.Fatalf("channel member did not receive the message")
	}
	if len(outsider.DrainOutbound()) != 0 {
		t.Fatalf("non-member received a channel message")
	}
}

func TestPublicMessageToForeignChannelKicks(t *testing.T) {
	srv, st := newTestServer(t)
	sender := loginUser(t, srv, st, "sender")
	sender.DrainOutbound()

	payload := packet.NewWriter().
		String("sender").String("hello").String("#osu").Int32(0).Bytes()
	dispatch(srv, sender, packet.ClientSendPublicMessage, payload)

	if !bytes.Contains(sender.DrainOutbound(), packet.ChannelKicked("#osu")) {
		t.Fatalf("sender not kicked out of a channel it never joined")
	}
}

func TestTrimMessageTextKeepsRuneBoundary(t *testing.T) {
	text := strings.Repeat("a", 1023) + "é"
	got := trimMessageText(text)
	if len(got) != 1023 {
		t.Fatalf("cut length = %d", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8")
	}
	if trimMessageText("  hi  ") != "hi" {
		t.Fatalf("whitespace not trimmed")
	}
}

func TestPublicCommandGetsBotReply(t *testing.T) {
	srv, st := newTestServer(t)
	sender := loginUser(t, srv, st, "sender")
	if err := srv.Channels.Join("#osu", sender); err != nil {
		t.Fatalf("join: %v", err)
	}
	sender.DrainOutbound()

	payload := packet.NewWriter().
		String("sender").String("!roll 1").String("#osu").Int32(0).Bytes()
	dispatch(srv, sender, packet.ClientSendPublicMessage, payload)

	want := packet.ChatMessage(packet.Message{
		Sender:   srv.BotName(),
		Text:     "sender rolls 1 point(s)",
		Target:   "#osu",
		SenderID: int32(srv.bot.UserID),
	})
	if !bytes.Contains(sender.DrainOutbound(), want) {
		t.Fatalf("bot reply not delivered to command issuer")
	}
}

func TestPrivateMessageDelivery(t *testing.T) {
	srv, st := newTestServer(t)
	sender := loginUser(t, srv, st, "sender")
	receiver := loginUser(t, srv, st, "receiver")

	payload := packet.NewWriter().
		String("sender").String("psst").String("receiver").Int32(0).Bytes()
	dispatch(srv, sender, packet.ClientSendPrivateMessage, payload)

	want := packet.ChatMessage(packet.Message{
		Sender: "sender", Text: "psst", Target: "receiver", SenderID: int32(sender.UserID),
	})
	if !bytes.Contains(receiver.DrainOutbound(), want) {
		t.Fatalf("private message not delivered")
	}
}

func TestPrivateMessageRespectsBlockFlag(t *testing.T) {
	srv, st := newTestServer(t)
	sender := loginUser(t, srv, st, "sender")
	receiver := loginUser(t, srv, st, "receiver")
	receiver.SetBlockNonFriendPM(true)

	payload := packet.NewWriter().
		String("sender").String("psst").String("receiver").Int32(0).Bytes()
	dispatch(srv, sender, packet.ClientSendPrivateMessage, payload)

	if len(receiver.DrainOutbound()) != 0 {
		t.Fatalf("blocked message delivered")
	}
	if !bytes.Contains(sender.DrainOutbound(), packet.UserPMBlockedFrame("receiver")) {
		t.Fatalf("sender not told about the block")
	}

	// A friend of the receiver gets through.
	if err := st.AddFriend(context.Background(), receiver.UserID, sender.UserID); err != nil {
		t.Fatalf("add friend: %v", err)
	}
	dispatch(srv, sender, packet.ClientSendPrivateMessage, payload)
	if len(receiver.DrainOutbound()) == 0 {
		t.Fatalf("friend message blocked")
	}
}

func TestPrivateMessageEchoesAwayMessage(t *testing.T) {
	srv, st := newTestServer(t)
	sender := loginUser(t, srv, st, "sender")
	receiver := loginUser(t, srv, st, "receiver")
	receiver.SetAwayMessage("brb food")

	payload := packet.NewWriter().
		String("sender").String("psst").String("receiver").Int32(0).Bytes()
	dispatch(srv, sender, packet.ClientSendPrivateMessage, payload)

	out := sender.DrainOutbound()
	if !bytes.Contains(out, []byte("brb food")) {
		t.Fatalf("away message not echoed to sender")
	}
	if len(receiver.DrainOutbound()) == 0 {
		t.Fatalf("message not delivered despite away state")
	}
}

func TestSilencedSenderIsMuted(t *testing.T) {
	srv, st := newTestServer(t)
	sender := loginUser(t, srv, st, "sender")
	receiver := loginUser(t, srv, st, "receiver")
	if err := srv.Channels.Join("#osu", sender); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := srv.Channels.Join("#osu", receiver); err != nil {
		t.Fatalf("join: %v", err)
	}
	receiver.DrainOutbound()
	sender.Silence(time.Now().Add(time.Minute))

	payload := packet.NewWriter().
		String("sender").String("hello").String("#osu").Int32(0).Bytes()
	dispatch(srv, sender, packet.ClientSendPublicMessage, payload)

	if len(receiver.DrainOutbound()) != 0 {
		t.Fatalf("silenced user's message delivered")
	}
}

func TestStatsAndPresenceRequests(t *testing.T) {
	srv, st := newTestServer(t)
	asker := loginUser(t, srv, st, "asker")
	other := loginUser(t, srv, st, "other")

	payload := packet.NewWriter().
		Int32List([]int32{int32(other.UserID), 424242}).Bytes()
	dispatch(srv, asker, packet.ClientUserStatsRequest, payload)

	out := asker.DrainOutbound()
	if !bytes.Contains(out, packet.UserStatsFrame(other.Stats())) {
		t.Fatalf("stats for online user missing")
	}

	dispatch(srv, asker, packet.ClientUserPresenceRequest, payload)
	if !bytes.Contains(asker.DrainOutbound(), packet.UserPresenceFrame(other.Presence())) {
		t.Fatalf("presence for online user missing")
	}
}

func TestChangeActionBroadcastsStats(t *testing.T) {
	srv, st := newTestServer(t)
	player := loginUser(t, srv, st, "player")
	watcher := loginUser(t, srv, st, "watcher")

	payload := packet.NewWriter().
		Uint8(ActionPlaying).
		String("artist - song").
		String("checksum").
		Uint32(0).
		Uint8(0).
		Int32(55).
		Bytes()
	dispatch(srv, player, packet.ClientChangeAction, payload)

	status := player.Status()
	if status.Action != ActionPlaying || status.BeatmapID != 55 {
		t.Fatalf("status not applied: %+v", status)
	}
	if !bytes.Contains(watcher.DrainOutbound(), packet.UserStatsFrame(player.Stats())) {
		t.Fatalf("stats change not broadcast")
	}
}

func TestSpectateHandlersRelayFrames(t *testing.T) {
	srv, st := newTestServer(t)
	host := loginUser(t, srv, st, "host")
	watcher := loginUser(t, srv, st, "watcher")

	target := packet.NewWriter().Int32(int32(host.UserID)).Bytes()
	dispatch(srv, watcher, packet.ClientStartSpectating, target)
	watcher.DrainOutbound()

	replay := []byte{1, 2, 3, 4}
	dispatch(srv, host, packet.ClientSpectateFrames, replay)
	if !bytes.Equal(watcher.DrainOutbound(), packet.SpectateFramesFrame(replay)) {
		t.Fatalf("replay frames not relayed to watcher")
	}

	dispatch(srv, watcher, packet.ClientCantSpectate, nil)
	if !bytes.Contains(host.DrainOutbound(), packet.SpectatorCantMapFrame(int32(watcher.UserID))) {
		t.Fatalf("cant-spectate not relayed to host")
	}
}
