package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/bancho-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCreateAndGetUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateUser(ctx, "alice", "hash", "US")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Privileges != store.PrivilegeNormal {
		t.Fatalf("new user privileges = %d", created.Privileges)
	}
	if created.Country != "US" {
		t.Fatalf("country = %q", created.Country)
	}

	byID, err := st.GetUserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("lookup by id: %v", err)
	}
	if byID.Username != "alice" || byID.PasswordHash != "hash" {
		t.Fatalf("reloaded user mismatch: %+v", byID)
	}

	if _, err := st.CreateUser(ctx, "ALICE", "hash2", "US"); err == nil {
		t.Fatalf("duplicate username accepted")
	}
}

func TestGetUserByUsernameCaseInsensitive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.CreateUser(ctx, "Alice", "hash", "US"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	u, err := st.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.Username != "Alice" {
		t.Fatalf("unexpected username %q", u.Username)
	}

	if _, err := st.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsureBotUserReservesIDOne(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	bot, err := st.EnsureBotUser(ctx, "TestBot")
	if err != nil {
		t.Fatalf("ensure bot: %v", err)
	}
	if bot.ID != 1 {
		t.Fatalf("bot id = %d", bot.ID)
	}
	if !bot.Privileges.Has(store.PrivilegeBot) {
		t.Fatalf("bot privileges = %d", bot.Privileges)
	}

	// Idempotent across restarts.
	again, err := st.EnsureBotUser(ctx, "TestBot")
	if err != nil {
		t.Fatalf("ensure bot twice: %v", err)
	}
	if again.ID != 1 {
		t.Fatalf("second ensure changed id: %d", again.ID)
	}

	// Players never receive the reserved id.
	player, err := st.CreateUser(ctx, "alice", "hash", "US")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if player.ID == 1 {
		t.Fatalf("player received the bot id")
	}
}

func TestSilencePersistence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, "alice", "hash", "US")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if !u.SilencedUntil.IsZero() {
		t.Fatalf("fresh user already silenced")
	}

	until := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := st.SetSilencedUntil(ctx, u.ID, until); err != nil {
		t.Fatalf("set silence: %v", err)
	}
	reloaded, err := st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.SilencedUntil.Equal(until) {
		t.Fatalf("silence mismatch: got %v want %v", reloaded.SilencedUntil, until)
	}

	if err := st.SetSilencedUntil(ctx, u.ID, time.Time{}); err != nil {
		t.Fatalf("clear silence: %v", err)
	}
	reloaded, err = st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.SilencedUntil.IsZero() {
		t.Fatalf("silence not cleared: %v", reloaded.SilencedUntil)
	}
}

func TestFriendRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a, err := st.CreateUser(ctx, "a", "hash", "US")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := st.CreateUser(ctx, "b", "hash", "US")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	if err := st.AddFriend(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("add friend: %v", err)
	}
	// Duplicate adds are silent.
	if err := st.AddFriend(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("re-add friend: %v", err)
	}

	ids, err := st.ListFriendIDs(ctx, a.ID)
	if err != nil {
		t.Fatalf("list friends: %v", err)
	}
	if len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("friend list = %v", ids)
	}

	// Friendship is one-directional.
	ids, err = st.ListFriendIDs(ctx, b.ID)
	if err != nil {
		t.Fatalf("list friends: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("reverse friendship recorded: %v", ids)
	}

	if err := st.RemoveFriend(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("remove friend: %v", err)
	}
	ids, _ = st.ListFriendIDs(ctx, a.ID)
	if len(ids) != 0 {
		t.Fatalf("friend not removed: %v", ids)
	}
}
