package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Privileges is the persisted privilege bitmask of a user.
type Privileges int32

// Privilege bits.
const (
	PrivilegeNormal    Privileges = 1 << 0
	PrivilegeModerator Privileges = 1 << 1
	PrivilegeSupporter Privileges = 1 << 2
	PrivilegeAdmin     Privileges = 1 << 3
	PrivilegeBot       Privileges = 1 << 4
)

// Has reports whether all bits of p2 are set.
func (p Privileges) Has(p2 Privileges) bool { return p&p2 == p2 }

// IsStaff reports moderator or admin privileges.
func (p Privileges) IsStaff() bool {
	return p&(PrivilegeModerator|PrivilegeAdmin) != 0
}

// User is the persisted profile of a player.
type User struct {
	ID            int64
	Username      string
	PasswordHash  string
	Country       string
	Privileges    Privileges
	Timezone      int
	SilencedUntil time.Time
	RankedScore   int64
	TotalScore    int64
	Accuracy      float64
	PlayCount     int
	Rank          int
	Performance   int
	CreatedAt     time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash, country string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username (case-insensitive).
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// EnsureBotUser creates the bot account under the reserved id when
	// missing and returns it.
	EnsureBotUser(ctx context.Context, username string) (*User, error)

	// SetSilencedUntil persists a user's silence expiry.
	SetSilencedUntil(ctx context.Context, userID int64, until time.Time) error

	// SetPrivileges persists a user's privilege bitmask.
	SetPrivileges(ctx context.Context, userID int64, privileges Privileges) error
}

// FriendStore handles friend-list persistence.
type FriendStore interface {
	// AddFriend records a one-directional friendship.
	AddFriend(ctx context.Context, userID, friendID int64) error

	// RemoveFriend deletes a one-directional friendship.
	RemoveFriend(ctx context.Context, userID, friendID int64) error

	// ListFriendIDs lists the ids a user has befriended.
	ListFriendIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	FriendStore

	// Close closes the underlying database connection.
	Close() error
}
