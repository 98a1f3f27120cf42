package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/bancho-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	country TEXT NOT NULL DEFAULT 'XX',
	privileges INTEGER NOT NULL DEFAULT 1,
	timezone INTEGER NOT NULL DEFAULT 0,
	silenced_until INTEGER NOT NULL DEFAULT 0,
	ranked_score INTEGER NOT NULL DEFAULT 0,
	total_score INTEGER NOT NULL DEFAULT 0,
	accuracy REAL NOT NULL DEFAULT 0,
	play_count INTEGER NOT NULL DEFAULT 0,
	rank INTEGER NOT NULL DEFAULT 0,
	performance INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS friends (
	user_id INTEGER NOT NULL,
	friend_id INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, friend_id)
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash, country string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, country, privileges)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, country, store.PrivilegeNormal)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// EnsureBotUser creates the bot account under the reserved id 1 when
// missing and returns it. Seeding id 1 keeps autoincrement from handing
// it to a player.
func (s *SQLiteStore) EnsureBotUser(ctx context.Context, username string) (*store.User, error) {
	privileges := store.PrivilegeNormal | store.PrivilegeModerator | store.PrivilegeBot
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (id, username, password_hash, privileges)
		VALUES (1, ?, '', ?)
	`, username, privileges)
	if err != nil {
		return nil, fmt.Errorf("insert bot user: %w", err)
	}
	return s.GetUserByID(ctx, 1)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by username (case-insensitive).
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUser(ctx, "username = ? COLLATE NOCASE", username)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, country, privileges, timezone,
		       silenced_until, ranked_score, total_score, accuracy,
		       play_count, rank, performance, created_at
		FROM users
		WHERE ` + where

	var u store.User
	var silencedUnix int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Country, &u.Privileges,
		&u.Timezone, &silencedUnix, &u.RankedScore, &u.TotalScore,
		&u.Accuracy, &u.PlayCount, &u.Rank, &u.Performance, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if silencedUnix > 0 {
		u.SilencedUntil = time.Unix(silencedUnix, 0)
	}
	return &u, nil
}

// SetSilencedUntil persists a user's silence expiry.
func (s *SQLiteStore) SetSilencedUntil(ctx context.Context, userID int64, until time.Time) error {
	var unix int64
	if !until.IsZero() {
		unix = until.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET silenced_until = ? WHERE id = ?`, unix, userID)
	if err != nil {
		return fmt.Errorf("update silenced_until: %w", err)
	}
	return nil
}

// SetPrivileges persists a user's privilege bitmask.
func (s *SQLiteStore) SetPrivileges(ctx context.Context, userID int64, privileges store.Privileges) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET privileges = ? WHERE id = ?`, privileges, userID)
	if err != nil {
		return fmt.Errorf("update privileges: %w", err)
	}
	return nil
}

// ==== FriendStore implementation ====

// AddFriend records a one-directional friendship.
func (s *SQLiteStore) AddFriend(ctx context.Context, userID, friendID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO friends (user_id, friend_id) VALUES (?, ?)`,
		userID, friendID)
	if err != nil {
		return fmt.Errorf("insert friend: %w", err)
	}
	return nil
}

// RemoveFriend deletes a one-directional friendship.
func (s *SQLiteStore) RemoveFriend(ctx context.Context, userID, friendID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM friends WHERE user_id = ? AND friend_id = ?`,
		userID, friendID)
	if err != nil {
		return fmt.Errorf("delete friend: %w", err)
	}
	return nil
}

// ListFriendIDs lists the ids a user has befriended.
func (s *SQLiteStore) ListFriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT friend_id FROM friends WHERE user_id = ? ORDER BY friend_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select friends: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friend id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friends: %w", err)
	}
	return ids, nil
}
