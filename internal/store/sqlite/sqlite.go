package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/driftchat/driftchat-server/internal/store"
)

// Schema creates all tables. Applied on startup; CREATE TABLE IF NOT EXISTS
// keeps it idempotent across restarts.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	display_name  TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_guest      BOOLEAN NOT NULL DEFAULT 0,
	session_id    TEXT,
	country       TEXT NOT NULL DEFAULT '',
	rendezvous_id TEXT NOT NULL DEFAULT '',
	online        BOOLEAN NOT NULL DEFAULT 0,
	last_seen_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS waiting_pool (
	user_id       INTEGER PRIMARY KEY,
	rendezvous_id TEXT NOT NULL,
	available     BOOLEAN NOT NULL DEFAULT 1,
	inserted_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	sender_id   INTEGER NOT NULL,
	receiver_id INTEGER NOT NULL,
	body        TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	FOREIGN KEY (sender_id) REFERENCES users(id),
	FOREIGN KEY (receiver_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at);

CREATE TABLE IF NOT EXISTS friends (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	friend_id  INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user_id, friend_id)
);

CREATE TABLE IF NOT EXISTS reports (
	id          TEXT PRIMARY KEY,
	reporter_id INTEGER NOT NULL,
	partner_id  INTEGER NOT NULL,
	reason      TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	FOREIGN KEY (reporter_id) REFERENCES users(id)
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

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function instead
// of the default schema. Useful for tests.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, displayName, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (display_name, password_hash, is_guest)
		VALUES (?, ?, 0)
	`
	result, err := s.db.ExecContext(ctx, query, displayName, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// CreateGuestUser creates a temporary guest user with session ID.
func (s *SQLiteStore) CreateGuestUser(ctx context.Context, sessionID string) (*store.User, error) {
	query := `
		INSERT INTO users (display_name, password_hash, is_guest, session_id)
		VALUES (?, '', 1, ?)
	`
	// Generate unique guest display name
	guestName := "guest_" + sessionID[:8]

	result, err := s.db.ExecContext(ctx, query, guestName, sessionID)
	if err != nil {
		return nil, fmt.Errorf("insert guest user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

const userColumns = `id, display_name, password_hash, is_guest, COALESCE(session_id, ''), country, rendezvous_id, online, last_seen_at, created_at`

func scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.PasswordHash,
		&user.IsGuest,
		&user.SessionID,
		&user.Country,
		&user.RendezvousID,
		&user.Online,
		&user.LastSeenAt,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByDisplayName retrieves a non-guest user by display name.
func (s *SQLiteStore) GetUserByDisplayName(ctx context.Context, displayName string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE display_name = ? AND is_guest = 0`
	return scanUser(s.db.QueryRowContext(ctx, query, displayName))
}

// UpdatePresence flips the user's online flag, refreshes last_seen_at, and
// records the current rendezvous id.
func (s *SQLiteStore) UpdatePresence(ctx context.Context, userID int64, online bool, rendezvousID string) error {
	query := `UPDATE users SET online = ?, rendezvous_id = ?, last_seen_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, online, rendezvousID, userID)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// RandomActiveUser returns any online user other than excludeUserID, or nil if none exists.
func (s *SQLiteStore) RandomActiveUser(ctx context.Context, excludeUserID int64) (*store.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE online = 1 AND id != ?
		ORDER BY RANDOM()
		LIMIT 1
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, excludeUserID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no active user is not an error
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile updates display name and country.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID int64, displayName, country string) error {
	query := `UPDATE users SET display_name = ?, country = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, displayName, country, userID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// ==== WaitingStore implementation ====

// UpsertWaiting inserts or updates the pool row keyed by userID.
func (s *SQLiteStore) UpsertWaiting(ctx context.Context, userID int64, rendezvousID string, available bool) error {
	query := `
		INSERT INTO waiting_pool (user_id, rendezvous_id, available, inserted_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			rendezvous_id = excluded.rendezvous_id,
			available = excluded.available,
			inserted_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.ExecContext(ctx, query, userID, rendezvousID, available)
	if err != nil {
		return fmt.Errorf("upsert waiting entry: %w", err)
	}
	return nil
}

// ListAvailable returns up to limit available entries excluding userID.
func (s *SQLiteStore) ListAvailable(ctx context.Context, excludeUserID int64, limit int) ([]*store.WaitingEntry, error) {
	query := `
		SELECT user_id, rendezvous_id, available, inserted_at
		FROM waiting_pool
		WHERE available = 1 AND user_id != ?
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, excludeUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query waiting pool: %w", err)
	}
	defer rows.Close()

	var entries []*store.WaitingEntry
	for rows.Next() {
		var entry store.WaitingEntry
		if err := rows.Scan(&entry.UserID, &entry.RendezvousID, &entry.Available, &entry.InsertedAt); err != nil {
			return nil, fmt.Errorf("scan waiting entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// ClaimWaiting atomically flips an available entry to unavailable.
// The conditional update is the claim-and-check: when two searchers race for
// the same candidate, exactly one sees rows=1 and wins.
func (s *SQLiteStore) ClaimWaiting(ctx context.Context, userID int64) (bool, error) {
	query := `
		UPDATE waiting_pool
		SET available = 0
		WHERE user_id = ? AND available = 1
	`
	result, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("claim waiting entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows == 1, nil
}

// RemoveWaiting deletes the pool row. No-op when absent.
func (s *SQLiteStore) RemoveWaiting(ctx context.Context, userID int64) error {
	query := `DELETE FROM waiting_pool WHERE user_id = ?`
	_, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("delete waiting entry: %w", err)
	}
	return nil
}

// PruneWaiting removes entries older than maxAge. Returns rows removed.
func (s *SQLiteStore) PruneWaiting(ctx context.Context, maxAge time.Duration) (int64, error) {
	query := `DELETE FROM waiting_pool WHERE inserted_at < ?`
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune waiting pool: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, msg.ID, msg.SenderID, msg.ReceiverID, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessagesBetween retrieves the conversation between two users, oldest first.
func (s *SQLiteStore) ListMessagesBetween(ctx context.Context, userA, userB int64, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, body, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}

// ==== FriendStore implementation ====

// CreateFriendRequest creates a new friend request (pending status).
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, userID, friendID int64) (*store.Friend, error) {
	query := `
		INSERT INTO friends (user_id, friend_id, status)
		VALUES (?, ?, 'pending')
	`
	result, err := s.db.ExecContext(ctx, query, userID, friendID)
	if err != nil {
		return nil, fmt.Errorf("insert friend request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getFriendByID(ctx, id)
}

// getFriendByID is a helper to retrieve a friend record by ID.
func (s *SQLiteStore) getFriendByID(ctx context.Context, id int64) (*store.Friend, error) {
	query := `
		SELECT id, user_id, friend_id, status, created_at, updated_at
		FROM friends
		WHERE id = ?
	`
	var friend store.Friend
	var status string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&friend.ID,
		&friend.UserID,
		&friend.FriendID,
		&status,
		&friend.CreatedAt,
		&friend.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("friend not found: %w", err)
		}
		return nil, fmt.Errorf("query friend: %w", err)
	}
	friend.Status = store.FriendStatus(status)
	return &friend, nil
}

// UpdateFriendStatus updates the status of a friendship.
func (s *SQLiteStore) UpdateFriendStatus(ctx context.Context, userID, friendID int64, status store.FriendStatus) error {
	query := `
		UPDATE friends
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND friend_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, string(status), userID, friendID)
	if err != nil {
		return fmt.Errorf("update friend status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("friendship not found")
	}
	return nil
}

// GetFriendship retrieves a friendship between two users (in either direction).
func (s *SQLiteStore) GetFriendship(ctx context.Context, userID, friendID int64) (*store.Friend, error) {
	query := `
		SELECT id, user_id, friend_id, status, created_at, updated_at
		FROM friends
		WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
	`
	var friend store.Friend
	var status string
	err := s.db.QueryRowContext(ctx, query, userID, friendID, friendID, userID).Scan(
		&friend.ID,
		&friend.UserID,
		&friend.FriendID,
		&status,
		&friend.CreatedAt,
		&friend.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("friendship not found: %w", err)
		}
		return nil, fmt.Errorf("query friendship: %w", err)
	}
	friend.Status = store.FriendStatus(status)
	return &friend, nil
}

// ListFriends lists friendships for a user, optionally filtered by status.
func (s *SQLiteStore) ListFriends(ctx context.Context, userID int64, status *store.FriendStatus) ([]*store.Friend, error) {
	var query string
	var args []interface{}

	if status != nil {
		query = `
			SELECT id, user_id, friend_id, status, created_at, updated_at
			FROM friends
			WHERE (user_id = ? OR friend_id = ?) AND status = ?
			ORDER BY updated_at DESC
		`
		args = []interface{}{userID, userID, string(*status)}
	} else {
		query = `
			SELECT id, user_id, friend_id, status, created_at, updated_at
			FROM friends
			WHERE user_id = ? OR friend_id = ?
			ORDER BY updated_at DESC
		`
		args = []interface{}{userID, userID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []*store.Friend
	for rows.Next() {
		var friend store.Friend
		var statusStr string
		if err := rows.Scan(&friend.ID, &friend.UserID, &friend.FriendID, &statusStr, &friend.CreatedAt, &friend.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friend.Status = store.FriendStatus(statusStr)
		friends = append(friends, &friend)
	}

	return friends, rows.Err()
}

// IsFriend checks if two users are friends (accepted status in either direction).
func (s *SQLiteStore) IsFriend(ctx context.Context, userID, friendID int64) (bool, error) {
	query := `
		SELECT 1 FROM friends
		WHERE ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))
		AND status = 'accepted'
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, userID, friendID, friendID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query friendship: %w", err)
	}
	return true, nil
}

// DeleteFriendship removes a friendship record.
func (s *SQLiteStore) DeleteFriendship(ctx context.Context, userID, friendID int64) error {
	query := `DELETE FROM friends WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`
	_, err := s.db.ExecContext(ctx, query, userID, friendID, friendID, userID)
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}

// ==== ReportStore implementation ====

// SaveReport persists a report.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *store.Report) error {
	query := `
		INSERT INTO reports (id, reporter_id, partner_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, report.ID, report.ReporterID, report.PartnerID, report.Reason, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// ListReportsAgainst lists reports filed against a user.
func (s *SQLiteStore) ListReportsAgainst(ctx context.Context, partnerID int64) ([]*store.Report, error) {
	query := `
		SELECT id, reporter_id, partner_id, reason, created_at
		FROM reports
		WHERE partner_id = ?
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, partnerID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var reports []*store.Report
	for rows.Next() {
		var report store.Report
		if err := rows.Scan(&report.ID, &report.ReporterID, &report.PartnerID, &report.Reason, &report.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
