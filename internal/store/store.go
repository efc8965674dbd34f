package store

import (
	"context"
	"time"
)

// User represents a registered or guest user.
type User struct {
	ID           int64
	DisplayName  string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest user session tracking
	Country      string
	RendezvousID string
	Online       bool
	LastSeenAt   time.Time
	CreatedAt    time.Time
}

// WaitingEntry is one row of the shared waiting pool. Available=true means
// the user is eligible to be matched by another searcher right now.
type WaitingEntry struct {
	UserID       int64
	RendezvousID string
	Available    bool
	InsertedAt   time.Time
}

// Message represents a persisted chat message between two real users.
type Message struct {
	ID         string // UUID
	SenderID   int64
	ReceiverID int64
	Body       string
	CreatedAt  time.Time
}

// FriendStatus defines friend relationship status.
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
)

// Friend represents a friend relationship.
type Friend struct {
	ID        int64
	UserID    int64
	FriendID  int64
	Status    FriendStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Report records a complaint about a partner.
type Report struct {
	ID         string // UUID
	ReporterID int64
	PartnerID  int64
	Reason     string
	CreatedAt  time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, displayName, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByDisplayName retrieves a non-guest user by display name.
	GetUserByDisplayName(ctx context.Context, displayName string) (*User, error)

	// UpdatePresence flips the user's online flag, refreshes last_seen_at,
	// and records the current rendezvous id.
	UpdatePresence(ctx context.Context, userID int64, online bool, rendezvousID string) error

	// RandomActiveUser returns any online user other than excludeUserID,
	// or nil if none exists.
	RandomActiveUser(ctx context.Context, excludeUserID int64) (*User, error)

	// UpdateProfile updates display name and country.
	UpdateProfile(ctx context.Context, userID int64, displayName, country string) error
}

// WaitingStore handles the shared waiting pool.
type WaitingStore interface {
	// UpsertWaiting inserts or updates the pool row keyed by userID.
	UpsertWaiting(ctx context.Context, userID int64, rendezvousID string, available bool) error

	// ListAvailable returns up to limit available entries excluding userID.
	ListAvailable(ctx context.Context, excludeUserID int64, limit int) ([]*WaitingEntry, error)

	// ClaimWaiting atomically flips an available entry to unavailable.
	// Returns false when the entry was absent or already claimed.
	ClaimWaiting(ctx context.Context, userID int64) (bool, error)

	// RemoveWaiting deletes the pool row. No-op when absent.
	RemoveWaiting(ctx context.Context, userID int64) error

	// PruneWaiting removes entries older than maxAge. Returns rows removed.
	PruneWaiting(ctx context.Context, maxAge time.Duration) (int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message to storage.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessagesBetween retrieves the conversation between two users,
	// oldest first, capped at limit.
	ListMessagesBetween(ctx context.Context, userA, userB int64, limit int) ([]*Message, error)
}

// FriendStore handles friend persistence.
type FriendStore interface {
	// CreateFriendRequest creates a new friend request (pending status).
	CreateFriendRequest(ctx context.Context, userID, friendID int64) (*Friend, error)

	// UpdateFriendStatus updates the status of a friendship.
	UpdateFriendStatus(ctx context.Context, userID, friendID int64, status FriendStatus) error

	// GetFriendship retrieves a friendship between two users (in either direction).
	GetFriendship(ctx context.Context, userID, friendID int64) (*Friend, error)

	// ListFriends lists friendships for a user, optionally filtered by status.
	ListFriends(ctx context.Context, userID int64, status *FriendStatus) ([]*Friend, error)

	// IsFriend checks if two users are friends (accepted status in either direction).
	IsFriend(ctx context.Context, userID, friendID int64) (bool, error)

	// DeleteFriendship removes a friendship record.
	DeleteFriendship(ctx context.Context, userID, friendID int64) error
}

// ReportStore handles partner reports.
type ReportStore interface {
	// SaveReport persists a report.
	SaveReport(ctx context.Context, report *Report) error

	// ListReportsAgainst lists reports filed against a user.
	ListReportsAgainst(ctx context.Context, partnerID int64) ([]*Report, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	WaitingStore
	MessageStore
	FriendStore
	ReportStore

	// Close closes the underlying database connection.
	Close() error
}
