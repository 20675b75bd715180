// Package store defines the persistence contract for users, direct messages,
// and idempotency records. Backends live in sub-packages (memory, sqlstore,
// badgerstore) and must be observably identical: same ordering, same error
// classification, same id allocation guarantees.
//
// Contract summary:
//   - Message ids are positive, unique and strictly increasing per store
//     instance, including under concurrent CreateMessage calls.
//   - Timestamps are assigned by the store, never by the caller.
//   - MessagesBetween is symmetric and ordered by (timestamp ASC, id ASC);
//     it returns an empty slice, not an error, for pairs without history.
//   - Backend failures are reported wrapped in ErrStorageUnavailable and leave
//     no partial writes behind.
package store

import (
	"context"
	"time"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

// NewUser carries the fields required to register a user. Username must
// already be normalized and validated by the caller.
type NewUser struct {
	Username       string
	PasswordHash   string
	Name           *string
	ProfilePicture *string
}

// ProfileUpdate lists the mutable display attributes. Nil fields are left
// untouched.
type ProfileUpdate struct {
	Name           *string
	ProfilePicture *string
}

// UserStore is the identity side of the store.
type UserStore interface {
	// GetUser returns ErrUserNotFound when id is unknown.
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	// GetUserByUsername returns ErrUserNotFound when username is unknown.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	// CreateUser allocates an id and stores the user as online. It returns
	// ErrUsernameTaken when the username already exists.
	CreateUser(ctx context.Context, u NewUser) (*domain.User, error)
	// UpdateUserOnlineStatus returns ErrUserNotFound when id is unknown.
	UpdateUserOnlineStatus(ctx context.Context, id int64, online bool) (*domain.User, error)
	// UpdateUserProfile returns ErrUserNotFound when id is unknown.
	UpdateUserProfile(ctx context.Context, id int64, upd ProfileUpdate) (*domain.User, error)
	// ListUsers returns every user ordered by id.
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// MessageStore is the append-only message log.
type MessageStore interface {
	CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (*domain.Message, error)
	// GetMessage returns ErrNotFound when id is unknown.
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
	MessagesBetween(ctx context.Context, a, b int64) ([]domain.Message, error)
	// Correspondents returns the distinct ids of users that exchanged at
	// least one message with userID, in ascending order.
	Correspondents(ctx context.Context, userID int64) ([]int64, error)
	// ConversationStats returns the number of messages between a and b and
	// the highest message id among them (0 when none).
	ConversationStats(ctx context.Context, a, b int64) (count int64, lastID int64, err error)
}

// IdempotencyStore persists replay records for unsafe requests.
type IdempotencyStore interface {
	// GetIdempotency returns a record valid at now or ErrNotFound.
	GetIdempotency(ctx context.Context, userID int64, scope, key string, now time.Time) (*domain.Idempotency, error)
	// SaveIdempotency returns ErrDuplicate when (user, scope, key) exists.
	SaveIdempotency(ctx context.Context, rec domain.Idempotency) error
	// PurgeExpiredIdempotency deletes records expired at now and returns how
	// many were removed.
	PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int64, error)
}

// Store is the full capability set a backend provides.
type Store interface {
	UserStore
	MessageStore
	IdempotencyStore

	// Ping reports whether the backing medium is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
	// Backend names the implementation (e.g. "memory", "sqlite").
	Backend() string
}

// Clock stamps new messages. Backends default to SystemClock.
type Clock func() time.Time

// TimestampPrecision is the finest timestamp resolution every backend keeps.
// MySQL DATETIME(6) is the coarsest column involved.
const TimestampPrecision = time.Microsecond

// SystemClock returns the current UTC time at TimestampPrecision.
func SystemClock() time.Time { return time.Now().UTC().Truncate(TimestampPrecision) }
