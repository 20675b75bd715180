package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

var (
	// ErrStorageUnavailable indicates the backing medium could not be reached
	// or failed mid-operation. Callers may retry; no partial state was written.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUserNotFound is returned when a user id or username is unknown.
	// It matches ErrNotFound with errors.Is.
	ErrUserNotFound = fmt.Errorf("user: %w", ErrNotFound)

	// ErrUsernameTaken is returned by CreateUser on a username collision.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrDuplicate indicates that an idempotency record already exists for the
	// given (user_id, scope, key) tuple.
	ErrDuplicate = errors.New("duplicate")
)

// Unavailable wraps a backend failure in ErrStorageUnavailable, keeping the
// original error in the chain. Context cancellation is passed through
// unchanged so callers can tell an abandoned request from a broken backend.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// IsUniqueViolation detects unique-constraint failures across drivers that do
// not map them to a typed error.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// SQLite: "UNIQUE constraint failed"; MySQL: "Duplicate entry"; Postgres: "duplicate key value".
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate entry") ||
		strings.Contains(low, "duplicate key")
}

// SortMessages orders msgs by (Timestamp ASC, ID ASC) in place.
func SortMessages(msgs []domain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// PairKey returns a participant-order independent key for (a, b), e.g. "3_7".
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d_%d", a, b)
}
