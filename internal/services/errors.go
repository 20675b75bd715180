// Package services holds the application logic for users, messages and the
// per-user chat list. This file centralizes the service-level error values so
// handlers can map them to HTTP results with errors.Is.
//
// Store errors (store.ErrStorageUnavailable, store.ErrUserNotFound,
// store.ErrUsernameTaken) are propagated wrapped, never replaced.
package services

import (
	"errors"

	"github.com/tbourn/go-dm-backend/internal/store"
)

// Message errors.
var (
	// ErrInvalidRecipient is returned when the receiver id does not resolve to
	// a user. It is detected before anything is written.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrSelfMessage is returned when sender and receiver are the same user.
	ErrSelfMessage = errors.New("cannot send a message to yourself")

	// ErrEmptyContent is returned when the message content is blank after
	// trimming.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrContentTooLong is returned when the content exceeds the configured
	// rune limit.
	ErrContentTooLong = errors.New("message content too long")
)

// Identity errors.
var (
	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password so callers cannot probe for existing accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidUsername is returned when a username fails the
	// lowercase [a-z0-9_]{3,30} rule.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrWeakPassword is returned when a password is shorter than the minimum.
	ErrWeakPassword = errors.New("password too short")
)

// ErrStorageUnavailable re-exports the store sentinel for handler convenience.
var ErrStorageUnavailable = store.ErrStorageUnavailable
