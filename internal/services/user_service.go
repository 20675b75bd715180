// Package services – UserService
//
// This file implements registration, login/logout presence, profile edits and
// the user directory. Passwords are hashed by an injected PasswordHasher and
// never leave this layer in clear text.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/tbourn/go-dm-backend/internal/directory"
	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinPasswordRunes is the shortest accepted password.
const MinPasswordRunes = 8

// usernameRE is the canonical username shape, applied after lowercasing.
var usernameRE = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// NormalizeUsername trims and lowercases a username.
func NormalizeUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// ValidUsername reports whether s, once normalized, is an acceptable username.
func ValidUsername(s string) bool { return usernameRE.MatchString(NormalizeUsername(s)) }

// PasswordHasher abstracts the password hashing scheme.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hashed, plain string) bool
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Username       string
	Password       string
	Name           *string
	ProfilePicture *string
}

// UserService manages identities and presence.
type UserService struct {
	Store  store.UserStore
	Hasher PasswordHasher

	// dummyHash is compared against when the username is unknown, so both
	// failure paths cost one hash comparison.
	dummyOnce sync.Once
	dummyHash string
}

// NewUserService constructs a UserService.
func NewUserService(st store.UserStore, h PasswordHasher) *UserService {
	return &UserService{Store: st, Hasher: h}
}

// Register creates a user, stored as online.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	username := NormalizeUsername(in.Username)
	if !usernameRE.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordRunes {
		return nil, ErrWeakPassword
	}
	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.Store.CreateUser(ctx, store.NewUser{
		Username:       username,
		PasswordHash:   hash,
		Name:           trimPtr(in.Name),
		ProfilePicture: trimPtr(in.ProfilePicture),
	})
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID))
	return u, nil
}

// Login checks credentials and marks the user online.
func (s *UserService) Login(ctx context.Context, username, password string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	u, err := s.Store.GetUserByUsername(ctx, NormalizeUsername(username))
	if errors.Is(err, store.ErrUserNotFound) {
		s.Hasher.Compare(s.missingUserHash(), password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !s.Hasher.Compare(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID))
	return s.setOnline(ctx, u.ID, true)
}

// Logout marks the user offline.
func (s *UserService) Logout(ctx context.Context, userID int64) error {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Logout", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	_, err := s.setOnline(ctx, userID, false)
	return err
}

func (s *UserService) missingUserHash() string {
	s.dummyOnce.Do(func() {
		// Hash failures leave an empty hash, which Compare rejects quickly.
		s.dummyHash, _ = s.Hasher.Hash("no-such-user-placeholder")
	})
	return s.dummyHash
}

func (s *UserService) setOnline(ctx context.Context, id int64, online bool) (*domain.User, error) {
	u, err := s.Store.UpdateUserOnlineStatus(ctx, id, online)
	if err != nil {
		return nil, fmt.Errorf("update presence: %w", err)
	}
	return u, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.Store.GetUser(ctx, id)
}

// UpdateProfile changes the display name and/or profile picture. Fields left
// nil are not touched.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, upd store.ProfileUpdate) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "UpdateProfile", trace.WithAttributes(attribute.Int64("user.id", id)))
	defer span.End()

	return s.Store.UpdateUserProfile(ctx, id, store.ProfileUpdate{
		Name:           trimPtr(upd.Name),
		ProfilePicture: trimPtr(upd.ProfilePicture),
	})
}

// List returns every user except viewerID. With a non-blank query the result
// is ranked by the directory index and capped at limit (<= 0 for no cap);
// otherwise it is ordered by id.
func (s *UserService) List(ctx context.Context, viewerID int64, query string, limit int) ([]domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int64("user.id", viewerID),
			attribute.String("query", query),
		),
	)
	defer span.End()

	all, err := s.Store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if strings.TrimSpace(query) == "" {
		out := lo.Filter(all, func(u domain.User, _ int) bool { return u.ID != viewerID })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}
	ranked := directory.New(all, directory.WithExclude(viewerID)).Search(query, limit)
	return lo.Map(ranked, func(r directory.Result, _ int) domain.User { return r.User }), nil
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}
