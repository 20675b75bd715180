// Package handlers exposes the REST API over the application services.
//
// Handlers are transport-thin: they bind and validate input, call a service
// with the request context, and translate results and errors into HTTP
// responses. They depend on the small interfaces below, never on concrete
// services or stores.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/services"
	"github.com/tbourn/go-dm-backend/internal/store"
)

//
// Service contracts (context-aware)
//

// UserService covers identity, presence and the user directory.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*domain.User, error)
	Logout(ctx context.Context, userID int64) error
	Get(ctx context.Context, id int64) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, upd store.ProfileUpdate) (*domain.User, error)
	List(ctx context.Context, viewerID int64, query string, limit int) ([]domain.User, error)
}

// ChatService computes a user's chat list.
type ChatService interface {
	List(ctx context.Context, viewerID int64) ([]domain.Chat, error)
}

// MessageService sends and reads direct messages.
type MessageService interface {
	Send(ctx context.Context, senderID, receiverID int64, content string) (*domain.Message, error)
	History(ctx context.Context, viewerID, peerID int64) ([]domain.Message, error)
	Stats(ctx context.Context, a, b int64) (count, lastID int64, err error)
	Get(ctx context.Context, viewerID, id int64) (*domain.Message, error)
}

// TokenIssuer signs bearer tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID int64, username string) (string, time.Time, error)
}

// IdempotencyRecorder stores replay records for POST /messages.
type IdempotencyRecorder interface {
	SaveIdempotency(ctx context.Context, rec domain.Idempotency) error
}

//
// Handler wiring
//

// Deps bundles the collaborators of Handlers.
type Deps struct {
	Users    UserService
	Chats    ChatService
	Messages MessageService
	Tokens   TokenIssuer
	// Idempotency may be nil, which disables recording.
	Idempotency IdempotencyRecorder

	// IdempotencyTTL defaults to 24h.
	IdempotencyTTL time.Duration
	// MaxUserListLimit caps GET /users; defaults to 100.
	MaxUserListLimit int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	users    UserService
	chats    ChatService
	msgs     MessageService
	tokens   TokenIssuer
	idem     IdempotencyRecorder
	idemTTL  time.Duration
	maxUsers int
	now      func() time.Time
}

// New constructs Handlers from d, applying defaults.
func New(d Deps) *Handlers {
	h := &Handlers{
		users:    d.Users,
		chats:    d.Chats,
		msgs:     d.Messages,
		tokens:   d.Tokens,
		idem:     d.Idempotency,
		idemTTL:  d.IdempotencyTTL,
		maxUsers: d.MaxUserListLimit,
		now:      d.Now,
	}
	if h.idemTTL <= 0 {
		h.idemTTL = 24 * time.Hour
	}
	if h.maxUsers <= 0 {
		h.maxUsers = 100
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// currentUser returns the authenticated caller. Routes using it sit behind
// JWTAuth, so a missing identity is answered with 401 rather than trusted.
func currentUser(c *gin.Context) (int64, bool) {
	uid, found := middleware.UserIDFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
	}
	return uid, found
}
