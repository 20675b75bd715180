// Message HTTP handlers.
//
// This file exposes direct messages:
//   - GET  /messages/{userId}  (conversation with a user, oldest first, weak ETag)
//   - POST /messages           (send a message)
//
// Idempotency:
// When IdempotencyValidator finds a stored result for (caller, route, key) the
// handler returns the original message with 201 and
// `Idempotency-Replayed: true` instead of sending again.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/store"
	"github.com/tbourn/go-dm-backend/internal/utils"
)

// SendMessageRequest is the JSON payload for sending a message. Content is
// trimmed of surrounding whitespace before it is stored.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiverId" binding:"required,gt=0" example:"2"`
	Content    string `json:"content" example:"Hey, are we still on for tonight?"`
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Conversation history
// @Description Returns every message between the caller and userId, oldest first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Security    BearerAuth
// @Produce     json
// @Param       userId         path    int     true   "Other participant"  minimum(1)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"messages:1:2:14:230\")
// @Success     200  {array}   domain.Message
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad user id"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /messages/{userId} [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	peer, valid := utils.ParseID(c.Param("userId"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a positive integer")
		return
	}
	ctx := c.Request.Context()

	// ETag pre-check (best effort). The log is append-only, so count and
	// highest id identify the conversation's state.
	if count, lastID, err := h.msgs.Stats(ctx, uid, peer); err == nil {
		etag := fmt.Sprintf(`W/"messages:%d:%d:%d:%d"`, uid, peer, count, lastID)
		c.Header("ETag", etag)
		if etagMatches(c.GetHeader("If-None-Match"), etag) {
			c.Status(http.StatusNotModified)
			return
		}
	}

	msgs, err := h.msgs.History(ctx, uid, peer)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, msgs)
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Stores a message from the caller to receiverId.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "Message"
// @Success     201  {object}  domain.Message
// @Header      201  {string}  Idempotency-Replayed  "true when served from a previous identical request"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing, empty, too long, or self-addressed"
// @Failure     422  {object}  handlers.ErrorResponse  "Receiver does not exist"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	ctx := c.Request.Context()

	if rec, replay := middleware.ReplayOf(c); replay {
		prev, err := h.msgs.Get(ctx, uid, rec.MessageID)
		if err == nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusCreated, prev)
			return
		}
		middleware.LoggerFrom(c).Warn().Err(err).Int64("message_id", rec.MessageID).
			Msg("idempotency replay target unavailable")
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	m, err := h.msgs.Send(ctx, uid, req.ReceiverID, req.Content)
	if err != nil {
		failErr(c, err)
		return
	}

	if key, has := middleware.GetIdempotencyKey(c); has && h.idem != nil {
		h.recordIdempotency(c, uid, key, m)
	}
	ok(c, http.StatusCreated, m)
}

// recordIdempotency stores the replay record. Failures are logged only: the
// message is already stored and the client gets its result.
func (h *Handlers) recordIdempotency(c *gin.Context, uid int64, key string, m *domain.Message) {
	now := h.now().UTC()
	err := h.idem.SaveIdempotency(c.Request.Context(), domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    uid,
		Scope:     middleware.IdempotencyScope(c),
		Key:       key,
		MessageID: m.ID,
		Status:    http.StatusCreated,
		CreatedAt: now,
		ExpiresAt: now.Add(h.idemTTL),
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		middleware.LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).
			Msg("failed to record idempotency key")
	}
}
