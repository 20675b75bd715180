// Chat HTTP handlers.
//
// This file exposes the chat list:
//   - GET /chats  (one row per correspondent, newest first, weak ETag)
//
// The list is recomputed on every read, so the ETag is derived from the
// serialized result rather than from a stored version.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/services"
)

// ListChats godoc
// @ID          listChats
// @Summary     List chats
// @Description Returns the caller's conversations with last message and unread count, newest first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chats
// @Security    BearerAuth
// @Produce     json
// @Param       q              query   string  false  "Case-insensitive username filter"  example(ali)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"        example(W/\"chats:1:9f86d081884c7d65\")
// @Success     200  {array}   domain.Chat
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	chats, err := h.chats.List(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	chats = services.FilterChats(chats, c.Query("q"))

	body, err := json.Marshal(chats)
	if err != nil {
		failErr(c, fmt.Errorf("encode chats: %w", err))
		return
	}
	etag := fmt.Sprintf(`W/"chats:%d:%016x"`, uid, xxhash.Sum64(body))
	c.Header("ETag", etag)
	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// etagMatches implements the weak comparison of If-None-Match against etag,
// including lists and the "*" wildcard.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, cand := range strings.Split(header, ",") {
		cand = strings.TrimSpace(cand)
		if cand == "*" || strings.TrimPrefix(cand, "W/") == want {
			return true
		}
	}
	return false
}
