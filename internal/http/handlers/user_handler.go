// User HTTP handlers.
//
// This file exposes profile editing and the user directory:
//   - PATCH /user/profile  (change name and/or profile picture)
//   - GET   /users         (everyone but the caller, optionally ranked by ?q=)
//   - GET   /users/{id}    (a single user)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/store"
	"github.com/tbourn/go-dm-backend/internal/utils"
)

// UpdateProfileRequest is the JSON payload for profile edits. Omitted fields
// are left unchanged.
type UpdateProfileRequest struct {
	Name           *string `json:"name" binding:"omitempty,max=255" example:"Alice L."`
	ProfilePicture *string `json:"profilePicture" binding:"omitempty,max=2048" example:"https://example.com/a2.png"`
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Edit profile
// @Description Updates the caller's display name and/or profile picture.
// @Tags        Users
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.UpdateProfileRequest  true  "Fields to change"
// @Success     200   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404   {object}  handlers.ErrorResponse  "User not found"
// @Failure     503   {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /user/profile [patch]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	if req.Name == nil && req.ProfilePicture == nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "nothing to update")
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), uid, store.ProfileUpdate{
		Name:           req.Name,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users
// @Description Returns every user except the caller, ordered by id. With q, results are ranked by relevance.
// @Tags        Users
// @Security    BearerAuth
// @Produce     json
// @Param       q      query     string  false  "Search text"  example(ali)
// @Param       limit  query     int     false  "Maximum results"  minimum(1) maximum(100) default(100)
// @Success     200    {array}   domain.User
// @Failure     503    {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), h.maxUsers), 1, h.maxUsers)
	users, err := h.users.List(c.Request.Context(), uid, c.Query("q"), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, users)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user
// @Tags        Users
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      int  true  "User ID"  minimum(1)
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad id"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a positive integer")
		return
	}
	u, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
