// Auth HTTP handlers.
//
// This file exposes the identity endpoints:
//   - POST /register  (create an account, returns a bearer token)
//   - POST /login     (check credentials, mark online, returns a bearer token)
//   - POST /logout    (mark offline)
//   - GET  /user      (current user)
//
// Tokens are stateless; logout only changes presence and clients discard
// their token.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/services"
)

//
// DTOs
//

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Username       string  `json:"username" binding:"required,username" example:"alice"`
	Password       string  `json:"password" binding:"required,min=8,max=72" example:"correct-horse"`
	Name           *string `json:"name" binding:"omitempty,max=255" example:"Alice Liddell"`
	ProfilePicture *string `json:"profilePicture" binding:"omitempty,max=2048" example:"https://example.com/a.png"`
}

// LoginRequest is the JSON payload for logging in.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Password string `json:"password" binding:"required" example:"correct-horse"`
}

// AuthResponse carries the user and a freshly issued bearer token.
type AuthResponse struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

//
// Handlers
//

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Registers a user (stored online) and returns a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Registration form"
// @Success     201   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409   {object}  handlers.ErrorResponse  "Username taken"
// @Failure     503   {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	u, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		Username:       req.Username,
		Password:       req.Password,
		Name:           req.Name,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, u)
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Verifies credentials, marks the user online and returns a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     503   {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	u, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	h.respondWithToken(c, http.StatusOK, u)
}

func (h *Handlers) respondWithToken(c *gin.Context, status int, u *domain.User) {
	token, exp, err := h.tokens.Issue(u.ID, u.Username)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, status, AuthResponse{User: u, Token: token, ExpiresAt: exp})
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Description Marks the caller offline.
// @Tags        Auth
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	if err := h.users.Logout(c.Request.Context(), uid); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Me godoc
// @ID          currentUser
// @Summary     Current user
// @Tags        Users
// @Security    BearerAuth
// @Produce     json
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "User no longer exists"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /user [get]
func (h *Handlers) Me(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	u, err := h.users.Get(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
