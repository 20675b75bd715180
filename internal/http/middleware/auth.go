package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/auth"
)

const (
	userIDKey   = "userID"
	usernameKey = "username"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// JWTAuth requires "Authorization: Bearer <token>" and stores the caller's
// user id and username in the Gin context. The request-scoped logger is
// enriched with the user id.
func JWTAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing authorization header")
			return
		}
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid authorization header format")
			return
		}

		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token expired"
			}
			abortJSON(c, http.StatusUnauthorized, "unauthorized", msg)
			return
		}

		uid := claims.UserID()
		c.Set(userIDKey, uid)
		c.Set(usernameKey, claims.Username)
		setLogger(c, LoggerFrom(c).With().Int64("user_id", uid).Logger())
		c.Next()
	}
}

// UserIDFrom returns the authenticated user id set by JWTAuth.
func UserIDFrom(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

// UsernameFrom returns the authenticated username set by JWTAuth.
func UsernameFrom(c *gin.Context) string {
	return c.GetString(usernameKey)
}
