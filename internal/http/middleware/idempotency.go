// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for unsafe requests. It validates
// the Idempotency-Key header, looks up a prior result for
// (caller, route, key) and annotates the context so that:
//   - handlers read the key with GetIdempotencyKey and serve the stored
//     result when ReplayOf returns a record
//   - the rate limiter lets replays through without spending a token
//
// The middleware must run after JWTAuth because records are per user.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set on responses served from a stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemRecord = "idem.record"
	ctxKeyRateBypass = "rate.bypass"
)

// defaultKeyPattern is an RFC 7230 token plus a few safe characters.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Now is the clock used for expiry checks; nil uses time.Now.
	Now func() time.Time
}

// IdempotencyLookup returns the live record for (userID, scope, key) at now.
// Any error, including not-found, is treated as "no replay".
type IdempotencyLookup func(ctx context.Context, userID int64, scope, key string, now time.Time) (*domain.Idempotency, error)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// ReplayOf returns the stored record when this request repeats a completed
// one.
func ReplayOf(c *gin.Context) (*domain.Idempotency, bool) {
	v, ok := c.Get(ctxKeyIdemRecord)
	if !ok {
		return nil, false
	}
	rec, ok := v.(*domain.Idempotency)
	return rec, ok && rec != nil
}

// IdempotencyScope is the scope under which records for c are stored: the
// registered route, so the same key may be reused on different endpoints.
func IdempotencyScope(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it, and consults lookup to detect a replay. Invalid keys get a 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_request", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid, ok := UserIDFrom(c)
		if lookup != nil && ok {
			rec, err := lookup(c.Request.Context(), uid, IdempotencyScope(c), key, now().UTC())
			if err == nil && rec != nil {
				c.Set(ctxKeyIdemRecord, rec)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
