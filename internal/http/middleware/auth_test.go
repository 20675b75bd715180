package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func authRouter(m *auth.Manager) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), JWTAuth(m))
	r.GET("/me", func(c *gin.Context) {
		uid, ok := UserIDFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": uid, "username": UsernameFrom(c)})
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	m := auth.NewManager(testSecret, "test", time.Hour)
	tok, _, err := m.Issue(42, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	past := auth.NewManager(testSecret, "test", time.Minute).
		WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	expired, _, err := past.Issue(42, "alice")
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}

	cases := []struct {
		name   string
		header string
		status int
		msg    string
	}{
		{"missing", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"no token", "Bearer ", http.StatusUnauthorized, "invalid authorization header format"},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "token expired"},
		{"ok", "Bearer " + tok, http.StatusOK, ""},
		{"case-insensitive scheme", "bearer " + tok, http.StatusOK, ""},
	}
	r := authRouter(m)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(r, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if tc.msg != "" {
				if e := decodeEnvelope(t, w); e.Code != "unauthorized" || e.Message != tc.msg {
					t.Fatalf("envelope = %+v", e)
				}
			}
		})
	}
}

func TestJWTAuth_ForeignSecretRejected(t *testing.T) {
	other := auth.NewManager("ffffffffffffffffffffffffffffffff", "test", time.Hour)
	tok, _, _ := other.Issue(1, "mallory")
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if w := serve(authRouter(auth.NewManager(testSecret, "test", time.Hour)), req); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUserIDFrom_RejectsWrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := UserIDFrom(c); ok {
		t.Fatalf("unset user id reported as present")
	}
	c.Set(userIDKey, "42")
	if _, ok := UserIDFrom(c); ok {
		t.Fatalf("string user id must be rejected")
	}
	c.Set(userIDKey, int64(0))
	if _, ok := UserIDFrom(c); ok {
		t.Fatalf("zero user id must be rejected")
	}
}
