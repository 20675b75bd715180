package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/auth"
	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/services"
	"github.com/tbourn/go-dm-backend/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := middleware.RegisterValidators(services.ValidUsername); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// app wires real services over an in-memory store, the same way the router
// does for the routes under test.
type app struct {
	t      *testing.T
	st     *memory.Store
	tokens *auth.Manager
	engine *gin.Engine
}

func newApp(t *testing.T) *app {
	t.Helper()
	st := memory.New()
	tokens := auth.NewManager(testSecret, "test", time.Hour)
	h := New(Deps{
		Users:       services.NewUserService(st, auth.NewHasher(4)),
		Chats:       services.NewChatService(st, st, 2),
		Messages:    services.NewMessageService(st, st, 10),
		Tokens:      tokens,
		Idempotency: st,
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	authed := r.Group("", middleware.JWTAuth(tokens))
	authed.POST("/logout", h.Logout)
	authed.GET("/user", h.Me)
	authed.PATCH("/user/profile", h.UpdateProfile)
	authed.GET("/users", h.ListUsers)
	authed.GET("/users/:id", h.GetUser)
	authed.GET("/chats", h.ListChats)
	authed.GET("/messages/:userId", h.ListMessages)
	authed.POST("/messages",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, st.GetIdempotency),
		h.SendMessage)

	return &app{t: t, st: st, tokens: tokens, engine: r}
}

type call struct {
	method, path string
	body         any
	token        string
	headers      map[string]string
}

func (a *app) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd *bytes.Reader
	switch b := c.body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, rd)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

// signup registers username and returns the user and its token.
func (a *app) signup(username string) (*domain.User, string) {
	a.t.Helper()
	w := a.do(call{method: http.MethodPost, path: "/register", body: gin.H{"username": username, "password": "password1"}})
	if w.Code != http.StatusCreated {
		a.t.Fatalf("register %s: %d %s", username, w.Code, w.Body.String())
	}
	var resp AuthResponse
	decode(a.t, w, &resp)
	return resp.User, resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e ErrorResponse
	decode(t, w, &e)
	return e.Code
}
