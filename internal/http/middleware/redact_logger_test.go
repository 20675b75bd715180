package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedact(t *testing.T) {
	in := "mail=jane.doe@example.com&phone=+1 555-123-4567&id=123e4567-e89b-12d3-a456-426614174000"
	out := redact(in)
	for _, leak := range []string{"jane.doe@example.com", "555-123-4567", "123e4567-e89b"} {
		if strings.Contains(out, leak) {
			t.Fatalf("%q leaked in %q", leak, out)
		}
	}
	for _, tag := range []string{"[REDACTED:email]", "[REDACTED:phone]", "[REDACTED:id]"} {
		if !strings.Contains(out, tag) {
			t.Fatalf("missing %s in %q", tag, out)
		}
	}
	if redact("") != "" {
		t.Fatalf("empty input should stay empty")
	}
}

func TestRedactingLogger_InfoAndRedactions(t *testing.T) {
	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{" X-Api-Key "}}), asUser(7))
	r.GET("/users/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/users/2?q=bob@example.com", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Api-Key", "k-123")
	req.Header.Set("X-Note", "call 555-123-4567")
	serve(r, req)

	out := buf.String()
	for _, leak := range []string{"secret-token", "k-123", "bob@example.com", "555-123-4567"} {
		if strings.Contains(out, leak) {
			t.Fatalf("%q leaked into access log: %s", leak, out)
		}
	}
	m := lastLogLine(t, buf)
	if m["level"] != "info" || m["message"] != "http_request" {
		t.Fatalf("unexpected record: %v", m)
	}
	if m["path"] != "/users/:id" || m["status"] != float64(200) {
		t.Fatalf("route/status not logged: %v", m)
	}
	// The access record is emitted after the handlers ran, so it sees the
	// authenticated caller.
	if m["user_id"] != float64(7) {
		t.Fatalf("user_id missing: %v", m)
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.GET("/warn", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/err", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	r.GET("/ginerr", func(c *gin.Context) {
		_ = c.Error(http.ErrAbortHandler)
		c.Status(http.StatusOK)
	})

	cases := map[string]string{"/warn": "warn", "/err": "error", "/ginerr": "error", "/nope": "warn"}
	for path, level := range cases {
		buf.Reset()
		serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		m := lastLogLine(t, buf)
		if m["level"] != level {
			t.Errorf("%s: level = %v; want %s", path, m["level"], level)
		}
		if path == "/nope" && m["path"] != "/nope" {
			t.Errorf("unmatched route should log the raw path, got %v", m["path"])
		}
	}
}
