package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dm-backend/internal/domain"
)

func TestUpdateProfile(t *testing.T) {
	a := newApp(t)
	_, tok := a.signup("dave")

	w := a.do(call{method: http.MethodPatch, path: "/user/profile", token: tok, body: gin.H{"name": " Dave ", "profilePicture": "https://img/d.png"}})
	var u domain.User
	decode(t, w, &u)
	if w.Code != http.StatusOK || *u.Name != "Dave" || *u.ProfilePicture != "https://img/d.png" {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}

	w = a.do(call{method: http.MethodPatch, path: "/user/profile", token: tok, body: gin.H{"name": "D"}})
	decode(t, w, &u)
	if *u.Name != "D" || u.ProfilePicture == nil || *u.ProfilePicture != "https://img/d.png" {
		t.Fatalf("omitted field must be kept: %+v", u)
	}

	w = a.do(call{method: http.MethodPatch, path: "/user/profile", token: tok, body: gin.H{}})
	if w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeValidation {
		t.Fatalf("empty patch: %d %s", w.Code, w.Body.String())
	}
}

func TestListAndGetUsers(t *testing.T) {
	a := newApp(t)
	me, tok := a.signup("zed")
	alice, _ := a.signup("alice")
	bob, _ := a.signup("bob")

	var users []domain.User
	w := a.do(call{method: http.MethodGet, path: "/users", token: tok})
	decode(t, w, &users)
	if len(users) != 2 || users[0].ID != alice.ID || users[1].ID != bob.ID {
		t.Fatalf("list: %+v", users)
	}
	for _, u := range users {
		if u.ID == me.ID {
			t.Fatalf("caller must be excluded")
		}
	}

	w = a.do(call{method: http.MethodGet, path: "/users?q=ali&limit=5", token: tok})
	decode(t, w, &users)
	if len(users) != 1 || users[0].ID != alice.ID {
		t.Fatalf("search: %+v", users)
	}
	w = a.do(call{method: http.MethodGet, path: "/users?limit=1", token: tok})
	decode(t, w, &users)
	if len(users) != 1 {
		t.Fatalf("limit: %+v", users)
	}

	w = a.do(call{method: http.MethodGet, path: "/users/2", token: tok})
	var u domain.User
	decode(t, w, &u)
	if w.Code != http.StatusOK || u.ID != alice.ID {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	if w := a.do(call{method: http.MethodGet, path: "/users/abc", token: tok}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", w.Code)
	}
	if w := a.do(call{method: http.MethodGet, path: "/users/404", token: tok}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown id: %d", w.Code)
	}
}
