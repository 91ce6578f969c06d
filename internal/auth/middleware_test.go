package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/chatwire/internal/domain"
)

type fakeUserGetter struct {
	users map[string]*domain.User
}

func (f *fakeUserGetter) GetUser(_ context.Context, userID string) (*domain.User, error) {
	return f.users[userID], nil
}

func newAuthedRequest(t *testing.T, secret, userID string) *http.Request {
	t.Helper()
	token, err := IssueToken(secret, userID, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TokenHeaderName, token)
	return req
}

func TestMiddleware_InjectsUser(t *testing.T) {
	repo := &fakeUserGetter{users: map[string]*domain.User{
		"u1": {ID: "u1", FullName: "Alice"},
	}}

	var got *domain.User
	handler := Middleware(repo, "secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newAuthedRequest(t, "secret", "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got == nil || got.ID != "u1" {
		t.Errorf("Expected user u1 in context, got %+v", got)
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	repo := &fakeUserGetter{users: map[string]*domain.User{
		"u1": {ID: "u1"},
	}}
	mw := Middleware(repo, "secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler must not run for rejected requests")
	})

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{
			name: "missing token",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/", nil)
			},
		},
		{
			name: "bad token",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set(TokenHeaderName, "garbage")
				return r
			},
		},
		{
			name: "unknown user",
			req: func() *http.Request {
				return newAuthedRequest(t, "secret", "ghost")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mw(next).ServeHTTP(w, tt.req())
			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401, got %d", w.Code)
			}
		})
	}
}

func TestMiddleware_BearerHeader(t *testing.T) {
	repo := &fakeUserGetter{users: map[string]*domain.User{
		"u1": {ID: "u1"},
	}}

	token, err := IssueToken("secret", "u1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	var got string
	handler := Middleware(repo, "secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got != "u1" {
		t.Errorf("Expected u1 from bearer token, got %q", got)
	}
}
