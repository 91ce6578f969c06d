package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ashureev/chatwire/internal/domain"
)

// TokenHeaderName is the request header carrying the JWT.
const TokenHeaderName = "token"

// UserGetter is the slice of the store the middleware needs.
type UserGetter interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

type contextKey int

const (
	userKey contextKey = iota
)

// WithUser returns a context carrying an authenticated user, as the
// middleware would produce.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext extracts the authenticated user from the request context.
func UserFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(userKey).(*domain.User); ok {
		return u
	}
	return nil
}

// UserIDFromContext extracts the authenticated user's ID, or "" if absent.
func UserIDFromContext(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}

// UserIDFromRequest is a convenience wrapper for middleware that keys
// off the authenticated user.
func UserIDFromRequest(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

func tokenFromRequest(r *http.Request) string {
	if t := r.Header.Get(TokenHeaderName); t != "" {
		return t
	}
	// Also accept a standard bearer token.
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// Middleware verifies the request token, loads the user, and injects it
// into the request context. Requests without a valid token get a 401.
func Middleware(repo UserGetter, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromRequest(r)
			if tokenString == "" {
				http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
				return
			}

			userID, err := ParseToken(secret, tokenString)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			user, err := repo.GetUser(r.Context(), userID)
			if err != nil {
				http.Error(w, `{"error":"failed to load user"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, `{"error":"user not found"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
