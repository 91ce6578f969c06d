package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/chatwire/internal/auth"
	"github.com/ashureev/chatwire/internal/config"
	"github.com/ashureev/chatwire/internal/domain"
	"github.com/ashureev/chatwire/internal/store"
	"github.com/ashureev/chatwire/internal/upload"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler serves signup, login, and profile endpoints.
type AuthHandler struct {
	repo     store.Repository
	uploader upload.Uploader
	cfg      *config.Config
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(repo store.Repository, uploader upload.Uploader, cfg *config.Config) *AuthHandler {
	return &AuthHandler{repo: repo, uploader: uploader, cfg: cfg}
}

// RegisterRoutes registers auth routes. authed wraps the routes that
// require a valid token.
func (h *AuthHandler) RegisterRoutes(r chi.Router, authed func(http.Handler) http.Handler) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.Get("/check", h.Check)
			r.Put("/update-profile", h.UpdateProfile)
		})
	})
}

type signupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

// Signup registers a new account and issues a token.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.FullName == "" || req.Email == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "missing details")
		return
	}
	if !strings.Contains(req.Email, "@") {
		Error(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < 6 {
		Error(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	existing, err := h.repo.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("Failed to check existing account", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	if existing != nil {
		Error(w, http.StatusConflict, "account already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.NewString(),
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Bio:          req.Bio,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		slog.Error("Failed to create user", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	h.respondWithToken(w, user, "account created successfully")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and issues a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	user, err := h.repo.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("Failed to look up account", "error", err)
		Error(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.respondWithToken(w, user, "login successful")
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, user *domain.User, message string) {
	token, err := auth.IssueToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		slog.Error("Failed to issue token", "error", err, "user_id", user.ID)
		Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"userData": user,
		"token":    token,
		"message":  message,
	})
}

// Check confirms the token is valid and returns the current user.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

type updateProfileRequest struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

// UpdateProfile updates profile fields, uploading a new picture when one
// is supplied.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = user.FullName
	}

	var picURL string
	if req.ProfilePic != "" {
		var err error
		picURL, err = h.uploader.Upload(r.Context(), req.ProfilePic)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid profile picture")
			return
		}
	}

	updated, err := h.repo.UpdateProfile(r.Context(), user.ID, fullName, req.Bio, picURL)
	if err != nil {
		slog.Error("Failed to update profile", "error", err, "user_id", user.ID)
		Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	if updated == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    updated,
	})
}
