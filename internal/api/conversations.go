package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/chatwire/internal/auth"
	"github.com/ashureev/chatwire/internal/chat"
	"github.com/ashureev/chatwire/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ChatService is the delivery coordinator surface the REST layer needs.
type ChatService interface {
	SendMessage(ctx context.Context, senderID, receiverID, text, image string) (*domain.Message, error)
	MarkSeen(ctx context.Context, messageID string) error
	History(ctx context.Context, viewerID, peerID string) ([]*domain.Message, error)
	Sidebar(ctx context.Context, viewerID string) ([]*domain.User, map[string]int, error)
}

// ConversationHandler serves the conversation and message endpoints.
type ConversationHandler struct {
	svc ChatService
}

// NewConversationHandler creates a handler around a delivery coordinator.
func NewConversationHandler(svc ChatService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// RegisterRoutes registers conversation routes. sendLimit is applied to
// the message-send endpoint only.
func (h *ConversationHandler) RegisterRoutes(r chi.Router, sendLimit func(http.Handler) http.Handler) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/users", h.Sidebar)
		r.Get("/{peerID}", h.History)
		r.With(sendLimit).Post("/{peerID}/messages", h.Send)
	})
	r.Put("/messages/{messageID}/seen", h.MarkSeen)
}

// Sidebar returns all other users and the viewer's unseen-count map.
func (h *ConversationHandler) Sidebar(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.UserIDFromContext(r.Context())

	users, unseen, err := h.svc.Sidebar(r.Context(), viewerID)
	if err != nil {
		slog.Error("Failed to build sidebar", "error", err, "user_id", viewerID)
		Error(w, http.StatusInternalServerError, "failed to load users")
		return
	}

	if users == nil {
		users = []*domain.User{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"users":          users,
		"unseenMessages": unseen,
	})
}

// History returns the conversation with a peer, flipping unseen messages
// addressed to the viewer as a side effect.
func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.UserIDFromContext(r.Context())
	peerID := chi.URLParam(r, "peerID")

	messages, err := h.svc.History(r.Context(), viewerID, peerID)
	if err != nil {
		slog.Error("Failed to fetch history", "error", err, "user_id", viewerID, "peer_id", peerID)
		Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	// An unknown peer is just an empty conversation.
	if messages == nil {
		messages = []*domain.Message{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

type sendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// Send persists a message to the peer and pushes it live when possible.
func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	senderID := auth.UserIDFromContext(r.Context())
	peerID := chi.URLParam(r, "peerID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.svc.SendMessage(r.Context(), senderID, peerID, req.Text, req.Image)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Failed to send message", "error", err, "sender_id", senderID, "receiver_id", peerID)
		Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"newMessage": msg,
	})
}

// MarkSeen flips a message's seen flag. Unknown IDs are treated as
// already handled; the flip is idempotent either way.
func (h *ConversationHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	if err := h.svc.MarkSeen(r.Context(), messageID); err != nil && !errors.Is(err, chat.ErrNotFound) {
		slog.Error("Failed to mark message seen", "error", err, "message_id", messageID)
		Error(w, http.StatusInternalServerError, "failed to mark message seen")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}
