package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/chatwire/internal/auth"
	"github.com/ashureev/chatwire/internal/chat"
	"github.com/ashureev/chatwire/internal/domain"
	"github.com/go-chi/chi/v5"
)

// fakeChatService scripts delivery coordinator responses.
type fakeChatService struct {
	sent       []domain.Message
	seenIDs    []string
	historyRes []*domain.Message
	sidebarRes []*domain.User
	unseenRes  map[string]int
	sendErr    error
	seenErr    error
}

func (f *fakeChatService) SendMessage(_ context.Context, senderID, receiverID, text, image string) (*domain.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	msg := domain.Message{
		ID:         "m1",
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		CreatedAt:  time.Now(),
	}
	f.sent = append(f.sent, msg)
	return &msg, nil
}

func (f *fakeChatService) MarkSeen(_ context.Context, messageID string) error {
	f.seenIDs = append(f.seenIDs, messageID)
	return f.seenErr
}

func (f *fakeChatService) History(context.Context, string, string) ([]*domain.Message, error) {
	return f.historyRes, nil
}

func (f *fakeChatService) Sidebar(context.Context, string) ([]*domain.User, map[string]int, error) {
	return f.sidebarRes, f.unseenRes, nil
}

// asUser fakes the auth middleware for tests.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithUser(r.Context(), &domain.User{ID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func noLimit(next http.Handler) http.Handler { return next }

func newTestRouter(svc ChatService, viewerID string) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(asUser(viewerID))
		NewConversationHandler(svc).RegisterRoutes(r, noLimit)
	})
	return r
}

func TestSend(t *testing.T) {
	svc := &fakeChatService{}
	router := newTestRouter(svc, "alice")

	body := bytes.NewBufferString(`{"text":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/bob/messages", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		NewMessage domain.Message `json:"newMessage"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.NewMessage.SenderID != "alice" || resp.NewMessage.ReceiverID != "bob" || resp.NewMessage.Text != "hello" {
		t.Errorf("Unexpected message: %+v", resp.NewMessage)
	}
	if len(svc.sent) != 1 {
		t.Errorf("Expected one send call, got %d", len(svc.sent))
	}
}

func TestSend_ValidationError(t *testing.T) {
	svc := &fakeChatService{sendErr: fmt.Errorf("%w: message needs text or an image", chat.ErrValidation)}
	router := newTestRouter(svc, "alice")

	req := httptest.NewRequest(http.MethodPost, "/conversations/bob/messages", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHistory_EmptyConversationIsEmptyList(t *testing.T) {
	svc := &fakeChatService{}
	router := newTestRouter(svc, "alice")

	req := httptest.NewRequest(http.MethodGet, "/conversations/nobody", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if string(resp["messages"]) != "[]" {
		t.Errorf("Expected empty messages array, got %s", resp["messages"])
	}
}

func TestSidebar(t *testing.T) {
	svc := &fakeChatService{
		sidebarRes: []*domain.User{{ID: "bob", FullName: "Bob"}},
		unseenRes:  map[string]int{"bob": 2},
	}
	router := newTestRouter(svc, "alice")

	req := httptest.NewRequest(http.MethodGet, "/conversations/users", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Users          []domain.User  `json:"users"`
		UnseenMessages map[string]int `json:"unseenMessages"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].ID != "bob" {
		t.Errorf("Unexpected users: %+v", resp.Users)
	}
	if resp.UnseenMessages["bob"] != 2 {
		t.Errorf("Expected 2 unseen from bob, got %d", resp.UnseenMessages["bob"])
	}
}

func TestMarkSeen_UnknownIDStillSucceeds(t *testing.T) {
	svc := &fakeChatService{seenErr: fmt.Errorf("%w: message gone", chat.ErrNotFound)}
	router := newTestRouter(svc, "alice")

	req := httptest.NewRequest(http.MethodPut, "/messages/gone/seen", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for unknown ID, got %d", w.Code)
	}
	if len(svc.seenIDs) != 1 || svc.seenIDs[0] != "gone" {
		t.Errorf("Expected MarkSeen called with 'gone', got %v", svc.seenIDs)
	}
}
