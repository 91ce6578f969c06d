// Package chat implements the delivery coordinator: persisting messages
// and pushing them live to connected recipients.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/chatwire/internal/domain"
	"github.com/ashureev/chatwire/internal/metrics"
	"github.com/ashureev/chatwire/internal/presence"
	"github.com/ashureev/chatwire/internal/store"
	"github.com/ashureev/chatwire/internal/upload"
	"github.com/google/uuid"
)

var (
	// ErrValidation rejects an operation with bad input; no state changed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a lookup that matched nothing.
	ErrNotFound = errors.New("not found")
)

// Service coordinates the message store, the presence registry, and the
// image uploader. A send always succeeds once persisted; the live push
// is best-effort and its failure never reaches the sender.
type Service struct {
	repo     store.Repository
	registry *presence.Registry
	uploader upload.Uploader
}

// NewService creates a delivery coordinator.
func NewService(repo store.Repository, registry *presence.Registry, uploader upload.Uploader) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		uploader: uploader,
	}
}

// SendMessage persists a message and pushes it to the receiver's live
// connection if one exists. At least one of text and image is required;
// image is a base64 payload uploaded before persistence.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID, text, image string) (*domain.Message, error) {
	if text == "" && image == "" {
		return nil, fmt.Errorf("%w: message needs text or an image", ErrValidation)
	}

	receiver, err := s.repo.GetUser(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("look up receiver: %w", err)
	}
	if receiver == nil {
		return nil, fmt.Errorf("%w: unknown receiver %s", ErrValidation, receiverID)
	}

	var imageURL string
	if image != "" {
		imageURL, err = s.uploader.Upload(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("%w: upload image: %v", ErrValidation, err)
		}
	}

	msg := &domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      imageURL,
		Seen:       false,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	metrics.MessagesSent.Inc()

	s.pushLive(msg)
	return msg, nil
}

// pushLive delivers a message to the receiver's connection if present.
// Failures are swallowed: persistence already succeeded and the receiver
// recovers the message on its next history fetch.
func (s *Service) pushLive(msg *domain.Message) {
	handle, ok := s.registry.Lookup(msg.ReceiverID)
	if !ok {
		metrics.PushesMissed.Inc()
		slog.Debug("Receiver not online", "receiver_id", msg.ReceiverID, "message_id", msg.ID)
		return
	}

	payload, err := presence.EncodeEvent(presence.EventNewMessage, msg)
	if err != nil {
		slog.Error("Failed to encode message event", "error", err, "message_id", msg.ID)
		return
	}

	if !handle.TrySend(payload) {
		metrics.PushesDropped.Inc()
		slog.Warn("Live push dropped", "receiver_id", msg.ReceiverID, "message_id", msg.ID, "handle", handle.ID())
		return
	}
	metrics.LivePushes.Inc()
}

// MarkSeen flips the seen flag on a message. Idempotent; returns
// ErrNotFound for unknown IDs so direct callers can distinguish, while
// the live-ack path treats that as a no-op.
func (s *Service) MarkSeen(ctx context.Context, messageID string) error {
	found, err := s.repo.MarkMessageSeen(ctx, messageID)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	return nil
}

// History returns the conversation between the viewer and a peer, oldest
// first, and flips the seen flag on every message addressed to the
// viewer. The flip is not atomic with the read: a message landing in
// between is picked up by the next fetch. Returned messages reflect the
// state as read.
func (s *Service) History(ctx context.Context, viewerID, peerID string) ([]*domain.Message, error) {
	messages, err := s.repo.ConversationMessages(ctx, viewerID, peerID)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	if _, err := s.repo.MarkConversationSeen(ctx, peerID, viewerID); err != nil {
		return nil, fmt.Errorf("flip seen on history fetch: %w", err)
	}

	return messages, nil
}

// Sidebar returns every other user plus the viewer's per-sender unseen
// message counts.
func (s *Service) Sidebar(ctx context.Context, viewerID string) ([]*domain.User, map[string]int, error) {
	users, err := s.repo.ListUsersExcept(ctx, viewerID)
	if err != nil {
		return nil, nil, fmt.Errorf("list users: %w", err)
	}

	counts, err := s.repo.CountUnseen(ctx, viewerID)
	if err != nil {
		return nil, nil, fmt.Errorf("count unseen: %w", err)
	}

	return users, counts, nil
}
