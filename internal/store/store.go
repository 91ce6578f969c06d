// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/chatwire/internal/domain"
)

// Repository defines the interface for persisting users and messages.
type Repository interface {
	// CreateUser inserts a new user record.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves a user by ID. Returns (nil, nil) if absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByEmail retrieves a user by email. Returns (nil, nil) if absent.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// ListUsersExcept returns all users other than the given one,
	// ordered by creation time.
	ListUsersExcept(ctx context.Context, userID string) ([]*domain.User, error)

	// UpdateProfile updates the mutable profile fields of a user and
	// returns the updated record. An empty profilePic leaves the
	// existing picture untouched.
	UpdateProfile(ctx context.Context, userID, fullName, bio, profilePic string) (*domain.User, error)

	// InsertMessage persists a new message.
	InsertMessage(ctx context.Context, msg *domain.Message) error

	// GetMessage retrieves a message by ID. Returns (nil, nil) if absent.
	GetMessage(ctx context.Context, messageID string) (*domain.Message, error)

	// ConversationMessages returns all messages exchanged between the two
	// users, in both directions, ordered by creation time ascending.
	ConversationMessages(ctx context.Context, userA, userB string) ([]*domain.Message, error)

	// MarkMessageSeen flips the seen flag on a single message.
	// Returns false if no message with that ID exists. Flipping an
	// already-seen message is a no-op that still reports true.
	MarkMessageSeen(ctx context.Context, messageID string) (bool, error)

	// MarkConversationSeen flips the seen flag on every unseen message
	// from senderID to receiverID and returns how many were updated.
	MarkConversationSeen(ctx context.Context, senderID, receiverID string) (int64, error)

	// CountUnseen returns, per sender, the number of unseen messages
	// addressed to the given receiver. Senders with zero unseen
	// messages are omitted.
	CountUnseen(ctx context.Context, receiverID string) (map[string]int, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
