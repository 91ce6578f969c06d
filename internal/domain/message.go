package domain

import (
	"time"
)

// Message is a single chat message between two users.
//
// A message carries text, an image URL, or both. The seen flag is
// monotonic: it only ever flips from false to true, and messages are
// never deleted. Callers receive snapshots; the store is the sole writer.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasContent reports whether the message carries any payload.
func (m *Message) HasContent() bool {
	return m.Text != "" || m.Image != ""
}

// Between reports whether the message belongs to the conversation
// between the two given users, in either direction.
func (m *Message) Between(userA, userB string) bool {
	return (m.SenderID == userA && m.ReceiverID == userB) ||
		(m.SenderID == userB && m.ReceiverID == userA)
}
