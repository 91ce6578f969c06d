package client

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Message mirrors the server's message payload.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// User mirrors the server's user payload.
type User struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Bio        string `json:"bio,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

type event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleEvent applies one server event to local state. It is only ever
// called from the single read goroutine, so events apply in arrival
// order, one at a time.
func (c *Client) handleEvent(data []byte) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Debug("Dropping malformed event", "error", err)
		return
	}

	switch ev.Event {
	case "newMessage":
		var msg Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			slog.Debug("Dropping malformed newMessage event", "error", err)
			return
		}
		c.applyPush(msg)

	case "getOnlineUsers":
		var ids []string
		if err := json.Unmarshal(ev.Data, &ids); err != nil {
			slog.Debug("Dropping malformed getOnlineUsers event", "error", err)
			return
		}
		c.setOnline(ids)
	}
}

// applyPush reconciles a live-pushed message. A message from the
// selected partner is appended and acknowledged as seen; anything else
// bumps that sender's unseen count.
func (c *Client) applyPush(msg Message) {
	c.mu.Lock()
	if c.selected != "" && msg.SenderID == c.selected {
		msg.Seen = true
		c.messages = append(c.messages, msg)
		// Fire-and-forget: the UI never blocks on the ack.
		go c.ackSeen(msg.ID)
	} else {
		c.unseen[msg.SenderID]++
	}
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		handler(msg)
	}
}

// setOnline replaces the online set verbatim; no merging.
func (c *Client) setOnline(ids []string) {
	c.mu.Lock()
	c.online = ids
	c.mu.Unlock()
}

// SelectedPeer returns the current conversation partner, or "".
func (c *Client) SelectedPeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Messages returns a copy of the selected conversation's message list.
func (c *Client) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Unseen returns a copy of the per-sender unseen-count map.
func (c *Client) Unseen() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.unseen))
	for k, v := range c.unseen {
		out[k] = v
	}
	return out
}

// Online returns a copy of the last online-user set received.
func (c *Client) Online() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.online))
	copy(out, c.online)
	return out
}
