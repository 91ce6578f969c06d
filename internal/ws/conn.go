// Package ws provides the websocket live channel for event delivery.
package ws

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// sendQueueSize bounds queued pushes per connection; a connection that
// falls this far behind starts dropping events.
const sendQueueSize = 256

// Conn is one live connection handle. It implements presence.Handle.
type Conn struct {
	id     string
	userID string

	sock *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
	reason    string
}

func newConn(userID string, sock *websocket.Conn) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		userID: userID,
		sock:   sock,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// ID identifies this connection instance.
func (c *Conn) ID() string {
	return c.id
}

// UserID returns the identity supplied at handshake, or "" for an
// anonymous connection.
func (c *Conn) UserID() string {
	return c.userID
}

// TrySend queues a payload without blocking. Returns false if the
// connection is closed or its queue is full.
func (c *Conn) TrySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
		_ = c.sock.Close(websocket.StatusNormalClosure, reason)
	})
}

// writeLoop drains the send queue onto the socket until the connection
// closes or a write fails.
func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.sock.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		}
	}
}

// readLoop consumes the socket until it closes. Clients send nothing
// beyond the handshake, but reading is what services control frames and
// surfaces the disconnect.
func (c *Conn) readLoop(ctx context.Context) {
	for {
		if _, _, err := c.sock.Read(ctx); err != nil {
			return
		}
	}
}
