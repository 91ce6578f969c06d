// Package client is a Go client for the chatwire server. It keeps a
// local view of one conversation at a time and reconciles it with live
// pushes from the websocket channel and history fetched over REST.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// UserID identifies this client on the live channel handshake.
	UserID string

	// Token is sent on every REST request.
	Token string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// MaxReconnects bounds consecutive reconnection attempts before the
	// client gives up. Defaults to 5.
	MaxReconnects int

	// ReconnectDelay is the initial backoff between attempts, doubling
	// up to MaxReconnectDelay. Defaults to 1s, capped at 5s.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = 5
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.MaxReconnectDelay == 0 {
		opts.MaxReconnectDelay = 5 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return opts
}

// Handler receives live-pushed messages. At most one handler is active
// per client; subscribing replaces any previous one.
type Handler func(msg Message)

// Subscription identifies an active handler registration.
type Subscription uint64

// Client holds the reconciliation state: the selected conversation
// partner, its ordered message list, the unseen-count map, and the
// online-user set.
type Client struct {
	opts Options

	mu       sync.Mutex
	selected string
	messages []Message
	unseen   map[string]int
	online   []string

	handler  Handler
	subToken Subscription

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client. Call Connect to open the live channel.
func New(opts Options) *Client {
	return &Client{
		opts:   opts.withDefaults(),
		unseen: make(map[string]int),
	}
}

// Subscribe installs the live-push handler, replacing any previous one.
// The returned subscription is needed to unsubscribe.
func (c *Client) Subscribe(h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subToken++
	c.handler = h
	return c.subToken
}

// Unsubscribe removes the handler identified by the subscription. A
// stale subscription (already replaced by a newer Subscribe) is a no-op,
// so teardown of an old listener never detaches a fresh one.
func (c *Client) Unsubscribe(s Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subToken == s {
		c.handler = nil
	}
}

// Connect opens the live channel and keeps it open in the background,
// reconnecting with backoff until MaxReconnects consecutive failures or
// Close. The first dial happens synchronously so callers learn about an
// unreachable server immediately.
func (c *Client) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	sock, err := c.dial(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("connect live channel: %w", err)
	}

	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, sock)
	return nil
}

// Close tears down the live channel and cancels any pending reconnect.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	url := c.opts.BaseURL + "/ws?userId=" + c.opts.UserID
	sock, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return sock, nil
}

// run reads events from the socket, reconnecting on failure. Events are
// handled one at a time from this single goroutine.
func (c *Client) run(ctx context.Context, sock *websocket.Conn) {
	defer close(c.done)

	attempts := 0
	delay := c.opts.ReconnectDelay

	for {
		if sock != nil {
			c.readAll(ctx, sock)
			_ = sock.Close(websocket.StatusNormalClosure, "client closing")
			sock = nil
			attempts = 0
			delay = c.opts.ReconnectDelay
		}

		if ctx.Err() != nil {
			return
		}

		attempts++
		if attempts > c.opts.MaxReconnects {
			slog.Warn("Live channel gave up reconnecting", "attempts", attempts-1)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.opts.MaxReconnectDelay {
			delay = c.opts.MaxReconnectDelay
		}

		next, err := c.dial(ctx)
		if err != nil {
			slog.Debug("Live channel reconnect failed", "error", err, "attempt", attempts)
			continue
		}
		sock = next
	}
}

func (c *Client) readAll(ctx context.Context, sock *websocket.Conn) {
	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			return
		}
		c.handleEvent(data)
	}
}
