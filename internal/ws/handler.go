package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/chatwire/internal/metrics"
	"github.com/ashureev/chatwire/internal/presence"
	"github.com/coder/websocket"
)

// Handler upgrades HTTP requests to live connections and runs their
// lifecycle: Connecting -> Identified (when the handshake carries a
// userId) -> Disconnected. Anonymous connections stay unidentified and
// only receive broadcast events.
type Handler struct {
	registry      *presence.Registry
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a websocket handler bound to a presence registry.
func NewHandler(registry *presence.Registry, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	slog.Info("WebSocket connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}

	conn := newConn(userID, sock)
	defer conn.Close("session ended")

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	h.registry.Register(userID, conn)
	defer h.registry.Unregister(conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		conn.writeLoop(ctx)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		conn.readLoop(ctx)
	}()

	wg.Wait()
	slog.Info("WebSocket session ended", "user_id", userID, "handle", conn.ID())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
