package presence

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/ashureev/chatwire/internal/metrics"
)

// Handle is one live connection as seen by the registry. Implementations
// must make TrySend non-blocking: the registry calls it under its lock.
type Handle interface {
	// ID identifies this connection instance, distinct from user identity.
	ID() string

	// TrySend queues a payload for delivery and reports whether it was
	// accepted. It never blocks; a full or closed connection returns false.
	TrySend(payload []byte) bool

	// Close tears down the underlying connection.
	Close(reason string)
}

// Registry is the process-wide mapping from user identity to live
// connection handle. At most one handle per user; a newer connection for
// the same user supersedes the older one. State lives only for the
// process lifetime and starts empty.
type Registry struct {
	mu     sync.Mutex
	byUser map[string]Handle // identified users -> current handle
	owner  map[string]string // handle ID -> user ID, for removal by handle
	conns  map[string]Handle // every open connection, anonymous included
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]Handle),
		owner:  make(map[string]string),
		conns:  make(map[string]Handle),
	}
}

// Register adds a connection. A non-empty userID makes the handle the
// user's current connection, superseding and closing any previous one;
// an empty userID joins the broadcast set only (anonymous connection).
// Every call broadcasts the updated online-user set to all connections.
func (r *Registry) Register(userID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[h.ID()] = h

	if userID != "" {
		if existing, ok := r.byUser[userID]; ok && existing.ID() != h.ID() {
			// Last connection wins. Closing the old handle lets its own
			// read loop observe the shutdown and unregister itself; that
			// late unregister must not evict this fresh entry.
			existing.Close("connection superseded")
			slog.Info("Connection superseded", "user_id", userID, "old_handle", existing.ID(), "new_handle", h.ID())
		}
		r.byUser[userID] = h
		r.owner[h.ID()] = userID
		slog.Info("User connected", "user_id", userID, "handle", h.ID())
	} else {
		slog.Info("Anonymous connection registered", "handle", h.ID())
	}

	metrics.UsersOnline.Set(float64(len(r.byUser)))
	r.broadcastOnlineLocked()
}

// Unregister removes a connection by handle identity. If the handle was
// already superseded by a newer connection for the same user, the user's
// current entry is left alone. Broadcasts the updated online-user set.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[h.ID()]; !ok {
		return
	}
	delete(r.conns, h.ID())

	if userID, ok := r.owner[h.ID()]; ok {
		delete(r.owner, h.ID())
		if current, ok := r.byUser[userID]; ok && current.ID() == h.ID() {
			delete(r.byUser, userID)
			slog.Info("User disconnected", "user_id", userID, "handle", h.ID())
		} else {
			slog.Debug("Stale disconnect ignored", "user_id", userID, "handle", h.ID())
		}
	}

	metrics.UsersOnline.Set(float64(len(r.byUser)))
	r.broadcastOnlineLocked()
}

// Lookup returns the current handle for a user, if any.
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byUser[userID]
	return h, ok
}

// SnapshotIDs returns the sorted set of currently connected user IDs.
func (r *Registry) SnapshotIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotIDsLocked()
}

func (r *Registry) snapshotIDsLocked() []string {
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// broadcastOnlineLocked pushes the online-user set to every open
// connection, anonymous ones included. Sends are best-effort; a slow
// connection just misses this update and catches the next one.
func (r *Registry) broadcastOnlineLocked() {
	payload, err := EncodeEvent(EventOnlineUsers, r.snapshotIDsLocked())
	if err != nil {
		slog.Error("Failed to encode online users event", "error", err)
		return
	}
	for _, h := range r.conns {
		if !h.TrySend(payload) {
			metrics.PushesDropped.Inc()
		}
	}
}
