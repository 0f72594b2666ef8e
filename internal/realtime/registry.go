// Package realtime provides the presence and delivery fan-out core: the
// connection registry, the presence broadcaster, the event router, and the
// WebSocket connection manager that feeds them.
package realtime

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// Registry maps a user ID to its single active connection. Last connection
// wins: a new Register for the same user silently supersedes the old entry
// without closing the old connection (closing is the transport's concern).
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]chat.Connection
	listeners []func()
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]chat.Connection),
		logger: logger.With().Str("component", "Registry").Logger(),
	}
}

// OnMutation registers a callback invoked after every effective mutation.
// Callbacks run outside the registry lock, on the mutating goroutine.
// Must be called before the registry is shared across goroutines.
func (r *Registry) OnMutation(fn func()) {
	r.listeners = append(r.listeners, fn)
}

// Register stores conn as the active connection for userID, unconditionally
// overwriting any existing entry.
func (r *Registry) Register(userID string, conn chat.Connection) {
	r.mu.Lock()
	_, replaced := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if replaced {
		r.logger.Debug().Str("user", userID).Msg("Connection superseded by newer registration.")
	}
	r.notify()
}

// Unregister removes the entry for userID only if conn is still the stored
// handle. A stale disconnect for a superseded connection is a silent no-op.
// Reports whether the entry was actually removed.
func (r *Registry) Unregister(userID string, conn chat.Connection) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	removed := ok && current == conn
	if removed {
		delete(r.conns, userID)
	}
	r.mu.Unlock()

	if !removed {
		r.logger.Debug().Str("user", userID).Msg("Ignoring stale disconnect.")
		return false
	}
	r.notify()
	return true
}

// Lookup returns the active connection for userID, if any.
func (r *Registry) Lookup(userID string) (chat.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// Snapshot returns the sorted set of currently connected user IDs.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Connections returns a copy of the current user-to-connection mapping.
func (r *Registry) Connections() map[string]chat.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]chat.Connection, len(r.conns))
	for id, conn := range r.conns {
		out[id] = conn
	}
	return out
}

func (r *Registry) notify() {
	for _, fn := range r.listeners {
		fn()
	}
}
