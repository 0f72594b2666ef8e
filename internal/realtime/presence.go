package realtime

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// Broadcaster pushes the current online-user set to every registered
// connection whenever the registry mutates. Announcing the same snapshot
// twice is harmless, so rapid successive mutations may be coalesced into a
// single announcement purely as a performance optimization.
type Broadcaster struct {
	registry *Registry
	window   time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	pending *time.Timer
}

// NewBroadcaster creates a broadcaster over the given registry. A window of
// zero announces immediately on every mutation; a positive window coalesces
// mutations that arrive within it.
func NewBroadcaster(registry *Registry, window time.Duration, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		window:   window,
		logger:   logger.With().Str("component", "Broadcaster").Logger(),
	}
}

// RegistryChanged schedules a presence announcement. Wired to the registry
// via OnMutation.
func (b *Broadcaster) RegistryChanged() {
	if b.window <= 0 {
		b.Announce()
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending != nil {
		// An announcement is already scheduled; it will pick up this
		// mutation's snapshot when it fires.
		return
	}
	b.pending = time.AfterFunc(b.window, func() {
		b.mu.Lock()
		b.pending = nil
		b.mu.Unlock()
		b.Announce()
	})
}

// Announce pushes the current snapshot to all connections. A failed push to
// one dead connection never aborts delivery to the others.
func (b *Broadcaster) Announce() {
	conns := b.registry.Connections()
	snapshot := b.registry.Snapshot()

	for userID, conn := range conns {
		if err := conn.Push(chat.EventOnlineUsers, snapshot); err != nil {
			b.logger.Debug().Err(err).Str("user", userID).Msg("Presence push failed.")
		}
	}
}
