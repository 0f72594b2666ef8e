package realtime

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// Router delivers domain events to the connection of a single target user.
// An offline target is an expected outcome, reported as chat.Skipped, never
// as an error.
type Router struct {
	registry  *Registry
	logger    zerolog.Logger
	onEvicted []func(userID string)

	typingTTL time.Duration
	mu        sync.Mutex
	typing    map[typingKey]*time.Timer
}

// typingKey identifies one direction of a conversation pair.
type typingKey struct {
	from string
	to   string
}

// NewRouter creates a router over the registry. typingTTL bounds how long a
// typing indicator survives without a stop event or a message; it is a
// policy knob, not a correctness invariant.
func NewRouter(registry *Registry, typingTTL time.Duration, logger zerolog.Logger) *Router {
	return &Router{
		registry:  registry,
		logger:    logger.With().Str("component", "Router").Logger(),
		typingTTL: typingTTL,
		typing:    make(map[typingKey]*time.Timer),
	}
}

// OnEvicted registers a callback invoked whenever a push failure removes a
// user's registry entry, so owners of derived state (the presence mirror)
// can clean up. Must be called before the router is shared across
// goroutines.
func (r *Router) OnEvicted(fn func(userID string)) {
	r.onEvicted = append(r.onEvicted, fn)
}

// RouteToUser pushes an event to userID's connection if one is registered.
// A push failure on a connection the registry believed live evicts the entry
// so subsequent attempts fail fast as Skipped.
func (r *Router) RouteToUser(userID string, event string, payload any) chat.RouteResult {
	conn, ok := r.registry.Lookup(userID)
	if !ok {
		r.logger.Debug().Str("user", userID).Str("event", event).Msg("User offline, skipping delivery.")
		return chat.Skipped
	}

	if err := conn.Push(event, payload); err != nil {
		r.logger.Debug().Err(err).Str("user", userID).Str("event", event).Msg("Push failed, evicting connection.")
		if r.registry.Unregister(userID, conn) {
			for _, fn := range r.onEvicted {
				fn(userID)
			}
		}
		return chat.Skipped
	}
	return chat.Delivered
}

// RouteTypingChange routes a typing-state event to the peer and updates the
// tracked typing state for the (from, to) direction. State tracking happens
// regardless of whether the peer is currently reachable.
func (r *Router) RouteTypingChange(fromUserID, toUserID string, isTyping bool) chat.RouteResult {
	if isTyping {
		r.setTyping(fromUserID, toUserID)
	} else {
		r.ClearTyping(fromUserID, toUserID)
	}

	event := chat.EventTyping
	if !isTyping {
		event = chat.EventStopTyping
	}
	return r.RouteToUser(toUserID, event, chat.TypingPayload{SenderID: fromUserID})
}

// ClearTyping drops any pending typing state for the (from, to) direction.
// Called on stop-typing events and when an actual message supersedes the
// indicator. Safe to call when no state is pending.
func (r *Router) ClearTyping(fromUserID, toUserID string) {
	key := typingKey{from: fromUserID, to: toUserID}
	r.mu.Lock()
	if timer, ok := r.typing[key]; ok {
		timer.Stop()
		delete(r.typing, key)
	}
	r.mu.Unlock()
}

// IsTyping reports whether fromUserID is currently marked as typing to
// toUserID. Used by the presence API and tests.
func (r *Router) IsTyping(fromUserID, toUserID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.typing[typingKey{from: fromUserID, to: toUserID}]
	return ok
}

func (r *Router) setTyping(fromUserID, toUserID string) {
	key := typingKey{from: fromUserID, to: toUserID}
	r.mu.Lock()
	if timer, ok := r.typing[key]; ok {
		timer.Stop()
	}
	r.typing[key] = time.AfterFunc(r.typingTTL, func() {
		r.expireTyping(fromUserID, toUserID)
	})
	r.mu.Unlock()
}

// expireTyping is the safety net for clients that vanish mid-keystroke: it
// clears the state and tells the peer the sender stopped typing.
func (r *Router) expireTyping(fromUserID, toUserID string) {
	key := typingKey{from: fromUserID, to: toUserID}
	r.mu.Lock()
	_, ok := r.typing[key]
	if ok {
		delete(r.typing, key)
	}
	r.mu.Unlock()

	if !ok {
		// A stop-typing event or a message beat the timer. Harmless.
		return
	}
	r.logger.Debug().Str("from", fromUserID).Str("to", toUserID).Msg("Typing indicator expired.")
	r.RouteToUser(toUserID, chat.EventStopTyping, chat.TypingPayload{SenderID: fromUserID})
}
