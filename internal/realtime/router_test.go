package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

func newTestRouter(t *testing.T, typingTTL time.Duration) (*Registry, *Router) {
	t.Helper()
	reg := NewRegistry(zerolog.Nop())
	return reg, NewRouter(reg, typingTTL, zerolog.Nop())
}

func TestRouter_OfflineIsSkippedNotError(t *testing.T) {
	_, router := newTestRouter(t, time.Second)

	res := router.RouteToUser("nobody", chat.EventNewMessage, "payload")
	assert.Equal(t, chat.Skipped, res)
}

func TestRouter_DeliversToRegisteredConnection(t *testing.T) {
	reg, router := newTestRouter(t, time.Second)
	conn := &fakeConn{}
	reg.Register("u1", conn)

	res := router.RouteToUser("u1", chat.EventNewMessage, "hello")
	assert.Equal(t, chat.Delivered, res)

	pushes := conn.events(chat.EventNewMessage)
	require.Len(t, pushes, 1)
	assert.Equal(t, "hello", pushes[0].Payload)
}

func TestRouter_PushFailureEvictsConnection(t *testing.T) {
	reg, router := newTestRouter(t, time.Second)
	conn := &fakeConn{}
	conn.failWith(errors.New("half-closed socket"))
	reg.Register("u1", conn)

	res := router.RouteToUser("u1", chat.EventNewMessage, "hello")
	assert.Equal(t, chat.Skipped, res)

	// The registry entry must be gone so the next attempt fails fast.
	_, ok := reg.Lookup("u1")
	assert.False(t, ok)
	assert.Equal(t, chat.Skipped, router.RouteToUser("u1", chat.EventNewMessage, "again"))
}

func TestRouter_EvictionNotifiesListeners(t *testing.T) {
	reg, router := newTestRouter(t, time.Second)
	var evicted []string
	router.OnEvicted(func(userID string) { evicted = append(evicted, userID) })

	conn := &fakeConn{}
	conn.failWith(errors.New("half-closed socket"))
	reg.Register("u1", conn)

	require.Equal(t, chat.Skipped, router.RouteToUser("u1", chat.EventNewMessage, "hello"))
	assert.Equal(t, []string{"u1"}, evicted)

	// Routing to an already-offline user is not an eviction.
	require.Equal(t, chat.Skipped, router.RouteToUser("u1", chat.EventNewMessage, "again"))
	assert.Len(t, evicted, 1)
}

// raceyConn fails every push and runs a side effect first, to model a
// reconnect landing between the failed push and the eviction.
type raceyConn struct {
	beforeFail func()
}

func (c *raceyConn) Push(string, any) error {
	c.beforeFail()
	return errors.New("broken pipe")
}

func TestRouter_StaleEvictionDoesNotNotify(t *testing.T) {
	reg, router := newTestRouter(t, time.Second)
	var evicted int
	router.OnEvicted(func(string) { evicted++ })

	fresh := &fakeConn{}
	dead := &raceyConn{beforeFail: func() { reg.Register("u1", fresh) }}
	reg.Register("u1", dead)

	// The push fails, but the reconnect won the race: the newer entry
	// survives and no eviction fires for it.
	require.Equal(t, chat.Skipped, router.RouteToUser("u1", chat.EventNewMessage, "hello"))
	assert.Equal(t, 0, evicted)

	got, ok := reg.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestRouter_RecoversAfterReconnect(t *testing.T) {
	reg, router := newTestRouter(t, time.Second)
	dead := &fakeConn{}
	dead.failWith(errors.New("broken pipe"))
	reg.Register("u1", dead)

	require.Equal(t, chat.Skipped, router.RouteToUser("u1", chat.EventNewMessage, "hi"))

	fresh := &fakeConn{}
	reg.Register("u1", fresh)
	assert.Equal(t, chat.Delivered, router.RouteToUser("u1", chat.EventNewMessage, "hi again"))
}

func TestRouter_RouteTypingChange(t *testing.T) {
	reg, router := newTestRouter(t, time.Minute)
	peer := &fakeConn{}
	reg.Register("u2", peer)

	res := router.RouteTypingChange("u1", "u2", true)
	assert.Equal(t, chat.Delivered, res)
	assert.True(t, router.IsTyping("u1", "u2"))

	pushes := peer.events(chat.EventTyping)
	require.Len(t, pushes, 1)
	assert.Equal(t, chat.TypingPayload{SenderID: "u1"}, pushes[0].Payload)

	res = router.RouteTypingChange("u1", "u2", false)
	assert.Equal(t, chat.Delivered, res)
	assert.False(t, router.IsTyping("u1", "u2"))

	stops := peer.events(chat.EventStopTyping)
	require.Len(t, stops, 1)
	assert.Equal(t, chat.TypingPayload{SenderID: "u1"}, stops[0].Payload)
}

func TestRouter_TypingStateTrackedWhenPeerOffline(t *testing.T) {
	_, router := newTestRouter(t, time.Minute)

	res := router.RouteTypingChange("u1", "u2", true)
	assert.Equal(t, chat.Skipped, res)
	assert.True(t, router.IsTyping("u1", "u2"), "state tracking is independent of reachability")
}

func TestRouter_TypingAutoExpires(t *testing.T) {
	reg, router := newTestRouter(t, 30*time.Millisecond)
	peer := &fakeConn{}
	reg.Register("u2", peer)

	router.RouteTypingChange("u1", "u2", true)
	require.True(t, router.IsTyping("u1", "u2"))

	require.Eventually(t, func() bool {
		return !router.IsTyping("u1", "u2")
	}, time.Second, 5*time.Millisecond)

	// The safety net also tells the peer the sender stopped.
	require.Eventually(t, func() bool {
		return len(peer.events(chat.EventStopTyping)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRouter_ClearTypingBeatsExpiry(t *testing.T) {
	reg, router := newTestRouter(t, 30*time.Millisecond)
	peer := &fakeConn{}
	reg.Register("u2", peer)

	router.RouteTypingChange("u1", "u2", true)
	router.ClearTyping("u1", "u2")
	assert.False(t, router.IsTyping("u1", "u2"))

	// Give the (cancelled) timer time to have fired; no stopTyping may
	// arrive from the expiry path.
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, peer.events(chat.EventStopTyping))
}

func TestRouter_RepeatTypingExtendsExpiry(t *testing.T) {
	_, router := newTestRouter(t, 200*time.Millisecond)

	router.RouteTypingChange("u1", "u2", true)
	time.Sleep(120 * time.Millisecond)
	router.RouteTypingChange("u1", "u2", true)
	time.Sleep(120 * time.Millisecond)

	assert.True(t, router.IsTyping("u1", "u2"), "a fresh typing event restarts the expiry clock")
}
