package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-chat-service/internal/middleware"
	"github.com/tinywideclouds/go-chat-service/internal/platform/presence"
	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// queryAuth authenticates the request as the user named in the "user" query
// parameter. Test-only stand-in for the JWT middleware.
func queryAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.ContextWithUserID(r.Context(), userID)))
	})
}

// receivedFrame mirrors the wire shape with the payload left raw.
type receivedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type managerFixture struct {
	cm       *ConnectionManager
	registry *Registry
	router   *Router
	mirror   *presence.InMemoryMirror
	wsServer *httptest.Server
}

func setupManager(t *testing.T) *managerFixture {
	t.Helper()
	logger := zerolog.Nop()

	registry := NewRegistry(logger)
	broadcaster := NewBroadcaster(registry, 0, logger)
	registry.OnMutation(broadcaster.RegistryChanged)
	router := NewRouter(registry, time.Second, logger)
	mirror := presence.NewInMemoryMirror()

	cm, err := NewConnectionManager("0", queryAuth, registry, router, mirror, logger)
	require.NoError(t, err, "NewConnectionManager failed")

	wsServer := httptest.NewServer(cm.server.Handler)
	t.Cleanup(wsServer.Close)

	return &managerFixture{
		cm:       cm,
		registry: registry,
		router:   router,
		mirror:   mirror,
		wsServer: wsServer,
	}
}

// connectClient connects a websocket client for userID and waits for it to
// be registered.
func (fx *managerFixture) connectClient(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(fx.wsServer.URL, "http") + "/connect?user=" + userID

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Failed to dial test WebSocket server")
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		_, ok := fx.registry.Lookup(userID)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "connection was not registered")

	return conn
}

// readUntil reads frames until one with the wanted event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) receivedFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var f receivedFrame
		err := conn.ReadJSON(&f)
		require.NoError(t, err, "did not receive %q frame in time", event)
		if f.Event == event {
			return f
		}
	}
}

func TestConnectionManager_RejectsUnauthenticated(t *testing.T) {
	fx := setupManager(t)
	wsURL := "ws" + strings.TrimPrefix(fx.wsServer.URL, "http") + "/connect"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectionManager_PresenceLifecycle(t *testing.T) {
	fx := setupManager(t)

	u1 := fx.connectClient(t, "u1")
	f := readUntil(t, u1, chat.EventOnlineUsers)
	var online []string
	require.NoError(t, json.Unmarshal(f.Data, &online))
	assert.Equal(t, []string{"u1"}, online)

	u2 := fx.connectClient(t, "u2")
	f = readUntil(t, u2, chat.EventOnlineUsers)
	require.NoError(t, json.Unmarshal(f.Data, &online))
	assert.Equal(t, []string{"u1", "u2"}, online)

	// u1 sees the updated set too.
	for {
		f = readUntil(t, u1, chat.EventOnlineUsers)
		require.NoError(t, json.Unmarshal(f.Data, &online))
		if len(online) == 2 {
			break
		}
	}

	// Presence is mirrored for both users.
	_, ok := fx.mirror.Get("u1")
	assert.True(t, ok)
	_, ok = fx.mirror.Get("u2")
	assert.True(t, ok)

	// Disconnect u1: u2 is re-announced the shrunken set, mirror cleared.
	require.NoError(t, u1.Close())
	for {
		f = readUntil(t, u2, chat.EventOnlineUsers)
		require.NoError(t, json.Unmarshal(f.Data, &online))
		if len(online) == 1 {
			break
		}
	}
	assert.Equal(t, []string{"u2"}, online)

	require.Eventually(t, func() bool {
		_, ok := fx.mirror.Get("u1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectionManager_ForwardsTypingFrames(t *testing.T) {
	fx := setupManager(t)

	u1 := fx.connectClient(t, "u1")
	u2 := fx.connectClient(t, "u2")

	err := u1.WriteJSON(map[string]any{
		"event": chat.EventTyping,
		"data":  map[string]string{"receiverId": "u2"},
	})
	require.NoError(t, err)

	f := readUntil(t, u2, chat.EventTyping)
	var payload chat.TypingPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "u1", payload.SenderID)

	require.Eventually(t, func() bool {
		return fx.router.IsTyping("u1", "u2")
	}, time.Second, 10*time.Millisecond)

	err = u1.WriteJSON(map[string]any{
		"event": chat.EventStopTyping,
		"data":  map[string]string{"receiverId": "u2"},
	})
	require.NoError(t, err)

	f = readUntil(t, u2, chat.EventStopTyping)
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "u1", payload.SenderID)

	require.Eventually(t, func() bool {
		return !fx.router.IsTyping("u1", "u2")
	}, time.Second, 10*time.Millisecond)
}

func TestConnectionManager_ReconnectSupersedes(t *testing.T) {
	fx := setupManager(t)

	first := fx.connectClient(t, "u1")
	firstConn, ok := fx.registry.Lookup("u1")
	require.True(t, ok)

	// Same user connects again (new tab). The registry must point at the
	// new connection.
	fx.connectClient(t, "u1")
	require.Eventually(t, func() bool {
		current, ok := fx.registry.Lookup("u1")
		return ok && current != firstConn
	}, 2*time.Second, 10*time.Millisecond)

	// The first connection going away must not evict the new one.
	require.NoError(t, first.Close())
	assert.Never(t, func() bool {
		_, ok := fx.registry.Lookup("u1")
		return !ok
	}, 300*time.Millisecond, 25*time.Millisecond, "stale disconnect evicted the newer connection")

	snapshot := fx.registry.Snapshot()
	assert.Equal(t, []string{"u1"}, snapshot)
	_, mirrored := fx.mirror.Get("u1")
	assert.True(t, mirrored, "mirror entry must survive the stale disconnect")
}

func TestConnectionManager_RoutedMessageReachesClient(t *testing.T) {
	fx := setupManager(t)
	u2 := fx.connectClient(t, "u2")

	msg := &chat.Message{ID: "m1", SenderID: "u1", ReceiverID: "u2", Text: "hello"}
	res := fx.router.RouteToUser("u2", chat.EventNewMessage, msg)
	require.Equal(t, chat.Delivered, res)

	f := readUntil(t, u2, chat.EventNewMessage)
	var got chat.Message
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "u1", got.SenderID)
}

func TestConnectionManager_EvictionClearsMirroredPresence(t *testing.T) {
	fx := setupManager(t)

	dead := &fakeConn{}
	dead.failWith(errors.New("half-closed socket"))
	fx.cm.add("u1", dead)
	_, ok := fx.mirror.Get("u1")
	require.True(t, ok)

	// A push failure evicts the connection; the mirror must not keep
	// reporting the evicted user as online.
	require.Equal(t, chat.Skipped, fx.router.RouteToUser("u1", chat.EventNewMessage, "hi"))
	_, ok = fx.mirror.Get("u1")
	assert.False(t, ok)

	// The read loop's eventual disconnect for the evicted handle is a
	// stale no-op and leaves nothing behind.
	fx.cm.remove("u1", dead)
	_, ok = fx.mirror.Get("u1")
	assert.False(t, ok)
	_, ok = fx.registry.Lookup("u1")
	assert.False(t, ok)
}

func TestConnectionManager_EvictionSparesReconnectedMirror(t *testing.T) {
	fx := setupManager(t)

	dead := &fakeConn{}
	dead.failWith(errors.New("half-closed socket"))
	fx.cm.add("u1", dead)
	require.Equal(t, chat.Skipped, fx.router.RouteToUser("u1", chat.EventNewMessage, "hi"))

	// The user reconnects after the eviction; the stale disconnect for the
	// old handle must not wipe the fresh mirror entry.
	fresh := &fakeConn{}
	fx.cm.add("u1", fresh)
	fx.cm.remove("u1", dead)

	_, ok := fx.mirror.Get("u1")
	assert.True(t, ok)
	got, ok := fx.registry.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestConnectionManager_Shutdown(t *testing.T) {
	fx := setupManager(t)
	fx.connectClient(t, "u1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fx.cm.Shutdown(ctx))
}
