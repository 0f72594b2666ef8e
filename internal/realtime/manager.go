package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-chat-service/internal/middleware"
	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// ConnectionManager owns the WebSocket endpoint: it upgrades authenticated
// requests, registers the resulting connections, forwards client typing
// frames to the router, and unregisters on disconnect. It runs its own
// dedicated HTTP server.
type ConnectionManager struct {
	server     *http.Server
	upgrader   websocket.Upgrader
	registry   *Registry
	router     *Router
	mirror     chat.PresenceMirror
	logger     zerolog.Logger
	instanceID string
}

// NewConnectionManager creates and wires up a new WebSocket connection manager.
func NewConnectionManager(
	port string,
	authMiddleware func(http.Handler) http.Handler,
	registry *Registry,
	router *Router,
	mirror chat.PresenceMirror,
	logger zerolog.Logger,
) (*ConnectionManager, error) {
	if registry == nil || router == nil {
		return nil, fmt.Errorf("registry and router cannot be nil")
	}
	if mirror == nil {
		return nil, fmt.Errorf("presence mirror cannot be nil")
	}

	instanceID := uuid.NewString()
	cmLogger := logger.With().Str("component", "ConnectionManager").Str("instance", instanceID).Logger()

	cm := &ConnectionManager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to the configured CORS origins
				return true
			},
		},
		registry:   registry,
		router:     router,
		mirror:     mirror,
		logger:     cmLogger,
		instanceID: instanceID,
	}

	// Push-failure evictions bypass the disconnect path, so the mirror has
	// to be cleared from here or it keeps reporting the user online.
	router.OnEvicted(cm.clearMirror)

	mux := http.NewServeMux()
	mux.Handle("/connect", authMiddleware(http.HandlerFunc(cm.connectHandler)))
	cm.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	return cm, nil
}

// Start runs the HTTP server for WebSocket connections.
func (cm *ConnectionManager) Start(ctx context.Context) error {
	cm.logger.Info().Str("addr", cm.server.Addr).Msg("WebSocket server starting...")
	if err := cm.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (cm *ConnectionManager) Shutdown(ctx context.Context) error {
	cm.logger.Info().Msg("Shutting down WebSocket service...")
	if err := cm.server.Shutdown(ctx); err != nil {
		cm.logger.Error().Err(err).Msg("WebSocket server shutdown failed.")
		return err
	}
	cm.logger.Info().Msg("WebSocket service shut down.")
	return nil
}

// connectHandler upgrades a new HTTP request to a WebSocket and manages its
// lifecycle.
func (cm *ConnectionManager) connectHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cm.logger.Error().Err(err).Msg("Failed to upgrade connection.")
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			cm.logger.Debug().Err(err).Msg("error closing connection")
		}
	}()

	wsc := newWSConnection(conn, cm.logger.With().Str("user", userID).Logger())
	defer wsc.stop()

	cm.add(userID, wsc)
	defer cm.remove(userID, wsc)

	cm.logger.Info().Str("user", userID).Msg("User connected via WebSocket.")
	cm.readLoop(userID, conn)
}

// readLoop consumes client frames until the connection drops. The only
// frames the server acts on are typing state changes.
func (cm *ConnectionManager) readLoop(userID string, conn *websocket.Conn) {
	for {
		var in inboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cm.logger.Debug().Err(err).Str("user", userID).Msg("Read loop ended.")
			}
			return
		}

		switch in.Event {
		case chat.EventTyping:
			cm.router.RouteTypingChange(userID, in.Data.ReceiverID, true)
		case chat.EventStopTyping:
			cm.router.RouteTypingChange(userID, in.Data.ReceiverID, false)
		default:
			cm.logger.Debug().Str("user", userID).Str("event", in.Event).Msg("Ignoring unknown client event.")
		}
	}
}

// add registers a new connection and mirrors the user's presence.
func (cm *ConnectionManager) add(userID string, conn chat.Connection) {
	cm.registry.Register(userID, conn)

	info := chat.ConnectionInfo{
		ServerInstanceID: cm.instanceID,
		ConnectedAt:      time.Now().Unix(),
	}
	if err := cm.mirror.Set(context.Background(), userID, info); err != nil {
		cm.logger.Error().Err(err).Str("user", userID).Msg("Failed to mirror user presence.")
	}
}

// remove unregisters a connection. The registry's handle guard means a
// disconnect that raced a reconnect leaves the newer entry (and its mirrored
// presence) untouched.
func (cm *ConnectionManager) remove(userID string, conn chat.Connection) {
	if !cm.registry.Unregister(userID, conn) {
		return
	}

	cm.clearMirror(userID)
	cm.logger.Info().Str("user", userID).Msg("User disconnected.")
}

func (cm *ConnectionManager) clearMirror(userID string) {
	if err := cm.mirror.Delete(context.Background(), userID); err != nil {
		cm.logger.Error().Err(err).Str("user", userID).Msg("Failed to clear mirrored presence.")
	}
}
