/*
File: chatservice/chatservice.go
Description: Wires the HTTP API surface: handlers, middleware, and the
server lifecycle for the REST side of the service.
*/
// Package chatservice assembles the chat service's HTTP API server.
package chatservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-chat-service/chatservice/config"
	"github.com/tinywideclouds/go-chat-service/internal/api"
	"github.com/tinywideclouds/go-chat-service/internal/delivery"
	"github.com/tinywideclouds/go-chat-service/internal/middleware"
	"github.com/tinywideclouds/go-chat-service/internal/realtime"
	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// Wrapper owns the API HTTP server and its handlers.
type Wrapper struct {
	server        *http.Server
	apiHandler    *api.API
	logger        zerolog.Logger
	httpReadyChan chan struct{}
}

// New creates and wires up the API service.
func New(
	cfg *config.AppConfig,
	deps *chat.ServiceDependencies,
	coordinator *delivery.Coordinator,
	authMiddleware func(http.Handler) http.Handler,
	logger zerolog.Logger,
) (*Wrapper, error) {
	if deps == nil || deps.Users == nil || deps.Messages == nil {
		return nil, fmt.Errorf("user and message stores cannot be nil")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}

	apiHandler := api.NewAPI(
		deps.Users,
		deps.Messages,
		coordinator,
		cfg.JWTSecret,
		cfg.TokenTTL(),
		logger.With().Str("component", "API").Logger(),
	)

	cors := middleware.NewCORSMiddleware(middleware.CorsConfig{AllowedOrigins: cfg.Cors.AllowedOrigins})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("server is running"))
	})

	// Signup and login are the only unauthenticated routes.
	mux.Handle("POST /api/auth/signup", cors(http.HandlerFunc(apiHandler.SignupHandler)))
	mux.Handle("POST /api/auth/login", cors(http.HandlerFunc(apiHandler.LoginHandler)))

	authed := func(h http.HandlerFunc) http.Handler {
		return cors(authMiddleware(h))
	}
	mux.Handle("GET /api/auth/check-auth", authed(apiHandler.CheckAuthHandler))
	mux.Handle("PUT /api/auth/update-user", authed(apiHandler.UpdateUserHandler))
	mux.Handle("GET /api/auth/user/{id}", authed(apiHandler.GetUserHandler))
	mux.Handle("DELETE /api/auth/user", authed(apiHandler.DeleteUserHandler))
	mux.Handle("GET /api/messages/users", authed(apiHandler.ContactsHandler))
	mux.Handle("POST /api/messages/send/{id}", authed(apiHandler.SendHandler))
	mux.Handle("PUT /api/messages/mark/{id}", authed(apiHandler.MarkReadHandler))
	mux.Handle("GET /api/messages/{id}", authed(apiHandler.HistoryHandler))

	return &Wrapper{
		server:        &http.Server{Addr: ":" + cfg.APIPort, Handler: mux},
		apiHandler:    apiHandler,
		logger:        logger,
		httpReadyChan: make(chan struct{}),
	}, nil
}

// NewTypingAwareRouter builds the realtime core the coordinator and the
// connection manager share. Kept here so cmd wiring and tests construct it
// the same way.
func NewTypingAwareRouter(cfg *config.AppConfig, logger zerolog.Logger) (*realtime.Registry, *realtime.Broadcaster, *realtime.Router) {
	registry := realtime.NewRegistry(logger)
	broadcaster := realtime.NewBroadcaster(registry, cfg.PresenceCoalesce(), logger)
	registry.OnMutation(broadcaster.RegistryChanged)
	router := realtime.NewRouter(registry, cfg.TypingTimeout(), logger)
	return registry, broadcaster, router
}

// Handler exposes the full middleware-wrapped mux for httptest servers.
func (w *Wrapper) Handler() http.Handler {
	return w.server.Handler
}

// Start blocks serving HTTP until Shutdown or listener failure. The ready
// channel closes once the listener is active.
func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info().Str("addr", w.server.Addr).Msg("API server starting...")

	ln, err := net.Listen("tcp", w.server.Addr)
	if err != nil {
		return fmt.Errorf("API server failed to listen: %w", err)
	}
	close(w.httpReadyChan)

	if err := w.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Ready closes once the HTTP listener is active.
func (w *Wrapper) Ready() <-chan struct{} {
	return w.httpReadyChan
}

// Shutdown gracefully stops the HTTP server.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info().Msg("Shutting down API server...")
	if err := w.server.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("API server shutdown failed.")
		return err
	}
	w.logger.Info().Msg("API server shut down.")
	return nil
}
