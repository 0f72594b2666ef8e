/*
File: cmd/chatservice/main.go
Description: Production entrypoint. Loads the embedded configuration,
builds real or in-memory dependencies per run mode, and runs the API and
WebSocket services.
*/
package main

import (
	"context"
	_ "embed" // Required for go:embed
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinywideclouds/go-chat-service/chatservice"
	"github.com/tinywideclouds/go-chat-service/chatservice/config"
	"github.com/tinywideclouds/go-chat-service/internal/app"
	"github.com/tinywideclouds/go-chat-service/internal/delivery"
	"github.com/tinywideclouds/go-chat-service/internal/middleware"
	"github.com/tinywideclouds/go-chat-service/internal/platform/persistence"
	"github.com/tinywideclouds/go-chat-service/internal/platform/presence"
	"github.com/tinywideclouds/go-chat-service/internal/realtime"
	"github.com/tinywideclouds/go-chat-service/internal/test/fakes"
	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

//go:embed config.yaml
var configFile []byte

func main() {
	// 1. Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "go-chat-service").Logger()

	// 2. Load config.yaml and apply environment overrides
	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 3. Create dependencies
	ctx := context.Background()
	deps, err := newDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize dependencies")
	}

	// 4. Build the realtime core shared by both servers
	registry, _, router := chatservice.NewTypingAwareRouter(cfg, logger)

	coordinator, err := delivery.NewCoordinator(deps.Messages, router, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create delivery coordinator")
	}

	// 5. Create authentication middleware
	authMiddleware := middleware.NewJWTAuthMiddleware(cfg.JWTSecret)

	// 6. Create the two main services
	apiService, err := chatservice.New(
		cfg,
		deps,
		coordinator,
		authMiddleware,
		logger.With().Str("component", "ApiService").Logger(),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API service")
	}

	connManager, err := realtime.NewConnectionManager(
		cfg.WebSocketPort,
		authMiddleware,
		registry,
		router,
		deps.Presence,
		logger.With().Str("component", "ConnManager").Logger(),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Connection Manager")
	}

	// 7. Run the application
	app.Run(ctx, logger, apiService, connManager)
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.NewConfigFromYaml(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDependencies builds the service dependency container.
func newDependencies(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*chat.ServiceDependencies, error) {
	if cfg.RunMode == "local" {
		logger.Warn().Msg("Running in 'local' mode. All external dependencies will be in-memory.")
		return &chat.ServiceDependencies{
			Users:    fakes.NewInMemoryUserStore(),
			Messages: fakes.NewInMemoryMessageStore(),
			Presence: presence.NewInMemoryMirror(),
		}, nil
	}
	return newProdDependencies(ctx, cfg, logger)
}

// newProdDependencies creates real, production-ready dependencies.
func newProdDependencies(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*chat.ServiceDependencies, error) {
	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to firestore: %w", err)
	}

	messageStore, err := persistence.NewFirestoreMessageStore(fsClient, cfg.Firestore.MessagesCollectionName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create message store: %w", err)
	}
	userStore, err := persistence.NewFirestoreUserStore(fsClient, cfg.Firestore.UsersCollectionName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}

	mirror, err := newPresenceMirror(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &chat.ServiceDependencies{
		Users:    userStore,
		Messages: messageStore,
		Presence: mirror,
	}, nil
}

// newPresenceMirror creates the pluggable presence mirror based on config.
func newPresenceMirror(cfg *config.AppConfig, logger zerolog.Logger) (chat.PresenceMirror, error) {
	logger.Info().Str("type", cfg.PresenceMirror.Type).Msg("Initializing presence mirror...")

	switch cfg.PresenceMirror.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.PresenceMirror.Redis.Addr})
		return presence.NewRedisMirror(client, logger)
	case "memory":
		return presence.NewInMemoryMirror(), nil
	default:
		return nil, fmt.Errorf("unknown presence mirror type: %q", cfg.PresenceMirror.Type)
	}
}
