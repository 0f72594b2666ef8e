package config

import (
	"fmt"
	"os"
)

// ApplyEnvOverrides is stage 2 of config loading: environment variables win
// over the embedded yaml. JWT_SECRET has no yaml equivalent and is required
// outside local mode.
func ApplyEnvOverrides(cfg *AppConfig) error {
	if v := os.Getenv("API_PORT"); v != "" {
		cfg.APIPort = v
	}
	if v := os.Getenv("WEBSOCKET_PORT"); v != "" {
		cfg.WebSocketPort = v
	}
	if v := os.Getenv("PROJECT_ID"); v != "" {
		cfg.ProjectID = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.PresenceMirror.Redis.Addr = v
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if cfg.RunMode != "local" {
			return fmt.Errorf("JWT_SECRET must be set when run_mode is %q", cfg.RunMode)
		}
		cfg.JWTSecret = "local-dev-secret"
	}

	return nil
}

// Validate checks the invariants the rest of the application assumes.
func Validate(cfg *AppConfig) error {
	if cfg.APIPort == "" || cfg.WebSocketPort == "" {
		return fmt.Errorf("api_port and websocket_port must be set")
	}
	switch cfg.PresenceMirror.Type {
	case "memory":
	case "redis":
		if cfg.PresenceMirror.Redis.Addr == "" {
			return fmt.Errorf("presence_mirror.redis.addr must be set for the redis mirror")
		}
	default:
		return fmt.Errorf("unknown presence_mirror.type %q", cfg.PresenceMirror.Type)
	}
	if cfg.RunMode != "local" {
		if cfg.ProjectID == "" {
			return fmt.Errorf("project_id must be set when run_mode is %q", cfg.RunMode)
		}
		if cfg.Firestore.UsersCollectionName == "" || cfg.Firestore.MessagesCollectionName == "" {
			return fmt.Errorf("firestore collection names must be set when run_mode is %q", cfg.RunMode)
		}
	}
	return nil
}
