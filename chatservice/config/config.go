// Package config defines the chat service configuration: the yaml shape it
// is parsed from, the validated AppConfig the application uses, and the
// environment overrides applied between the two.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// --- YAML-Specific Structs ---

type YamlRedisConfig struct {
	Addr string `yaml:"addr"`
}

type YamlFirestoreConfig struct {
	UsersCollectionName    string `yaml:"users_collection_name"`
	MessagesCollectionName string `yaml:"messages_collection_name"`
}

type YamlPresenceMirrorConfig struct {
	Type  string          `yaml:"type"` // "memory" or "redis"
	Redis YamlRedisConfig `yaml:"redis"`
}

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// YamlConfig defines the structure for unmarshaling the embedded config.yaml file.
type YamlConfig struct {
	ProjectID            string                   `yaml:"project_id"`
	RunMode              string                   `yaml:"run_mode"`
	APIPort              string                   `yaml:"api_port"`
	WebSocketPort        string                   `yaml:"websocket_port"`
	Cors                 YamlCorsConfig           `yaml:"cors"`
	Firestore            YamlFirestoreConfig      `yaml:"firestore"`
	PresenceMirror       YamlPresenceMirrorConfig `yaml:"presence_mirror"`
	TypingTimeoutSeconds int                      `yaml:"typing_timeout_seconds"`
	PresenceCoalesceMS   int                      `yaml:"presence_coalesce_ms"`
	TokenTTLHours        int                      `yaml:"token_ttl_hours"`
}

// --- Application Config Struct ---

// AppConfig is the canonical, validated configuration object used throughout
// the application. JWTSecret only ever arrives via the environment.
type AppConfig struct {
	ProjectID            string
	RunMode              string
	APIPort              string
	WebSocketPort        string
	Cors                 YamlCorsConfig
	Firestore            YamlFirestoreConfig
	PresenceMirror       YamlPresenceMirrorConfig
	TypingTimeoutSeconds int
	PresenceCoalesceMS   int
	TokenTTLHours        int
	JWTSecret            string `env:"JWT_SECRET,required"`
}

// NewConfigFromYaml parses raw yaml bytes into a base AppConfig, without
// environment overrides.
func NewConfigFromYaml(data []byte) (*AppConfig, error) {
	var yamlCfg YamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml config: %w", err)
	}

	appCfg := &AppConfig{
		ProjectID:            yamlCfg.ProjectID,
		RunMode:              yamlCfg.RunMode,
		APIPort:              yamlCfg.APIPort,
		WebSocketPort:        yamlCfg.WebSocketPort,
		Cors:                 yamlCfg.Cors,
		Firestore:            yamlCfg.Firestore,
		PresenceMirror:       yamlCfg.PresenceMirror,
		TypingTimeoutSeconds: yamlCfg.TypingTimeoutSeconds,
		PresenceCoalesceMS:   yamlCfg.PresenceCoalesceMS,
		TokenTTLHours:        yamlCfg.TokenTTLHours,
	}

	return appCfg, nil
}

// TypingTimeout returns the typing-indicator expiry as a duration,
// defaulting to 4s when unset.
func (c *AppConfig) TypingTimeout() time.Duration {
	if c.TypingTimeoutSeconds <= 0 {
		return 4 * time.Second
	}
	return time.Duration(c.TypingTimeoutSeconds) * time.Second
}

// PresenceCoalesce returns the broadcast coalescing window; zero means
// announce immediately on every mutation.
func (c *AppConfig) PresenceCoalesce() time.Duration {
	if c.PresenceCoalesceMS <= 0 {
		return 0
	}
	return time.Duration(c.PresenceCoalesceMS) * time.Millisecond
}

// TokenTTL returns the auth token lifetime, defaulting to 7 days.
func (c *AppConfig) TokenTTL() time.Duration {
	if c.TokenTTLHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.TokenTTLHours) * time.Hour
}
