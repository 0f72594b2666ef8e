package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

const presenceKeyPrefix = "presence:"

// redisClient defines the interface we need from go-redis.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisMirror implements chat.PresenceMirror on Redis. One key per online
// user, holding the connection info as JSON.
type RedisMirror struct {
	client redisClient
	logger zerolog.Logger
}

// NewRedisMirror is the constructor for the RedisMirror.
func NewRedisMirror(client redisClient, logger zerolog.Logger) (*RedisMirror, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &RedisMirror{
		client: client,
		logger: logger.With().Str("component", "RedisMirror").Logger(),
	}, nil
}

func (m *RedisMirror) Set(ctx context.Context, userID string, info chat.ConnectionInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal connection info: %w", err)
	}
	if err := m.client.Set(ctx, presenceKeyPrefix+userID, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to set presence key: %w", err)
	}
	return nil
}

func (m *RedisMirror) Delete(ctx context.Context, userID string) error {
	if err := m.client.Del(ctx, presenceKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to delete presence key: %w", err)
	}
	return nil
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}

// Fetch reads back one user's mirrored presence. Returns chat.ErrNotFound
// when the user is offline.
func (m *RedisMirror) Fetch(ctx context.Context, userID string) (chat.ConnectionInfo, error) {
	var info chat.ConnectionInfo
	payload, err := m.client.Get(ctx, presenceKeyPrefix+userID).Bytes()
	if err == redis.Nil {
		return info, chat.ErrNotFound
	}
	if err != nil {
		return info, fmt.Errorf("failed to get presence key: %w", err)
	}
	if err := json.Unmarshal(payload, &info); err != nil {
		return info, fmt.Errorf("failed to unmarshal connection info: %w", err)
	}
	return info, nil
}
