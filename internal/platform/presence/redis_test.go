package presence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

func setupRedisMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mirror, err := NewRedisMirror(client, zerolog.Nop())
	require.NoError(t, err)
	return mirror, mr
}

func TestRedisMirror_SetAndFetch(t *testing.T) {
	mirror, _ := setupRedisMirror(t)
	ctx := context.Background()

	info := chat.ConnectionInfo{ServerInstanceID: "instance-1", ConnectedAt: 1700000000}
	require.NoError(t, mirror.Set(ctx, "u1", info))

	got, err := mirror.Fetch(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestRedisMirror_FetchUnknownUser(t *testing.T) {
	mirror, _ := setupRedisMirror(t)

	_, err := mirror.Fetch(context.Background(), "nobody")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestRedisMirror_Delete(t *testing.T) {
	mirror, mr := setupRedisMirror(t)
	ctx := context.Background()

	require.NoError(t, mirror.Set(ctx, "u1", chat.ConnectionInfo{ServerInstanceID: "i"}))
	require.True(t, mr.Exists("presence:u1"))

	require.NoError(t, mirror.Delete(ctx, "u1"))
	assert.False(t, mr.Exists("presence:u1"))

	// Deleting an absent key is not an error.
	assert.NoError(t, mirror.Delete(ctx, "u1"))
}

func TestRedisMirror_NilClientRejected(t *testing.T) {
	_, err := NewRedisMirror(nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestInMemoryMirror_Lifecycle(t *testing.T) {
	mirror := NewInMemoryMirror()
	ctx := context.Background()

	info := chat.ConnectionInfo{ServerInstanceID: "local", ConnectedAt: 42}
	require.NoError(t, mirror.Set(ctx, "u1", info))

	got, ok := mirror.Get("u1")
	require.True(t, ok)
	assert.Equal(t, info, got)

	require.NoError(t, mirror.Delete(ctx, "u1"))
	_, ok = mirror.Get("u1")
	assert.False(t, ok)
}
