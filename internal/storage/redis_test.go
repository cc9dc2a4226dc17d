package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/sdko-org/fetch-cache/internal/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestNewRedisBackend_Panic(t *testing.T) {
	assert.Panics(t, func() { NewRedisBackend(nil) })
}

func TestRedisBackend(t *testing.T) {
	backend := NewRedisBackend(setupTestRedis(t))
	ctx := context.Background()
	u := "http://example.com/a"
	key := keys.Derive(u)

	ok, err := backend.Head(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := backend.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, backend.Put(ctx, key, strings.NewReader("hello"), 5, Metadata{URL: u}))

	ok, err = backend.Head(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	obj, found, err := backend.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, u, obj.URL)
	assert.Equal(t, "hello", readBody(t, obj))
}

func TestRedisBackendFirstWriteWins(t *testing.T) {
	backend := NewRedisBackend(setupTestRedis(t))
	ctx := context.Background()
	u := "http://example.com/a"
	key := keys.Derive(u)

	require.NoError(t, backend.Put(ctx, key, strings.NewReader("first"), 5, Metadata{URL: u}))
	require.NoError(t, backend.Put(ctx, key, strings.NewReader("second"), 6, Metadata{URL: u}))

	obj, found, err := backend.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", readBody(t, obj))
}
