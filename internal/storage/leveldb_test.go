package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/sdko-org/fetch-cache/internal/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelDBBackend(t *testing.T) {
	backend, err := NewLevelDBBackend(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

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
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "hello", readBody(t, obj))
}

func TestLevelDBBackendThroughClient(t *testing.T) {
	backend, err := NewLevelDBBackend(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	c := NewClient(testLogger(), backend)
	ctx := context.Background()
	u := "http://example.com/a"

	require.NoError(t, c.PutIfAbsent(ctx, u, strings.NewReader("first"), 5))
	require.NoError(t, c.PutIfAbsent(ctx, u, strings.NewReader("second"), 6))

	obj, found, err := c.Get(ctx, u)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", readBody(t, obj))
}

func TestLevelDBBackendFirstWriteWins(t *testing.T) {
	backend, err := NewLevelDBBackend(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
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
