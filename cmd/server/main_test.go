package main

import (
	"path/filepath"
	"testing"

	"github.com/sdko-org/fetch-cache/internal/config"
	"github.com/sdko-org/fetch-cache/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		b, closeFn, err := newBackend(&config.Config{StoreBackend: config.BackendMemory})
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &storage.MemoryBackend{}, b)
	})

	t.Run("leveldb", func(t *testing.T) {
		b, closeFn, err := newBackend(&config.Config{
			StoreBackend: config.BackendLevelDB,
			LevelDBPath:  filepath.Join(t.TempDir(), "objects"),
		})
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &storage.LevelDBBackend{}, b)
	})

	t.Run("s3", func(t *testing.T) {
		b, closeFn, err := newBackend(&config.Config{
			StoreBackend: config.BackendS3,
			S3Bucket:     "url-cache",
			S3Region:     "us-east-1",
			S3Endpoint:   "http://127.0.0.1:9000",
			S3AccessKey:  "id",
			S3SecretKey:  "secret",
		})
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &storage.S3Backend{}, b)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := newBackend(&config.Config{StoreBackend: "ftp"})
		assert.Error(t, err)
	})
}
