package proxy

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAndClose(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	return string(b)
}

func TestSpoolInMemory(t *testing.T) {
	dir := t.TempDir()
	a, b, size, err := spoolBody(strings.NewReader("hello"), dir, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "hello", readAndClose(t, a))
	assert.Equal(t, "hello", readAndClose(t, b))

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestSpoolNilBody(t *testing.T) {
	a, b, size, err := spoolBody(nil, t.TempDir(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
	assert.Equal(t, "", readAndClose(t, a))
	assert.Equal(t, "", readAndClose(t, b))
}

func TestSpoolToFile(t *testing.T) {
	dir := t.TempDir()
	a, b, size, err := spoolBody(strings.NewReader("hello world"), dir, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	matches, _ := filepath.Glob(filepath.Join(dir, "fetch-cache-*"))
	require.Len(t, matches, 1)

	assert.Equal(t, "hello world", readAndClose(t, a))
	_, err = os.Stat(matches[0])
	assert.NoError(t, err, "file stays until the last reader closes")

	assert.Equal(t, "hello world", readAndClose(t, b))
	assert.NoError(t, b.Close(), "double close is harmless")
	_, err = os.Stat(matches[0])
	assert.True(t, os.IsNotExist(err))
}

func TestSpoolUnboundedMemoryLimit(t *testing.T) {
	dir := t.TempDir()
	a, b, size, err := spoolBody(strings.NewReader("hello"), dir, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "hello", readAndClose(t, a))
	assert.Equal(t, "hello", readAndClose(t, b))

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}
