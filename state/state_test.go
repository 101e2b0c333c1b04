package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()

	_, ok := c.Lookup("h1")
	assert.False(t, ok)

	require.NoError(t, c.Store("h1", "id1", []string{"a@example.com"}))
	require.NoError(t, c.Store("h1", "id1", []string{"other@example.com"}))
	require.NoError(t, c.Store("", "ignored", nil))

	got, ok := c.Lookup("h1")
	assert.True(t, ok)
	assert.Equal(t, []string{"a@example.com"}, got)
	assert.Equal(t, 1, c.Len())

	got[0] = "mutated"
	again, _ := c.Lookup("h1")
	assert.Equal(t, "a@example.com", again[0])
}

func TestFileCache_Reload(t *testing.T) {
	dir := t.TempDir()

	c, err := OpenFileCache(dir)
	require.NoError(t, err)
	require.NoError(t, c.Store("h1", "id1", []string{"a@example.com", "b@example.com"}))
	require.NoError(t, c.Store("h2", "", nil))
	require.NoError(t, c.Store("h1", "id1", []string{"dup@example.com"}))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	reopened, err := OpenFileCache(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	got, ok := reopened.Lookup("h1")
	assert.True(t, ok)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got)

	empty, ok := reopened.Lookup("h2")
	assert.True(t, ok)
	assert.Empty(t, empty)
}

func TestOpenFileCache_Errors(t *testing.T) {
	_, err := OpenFileCache("  ")
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json\n"), 0o600))
	_, err = OpenFileCache(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}
