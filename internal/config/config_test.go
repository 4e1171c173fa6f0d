package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/snapvcs/internal/store"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "config"))
	require.NoError(t, err)
	assert.Equal(t, BackendFile, c.Backend())
	assert.Equal(t, store.CompressionZstd, c.Compression())
	assert.Equal(t, "main", c.DefaultBranch())
}

func TestSetSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	c := New(path)
	require.NoError(t, c.Set("core.backend", "badger"))
	require.NoError(t, c.Set("core.compression", "lzma"))
	require.NoError(t, c.Set("user.name", "Ada"))
	require.NoError(t, c.Set("user.email", "ada@example.com"))
	require.NoError(t, c.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[user]")

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, back.Backend())
	assert.Equal(t, store.CompressionLZMA, back.Compression())
	assert.Equal(t, "Ada <ada@example.com>", back.Author())

	v, err := back.Get("user.name")
	require.NoError(t, err)
	assert.Equal(t, "Ada", v)
	assert.Contains(t, back.List(), "core.backend=badger")
}

func TestGet_Errors(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "config"))
	_, err := c.Get("user.name")
	require.ErrorIs(t, err, ErrUnknownKey)
	_, err = c.Get("nodot")
	require.Error(t, err)
}

func TestSet_ValidatesKnownKeys(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "config"))
	assert.Error(t, c.Set("core.backend", "postgres"))
	assert.Error(t, c.Set("core.compression", "gzip"))
	assert.Error(t, c.Set("core.defaultBranch", "a/b"))
	assert.NoError(t, c.Set("custom.anything", "goes"))
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte("[core]\nbackend = tape\n"), 0644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestAuthor_Fallbacks(t *testing.T) {
	t.Setenv("USER", "fallback")
	c := New(filepath.Join(t.TempDir(), "config"))
	assert.Equal(t, "fallback", c.Author())
	require.NoError(t, c.Set("user.email", "x@y"))
	assert.Equal(t, "<x@y>", c.Author())
}

func TestReadsDoNotAddKeys(t *testing.T) {
	t.Setenv("USER", "fallback")
	path := filepath.Join(t.TempDir(), "config")
	c := New(path)
	before := c.List()

	assert.Equal(t, "fallback", c.Author())
	_, err := c.Get("user.email")
	require.ErrorIs(t, err, ErrUnknownKey)
	_, err = c.Get("remote.url")
	require.ErrorIs(t, err, ErrUnknownKey)

	assert.Equal(t, before, c.List())
	require.NoError(t, c.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "user")
	assert.NotContains(t, string(data), "remote")
}
