package watermark

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"rfp-mail-ingest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_MissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "history.json"))

	c, ok, err := s.Get(context.Background(), "buyer@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, c)
}

func TestFileStore_SetGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.json")
	s := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "Buyer@Example.com", "100"))
	require.NoError(t, s.Set(ctx, "other@example.com", "7"))
	require.NoError(t, s.Set(ctx, "buyer@example.com", "150"))

	// A fresh instance sees what was written.
	reopened := NewFileStore(path)
	c, ok, err := reopened.Get(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.Cursor("150"), c)

	c, ok, err = reopened.Get(ctx, "other@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.Cursor("7"), c)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, err := NewFileStore(path).Get(context.Background(), "a@b.c")
	assert.Error(t, err)
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, ok, err := NewFileStore(path).Get(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.False(t, ok)
}
