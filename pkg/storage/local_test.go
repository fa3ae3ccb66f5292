package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "scenes/sermon.json", strings.NewReader(`{"id":"sermon"}`), -1, "application/json"))

	ok, err := s.Exists(ctx, "scenes/sermon.json")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Read(ctx, "scenes/sermon.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"sermon"}`, string(data))

	require.NoError(t, s.Delete(ctx, "scenes/sermon.json"))
	require.NoError(t, s.Delete(ctx, "scenes/sermon.json"), "deleting twice is not an error")

	_, err = s.Read(ctx, "scenes/sermon.json")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = s.Exists(ctx, "scenes/sermon.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: base})
	require.NoError(t, err)

	for _, key := range []string{"scenes/b.json", "scenes/a.json", "thumbnails/a.png"} {
		require.NoError(t, s.Write(ctx, key, strings.NewReader("x"), 1, ""))
	}
	// A write still in flight must not show up.
	require.NoError(t, os.WriteFile(filepath.Join(base, "scenes", tmpPrefix+"123"), []byte("x"), 0o644))

	files, err := s.List(ctx, "scenes/")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "scenes/a.json", files[0].Key)
	assert.Equal(t, "scenes/b.json", files[1].Key)
	assert.EqualValues(t, 1, files[0].Size)

	files, err = s.List(ctx, "scenes/b")
	require.NoError(t, err)
	require.Len(t, files, 1)

	files, err = s.List(ctx, "missing/")
	require.NoError(t, err)
	assert.Empty(t, files)

	files, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../outside.json", "scenes/../../x", ".", `scenes\a.json`} {
		err := s.Write(ctx, key, strings.NewReader("x"), 1, "")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
	_, err = s.Read(ctx, "../x")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
