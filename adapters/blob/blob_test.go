package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every driver must share
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	info, err := s.Put(ctx, "run1/avg_ts.1D", strings.NewReader("1.000000\n2.000000\n"), PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "run1/avg_ts.1D", info.Key)
	assert.Equal(t, int64(18), info.Size)

	_, err = s.Put(ctx, "run1/avg_ts.1D", strings.NewReader("again"), PutOptions{})
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Put(ctx, "run1/perm/perm_ts_0001.1D", strings.NewReader("x"), PutOptions{})
	require.NoError(t, err)
	_, err = s.Put(ctx, "run2/avg_ts.1D", strings.NewReader("y"), PutOptions{})
	require.NoError(t, err)

	got, rc, err := s.Get(ctx, "run1/avg_ts.1D")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "1.000000\n2.000000\n", string(body))
	assert.Equal(t, int64(18), got.Size)

	list, err := s.List(ctx, "run1/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run1/avg_ts.1D", list[0].Key)
	assert.Equal(t, "run1/perm/perm_ts_0001.1D", list[1].Key)

	_, err = s.Head(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Delete(ctx, "run2/avg_ts.1D")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "run2/avg_ts.1D")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFilesystemStore(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, fs)

	info, err := fs.Head(context.Background(), "run1/avg_ts.1D")
	require.NoError(t, err)
	assert.Len(t, info.ETag, 64)
	assert.Equal(t, "text/plain", info.ContentType)
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "../escape", "/abs"} {
		_, err := fs.Put(context.Background(), key, strings.NewReader("x"), PutOptions{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, Config{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	assert.Error(t, err, "bucket is required")

	_, err = Open(ctx, Config{Driver: "tape"})
	assert.Error(t, err)
}
