package memphysical

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pathindex/pathindex/internal/physical"
)

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	w, err := s.GetOutputStream(ctx, 5)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := s.GetInputStream(ctx, w.Storage(), 0)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	info, err := s.GetFileInfo(ctx, w.Storage())
	require.NoError(t, err)
	require.Equal(t, int64(5), info.Size)
}

func TestReadAtOffset(t *testing.T) {
	ctx := context.Background()
	s := New()

	w, err := s.GetOutputStream(ctx, 5)
	require.NoError(t, err)
	_, _ = w.Write([]byte("hello"))
	require.NoError(t, w.Close())

	r, err := s.GetInputStream(ctx, w.Storage(), 3)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "lo", string(data))
}

func TestDeleteIsIdempotentlyFalseWhenAlreadyAbsent(t *testing.T) {
	ctx := context.Background()
	s := New()

	ok, err := s.Delete(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)

	w, err := s.GetOutputStream(ctx, 1)
	require.NoError(t, err)
	_, _ = w.Write([]byte("x"))
	require.NoError(t, w.Close())

	ok, err = s.Delete(ctx, w.Storage())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.GetFileInfo(ctx, w.Storage())
	require.ErrorIs(t, err, physical.ErrNotFound)
}
