package store

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemStorePathMapRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	row := PathMapRow{Filesystem: "fs1", ParentPath: "/a/", Filename: "b.txt", FileID: "F1", FileStorage: "s3", Size: 10, Creation: time.Now()}
	require.NoError(t, m.UpsertPathMap(ctx, row))

	got, err := m.GetPathMap(ctx, "fs1", "/a/", "b.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "F1", got.FileID)

	require.NoError(t, m.DeletePathMap(ctx, "fs1", "/a/", "b.txt"))
	got, err = m.GetPathMap(ctx, "fs1", "/a/", "b.txt")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemStoreExistsInListFindsFirstMatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	require.NoError(t, m.UpsertPathMap(ctx, PathMapRow{Filesystem: "fs1", ParentPath: "/a/", Filename: "b.txt", FileID: "F1"}))

	row, err := m.ExistsInList(ctx, "fs1", "/a/", []string{"x.txt", "b.txt"})
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "b.txt", row.Filename)

	row, err = m.ExistsInList(ctx, "fs1", "/a/", []string{"nope.txt"})
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestMemStoreReverseMapAddRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	require.NoError(t, m.AddReversePath(ctx, "F1", "fs1:/a/b.txt"))
	require.NoError(t, m.AddReversePath(ctx, "F1", "fs1:/a/c.txt"))

	paths, err := m.GetReversePaths(ctx, "F1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"fs1:/a/b.txt", "fs1:/a/c.txt"}, paths)

	require.NoError(t, m.RemoveReversePath(ctx, "F1", "fs1:/a/b.txt"))
	paths, err = m.GetReversePaths(ctx, "F1")
	require.NoError(t, err)
	require.Equal(t, []string{"fs1:/a/c.txt"}, paths)

	require.NoError(t, m.RemoveReversePath(ctx, "F1", "fs1:/a/c.txt"))
	paths, err = m.GetReversePaths(ctx, "F1")
	require.NoError(t, err)
	require.Nil(t, paths)
}

func TestMemStoreFilesystemCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	require.NoError(t, m.IncrementFilesystem(ctx, "fs1", 1, 100))
	require.NoError(t, m.IncrementFilesystem(ctx, "fs1", 1, 50))
	require.NoError(t, m.IncrementFilesystem(ctx, "fs1", -1, -100))

	row, err := m.GetFilesystem(ctx, "fs1")
	require.NoError(t, err)
	require.Equal(t, int64(1), row.FileCount)
	require.Equal(t, int64(50), row.Size)
}

func TestMemStoreReclaimListRespectsThresholdAndLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.EnqueueReclaim(ctx, ReclaimRow{
			Partition: 5, Deletion: now.Add(time.Duration(-i) * time.Hour), FileID: "F" + string(rune('0'+i)),
		}))
	}

	rows, err := m.ListReclaim(ctx, 5, now.Add(time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = m.ListReclaim(ctx, 5, now.Add(-10*time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestGuardReinitsAfterNoHostAvailable(t *testing.T) {
	ctx := context.Background()

	dialCount := 0
	mem := NewMemStore()
	g := newTestGuard(func() (IndexStore, io.Closer, error) {
		dialCount++
		return mem, noopCloser{}, nil
	})

	require.NoError(t, g.UpsertPathMap(ctx, PathMapRow{Filesystem: "fs1", ParentPath: "/", Filename: "a.txt", FileID: "F1"}))
	require.Equal(t, 1, dialCount)

	mem.FailNext(1)
	row, err := g.GetPathMap(ctx, "fs1", "/", "a.txt")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, 2, dialCount, "a no-host-available failure should force exactly one reinit")
}

func TestGuardPropagatesSecondFailure(t *testing.T) {
	ctx := context.Background()
	mem := NewMemStore()
	g := newTestGuard(func() (IndexStore, io.Closer, error) {
		return mem, noopCloser{}, nil
	})

	mem.FailNext(2)
	_, err := g.GetPathMap(ctx, "fs1", "/", "a.txt")
	require.ErrorIs(t, err, ErrNoHostAvailable)
}
