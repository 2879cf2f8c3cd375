package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pathindex/pathindex/internal/asyncjob"
	"github.com/pathindex/pathindex/internal/pathmap"
	"github.com/pathindex/pathindex/internal/store"
	"github.com/pathindex/pathindex/pkg/logging"
)

func newTestProtocol(t *testing.T) (*Protocol, *pathmap.Engine, *store.MemStore) {
	t.Helper()
	mem := store.NewMemStore()
	logger := logging.New(logging.DefaultConfig())
	pm := pathmap.New(mem, logger)
	jobs := asyncjob.New(asyncjob.Config{Workers: 4, QueueSize: 64}, logger)
	require.NoError(t, jobs.Start())
	t.Cleanup(func() { _ = jobs.Stop(time.Second) })
	return New(pm, mem, jobs, logger), pm, mem
}

// drain waits for the background executor to finish pending work by
// stopping and discarding it — tests that need to keep submitting
// afterward create their own protocol instance instead.
func drain(t *testing.T, p *Protocol) {
	t.Helper()
	require.NoError(t, p.jobs.Stop(time.Second))
}

func TestInsertBasicCreateRead(t *testing.T) {
	ctx := context.Background()
	p, pm, mem := newTestProtocol(t)

	require.NoError(t, p.Insert(ctx, Insert{
		FS: "fs1", Path: "/a/b.txt", FileID: "F1", FileStorage: "st1",
		Size: 5, Creation: time.Now(), Checksum: "C1",
	}))
	drain(t, p)

	existence, err := pm.Exists(ctx, "fs1", "/a/b.txt")
	require.NoError(t, err)
	require.Equal(t, pathmap.IsFile, existence)

	existence, err = pm.Exists(ctx, "fs1", "/a")
	require.NoError(t, err)
	require.Equal(t, pathmap.IsDir, existence)

	length, err := pm.GetFileLength(ctx, "fs1", "/a/b.txt")
	require.NoError(t, err)
	require.Equal(t, int64(5), length)

	fsRow, err := mem.GetFilesystem(ctx, "fs1")
	require.NoError(t, err)
	require.Equal(t, int64(1), fsRow.FileCount)
	require.Equal(t, int64(5), fsRow.Size)

	paths, err := mem.GetReversePaths(ctx, "F1")
	require.NoError(t, err)
	require.Equal(t, []string{"fs1:/a/b.txt"}, paths)
}

func TestInsertDedupSharesBlobAndZeroCountsSize(t *testing.T) {
	ctx := context.Background()
	p, _, mem := newTestProtocol(t)

	require.NoError(t, p.Insert(ctx, Insert{FS: "fs1", Path: "/a/b.txt", FileID: "F1", FileStorage: "st1", Size: 5, Creation: time.Now(), Checksum: "C1"}))
	require.NoError(t, p.Insert(ctx, Insert{FS: "fs2", Path: "/x/y.txt", FileID: "F2", FileStorage: "st2", Size: 5, Creation: time.Now(), Checksum: "C1"}))
	drain(t, p)

	row, err := mem.GetPathMap(ctx, "fs2", "/x/", "y.txt")
	require.NoError(t, err)
	require.Equal(t, "F1", row.FileID)
	require.Equal(t, "st1", row.FileStorage)

	fsRow, err := mem.GetFilesystem(ctx, "fs2")
	require.NoError(t, err)
	require.Equal(t, int64(1), fsRow.FileCount)
	require.Equal(t, int64(0), fsRow.Size)

	reclaimed, err := mem.ListReclaim(ctx, store.HourOfDay(time.Now()), time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	require.Equal(t, "st2", reclaimed[0].Storage)
}

func TestDeleteLastReferenceRemovesChecksumAndReclaimsBlob(t *testing.T) {
	ctx := context.Background()
	p, _, mem := newTestProtocol(t)

	require.NoError(t, p.Insert(ctx, Insert{FS: "fs1", Path: "/a/b.txt", FileID: "F1", FileStorage: "st1", Size: 5, Creation: time.Now(), Checksum: "C1"}))
	require.NoError(t, p.Insert(ctx, Insert{FS: "fs2", Path: "/x/y.txt", FileID: "F2", FileStorage: "st2", Size: 5, Creation: time.Now(), Checksum: "C1"}))

	ok, err := p.Delete(ctx, "fs2", "/x/y.txt", false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.Delete(ctx, "fs1", "/a/b.txt", false)
	require.NoError(t, err)
	require.True(t, ok)
	drain(t, p)

	checksum, err := mem.GetChecksum(ctx, "C1")
	require.NoError(t, err)
	require.Nil(t, checksum)

	reclaimed, err := mem.ListReclaim(ctx, store.HourOfDay(time.Now()), time.Now().Add(time.Hour), 0)
	require.NoError(t, err)

	var sawPrimary bool
	for _, r := range reclaimed {
		if r.FileID == "F1" && r.Storage == "st1" {
			sawPrimary = true
		}
	}
	require.True(t, sawPrimary)

	fsRow, err := mem.GetFilesystem(ctx, "fs1")
	require.NoError(t, err)
	require.Zero(t, fsRow.FileCount)
	require.Zero(t, fsRow.Size)
}

func TestDeleteNonEmptyDirectoryRequiresForce(t *testing.T) {
	ctx := context.Background()
	p, _, mem := newTestProtocol(t)

	require.NoError(t, p.Insert(ctx, Insert{FS: "fs1", Path: "/d/f", FileID: "F1", FileStorage: "st1", Size: 1, Creation: time.Now()}))
	drain(t, p)

	ok, err := p.Delete(ctx, "fs1", "/d", false)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = p.Delete(ctx, "fs1", "/d", true)
	require.NoError(t, err)
	require.True(t, ok)

	orphan, err := mem.GetPathMap(ctx, "fs1", "/d/", "f")
	require.NoError(t, err)
	require.NotNil(t, orphan, "force delete of a directory does not cascade to its children")
}

func TestCopySharesFileIDAndStorage(t *testing.T) {
	ctx := context.Background()
	p, pm, mem := newTestProtocol(t)

	require.NoError(t, p.Insert(ctx, Insert{FS: "fs1", Path: "/a/b.txt", FileID: "F1", FileStorage: "st1", Size: 5, Creation: time.Now(), Checksum: "C1"}))
	drain(t, p)

	ok, err := p.Copy(ctx, "fs1", "/a/b.txt", "fs1", "/a/c.txt", time.Now(), time.Time{})
	require.NoError(t, err)
	require.True(t, ok)

	dst, err := pm.GetPathMap(ctx, "fs1", "/a/c.txt")
	require.NoError(t, err)
	require.Equal(t, "F1", dst.FileID)
	require.Equal(t, "st1", dst.FileStorage)
	_ = mem
}

func TestCopyMissingSourceReturnsFalse(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestProtocol(t)

	ok, err := p.Copy(ctx, "fs1", "/nope.txt", "fs1", "/dst.txt", time.Now(), time.Time{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertReplacingExistingEntryDecrementsPredecessor(t *testing.T) {
	ctx := context.Background()
	p, _, mem := newTestProtocol(t)

	require.NoError(t, p.Insert(ctx, Insert{FS: "fs1", Path: "/a.txt", FileID: "F1", FileStorage: "st1", Size: 10, Creation: time.Now(), Checksum: "C1"}))
	drain(t, p)

	p2, _, _ := newTestProtocolOver(mem)
	require.NoError(t, p2.Insert(ctx, Insert{FS: "fs1", Path: "/a.txt", FileID: "F2", FileStorage: "st2", Size: 20, Creation: time.Now(), Checksum: "C2"}))
	drain(t, p2)

	row, err := mem.GetPathMap(ctx, "fs1", "/", "a.txt")
	require.NoError(t, err)
	require.Equal(t, "F2", row.FileID)

	fsRow, err := mem.GetFilesystem(ctx, "fs1")
	require.NoError(t, err)
	require.Equal(t, int64(1), fsRow.FileCount)
	require.Equal(t, int64(20), fsRow.Size)
}

func newTestProtocolOver(mem *store.MemStore) (*Protocol, *pathmap.Engine, *store.MemStore) {
	logger := logging.New(logging.DefaultConfig())
	pm := pathmap.New(mem, logger)
	jobs := asyncjob.New(asyncjob.Config{Workers: 4, QueueSize: 64}, logger)
	_ = jobs.Start()
	return New(pm, mem, jobs, logger), pm, mem
}
