package pathindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pathindex/pathindex/internal/asyncjob"
	"github.com/pathindex/pathindex/internal/dedup"
	"github.com/pathindex/pathindex/internal/pathmap"
	"github.com/pathindex/pathindex/internal/physical"
	"github.com/pathindex/pathindex/internal/physical/memphysical"
	"github.com/pathindex/pathindex/internal/reclaim"
	"github.com/pathindex/pathindex/internal/store"
	"github.com/pathindex/pathindex/pkg/logging"
	"github.com/pathindex/pathindex/pkg/metrics"
)

// newTestIndex wires an Index directly over a MemStore, bypassing
// Open's gocql dialer — the same components Open assembles, built by
// hand so tests never need a real cluster.
func newTestIndex(t *testing.T) (*Index, *store.MemStore, *memphysical.Store) {
	t.Helper()
	mem := store.NewMemStore()
	phys := memphysical.New()
	logger := logging.New(logging.DefaultConfig())

	guard := store.NewGuardOverStore(mem, logger)
	pm := pathmap.New(guard, logger)
	jobs := asyncjob.New(asyncjob.Config{Workers: 4, QueueSize: 64}, logger)
	require.NoError(t, jobs.Start())
	dd := dedup.New(pm, guard, jobs, logger)
	rq := reclaim.New(guard, 0, logger)

	ix := &Index{
		guard: guard, pathmap: pm, dedup: dd, reclaim: rq,
		jobs: jobs, physical: phys, metrics: metrics.New(metrics.Config{Enabled: false}), logger: logger,
	}
	t.Cleanup(func() { _ = ix.Close(time.Second) })
	return ix, mem, phys
}

func drainJobs(t *testing.T, ix *Index) {
	t.Helper()
	require.NoError(t, ix.jobs.Stop(time.Second))
	// Stop is final, so later background work needs a fresh executor.
	ix.jobs = asyncjob.New(asyncjob.Config{Workers: 4, QueueSize: 64}, ix.logger)
	require.NoError(t, ix.jobs.Start())
	ix.dedup = dedup.New(ix.pathmap, ix.guard, ix.jobs, ix.logger)
}

func TestIndexBasicCreateRead(t *testing.T) {
	ctx := context.Background()
	ix, _, _ := newTestIndex(t)

	require.NoError(t, ix.Insert(ctx, Insert{
		FS: "fs1", Path: "/a/b.txt", FileID: "F1", FileStorage: "st1", Size: 5, Creation: time.Now(), Checksum: "C1",
	}))
	drainJobs(t, ix)

	existence, err := ix.Exists(ctx, "fs1", "/a/b.txt")
	require.NoError(t, err)
	require.Equal(t, IsFile, existence)

	length, err := ix.GetFileLength(ctx, "fs1", "/a/b.txt")
	require.NoError(t, err)
	require.Equal(t, int64(5), length)

	fsRow, err := ix.GetFilesystem(ctx, "fs1")
	require.NoError(t, err)
	require.Equal(t, int64(1), fsRow.FileCount)
}

func TestIndexPurgeFilesystemRequiresZeroFileCount(t *testing.T) {
	ctx := context.Background()
	ix, _, _ := newTestIndex(t)

	require.NoError(t, ix.Insert(ctx, Insert{FS: "fs1", Path: "/a.txt", FileID: "F1", FileStorage: "st1", Size: 1, Creation: time.Now()}))
	drainJobs(t, ix)

	ok, err := ix.PurgeFilesystem(ctx, "fs1")
	require.NoError(t, err)
	require.False(t, ok, "non-empty filesystem must not be purged")

	ok, err = ix.Delete(ctx, "fs1", "/a.txt", false)
	require.NoError(t, err)
	require.True(t, ok)
	drainJobs(t, ix)

	ok, err = ix.PurgeFilesystem(ctx, "fs1")
	require.NoError(t, err)
	require.True(t, ok, "an empty filesystem must be purgeable")
}

func TestIndexGetFirstFileSystemContainingRespectsCallerOrder(t *testing.T) {
	ctx := context.Background()
	ix, _, _ := newTestIndex(t)

	require.NoError(t, ix.Insert(ctx, Insert{FS: "fs2", Path: "/shared.txt", FileID: "F1", FileStorage: "st1", Size: 1, Creation: time.Now()}))
	require.NoError(t, ix.Insert(ctx, Insert{FS: "fs3", Path: "/shared.txt", FileID: "F2", FileStorage: "st2", Size: 1, Creation: time.Now()}))
	drainJobs(t, ix)

	fs, ok, err := ix.GetFirstFileSystemContaining(ctx, []string{"fs1", "fs3", "fs2"}, "/shared.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "fs3", fs, "fs3 precedes fs2 in the caller's candidate order")

	all, err := ix.GetFileSystemContaining(ctx, []string{"fs1", "fs2", "fs3"}, "/shared.txt")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"fs2", "fs3"}, all)
}

func TestIndexReconcileAndReclaimDeletesOrphanedBlob(t *testing.T) {
	ctx := context.Background()
	ix, mem, phys := newTestIndex(t)

	require.NoError(t, ix.Insert(ctx, Insert{FS: "fs1", Path: "/a.txt", FileID: "F1", FileStorage: "st1", Size: 1, Creation: time.Now(), Checksum: "C1"}))
	drainJobs(t, ix)

	w, err := phys.GetOutputStream(ctx, 1)
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Point the PathMap row's storage at the real physical blob we just
	// wrote, so the reconciler has something concrete to delete.
	row, err := ix.GetPathMap(ctx, "fs1", "/a.txt")
	require.NoError(t, err)
	require.NotNil(t, row)
	row.FileStorage = w.Storage()
	require.NoError(t, mem.UpsertPathMap(ctx, *row))

	ok, err := ix.Delete(ctx, "fs1", "/a.txt", false)
	require.NoError(t, err)
	require.True(t, ok)
	drainJobs(t, ix)

	orphans, err := ix.ListOrphanedFiles(ctx, 0)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, w.Storage(), orphans[0].Storage)

	result, err := ix.ReconcileAndReclaim(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, result.Deleted)
	_, err = phys.GetFileInfo(ctx, w.Storage())
	require.ErrorIs(t, err, physical.ErrNotFound)
}

func TestIndexReconcileChecksumOrphansEnqueuesOrphanedChecksum(t *testing.T) {
	ctx := context.Background()
	ix, mem, _ := newTestIndex(t)

	// Simulate a crash between saving the checksum row and adding its
	// first reverse path: the row exists, but no path ever points at
	// fileId F1.
	require.NoError(t, mem.SaveChecksum(ctx, store.ChecksumRow{Checksum: "C1", FileID: "F1", Storage: "st1"}))

	result, err := ix.ReconcileChecksumOrphans(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, result.Scanned)
	require.Equal(t, 1, result.Enqueued)

	got, err := ix.GetFileChecksum(ctx, "C1")
	require.NoError(t, err)
	require.Nil(t, got)

	orphans, err := ix.ListOrphanedFiles(ctx, 0)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, "F1", orphans[0].FileID)
}

func TestIndexProxySiteCRUD(t *testing.T) {
	ctx := context.Background()
	ix, _, _ := newTestIndex(t)

	require.NoError(t, ix.SaveProxySite(ctx, "proxy-a"))
	require.NoError(t, ix.SaveProxySite(ctx, "proxy-b"))

	sites, err := ix.ListProxySites(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"proxy-a", "proxy-b"}, sites)

	require.NoError(t, ix.DeleteProxySite(ctx, "proxy-a"))
	sites, err = ix.ListProxySites(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"proxy-b"}, sites)

	require.NoError(t, ix.TruncateProxySites(ctx))
	sites, err = ix.ListProxySites(ctx)
	require.NoError(t, err)
	require.Empty(t, sites)
}
