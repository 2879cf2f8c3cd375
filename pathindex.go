// Package pathindex implements the path-mapped storage index: a
// metadata layer mapping hierarchical path names, scoped by
// filesystem, to content-addressed blobs held in an external physical
// store. It composes the path map engine, the dedup/reverse/counters
// protocol, the reclamation queue, and the connection-resilience guard
// into the single API surface described by §6.4.
package pathindex

import (
	"context"
	"time"

	"github.com/pathindex/pathindex/internal/asyncjob"
	"github.com/pathindex/pathindex/internal/config"
	"github.com/pathindex/pathindex/internal/dedup"
	"github.com/pathindex/pathindex/internal/pathmap"
	"github.com/pathindex/pathindex/internal/physical"
	"github.com/pathindex/pathindex/internal/reclaim"
	"github.com/pathindex/pathindex/internal/store"
	"github.com/pathindex/pathindex/pkg/logging"
	"github.com/pathindex/pathindex/pkg/metrics"
	"github.com/pathindex/pathindex/pkg/perrors"
)

// Re-export the path map engine's vocabulary so callers never need to
// import internal/pathmap directly.
type (
	FileType  = pathmap.FileType
	Existence = pathmap.Existence
)

const (
	AllFiles  = pathmap.All
	FilesOnly = pathmap.FilesOnly
	DirsOnly  = pathmap.DirsOnly

	NotFound = pathmap.NotFound
	IsFile   = pathmap.IsFile
	IsDir    = pathmap.IsDir
)

// Insert is the logical-upsert request type (§4.4).
type Insert = dedup.Insert

// Index is the top-level handle over one index store connection. It
// is safe for concurrent use.
type Index struct {
	guard    *store.Guard
	pathmap  *pathmap.Engine
	dedup    *dedup.Protocol
	reclaim  *reclaim.Queue
	jobs     *asyncjob.Executor
	physical physical.Store
	metrics  *metrics.Collector
	logger   *logging.Logger
}

// loggingConfigFrom translates the YAML-facing LoggingConfig into the
// logger's own Config, defaulting unrecognized level/format strings to
// Info/text rather than failing startup over a typo.
func loggingConfigFrom(cfg config.LoggingConfig) logging.Config {
	out := logging.DefaultConfig()
	switch cfg.Level {
	case "debug":
		out.Level = logging.Debug
	case "warn":
		out.Level = logging.Warn
	case "error":
		out.Level = logging.Error
	default:
		out.Level = logging.Info
	}
	if cfg.Format == "json" {
		out.Format = logging.FormatJSON
	}
	return out
}

// Open establishes the store connection (lazily, via the guard),
// starts the background job executor, and wires every component
// together.
func Open(cfg config.Configuration, phys physical.Store) (*Index, error) {
	logger := logging.New(loggingConfigFrom(cfg.Logging))

	jobs := asyncjob.New(asyncjob.Config{Workers: cfg.Executor.Workers, QueueSize: cfg.Executor.QueueSize}, logger)
	if err := jobs.Start(); err != nil {
		return nil, perrors.New(perrors.CodeInternal, "failed to start background executor").WithCause(err)
	}

	guard := store.NewGuard(cfg.Store, logger)
	pm := pathmap.New(guard, logger)
	dd := dedup.New(pm, guard, jobs, logger)
	rq := reclaim.New(guard, cfg.Reclaim.GracePeriod, logger)
	metricsCollector := metrics.New(metrics.Config{Enabled: cfg.Metrics.Enabled, Port: cfg.Metrics.Port, Path: cfg.Metrics.Path})

	return &Index{
		guard: guard, pathmap: pm, dedup: dd, reclaim: rq,
		jobs: jobs, physical: phys, metrics: metricsCollector, logger: logger,
	}, nil
}

// Close stops the background executor and tears down the store
// connection. It blocks up to timeout for pending background work to
// drain.
func (ix *Index) Close(timeout time.Duration) error {
	err := ix.jobs.Stop(timeout)
	ix.guard.Close()
	return err
}

// Metrics exposes the Prometheus collector so callers can Start/Stop
// its exposition endpoint independently of Open/Close.
func (ix *Index) Metrics() *metrics.Collector { return ix.metrics }

// --- §4.3 path map operations ---

func (ix *Index) Exists(ctx context.Context, fs, path string) (Existence, error) {
	return ix.pathmap.Exists(ctx, fs, path)
}

func (ix *Index) ExistsFile(ctx context.Context, fs, path string) (bool, error) {
	return ix.pathmap.ExistsFile(ctx, fs, path)
}

func (ix *Index) IsDirectory(ctx context.Context, fs, path string) (bool, error) {
	return ix.pathmap.IsDirectory(ctx, fs, path)
}

func (ix *Index) IsFile(ctx context.Context, fs, path string) (bool, error) {
	return ix.pathmap.IsFile(ctx, fs, path)
}

func (ix *Index) List(ctx context.Context, fs, path string, fileType FileType) ([]store.PathMapRow, error) {
	return ix.pathmap.List(ctx, fs, path, fileType)
}

func (ix *Index) ListOrTraverse(ctx context.Context, fs, path string, recursive bool, limit int, fileType FileType) ([]store.PathMapRow, error) {
	return ix.pathmap.ListOrTraverse(ctx, fs, path, recursive, limit, fileType)
}

func (ix *Index) Traverse(ctx context.Context, fs, path string, consumer func(store.PathMapRow) bool, limit int, fileType FileType) error {
	return ix.pathmap.Traverse(ctx, fs, path, consumer, limit, fileType)
}

func (ix *Index) GetPathMap(ctx context.Context, fs, path string) (*store.PathMapRow, error) {
	return ix.pathmap.GetPathMap(ctx, fs, path)
}

func (ix *Index) GetFileLength(ctx context.Context, fs, path string) (int64, error) {
	return ix.pathmap.GetFileLength(ctx, fs, path)
}

func (ix *Index) GetFileLastModified(ctx context.Context, fs, path string) (int64, error) {
	return ix.pathmap.GetFileLastModified(ctx, fs, path)
}

func (ix *Index) GetStorageFile(ctx context.Context, fs, path string) (string, bool, error) {
	return ix.pathmap.GetStorageFile(ctx, fs, path)
}

func (ix *Index) Expire(ctx context.Context, fs, path string, t time.Time) error {
	return ix.pathmap.Expire(ctx, fs, path, t)
}

func (ix *Index) MakeDirs(ctx context.Context, fs, path string) error {
	return ix.pathmap.MakeDirs(ctx, fs, path)
}

func (ix *Index) IsEmptyDirectory(ctx context.Context, fs, path string) (bool, error) {
	return ix.pathmap.IsEmptyDirectory(ctx, fs, path)
}

// --- §4.4 dedup + reverse + counters protocol ---

func (ix *Index) Insert(ctx context.Context, in Insert) error {
	start := time.Now()
	err := ix.dedup.Insert(ctx, in)
	ix.metrics.ObserveOperation("insert", time.Since(start))
	if err != nil {
		ix.metrics.RecordInsert("error")
		return err
	}
	ix.metrics.RecordInsert("ok")
	return nil
}

func (ix *Index) Delete(ctx context.Context, fs, path string, force bool) (bool, error) {
	start := time.Now()
	ok, err := ix.dedup.Delete(ctx, fs, path, force)
	ix.metrics.ObserveOperation("delete", time.Since(start))
	switch {
	case err != nil:
		ix.metrics.RecordDelete("error")
	case !ok:
		ix.metrics.RecordDelete("blocked")
	default:
		ix.metrics.RecordDelete("ok")
	}
	return ok, err
}

func (ix *Index) Copy(ctx context.Context, fromFS, fromPath, toFS, toPath string, creation, expiration time.Time) (bool, error) {
	return ix.dedup.Copy(ctx, fromFS, fromPath, toFS, toPath, creation, expiration)
}

// --- §4.5 reclamation ---

func (ix *Index) ListOrphanedFiles(ctx context.Context, limit int) ([]store.ReclaimRow, error) {
	return ix.reclaim.ListOrphanedFiles(ctx, limit)
}

func (ix *Index) RemoveFromReclaim(ctx context.Context, row store.ReclaimRow) error {
	return ix.reclaim.RemoveFromReclaim(ctx, row)
}

// ReconcileAndReclaim runs one best-effort sweep (§9 open question:
// reclamation must re-check the reverse map before physical deletion)
// against the configured physical store, up to limit candidates.
func (ix *Index) ReconcileAndReclaim(ctx context.Context, limit int) (reclaim.SweepResult, error) {
	reconciler := reclaim.NewReconciler(ix.reclaim, ix.guard, ix.physical, ix.logger)
	result, err := reconciler.Sweep(ctx, limit)
	if err != nil {
		return result, err
	}
	for i := 0; i < result.Deleted; i++ {
		ix.metrics.RecordReclaimDrain("deleted")
	}
	for i := 0; i < result.Aborted; i++ {
		ix.metrics.RecordReclaimDrain("aborted")
	}
	for i := 0; i < result.Failed; i++ {
		ix.metrics.RecordReclaimDrain("failed")
	}
	return result, nil
}

// ReconcileChecksumOrphans runs one best-effort sweep for the §4.4
// Race A gap: a checksum row left behind by a crash between saving it
// and adding its first reverse path, which no other path ever
// revisits. It scans up to limit checksum rows and enqueues any whose
// reverse map is already empty.
func (ix *Index) ReconcileChecksumOrphans(ctx context.Context, limit int) (reclaim.ChecksumSweepResult, error) {
	reconciler := reclaim.NewReconciler(ix.reclaim, ix.guard, ix.physical, ix.logger)
	result, err := reconciler.SweepChecksumOrphans(ctx, limit)
	if err != nil {
		return result, err
	}
	for i := 0; i < result.Enqueued; i++ {
		ix.metrics.RecordReclaimEnqueue()
	}
	return result, nil
}

// --- filesystem counters ---

func (ix *Index) GetFilesystem(ctx context.Context, fs string) (*store.FilesystemRow, error) {
	row, err := ix.guard.GetFilesystem(ctx, fs)
	if err == nil && row != nil {
		ix.metrics.SetFilesystemGauges(fs, row.FileCount, row.Size)
	}
	return row, err
}

func (ix *Index) GetFilesystems(ctx context.Context) ([]string, error) {
	return ix.guard.GetFilesystems(ctx)
}

// PurgeFilesystem removes the filesystem counter row, but only when
// its file count is already zero — purging a filesystem with live
// entries would silently orphan every PathMap row under it.
func (ix *Index) PurgeFilesystem(ctx context.Context, fs string) (bool, error) {
	row, err := ix.guard.GetFilesystem(ctx, fs)
	if err != nil {
		return false, err
	}
	if row != nil && row.FileCount != 0 {
		return false, nil
	}
	if err := ix.guard.PurgeFilesystem(ctx, fs); err != nil {
		return false, err
	}
	return true, nil
}

// --- checksum / reverse map lookups ---

func (ix *Index) GetFileChecksum(ctx context.Context, checksum string) (*store.ChecksumRow, error) {
	return ix.guard.GetChecksum(ctx, checksum)
}

func (ix *Index) GetPathsByFileID(ctx context.Context, fileID string) ([]string, error) {
	return ix.guard.GetReversePaths(ctx, fileID)
}

// GetFileSystemContaining returns every candidate filesystem (in no
// particular order) whose PathMap contains path.
func (ix *Index) GetFileSystemContaining(ctx context.Context, candidates []string, path string) ([]string, error) {
	var matches []string
	for _, fs := range candidates {
		existence, err := ix.pathmap.Exists(ctx, fs, path)
		if err != nil {
			return nil, err
		}
		if existence != pathmap.NotFound {
			matches = append(matches, fs)
		}
	}
	return matches, nil
}

// GetFirstFileSystemContaining returns the first candidate, in the
// caller's own order, whose PathMap contains path. Results from a
// hypothetical IN-list query across filesystems are not
// order-preserving, so the filtering happens here rather than in the
// store adapter.
func (ix *Index) GetFirstFileSystemContaining(ctx context.Context, candidates []string, path string) (string, bool, error) {
	for _, fs := range candidates {
		existence, err := ix.pathmap.Exists(ctx, fs, path)
		if err != nil {
			return "", false, err
		}
		if existence != pathmap.NotFound {
			return fs, true, nil
		}
	}
	return "", false, nil
}

// --- proxy site CRUD (peripheral, §6) ---

func (ix *Index) SaveProxySite(ctx context.Context, site string) error {
	return ix.guard.SaveProxySite(ctx, site)
}

func (ix *Index) DeleteProxySite(ctx context.Context, site string) error {
	return ix.guard.DeleteProxySite(ctx, site)
}

func (ix *Index) ListProxySites(ctx context.Context) ([]string, error) {
	return ix.guard.ListProxySites(ctx)
}

func (ix *Index) TruncateProxySites(ctx context.Context) error {
	return ix.guard.TruncateProxySites(ctx)
}
