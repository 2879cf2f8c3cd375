// Package dedup implements the multi-table write/delete protocol
// (§4.4) tying PathMap changes to the checksum index, reverse map, and
// filesystem counters. It writes the checksum, reverse map, filesystem
// counter and reclaim tables itself; the path map engine it wraps
// handles the PathMap table.
package dedup

import (
	"context"
	"time"

	"github.com/pathindex/pathindex/internal/asyncjob"
	"github.com/pathindex/pathindex/internal/pathmap"
	"github.com/pathindex/pathindex/internal/pathutil"
	"github.com/pathindex/pathindex/internal/store"
	"github.com/pathindex/pathindex/pkg/logging"
)

// Insert describes a logical upsert of a PathMap entry, before
// dedup resolution has assigned the final fileId/fileStorage.
type Insert struct {
	FS          string
	Path        string
	FileID      string
	FileStorage string
	Checksum    string
	Size        int64
	Creation    time.Time
	Expiration  time.Time
}

// Protocol runs the insert/delete protocol over a path map engine,
// dispatching the asynchronous post-insertion/post-deletion steps to a
// background executor so foreground latency reflects only the primary
// row operation and the checksum lookup/save (§5).
type Protocol struct {
	pm     *pathmap.Engine
	store  store.IndexStore
	jobs   *asyncjob.Executor
	logger *logging.Logger
	clock  func() time.Time
}

// New builds a Protocol over the given engine, store, and executor.
func New(pm *pathmap.Engine, s store.IndexStore, jobs *asyncjob.Executor, logger *logging.Logger) *Protocol {
	return &Protocol{pm: pm, store: s, jobs: jobs, logger: logger.WithComponent("dedup"), clock: time.Now}
}

// Insert runs the five-step insert flow of §4.4.
func (p *Protocol) Insert(ctx context.Context, in Insert) error {
	// Step 1: asynchronously materialize ancestor directories. MakeDirs
	// walks the full entry path's ancestor chain, which includes the
	// entry's immediate parent directory.
	fsForDirs, pathForDirs := in.FS, in.Path
	p.submit(func(ctx context.Context) {
		if err := p.pm.MakeDirs(ctx, fsForDirs, pathForDirs); err != nil {
			p.logger.Warn("makeDirs failed", logging.Fields{"fs": in.FS, "path": in.Path, "error": err.Error()})
		}
	})

	// Step 2: an entry already at (fs, path) is deleted through the
	// full delete flow first, so counters/reverse map are decremented
	// before the replacement lands.
	existing, err := p.pm.GetPathMap(ctx, in.FS, in.Path)
	if err != nil {
		return err
	}
	if existing != nil {
		if _, err := p.Delete(ctx, in.FS, in.Path, true); err != nil {
			return err
		}
	}

	// Step 3: dedup branch.
	fileID := in.FileID
	fileStorage := in.FileStorage
	duplicate := false

	if in.Checksum != "" {
		canonical, err := p.store.GetChecksum(ctx, in.Checksum)
		if err != nil {
			return err
		}
		if canonical != nil {
			duplicate = true
			fileID = canonical.FileID
			fileStorage = canonical.Storage

			if in.FileStorage != "" && in.FileStorage != canonical.Storage {
				redundantStorage := in.FileStorage
				now := p.clock()
				p.submit(func(ctx context.Context) {
					err := p.store.EnqueueReclaim(ctx, store.ReclaimRow{
						Partition: store.HourOfDay(now),
						Deletion:  now,
						FileID:    pathutil.RandomFileID(),
						Storage:   redundantStorage,
						Checksum:  in.Checksum,
					})
					if err != nil {
						p.logger.Warn("reclaim enqueue failed", logging.Fields{"error": err.Error()})
					}
				})
			}
		} else {
			if err := p.store.SaveChecksum(ctx, store.ChecksumRow{Checksum: in.Checksum, FileID: in.FileID, Storage: in.FileStorage}); err != nil {
				return err
			}
		}
	}

	// Step 4: persist the PathMap row.
	row := store.PathMapRow{
		Filesystem:  in.FS,
		Size:        in.Size,
		Creation:    in.Creation,
		Expiration:  in.Expiration,
		FileID:      fileID,
		FileStorage: fileStorage,
		Checksum:    in.Checksum,
	}
	row.ParentPath, _ = pathutil.ParentPath(in.Path)
	row.Filename, _ = pathutil.Filename(in.Path)
	if err := p.pm.InsertRow(ctx, row); err != nil {
		return err
	}

	// Step 5: asynchronous post-insertion reverse-map add and counter
	// increment. Duplicates contribute (+1, +0): the blob is already
	// counted against whichever filesystem holds the primary.
	fs, path, sizeDelta := in.FS, in.Path, in.Size
	if duplicate {
		sizeDelta = 0
	}
	p.submit(func(ctx context.Context) {
		if err := p.store.AddReversePath(ctx, fileID, pathutil.Marshall(fs, path)); err != nil {
			p.logger.Warn("reverse-map add failed", logging.Fields{"fileId": fileID, "error": err.Error()})
		}
		if err := p.store.IncrementFilesystem(ctx, fs, 1, sizeDelta); err != nil {
			p.logger.Warn("counter increment failed", logging.Fields{"fs": fs, "error": err.Error()})
		}
	})

	return nil
}

// Delete runs the delete flow of §4.4. It returns false only when a
// non-empty directory delete is attempted without force; a missing
// entry is treated as an idempotent success.
func (p *Protocol) Delete(ctx context.Context, fs, path string, force bool) (bool, error) {
	row, ok, err := p.pm.DeleteRow(ctx, fs, path, force)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if row == nil || row.IsDirectory() {
		return true, nil
	}

	fileID, fileStorage, checksum, size := row.FileID, row.FileStorage, row.Checksum, row.Size
	marshalled := pathutil.Marshall(fs, path)

	p.submit(func(ctx context.Context) {
		if err := p.store.RemoveReversePath(ctx, fileID, marshalled); err != nil {
			p.logger.Warn("reverse-map remove failed", logging.Fields{"fileId": fileID, "error": err.Error()})
			return
		}

		remaining, err := p.store.GetReversePaths(ctx, fileID)
		if err != nil {
			p.logger.Warn("reverse-map re-read failed", logging.Fields{"fileId": fileID, "error": err.Error()})
			return
		}

		if len(remaining) == 0 {
			if checksum != "" {
				if err := p.store.DeleteChecksum(ctx, checksum); err != nil {
					p.logger.Warn("checksum delete failed", logging.Fields{"checksum": checksum, "error": err.Error()})
				}
			}
			now := p.clock()
			if err := p.store.EnqueueReclaim(ctx, store.ReclaimRow{
				Partition: store.HourOfDay(now), Deletion: now, FileID: fileID, Storage: fileStorage, Checksum: checksum,
			}); err != nil {
				p.logger.Warn("reclaim enqueue failed", logging.Fields{"fileId": fileID, "error": err.Error()})
			}
			if err := p.store.IncrementFilesystem(ctx, fs, -1, -size); err != nil {
				p.logger.Warn("counter decrement failed", logging.Fields{"fs": fs, "error": err.Error()})
			}
		} else {
			if err := p.store.IncrementFilesystem(ctx, fs, -1, 0); err != nil {
				p.logger.Warn("counter decrement failed", logging.Fields{"fs": fs, "error": err.Error()})
			}
		}
	})

	return true, nil
}

// Copy reads the source entry and inserts a new entry at the
// destination that shares fileId/fileStorage/checksum — no bytes are
// moved. A missing source returns (false, nil).
func (p *Protocol) Copy(ctx context.Context, fromFS, fromPath, toFS, toPath string, creation, expiration time.Time) (bool, error) {
	dst, err := p.pm.PrepareCopy(ctx, fromFS, fromPath, toFS, toPath, creation, expiration)
	if err != nil {
		return false, err
	}
	if dst == nil {
		return false, nil
	}

	err = p.Insert(ctx, Insert{
		FS: toFS, Path: toPath,
		FileID: dst.FileID, FileStorage: dst.FileStorage, Checksum: dst.Checksum,
		Size: dst.Size, Creation: creation, Expiration: expiration,
	})
	return err == nil, err
}

func (p *Protocol) submit(job asyncjob.Job) {
	if err := p.jobs.Submit(job); err != nil {
		p.logger.Warn("background job dropped", logging.Fields{"error": err.Error()})
	}
}
