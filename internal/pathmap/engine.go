// Package pathmap implements the path map engine (§4.3): exists/list/
// traverse/insert-row/delete-row/expire/makeDirs over the pathmap
// table. It reads and writes only the PathMap table; the dedup
// protocol in internal/dedup writes the checksum, reverse map,
// filesystem counter and reclaim tables, composing the row-level
// operations exposed here.
package pathmap

import (
	"context"
	"time"

	"github.com/pathindex/pathindex/internal/pathutil"
	"github.com/pathindex/pathindex/internal/store"
	"github.com/pathindex/pathindex/pkg/logging"
)

// FileType filters list/traverse results.
type FileType int

const (
	All FileType = iota
	FilesOnly
	DirsOnly
)

// Existence is the tri-state result of Exists.
type Existence int

const (
	NotFound Existence = iota
	IsFile
	IsDir
)

// Engine is the path map engine. It is safe for concurrent use; all
// coordination is left to the backing store's single-row semantics
// per §5.
type Engine struct {
	store  store.IndexStore
	logger *logging.Logger
	clock  func() time.Time
}

// New builds an Engine over the given store.
func New(s store.IndexStore, logger *logging.Logger) *Engine {
	return &Engine{store: s, logger: logger.WithComponent("pathmap"), clock: time.Now}
}

func matchesFileType(row store.PathMapRow, ft FileType) bool {
	switch ft {
	case FilesOnly:
		return !row.IsDirectory()
	case DirsOnly:
		return row.IsDirectory()
	default:
		return true
	}
}

// Exists resolves §4.3 exists(): the root always reports IsDir.
// Otherwise it issues a single IN-list lookup against candidate
// filenames (the bare name, plus the name+"/" unless p already ends in
// "/") and reports IsDir/IsFile/NotFound from whichever candidate
// matched.
func (e *Engine) Exists(ctx context.Context, fs, p string) (Existence, error) {
	if p == pathutil.Root {
		return IsDir, nil
	}

	parent, ok := pathutil.ParentPath(p)
	if !ok {
		return NotFound, nil
	}
	name, ok := pathutil.Filename(p)
	if !ok {
		return NotFound, nil
	}

	candidates := []string{name}
	if !pathutil.IsDirectoryPath(p) {
		candidates = append(candidates, name+"/")
	}

	row, err := e.store.ExistsInList(ctx, fs, parent, candidates)
	if err != nil {
		return NotFound, err
	}
	if row == nil {
		return NotFound, nil
	}
	if row.IsDirectory() {
		return IsDir, nil
	}
	return IsFile, nil
}

// ExistsFile resolves existFile: an exact-key count query, true iff
// count > 0. Kept distinct from Exists because callers sometimes need
// strict-file semantics rather than the dir-or-file union.
func (e *Engine) ExistsFile(ctx context.Context, fs, p string) (bool, error) {
	parent, ok := pathutil.ParentPath(p)
	if !ok {
		return false, nil
	}
	name, ok := pathutil.Filename(p)
	if !ok {
		return false, nil
	}
	count, err := e.store.CountExact(ctx, fs, parent, name)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsDirectory wraps Exists.
func (e *Engine) IsDirectory(ctx context.Context, fs, p string) (bool, error) {
	existence, err := e.Exists(ctx, fs, p)
	return existence == IsDir, err
}

// IsFile wraps Exists.
func (e *Engine) IsFile(ctx context.Context, fs, p string) (bool, error) {
	existence, err := e.Exists(ctx, fs, p)
	return existence == IsFile, err
}

// List issues one range query over (fs, normalizeParentPath(p)) and
// filters by fileType.
func (e *Engine) List(ctx context.Context, fs, p string, fileType FileType) ([]store.PathMapRow, error) {
	rows, err := e.store.ListPathMap(ctx, fs, pathutil.NormalizeParentPath(p))
	if err != nil {
		return nil, err
	}
	var filtered []store.PathMapRow
	for _, row := range rows {
		if matchesFileType(row, fileType) {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// ListOrTraverse implements the two-arity/recursive form: recursive
// calls delegate to Traverse; non-recursive calls List and truncates
// to limit.
func (e *Engine) ListOrTraverse(ctx context.Context, fs, p string, recursive bool, limit int, fileType FileType) ([]store.PathMapRow, error) {
	if recursive {
		var collected []store.PathMapRow
		err := e.Traverse(ctx, fs, p, func(row store.PathMapRow) bool {
			collected = append(collected, row)
			return true
		}, limit, fileType)
		return collected, err
	}

	rows, err := e.List(ctx, fs, p, fileType)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Traverse runs a pre-order depth-first walk rooted at the entry for
// p, using an explicit LIFO frontier stack of directories still to
// list rather than recursive descent (§9 design note). p = "/" uses a
// synthetic root sentinel: there is no stored root entry, so nothing
// is emitted for it, but its children seed the frontier directly. A
// missing non-root entry is a no-op. consumer returning false stops
// the walk early, same as reaching limit.
func (e *Engine) Traverse(ctx context.Context, fs, p string, consumer func(store.PathMapRow) bool, limit int, fileType FileType) error {
	emitted := 0
	emit := func(row store.PathMapRow) (keepGoing bool, err error) {
		if !matchesFileType(row, fileType) {
			return true, nil
		}
		if !consumer(row) {
			return false, nil
		}
		emitted++
		if limit > 0 && emitted >= limit {
			return false, nil
		}
		return true, nil
	}

	var frontier []string // directory paths (parentPath form) still to list

	if p == pathutil.Root {
		frontier = append(frontier, pathutil.Root)
	} else {
		parent, ok1 := pathutil.ParentPath(p)
		name, ok2 := pathutil.Filename(p)
		if !ok1 || !ok2 {
			return nil
		}
		row, err := e.store.GetPathMap(ctx, fs, parent, name)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		keepGoing, err := emit(*row)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
		if row.IsDirectory() {
			frontier = append(frontier, p)
		} else {
			return nil
		}
	}

	for len(frontier) > 0 {
		dir := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		children, err := e.store.ListPathMap(ctx, fs, pathutil.NormalizeParentPath(dir))
		if err != nil {
			return err
		}

		var childDirs []string
		for _, child := range children {
			keepGoing, err := emit(child)
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
			if child.IsDirectory() {
				childDirs = append(childDirs, child.Path())
			}
		}
		for i := len(childDirs) - 1; i >= 0; i-- {
			frontier = append(frontier, childDirs[i])
		}
	}
	return nil
}

// GetPathMap is a point read by primary key; it performs no expiration
// check (that is GetStorageFile's job).
func (e *Engine) GetPathMap(ctx context.Context, fs, p string) (*store.PathMapRow, error) {
	parent, ok := pathutil.ParentPath(p)
	if !ok {
		return nil, nil
	}
	name, ok := pathutil.Filename(p)
	if !ok {
		return nil, nil
	}
	return e.store.GetPathMap(ctx, fs, parent, name)
}

// GetFileLength returns -1 if the entry is missing.
func (e *Engine) GetFileLength(ctx context.Context, fs, p string) (int64, error) {
	row, err := e.GetPathMap(ctx, fs, p)
	if err != nil {
		return -1, err
	}
	if row == nil {
		return -1, nil
	}
	return row.Size, nil
}

// GetFileLastModified returns -1 if the entry is missing, else the
// creation timestamp in milliseconds since epoch.
func (e *Engine) GetFileLastModified(ctx context.Context, fs, p string) (int64, error) {
	row, err := e.GetPathMap(ctx, fs, p)
	if err != nil {
		return -1, err
	}
	if row == nil {
		return -1, nil
	}
	return row.Creation.UnixMilli(), nil
}

// GetStorageFile fetches the entry and, if it has expired, deletes it
// and reports not-found — the expiration check is lazy, triggered only
// by reads. Returns (storage, found, error).
func (e *Engine) GetStorageFile(ctx context.Context, fs, p string) (string, bool, error) {
	row, err := e.GetPathMap(ctx, fs, p)
	if err != nil {
		return "", false, err
	}
	if row == nil {
		return "", false, nil
	}
	if row.HasExpiration() && row.Expiration.Before(e.clock()) {
		if _, _, err := e.DeleteRow(ctx, fs, p, true); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return row.FileStorage, true, nil
}

// Expire sets an entry's expiration by primary key.
func (e *Engine) Expire(ctx context.Context, fs, p string, t time.Time) error {
	parent, ok := pathutil.ParentPath(p)
	if !ok {
		return nil
	}
	name, ok := pathutil.Filename(p)
	if !ok {
		return nil
	}
	return e.store.UpdateExpiration(ctx, fs, parent, name, t)
}

// MakeDirs inserts a directory entry for every ancestor of p not
// already present. It is idempotent and concurrency-safe: identical
// directory rows upserted twice by racing callers converge to the
// same last-writer-wins content.
func (e *Engine) MakeDirs(ctx context.Context, fs, p string) error {
	dirs := pathutil.ParentsBottomUp(p, func(dirPath string) string { return dirPath })
	now := e.clock()
	for _, dir := range dirs {
		parent, ok := pathutil.ParentPath(dir)
		if !ok {
			continue
		}
		name, ok := pathutil.Filename(dir)
		if !ok {
			continue
		}
		existing, err := e.store.GetPathMap(ctx, fs, parent, name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := e.store.UpsertPathMap(ctx, store.PathMapRow{
			Filesystem: fs, ParentPath: parent, Filename: name, Creation: now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// IsEmptyDirectory probes whether any row exists under the (fs,
// normalizeParentPath(p)) prefix.
func (e *Engine) IsEmptyDirectory(ctx context.Context, fs, p string) (bool, error) {
	count, err := e.store.CountPrefix(ctx, fs, pathutil.NormalizeParentPath(p))
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// DeleteRow implements steps 1-3 of the delete flow (§4.4): fetch,
// directory-emptiness enforcement, and the row delete itself. It
// reports (deletedRow, ok, err):
//   - missing entry: (nil, true, nil) — idempotent success, nothing to
//     reconcile upstream.
//   - non-empty directory, force=false: (nil, false, nil) — blocked.
//   - directory deleted, or file deleted: (row, true, nil); callers
//     only need to run the dedup post-deletion protocol (§4.4 step 4)
//     when the returned row is a file (directories carry no reverse-map
//     or checksum references).
func (e *Engine) DeleteRow(ctx context.Context, fs, p string, force bool) (*store.PathMapRow, bool, error) {
	row, err := e.GetPathMap(ctx, fs, p)
	if err != nil {
		return nil, false, err
	}
	if row == nil && !pathutil.IsDirectoryPath(p) {
		// A path given without its trailing slash may name a directory.
		row, err = e.GetPathMap(ctx, fs, p+"/")
		if err != nil {
			return nil, false, err
		}
	}
	if row == nil {
		return nil, true, nil
	}

	if row.IsDirectory() && !force {
		empty, err := e.IsEmptyDirectory(ctx, fs, p)
		if err != nil {
			return nil, false, err
		}
		if !empty {
			return nil, false, nil
		}
	}

	if err := e.store.DeletePathMap(ctx, fs, row.ParentPath, row.Filename); err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// InsertRow persists a PathMap row by primary key, overwriting any
// existing row at the same key (upsert semantics).
func (e *Engine) InsertRow(ctx context.Context, row store.PathMapRow) error {
	return e.store.UpsertPathMap(ctx, row)
}

// PrepareCopy reads the source entry and, if it exists, returns a new row at
// the destination sharing fileId/fileStorage/checksum/size — the
// caller (dedup.Copy) is responsible for deleting any existing
// destination entry and inserting the returned row through the dedup
// protocol, since copy is itself a kind of insert.
func (e *Engine) PrepareCopy(ctx context.Context, fromFs, fromPath, toFs, toPath string, creation, expiration time.Time) (*store.PathMapRow, error) {
	src, err := e.GetPathMap(ctx, fromFs, fromPath)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, nil
	}

	parent, ok := pathutil.ParentPath(toPath)
	if !ok {
		return nil, nil
	}
	name, ok := pathutil.Filename(toPath)
	if !ok {
		return nil, nil
	}

	dst := store.PathMapRow{
		Filesystem: toFs, ParentPath: parent, Filename: name,
		FileID: src.FileID, FileStorage: src.FileStorage, Checksum: src.Checksum,
		Size: src.Size, Creation: creation, Expiration: expiration,
	}
	return &dst, nil
}
