// Package store defines the typed adapter over the six logical tables
// of the path index (§6.1, §4.2) and the connection-resilience guard
// that wraps every call to it (§4.6).
package store

import (
	"context"
	"time"
)

// IndexStore is the typed interface over the index's six logical
// tables. Implementations encapsulate prepared statements and
// consistency levels; callers never see CQL. Guard wraps any
// IndexStore with §4.6's reconnect-and-retry-once behavior, and
// NewMemStore provides an in-memory reference implementation used by
// the engine and protocol tests.
type IndexStore interface {
	// PathMap (§6.1 pathmap table)

	GetPathMap(ctx context.Context, fs, parentPath, filename string) (*PathMapRow, error)
	// ListPathMap returns rows whose (filesystem, parentPath) matches the
	// given prefix, in no particular order.
	ListPathMap(ctx context.Context, fs, parentPath string) ([]PathMapRow, error)
	// ExistsInList resolves §4.3 exists(): an IN-list lookup over a set of
	// candidate filenames at one (filesystem, parentPath). Returns nil if
	// none match.
	ExistsInList(ctx context.Context, fs, parentPath string, filenames []string) (*PathMapRow, error)
	// CountExact counts rows at an exact (filesystem, parentPath, filename).
	CountExact(ctx context.Context, fs, parentPath, filename string) (int, error)
	// CountPrefix counts rows under a (filesystem, parentPath) prefix, used
	// for the empty-directory probe.
	CountPrefix(ctx context.Context, fs, parentPath string) (int, error)
	UpsertPathMap(ctx context.Context, row PathMapRow) error
	DeletePathMap(ctx context.Context, fs, parentPath, filename string) error
	UpdateExpiration(ctx context.Context, fs, parentPath, filename string, expiration time.Time) error

	// FileChecksum (§6.1 filechecksum table)

	GetChecksum(ctx context.Context, checksum string) (*ChecksumRow, error)
	SaveChecksum(ctx context.Context, row ChecksumRow) error
	DeleteChecksum(ctx context.Context, checksum string) error
	// ListChecksums returns up to limit checksum rows, in unspecified
	// order, for the reconciliation sweep to inspect (§4.4 Race A). It is
	// a best-effort full-table scan, not an indexed query: the index has
	// no per-row flag for "reverse map empty", so the reconciler checks
	// each returned row against ReverseMap itself.
	ListChecksums(ctx context.Context, limit int) ([]ChecksumRow, error)

	// ReverseMap (§6.1 reversemap table)

	AddReversePath(ctx context.Context, fileID, marshalled string) error
	// RemoveReversePath runs at QUORUM per §4.2.
	RemoveReversePath(ctx context.Context, fileID, marshalled string) error
	// GetReversePaths runs at QUORUM per §4.2 when called as part of the
	// post-deletion orphan check (§4.4 step 4b).
	GetReversePaths(ctx context.Context, fileID string) ([]string, error)

	// Filesystem (§6.1 filesystem counter table)

	IncrementFilesystem(ctx context.Context, fs string, deltaCount, deltaSize int64) error
	GetFilesystem(ctx context.Context, fs string) (*FilesystemRow, error)
	GetFilesystems(ctx context.Context) ([]string, error)
	PurgeFilesystem(ctx context.Context, fs string) error

	// Reclaim (§6.1 reclaim table)

	EnqueueReclaim(ctx context.Context, row ReclaimRow) error
	ListReclaim(ctx context.Context, partition int, before time.Time, limit int) ([]ReclaimRow, error)
	RemoveReclaim(ctx context.Context, partition int, deletion time.Time, fileID string) error

	// ProxySites (§6.1 proxysites table, peripheral CRUD)

	SaveProxySite(ctx context.Context, site string) error
	DeleteProxySite(ctx context.Context, site string) error
	ListProxySites(ctx context.Context) ([]string, error)
	TruncateProxySites(ctx context.Context) error
}

// ErrNoHostAvailable is returned by a gocql-backed IndexStore when the
// cluster is unreachable. Guard treats this specific condition as
// "transient connectivity" per §7 and retries exactly once.
var ErrNoHostAvailable = noHostAvailableError{}

type noHostAvailableError struct{}

func (noHostAvailableError) Error() string { return "no host available" }
