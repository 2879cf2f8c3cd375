package store

import "time"

// PathMapRow is one row of the pathmap table (§6.1): primary key
// (filesystem, parentPath, filename). Directory rows have an empty
// FileID and Checksum.
type PathMapRow struct {
	Filesystem  string
	ParentPath  string
	Filename    string
	FileID      string
	FileStorage string
	Size        int64
	Creation    time.Time
	Expiration  time.Time // zero value means "no expiration"
	Checksum    string
}

// IsDirectory reports whether the row represents a directory entry.
func (r PathMapRow) IsDirectory() bool {
	return r.FileID == ""
}

// HasExpiration reports whether an expiration has been set.
func (r PathMapRow) HasExpiration() bool {
	return !r.Expiration.IsZero()
}

// Path reconstructs the full path this row represents.
func (r PathMapRow) Path() string {
	return r.ParentPath + r.Filename
}

// ChecksumRow is one row of the filechecksum table: the canonical blob
// for a given content checksum.
type ChecksumRow struct {
	Checksum string
	FileID   string
	Storage  string
}

// FilesystemRow is one row of the filesystem counter table.
type FilesystemRow struct {
	Filesystem string
	FileCount  int64
	Size       int64
}

// ReclaimRow is one row of the reclaim queue (§6.1): partitioned by
// hour-of-day of Deletion.
type ReclaimRow struct {
	Partition int
	Deletion  time.Time
	FileID    string
	Storage   string
	Checksum  string
}

// HourOfDay returns the partition key (0-23) for a deletion timestamp.
func HourOfDay(t time.Time) int {
	return t.UTC().Hour()
}
