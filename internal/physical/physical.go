// Package physical defines the storage contract (§6.3) that the index
// uses to move bytes once a logical operation has resolved a storage
// token — the opaque string a PathMap row's fileStorage column holds.
// The index itself never interprets that token; only an adapter in
// this package's family (physical/s3 and friends) does.
package physical

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by GetFileInfo/GetInputStream when the
// storage token names no blob.
var ErrNotFound = errors.New("physical: blob not found")

// Info describes the physical attributes of a stored blob, as
// reported by the backing object store rather than the PathMap row.
type Info struct {
	Storage      string
	Size         int64
	LastModified time.Time
}

// Store is the narrow interface every physical backend implements.
// getOutputStream/getInputStream use streaming io.Writer/io.Reader so
// large blobs never have to be buffered whole in memory.
type Store interface {
	// GetFileInfo reports size/mtime for an existing blob.
	GetFileInfo(ctx context.Context, storage string) (*Info, error)

	// GetOutputStream returns a writer that stores subsequent writes
	// under a fresh storage token. size is a hint and is not enforced;
	// the writer's Storage reports the token from creation on.
	GetOutputStream(ctx context.Context, size int64) (Writer, error)

	// GetInputStream opens a reader over an existing blob, optionally
	// starting at a byte offset.
	GetInputStream(ctx context.Context, storage string, offset int64) (io.ReadCloser, error)

	// Delete removes a blob. It returns (false, nil) if the blob was
	// already absent, which reclamation's Race C tolerance depends on.
	Delete(ctx context.Context, storage string) (bool, error)
}

// Writer is returned by GetOutputStream: the caller writes the blob
// body, then Close finalizes the upload and exposes the storage token
// that was assigned to it.
type Writer interface {
	io.WriteCloser
	Storage() string
}
