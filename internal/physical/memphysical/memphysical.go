// Package memphysical is an in-memory physical.Store used by tests
// and by the reclaim package's own test suite as a stand-in for a
// real object store adapter.
package memphysical

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pathindex/pathindex/internal/pathutil"
	"github.com/pathindex/pathindex/internal/physical"
)

type Store struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func New() *Store {
	return &Store{blobs: map[string][]byte{}}
}

var _ physical.Store = (*Store)(nil)

func (s *Store) GetFileInfo(ctx context.Context, storage string) (*physical.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[storage]
	if !ok {
		return nil, physical.ErrNotFound
	}
	return &physical.Info{Storage: storage, Size: int64(len(data)), LastModified: time.Now()}, nil
}

func (s *Store) GetOutputStream(ctx context.Context, size int64) (physical.Writer, error) {
	return &writer{store: s, storage: pathutil.RandomFileID()}, nil
}

func (s *Store) GetInputStream(ctx context.Context, storage string, offset int64) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.blobs[storage]
	s.mu.Unlock()
	if !ok {
		return nil, physical.ErrNotFound
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func (s *Store) Delete(ctx context.Context, storage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[storage]; !ok {
		return false, nil
	}
	delete(s.blobs, storage)
	return true, nil
}

type writer struct {
	store   *Store
	storage string
	buf     bytes.Buffer
	closed  bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("memphysical: write after close")
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.store.mu.Lock()
	w.store.blobs[w.storage] = append([]byte(nil), w.buf.Bytes()...)
	w.store.mu.Unlock()
	return nil
}

func (w *writer) Storage() string { return w.storage }
