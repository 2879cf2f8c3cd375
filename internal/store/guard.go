package store

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pathindex/pathindex/internal/config"
	"github.com/pathindex/pathindex/pkg/logging"
	"github.com/pathindex/pathindex/pkg/perrors"
)

// StoreDialer builds a fresh IndexStore and the Closer that tears it
// down. Guard calls it both on first use and whenever it needs to
// reinitialize (§4.6). Decoupling Guard from gocql directly lets it be
// exercised against MemStore in tests.
type StoreDialer func() (IndexStore, io.Closer, error)

// cqlStoreDialer adapts a gocql Dialer to a StoreDialer.
func cqlStoreDialer(dial Dialer) StoreDialer {
	return func() (IndexStore, io.Closer, error) {
		session, err := dial()
		if err != nil {
			return nil, nil, err
		}
		return newCQLStore(session), session, nil
	}
}

// Guard wraps an IndexStore with the connection-resilience behavior of
// §4.6: if no session is held (first use, or a prior reinit tore one
// down), it dials before running the call; if a call fails with
// ErrNoHostAvailable, it tears the session down, dials once more, and
// retries the call exactly once. A second failure propagates to the
// caller unchanged.
type Guard struct {
	mu       sync.RWMutex
	dial     StoreDialer
	closer   io.Closer
	store    IndexStore
	logger   *logging.Logger
	lastDial time.Time
}

// NewGuard builds a Guard around a store configuration. The store is
// not dialed until the first call runs. Retry policy follows
// retry.ExactlyOnce: one reinit-and-retry after a no-host-available
// failure, matching §4.6 exactly (the per-attempt loop lives in run,
// not in a Retryer, since each attempt needs to rebuild the session in
// between).
func NewGuard(cfg config.StoreConfig, logger *logging.Logger) *Guard {
	return &Guard{
		dial:   cqlStoreDialer(NewDialer(cfg)),
		logger: logger.WithComponent("store.guard"),
	}
}

// newTestGuard builds a Guard around an arbitrary StoreDialer, for
// exercising the reinit-and-retry protocol against MemStore.
func newTestGuard(dial StoreDialer) *Guard {
	return &Guard{dial: dial, logger: logging.New(logging.DefaultConfig()).WithComponent("store.guard")}
}

// NewGuardOverStore wraps an already-constructed IndexStore (typically
// MemStore in tests, or any store whose lifecycle is managed
// externally) in a Guard. Reinit after ErrNoHostAvailable simply
// returns the same store, since there is no session to dial.
func NewGuardOverStore(s IndexStore, logger *logging.Logger) *Guard {
	return &Guard{
		dial:   func() (IndexStore, io.Closer, error) { return s, noopCloser{}, nil },
		logger: logger.WithComponent("store.guard"),
	}
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// Close tears down the current session, if any.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.teardownLocked()
}

func (g *Guard) teardownLocked() {
	if g.closer != nil {
		g.closer.Close()
	}
	g.closer = nil
	g.store = nil
}

// current returns the live IndexStore, dialing one if none is held.
func (g *Guard) current() (IndexStore, error) {
	g.mu.RLock()
	store := g.store
	g.mu.RUnlock()
	if store != nil {
		return store, nil
	}
	return g.reinit()
}

// reinit returns the held store if there is one and otherwise dials a
// new one. Callers that just observed ErrNoHostAvailable tear down the
// old session first and then call this before retrying.
func (g *Guard) reinit() (IndexStore, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.store != nil {
		return g.store, nil
	}

	newStore, closer, err := g.dial()
	g.lastDial = time.Now()
	if err != nil {
		g.logger.Warn("store reconnect failed", logging.Fields{"error": err.Error()})
		return nil, perrors.New(perrors.CodeConnectionFailed, "failed to establish store session").
			WithComponent("store.guard").WithCause(err)
	}
	g.closer = closer
	g.store = newStore
	g.logger.Info("store session established", nil)
	return g.store, nil
}

// run executes fn against the current store, and on ErrNoHostAvailable
// tears the session down and retries exactly once per §4.6.
func run[T any](g *Guard, fn func(IndexStore) (T, error)) (T, error) {
	var zero T

	store, err := g.current()
	if err != nil {
		return zero, err
	}

	result, err := fn(store)
	if err == nil || !isNoHostAvailable(err) {
		return result, err
	}

	g.mu.Lock()
	g.teardownLocked()
	g.mu.Unlock()

	store, err = g.reinit()
	if err != nil {
		return zero, err
	}
	return fn(store)
}

func isNoHostAvailable(err error) bool {
	return err == ErrNoHostAvailable
}

func (g *Guard) GetPathMap(ctx context.Context, fs, parentPath, filename string) (*PathMapRow, error) {
	return run(g, func(s IndexStore) (*PathMapRow, error) { return s.GetPathMap(ctx, fs, parentPath, filename) })
}

func (g *Guard) ListPathMap(ctx context.Context, fs, parentPath string) ([]PathMapRow, error) {
	return run(g, func(s IndexStore) ([]PathMapRow, error) { return s.ListPathMap(ctx, fs, parentPath) })
}

func (g *Guard) ExistsInList(ctx context.Context, fs, parentPath string, filenames []string) (*PathMapRow, error) {
	return run(g, func(s IndexStore) (*PathMapRow, error) { return s.ExistsInList(ctx, fs, parentPath, filenames) })
}

func (g *Guard) CountExact(ctx context.Context, fs, parentPath, filename string) (int, error) {
	return run(g, func(s IndexStore) (int, error) { return s.CountExact(ctx, fs, parentPath, filename) })
}

func (g *Guard) CountPrefix(ctx context.Context, fs, parentPath string) (int, error) {
	return run(g, func(s IndexStore) (int, error) { return s.CountPrefix(ctx, fs, parentPath) })
}

func (g *Guard) UpsertPathMap(ctx context.Context, row PathMapRow) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.UpsertPathMap(ctx, row) })
	return err
}

func (g *Guard) DeletePathMap(ctx context.Context, fs, parentPath, filename string) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.DeletePathMap(ctx, fs, parentPath, filename) })
	return err
}

func (g *Guard) UpdateExpiration(ctx context.Context, fs, parentPath, filename string, expiration time.Time) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) {
		return struct{}{}, s.UpdateExpiration(ctx, fs, parentPath, filename, expiration)
	})
	return err
}

func (g *Guard) GetChecksum(ctx context.Context, checksum string) (*ChecksumRow, error) {
	return run(g, func(s IndexStore) (*ChecksumRow, error) { return s.GetChecksum(ctx, checksum) })
}

func (g *Guard) SaveChecksum(ctx context.Context, row ChecksumRow) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.SaveChecksum(ctx, row) })
	return err
}

func (g *Guard) DeleteChecksum(ctx context.Context, checksum string) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.DeleteChecksum(ctx, checksum) })
	return err
}

func (g *Guard) ListChecksums(ctx context.Context, limit int) ([]ChecksumRow, error) {
	return run(g, func(s IndexStore) ([]ChecksumRow, error) { return s.ListChecksums(ctx, limit) })
}

func (g *Guard) AddReversePath(ctx context.Context, fileID, marshalled string) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.AddReversePath(ctx, fileID, marshalled) })
	return err
}

func (g *Guard) RemoveReversePath(ctx context.Context, fileID, marshalled string) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.RemoveReversePath(ctx, fileID, marshalled) })
	return err
}

func (g *Guard) GetReversePaths(ctx context.Context, fileID string) ([]string, error) {
	return run(g, func(s IndexStore) ([]string, error) { return s.GetReversePaths(ctx, fileID) })
}

func (g *Guard) IncrementFilesystem(ctx context.Context, fs string, deltaCount, deltaSize int64) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) {
		return struct{}{}, s.IncrementFilesystem(ctx, fs, deltaCount, deltaSize)
	})
	return err
}

func (g *Guard) GetFilesystem(ctx context.Context, fs string) (*FilesystemRow, error) {
	return run(g, func(s IndexStore) (*FilesystemRow, error) { return s.GetFilesystem(ctx, fs) })
}

func (g *Guard) GetFilesystems(ctx context.Context) ([]string, error) {
	return run(g, func(s IndexStore) ([]string, error) { return s.GetFilesystems(ctx) })
}

func (g *Guard) PurgeFilesystem(ctx context.Context, fs string) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.PurgeFilesystem(ctx, fs) })
	return err
}

func (g *Guard) EnqueueReclaim(ctx context.Context, row ReclaimRow) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.EnqueueReclaim(ctx, row) })
	return err
}

func (g *Guard) ListReclaim(ctx context.Context, partition int, before time.Time, limit int) ([]ReclaimRow, error) {
	return run(g, func(s IndexStore) ([]ReclaimRow, error) { return s.ListReclaim(ctx, partition, before, limit) })
}

func (g *Guard) RemoveReclaim(ctx context.Context, partition int, deletion time.Time, fileID string) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.RemoveReclaim(ctx, partition, deletion, fileID) })
	return err
}

func (g *Guard) SaveProxySite(ctx context.Context, site string) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.SaveProxySite(ctx, site) })
	return err
}

func (g *Guard) DeleteProxySite(ctx context.Context, site string) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.DeleteProxySite(ctx, site) })
	return err
}

func (g *Guard) ListProxySites(ctx context.Context) ([]string, error) {
	return run(g, func(s IndexStore) ([]string, error) { return s.ListProxySites(ctx) })
}

func (g *Guard) TruncateProxySites(ctx context.Context) error {
	_, err := run(g, func(s IndexStore) (struct{}, error) { return struct{}{}, s.TruncateProxySites(ctx) })
	return err
}

var _ IndexStore = (*Guard)(nil)
