package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// pathKey identifies one pathmap row.
type pathKey struct {
	fs, parentPath, filename string
}

// MemStore is an in-memory IndexStore used by engine and protocol tests
// that exercise the insert/delete consistency rules without a live
// cluster. It applies the same per-table semantics as cqlStore (IN-list
// lookups, counter deltas, set-valued reverse paths) but holds
// everything behind a single mutex, so it is not useful for exercising
// real interleavings: each call is atomic on its own, and nothing
// orders a sequence of calls from concurrent goroutines.
type MemStore struct {
	mu sync.Mutex

	pathmap    map[pathKey]PathMapRow
	checksums  map[string]ChecksumRow
	reverse    map[string]map[string]struct{}
	filesystem map[string]*FilesystemRow
	reclaim    map[int]map[string]ReclaimRow // partition -> "deletion|fileid" -> row
	proxySites map[string]struct{}

	// failNextNoHost, when >0, makes the next N calls return
	// ErrNoHostAvailable before succeeding; used to exercise Guard's
	// reinit-and-retry path deterministically.
	failNextNoHost int
}

// NewMemStore returns an empty, ready-to-use in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		pathmap:    make(map[pathKey]PathMapRow),
		checksums:  make(map[string]ChecksumRow),
		reverse:    make(map[string]map[string]struct{}),
		filesystem: make(map[string]*FilesystemRow),
		reclaim:    make(map[int]map[string]ReclaimRow),
		proxySites: make(map[string]struct{}),
	}
}

// FailNext arms the store to return ErrNoHostAvailable for the next n
// calls, regardless of method.
func (m *MemStore) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextNoHost = n
}

func (m *MemStore) maybeFail() error {
	if m.failNextNoHost > 0 {
		m.failNextNoHost--
		return ErrNoHostAvailable
	}
	return nil
}

func reclaimKey(deletion time.Time, fileID string) string {
	return deletion.UTC().Format(time.RFC3339Nano) + "|" + fileID
}

func (m *MemStore) GetPathMap(_ context.Context, fs, parentPath, filename string) (*PathMapRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	row, ok := m.pathmap[pathKey{fs, parentPath, filename}]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (m *MemStore) ListPathMap(_ context.Context, fs, parentPath string) ([]PathMapRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	var rows []PathMapRow
	for k, row := range m.pathmap {
		if k.fs == fs && k.parentPath == parentPath {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Filename < rows[j].Filename })
	return rows, nil
}

func (m *MemStore) ExistsInList(_ context.Context, fs, parentPath string, filenames []string) (*PathMapRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	for _, name := range filenames {
		if row, ok := m.pathmap[pathKey{fs, parentPath, name}]; ok {
			cp := row
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CountExact(_ context.Context, fs, parentPath, filename string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return 0, err
	}
	if _, ok := m.pathmap[pathKey{fs, parentPath, filename}]; ok {
		return 1, nil
	}
	return 0, nil
}

func (m *MemStore) CountPrefix(_ context.Context, fs, parentPath string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return 0, err
	}
	count := 0
	for k := range m.pathmap {
		if k.fs == fs && k.parentPath == parentPath {
			count++
		}
	}
	return count, nil
}

func (m *MemStore) UpsertPathMap(_ context.Context, row PathMapRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.pathmap[pathKey{row.Filesystem, row.ParentPath, row.Filename}] = row
	return nil
}

func (m *MemStore) DeletePathMap(_ context.Context, fs, parentPath, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	delete(m.pathmap, pathKey{fs, parentPath, filename})
	return nil
}

func (m *MemStore) UpdateExpiration(_ context.Context, fs, parentPath, filename string, expiration time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	key := pathKey{fs, parentPath, filename}
	row, ok := m.pathmap[key]
	if !ok {
		return nil
	}
	row.Expiration = expiration
	m.pathmap[key] = row
	return nil
}

func (m *MemStore) GetChecksum(_ context.Context, checksum string) (*ChecksumRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	row, ok := m.checksums[checksum]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (m *MemStore) SaveChecksum(_ context.Context, row ChecksumRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.checksums[row.Checksum] = row
	return nil
}

func (m *MemStore) DeleteChecksum(_ context.Context, checksum string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	delete(m.checksums, checksum)
	return nil
}

func (m *MemStore) ListChecksums(_ context.Context, limit int) ([]ChecksumRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	rows := make([]ChecksumRow, 0, len(m.checksums))
	for _, row := range m.checksums {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Checksum < rows[j].Checksum })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *MemStore) AddReversePath(_ context.Context, fileID, marshalled string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	set, ok := m.reverse[fileID]
	if !ok {
		set = make(map[string]struct{})
		m.reverse[fileID] = set
	}
	set[marshalled] = struct{}{}
	return nil
}

func (m *MemStore) RemoveReversePath(_ context.Context, fileID, marshalled string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	if set, ok := m.reverse[fileID]; ok {
		delete(set, marshalled)
		if len(set) == 0 {
			delete(m.reverse, fileID)
		}
	}
	return nil
}

func (m *MemStore) GetReversePaths(_ context.Context, fileID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	set, ok := m.reverse[fileID]
	if !ok {
		return nil, nil
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *MemStore) IncrementFilesystem(_ context.Context, fs string, deltaCount, deltaSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	row, ok := m.filesystem[fs]
	if !ok {
		row = &FilesystemRow{Filesystem: fs}
		m.filesystem[fs] = row
	}
	row.FileCount += deltaCount
	row.Size += deltaSize
	return nil
}

func (m *MemStore) GetFilesystem(_ context.Context, fs string) (*FilesystemRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	row, ok := m.filesystem[fs]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (m *MemStore) GetFilesystems(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	var names []string
	for fs := range m.filesystem {
		names = append(names, fs)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemStore) PurgeFilesystem(_ context.Context, fs string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	delete(m.filesystem, fs)
	return nil
}

func (m *MemStore) EnqueueReclaim(_ context.Context, row ReclaimRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	bucket, ok := m.reclaim[row.Partition]
	if !ok {
		bucket = make(map[string]ReclaimRow)
		m.reclaim[row.Partition] = bucket
	}
	bucket[reclaimKey(row.Deletion, row.FileID)] = row
	return nil
}

func (m *MemStore) ListReclaim(_ context.Context, partition int, before time.Time, limit int) ([]ReclaimRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	bucket := m.reclaim[partition]
	var rows []ReclaimRow
	for _, row := range bucket {
		if row.Deletion.Before(before) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Deletion.Before(rows[j].Deletion) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *MemStore) RemoveReclaim(_ context.Context, partition int, deletion time.Time, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	if bucket, ok := m.reclaim[partition]; ok {
		delete(bucket, reclaimKey(deletion, fileID))
	}
	return nil
}

func (m *MemStore) SaveProxySite(_ context.Context, site string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.proxySites[site] = struct{}{}
	return nil
}

func (m *MemStore) DeleteProxySite(_ context.Context, site string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	delete(m.proxySites, site)
	return nil
}

func (m *MemStore) ListProxySites(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	var sites []string
	for s := range m.proxySites {
		sites = append(sites, s)
	}
	sort.Strings(sites)
	return sites, nil
}

func (m *MemStore) TruncateProxySites(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.proxySites = make(map[string]struct{})
	return nil
}

var _ IndexStore = (*MemStore)(nil)
