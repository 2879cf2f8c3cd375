package store

import (
	"context"
	"time"

	"github.com/gocql/gocql"
)

// statement names the CQL text used by cqlStore. Keeping them as named
// constants documents each query's shape in one place even though
// gocql transparently prepares and caches each Query the first time
// it runs.
const (
	stmtGetPathMap       = `SELECT fileid, filestorage, size, creation, expiration, checksum FROM pathmap WHERE filesystem=? AND parentpath=? AND filename=?`
	stmtListPathMap      = `SELECT filename, fileid, filestorage, size, creation, expiration, checksum FROM pathmap WHERE filesystem=? AND parentpath=?`
	stmtExistsInList     = `SELECT filename, fileid, filestorage, size, creation, expiration, checksum FROM pathmap WHERE filesystem=? AND parentpath=? AND filename IN ?`
	stmtCountExact       = `SELECT COUNT(*) FROM pathmap WHERE filesystem=? AND parentpath=? AND filename=?`
	stmtCountPrefix      = `SELECT COUNT(*) FROM pathmap WHERE filesystem=? AND parentpath=?`
	stmtUpsertPathMap    = `INSERT INTO pathmap (filesystem, parentpath, filename, fileid, filestorage, size, creation, expiration, checksum) VALUES (?,?,?,?,?,?,?,?,?)`
	stmtDeletePathMap    = `DELETE FROM pathmap WHERE filesystem=? AND parentpath=? AND filename=?`
	stmtUpdateExpiration = `UPDATE pathmap SET expiration=? WHERE filesystem=? AND parentpath=? AND filename=?`

	stmtGetChecksum    = `SELECT fileid, storage FROM filechecksum WHERE checksum=?`
	stmtSaveChecksum   = `INSERT INTO filechecksum (checksum, fileid, storage) VALUES (?,?,?)`
	stmtDeleteChecksum = `DELETE FROM filechecksum WHERE checksum=?`
	stmtListChecksums  = `SELECT checksum, fileid, storage FROM filechecksum`

	stmtAddReversePath    = `UPDATE reversemap SET paths = paths + ? WHERE fileid=?`
	stmtRemoveReversePath = `UPDATE reversemap SET paths = paths - ? WHERE fileid=?`
	stmtGetReversePaths   = `SELECT paths FROM reversemap WHERE fileid=?`

	stmtIncrementFilesystem = `UPDATE filesystem SET filecount = filecount + ?, size = size + ? WHERE filesystem=?`
	stmtGetFilesystem       = `SELECT filecount, size FROM filesystem WHERE filesystem=?`
	stmtGetFilesystems      = `SELECT filesystem FROM filesystem`
	stmtPurgeFilesystem     = `DELETE FROM filesystem WHERE filesystem=?`

	stmtEnqueueReclaim = `INSERT INTO reclaim (partition, deletion, fileid, storage, checksum) VALUES (?,?,?,?,?)`
	stmtListReclaim     = `SELECT deletion, fileid, storage, checksum FROM reclaim WHERE partition=? AND deletion<?`
	stmtRemoveReclaim   = `DELETE FROM reclaim WHERE partition=? AND deletion=? AND fileid=?`

	stmtSaveProxySite     = `INSERT INTO proxysites (site) VALUES (?)`
	stmtDeleteProxySite   = `DELETE FROM proxysites WHERE site=?`
	stmtListProxySites    = `SELECT site FROM proxysites`
	stmtTruncateProxySite = `TRUNCATE proxysites`
)

// cqlStore is the gocql-backed IndexStore implementation. It applies
// the statement-scoped consistency levels called for in §4.2: strong
// (QUORUM) for existFile/exists, reverse-map removal and reverse-map
// reads, the cluster default everywhere else.
type cqlStore struct {
	session *gocql.Session
}

// newCQLStore wraps an already-connected gocql session.
func newCQLStore(session *gocql.Session) *cqlStore {
	return &cqlStore{session: session}
}

func (s *cqlStore) GetPathMap(ctx context.Context, fs, parentPath, filename string) (*PathMapRow, error) {
	row := PathMapRow{Filesystem: fs, ParentPath: parentPath, Filename: filename}
	err := s.session.Query(stmtGetPathMap, fs, parentPath, filename).WithContext(ctx).
		Scan(&row.FileID, &row.FileStorage, &row.Size, &row.Creation, &row.Expiration, &row.Checksum)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

func (s *cqlStore) ListPathMap(ctx context.Context, fs, parentPath string) ([]PathMapRow, error) {
	iter := s.session.Query(stmtListPathMap, fs, parentPath).WithContext(ctx).Iter()
	return scanPathMapRows(iter, fs, parentPath)
}

func (s *cqlStore) ExistsInList(ctx context.Context, fs, parentPath string, filenames []string) (*PathMapRow, error) {
	iter := s.session.Query(stmtExistsInList, fs, parentPath, filenames).
		WithContext(ctx).Consistency(gocql.Quorum).Iter()
	rows, err := scanPathMapRows(iter, fs, parentPath)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func scanPathMapRows(iter *gocql.Iter, fs, parentPath string) ([]PathMapRow, error) {
	var rows []PathMapRow
	var filename, fileID, fileStorage, checksum string
	var size int64
	var creation, expiration time.Time

	for iter.Scan(&filename, &fileID, &fileStorage, &size, &creation, &expiration, &checksum) {
		rows = append(rows, PathMapRow{
			Filesystem: fs, ParentPath: parentPath, Filename: filename,
			FileID: fileID, FileStorage: fileStorage, Size: size,
			Creation: creation, Expiration: expiration, Checksum: checksum,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (s *cqlStore) CountExact(ctx context.Context, fs, parentPath, filename string) (int, error) {
	var count int
	err := s.session.Query(stmtCountExact, fs, parentPath, filename).
		WithContext(ctx).Consistency(gocql.Quorum).Scan(&count)
	if err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func (s *cqlStore) CountPrefix(ctx context.Context, fs, parentPath string) (int, error) {
	var count int
	err := s.session.Query(stmtCountPrefix, fs, parentPath).WithContext(ctx).Scan(&count)
	if err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func (s *cqlStore) UpsertPathMap(ctx context.Context, row PathMapRow) error {
	return translate(s.session.Query(stmtUpsertPathMap,
		row.Filesystem, row.ParentPath, row.Filename, row.FileID, row.FileStorage,
		row.Size, row.Creation, row.Expiration, row.Checksum).WithContext(ctx).Exec())
}

func (s *cqlStore) DeletePathMap(ctx context.Context, fs, parentPath, filename string) error {
	return translate(s.session.Query(stmtDeletePathMap, fs, parentPath, filename).WithContext(ctx).Exec())
}

func (s *cqlStore) UpdateExpiration(ctx context.Context, fs, parentPath, filename string, expiration time.Time) error {
	return translate(s.session.Query(stmtUpdateExpiration, expiration, fs, parentPath, filename).WithContext(ctx).Exec())
}

func (s *cqlStore) GetChecksum(ctx context.Context, checksum string) (*ChecksumRow, error) {
	row := ChecksumRow{Checksum: checksum}
	err := s.session.Query(stmtGetChecksum, checksum).WithContext(ctx).Scan(&row.FileID, &row.Storage)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

func (s *cqlStore) SaveChecksum(ctx context.Context, row ChecksumRow) error {
	return translate(s.session.Query(stmtSaveChecksum, row.Checksum, row.FileID, row.Storage).WithContext(ctx).Exec())
}

func (s *cqlStore) DeleteChecksum(ctx context.Context, checksum string) error {
	return translate(s.session.Query(stmtDeleteChecksum, checksum).WithContext(ctx).Exec())
}

func (s *cqlStore) ListChecksums(ctx context.Context, limit int) ([]ChecksumRow, error) {
	iter := s.session.Query(stmtListChecksums).WithContext(ctx).Iter()
	var rows []ChecksumRow
	var checksum, fileID, storage string
	for iter.Scan(&checksum, &fileID, &storage) {
		rows = append(rows, ChecksumRow{Checksum: checksum, FileID: fileID, Storage: storage})
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, translate(iter.Close())
}

func (s *cqlStore) AddReversePath(ctx context.Context, fileID, marshalled string) error {
	return translate(s.session.Query(stmtAddReversePath, []string{marshalled}, fileID).WithContext(ctx).Exec())
}

func (s *cqlStore) RemoveReversePath(ctx context.Context, fileID, marshalled string) error {
	return translate(s.session.Query(stmtRemoveReversePath, []string{marshalled}, fileID).
		WithContext(ctx).Consistency(gocql.Quorum).Exec())
}

func (s *cqlStore) GetReversePaths(ctx context.Context, fileID string) ([]string, error) {
	var paths []string
	err := s.session.Query(stmtGetReversePaths, fileID).WithContext(ctx).Consistency(gocql.Quorum).Scan(&paths)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return paths, nil
}

func (s *cqlStore) IncrementFilesystem(ctx context.Context, fs string, deltaCount, deltaSize int64) error {
	return translate(s.session.Query(stmtIncrementFilesystem, deltaCount, deltaSize, fs).WithContext(ctx).Exec())
}

func (s *cqlStore) GetFilesystem(ctx context.Context, fs string) (*FilesystemRow, error) {
	row := FilesystemRow{Filesystem: fs}
	err := s.session.Query(stmtGetFilesystem, fs).WithContext(ctx).Scan(&row.FileCount, &row.Size)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

func (s *cqlStore) GetFilesystems(ctx context.Context) ([]string, error) {
	iter := s.session.Query(stmtGetFilesystems).WithContext(ctx).Iter()
	var names []string
	var name string
	for iter.Scan(&name) {
		names = append(names, name)
	}
	return names, translate(iter.Close())
}

func (s *cqlStore) PurgeFilesystem(ctx context.Context, fs string) error {
	return translate(s.session.Query(stmtPurgeFilesystem, fs).WithContext(ctx).Exec())
}

func (s *cqlStore) EnqueueReclaim(ctx context.Context, row ReclaimRow) error {
	return translate(s.session.Query(stmtEnqueueReclaim, row.Partition, row.Deletion, row.FileID, row.Storage, row.Checksum).
		WithContext(ctx).Exec())
}

func (s *cqlStore) ListReclaim(ctx context.Context, partition int, before time.Time, limit int) ([]ReclaimRow, error) {
	iter := s.session.Query(stmtListReclaim, partition, before).WithContext(ctx).Iter()

	var rows []ReclaimRow
	var deletion time.Time
	var fileID, storage, checksum string
	for iter.Scan(&deletion, &fileID, &storage, &checksum) {
		rows = append(rows, ReclaimRow{Partition: partition, Deletion: deletion, FileID: fileID, Storage: storage, Checksum: checksum})
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	_ = iter.Close()
	return rows, nil
}

func (s *cqlStore) RemoveReclaim(ctx context.Context, partition int, deletion time.Time, fileID string) error {
	return translate(s.session.Query(stmtRemoveReclaim, partition, deletion, fileID).WithContext(ctx).Exec())
}

func (s *cqlStore) SaveProxySite(ctx context.Context, site string) error {
	return translate(s.session.Query(stmtSaveProxySite, site).WithContext(ctx).Exec())
}

func (s *cqlStore) DeleteProxySite(ctx context.Context, site string) error {
	return translate(s.session.Query(stmtDeleteProxySite, site).WithContext(ctx).Exec())
}

func (s *cqlStore) ListProxySites(ctx context.Context) ([]string, error) {
	iter := s.session.Query(stmtListProxySites).WithContext(ctx).Iter()
	var sites []string
	var site string
	for iter.Scan(&site) {
		sites = append(sites, site)
	}
	return sites, translate(iter.Close())
}

func (s *cqlStore) TruncateProxySites(ctx context.Context) error {
	return translate(s.session.Query(stmtTruncateProxySite).WithContext(ctx).Exec())
}

// translate maps gocql's "no host available" condition onto
// ErrNoHostAvailable so Guard can recognize it per §4.6, and passes
// every other error through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if err == gocql.ErrNoConnections || err == gocql.ErrConnectionClosed {
		return ErrNoHostAvailable
	}
	if _, ok := err.(gocql.RequestErrUnavailable); ok {
		return ErrNoHostAvailable
	}
	return err
}
