package store

// schemaStatements returns the idempotent DDL for the six logical
// tables (§6.1), parameterized by keyspace and replication factor.
// Re-initialization (§4.6) re-runs this DDL; every statement uses
// IF NOT EXISTS so replays are safe.
func schemaStatements(keyspace string, replicationFactor int) []string {
	return []string{
		cqlCreateKeyspace(keyspace, replicationFactor),
		`CREATE TABLE IF NOT EXISTS ` + keyspace + `.pathmap (
			filesystem text,
			parentpath text,
			filename text,
			fileid text,
			filestorage text,
			size bigint,
			creation timestamp,
			expiration timestamp,
			checksum text,
			PRIMARY KEY ((filesystem, parentpath), filename)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + keyspace + `.filechecksum (
			checksum text PRIMARY KEY,
			fileid text,
			storage text
		)`,
		`CREATE TABLE IF NOT EXISTS ` + keyspace + `.reversemap (
			fileid text PRIMARY KEY,
			paths set<text>
		)`,
		`CREATE TABLE IF NOT EXISTS ` + keyspace + `.filesystem (
			filesystem text PRIMARY KEY,
			filecount counter,
			size counter
		)`,
		`CREATE TABLE IF NOT EXISTS ` + keyspace + `.reclaim (
			partition int,
			deletion timestamp,
			fileid text,
			storage text,
			checksum text,
			PRIMARY KEY (partition, deletion, fileid)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + keyspace + `.proxysites (
			site text PRIMARY KEY
		)`,
	}
}

func cqlCreateKeyspace(keyspace string, replicationFactor int) string {
	return `CREATE KEYSPACE IF NOT EXISTS ` + keyspace + ` WITH replication = ` +
		`{'class': 'SimpleStrategy', 'replication_factor': ` + itoa(replicationFactor) + `}`
}

func itoa(n int) string {
	if n <= 0 {
		return "1"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
