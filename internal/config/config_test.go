package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFillsDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "store:\n  hosts: [\"10.0.0.1\", \"10.0.0.2\"]\n  keyspace: prod_index\n  replication_factor: 3\nreclaim:\n  grace_period: 1h\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Store.Hosts)
	require.Equal(t, "prod_index", cfg.Store.Keyspace)
	require.Equal(t, 3, cfg.Store.ReplicationFactor)
	require.Equal(t, 9042, cfg.Store.Port) // default retained
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestValidateRejectsEmptyKeyspace(t *testing.T) {
	cfg := Default()
	cfg.Store.Keyspace = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNoHosts(t *testing.T) {
	cfg := Default()
	cfg.Store.Hosts = nil
	require.Error(t, cfg.Validate())
}
