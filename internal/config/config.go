// Package config loads the path index's YAML configuration: the index
// store endpoint (§6.2), ambient logging and retry settings, and the
// reclamation grace period.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is the complete, top-level configuration document.
type Configuration struct {
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
	Retry    RetryConfig    `yaml:"retry"`
	Reclaim  ReclaimConfig  `yaml:"reclaim"`
	Physical PhysicalConfig `yaml:"physical"`
	Executor ExecutorConfig `yaml:"executor"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StoreConfig configures the connection to the wide-column index store
// (§6.2: endpoint host/port, credentials, keyspace, replication factor,
// reconnect delay).
type StoreConfig struct {
	Hosts             []string      `yaml:"hosts"`
	Port              int           `yaml:"port"`
	Keyspace          string        `yaml:"keyspace"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	ReplicationFactor int           `yaml:"replication_factor"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RetryConfig controls background reconciliation/retry backoff. The
// connection shim itself always uses "retry exactly once" per §4.6
// and does not read this section.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// ReclaimConfig controls the garbage collection grace period (§4.5, §6.2).
type ReclaimConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
}

// PhysicalConfig configures the physical blob store adapter backing
// the index's storage tokens.
type PhysicalConfig struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// ExecutorConfig sizes the bounded background job executor that runs
// the asynchronous half of the insert/delete protocol (§4.4, §4.5).
type ExecutorConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// MetricsConfig controls Prometheus metrics collection and exposition.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Default returns sensible defaults for every section.
func Default() Configuration {
	return Configuration{
		Store: StoreConfig{
			Hosts:             []string{"127.0.0.1"},
			Port:              9042,
			Keyspace:          "pathindex",
			ReplicationFactor: 1,
			ReconnectDelay:    60 * time.Second,
			ConnectTimeout:    10 * time.Second,
		},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Retry:    RetryConfig{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 30 * time.Second},
		Reclaim:  ReclaimConfig{GracePeriod: 24 * time.Hour},
		Physical: PhysicalConfig{Bucket: "pathindex-blobs"},
		Executor: ExecutorConfig{Workers: 8, QueueSize: 1024},
		Metrics:  MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
	}
}

// Load reads and parses a YAML configuration file, filling unset fields
// with the defaults from Default().
func Load(path string) (Configuration, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks required fields are present.
func (c Configuration) Validate() error {
	if len(c.Store.Hosts) == 0 {
		return fmt.Errorf("store.hosts must not be empty")
	}
	if c.Store.Keyspace == "" {
		return fmt.Errorf("store.keyspace must not be empty")
	}
	if c.Store.ReplicationFactor <= 0 {
		return fmt.Errorf("store.replication_factor must be positive")
	}
	return nil
}
