package store

import (
	"github.com/gocql/gocql"

	"github.com/pathindex/pathindex/internal/config"
)

// Dialer builds a fresh gocql session and schema-checks it. Guard calls
// this both on first use and whenever it needs to reinitialize (§4.6).
type Dialer func() (*gocql.Session, error)

// NewDialer returns a Dialer bound to the given store configuration.
func NewDialer(cfg config.StoreConfig) Dialer {
	return func() (*gocql.Session, error) {
		cluster := gocql.NewCluster(cfg.Hosts...)
		cluster.Port = cfg.Port
		cluster.Keyspace = "" // keyspace is created below, then set per-session
		cluster.ConnectTimeout = cfg.ConnectTimeout
		cluster.Timeout = cfg.ConnectTimeout
		cluster.Consistency = gocql.One
		if cfg.Username != "" {
			cluster.Authenticator = gocql.PasswordAuthenticator{
				Username: cfg.Username,
				Password: cfg.Password,
			}
		}

		bootstrap, err := cluster.CreateSession()
		if err != nil {
			return nil, translate(err)
		}
		for _, stmt := range schemaStatements(cfg.Keyspace, cfg.ReplicationFactor) {
			if err := bootstrap.Query(stmt).Exec(); err != nil {
				bootstrap.Close()
				return nil, translate(err)
			}
		}
		bootstrap.Close()

		cluster.Keyspace = cfg.Keyspace
		session, err := cluster.CreateSession()
		if err != nil {
			return nil, translate(err)
		}
		return session, nil
	}
}
