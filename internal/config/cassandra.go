package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// NewCassandraCluster builds the cluster configuration for the message store.
// Keyspace may be empty for schema setup before the keyspace exists.
func NewCassandraCluster(cfg CassandraConfig, timeout time.Duration) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = ParseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = timeout
	cluster.Timeout = timeout

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	return cluster
}

// NewCassandraSession connects to the message store keyspace
func NewCassandraSession(cfg CassandraConfig, timeout time.Duration) (*gocql.Session, error) {
	session, err := NewCassandraCluster(cfg, timeout).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}
	return session, nil
}

// ParseConsistency converts a consistency level name; unknown names fall back to LOCAL_QUORUM.
func ParseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "EACH_QUORUM":
		return gocql.EachQuorum
	default:
		return gocql.LocalQuorum
	}
}
