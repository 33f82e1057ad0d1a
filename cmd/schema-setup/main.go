package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"

	"galileo-chat/internal/config"
	"galileo-chat/internal/observability"
	"galileo-chat/internal/repository/cassandra"
)

const (
	maxAttempts   = 5
	retryInterval = 5 * time.Second
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	defaultRF := 1
	if v, err := strconv.Atoi(os.Getenv("CASSANDRA_REPLICATION_FACTOR")); err == nil {
		defaultRF = v
	}
	keyspace := flag.String("keyspace", cfg.Cassandra.Keyspace, "keyspace to create")
	replicationFactor := flag.Int("replication-factor", defaultRF, "SimpleStrategy replication factor")
	flag.Parse()

	slog.Info("setting up message store schema",
		slog.String("keyspace", *keyspace),
		slog.Int("replication_factor", *replicationFactor),
		slog.Any("hosts", cfg.Cassandra.Hosts))

	// The keyspace may not exist yet; connect without one.
	clusterCfg := cfg.Cassandra
	clusterCfg.Keyspace = ""

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := setup(clusterCfg, cfg.StoreTimeout, *keyspace, *replicationFactor)
		if err == nil {
			slog.Info("message store schema ready", slog.String("keyspace", *keyspace))
			return
		}

		slog.Warn("schema setup failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("error", err.Error()))
		if attempt < maxAttempts {
			time.Sleep(retryInterval)
		}
	}

	slog.Error("giving up on schema setup")
	os.Exit(1)
}

func setup(cfg config.CassandraConfig, timeout time.Duration, keyspace string, replicationFactor int) error {
	session, err := config.NewCassandraSession(cfg, timeout)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return cassandra.EnsureSchema(ctx, session, keyspace, replicationFactor)
}
