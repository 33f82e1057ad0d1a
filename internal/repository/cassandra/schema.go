package cassandra

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gocql/gocql"
)

var keyspaceName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

const createMessagesTableCQL = `CREATE TABLE IF NOT EXISTS %s.messages_by_room (
	room_id text,
	created_at timestamp,
	message_id uuid,
	sender_id text,
	content text,
	media list<text>,
	edited_at timestamp,
	reply_to uuid,
	PRIMARY KEY ((room_id), created_at, message_id)
) WITH CLUSTERING ORDER BY (created_at DESC, message_id ASC)`

// SchemaStatements returns the CQL that creates the keyspace and the
// messages_by_room table.
func SchemaStatements(keyspace string, replicationFactor int) ([]string, error) {
	if !keyspaceName.MatchString(keyspace) {
		return nil, fmt.Errorf("invalid keyspace name %q", keyspace)
	}
	if replicationFactor < 1 {
		return nil, fmt.Errorf("replication factor must be at least 1, got %d", replicationFactor)
	}

	return []string{
		fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
			keyspace, replicationFactor),
		fmt.Sprintf(createMessagesTableCQL, keyspace),
	}, nil
}

// EnsureSchema applies SchemaStatements. The session must not be bound to the
// keyspace being created.
func EnsureSchema(ctx context.Context, session *gocql.Session, keyspace string, replicationFactor int) error {
	stmts, err := SchemaStatements(keyspace, replicationFactor)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
