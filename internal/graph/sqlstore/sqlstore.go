// Package sqlstore is the SQLite-backed graph store. The compiled predicate
// tree is translated into native SQL boolean composition; exact property
// matches are backed by the (key, value) index. Property values are stored
// JSON-encoded in a key/value table per node.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/spf13/cast"
	_ "modernc.org/sqlite"

	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/search"
)

const ddl = `
CREATE TABLE IF NOT EXISTS nodes (
	id   TEXT PRIMARY KEY,
	type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes (type);

CREATE TABLE IF NOT EXISTS properties (
	node_id TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (node_id, key)
);
CREATE INDEX IF NOT EXISTS idx_properties_kv ON properties (key, value);
`

// Store is a SQLite-backed graph store.
type Store struct {
	db *sql.DB

	// commitMu serializes mutations together with their commit
	// notifications.
	commitMu sync.Mutex

	observerMu sync.Mutex
	observers  []graph.CommitObserver
}

// Open opens (and if necessary initializes) a store at the given DSN,
// e.g. "file:pagegraph.db" or "file::memory:?cache=shared".
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}

	// SQLite allows a single writer; a single connection avoids lock
	// contention errors under concurrent mutation.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

var _ graph.Store = (*Store)(nil)

func encodeValue(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("sqlstore: encode property value: %w", err)
	}

	return string(raw), nil
}

func decodeValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}

	return value
}

// Get returns the entity with the given identifier.
func (s *Store) Get(ctx context.Context, id string) (*graph.Entity, error) {
	var entityType string

	err := s.db.QueryRowContext(ctx, `SELECT type FROM nodes WHERE id = ?`, id).Scan(&entityType)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, graph.ErrNotFound
		}

		return nil, fmt.Errorf("sqlstore: get %s: %w", id, err)
	}

	props, err := s.loadProperties(ctx, id)
	if err != nil {
		return nil, err
	}

	return &graph.Entity{ID: id, Type: entityType, Properties: props}, nil
}

func (s *Store) loadProperties(ctx context.Context, id string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM properties WHERE node_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load properties of %s: %w", id, err)
	}
	defer rows.Close()

	props := make(map[string]any)

	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("sqlstore: scan property: %w", err)
		}

		props[key] = decodeValue(raw)
	}

	return props, rows.Err()
}

// Search compiles the predicate into a SQL WHERE clause and executes it.
func (s *Store) Search(ctx context.Context, q *search.Query) ([]*graph.Entity, error) {
	if q == nil || q.Root == nil {
		return nil, &search.QueryExecutionError{Predicate: "(nil)", Err: fmt.Errorf("sqlstore: nil query")}
	}

	var args []any

	where, err := buildWhere(q.Root, &args)
	if err != nil {
		return nil, search.NewQueryExecutionError(q, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT n.id, n.type FROM nodes n WHERE `+where, args...)
	if err != nil {
		return nil, search.NewQueryExecutionError(q, err)
	}
	defer rows.Close()

	type match struct{ id, entityType string }

	var matched []match

	for rows.Next() {
		var m match
		if err := rows.Scan(&m.id, &m.entityType); err != nil {
			return nil, search.NewQueryExecutionError(q, err)
		}

		matched = append(matched, m)
	}

	if err := rows.Err(); err != nil {
		return nil, search.NewQueryExecutionError(q, err)
	}

	var result []*graph.Entity

	for _, m := range matched {
		props, err := s.loadProperties(ctx, m.id)
		if err != nil {
			return nil, search.NewQueryExecutionError(q, err)
		}

		result = append(result, &graph.Entity{ID: m.id, Type: m.entityType, Properties: props})
	}

	return result, nil
}

// buildWhere renders the expanded predicate tree as a SQL boolean
// expression over the nodes/properties tables.
func buildWhere(a *search.Attribute, args *[]any) (string, error) {
	switch a.Kind {
	case search.KindLeaf:
		return buildLeaf(a, args)
	case search.KindGroup:
		if len(a.Children) == 0 {
			// A group with zero children matches everything.
			return "1 = 1", nil
		}

		parts := make([]string, 0, len(a.Children))

		for _, child := range a.Children {
			part, err := buildWhere(child, args)
			if err != nil {
				return "", err
			}

			parts = append(parts, part)
		}

		switch a.Op {
		case search.OpAnd:
			return "(" + strings.Join(parts, " AND ") + ")", nil
		case search.OpOr:
			return "(" + strings.Join(parts, " OR ") + ")", nil
		case search.OpNot:
			return "NOT (" + strings.Join(parts, " OR ") + ")", nil
		default:
			return "", fmt.Errorf("sqlstore: unsupported group operator %v", a.Op)
		}
	default:
		return "", fmt.Errorf("sqlstore: uncompiled attribute kind %v", a.Kind)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func buildLeaf(a *search.Attribute, args *[]any) (string, error) {
	if a.Key == search.KeyType {
		*args = append(*args, cast.ToString(a.Value))
		return "n.type = ?", nil
	}

	if a.Exact {
		encoded, err := encodeValue(a.Value)
		if err != nil {
			return "", err
		}

		*args = append(*args, a.Key, encoded)

		return `EXISTS (SELECT 1 FROM properties p WHERE p.node_id = n.id AND p.key = ? AND p.value = ?)`, nil
	}

	*args = append(*args, a.Key, escapeLike(cast.ToString(a.Value)))

	// Inexact matching is a case-insensitive substring test over the
	// decoded value, with LIKE metacharacters in the needle taken
	// literally so a search for "100%" behaves like the in-memory store.
	return `EXISTS (SELECT 1 FROM properties p WHERE p.node_id = n.id AND p.key = ? AND CAST(json_extract(p.value, '$') AS TEXT) LIKE '%' || ? || '%' ESCAPE '\')`, nil
}

// Create commits a new entity in one transaction.
func (s *Store) Create(ctx context.Context, entity *graph.Entity) error {
	if authz.IsReadOnly(ctx) {
		return graph.ErrReadOnly
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO nodes (id, type) VALUES (?, ?)`, entity.ID, entity.Type); err != nil {
			return fmt.Errorf("sqlstore: insert node: %w", err)
		}

		for key, value := range entity.Properties {
			if value == nil {
				continue
			}

			encoded, err := encodeValue(value)
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `INSERT INTO properties (node_id, key, value) VALUES (?, ?, ?)`, entity.ID, key, encoded); err != nil {
				return fmt.Errorf("sqlstore: insert property %s: %w", key, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, &graph.ChangeSet{
		Created: []graph.Change{{ID: entity.ID, Type: entity.Type, Keys: lo.Keys(entity.Properties)}},
	})

	return nil
}

// Update commits the given property writes atomically in one transaction.
func (s *Store) Update(ctx context.Context, id string, props map[string]any) error {
	if authz.IsReadOnly(ctx) {
		return graph.ErrReadOnly
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	var entityType string

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT type FROM nodes WHERE id = ?`, id).Scan(&entityType); err != nil {
			if err == sql.ErrNoRows {
				return graph.ErrNotFound
			}

			return fmt.Errorf("sqlstore: update %s: %w", id, err)
		}

		for key, value := range props {
			if value == nil {
				if _, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE node_id = ? AND key = ?`, id, key); err != nil {
					return fmt.Errorf("sqlstore: delete property %s: %w", key, err)
				}

				continue
			}

			encoded, err := encodeValue(value)
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO properties (node_id, key, value) VALUES (?, ?, ?)
				 ON CONFLICT (node_id, key) DO UPDATE SET value = excluded.value`,
				id, key, encoded); err != nil {
				return fmt.Errorf("sqlstore: upsert property %s: %w", key, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, &graph.ChangeSet{
		Modified: []graph.Change{{ID: id, Type: entityType, Keys: lo.Keys(props)}},
	})

	return nil
}

// Delete removes the entity and its properties in one transaction.
func (s *Store) Delete(ctx context.Context, id string) error {
	if authz.IsReadOnly(ctx) {
		return graph.ErrReadOnly
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	var entityType string

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT type FROM nodes WHERE id = ?`, id).Scan(&entityType); err != nil {
			if err == sql.ErrNoRows {
				return graph.ErrNotFound
			}

			return fmt.Errorf("sqlstore: delete %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE node_id = ?`, id); err != nil {
			return fmt.Errorf("sqlstore: delete properties: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlstore: delete node: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, &graph.ChangeSet{
		Deleted: []graph.Change{{ID: id, Type: entityType}},
	})

	return nil
}

// Relationships returns all relationship entities with id as an endpoint.
func (s *Store) Relationships(ctx context.Context, id string) ([]*graph.Entity, error) {
	encoded, err := encodeValue(id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT node_id FROM properties WHERE key IN (?, ?) AND value = ?`,
		graph.KeySourceID, graph.KeyTargetID, encoded)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: relationships of %s: %w", id, err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var relID string
		if err := rows.Scan(&relID); err != nil {
			return nil, fmt.Errorf("sqlstore: scan relationship: %w", err)
		}

		ids = append(ids, relID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var result []*graph.Entity

	for _, relID := range ids {
		entity, err := s.Get(ctx, relID)
		if err != nil {
			return nil, err
		}

		if entity.IsRelationship() {
			result = append(result, entity)
		}
	}

	return result, nil
}

// Subscribe registers a commit observer.
func (s *Store) Subscribe(observer graph.CommitObserver) {
	s.observerMu.Lock()
	defer s.observerMu.Unlock()

	s.observers = append(s.observers, observer)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}

	return nil
}

func (s *Store) notify(ctx context.Context, changes *graph.ChangeSet) {
	s.observerMu.Lock()
	observers := make([]graph.CommitObserver, len(s.observers))
	copy(observers, s.observers)
	s.observerMu.Unlock()

	for _, observer := range observers {
		observer.AfterCommit(ctx, changes)
	}
}
