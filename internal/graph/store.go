package graph

import (
	"context"
	"errors"

	"github.com/pagegraph/pagegraph/internal/search"
)

var (
	// ErrNotFound reports a missing entity.
	ErrNotFound = errors.New("graph: entity not found")

	// ErrReadOnly rejects a write attempted under a read-only elevated
	// context, such as a commit observer reacting to the commit.
	ErrReadOnly = errors.New("graph: write rejected in read-only context")
)

// IsNotFound reports whether err is an entity-not-found failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// MutationKind describes one committed mutation.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationModify MutationKind = "modify"
	MutationDelete MutationKind = "delete"
)

// Change describes one entity touched by a committed transaction.
type Change struct {
	ID   string
	Type string
	// Keys is the set of property keys touched by the mutation.
	Keys []string
}

// ChangeSet lists the records touched by one committed transaction.
// It is produced at commit time, handed to commit observers, then discarded.
type ChangeSet struct {
	Created  []Change
	Modified []Change
	Deleted  []Change
}

// Empty reports whether the change set carries no mutations.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Created) == 0 && len(cs.Modified) == 0 && len(cs.Deleted) == 0
}

// CommitObserver receives the change set of every committed transaction,
// synchronously with commit completion and after the transaction is
// durable. Observers must not open a new write transaction.
type CommitObserver interface {
	AfterCommit(ctx context.Context, changes *ChangeSet)
}

// Store is the graph store contract the access layer depends on. Mutations
// are serialized by the store's own transaction isolation; reads may run
// concurrently.
type Store interface {
	// Get returns the entity with the given identifier, ErrNotFound if
	// absent.
	Get(ctx context.Context, id string) (*Entity, error)

	// Search executes a compiled query and returns all matching entities.
	// An empty result is a valid, non-error outcome. Store-level failures
	// surface as *search.QueryExecutionError.
	Search(ctx context.Context, q *search.Query) ([]*Entity, error)

	// Create commits a new entity in its own transaction.
	Create(ctx context.Context, entity *Entity) error

	// Update commits the given property writes atomically in one
	// transaction. A nil value removes the property.
	Update(ctx context.Context, id string, props map[string]any) error

	// Delete removes the entity and commits.
	Delete(ctx context.Context, id string) error

	// Relationships returns all relationship entities with the given
	// entity as either endpoint.
	Relationships(ctx context.Context, id string) ([]*Entity, error)

	// Subscribe registers a commit observer. Not safe to call after the
	// first mutation.
	Subscribe(observer CommitObserver)

	// Close releases store resources.
	Close() error
}
