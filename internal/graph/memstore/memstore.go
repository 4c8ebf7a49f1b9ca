// Package memstore is the in-memory reference implementation of the graph
// store. Queries run as a scan with predicate post-filtering; mutations are
// serialized and each commit is delivered to the registered observers
// before the next mutation may start.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/search"
)

// Store is an in-memory graph store.
type Store struct {
	// commitMu serializes mutations together with their commit
	// notifications; observers run read-only queries against the store, so
	// it must not be held while mu is.
	commitMu sync.Mutex

	mu       sync.RWMutex
	entities map[string]*graph.Entity

	observerMu sync.Mutex
	observers  []graph.CommitObserver
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entities: make(map[string]*graph.Entity)}
}

var _ graph.Store = (*Store)(nil)

// Get returns a copy of the stored entity.
func (s *Store) Get(_ context.Context, id string) (*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[id]
	if !ok {
		return nil, graph.ErrNotFound
	}

	return entity.Clone(), nil
}

// Search scans all entities and post-filters with the compiled predicate.
func (s *Store) Search(_ context.Context, q *search.Query) ([]*graph.Entity, error) {
	if q == nil {
		return nil, &search.QueryExecutionError{Predicate: "(nil)", Err: fmt.Errorf("memstore: nil query")}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*graph.Entity

	for _, entity := range s.entities {
		if q.Match(entity.Type, entity.Properties) {
			result = append(result, entity.Clone())
		}
	}

	return result, nil
}

// Create commits a new entity.
func (s *Store) Create(ctx context.Context, entity *graph.Entity) error {
	if authz.IsReadOnly(ctx) {
		return graph.ErrReadOnly
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()

	if _, ok := s.entities[entity.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("memstore: entity %s already exists", entity.ID)
	}

	s.entities[entity.ID] = entity.Clone()
	s.mu.Unlock()

	s.notify(ctx, &graph.ChangeSet{
		Created: []graph.Change{{ID: entity.ID, Type: entity.Type, Keys: lo.Keys(entity.Properties)}},
	})

	return nil
}

// Update commits the given property writes atomically.
func (s *Store) Update(ctx context.Context, id string, props map[string]any) error {
	if authz.IsReadOnly(ctx) {
		return graph.ErrReadOnly
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()

	entity, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return graph.ErrNotFound
	}

	for key, value := range props {
		if value == nil {
			delete(entity.Properties, key)
		} else {
			entity.Properties[key] = value
		}
	}

	entityType := entity.Type
	s.mu.Unlock()

	s.notify(ctx, &graph.ChangeSet{
		Modified: []graph.Change{{ID: id, Type: entityType, Keys: lo.Keys(props)}},
	})

	return nil
}

// Delete removes the entity and commits.
func (s *Store) Delete(ctx context.Context, id string) error {
	if authz.IsReadOnly(ctx) {
		return graph.ErrReadOnly
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()

	entity, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return graph.ErrNotFound
	}

	entityType := entity.Type
	delete(s.entities, id)
	s.mu.Unlock()

	s.notify(ctx, &graph.ChangeSet{
		Deleted: []graph.Change{{ID: id, Type: entityType}},
	})

	return nil
}

// Relationships returns every relationship entity with id as an endpoint.
func (s *Store) Relationships(_ context.Context, id string) ([]*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*graph.Entity

	for _, entity := range s.entities {
		if !entity.IsRelationship() {
			continue
		}

		if entity.GetString(graph.KeySourceID) == id || entity.GetString(graph.KeyTargetID) == id {
			result = append(result, entity.Clone())
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

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
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
