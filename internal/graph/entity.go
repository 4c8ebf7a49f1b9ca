// Package graph defines the entity model of the backing graph store and the
// narrow store contract the access layer depends on: typed property access,
// predicate queries, mutation, and a post-commit hook. Authoritative entity
// state is owned exclusively by the store; the access layer never caches it
// beyond a request-scoped read-through cache.
package graph

import (
	"maps"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Relationship endpoint property keys. A relationship is an entity carrying
// both endpoints.
const (
	KeySourceID = "sourceId"
	KeyTargetID = "targetId"
)

// Entity is a node or relationship in the graph, addressed by a stable
// identifier and carrying an open-ended property mapping.
type Entity struct {
	ID         string
	Type       string
	Properties map[string]any
}

// NewEntity creates an entity of the given type with a fresh identifier.
func NewEntity(entityType string, props map[string]any) *Entity {
	if props == nil {
		props = make(map[string]any)
	}

	return &Entity{
		ID:         uuid.NewString(),
		Type:       entityType,
		Properties: props,
	}
}

// Clone returns a deep-enough copy for handing out of the store: the
// property map is copied, property values are treated as immutable.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}

	return &Entity{
		ID:         e.ID,
		Type:       e.Type,
		Properties: maps.Clone(e.Properties),
	}
}

// GetString returns the property as a string, "" if absent.
func (e *Entity) GetString(key string) string {
	return cast.ToString(e.Properties[key])
}

// GetBool returns the property as a bool, false if absent.
func (e *Entity) GetBool(key string) bool {
	return cast.ToBool(e.Properties[key])
}

// GetInt returns the property as an int, 0 if absent.
func (e *Entity) GetInt(key string) int {
	return cast.ToInt(e.Properties[key])
}

// GetUint64 returns the property as a uint64, 0 if absent.
func (e *Entity) GetUint64(key string) uint64 {
	return cast.ToUint64(e.Properties[key])
}

// Has reports whether the property is present.
func (e *Entity) Has(key string) bool {
	_, ok := e.Properties[key]
	return ok
}

// IsRelationship reports whether the entity carries both endpoint keys.
func (e *Entity) IsRelationship() bool {
	return e.Has(KeySourceID) && e.Has(KeyTargetID)
}
