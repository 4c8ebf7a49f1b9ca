// Package gateway is the facade every read and write of a graph entity
// passes through. It resolves the acting principal's permission for each
// touched resource and property, filters unreadable properties out of
// reads, rejects partial writes, and runs entity validation before any
// side effect reaches the store.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/pagegraph/pagegraph/internal/access"
	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/log"
	"github.com/pagegraph/pagegraph/internal/schema"
	"github.com/pagegraph/pagegraph/internal/search"
)

// Gateway combines the access control model with the predicate engine to
// answer "may principal P do operation O on entity E / property K" on
// every store access.
type Gateway struct {
	store   graph.Store
	checker *access.Checker
	reg     *schema.Registry
}

// New creates a gateway over the given store.
func New(store graph.Store, checker *access.Checker, reg *schema.Registry) *Gateway {
	return &Gateway{store: store, checker: checker, reg: reg}
}

// Store exposes the underlying store for trusted collaborators (resolver,
// notifier) that run under elevated contexts.
func (g *Gateway) Store() graph.Store {
	return g.store
}

// resource derives the URI-shaped resource signature of an entity type.
func resource(entityType string) string {
	return entityType
}

// ReadEntity returns the entity with properties the principal may not read
// silently omitted. Partial views are normal, not erroneous.
func (g *Gateway) ReadEntity(ctx context.Context, id string) (*graph.Entity, error) {
	entity, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	principal := authz.CurrentPrincipal(ctx)

	if err := g.checker.Check(ctx, principal, resource(entity.Type), "", access.OpRead); err != nil {
		return nil, err
	}

	return g.filter(ctx, principal, entity), nil
}

// ReadProperty returns one property value, or nil without error when the
// principal lacks read permission for it.
func (g *Gateway) ReadProperty(ctx context.Context, id, key string) (any, error) {
	entity, err := g.ReadEntity(ctx, id)
	if err != nil {
		return nil, err
	}

	return entity.Properties[key], nil
}

// filter drops the properties the principal may not read. It is
// side-effect-free and safe to run concurrently for multiple principals
// against the same entity.
func (g *Gateway) filter(ctx context.Context, principal authz.Principal, entity *graph.Entity) *graph.Entity {
	if principal.IsSuperuser() || authz.IsElevated(ctx) {
		return entity
	}

	filtered := &graph.Entity{ID: entity.ID, Type: entity.Type, Properties: make(map[string]any, len(entity.Properties))}

	for key, value := range entity.Properties {
		if g.checker.Allowed(ctx, principal, resource(entity.Type), key, access.OpRead) {
			filtered.Properties[key] = value
		}
	}

	return filtered
}

// Update writes the given properties atomically. The whole operation is
// rejected when the principal lacks write permission for even one touched
// property; validation always runs on the authorized result before any
// side effect reaches the store.
func (g *Gateway) Update(ctx context.Context, id string, props map[string]any) error {
	entity, err := g.store.Get(ctx, id)
	if err != nil {
		return err
	}

	principal := authz.CurrentPrincipal(ctx)

	for key := range props {
		if err := g.checker.Check(ctx, principal, resource(entity.Type), key, access.OpWrite); err != nil {
			return err
		}
	}

	merged := entity.Clone()
	for key, value := range props {
		if value == nil {
			delete(merged.Properties, key)
		} else {
			merged.Properties[key] = value
		}
	}

	if err := g.reg.ValidateEntity(entity.Type, merged.Properties); err != nil {
		return err
	}

	if err := g.store.Update(ctx, id, props); err != nil {
		return fmt.Errorf("gateway: update %s: %w", id, err)
	}

	// The write may have changed access flags; drop anything cached for
	// the entity together with the commit.
	access.CacheFromContext(ctx).InvalidateEntity(id)

	return nil
}

// Create validates and commits a new entity of the given type. Creation
// requires resource-level permission, not property-level.
func (g *Gateway) Create(ctx context.Context, entityType string, props map[string]any) (*graph.Entity, error) {
	principal := authz.CurrentPrincipal(ctx)

	if err := g.checker.Check(ctx, principal, resource(entityType), "", access.OpCreate); err != nil {
		return nil, err
	}

	if !g.reg.Known(entityType) {
		return nil, &schema.ValidationError{Type: entityType, Token: schema.TokenTypeUnknown}
	}

	if err := g.reg.ValidateEntity(entityType, props); err != nil {
		return nil, err
	}

	// Rules created here need the same insertion stamp Rules.Create sets;
	// the position tie-break orders equal positions by it.
	if entityType == access.TypeAccessRule && props[access.KeyCreatedAt] == nil {
		stamped := make(map[string]any, len(props)+1)
		for key, value := range props {
			stamped[key] = value
		}

		stamped[access.KeyCreatedAt] = time.Now().UnixNano()
		props = stamped
	}

	entity := graph.NewEntity(entityType, props)
	if err := g.store.Create(ctx, entity); err != nil {
		return nil, fmt.Errorf("gateway: create %s: %w", entityType, err)
	}

	return entity, nil
}

// Delete removes an entity, requiring resource-level permission. Principal
// subtypes are soft-deleted because audit history may still reference
// them; their session token is cleared in the same commit.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	entity, err := g.store.Get(ctx, id)
	if err != nil {
		return err
	}

	principal := authz.CurrentPrincipal(ctx)

	if err := g.checker.Check(ctx, principal, resource(entity.Type), "", access.OpDelete); err != nil {
		return err
	}

	if g.reg.IsSubtype(entity.Type, authz.TypePrincipal) {
		if err := g.store.Update(ctx, id, map[string]any{
			authz.KeyDeleted:      true,
			authz.KeySessionToken: nil,
		}); err != nil {
			return fmt.Errorf("gateway: soft-delete %s: %w", id, err)
		}

		return nil
	}

	if err := g.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("gateway: delete %s: %w", id, err)
	}

	return nil
}

// Search compiles the predicate tree, executes it, and filters the result
// down to the entities and properties the principal may see.
func (g *Gateway) Search(ctx context.Context, tree *search.Attribute) ([]*graph.Entity, error) {
	q, err := search.Compile(g.reg, tree)
	if err != nil {
		return nil, err
	}

	entities, err := g.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	principal := authz.CurrentPrincipal(ctx)

	var visible []*graph.Entity

	for _, entity := range entities {
		if !g.checker.Allowed(ctx, principal, resource(entity.Type), "", access.OpRead) {
			continue
		}

		visible = append(visible, g.filter(ctx, principal, entity))
	}

	log.Debug(ctx, "gateway: search",
		log.String("predicate", q.String()),
		log.Int("matched", len(entities)),
		log.Int("visible", len(visible)),
	)

	return visible, nil
}

// Relationships enumerates an entity's relationships, best-effort: store
// failures are logged and reported as an empty result so cleanup paths do
// not destabilize unrelated requests. Authorization failures are never
// masked here because none are raised on this path.
func (g *Gateway) Relationships(ctx context.Context, id string) []*graph.Entity {
	rels, err := g.store.Relationships(ctx, id)
	if err != nil {
		log.Warn(ctx, "gateway: relationship enumeration failed", log.String("id", id), log.Cause(err))
		return nil
	}

	return rels
}
