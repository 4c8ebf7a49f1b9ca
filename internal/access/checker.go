package access

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/log"
	"github.com/pagegraph/pagegraph/internal/schema"
	"github.com/pagegraph/pagegraph/internal/search"
)

// TypeMembership is the relationship type linking a principal to a group.
const TypeMembership = "MemberOf"

// AuthorizationError reports a denied operation on a specific resource,
// property and operation.
type AuthorizationError struct {
	Principal   string
	Resource    string
	PropertyKey string
	Operation   Operation
}

func (e *AuthorizationError) Error() string {
	if e.PropertyKey != "" {
		return fmt.Sprintf("permission denied: %s may not %s %s.%s", e.Principal, e.Operation, e.Resource, e.PropertyKey)
	}

	return fmt.Sprintf("permission denied: %s may not %s %s", e.Principal, e.Operation, e.Resource)
}

// IsAuthorizationError reports whether err contains an AuthorizationError.
func IsAuthorizationError(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// Checker evaluates access rules for a principal. Check is side-effect-free
// apart from warming the request cache and safe to run concurrently for
// multiple principals against the same entity.
type Checker struct {
	store graph.Store
	rules *Rules
	reg   *schema.Registry
}

// NewChecker creates a checker backed by the given store.
func NewChecker(store graph.Store, rules *Rules, reg *schema.Registry) *Checker {
	return &Checker{store: store, rules: rules, reg: reg}
}

// grantee specificity ranks; lower ranks win at equal position.
const (
	rankDirect    = 0 // rule attached directly to the principal
	rankInherited = 1 // rule attached to a group the principal belongs to
	rankGeneral   = 2 // rule without a grantee, applies to everyone
)

// Check answers whether the principal may perform the operation on the
// resource, optionally scoped to a property key. It returns nil to allow
// and an *AuthorizationError to deny.
//
// Evaluation order: the superuser always allows; then property-scoped rules
// for the exact resource, position ascending, first match wins; then
// resource-scoped rules under the same ordering; then default deny. Direct
// rules take precedence over inherited ones at equal position; ties beyond
// that break by insertion order.
func (c *Checker) Check(ctx context.Context, principal authz.Principal, resource, propertyKey string, op Operation) error {
	if principal.IsSuperuser() || authz.IsElevated(ctx) {
		return nil
	}

	deny := &AuthorizationError{
		Principal:   principal.String(),
		Resource:    resource,
		PropertyKey: propertyKey,
		Operation:   op,
	}

	entries, err := c.entriesFor(ctx, resource)
	if err != nil {
		log.Error(ctx, "access: failed to load rules", log.String("resource", resource), log.Cause(err))
		// Rule loading failures deny; they must never widen access.
		return deny
	}

	groups := c.groupsOf(ctx, principal)

	applicable := make([]rankedEntry, 0, len(entries))

	for _, entry := range entries {
		rank, ok := granteeRank(entry, principal, groups)
		if !ok {
			continue
		}

		applicable = append(applicable, rankedEntry{entry: entry, rank: rank})
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		a, b := applicable[i], applicable[j]
		if a.entry.Position != b.entry.Position {
			return a.entry.Position < b.entry.Position
		}

		if a.rank != b.rank {
			return a.rank < b.rank
		}

		return a.entry.createdAt < b.entry.createdAt
	})

	propertyScoped := propertyKey != ""
	required := op.requiredFlag(propertyScoped)

	// Pass 1: rules scoped to the exact property.
	if propertyScoped {
		for _, candidate := range applicable {
			if candidate.entry.PropertyKey != propertyKey {
				continue
			}

			if c.allows(ctx, candidate.entry, required) {
				return nil
			}

			return deny
		}
	}

	// Pass 2: resource-scoped rules without property scoping.
	for _, candidate := range applicable {
		if candidate.entry.PropertyKey != "" {
			continue
		}

		if c.allows(ctx, candidate.entry, required) {
			return nil
		}

		return deny
	}

	// Default deny.
	return deny
}

// Allowed is the boolean form of Check.
func (c *Checker) Allowed(ctx context.Context, principal authz.Principal, resource, propertyKey string, op Operation) bool {
	return c.Check(ctx, principal, resource, propertyKey, op) == nil
}

type rankedEntry struct {
	entry *Entry
	rank  int
}

// allows reads the decisive flag mask through the request cache so that a
// flag mutation earlier in the same request is always observed.
func (c *Checker) allows(ctx context.Context, entry *Entry, required Permission) bool {
	flags, err := c.rules.Flags(ctx, entry.ID)
	if err != nil {
		flags = entry.Flags
	}

	return flags&required == required
}

func granteeRank(entry *Entry, principal authz.Principal, groups []string) (int, bool) {
	if entry.GranteeID == "" {
		return rankGeneral, true
	}

	if principal.IsAuthenticated() && entry.GranteeID == principal.NodeID {
		return rankDirect, true
	}

	if lo.Contains(groups, entry.GranteeID) {
		return rankInherited, true
	}

	return 0, false
}

// entriesFor loads all rules attached to the resource under an elevated
// context; rule loading cannot itself be subject to the rules it loads.
func (c *Checker) entriesFor(ctx context.Context, resource string) ([]*Entry, error) {
	return authz.RunWithElevated(ctx, "access-rule-lookup", func(ctx context.Context) ([]*Entry, error) {
		q, err := search.Compile(c.reg, search.And(
			search.Exact(search.KeyType, TypeAccessRule),
			search.Exact(KeyResource, resource),
		))
		if err != nil {
			return nil, err
		}

		entities, err := c.store.Search(ctx, q)
		if err != nil {
			return nil, err
		}

		entries := make([]*Entry, 0, len(entities))
		for _, entity := range entities {
			entries = append(entries, EntryFromEntity(entity))
		}

		return entries, nil
	})
}

// groupsOf enumerates the groups the principal belongs to. Enumeration is
// best-effort: store failures are logged and treated as no membership,
// which can only narrow the principal's permissions.
func (c *Checker) groupsOf(ctx context.Context, principal authz.Principal) []string {
	if !principal.IsAuthenticated() {
		return nil
	}

	rels, err := authz.RunWithElevated(ctx, "access-membership-lookup", func(ctx context.Context) ([]*graph.Entity, error) {
		return c.store.Relationships(ctx, principal.NodeID)
	})
	if err != nil {
		log.Warn(ctx, "access: membership enumeration failed",
			log.String("principal", principal.String()), log.Cause(err))

		return nil
	}

	var groups []string

	for _, rel := range rels {
		if rel.Type == TypeMembership && rel.GetString(graph.KeySourceID) == principal.NodeID {
			groups = append(groups, rel.GetString(graph.KeyTargetID))
		}
	}

	return groups
}
