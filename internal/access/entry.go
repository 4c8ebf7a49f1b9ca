package access

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/schema"
)

// TypeAccessRule is the entity type carrying access rules in the graph.
const TypeAccessRule = "AccessRule"

// Property keys of access rule entities.
const (
	KeyResource    = "resource"
	KeyPropertyKey = "propertyKey"
	KeyGranteeID   = "granteeId"
	KeyFlags       = "flags"
	KeyPosition    = "position"
	KeyCreatedAt   = "createdAt"
)

// Entry is one access control rule: a flag mask attached to a URI-shaped
// resource name, optionally scoped to a single property key and/or to a
// grantee (a principal or group node). Position orders overlapping rules;
// lower positions are evaluated first.
type Entry struct {
	ID          string
	Resource    string
	PropertyKey string // empty means resource-scoped
	GranteeID   string // empty means the rule applies to every principal
	Flags       Permission
	Position    int

	// createdAt breaks position ties by insertion order.
	createdAt int64
}

// EntryFromEntity reads an access rule from its backing entity.
func EntryFromEntity(e *graph.Entity) *Entry {
	return &Entry{
		ID:          e.ID,
		Resource:    e.GetString(KeyResource),
		PropertyKey: e.GetString(KeyPropertyKey),
		GranteeID:   e.GetString(KeyGranteeID),
		Flags:       Permission(e.GetUint64(KeyFlags)),
		Position:    e.GetInt(KeyPosition),
		createdAt:   cast.ToInt64(e.Properties[KeyCreatedAt]),
	}
}

// CreatedAt returns the insertion stamp in nanoseconds, zero when the
// backing entity never received one.
func (e *Entry) CreatedAt() int64 {
	return e.createdAt
}

// Allows reports whether the rule's flag mask carries the permission.
func (e *Entry) Allows(p Permission) bool {
	return e.Flags&p == p
}

// String renders the rule for logs.
func (e *Entry) String() string {
	return fmt.Sprintf("('%s': flags: %s, position: %d)", e.Resource, e.Flags, e.Position)
}

// TokenFlagsOrPosition marks a rule missing both its flag mask and its
// position.
const TokenFlagsOrPosition = "flags_or_position_required"

// ValidateRuleProps is the type-specific validator for AccessRule entities:
// the resource name must not be blank, and flags and position must not both
// be absent. Registered with the schema registry so it runs before every
// commit.
func ValidateRuleProps(props map[string]any) error {
	if strings.TrimSpace(cast.ToString(props[KeyResource])) == "" {
		return &schema.ValidationError{Type: TypeAccessRule, Key: KeyResource, Token: schema.TokenMustNotBeBlank}
	}

	_, hasFlags := props[KeyFlags]
	_, hasPosition := props[KeyPosition]

	if !hasFlags && !hasPosition {
		return &schema.ValidationError{Type: TypeAccessRule, Key: KeyFlags, Token: TokenFlagsOrPosition}
	}

	return nil
}
