package authz

import (
	"context"
	"fmt"
)

// PrincipalType defines the principal variants.
type PrincipalType int

const (
	// PrincipalTypeAnonymous is the unauthenticated principal.
	PrincipalTypeAnonymous PrincipalType = iota
	// PrincipalTypeAuthenticated is an ordinary authenticated principal
	// backed by a node in the graph store.
	PrincipalTypeAuthenticated
	// PrincipalTypeSuperuser is the built-in superuser. It is never backed
	// by a store node and bypasses every access-control rule.
	PrincipalTypeSuperuser
)

// String returns the string representation of PrincipalType.
func (p PrincipalType) String() string {
	switch p {
	case PrincipalTypeAnonymous:
		return "anonymous"
	case PrincipalTypeAuthenticated:
		return "authenticated"
	case PrincipalTypeSuperuser:
		return "superuser"
	default:
		return "unknown"
	}
}

// Principal represents the acting identity of a request.
// Each request has exactly one Principal, guaranteed by WithPrincipal's
// set-once semantics.
type Principal struct {
	Type PrincipalType

	// NodeID is the graph node backing an authenticated principal.
	// Empty for Superuser and Anonymous.
	NodeID string

	// Name is the display name of an authenticated principal.
	Name string
}

// Superuser is the built-in superuser principal.
var Superuser = Principal{Type: PrincipalTypeSuperuser}

// Anonymous is the unauthenticated principal.
var Anonymous = Principal{Type: PrincipalTypeAnonymous}

// Authenticated constructs an ordinary principal backed by a store node.
func Authenticated(nodeID, name string) Principal {
	return Principal{Type: PrincipalTypeAuthenticated, NodeID: nodeID, Name: name}
}

// IsSuperuser checks if it is the superuser principal.
func (p Principal) IsSuperuser() bool {
	return p.Type == PrincipalTypeSuperuser
}

// IsAuthenticated checks if it is an authenticated principal.
func (p Principal) IsAuthenticated() bool {
	return p.Type == PrincipalTypeAuthenticated
}

// IsAnonymous checks if it is the anonymous principal.
func (p Principal) IsAnonymous() bool {
	return p.Type == PrincipalTypeAnonymous
}

// String returns the string representation of Principal (for audit logs).
func (p Principal) String() string {
	switch p.Type {
	case PrincipalTypeSuperuser:
		return "superuser"
	case PrincipalTypeAuthenticated:
		if p.NodeID != "" {
			return fmt.Sprintf("principal:%s", p.NodeID)
		}

		return "principal:unknown"
	default:
		return "anonymous"
	}
}

// principalKey is an unexported key type to prevent external forgery.
type principalKey struct{}

// WithPrincipal sets the Principal, returns an error if a different one is
// already present. Ensures a context can only carry one principal,
// preventing principal mixing.
func WithPrincipal(ctx context.Context, p Principal) (context.Context, error) {
	if existing, ok := GetPrincipal(ctx); ok {
		if existing != p {
			return ctx, fmt.Errorf("authz: principal conflict: existing=%s, new=%s", existing.String(), p.String())
		}

		return ctx, nil // Same principal, idempotent.
	}

	return context.WithValue(ctx, principalKey{}, p), nil
}

// GetPrincipal reads the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// MustGetPrincipal reads the Principal, panics if absent (used in chains
// where the principal is confirmed).
func MustGetPrincipal(ctx context.Context) Principal {
	p, ok := GetPrincipal(ctx)
	if !ok {
		panic("authz: no principal in context")
	}

	return p
}

// CurrentPrincipal reads the Principal, falling back to Anonymous.
func CurrentPrincipal(ctx context.Context) Principal {
	if p, ok := GetPrincipal(ctx); ok {
		return p
	}

	return Anonymous
}

// NewSuperuserContext creates a context with the Superuser principal
// (for trusted background tasks).
func NewSuperuserContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, principalKey{}, Superuser)
}

// NewAuthenticatedContext creates a context with an authenticated principal.
func NewAuthenticatedContext(ctx context.Context, nodeID, name string) context.Context {
	return context.WithValue(ctx, principalKey{}, Authenticated(nodeID, name))
}

// RequirePrincipal checks that an authenticated or superuser principal is
// present, otherwise returns an error.
func RequirePrincipal(ctx context.Context) error {
	p, ok := GetPrincipal(ctx)
	if !ok || p.IsAnonymous() {
		return fmt.Errorf("authz: no principal in context")
	}

	return nil
}
