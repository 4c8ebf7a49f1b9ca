package auth

import (
	"context"
	"fmt"

	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/gateway"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/log"
)

// UserService manages the principal lifecycle: registration, blocking,
// sign-in and sign-out. Creation and blocking go through the gateway so
// the caller's permissions apply; session-token writes run elevated
// because they act on behalf of the freshly-authenticated principal.
type UserService struct {
	gateway  *gateway.Gateway
	resolver *Resolver
}

// NewUserService wires the user lifecycle over a gateway and a resolver.
func NewUserService(gw *gateway.Gateway, resolver *Resolver) *UserService {
	return &UserService{gateway: gw, resolver: resolver}
}

// Session is the result of a successful sign-in.
type Session struct {
	Principal   authz.Principal
	BearerToken string
}

// Create creates a principal node of the given type with a hashed
// password, subject to the caller's create permission.
func (s *UserService) Create(ctx context.Context, entityType, name, password string, props map[string]any) (*graph.Entity, error) {
	digest, err := s.resolver.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	merged := make(map[string]any, len(props)+2)
	for k, v := range props {
		merged[k] = v
	}

	merged[authz.KeyName] = name
	merged[authz.KeyPasswordDigest] = digest

	return s.gateway.Create(ctx, entityType, merged)
}

// SetPassword replaces the stored digest, subject to the caller's write
// permission on the digest property.
func (s *UserService) SetPassword(ctx context.Context, nodeID, password string) error {
	digest, err := s.resolver.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.gateway.Update(ctx, nodeID, map[string]any{authz.KeyPasswordDigest: digest})
}

// Block marks the principal blocked and revokes its session.
func (s *UserService) Block(ctx context.Context, nodeID string) error {
	return s.gateway.Update(ctx, nodeID, map[string]any{
		authz.KeyBlocked:      true,
		authz.KeySessionToken: nil,
	})
}

// Unblock clears the blocked flag.
func (s *UserService) Unblock(ctx context.Context, nodeID string) error {
	return s.gateway.Update(ctx, nodeID, map[string]any{authz.KeyBlocked: false})
}

// SignIn authenticates the credentials, rotates the session token and
// issues a bearer token. The superuser receives a bearer token without a
// stored session.
func (s *UserService) SignIn(ctx context.Context, identifier, password string) (*Session, error) {
	principal, err := s.resolver.PrincipalForPassword(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	var sessionToken string

	if principal.IsAuthenticated() {
		sessionToken, err = GenerateSessionToken()
		if err != nil {
			return nil, err
		}

		_, err = authz.RunWithElevated(ctx, "session-issue", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.resolver.store.Update(ctx, principal.NodeID, map[string]any{
				authz.KeySessionToken: sessionToken,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("store session token: %w", err)
		}
	}

	bearer, err := s.resolver.IssueToken(principal, sessionToken)
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "principal signed in", log.String("principal", principal.String()))

	return &Session{Principal: principal, BearerToken: bearer}, nil
}

// SignOut clears the principal's session token and purges the cache.
func (s *UserService) SignOut(ctx context.Context, principal authz.Principal) error {
	if !principal.IsAuthenticated() {
		return nil
	}

	node, err := authz.RunWithElevated(ctx, "session-revoke", func(ctx context.Context) (*graph.Entity, error) {
		node, err := s.resolver.store.Get(ctx, principal.NodeID)
		if err != nil {
			return nil, err
		}

		return node, s.resolver.store.Update(ctx, principal.NodeID, map[string]any{
			authz.KeySessionToken: nil,
		})
	})
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if token := node.GetString(authz.KeySessionToken); token != "" {
		s.resolver.sessions.Remove(token)
	}

	log.Info(ctx, "principal signed out", log.String("principal", principal.String()))

	return nil
}
