// Package auth resolves the acting principal of a request from a static
// superuser credential pair, a password match against a stored digest, or
// a session-token lookup. All store access in this package runs under an
// elevated context, because principal resolution cannot require the
// authorization it is itself establishing; the returned principal is the
// narrowly-privileged identity every subsequent operation must use.
package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/log"
	"github.com/pagegraph/pagegraph/internal/schema"
	"github.com/pagegraph/pagegraph/internal/search"
)

// Config configures principal resolution.
type Config struct {
	// SuperuserName and SuperuserPassword form the static superuser
	// credential pair. The shortcut never touches the store.
	SuperuserName     string `conf:"superuser_name"     yaml:"superuser_name"     json:"superuser_name"`
	SuperuserPassword string `conf:"superuser_password" yaml:"superuser_password" json:"superuser_password"`

	// LoginKey is the principal property matched against the supplied
	// identifier, next to the email. Defaults to the display name.
	LoginKey string `conf:"login_key" yaml:"login_key" json:"login_key"`

	// Hasher selects the password digest: bcrypt (default) or sha512.
	Hasher string `conf:"hasher" yaml:"hasher" json:"hasher"`

	// JWTSecret signs the bearer tokens wrapping session tokens.
	JWTSecret string `conf:"jwt_secret" yaml:"jwt_secret" json:"jwt_secret"`

	// SessionTTL bounds both the bearer token lifetime and the session
	// cache.
	SessionTTL time.Duration `conf:"session_ttl" yaml:"session_ttl" json:"session_ttl"`
}

const (
	defaultSessionTTL   = 7 * 24 * time.Hour
	sessionCacheEntries = 1024
	sessionCacheTTL     = 30 * time.Second
)

func (c Config) loginKey() string {
	if c.LoginKey == "" {
		return authz.KeyName
	}

	return c.LoginKey
}

func (c Config) sessionTTL() time.Duration {
	if c.SessionTTL <= 0 {
		return defaultSessionTTL
	}

	return c.SessionTTL
}

// Resolver resolves principals from credentials and session tokens.
type Resolver struct {
	store  graph.Store
	reg    *schema.Registry
	hasher PasswordHasher
	config Config

	// sessions caches confirmed token-to-node mappings to avoid a search
	// per request; entries are short-lived and every hit is re-confirmed
	// against the store before use.
	sessions *expirable.LRU[string, string]
}

// NewResolver creates a resolver over the given store.
func NewResolver(store graph.Store, reg *schema.Registry, config Config) *Resolver {
	return &Resolver{
		store:    store,
		reg:      reg,
		hasher:   NewHasher(config.Hasher),
		config:   config,
		sessions: expirable.NewLRU[string, string](sessionCacheEntries, nil, sessionCacheTTL),
	}
}

// PrincipalForPassword resolves a principal from an identifier and
// password. The superuser credential pair short-circuits without touching
// the store; every failure surfaces the same generic message.
func (r *Resolver) PrincipalForPassword(ctx context.Context, identifier, password string) (authz.Principal, error) {
	if r.config.SuperuserName != "" &&
		identifier == r.config.SuperuserName && password == r.config.SuperuserPassword {
		// Elevated visibility: this grants unrestricted access.
		log.Warn(ctx, "authenticated as superuser")

		return authz.Superuser, nil
	}

	node, err := r.lookupByIdentifier(ctx, identifier)
	if err != nil {
		return authz.Anonymous, err
	}

	if node.GetBool(authz.KeyBlocked) {
		log.Info(ctx, "authentication failed",
			log.String("kind", KindAccountBlocked.String()),
			log.String("principal", node.ID),
		)

		return authz.Anonymous, &Error{Kind: KindAccountBlocked}
	}

	if password == "" {
		log.Info(ctx, "authentication failed",
			log.String("kind", KindEmptyCredential.String()),
			log.String("principal", node.ID),
		)

		return authz.Anonymous, &Error{Kind: KindEmptyCredential}
	}

	stored := node.GetString(authz.KeyPasswordDigest)
	if stored == "" || r.hasher.Compare(stored, password) != nil {
		log.Info(ctx, "authentication failed",
			log.String("kind", KindCredentialMismatch.String()),
			log.String("principal", node.ID),
		)

		return authz.Anonymous, &Error{Kind: KindCredentialMismatch}
	}

	log.Debug(ctx, "principal authenticated", log.String("principal", node.ID))

	return authz.Authenticated(node.ID, node.GetString(authz.KeyName)), nil
}

// lookupByIdentifier searches for a live principal whose login key or
// email equals the identifier, scoped to the Principal type and subtypes.
// Duplicate matches fail closed: uniqueness of login keys is a
// data-integrity precondition, not a tie to break by store order.
func (r *Resolver) lookupByIdentifier(ctx context.Context, identifier string) (*graph.Entity, error) {
	candidates, err := authz.RunWithElevated(ctx, "auth-lookup", func(ctx context.Context) ([]*graph.Entity, error) {
		q, err := search.Compile(r.reg, search.And(
			search.TypeAndSubtypes(authz.TypePrincipal),
			search.Or(
				search.Exact(r.config.loginKey(), identifier),
				search.Exact(authz.KeyEmail, identifier),
			),
		))
		if err != nil {
			return nil, err
		}

		return r.store.Search(ctx, q)
	})
	if err != nil {
		log.Error(ctx, "principal lookup failed", log.Cause(err))
		return nil, &Error{Kind: KindUnknownPrincipal}
	}

	live := candidates[:0]

	for _, node := range candidates {
		if !node.GetBool(authz.KeyDeleted) {
			live = append(live, node)
		}
	}

	switch len(live) {
	case 0:
		log.Info(ctx, "authentication failed",
			log.String("kind", KindUnknownPrincipal.String()),
			log.String("login_key", r.config.loginKey()),
		)

		return nil, &Error{Kind: KindUnknownPrincipal}
	case 1:
		return live[0], nil
	default:
		log.Error(ctx, "duplicate principals for login key",
			log.String("login_key", r.config.loginKey()),
			log.Int("candidates", len(live)),
		)

		return nil, &Error{Kind: KindAmbiguousPrincipal}
	}
}

// PrincipalForSession resolves a principal from a session token. No match
// returns the anonymous principal without error: an unauthenticated state
// is not a fault.
func (r *Resolver) PrincipalForSession(ctx context.Context, token string) (authz.Principal, error) {
	if token == "" {
		return authz.Anonymous, nil
	}

	if nodeID, ok := r.sessions.Get(token); ok {
		if principal, ok := r.confirmSession(ctx, nodeID, token); ok {
			return principal, nil
		}

		r.sessions.Remove(token)
	}

	nodes, err := authz.RunWithElevated(ctx, "session-lookup", func(ctx context.Context) ([]*graph.Entity, error) {
		q, err := search.Compile(r.reg, search.And(
			search.TypeAndSubtypes(authz.TypePrincipal),
			search.Exact(authz.KeySessionToken, token),
		))
		if err != nil {
			return nil, err
		}

		return r.store.Search(ctx, q)
	})
	if err != nil {
		log.Error(ctx, "session lookup failed", log.Cause(err))
		return authz.Anonymous, nil
	}

	for _, node := range nodes {
		if node.GetBool(authz.KeyDeleted) {
			continue
		}

		// Re-read and confirm the token still matches: it may have been
		// rotated between the search and this read.
		if principal, ok := r.confirmSession(ctx, node.ID, token); ok {
			r.sessions.Add(token, node.ID)
			return principal, nil
		}
	}

	return authz.Anonymous, nil
}

// confirmSession re-reads the node and accepts it only while the stored
// token still equals the supplied one.
func (r *Resolver) confirmSession(ctx context.Context, nodeID, token string) (authz.Principal, bool) {
	node, err := authz.RunWithElevated(ctx, "session-confirm", func(ctx context.Context) (*graph.Entity, error) {
		return r.store.Get(ctx, nodeID)
	})
	if err != nil || node.GetBool(authz.KeyDeleted) {
		return authz.Anonymous, false
	}

	if node.GetString(authz.KeySessionToken) != token {
		return authz.Anonymous, false
	}

	return authz.Authenticated(node.ID, node.GetString(authz.KeyName)), true
}
