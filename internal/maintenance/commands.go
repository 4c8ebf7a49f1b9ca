package maintenance

import (
	"context"

	"github.com/spf13/cast"
	"go.uber.org/multierr"

	"github.com/pagegraph/pagegraph/internal/access"
	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/log"
	"github.com/pagegraph/pagegraph/internal/schema"
	"github.com/pagegraph/pagegraph/internal/search"
)

// RebuildAccessIndex re-validates every stored access rule. Rules that no
// longer pass validation are reported; with the "repair" attribute set
// they are removed.
type RebuildAccessIndex struct {
	store graph.Store
	reg   *schema.Registry
}

// NewRebuildAccessIndex creates the command over the given store.
func NewRebuildAccessIndex(store graph.Store, reg *schema.Registry) *RebuildAccessIndex {
	return &RebuildAccessIndex{store: store, reg: reg}
}

func (c *RebuildAccessIndex) Name() string {
	return "rebuildAccessIndex"
}

func (c *RebuildAccessIndex) Execute(ctx context.Context, attributes map[string]any) error {
	repair := cast.ToBool(attributes["repair"])

	rules, err := authz.RunWithElevated(ctx, "maintenance-access-index", func(ctx context.Context) ([]*graph.Entity, error) {
		q, err := search.Compile(c.reg, search.Exact(search.KeyType, access.TypeAccessRule))
		if err != nil {
			return nil, err
		}

		return c.store.Search(ctx, q)
	})
	if err != nil {
		return &CommandError{Command: c.Name(), Reason: "rule scan failed", Err: err}
	}

	var invalid error

	for _, rule := range rules {
		verr := access.ValidateRuleProps(rule.Properties)
		if verr == nil {
			continue
		}

		log.Warn(ctx, "invalid access rule",
			log.String("rule", rule.ID),
			log.Cause(verr),
		)

		if repair {
			_, err := authz.RunWithElevated(ctx, "maintenance-access-index", func(ctx context.Context) (struct{}, error) {
				return struct{}{}, c.store.Delete(ctx, rule.ID)
			})
			if err != nil {
				return &CommandError{Command: c.Name(), Reason: "rule removal failed", Err: err}
			}

			continue
		}

		invalid = multierr.Append(invalid, verr)
	}

	if invalid != nil {
		return &CommandError{Command: c.Name(), Reason: "invalid rules found", Err: invalid}
	}

	return nil
}

// ClearSessions revokes every stored session token. Every principal has
// to sign in again afterwards.
type ClearSessions struct {
	store graph.Store
	reg   *schema.Registry
}

// NewClearSessions creates the command over the given store.
func NewClearSessions(store graph.Store, reg *schema.Registry) *ClearSessions {
	return &ClearSessions{store: store, reg: reg}
}

func (c *ClearSessions) Name() string {
	return "clearSessions"
}

func (c *ClearSessions) Execute(ctx context.Context, _ map[string]any) error {
	_, err := authz.RunWithElevated(ctx, "maintenance-clear-sessions", func(ctx context.Context) (struct{}, error) {
		q, err := search.Compile(c.reg, search.TypeAndSubtypes(authz.TypePrincipal))
		if err != nil {
			return struct{}{}, err
		}

		principals, err := c.store.Search(ctx, q)
		if err != nil {
			return struct{}{}, err
		}

		for _, principal := range principals {
			if !principal.Has(authz.KeySessionToken) {
				continue
			}

			err := c.store.Update(ctx, principal.ID, map[string]any{authz.KeySessionToken: nil})
			if err != nil {
				return struct{}{}, err
			}
		}

		return struct{}{}, nil
	})
	if err != nil {
		return &CommandError{Command: c.Name(), Reason: "session revocation failed", Err: err}
	}

	log.Info(ctx, "all sessions cleared")

	return nil
}
