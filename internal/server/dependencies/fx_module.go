// Package dependencies wires the storage, schema and domain services
// into the dependency graph.
package dependencies

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/pagegraph/pagegraph/internal/access"
	"github.com/pagegraph/pagegraph/internal/auth"
	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/gateway"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/graph/memstore"
	"github.com/pagegraph/pagegraph/internal/graph/sqlstore"
	"github.com/pagegraph/pagegraph/internal/maintenance"
	"github.com/pagegraph/pagegraph/internal/notify"
	"github.com/pagegraph/pagegraph/internal/schema"
)

var Module = fx.Module("dependencies",
	fx.Provide(NewSchemaRegistry),
	fx.Provide(NewStore),
	fx.Provide(access.NewRules),
	fx.Provide(access.NewChecker),
	fx.Provide(gateway.New),
	fx.Provide(auth.NewResolver),
	fx.Provide(auth.NewUserService),
	fx.Provide(notify.NewHub),
	fx.Provide(NewNotifier),
	fx.Provide(NewMaintenanceRegistry),
	fx.Invoke(func(lc fx.Lifecycle, store graph.Store, notifier *notify.Notifier) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return notifier.Start(ctx)
			},
			OnStop: func(ctx context.Context) error {
				err := notifier.Stop(ctx)
				if closeErr := store.Close(); closeErr != nil {
					return closeErr
				}

				return err
			},
		})
	}),
)

// NewSchemaRegistry builds the registry with the built-in types. Domain
// types register on top during startup.
func NewSchemaRegistry() *schema.Registry {
	reg := schema.NewRegistry()

	reg.MustRegister(schema.Type{
		Name: authz.TypePrincipal,
		Properties: map[string]schema.PropertyDef{
			authz.KeyName:           {Required: true},
			authz.KeyEmail:          {},
			authz.KeyPasswordDigest: {},
			authz.KeySessionToken:   {},
			authz.KeyBlocked:        {},
			authz.KeyDeleted:        {},
		},
	})
	reg.MustRegister(schema.Type{Name: "User", Parent: authz.TypePrincipal})
	reg.MustRegister(schema.Type{Name: "Group", Parent: authz.TypePrincipal})

	reg.MustRegister(schema.Type{
		Name: access.TypeAccessRule,
		Properties: map[string]schema.PropertyDef{
			access.KeyResource:    {Required: true},
			access.KeyPropertyKey: {},
			access.KeyGranteeID:   {},
			access.KeyFlags:       {},
			access.KeyPosition:    {},
			access.KeyCreatedAt:   {},
		},
		Validate: access.ValidateRuleProps,
	})

	notify.RegisterTypes(reg)

	return reg
}

// NewStore opens the configured store backend.
func NewStore(config graph.StoreConfig) (graph.Store, error) {
	switch config.Driver {
	case graph.DriverMemory:
		return memstore.New(), nil
	case graph.DriverSQLite, "":
		return sqlstore.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Driver)
	}
}

// NewNotifier assembles the commit notifier with the default renderer.
func NewNotifier(store graph.Store, reg *schema.Registry, hub *notify.Hub) *notify.Notifier {
	return notify.NewNotifier(store, reg, nil, hub)
}

// NewMaintenanceRegistry registers the built-in maintenance commands.
func NewMaintenanceRegistry(store graph.Store, reg *schema.Registry) *maintenance.Registry {
	registry := maintenance.NewRegistry()
	registry.Register(maintenance.NewRebuildAccessIndex(store, reg))
	registry.Register(maintenance.NewClearSessions(store, reg))

	return registry
}
