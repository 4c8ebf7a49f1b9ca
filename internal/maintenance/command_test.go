package maintenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagegraph/pagegraph/internal/access"
	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/graph/memstore"
	"github.com/pagegraph/pagegraph/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	reg.MustRegister(schema.Type{Name: authz.TypePrincipal})
	reg.MustRegister(schema.Type{Name: "User", Parent: authz.TypePrincipal})
	reg.MustRegister(schema.Type{Name: access.TypeAccessRule})

	return reg
}

func TestRegistryUnknownCommand(t *testing.T) {
	registry := NewRegistry()

	err := registry.Execute(context.Background(), "noSuchCommand", nil)
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "noSuchCommand", cmdErr.Command)
}

func TestRegistryDuplicateRegistrationPanics(t *testing.T) {
	registry := NewRegistry()
	store := memstore.New()
	reg := testRegistry(t)

	registry.Register(NewClearSessions(store, reg))

	assert.Panics(t, func() {
		registry.Register(NewClearSessions(store, reg))
	})

	assert.Equal(t, []string{"clearSessions"}, registry.Names())
}

func TestRebuildAccessIndex(t *testing.T) {
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })

	reg := testRegistry(t)
	ctx := authz.NewSuperuserContext(context.Background())

	valid := graph.NewEntity(access.TypeAccessRule, map[string]any{
		access.KeyResource: "/Employee",
		access.KeyFlags:    uint64(access.PermissionRead),
		access.KeyPosition: 0,
	})
	require.NoError(t, store.Create(ctx, valid))

	// Blank resource never passes validation.
	broken := graph.NewEntity(access.TypeAccessRule, map[string]any{
		access.KeyFlags: uint64(access.PermissionRead),
	})
	require.NoError(t, store.Create(ctx, broken))

	cmd := NewRebuildAccessIndex(store, reg)

	err := cmd.Execute(ctx, nil)
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "rebuildAccessIndex", cmdErr.Command)

	// Repair removes the broken rule and keeps the valid one.
	require.NoError(t, cmd.Execute(ctx, map[string]any{"repair": true}))

	_, err = store.Get(ctx, broken.ID)
	assert.True(t, graph.IsNotFound(err))

	_, err = store.Get(ctx, valid.ID)
	require.NoError(t, err)

	require.NoError(t, cmd.Execute(ctx, nil))
}

func TestClearSessions(t *testing.T) {
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })

	reg := testRegistry(t)
	ctx := authz.NewSuperuserContext(context.Background())

	alice := graph.NewEntity("User", map[string]any{
		authz.KeyName:         "alice",
		authz.KeySessionToken: "tok-1",
	})
	require.NoError(t, store.Create(ctx, alice))

	bob := graph.NewEntity("User", map[string]any{authz.KeyName: "bob"})
	require.NoError(t, store.Create(ctx, bob))

	registry := NewRegistry()
	registry.Register(NewClearSessions(store, reg))

	require.NoError(t, registry.Execute(ctx, "clearSessions", nil))

	node, err := store.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, node.Has(authz.KeySessionToken))
}
