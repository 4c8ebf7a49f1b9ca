package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/graph/memstore"
	"github.com/pagegraph/pagegraph/internal/schema"
)

type fixture struct {
	store   *memstore.Store
	rules   *Rules
	checker *Checker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	rules := NewRules(store)

	return &fixture{
		store:   store,
		rules:   rules,
		checker: NewChecker(store, rules, schema.NewRegistry()),
	}
}

func (f *fixture) addRule(t *testing.T, ctx context.Context, entry *Entry) *Entry {
	t.Helper()

	created, err := f.rules.Create(ctx, entry)
	require.NoError(t, err)

	// Insertion-order tie break relies on distinct creation stamps.
	time.Sleep(time.Millisecond)

	return created
}

func TestCheck_DefaultDeny(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestCache(context.Background())

	err := f.checker.Check(ctx, authz.Authenticated("u-1", "alice"), "Employee", "", OpRead)
	require.Error(t, err)
	assert.True(t, IsAuthorizationError(err))
}

func TestCheck_SuperuserAlwaysAllows(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestCache(context.Background())

	// Even an explicit deny-everything rule does not reach the superuser.
	f.addRule(t, ctx, &Entry{Resource: "Employee", Position: 0, Flags: 0})

	assert.NoError(t, f.checker.Check(ctx, authz.Superuser, "Employee", "", OpRead))
	assert.NoError(t, f.checker.Check(ctx, authz.Superuser, "Employee", "salary", OpWrite))
	assert.NoError(t, f.checker.Check(ctx, authz.Superuser, "Employee", "", OpDelete))
}

func TestCheck_PositionOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestCache(context.Background())
	alice := authz.Authenticated("u-1", "alice")

	// Position 1: deny read on property "salary" (no read flag).
	f.addRule(t, ctx, &Entry{Resource: "Employee", PropertyKey: "salary", Position: 1, Flags: 0})
	// Position 2: allow reading all properties.
	f.addRule(t, ctx, &Entry{Resource: "Employee", Position: 2, Flags: PermissionReadProperty})

	// Reading salary is denied: the lower position wins.
	err := f.checker.Check(ctx, alice, "Employee", "salary", OpRead)
	assert.True(t, IsAuthorizationError(err))

	// Reading any other property is allowed.
	assert.NoError(t, f.checker.Check(ctx, alice, "Employee", "name", OpRead))
}

func TestCheck_Deterministic(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestCache(context.Background())
	alice := authz.Authenticated("u-1", "alice")

	f.addRule(t, ctx, &Entry{Resource: "Employee", PropertyKey: "salary", Position: 1, Flags: 0})
	f.addRule(t, ctx, &Entry{Resource: "Employee", Position: 2, Flags: PermissionReadProperty})

	first := f.checker.Check(ctx, alice, "Employee", "salary", OpRead)
	second := f.checker.Check(ctx, alice, "Employee", "salary", OpRead)
	assert.Equal(t, first == nil, second == nil)

	first = f.checker.Check(ctx, alice, "Employee", "name", OpRead)
	second = f.checker.Check(ctx, alice, "Employee", "name", OpRead)
	assert.Equal(t, first == nil, second == nil)
}

func TestCheck_DirectBeatsInheritedAtEqualPosition(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestCache(context.Background())
	alice := authz.Authenticated("u-1", "alice")

	// Alice belongs to the editors group.
	group := graph.NewEntity("Group", map[string]any{"name": "editors"})
	require.NoError(t, f.store.Create(ctx, group))
	member := graph.NewEntity(TypeMembership, map[string]any{
		graph.KeySourceID: "u-1",
		graph.KeyTargetID: group.ID,
	})
	require.NoError(t, f.store.Create(ctx, member))

	// Inherited rule allows writing, direct rule (same position) does not.
	f.addRule(t, ctx, &Entry{Resource: "Article", GranteeID: group.ID, Position: 1, Flags: PermissionWriteProperty})
	f.addRule(t, ctx, &Entry{Resource: "Article", GranteeID: "u-1", Position: 1, Flags: PermissionReadProperty})

	// The direct rule wins, so writing is denied and reading allowed.
	err := f.checker.Check(ctx, alice, "Article", "title", OpWrite)
	assert.True(t, IsAuthorizationError(err))
	assert.NoError(t, f.checker.Check(ctx, alice, "Article", "title", OpRead))
}

func TestCheck_InheritedRuleApplies(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestCache(context.Background())
	alice := authz.Authenticated("u-1", "alice")

	group := graph.NewEntity("Group", map[string]any{"name": "editors"})
	require.NoError(t, f.store.Create(ctx, group))
	member := graph.NewEntity(TypeMembership, map[string]any{
		graph.KeySourceID: "u-1",
		graph.KeyTargetID: group.ID,
	})
	require.NoError(t, f.store.Create(ctx, member))

	f.addRule(t, ctx, &Entry{Resource: "Article", GranteeID: group.ID, Position: 1, Flags: PermissionReadProperty})

	assert.NoError(t, f.checker.Check(ctx, alice, "Article", "title", OpRead))

	// A stranger without the membership stays denied.
	bob := authz.Authenticated("u-2", "bob")
	err := f.checker.Check(ctx, bob, "Article", "title", OpRead)
	assert.True(t, IsAuthorizationError(err))
}

func TestCheck_ForeignGranteeRuleIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestCache(context.Background())

	f.addRule(t, ctx, &Entry{Resource: "Article", GranteeID: "u-other", Position: 1, Flags: PermissionReadProperty})

	err := f.checker.Check(ctx, authz.Authenticated("u-1", "alice"), "Article", "title", OpRead)
	assert.True(t, IsAuthorizationError(err))
}

func TestCheck_ResourceLevelOperations(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestCache(context.Background())
	alice := authz.Authenticated("u-1", "alice")

	f.addRule(t, ctx, &Entry{Resource: "Article", Position: 1, Flags: PermissionCreate | PermissionRead})

	assert.NoError(t, f.checker.Check(ctx, alice, "Article", "", OpCreate))
	assert.NoError(t, f.checker.Check(ctx, alice, "Article", "", OpRead))

	err := f.checker.Check(ctx, alice, "Article", "", OpDelete)
	assert.True(t, IsAuthorizationError(err))
}

func TestValidateRuleProps(t *testing.T) {
	err := ValidateRuleProps(map[string]any{KeyFlags: uint64(1)})
	require.Error(t, err)
	assert.True(t, schema.IsValidationError(err))

	err = ValidateRuleProps(map[string]any{KeyResource: "  "})
	require.Error(t, err)

	err = ValidateRuleProps(map[string]any{KeyResource: "Article"})
	require.Error(t, err)

	assert.NoError(t, ValidateRuleProps(map[string]any{KeyResource: "Article", KeyFlags: uint64(0)}))
	assert.NoError(t, ValidateRuleProps(map[string]any{KeyResource: "Article", KeyPosition: 1}))
}
