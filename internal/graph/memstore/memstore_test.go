package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/schema"
	"github.com/pagegraph/pagegraph/internal/search"
)

type recordingObserver struct {
	changes []*graph.ChangeSet
}

func (o *recordingObserver) AfterCommit(_ context.Context, cs *graph.ChangeSet) {
	o.changes = append(o.changes, cs)
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	reg.MustRegister(schema.Type{Name: "Article", Properties: map[string]schema.PropertyDef{
		"title": {Required: true},
	}})
	reg.MustRegister(schema.Type{Name: "News", Parent: "Article"})

	return reg
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := New()

	entity := graph.NewEntity("Article", map[string]any{"title": "Hello"})
	require.NoError(t, store.Create(ctx, entity))

	got, err := store.Get(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.GetString("title"))

	require.NoError(t, store.Update(ctx, entity.ID, map[string]any{"title": "Changed", "body": "text"}))

	got, err = store.Get(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Changed", got.GetString("title"))
	assert.Equal(t, "text", got.GetString("body"))

	// nil removes the property.
	require.NoError(t, store.Update(ctx, entity.ID, map[string]any{"body": nil}))

	got, err = store.Get(ctx, entity.ID)
	require.NoError(t, err)
	assert.False(t, got.Has("body"))

	require.NoError(t, store.Delete(ctx, entity.ID))

	_, err = store.Get(ctx, entity.ID)
	assert.True(t, graph.IsNotFound(err))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := New()

	entity := graph.NewEntity("Article", map[string]any{"title": "Hello"})
	require.NoError(t, store.Create(ctx, entity))

	got, err := store.Get(ctx, entity.ID)
	require.NoError(t, err)

	got.Properties["title"] = "mutated"

	again, err := store.Get(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", again.GetString("title"))
}

func TestStore_SearchTypeAndSubtypes(t *testing.T) {
	ctx := context.Background()
	store := New()
	reg := testRegistry(t)

	article := graph.NewEntity("Article", map[string]any{"title": "Hello"})
	news := graph.NewEntity("News", map[string]any{"title": "Hello"})
	require.NoError(t, store.Create(ctx, article))
	require.NoError(t, store.Create(ctx, news))

	q, err := search.Compile(reg, search.TypeAndSubtypes("Article"))
	require.NoError(t, err)

	result, err := store.Search(ctx, q)
	require.NoError(t, err)
	assert.Len(t, result, 2)

	q, err = search.Compile(reg, search.And(
		search.TypeAndSubtypes("Article"),
		search.Exact("title", "Hello"),
	))
	require.NoError(t, err)

	result, err = store.Search(ctx, q)
	require.NoError(t, err)
	assert.Len(t, result, 2)

	// Empty result is a valid, non-error outcome.
	q, err = search.Compile(reg, search.Exact("title", "Absent"))
	require.NoError(t, err)

	result, err = store.Search(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestStore_CommitObserver(t *testing.T) {
	ctx := context.Background()
	store := New()
	observer := &recordingObserver{}
	store.Subscribe(observer)

	entity := graph.NewEntity("Article", map[string]any{"title": "Hello"})
	require.NoError(t, store.Create(ctx, entity))
	require.NoError(t, store.Update(ctx, entity.ID, map[string]any{"title": "Changed"}))
	require.NoError(t, store.Delete(ctx, entity.ID))

	require.Len(t, observer.changes, 3)

	assert.Equal(t, entity.ID, observer.changes[0].Created[0].ID)
	assert.Equal(t, "Article", observer.changes[0].Created[0].Type)

	assert.Equal(t, []string{"title"}, observer.changes[1].Modified[0].Keys)
	assert.Equal(t, entity.ID, observer.changes[2].Deleted[0].ID)
}

func TestStore_ReadOnlyContextRejectsWrites(t *testing.T) {
	store := New()
	ctx := authz.WithElevatedRead(context.Background(), "test-scan")

	err := store.Create(ctx, graph.NewEntity("Article", nil))
	assert.ErrorIs(t, err, graph.ErrReadOnly)

	err = store.Update(ctx, "any", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, graph.ErrReadOnly)

	err = store.Delete(ctx, "any")
	assert.ErrorIs(t, err, graph.ErrReadOnly)
}

func TestStore_Relationships(t *testing.T) {
	ctx := context.Background()
	store := New()

	a := graph.NewEntity("Article", nil)
	b := graph.NewEntity("Article", nil)
	rel := graph.NewEntity("Link", map[string]any{
		graph.KeySourceID: a.ID,
		graph.KeyTargetID: b.ID,
	})

	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))
	require.NoError(t, store.Create(ctx, rel))

	rels, err := store.Relationships(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, rel.ID, rels[0].ID)

	rels, err = store.Relationships(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, rels)
}
