package notify

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

func testFixture(t *testing.T) (graph.Store, *Hub, context.Context) {
	t.Helper()

	reg := schema.NewRegistry()
	RegisterTypes(reg)
	reg.MustRegister(schema.Type{Name: "Article", Properties: map[string]schema.PropertyDef{
		"title": {}, "body": {},
	}})
	reg.MustRegister(schema.Type{Name: "NewsArticle", Parent: "Article"})

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })

	hub := NewHub()
	notifier := NewNotifier(store, reg, PropertyRenderer{Key: "content"}, hub)
	require.NoError(t, notifier.Start(context.Background()))
	t.Cleanup(func() { _ = notifier.Stop(context.Background()) })

	return store, hub, authz.NewSuperuserContext(context.Background())
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()

	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func expectSilence(t *testing.T, ch <-chan Message) {
	t.Helper()

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func createFragment(t *testing.T, ctx context.Context, store graph.Store, dataType, dataKey, pageID string) *graph.Entity {
	t.Helper()

	fragment := graph.NewEntity(TypeFragment, map[string]any{
		KeyDataType: dataType,
		KeyDataKey:  dataKey,
		KeyPageID:   pageID,
		"content":   "rendered " + dataType,
	})
	if dataKey == "" {
		delete(fragment.Properties, KeyDataKey)
	}
	if pageID == "" {
		delete(fragment.Properties, KeyPageID)
	}

	require.NoError(t, store.Create(ctx, fragment))

	return fragment
}

func TestNotifierModifiedEntityMatchesFragment(t *testing.T) {
	store, hub, ctx := testFixture(t)
	fragment := createFragment(t, ctx, store, "Article", "title", "page-1")

	// Subscribe before the first commit so every message is accounted for;
	// dispatch is asynchronous and queue order is the commit order.
	ch, cancel := hub.Subscribe()
	defer cancel()

	article := graph.NewEntity("Article", map[string]any{"title": "old"})
	require.NoError(t, store.Create(ctx, article))

	msg := receive(t, ch)
	assert.Equal(t, graph.MutationCreate, msg.Kind)

	require.NoError(t, store.Update(ctx, article.ID, map[string]any{"title": "new"}))

	msg = receive(t, ch)
	assert.Equal(t, graph.MutationModify, msg.Kind)
	assert.Equal(t, article.ID, msg.EntityID)
	assert.Equal(t, fragment.ID, msg.FragmentID)
	assert.Equal(t, "page-1", msg.PageID)
	assert.Equal(t, "rendered Article", msg.Payload)
}

func TestNotifierUntouchedKeyDoesNotMatch(t *testing.T) {
	store, hub, ctx := testFixture(t)
	createFragment(t, ctx, store, "Article", "title", "page-1")

	ch, cancel := hub.Subscribe()
	defer cancel()

	article := graph.NewEntity("Article", map[string]any{"title": "old", "body": "text"})
	require.NoError(t, store.Create(ctx, article))

	msg := receive(t, ch)
	assert.Equal(t, graph.MutationCreate, msg.Kind)

	require.NoError(t, store.Update(ctx, article.ID, map[string]any{"body": "other"}))

	expectSilence(t, ch)
}

func TestNotifierCreatedEntityMatchesTouchedKey(t *testing.T) {
	store, hub, ctx := testFixture(t)
	fragment := createFragment(t, ctx, store, "Article", "title", "page-1")

	ch, cancel := hub.Subscribe()
	defer cancel()

	// A creation that never writes the observed key stays silent.
	article := graph.NewEntity("Article", map[string]any{"body": "text"})
	require.NoError(t, store.Create(ctx, article))

	expectSilence(t, ch)

	titled := graph.NewEntity("Article", map[string]any{"title": "fresh"})
	require.NoError(t, store.Create(ctx, titled))

	msg := receive(t, ch)
	assert.Equal(t, graph.MutationCreate, msg.Kind)
	assert.Equal(t, titled.ID, msg.EntityID)
	assert.Equal(t, fragment.ID, msg.FragmentID)
}

func TestNotifierKeylessFragmentCreateOnly(t *testing.T) {
	store, hub, ctx := testFixture(t)
	fragment := createFragment(t, ctx, store, "Article", "", "page-1")

	ch, cancel := hub.Subscribe()
	defer cancel()

	article := graph.NewEntity("Article", map[string]any{"title": "old"})
	require.NoError(t, store.Create(ctx, article))

	msg := receive(t, ch)
	assert.Equal(t, graph.MutationCreate, msg.Kind)
	assert.Equal(t, fragment.ID, msg.FragmentID)

	// Without a data key there is nothing to intersect with the touched
	// keys, so modifications never match.
	require.NoError(t, store.Update(ctx, article.ID, map[string]any{"title": "new"}))

	expectSilence(t, ch)
}

func TestNotifierSubtypeMatchesObservedParent(t *testing.T) {
	store, hub, ctx := testFixture(t)
	createFragment(t, ctx, store, "Article", "title", "page-1")

	ch, cancel := hub.Subscribe()
	defer cancel()

	article := graph.NewEntity("NewsArticle", map[string]any{"title": "old"})
	require.NoError(t, store.Create(ctx, article))

	msg := receive(t, ch)
	assert.Equal(t, graph.MutationCreate, msg.Kind)
	assert.Equal(t, "NewsArticle", msg.EntityType)

	require.NoError(t, store.Update(ctx, article.ID, map[string]any{"title": "new"}))

	msg = receive(t, ch)
	assert.Equal(t, graph.MutationModify, msg.Kind)
	assert.Equal(t, "NewsArticle", msg.EntityType)
}

func TestNotifierOrphanedFragmentSkipped(t *testing.T) {
	store, hub, ctx := testFixture(t)
	createFragment(t, ctx, store, "Article", "title", "")

	ch, cancel := hub.Subscribe()
	defer cancel()

	article := graph.NewEntity("Article", map[string]any{"title": "old"})
	require.NoError(t, store.Create(ctx, article))
	require.NoError(t, store.Update(ctx, article.ID, map[string]any{"title": "new"}))

	expectSilence(t, ch)
}

func TestNotifierOneMessagePerFragmentPerCommit(t *testing.T) {
	store, hub, ctx := testFixture(t)
	fragment := createFragment(t, ctx, store, "Article", "title", "page-1")

	ch, cancel := hub.Subscribe()
	defer cancel()

	article := graph.NewEntity("Article", map[string]any{"title": "old", "body": "text"})
	require.NoError(t, store.Create(ctx, article))

	msg := receive(t, ch)
	assert.Equal(t, graph.MutationCreate, msg.Kind)
	expectSilence(t, ch)

	// Both touched keys resolve to the same fragment; exactly one message
	// comes out.
	require.NoError(t, store.Update(ctx, article.ID, map[string]any{"title": "new", "body": "other"}))

	msg = receive(t, ch)
	assert.Equal(t, graph.MutationModify, msg.Kind)
	assert.Equal(t, fragment.ID, msg.FragmentID)
	expectSilence(t, ch)
}

func TestNotifierDeleteSkipsFragmentSearch(t *testing.T) {
	store, hub, ctx := testFixture(t)
	createFragment(t, ctx, store, "Article", "title", "page-1")

	ch, cancel := hub.Subscribe()
	defer cancel()

	article := graph.NewEntity("Article", map[string]any{"title": "old"})
	require.NoError(t, store.Create(ctx, article))

	msg := receive(t, ch)
	assert.Equal(t, graph.MutationCreate, msg.Kind)

	require.NoError(t, store.Delete(ctx, article.ID))

	msg = receive(t, ch)
	assert.Equal(t, graph.MutationDelete, msg.Kind)
	assert.Equal(t, article.ID, msg.EntityID)
	assert.Empty(t, msg.FragmentID)
	assert.Empty(t, msg.Payload)
}

func TestNotifierNeverWritesDuringScan(t *testing.T) {
	// The scan context is elevated read-only; a renderer that attempts a
	// write must be rejected by the store.
	reg := schema.NewRegistry()
	RegisterTypes(reg)
	reg.MustRegister(schema.Type{Name: "Article", Properties: map[string]schema.PropertyDef{"title": {}}})

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })

	var writeErr error

	renderer := RendererFunc(func(ctx context.Context, fragment *graph.Entity) (string, error) {
		writeErr = store.Update(ctx, fragment.ID, map[string]any{"content": "mutated"})
		return "", writeErr
	})

	hub := NewHub()
	notifier := NewNotifier(store, reg, renderer, hub)
	require.NoError(t, notifier.Start(context.Background()))
	t.Cleanup(func() { _ = notifier.Stop(context.Background()) })

	ctx := authz.NewSuperuserContext(context.Background())
	createFragment(t, ctx, store, "Article", "title", "page-1")

	article := graph.NewEntity("Article", map[string]any{"title": "old"})
	require.NoError(t, store.Create(ctx, article))

	require.NoError(t, store.Update(ctx, article.ID, map[string]any{"title": "new"}))
	assert.ErrorIs(t, writeErr, graph.ErrReadOnly)
}

func TestHubSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	hub := NewHub()

	slow, cancelSlow := hub.Subscribe()
	defer cancelSlow()

	ctx := context.Background()

	// Fill the buffer without a reader, then overflow it. Publish never
	// blocks; the overflow is dropped.
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(ctx, Message{EntityID: "e"})
	}

	assert.Equal(t, uint64(10), hub.Dropped())
	assert.Len(t, slow, subscriberBuffer)
}

func TestHubSubscribeCancelClosesChannel(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe()
	assert.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())
}
