package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagegraph/pagegraph/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	reg.MustRegister(schema.Type{
		Name: "Principal",
		Properties: map[string]schema.PropertyDef{
			"name":  {Required: true},
			"email": {},
		},
	})
	reg.MustRegister(schema.Type{
		Name:   "User",
		Parent: "Principal",
		Properties: map[string]schema.PropertyDef{
			"locale": {},
		},
	})
	reg.MustRegister(schema.Type{
		Name: "Article",
		Properties: map[string]schema.PropertyDef{
			"title": {Required: true},
			"body":  {},
		},
	})

	return reg
}

func TestCompile_TypeExpansion(t *testing.T) {
	reg := testRegistry(t)

	q, err := Compile(reg, TypeAndSubtypes("Principal"))
	require.NoError(t, err)

	assert.True(t, q.Match("Principal", nil))
	assert.True(t, q.Match("User", nil))
	assert.False(t, q.Match("Article", nil))
}

func TestCompile_InvalidSearchKey(t *testing.T) {
	reg := testRegistry(t)

	_, err := Compile(reg, And(
		TypeAndSubtypes("Article"),
		Exact("salary", 100),
	))
	require.Error(t, err)
	assert.True(t, schema.IsValidationError(err))
}

func TestCompile_SubtypeKeyIsValid(t *testing.T) {
	reg := testRegistry(t)

	// "locale" is declared on User, a subtype of the searched Principal.
	_, err := Compile(reg, And(
		TypeAndSubtypes("Principal"),
		Exact("locale", "de"),
	))
	require.NoError(t, err)
}

func TestMatch_ExactIsCaseSensitive(t *testing.T) {
	reg := testRegistry(t)

	q, err := Compile(reg, Exact("title", "Hello"))
	require.NoError(t, err)

	assert.True(t, q.Match("Article", map[string]any{"title": "Hello"}))
	assert.False(t, q.Match("Article", map[string]any{"title": "hello"}))
	assert.False(t, q.Match("Article", map[string]any{"title": "Hello World"}))
	assert.False(t, q.Match("Article", map[string]any{}))
}

func TestMatch_InexactIsSubstring(t *testing.T) {
	reg := testRegistry(t)

	q, err := Compile(reg, Inexact("title", "hello"))
	require.NoError(t, err)

	assert.True(t, q.Match("Article", map[string]any{"title": "Hello World"}))
	assert.False(t, q.Match("Article", map[string]any{"title": "Goodbye"}))
}

func TestMatch_BooleanGroups(t *testing.T) {
	reg := testRegistry(t)

	t.Run("empty group matches everything", func(t *testing.T) {
		q, err := Compile(reg, And())
		require.NoError(t, err)
		assert.True(t, q.Match("Article", map[string]any{}))
	})

	t.Run("nil tree matches everything", func(t *testing.T) {
		q, err := Compile(reg, nil)
		require.NoError(t, err)
		assert.True(t, q.Match("Article", nil))
	})

	t.Run("and", func(t *testing.T) {
		q, err := Compile(reg, And(Exact("title", "Hello"), Exact("body", "text")))
		require.NoError(t, err)
		assert.True(t, q.Match("Article", map[string]any{"title": "Hello", "body": "text"}))
		assert.False(t, q.Match("Article", map[string]any{"title": "Hello"}))
	})

	t.Run("or", func(t *testing.T) {
		q, err := Compile(reg, Or(Exact("title", "Hello"), Exact("title", "Howdy")))
		require.NoError(t, err)
		assert.True(t, q.Match("Article", map[string]any{"title": "Howdy"}))
		assert.False(t, q.Match("Article", map[string]any{"title": "Bye"}))
	})

	t.Run("not", func(t *testing.T) {
		q, err := Compile(reg, Not(Exact("title", "Hello")))
		require.NoError(t, err)
		assert.False(t, q.Match("Article", map[string]any{"title": "Hello"}))
		assert.True(t, q.Match("Article", map[string]any{"title": "Bye"}))
	})

	t.Run("nested groups", func(t *testing.T) {
		q, err := Compile(reg, And(
			TypeAndSubtypes("Article"),
			Or(Exact("title", "Hello"), Exact("title", "Howdy")),
		))
		require.NoError(t, err)
		assert.True(t, q.Match("Article", map[string]any{"title": "Hello"}))
		assert.False(t, q.Match("User", map[string]any{"title": "Hello"}))
	})
}

func TestQuery_String(t *testing.T) {
	reg := testRegistry(t)

	q, err := Compile(reg, And(Exact("title", "Hello")))
	require.NoError(t, err)
	assert.Equal(t, "(and (= title Hello))", q.String())
}
