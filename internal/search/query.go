package search

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/pagegraph/pagegraph/internal/schema"
)

// Query is a compiled predicate tree. Type leaves are already expanded into
// OR-groups over the type and its subtypes, and every leaf key has been
// validated against the declared types.
type Query struct {
	Root *Attribute
}

// Compile turns a predicate tree into an executable query. Type leaves
// expand against the registry; leaf property keys are validated against the
// declared types. Compilation never touches the store.
func Compile(reg *schema.Registry, tree *Attribute) (*Query, error) {
	if tree == nil {
		tree = And()
	}

	expanded := expand(reg, tree)

	declared := collectTypes(tree, reg)
	if len(declared) > 0 {
		if err := validateKeys(reg, declared, expanded); err != nil {
			return nil, err
		}
	}

	return &Query{Root: expanded}, nil
}

// expand rewrites type leaves into exact OR-groups over type and subtypes.
func expand(reg *schema.Registry, a *Attribute) *Attribute {
	switch a.Kind {
	case KindType:
		group := Or()
		for _, name := range reg.TypeAndSubtypes(a.TypeName) {
			group.Add(Exact(KeyType, name))
		}

		return group
	case KindGroup:
		out := &Attribute{Kind: KindGroup, Op: a.Op}
		for _, child := range a.Children {
			out.Add(expand(reg, child))
		}

		return out
	default:
		return a
	}
}

// collectTypes gathers the type names declared by type leaves, including
// subtypes, for leaf key validation.
func collectTypes(a *Attribute, reg *schema.Registry) []string {
	var types []string

	switch a.Kind {
	case KindType:
		types = append(types, reg.TypeAndSubtypes(a.TypeName)...)
	case KindGroup:
		for _, child := range a.Children {
			types = append(types, collectTypes(child, reg)...)
		}
	}

	return types
}

func validateKeys(reg *schema.Registry, declared []string, a *Attribute) error {
	switch a.Kind {
	case KindLeaf:
		if a.Key == KeyType {
			return nil
		}

		return reg.ValidateSearchKey(declared, a.Key)
	case KindGroup:
		for _, child := range a.Children {
			if err := validateKeys(reg, declared, child); err != nil {
				return err
			}
		}
	}

	return nil
}

// Match evaluates the query against an entity given its type and
// properties. This is the post-filter path for stores without native
// boolean query composition, and must stay side-effect-free so it can run
// concurrently for multiple principals against the same entity.
func (q *Query) Match(entityType string, props map[string]any) bool {
	return matches(q.Root, entityType, props)
}

func matches(a *Attribute, entityType string, props map[string]any) bool {
	switch a.Kind {
	case KindLeaf:
		return matchLeaf(a, entityType, props)
	case KindGroup:
		return matchGroup(a, entityType, props)
	default:
		return false
	}
}

func matchGroup(a *Attribute, entityType string, props map[string]any) bool {
	// A group with zero children is a no-op that matches everything.
	if len(a.Children) == 0 {
		return true
	}

	switch a.Op {
	case OpAnd:
		for _, child := range a.Children {
			if !matches(child, entityType, props) {
				return false
			}
		}

		return true
	case OpOr:
		for _, child := range a.Children {
			if matches(child, entityType, props) {
				return true
			}
		}

		return false
	case OpNot:
		for _, child := range a.Children {
			if matches(child, entityType, props) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

func matchLeaf(a *Attribute, entityType string, props map[string]any) bool {
	var actual any

	if a.Key == KeyType {
		actual = entityType
	} else {
		var ok bool

		actual, ok = props[a.Key]
		if !ok {
			return false
		}
	}

	if a.Exact {
		// Case-sensitive equality on the canonical string form; exact
		// matches are index-backed in native stores.
		return cast.ToString(actual) == cast.ToString(a.Value)
	}

	return strings.Contains(
		strings.ToLower(cast.ToString(actual)),
		strings.ToLower(cast.ToString(a.Value)),
	)
}

// String renders the compiled predicate.
func (q *Query) String() string {
	if q == nil || q.Root == nil {
		return "(nil)"
	}

	return q.Root.String()
}
