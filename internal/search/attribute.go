// Package search implements the composable predicate tree used for all
// graph queries, and its authorization-aware compilation into executable
// queries. Stores either consume the compiled tree natively or fall back
// to post-filtering with Query.Match.
package search

import (
	"fmt"
	"strings"
)

// KeyType is the pseudo property key addressing the entity type. Stores
// resolve it against the type column/field rather than a property.
const KeyType = "type"

// Kind tags the attribute variants.
type Kind int

const (
	// KindLeaf is a single property comparison.
	KindLeaf Kind = iota
	// KindType matches a declared type and all of its subtypes. Expanded
	// at compile time via the schema registry.
	KindType
	// KindGroup is a boolean combination of child attributes.
	KindGroup
)

// Op is the boolean operator of a group.
type Op int

const (
	OpAnd Op = iota
	OpOr
	OpNot
)

func (o Op) String() string {
	switch o {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	default:
		return "unknown"
	}
}

// Attribute is a node in a predicate tree: a leaf comparison, a
// type-and-subtypes leaf, or a boolean group over child attributes.
// A group with zero children is a no-op that matches everything.
type Attribute struct {
	Kind Kind

	// Leaf fields.
	Key   string
	Value any
	// Exact selects case-sensitive equality; otherwise substring matching.
	Exact bool

	// Type leaf field.
	TypeName string

	// Group fields.
	Op       Op
	Children []*Attribute
}

// Exact builds a leaf with case-sensitive equality matching.
func Exact(key string, value any) *Attribute {
	return &Attribute{Kind: KindLeaf, Key: key, Value: value, Exact: true}
}

// Inexact builds a leaf with case-insensitive substring matching.
func Inexact(key string, value any) *Attribute {
	return &Attribute{Kind: KindLeaf, Key: key, Value: value}
}

// TypeAndSubtypes builds a leaf matching the declared type and every
// registered subtype.
func TypeAndSubtypes(typeName string) *Attribute {
	return &Attribute{Kind: KindType, TypeName: typeName}
}

// And groups children conjunctively.
func And(children ...*Attribute) *Attribute {
	return &Attribute{Kind: KindGroup, Op: OpAnd, Children: children}
}

// Or groups children disjunctively.
func Or(children ...*Attribute) *Attribute {
	return &Attribute{Kind: KindGroup, Op: OpOr, Children: children}
}

// Not groups children negated: the group matches when no child matches.
func Not(children ...*Attribute) *Attribute {
	return &Attribute{Kind: KindGroup, Op: OpNot, Children: children}
}

// Add appends a child to a group and returns the group.
func (a *Attribute) Add(children ...*Attribute) *Attribute {
	a.Children = append(a.Children, children...)
	return a
}

// String renders the predicate for logs and errors.
func (a *Attribute) String() string {
	if a == nil {
		return "(nil)"
	}

	switch a.Kind {
	case KindLeaf:
		op := "~"
		if a.Exact {
			op = "="
		}

		return fmt.Sprintf("(%s %s %v)", op, a.Key, a.Value)
	case KindType:
		return fmt.Sprintf("(type+ %s)", a.TypeName)
	case KindGroup:
		parts := make([]string, 0, len(a.Children))
		for _, child := range a.Children {
			parts = append(parts, child.String())
		}

		return fmt.Sprintf("(%s %s)", a.Op, strings.Join(parts, " "))
	default:
		return "(unknown)"
	}
}
