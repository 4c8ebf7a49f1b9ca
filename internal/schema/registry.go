// Package schema holds the process-wide entity type registry: the type
// hierarchy, declared property keys, and entity validation rules. The
// registry is populated once at startup and read concurrently afterwards.
package schema

import (
	"fmt"
	"sync"
)

// PropertyDef declares a property key on an entity type.
type PropertyDef struct {
	// Required marks the property as mandatory and non-blank.
	Required bool
}

// Type declares an entity type. Types inherit the property keys of their
// parent; subtype relationships drive type-and-subtypes search expansion.
type Type struct {
	Name       string
	Parent     string
	Properties map[string]PropertyDef

	// Validate, if set, adds type-specific checks on top of the declared
	// property rules. It runs on every create and modify.
	Validate func(props map[string]any) error
}

// Registry is the type hierarchy registry.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register adds a type. The parent, if any, must already be registered.
func (r *Registry) Register(t Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Name == "" {
		return fmt.Errorf("schema: type name must not be empty")
	}

	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("schema: type %q already registered", t.Name)
	}

	if t.Parent != "" {
		if _, ok := r.types[t.Parent]; !ok {
			return fmt.Errorf("schema: parent type %q of %q not registered", t.Parent, t.Name)
		}
	}

	if t.Properties == nil {
		t.Properties = make(map[string]PropertyDef)
	}

	r.types[t.Name] = t

	return nil
}

// MustRegister adds a type and panics on error, for startup wiring.
func (r *Registry) MustRegister(t Type) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Known reports whether the type is registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.types[name]

	return ok
}

// TypeAndSubtypes returns the type and every registered subtype,
// the declared type first. Unknown types return just themselves so that
// searches over unregistered types degrade to an exact type match.
func (r *Registry) TypeAndSubtypes(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []string{name}

	// Breadth-first over direct children.
	for i := 0; i < len(result); i++ {
		for _, t := range r.types {
			if t.Parent == result[i] {
				result = append(result, t.Name)
			}
		}
	}

	return result
}

// IsSubtype reports whether name equals of or descends from it.
func (r *Registry) IsSubtype(name, of string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name != "" {
		if name == of {
			return true
		}

		t, ok := r.types[name]
		if !ok {
			return false
		}

		name = t.Parent
	}

	return false
}

// HasProperty reports whether the type or any ancestor declares the key.
func (r *Registry) HasProperty(typeName, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for typeName != "" {
		t, ok := r.types[typeName]
		if !ok {
			return false
		}

		if _, ok := t.Properties[key]; ok {
			return true
		}

		typeName = t.Parent
	}

	return false
}

// properties collects the effective property definitions of a type,
// parent definitions first so subtypes can override.
func (r *Registry) properties(typeName string) (map[string]PropertyDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := []Type{}

	for typeName != "" {
		t, ok := r.types[typeName]
		if !ok {
			return nil, false
		}

		chain = append(chain, t)
		typeName = t.Parent
	}

	merged := make(map[string]PropertyDef)
	for i := len(chain) - 1; i >= 0; i-- {
		for key, def := range chain[i].Properties {
			merged[key] = def
		}
	}

	return merged, true
}
