package schema

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Error tokens carried by validation errors.
const (
	TokenTypeUnknown      = "type_unknown"
	TokenMustNotBeBlank   = "must_not_be_blank"
	TokenInvalidSearchKey = "invalid_search_key"
)

// ValidationError reports one property violating a declared invariant.
// It always names the offending property key.
type ValidationError struct {
	Type  string
	Key   string
	Token string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Type, e.Token)
	}

	return fmt.Sprintf("validation failed for %s.%s: %s", e.Type, e.Key, e.Token)
}

// IsValidationError reports whether err contains a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateEntity checks the properties of an entity of the given type
// against the declared rules. All violations are reported together.
func (r *Registry) ValidateEntity(typeName string, props map[string]any) error {
	defs, ok := r.properties(typeName)
	if !ok {
		return &ValidationError{Type: typeName, Token: TokenTypeUnknown}
	}

	var err error

	for key, def := range defs {
		if !def.Required {
			continue
		}

		value, present := props[key]
		if !present || value == nil || isBlank(value) {
			err = multierr.Append(err, &ValidationError{Type: typeName, Key: key, Token: TokenMustNotBeBlank})
		}
	}

	for _, validate := range r.validators(typeName) {
		err = multierr.Append(err, validate(props))
	}

	return err
}

// validators collects the custom validators along the type chain,
// ancestors first.
func (r *Registry) validators(typeName string) []func(map[string]any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var chain []func(map[string]any) error

	for typeName != "" {
		t, ok := r.types[typeName]
		if !ok {
			break
		}

		if t.Validate != nil {
			chain = append([]func(map[string]any) error{t.Validate}, chain...)
		}

		typeName = t.Parent
	}

	return chain
}

// ValidateSearchKey checks that a search leaf references a property key
// declared on at least one of the given types.
func (r *Registry) ValidateSearchKey(typeNames []string, key string) error {
	for _, name := range typeNames {
		if r.HasProperty(name, key) {
			return nil
		}
	}

	return &ValidationError{Type: strings.Join(typeNames, ","), Key: key, Token: TokenInvalidSearchKey}
}

func isBlank(value any) bool {
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}
