package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry()
	reg.MustRegister(Type{Name: "Principal", Properties: map[string]PropertyDef{
		"name": {Required: true},
	}})
	reg.MustRegister(Type{Name: "User", Parent: "Principal", Properties: map[string]PropertyDef{
		"email": {},
	}})
	reg.MustRegister(Type{Name: "Employee", Parent: "User", Properties: map[string]PropertyDef{
		"salary": {},
	}})

	return reg
}

func TestRegisterRejectsUnknownParent(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(Type{Name: "Orphan", Parent: "Missing"})
	require.Error(t, err)

	require.NoError(t, reg.Register(Type{Name: "Root"}))
	assert.Error(t, reg.Register(Type{Name: "Root"}))
}

func TestTypeAndSubtypes(t *testing.T) {
	reg := testRegistry(t)

	names := reg.TypeAndSubtypes("Principal")
	assert.Equal(t, "Principal", names[0])
	assert.ElementsMatch(t, []string{"Principal", "User", "Employee"}, names)

	// Unknown types degrade to an exact match on themselves.
	assert.Equal(t, []string{"Ghost"}, reg.TypeAndSubtypes("Ghost"))
}

func TestIsSubtype(t *testing.T) {
	reg := testRegistry(t)

	assert.True(t, reg.IsSubtype("Employee", "Principal"))
	assert.True(t, reg.IsSubtype("User", "User"))
	assert.False(t, reg.IsSubtype("Principal", "User"))
	assert.False(t, reg.IsSubtype("Ghost", "Principal"))
}

func TestHasPropertyWalksAncestors(t *testing.T) {
	reg := testRegistry(t)

	assert.True(t, reg.HasProperty("Employee", "salary"))
	assert.True(t, reg.HasProperty("Employee", "name"))
	assert.False(t, reg.HasProperty("Principal", "salary"))
}

func TestValidateEntityRequiredProperties(t *testing.T) {
	reg := testRegistry(t)

	require.NoError(t, reg.ValidateEntity("Employee", map[string]any{"name": "alice"}))

	err := reg.ValidateEntity("Employee", map[string]any{"name": "   "})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Key)
	assert.Equal(t, TokenMustNotBeBlank, verr.Token)
	assert.True(t, IsValidationError(err))

	err = reg.ValidateEntity("Ghost", map[string]any{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, TokenTypeUnknown, verr.Token)
}

func TestValidateEntityAggregatesViolations(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Type{Name: "Document", Properties: map[string]PropertyDef{
		"title": {Required: true},
		"owner": {Required: true},
	}})

	err := reg.ValidateEntity("Document", map[string]any{})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestValidateEntityRunsCustomValidatorsAlongChain(t *testing.T) {
	sentinel := errors.New("custom rule violated")

	reg := NewRegistry()
	reg.MustRegister(Type{Name: "Base", Validate: func(props map[string]any) error {
		if props["mode"] == "forbidden" {
			return sentinel
		}

		return nil
	}})
	reg.MustRegister(Type{Name: "Derived", Parent: "Base"})

	require.NoError(t, reg.ValidateEntity("Derived", map[string]any{"mode": "ok"}))
	assert.ErrorIs(t, reg.ValidateEntity("Derived", map[string]any{"mode": "forbidden"}), sentinel)
}

func TestValidateSearchKey(t *testing.T) {
	reg := testRegistry(t)

	require.NoError(t, reg.ValidateSearchKey([]string{"User", "Employee"}, "email"))

	err := reg.ValidateSearchKey([]string{"Principal"}, "salary")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, TokenInvalidSearchKey, verr.Token)
	assert.Equal(t, "salary", verr.Key)
}

func TestValidationErrorMessageNamesOffendingKey(t *testing.T) {
	err := &ValidationError{Type: "User", Key: "name", Token: TokenMustNotBeBlank}
	assert.Equal(t, "validation failed for User.name: must_not_be_blank", err.Error())
}
