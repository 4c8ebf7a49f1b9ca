// Package access implements the access control model: per-resource and
// per-property permission rules carried as flag bitmasks on graph entities,
// ordered by an integer position, and the evaluation that answers whether a
// principal may perform an operation on a resource or property.
package access

import "strings"

// Permission is one bit of an access rule's flag mask.
type Permission uint64

const (
	// PermissionRead grants reading the resource itself.
	PermissionRead Permission = 1 << iota
	// PermissionWrite grants mutating the resource itself.
	PermissionWrite
	// PermissionCreate grants creating entities of the resource type.
	PermissionCreate
	// PermissionDelete grants deleting entities of the resource type.
	PermissionDelete
	// PermissionReadProperty grants reading properties.
	PermissionReadProperty
	// PermissionWriteProperty grants writing properties.
	PermissionWriteProperty
)

var permissionNames = map[Permission]string{
	PermissionRead:          "read",
	PermissionWrite:         "write",
	PermissionCreate:        "create",
	PermissionDelete:        "delete",
	PermissionReadProperty:  "read_property",
	PermissionWriteProperty: "write_property",
}

// String renders the set bits of the mask.
func (p Permission) String() string {
	var names []string

	for bit, name := range permissionNames {
		if p&bit == bit {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}

// Operation is the access-controlled operation kind.
type Operation int

const (
	OpRead Operation = iota
	OpWrite
	OpCreate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// requiredFlag maps the operation to the permission bit a matching rule
// must carry, depending on whether the check is property-scoped.
func (o Operation) requiredFlag(propertyScoped bool) Permission {
	switch o {
	case OpRead:
		if propertyScoped {
			return PermissionReadProperty
		}

		return PermissionRead
	case OpWrite:
		if propertyScoped {
			return PermissionWriteProperty
		}

		return PermissionWrite
	case OpCreate:
		return PermissionCreate
	case OpDelete:
		return PermissionDelete
	default:
		return 0
	}
}
