package authz

// TypePrincipal is the graph type of principal nodes; User and Group are
// its subtypes.
const TypePrincipal = "Principal"

// Property keys of principal nodes.
const (
	KeyName           = "name"
	KeyEmail          = "email"
	KeyPasswordDigest = "passwordDigest"
	KeySessionToken   = "sessionToken"
	KeyBlocked        = "blocked"
	KeyDeleted        = "deleted"
)
