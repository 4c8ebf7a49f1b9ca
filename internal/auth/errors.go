package auth

import "errors"

// genericMessage is the single externally-visible message for every
// authentication failure, so callers cannot enumerate accounts. The
// specific kind is retained only in internal logs.
const genericMessage = "invalid username or password"

// FailureKind distinguishes authentication failures internally.
type FailureKind int

const (
	KindUnknownPrincipal FailureKind = iota
	KindAccountBlocked
	KindEmptyCredential
	KindCredentialMismatch
	KindAmbiguousPrincipal
	KindInvalidToken
)

func (k FailureKind) String() string {
	switch k {
	case KindUnknownPrincipal:
		return "unknown_principal"
	case KindAccountBlocked:
		return "account_blocked"
	case KindEmptyCredential:
		return "empty_credential"
	case KindCredentialMismatch:
		return "credential_mismatch"
	case KindAmbiguousPrincipal:
		return "ambiguous_principal"
	case KindInvalidToken:
		return "invalid_token"
	default:
		return "unknown"
	}
}

// Error is an authentication failure. Its message is identical for every
// kind; only logs distinguish them.
type Error struct {
	Kind FailureKind
}

func (e *Error) Error() string {
	return genericMessage
}

// IsAuthenticationError reports whether err contains an authentication
// failure.
func IsAuthenticationError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}
