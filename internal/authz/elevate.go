package authz

import (
	"context"
	"time"

	"github.com/pagegraph/pagegraph/internal/log"
)

// elevationKey is an unexported key type to prevent external forgery.
type elevationKey struct{}

// elevationInfo stores elevation metadata.
type elevationInfo struct {
	Reason    string
	Timestamp time.Time
	Principal Principal
	ReadOnly  bool
}

// WithElevated creates a superuser-equivalent context for internal store
// access that cannot require the authorization it is itself establishing
// (principal lookup, rule loading, commit scanning).
// reason must be a stable audit identifier (e.g., "auth-lookup").
func WithElevated(ctx context.Context, reason string) context.Context {
	return withElevation(ctx, reason, false)
}

// WithElevatedRead creates a read-only elevated context. Store writes under
// a read-only elevation are rejected, which keeps commit observers from
// re-entering a write transaction while they react to a commit.
func WithElevatedRead(ctx context.Context, reason string) context.Context {
	return withElevation(ctx, reason, true)
}

func withElevation(ctx context.Context, reason string, readOnly bool) context.Context {
	info := elevationInfo{
		Reason:    reason,
		Timestamp: time.Now(),
		Principal: CurrentPrincipal(ctx),
		ReadOnly:  readOnly,
	}

	recordElevationAudit(ctx, info)

	return context.WithValue(ctx, elevationKey{}, info)
}

// RunWithElevated executes an elevated operation within a closure, limiting
// the elevation scope.
//
// Example usage:
//
//	users, err := authz.RunWithElevated(ctx, "auth-lookup", func(ctx context.Context) ([]*graph.Entity, error) {
//	    return store.Search(ctx, query)
//	})
func RunWithElevated[T any](ctx context.Context, reason string, fn func(ctx context.Context) (T, error)) (T, error) {
	return fn(WithElevated(ctx, reason))
}

// RunWithElevatedRead executes a read-only elevated operation within a closure.
func RunWithElevatedRead[T any](ctx context.Context, reason string, fn func(ctx context.Context) (T, error)) (T, error) {
	return fn(WithElevatedRead(ctx, reason))
}

// IsElevated checks if the current context carries an elevation.
func IsElevated(ctx context.Context) bool {
	_, ok := ctx.Value(elevationKey{}).(elevationInfo)
	return ok
}

// IsReadOnly checks if the current context carries a read-only elevation.
func IsReadOnly(ctx context.Context) bool {
	info, ok := ctx.Value(elevationKey{}).(elevationInfo)
	return ok && info.ReadOnly
}

// ElevationReason returns the audit reason of the current elevation.
func ElevationReason(ctx context.Context) (string, bool) {
	info, ok := ctx.Value(elevationKey{}).(elevationInfo)
	if !ok {
		return "", false
	}

	return info.Reason, true
}

// auditLogger is the elevation audit logger. Can be customized via
// SetAuditLogger.
var auditLogger func(ctx context.Context, principal, reason string)

// SetAuditLogger sets a custom audit logger.
func SetAuditLogger(fn func(ctx context.Context, principal, reason string)) {
	auditLogger = fn
}

func recordElevationAudit(ctx context.Context, info elevationInfo) {
	if auditLogger != nil {
		auditLogger(ctx, info.Principal.String(), info.Reason)
		return
	}

	log.Debug(ctx, "authz: privilege elevation",
		log.String("principal", info.Principal.String()),
		log.String("reason", info.Reason),
		log.Bool("read_only", info.ReadOnly),
	)
}
