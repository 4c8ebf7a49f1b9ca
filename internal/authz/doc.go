// Package authz implements the principal model and controlled privilege
// elevation for the entity access layer.
//
// Core concepts:
//
//   - Principal: A single identity per request (Superuser/Authenticated/
//     Anonymous). Set via NewSuperuserContext, NewAuthenticatedContext, or
//     WithPrincipal. Every authorization decision starts with an explicit
//     check of the principal variant.
//
//   - Elevation: Controlled superuser-equivalent store access via
//     RunWithElevated (closure, preferred) or WithElevated (explicit
//     context). All elevations are audited with a stable reason string.
//     Read-only elevation (RunWithElevatedRead) additionally forbids writes,
//     used by the change notifier while it reacts to a commit.
//
// Usage rules:
//
//  1. Prefer RunWithElevated closures to limit how far an elevated context
//     spreads along the call chain.
//  2. All elevation reasons must be stable strings for audit aggregation.
//  3. Background tasks must declare their principal via NewSuperuserContext.
package authz
