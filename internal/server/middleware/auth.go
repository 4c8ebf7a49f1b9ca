package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pagegraph/pagegraph/internal/access"
	"github.com/pagegraph/pagegraph/internal/auth"
	"github.com/pagegraph/pagegraph/internal/authz"
)

// bearerToken extracts the bearer token from the Authorization header.
// An absent header is not an error; it is an anonymous request.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}

	return token, true
}

// WithPrincipal resolves the acting principal from the bearer token and
// installs it, together with a fresh request-scoped access cache, on the
// request context. Requests without a token proceed as anonymous; a
// token that fails validation is rejected.
func WithPrincipal(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := access.WithRequestCache(c.Request.Context())

		principal := authz.Anonymous

		if token, ok := bearerToken(c.Request); ok {
			claims, err := resolver.ParseToken(token)
			if err != nil {
				AbortWithError(c, http.StatusUnauthorized, errors.New("invalid token"))
				return
			}

			principal, err = resolvePrincipal(c, resolver, claims)
			if err != nil {
				AbortWithError(c, http.StatusUnauthorized, errors.New("invalid token"))
				return
			}
		}

		ctx, err := authz.WithPrincipal(ctx, principal)
		if err != nil {
			AbortWithError(c, http.StatusInternalServerError, err)
			return
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func resolvePrincipal(c *gin.Context, resolver *auth.Resolver, claims *auth.Claims) (authz.Principal, error) {
	if claims.Subject == auth.SubjectSuperuser {
		return authz.Superuser, nil
	}

	principal, err := resolver.PrincipalForSession(c.Request.Context(), claims.SessionToken)
	if err != nil {
		return authz.Anonymous, err
	}

	// A token whose session was revoked resolves to anonymous; the bearer
	// token alone does not authenticate.
	if !principal.IsAuthenticated() || principal.NodeID != claims.Subject {
		return authz.Anonymous, errors.New("session revoked")
	}

	return principal, nil
}

// RequireAuthenticated rejects anonymous requests.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authz.CurrentPrincipal(c.Request.Context()).IsAnonymous() {
			AbortWithError(c, http.StatusUnauthorized, errors.New("authentication required"))
			return
		}

		c.Next()
	}
}

// RequireSuperuser rejects everything but the superuser.
func RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authz.CurrentPrincipal(c.Request.Context()).IsSuperuser() {
			AbortWithError(c, http.StatusForbidden, errors.New("superuser required"))
			return
		}

		c.Next()
	}
}
