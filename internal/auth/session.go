package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pagegraph/pagegraph/internal/authz"
)

// SubjectSuperuser marks bearer tokens issued to the static superuser.
const SubjectSuperuser = "superuser"

// GenerateSessionToken returns a 32-byte random token in hex.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// Claims is the JWT payload wrapping a session token.
type Claims struct {
	SessionToken string `json:"tok,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a bearer token for the principal. Authenticated
// principals carry their session token; the superuser carries none and is
// re-recognized by subject alone.
func (r *Resolver) IssueToken(principal authz.Principal, sessionToken string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.config.sessionTTL())),
		},
	}

	switch {
	case principal.IsSuperuser():
		claims.Subject = SubjectSuperuser
	default:
		claims.Subject = principal.NodeID
		claims.SessionToken = sessionToken
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(r.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a bearer token and returns its claims.
func (r *Resolver) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}

		return []byte(r.config.JWTSecret), nil
	})
	if err != nil {
		return nil, &Error{Kind: KindInvalidToken}
	}

	return claims, nil
}
