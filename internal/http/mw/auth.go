// Package mw contains HTTP middleware for the leadscout API.
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/jmylchreest/leadscout-api/internal/auth"
	"github.com/jmylchreest/leadscout-api/internal/logging"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserClaimsKey is the context key for user claims.
	UserClaimsKey ContextKey = "user_claims"
)

// UserClaims represents the authenticated caller.
type UserClaims struct {
	UserID string // sub claim
	Email  string
	Role   auth.Role
}

// IsPrivileged reports whether the caller may read every team member's runs.
func (c *UserClaims) IsPrivileged() bool {
	return c != nil && c.Role.IsPrivileged()
}

// Auth returns a middleware that rejects requests without a valid bearer token.
func Auth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			claims, err := validateToken(verifier, token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth returns middleware that validates auth if present but allows unauthenticated requests.
// Protected operations are enforced later by HumaAuth.
func OptionalAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Add claims to context if valid (nil if invalid)
			if claims, _ := validateToken(verifier, token); claims != nil {
				next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns middleware that only admits privileged roles or the listed ones.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserClaims(r.Context())
			if claims == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, `{"error":"insufficient role"}`, http.StatusForbidden)
		})
	}
}

// bearerToken strips an optional "Bearer " prefix.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return header
}

// validateToken verifies a JWT and converts it to UserClaims.
func validateToken(verifier *auth.Verifier, token string) (*UserClaims, error) {
	if verifier == nil {
		return nil, auth.ErrInvalidToken
	}
	claims, err := verifier.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return &UserClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   auth.ParseRole(claims.Role),
	}, nil
}

// withClaims stores claims and tags the context for request-scoped logging.
func withClaims(ctx context.Context, claims *UserClaims) context.Context {
	ctx = context.WithValue(ctx, UserClaimsKey, claims)
	return logging.WithUserID(ctx, claims.UserID)
}

// GetUserClaims retrieves user claims from context.
func GetUserClaims(ctx context.Context) *UserClaims {
	claims, ok := ctx.Value(UserClaimsKey).(*UserClaims)
	if !ok {
		return nil
	}
	return claims
}
