package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/jmylchreest/leadscout-api/internal/auth"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// RoleLimits maps roles to their requests per minute. 0 means unlimited.
	RoleLimits map[auth.Role]int
	// IPRequestsPerMinute is the fallback limit for unauthenticated requests.
	IPRequestsPerMinute int
}

// DefaultRateLimitConfig returns the stock per-role limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RoleLimits: map[auth.Role]int{
			auth.RoleBDR:     120,
			auth.RoleManager: 240,
			auth.RoleAdmin:   0,
		},
		IPRequestsPerMinute: 60,
	}
}

// RateLimitByUser returns a middleware that rate limits by user ID.
// Should be applied AFTER OptionalAuth.
// Falls back to IP-based limiting if user is not authenticated.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	roleLimiters := make(map[auth.Role]*httprate.RateLimiter)
	for role, limit := range cfg.RoleLimits {
		if limit > 0 {
			roleLimiters[role] = httprate.NewRateLimiter(
				limit,
				time.Minute,
				httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
					claims := GetUserClaims(r.Context())
					if claims == nil || claims.UserID == "" {
						return httprate.KeyByIP(r)
					}
					return "user:" + claims.UserID, nil
				}),
			)
		}
	}

	fallbackLimiter := httprate.NewRateLimiter(
		cfg.IPRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserClaims(r.Context())
			if claims == nil {
				fallbackLimiter.Handler(next).ServeHTTP(w, r)
				return
			}

			if limit, ok := cfg.RoleLimits[claims.Role]; ok && limit == 0 {
				next.ServeHTTP(w, r)
				return
			}

			limiter, ok := roleLimiters[claims.Role]
			if !ok {
				limiter = fallbackLimiter
			}
			limiter.Handler(next).ServeHTTP(w, r)
		})
	}
}
