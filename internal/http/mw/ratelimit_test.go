package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmylchreest/leadscout-api/internal/auth"
)

// ========================================
// RateLimitByUser Tests
// ========================================

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	for _, role := range []auth.Role{auth.RoleBDR, auth.RoleManager, auth.RoleAdmin} {
		if _, ok := cfg.RoleLimits[role]; !ok {
			t.Errorf("expected RoleLimits to contain %q", role)
		}
	}
	if cfg.IPRequestsPerMinute <= 0 {
		t.Errorf("IPRequestsPerMinute = %d, want > 0", cfg.IPRequestsPerMinute)
	}
}

func TestRateLimitByUser(t *testing.T) {
	cfg := RateLimitConfig{
		RoleLimits: map[auth.Role]int{
			auth.RoleBDR:   2,
			auth.RoleAdmin: 0, // unlimited
		},
		IPRequestsPerMinute: 1,
	}

	tests := []struct {
		name     string
		claims   *UserClaims
		requests int
		wantLast int
	}{
		{"bdr within limit", &UserClaims{UserID: "a", Role: auth.RoleBDR}, 2, http.StatusOK},
		{"bdr over limit", &UserClaims{UserID: "b", Role: auth.RoleBDR}, 3, http.StatusTooManyRequests},
		{"admin unlimited", &UserClaims{UserID: "c", Role: auth.RoleAdmin}, 10, http.StatusOK},
		{"unknown role falls back to ip", &UserClaims{UserID: "d", Role: auth.RoleManager}, 2, http.StatusTooManyRequests},
		{"anonymous by ip", nil, 2, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RateLimitByUser(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			var last int
			for i := 0; i < tt.requests; i++ {
				req := httptest.NewRequest(http.MethodGet, "/api/v1/discovery-runs", nil)
				req.RemoteAddr = "10.0.0.1:1234"
				if tt.claims != nil {
					req = req.WithContext(context.WithValue(req.Context(), UserClaimsKey, tt.claims))
				}
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				last = rec.Code
			}

			if last != tt.wantLast {
				t.Errorf("last status = %d, want %d", last, tt.wantLast)
			}
		})
	}
}
