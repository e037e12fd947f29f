package httpapi

import (
	"net/http"
	"strings"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// withAuth validates the bearer access token on protected routes and stores
// its claims in the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw := r.Header.Get(authHeader)
		if !strings.HasPrefix(raw, bearer) {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		claims, err := a.tokens.ParseAccess(strings.TrimPrefix(raw, bearer))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token revoked or invalid")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

// withAdmission enforces the per-identity fixed-window ceiling. Requests
// without an authenticated identity pass through; unauthenticated abuse is
// covered by the per-IP bucket on the public routes.
func (a *API) withAdmission(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		allowed, err := a.limiter.Allow(r.Context(), claims.Subject)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "admission check failed")
			return
		}
		if !allowed {
			obs.CountAdmissionRejection()
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireGate applies the ownership/super/permission-code predicate and
// writes 401/403 on failure.
func (a *API) requireGate(w http.ResponseWriter, r *http.Request, ownerID string, code int) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "bearer token required")
		return nil, false
	}
	if !auth.Allow(claims, ownerID, code) {
		writeError(w, http.StatusForbidden, "permission denied")
		return nil, false
	}
	return claims, true
}
