package httpapi

import (
	"net/http"
	"strings"

	"assetblock.org/internal/auth"
)

// Paths that never require a bearer token.
var publicPaths = map[string]bool{
	"/":              true,
	"/healthz":       true,
	"/readyz":        true,
	"/metrics":       true,
	"/openapi.yaml":  true,
	"/v1/info":       true,
	"/v1/auth/token": true,
}

// withAuth validates the bearer token and stores the principal in the
// context. When no signing secret is configured the API runs open and
// handlers fall back to identity fields in the request itself.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.SupportsTokens() || publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(raw, "Bearer ") {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := auth.ParseAndValidate(strings.TrimPrefix(raw, "Bearer "))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		principal := auth.Principal{
			UID:   claims.Subject,
			Email: claims.Email,
			Roles: claims.Roles,
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}
