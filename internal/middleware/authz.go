package middleware

import (
	"net/http"

	"github.com/medreach/identitybridge/internal/auth"
	"github.com/medreach/identitybridge/internal/respond"
	"github.com/medreach/identitybridge/internal/services/gate"
)

// RequireRoles admits requests whose principal holds one of roles. It must
// run after Authenticate.
func RequireRoles(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if err := gate.Authorize(principal, ok, roles...); err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
