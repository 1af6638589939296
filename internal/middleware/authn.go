// Package middleware adapts the session gate to chi middleware.
package middleware

import (
	"context"
	"net/http"

	"github.com/medreach/identitybridge/internal/auth"
	"github.com/medreach/identitybridge/internal/respond"
	"github.com/medreach/identitybridge/internal/services/gate"
)

// Authenticator resolves the principal behind an Authorization header.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (auth.Principal, error)
}

var _ Authenticator = (*gate.Gate)(nil)

// Authenticate rejects requests without a valid bearer credential and stores
// the principal in the request context.
func Authenticate(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.SetPrincipal(r.Context(), principal)))
		})
	}
}
