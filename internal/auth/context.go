package auth

import "context"

// Principal is the identity the session gate attaches to a request.
//
// Role comes from the presented credential and may be staler than the role
// stored on the profile record; handlers that need the authoritative role must
// read the profile.
type Principal struct {
	ExternalID string
	Email      string
	Role       Role
}

type principalContextKey struct{}

// SetPrincipal stores the authenticated principal on the context for downstream consumers.
func SetPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext retrieves the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}
