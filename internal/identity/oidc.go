package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"
)

// OIDCVerifier verifies assertion tokens issued by an external OIDC issuer
// (for example Firebase's securetoken issuer) against its published JWKS.
type OIDCVerifier struct {
	tokenHandler *oidctoken.TokenHandler[map[string]any]
	roleClaim    string
}

// NewOIDCVerifier creates a verifier for issuer. Tokens must name audience.
// Keys are fetched on first use so the process can start before the issuer
// is reachable.
func NewOIDCVerifier(issuer, audience, roleClaim string) (*OIDCVerifier, error) {
	if issuer == "" {
		return nil, fmt.Errorf("oidc issuer is required")
	}
	if audience == "" {
		return nil, fmt.Errorf("oidc audience is required")
	}

	tokenHandler, err := oidctoken.New[map[string]any](nil,
		options.WithIssuer(issuer),
		options.WithRequiredAudience(audience),
		options.WithLazyLoadJwks(true),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize oidc token handler: %w", err)
	}

	return &OIDCVerifier{tokenHandler: tokenHandler, roleClaim: roleClaim}, nil
}

// Verify validates signature, issuer, audience and expiry of token.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (Assertion, error) {
	claims, err := v.tokenHandler.ParseToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return Assertion{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return assertionFromClaims(claims, v.roleClaim)
}
