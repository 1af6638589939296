package identity

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// tokenClaims is the subset of standard ID token claims the bridge reads.
// Firebase style tokens carry the uid in user_id as well as sub.
type tokenClaims struct {
	Subject string `mapstructure:"sub"`
	UserID  string `mapstructure:"user_id"`
	Email   string `mapstructure:"email"`
	Name    string `mapstructure:"name"`
	Picture string `mapstructure:"picture"`
}

// assertionFromClaims maps a verified claim set onto an Assertion. roleClaim
// names the custom claim holding the role; it may hold a string or a list
// whose first entry is used.
func assertionFromClaims(claims map[string]any, roleClaim string) (Assertion, error) {
	var tc tokenClaims
	if err := mapstructure.WeakDecode(claims, &tc); err != nil {
		return Assertion{}, fmt.Errorf("decode token claims: %w", err)
	}

	externalID := tc.Subject
	if externalID == "" {
		externalID = tc.UserID
	}
	if externalID == "" {
		return Assertion{}, fmt.Errorf("%w: token missing sub claim", ErrInvalidToken)
	}

	return Assertion{
		ExternalID:  externalID,
		Email:       strings.TrimSpace(tc.Email),
		DisplayName: strings.TrimSpace(tc.Name),
		PhotoURL:    tc.Picture,
		RoleClaim:   extractRoleClaim(claims, roleClaim),
	}, nil
}

func extractRoleClaim(claims map[string]any, roleClaim string) string {
	if roleClaim == "" {
		return ""
	}
	raw, ok := claims[roleClaim]
	if !ok || raw == nil {
		return ""
	}

	switch val := raw.(type) {
	case string:
		return strings.TrimSpace(val)
	default:
		var list []string
		if err := mapstructure.WeakDecode(val, &list); err == nil && len(list) > 0 {
			return strings.TrimSpace(list[0])
		}
	}
	return ""
}
