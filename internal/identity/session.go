package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medreach/identitybridge/internal/auth"
)

// sessionAudience separates session credentials from assertion tokens signed
// by the local authority.
const sessionAudience = "medreach-session"

// SessionClaims are carried by session credentials.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuer issues and verifies HS256 session credentials bound to an
// external id. Credentials are not stored server-side.
type SessionIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates an issuer. ttl bounds every credential's lifetime.
func NewSessionIssuer(secret, issuer string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a session credential for externalID.
func (s *SessionIssuer) Issue(externalID, email string, role auth.Role) (string, error) {
	if externalID == "" {
		return "", fmt.Errorf("issue session credential: empty external id")
	}

	now := s.now()
	claims := SessionClaims{
		Email: email,
		Role:  string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   externalID,
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session credential: %w", err)
	}
	return token, nil
}

// Verify parses a session credential and returns the principal it proves.
// A credential without a role claim yields auth.RoleUnspecified.
func (s *SessionIssuer) Verify(_ context.Context, token string) (auth.Principal, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return auth.Principal{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	role := auth.RoleUnspecified
	if claims.Role != "" {
		role = auth.Role(claims.Role)
	}

	return auth.Principal{
		ExternalID: claims.Subject,
		Email:      claims.Email,
		Role:       role,
	}, nil
}
