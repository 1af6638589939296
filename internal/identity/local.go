package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/medreach/identitybridge/internal/auth"
	"github.com/medreach/identitybridge/internal/db/models"
	"github.com/medreach/identitybridge/internal/repository"
)

// MinPasswordLength is the shortest password the local authority accepts.
const MinPasswordLength = 6

// assertionAudience marks tokens minted by LocalAuthority.SignIn.
const assertionAudience = "medreach-identity"

// AssertionClaims are carried by assertion tokens minted by the local
// authority. The role lives in the userType custom claim.
type AssertionClaims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	UserType string `json:"userType,omitempty"`
	jwt.RegisteredClaims
}

// LocalAuthority is the built-in identity authority. It stores identities in
// the application database, hashes passwords with bcrypt and signs its own
// assertion tokens.
type LocalAuthority struct {
	identities repository.IdentityRepository
	secret     []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewLocalAuthority creates the local authority. secret signs assertion
// tokens and must not be shared with the session issuer.
func NewLocalAuthority(identities repository.IdentityRepository, secret, issuer string, ttl time.Duration) *LocalAuthority {
	return &LocalAuthority{
		identities: identities,
		secret:     []byte(secret),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
}

// CreateIdentity validates the credentials and stores a new identity.
func (a *LocalAuthority) CreateIdentity(ctx context.Context, email, password, displayName string) (string, error) {
	email = models.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return "", &RejectedError{Reason: "The email address is improperly formatted."}
	}
	if len(password) < MinPasswordLength {
		return "", &RejectedError{Reason: fmt.Sprintf("The password must be a string with at least %d characters.", MinPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	identity := &models.Identity{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
	}
	if err := a.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return "", &RejectedError{
				Reason: "The email address is already in use by another account.",
				Err:    ErrIdentityExists,
			}
		}
		return "", fmt.Errorf("create identity: %w", err)
	}
	return identity.ID, nil
}

// SetRoleClaim attaches role to the identity's side channel.
func (a *LocalAuthority) SetRoleClaim(ctx context.Context, externalID string, role auth.Role) error {
	if err := a.identities.SetRoleClaim(ctx, externalID, string(role)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("set role claim: %w", ErrIdentityNotFound)
		}
		return fmt.Errorf("set role claim: %w", err)
	}
	return nil
}

// DeleteIdentity removes the identity.
func (a *LocalAuthority) DeleteIdentity(ctx context.Context, externalID string) error {
	if err := a.identities.Delete(ctx, externalID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("delete identity: %w", ErrIdentityNotFound)
		}
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// SignIn checks email and password and mints an assertion token.
func (a *LocalAuthority) SignIn(ctx context.Context, email, password string) (string, time.Time, error) {
	identity, err := a.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", time.Time{}, ErrIdentityNotFound
		}
		return "", time.Time{}, fmt.Errorf("sign in: %w", err)
	}
	if identity.DisabledAt != nil {
		return "", time.Time{}, ErrIdentityDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidPassword
	}

	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := AssertionClaims{
		Email:   identity.Email,
		Name:    identity.DisplayName,
		Picture: identity.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   identity.ID,
			Audience:  jwt.ClaimStrings{assertionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if identity.RoleClaim != nil {
		claims.UserType = *identity.RoleClaim
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign assertion token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify validates an assertion token and re-reads the identity so deleted
// or disabled identities are rejected before the token expires.
func (a *LocalAuthority) Verify(ctx context.Context, token string) (Assertion, error) {
	claims := &AssertionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(assertionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Assertion{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	identity, err := a.identities.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Assertion{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrIdentityNotFound)
		}
		return Assertion{}, fmt.Errorf("load identity: %w", err)
	}
	if identity.DisabledAt != nil {
		return Assertion{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrIdentityDisabled)
	}

	assertion := Assertion{
		ExternalID:  identity.ID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		PhotoURL:    identity.PhotoURL,
	}
	if identity.RoleClaim != nil {
		assertion.RoleClaim = *identity.RoleClaim
	}
	return assertion, nil
}
