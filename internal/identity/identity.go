// Package identity adapts identity authorities for the reconciler and the
// session gate.
//
// Three roles are separated:
//
//   - Authority administers identities (create, role claim, delete). Only the
//     built-in LocalAuthority implements it.
//   - Verifier turns a client-presented assertion token into an Assertion.
//     LocalAuthority, OIDCVerifier and FederatedVerifier implement it.
//   - SessionIssuer issues and verifies the bridge's own session credentials.
package identity

import (
	"context"
	"errors"

	"github.com/medreach/identitybridge/internal/auth"
)

var (
	// ErrIdentityExists is returned when the authority already holds an
	// identity for the email.
	ErrIdentityExists = errors.New("identity already exists")

	// ErrIdentityNotFound is returned when an operation names an unknown identity.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrInvalidToken is returned when an assertion token or session
	// credential fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidPassword is returned by SignIn for a wrong password.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrIdentityDisabled is returned for identities disabled at the authority.
	ErrIdentityDisabled = errors.New("identity disabled")
)

// Assertion is a verified identity as reported by an authority.
type Assertion struct {
	ExternalID  string
	Email       string
	DisplayName string
	PhotoURL    string
	// RoleClaim is the raw side-channel role claim, empty when absent.
	RoleClaim string
}

// Verifier verifies assertion tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (Assertion, error)
}

// Authority administers identities.
type Authority interface {
	// CreateIdentity creates an identity and returns its external id. A
	// rejection by the authority is reported as *RejectedError.
	CreateIdentity(ctx context.Context, email, password, displayName string) (string, error)
	SetRoleClaim(ctx context.Context, externalID string, role auth.Role) error
	DeleteIdentity(ctx context.Context, externalID string) error
}

// RejectedError reports that the authority refused to create an identity.
// Reason is the authority's own explanation and is safe to show to clients.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return "identity rejected: " + e.Reason + ": " + e.Err.Error()
	}
	return "identity rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
