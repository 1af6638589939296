// Package gate authenticates bearer credentials and authorizes principals by
// role. Each request is evaluated independently; nothing is kept between
// requests.
package gate

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/medreach/identitybridge/internal/auth"
	"github.com/medreach/identitybridge/internal/autherr"
	"github.com/medreach/identitybridge/internal/identity"
	"github.com/medreach/identitybridge/internal/telemetry"
)

// Client-facing gate messages
const (
	MsgNoToken      = "Unauthorized - No token provided"
	MsgInvalidToken = "Unauthorized - Invalid or expired token"
	MsgAuthRequired = "Authentication required"
	MsgInsufficient = "Insufficient permissions"
)

var errNoVerifiers = errors.New("no token verifiers configured")

// TokenVerifier proves a bearer token and returns its principal.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (auth.Principal, error)
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (auth.Principal, error)

func (f TokenVerifierFunc) VerifyToken(ctx context.Context, token string) (auth.Principal, error) {
	return f(ctx, token)
}

// Sessions verifies the bridge's own session credentials.
func Sessions(issuer *identity.SessionIssuer) TokenVerifier {
	return TokenVerifierFunc(issuer.Verify)
}

// Assertions verifies identity-authority assertion tokens. The role comes
// from the token's role claim; absent or unknown claims yield the generic
// "user" tier.
func Assertions(verifier identity.Verifier) TokenVerifier {
	return TokenVerifierFunc(func(ctx context.Context, token string) (auth.Principal, error) {
		assertion, err := verifier.Verify(ctx, token)
		if err != nil {
			return auth.Principal{}, err
		}

		role := auth.RoleUnspecified
		if assertion.RoleClaim != "" {
			if parsed, err := auth.ParseRole(assertion.RoleClaim); err == nil {
				role = parsed
			}
		}
		return auth.Principal{
			ExternalID: assertion.ExternalID,
			Email:      assertion.Email,
			Role:       role,
		}, nil
	})
}

// Gate tries its verifiers in order; the first to accept a token wins.
type Gate struct {
	verifiers []TokenVerifier
	metrics   *telemetry.AuthMetrics
}

// New creates a gate. Verifiers are tried in the order given.
func New(verifiers ...TokenVerifier) *Gate {
	return &Gate{verifiers: verifiers}
}

func (g *Gate) WithMetrics(metrics *telemetry.AuthMetrics) *Gate {
	g.metrics = metrics
	return g
}

// Authenticate resolves the principal proven by an Authorization header
// value of the form "Bearer <token>".
func (g *Gate) Authenticate(ctx context.Context, header string) (principal auth.Principal, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerGate, "gate.Authenticate")
	defer func() {
		telemetry.RecordError(span, err)
		g.metrics.RecordAttempt(ctx, telemetry.FlowGate, outcome(err))
		span.End()
	}()

	token, err := auth.ExtractBearer(header)
	if err != nil {
		return auth.Principal{}, autherr.Wrap(autherr.KindUnauthenticated, MsgNoToken, err)
	}

	lastErr := errNoVerifiers
	for _, verifier := range g.verifiers {
		principal, err := verifier.VerifyToken(ctx, token)
		if err != nil {
			lastErr = err
			continue
		}
		if principal.ExternalID == "" {
			lastErr = fmt.Errorf("%w: token has no subject", identity.ErrInvalidToken)
			continue
		}
		if principal.Role == "" {
			principal.Role = auth.RoleUnspecified
		}
		span.SetAttributes(
			attribute.String(telemetry.AttrExternalID, principal.ExternalID),
			attribute.String(telemetry.AttrRole, string(principal.Role)),
		)
		return principal, nil
	}
	return auth.Principal{}, autherr.Wrap(autherr.KindUnauthenticated, MsgInvalidToken, lastErr)
}

// Authorize checks that a principal is present and holds one of allowed.
func Authorize(principal auth.Principal, present bool, allowed ...auth.Role) error {
	if !present || principal.ExternalID == "" {
		return autherr.New(autherr.KindUnauthenticated, MsgAuthRequired)
	}
	if !slices.Contains(allowed, principal.Role) {
		return autherr.New(autherr.KindForbidden, MsgInsufficient)
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(autherr.From(err).Code())
}
