package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/medreach/identitybridge/internal/auth"
	"github.com/medreach/identitybridge/internal/autherr"
	"github.com/medreach/identitybridge/internal/compensation"
	"github.com/medreach/identitybridge/internal/db/models"
	"github.com/medreach/identitybridge/internal/identity"
	"github.com/medreach/identitybridge/internal/repository"
	"github.com/medreach/identitybridge/internal/telemetry"
)

// DefaultDisplayName is used when a synthesized profile has no display name.
const DefaultDisplayName = "User"

// CredentialIssuer issues session credentials.
type CredentialIssuer interface {
	Issue(externalID, email string, role auth.Role) (string, error)
}

// Dependencies are the reconciler's collaborators.
type Dependencies struct {
	// Authority administers identities. Nil when the upstream authority is
	// not administrable; Register is then unavailable.
	Authority identity.Authority
	// Verifier verifies assertion tokens presented to Login.
	Verifier identity.Verifier
	// Federated verifies federated ID tokens. Nil means FederatedLogin
	// trusts its input as pre-verified.
	Federated   identity.Verifier
	Profiles    repository.ProfileRepository
	Credentials CredentialIssuer
	// Sink receives orphaned identities. Defaults to compensation.LogSink.
	Sink    compensation.Sink
	Metrics *telemetry.AuthMetrics
}

// Result is returned by every successful reconciliation.
type Result struct {
	Profile           models.PublicProfile
	SessionCredential string
}

// RegisterInput carries a self-registration request.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
	PhoneNumber string
}

// FederatedInput carries a federated sign-in. When a federated verifier is
// configured IDToken is required and the identity fields come from its claims.
type FederatedInput struct {
	ExternalID  string
	Email       string
	DisplayName string
	PhotoURL    string
	IDToken     string
}

// Service reconciles identities with profile records.
type Service struct {
	deps            Dependencies
	allowAdmin      bool
	trustUnverified bool
}

// NewService constructs a Service.
func NewService(deps Dependencies) *Service {
	if deps.Sink == nil {
		deps.Sink = compensation.LogSink{}
	}
	return &Service{deps: deps, trustUnverified: true}
}

// WithAdminRegistration allows clients to request the admin role at Register.
func (s *Service) WithAdminRegistration(allow bool) *Service {
	s.allowAdmin = allow
	return s
}

// WithUnverifiedFederated controls whether FederatedLogin accepts the
// request body as a pre-verified assertion when no federated verifier is
// configured. It is on by default; when off, FederatedLogin fails without a
// verifier.
func (s *Service) WithUnverifiedFederated(allow bool) *Service {
	s.trustUnverified = allow
	return s
}

// CanRegister reports whether Register is available.
func (s *Service) CanRegister() bool {
	return s.deps.Authority != nil
}

// Register creates an identity, its role claim and its profile, in that order.
func (s *Service) Register(ctx context.Context, in RegisterInput) (result *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerReconciler, "reconciler.Register")
	defer func() {
		telemetry.RecordError(span, err)
		s.deps.Metrics.RecordAttempt(ctx, telemetry.FlowRegister, outcome(err))
		span.End()
	}()

	if s.deps.Authority == nil {
		return nil, autherr.New(autherr.KindInternal, "Registration is not available")
	}

	email := models.NormalizeEmail(in.Email)
	displayName := strings.TrimSpace(in.DisplayName)
	if email == "" || in.Password == "" || displayName == "" {
		return nil, autherr.New(autherr.KindInvalidRequest, "Email, password, and display name are required")
	}

	role, err := auth.ParseRole(in.Role)
	if err != nil {
		return nil, autherr.Wrap(autherr.KindInvalidRequest, "Invalid role", err)
	}
	if role == auth.RoleAdmin && !s.allowAdmin {
		return nil, autherr.New(autherr.KindInvalidRequest, "Admin accounts cannot be self-registered")
	}

	// Phase 1: identity at the authority.
	externalID, err := s.deps.Authority.CreateIdentity(ctx, email, in.Password, displayName)
	if err != nil {
		var rejected *identity.RejectedError
		if errors.As(err, &rejected) {
			return nil, autherr.Wrap(autherr.KindIdentityCreate, rejected.Reason, err)
		}
		return nil, autherr.Wrap(autherr.KindIdentityCreate, "", err)
	}
	span.SetAttributes(attribute.String(telemetry.AttrExternalID, externalID))

	if err := s.deps.Authority.SetRoleClaim(ctx, externalID, role); err != nil {
		log.Printf("registration: set role claim for %s failed, identity kept: %v", externalID, err)
		return nil, autherr.Wrap(autherr.KindRegistrationFailed, "", fmt.Errorf("set role claim: %w", err))
	}

	// Phase 2: profile record.
	profile := &models.Profile{
		ExternalID:  externalID,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
	}
	if err := s.deps.Profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			s.compensate(ctx, externalID, email, err)
			return nil, autherr.Wrap(autherr.KindEmailAlreadyExists, "", err)
		}
		log.Printf("registration: profile store failed for %s, identity %s kept: %v", email, externalID, err)
		return nil, autherr.Wrap(autherr.KindRegistrationFailed, "", err)
	}

	return s.issue(profile)
}

// compensate deletes an identity whose profile could not be created. A failed
// delete goes to the sink and the log, never to the caller.
func (s *Service) compensate(ctx context.Context, externalID, email string, cause error) {
	ctx = context.WithoutCancel(ctx)

	err := s.deps.Authority.DeleteIdentity(ctx, externalID)
	s.deps.Metrics.RecordCompensation(ctx, err == nil)
	telemetry.AddEvent(ctx, "identity.compensated",
		attribute.String(telemetry.AttrExternalID, externalID),
		attribute.Bool("compensation.succeeded", err == nil),
	)
	if err == nil {
		log.Printf("registration: deleted identity %s after profile conflict", externalID)
		return
	}

	log.Printf("registration: compensating delete of identity %s failed: %v", externalID, err)
	event := compensation.Event{
		ExternalID:  externalID,
		Email:       email,
		Reason:      cause.Error(),
		DeleteError: err.Error(),
		OccurredAt:  time.Now().UTC(),
	}
	if sinkErr := s.deps.Sink.Report(ctx, event); sinkErr != nil {
		log.Printf("registration: report orphaned identity %s: %v", externalID, sinkErr)
	}
}

// Login verifies an assertion token and returns the matching profile,
// creating it on first sight.
func (s *Service) Login(ctx context.Context, token string) (result *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerReconciler, "reconciler.Login")
	defer func() {
		telemetry.RecordError(span, err)
		s.deps.Metrics.RecordAttempt(ctx, telemetry.FlowLogin, outcome(err))
		span.End()
	}()

	if strings.TrimSpace(token) == "" {
		return nil, autherr.New(autherr.KindInvalidRequest, "ID token is required")
	}

	assertion, err := s.deps.Verifier.Verify(ctx, token)
	if err != nil {
		return nil, autherr.Wrap(autherr.KindInvalidCredential, "", err)
	}
	span.SetAttributes(attribute.String(telemetry.AttrExternalID, assertion.ExternalID))

	profile, err := s.deps.Profiles.FindByExternalID(ctx, assertion.ExternalID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		profile, err = s.synthesize(ctx, telemetry.FlowLogin, &models.Profile{
			ExternalID:  assertion.ExternalID,
			Email:       assertion.Email,
			DisplayName: assertion.DisplayName,
			PhotoURL:    assertion.PhotoURL,
			Role:        claimedRole(assertion),
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, autherr.Wrap(autherr.KindInternal, "", err)
	}

	return s.issue(profile)
}

// FederatedLogin returns the profile for a federated identity, creating it
// with the default role on first sight. Existing profiles are never modified.
func (s *Service) FederatedLogin(ctx context.Context, in FederatedInput) (result *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerReconciler, "reconciler.FederatedLogin")
	defer func() {
		telemetry.RecordError(span, err)
		s.deps.Metrics.RecordAttempt(ctx, telemetry.FlowFederated, outcome(err))
		span.End()
	}()

	if s.deps.Federated != nil {
		if strings.TrimSpace(in.IDToken) == "" {
			return nil, autherr.New(autherr.KindInvalidRequest, "ID token is required")
		}
		assertion, err := s.deps.Federated.Verify(ctx, in.IDToken)
		if err != nil {
			return nil, autherr.Wrap(autherr.KindFederatedAuthFailed, "", err)
		}
		in.ExternalID = assertion.ExternalID
		in.Email = assertion.Email
		if assertion.DisplayName != "" {
			in.DisplayName = assertion.DisplayName
		}
		if assertion.PhotoURL != "" {
			in.PhotoURL = assertion.PhotoURL
		}
	} else if !s.trustUnverified {
		return nil, autherr.New(autherr.KindFederatedAuthFailed, "Federated sign-in is not configured")
	}

	if strings.TrimSpace(in.ExternalID) == "" || strings.TrimSpace(in.Email) == "" {
		return nil, autherr.New(autherr.KindInvalidRequest, "External id and email are required")
	}
	span.SetAttributes(attribute.String(telemetry.AttrExternalID, in.ExternalID))

	profile, err := s.deps.Profiles.FindByExternalID(ctx, in.ExternalID)
	switch {
	case err == nil:
		return s.issue(profile)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, autherr.Wrap(autherr.KindFederatedAuthFailed, "", err)
	}

	profile, err = s.synthesize(ctx, telemetry.FlowFederated, &models.Profile{
		ExternalID:  in.ExternalID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		PhotoURL:    in.PhotoURL,
		Role:        auth.RoleDefault,
	})
	if err != nil {
		return nil, err
	}

	if s.deps.Authority != nil {
		err := s.deps.Authority.SetRoleClaim(ctx, profile.ExternalID, profile.Role)
		switch {
		case err == nil:
		case errors.Is(err, identity.ErrIdentityNotFound):
			// Held by the federated provider, not the local authority.
			log.Printf("federated: identity %s not administered locally, role claim not set", profile.ExternalID)
		default:
			return nil, autherr.Wrap(autherr.KindFederatedAuthFailed, "", fmt.Errorf("set role claim: %w", err))
		}
	}

	return s.issue(profile)
}

// Profile returns the profile for an authenticated external id.
func (s *Service) Profile(ctx context.Context, externalID string) (*models.PublicProfile, error) {
	profile, err := s.deps.Profiles.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, autherr.Wrap(autherr.KindNotFound, "", err)
		}
		return nil, autherr.Wrap(autherr.KindInternal, "Failed to get current user", err)
	}
	public := profile.Public()
	return &public, nil
}

// synthesize persists a profile for a verified identity seen for the first
// time. Losing a concurrent insert for the same external id returns the
// winner's record.
func (s *Service) synthesize(ctx context.Context, flow string, profile *models.Profile) (*models.Profile, error) {
	if strings.TrimSpace(profile.DisplayName) == "" {
		profile.DisplayName = DefaultDisplayName
	}

	err := s.deps.Profiles.Create(ctx, profile)
	if err == nil {
		s.deps.Metrics.RecordSynthesized(ctx, flow)
		telemetry.AddEvent(ctx, "profile.synthesized",
			attribute.String(telemetry.AttrExternalID, profile.ExternalID),
			attribute.String(telemetry.AttrRole, string(profile.Role)),
		)
		log.Printf("%s: created profile for %s with role %s", flow, profile.ExternalID, profile.Role)
		return profile, nil
	}

	failed := autherr.KindInternal
	if flow == telemetry.FlowFederated {
		failed = autherr.KindFederatedAuthFailed
	}

	if errors.Is(err, repository.ErrUniqueViolation) {
		existing, findErr := s.deps.Profiles.FindByExternalID(ctx, profile.ExternalID)
		if findErr == nil {
			return existing, nil
		}
		// The email belongs to a different external id.
		return nil, autherr.Wrap(autherr.KindEmailAlreadyExists, "", err)
	}
	return nil, autherr.Wrap(failed, "", err)
}

func (s *Service) issue(profile *models.Profile) (*Result, error) {
	credential, err := s.deps.Credentials.Issue(profile.ExternalID, profile.Email, profile.Role)
	if err != nil {
		return nil, autherr.Wrap(autherr.KindInternal, "", err)
	}
	return &Result{Profile: profile.Public(), SessionCredential: credential}, nil
}

// claimedRole maps an upstream role claim into the enumeration. Absent or
// unknown claims yield the default role.
func claimedRole(assertion identity.Assertion) auth.Role {
	if assertion.RoleClaim == "" {
		return auth.RoleDefault
	}
	role, err := auth.ParseRole(assertion.RoleClaim)
	if err != nil {
		log.Printf("login: ignoring role claim for %s: %v", assertion.ExternalID, err)
		return auth.RoleDefault
	}
	return role
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(autherr.From(err).Code())
}
