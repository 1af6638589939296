package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/medreach/identitybridge/internal/auth"
	"github.com/medreach/identitybridge/internal/compensation"
	"github.com/medreach/identitybridge/internal/db/models"
	"github.com/medreach/identitybridge/internal/identity"
	"github.com/medreach/identitybridge/internal/repository"
)

// fakeAuthority accepts duplicate emails so the profile store is the only
// uniqueness arbiter, matching an authority that has drifted from the store.
type fakeAuthority struct {
	mu         sync.Mutex
	seq        int
	identities map[string]string // external id -> email
	claims     map[string]auth.Role
	deleted    []string

	createErr error
	claimErr  error
	deleteErr error
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		identities: make(map[string]string),
		claims:     make(map[string]auth.Role),
	}
}

func (a *fakeAuthority) CreateIdentity(_ context.Context, email, _, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createErr != nil {
		return "", a.createErr
	}
	a.seq++
	id := fmt.Sprintf("ext-%d", a.seq)
	a.identities[id] = email
	return id, nil
}

func (a *fakeAuthority) SetRoleClaim(_ context.Context, externalID string, role auth.Role) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claimErr != nil {
		return a.claimErr
	}
	if _, ok := a.identities[externalID]; !ok {
		return fmt.Errorf("set role claim: %w", identity.ErrIdentityNotFound)
	}
	a.claims[externalID] = role
	return nil
}

func (a *fakeAuthority) DeleteIdentity(_ context.Context, externalID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleteErr != nil {
		return a.deleteErr
	}
	delete(a.identities, externalID)
	delete(a.claims, externalID)
	a.deleted = append(a.deleted, externalID)
	return nil
}

func (a *fakeAuthority) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.identities)
}

func (a *fakeAuthority) exists(externalID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.identities[externalID]
	return ok
}

// fakeVerifier maps tokens to assertions
type fakeVerifier struct {
	assertions map[string]identity.Assertion
}

func (v *fakeVerifier) Verify(_ context.Context, token string) (identity.Assertion, error) {
	assertion, ok := v.assertions[token]
	if !ok {
		return identity.Assertion{}, fmt.Errorf("%w: token expired", identity.ErrInvalidToken)
	}
	return assertion, nil
}

// memoryProfiles enforces uniqueness on external id and email
type memoryProfiles struct {
	mu         sync.Mutex
	byExternal map[string]*models.Profile
	emails     map[string]string
	creates    int
	lookups    int

	createErr error
	findErr   error
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{
		byExternal: make(map[string]*models.Profile),
		emails:     make(map[string]string),
	}
}

func (m *memoryProfiles) Create(_ context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	profile.Normalize()
	if _, ok := m.byExternal[profile.ExternalID]; ok {
		return fmt.Errorf("create profile: %w", repository.ErrUniqueViolation)
	}
	if _, ok := m.emails[profile.Email]; ok {
		return fmt.Errorf("create profile: %w", repository.ErrUniqueViolation)
	}
	now := time.Now().UTC()
	profile.ID = fmt.Sprintf("profile-%d", len(m.byExternal)+1)
	profile.CreatedAt = now
	profile.UpdatedAt = now

	stored := *profile
	m.byExternal[profile.ExternalID] = &stored
	m.emails[profile.Email] = profile.ExternalID
	m.creates++
	return nil
}

func (m *memoryProfiles) FindByExternalID(_ context.Context, externalID string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.findErr != nil {
		return nil, m.findErr
	}
	profile, ok := m.byExternal[externalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *profile
	return &out, nil
}

func (m *memoryProfiles) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	m.mu.Lock()
	externalID, ok := m.emails[models.NormalizeEmail(email)]
	m.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.FindByExternalID(ctx, externalID)
}

func (m *memoryProfiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byExternal)
}

type fakeIssuer struct {
	err error
}

func (f fakeIssuer) Issue(externalID, _ string, role auth.Role) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "cred-" + externalID + "-" + string(role), nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []compensation.Event
}

func (s *recordingSink) Report(_ context.Context, event compensation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

var errStoreDown = errors.New("store unavailable")

type fixture struct {
	authority *fakeAuthority
	verifier  *fakeVerifier
	profiles  *memoryProfiles
	sink      *recordingSink
	service   *Service
}

func newFixture() *fixture {
	f := &fixture{
		authority: newFakeAuthority(),
		verifier:  &fakeVerifier{assertions: make(map[string]identity.Assertion)},
		profiles:  newMemoryProfiles(),
		sink:      &recordingSink{},
	}
	f.service = NewService(Dependencies{
		Authority:   f.authority,
		Verifier:    f.verifier,
		Profiles:    f.profiles,
		Credentials: fakeIssuer{},
		Sink:        f.sink,
	})
	return f
}
