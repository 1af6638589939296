package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreach/identitybridge/internal/auth"
	"github.com/medreach/identitybridge/internal/autherr"
	"github.com/medreach/identitybridge/internal/identity"
)

func TestRegister_Success(t *testing.T) {
	f := newFixture()

	result, err := f.service.Register(context.Background(), RegisterInput{
		Email:       " A@X.com ",
		Password:    "secret1",
		DisplayName: "Alice",
		PhoneNumber: "+15550100",
	})
	require.NoError(t, err)

	assert.Equal(t, "ext-1", result.Profile.ExternalID)
	assert.Equal(t, "a@x.com", result.Profile.Email)
	assert.Equal(t, "Alice", result.Profile.DisplayName)
	assert.Equal(t, auth.RoleBeneficiary, result.Profile.Role)
	assert.Equal(t, "+15550100", result.Profile.PhoneNumber)
	assert.Equal(t, "cred-ext-1-beneficiary", result.SessionCredential)
	assert.Equal(t, auth.RoleBeneficiary, f.authority.claims["ext-1"])
}

func TestRegister_DuplicateEmailCompensates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice"})
	require.NoError(t, err)

	result, err := f.service.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret2", DisplayName: "Alice2"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, autherr.EmailAlreadyExists))

	assert.Equal(t, []string{"ext-2"}, f.authority.deleted)
	assert.False(t, f.authority.exists("ext-2"))
	assert.True(t, f.authority.exists("ext-1"))
	assert.Equal(t, 1, f.profiles.count())
	assert.Empty(t, f.sink.events)
}

func TestRegister_FailedCompensationGoesToSink(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice"})
	require.NoError(t, err)

	f.authority.deleteErr = errors.New("authority unavailable")
	_, err = f.service.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret2", DisplayName: "Alice2"})

	// The original conflict is reported, not the delete failure.
	require.Error(t, err)
	assert.True(t, errors.Is(err, autherr.EmailAlreadyExists))
	assert.NotContains(t, err.Error(), "authority unavailable")

	require.Len(t, f.sink.events, 1)
	event := f.sink.events[0]
	assert.Equal(t, "ext-2", event.ExternalID)
	assert.Equal(t, "a@x.com", event.Email)
	assert.Equal(t, "authority unavailable", event.DeleteError)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestRegister_CompensationSurvivesCancelledContext(t *testing.T) {
	f := newFixture()
	_, err := f.service.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.service.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret2", DisplayName: "Alice2"})
	require.Error(t, err)
	assert.Equal(t, []string{"ext-2"}, f.authority.deleted)
}

func TestRegister_Failures(t *testing.T) {
	tests := []struct {
		name        string
		input       RegisterInput
		setup       func(f *fixture)
		wantKind    *autherr.Error
		wantMessage string
		wantCreated bool // identity left at the authority
	}{
		{
			name:     "missing fields",
			input:    RegisterInput{Email: "a@x.com", DisplayName: "Alice"},
			wantKind: autherr.InvalidRequest,
		},
		{
			name:        "unknown role",
			input:       RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice", Role: "superuser"},
			wantKind:    autherr.InvalidRequest,
			wantMessage: "Invalid role",
		},
		{
			name:     "admin self-registration",
			input:    RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice", Role: "admin"},
			wantKind: autherr.InvalidRequest,
		},
		{
			name:  "authority rejects identity",
			input: RegisterInput{Email: "bad", Password: "secret1", DisplayName: "Alice"},
			setup: func(f *fixture) {
				f.authority.createErr = &identity.RejectedError{Reason: "The email address is improperly formatted."}
			},
			wantKind:    autherr.IdentityCreateError,
			wantMessage: "The email address is improperly formatted.",
		},
		{
			name:  "authority unavailable",
			input: RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice"},
			setup: func(f *fixture) {
				f.authority.createErr = errors.New("connection refused")
			},
			wantKind:    autherr.IdentityCreateError,
			wantMessage: "Identity creation failed",
		},
		{
			name:  "role claim fails without rollback",
			input: RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice"},
			setup: func(f *fixture) {
				f.authority.claimErr = errors.New("claims quota exceeded")
			},
			wantKind:    autherr.RegistrationFailed,
			wantCreated: true,
		},
		{
			name:  "store failure without compensation",
			input: RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice"},
			setup: func(f *fixture) {
				f.profiles.createErr = errStoreDown
			},
			wantKind:    autherr.RegistrationFailed,
			wantMessage: "Registration failed",
			wantCreated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			result, err := f.service.Register(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, tt.wantKind), "got %v", err)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, autherr.From(err).Message)
			}
			assert.Equal(t, tt.wantCreated, f.authority.count() == 1)
			assert.Empty(t, f.authority.deleted)
			assert.Zero(t, f.profiles.count())
		})
	}
}

func TestRegister_AdminAllowedWhenEnabled(t *testing.T) {
	f := newFixture()
	f.service.WithAdminRegistration(true)

	result, err := f.service.Register(context.Background(), RegisterInput{
		Email: "root@x.com", Password: "secret1", DisplayName: "Root", Role: "ADMIN",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, result.Profile.Role)
	assert.Equal(t, auth.RoleAdmin, f.authority.claims[result.Profile.ExternalID])
}

func TestRegister_UnavailableWithoutAuthority(t *testing.T) {
	service := NewService(Dependencies{Profiles: newMemoryProfiles(), Credentials: fakeIssuer{}})
	assert.False(t, service.CanRegister())

	_, err := service.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice"})
	assert.True(t, errors.Is(err, autherr.Internal))
}

// Two simultaneous registrations with one email: exactly one wins and the
// loser's identity does not survive.
func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newFixture()
	const attempts = 8

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Register(context.Background(), RegisterInput{
				Email: "race@x.com", Password: "secret1", DisplayName: "Racer",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, autherr.EmailAlreadyExists), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.profiles.count())
	assert.Equal(t, 1, f.authority.count())
	assert.Len(t, f.authority.deleted, attempts-1)
}

func TestLogin_SynthesizesProfileOnce(t *testing.T) {
	f := newFixture()
	f.verifier.assertions["token-u1"] = identity.Assertion{ExternalID: "u1", Email: "b@x.com"}
	ctx := context.Background()

	first, err := f.service.Login(ctx, "token-u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", first.Profile.ExternalID)
	assert.Equal(t, "b@x.com", first.Profile.Email)
	assert.Equal(t, "User", first.Profile.DisplayName)
	assert.Equal(t, auth.RoleBeneficiary, first.Profile.Role)
	assert.Equal(t, "cred-u1-beneficiary", first.SessionCredential)

	second, err := f.service.Login(ctx, "token-u1")
	require.NoError(t, err)
	assert.Equal(t, first.Profile, second.Profile)
	assert.Equal(t, 1, f.profiles.creates)
}

func TestLogin_RoleClaim(t *testing.T) {
	tests := []struct {
		claim string
		want  auth.Role
	}{
		{claim: "volunteer", want: auth.RoleVolunteer},
		{claim: "Admin", want: auth.RoleAdmin},
		{claim: "superuser", want: auth.RoleBeneficiary},
		{claim: "", want: auth.RoleBeneficiary},
	}

	for _, tt := range tests {
		t.Run(tt.claim, func(t *testing.T) {
			f := newFixture()
			f.verifier.assertions["token"] = identity.Assertion{
				ExternalID: "u1", Email: "b@x.com", DisplayName: "Bea", RoleClaim: tt.claim,
			}

			result, err := f.service.Login(context.Background(), "token")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Profile.Role)
			assert.Equal(t, "Bea", result.Profile.DisplayName)
		})
	}
}

func TestLogin_ExistingProfileIsAuthoritative(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	registered, err := f.service.Register(ctx, RegisterInput{Email: "v@x.com", Password: "secret1", DisplayName: "Vic", Role: "volunteer"})
	require.NoError(t, err)

	f.verifier.assertions["token"] = identity.Assertion{
		ExternalID: registered.Profile.ExternalID, Email: "v@x.com", DisplayName: "Other", RoleClaim: "admin",
	}
	result, err := f.service.Login(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, registered.Profile, result.Profile)
	assert.Equal(t, "cred-ext-1-volunteer", result.SessionCredential)
}

func TestLogin_Failures(t *testing.T) {
	t.Run("invalid token", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.Login(context.Background(), "expired")
		require.Error(t, err)
		assert.True(t, errors.Is(err, autherr.InvalidCredential))
		assert.Equal(t, "Login failed", autherr.From(err).Message)
		assert.Zero(t, f.profiles.lookups)
	})

	t.Run("empty token", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.Login(context.Background(), "  ")
		assert.True(t, errors.Is(err, autherr.InvalidRequest))
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture()
		f.verifier.assertions["token"] = identity.Assertion{ExternalID: "u1", Email: "b@x.com"}
		f.profiles.findErr = errStoreDown

		_, err := f.service.Login(context.Background(), "token")
		require.Error(t, err)
		assert.True(t, errors.Is(err, autherr.Internal))
		assert.ErrorIs(t, err, errStoreDown)
	})

	t.Run("email owned by another identity", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.Register(context.Background(), RegisterInput{Email: "b@x.com", Password: "secret1", DisplayName: "Bea"})
		require.NoError(t, err)

		f.verifier.assertions["token"] = identity.Assertion{ExternalID: "u9", Email: "b@x.com"}
		_, err = f.service.Login(context.Background(), "token")
		assert.True(t, errors.Is(err, autherr.EmailAlreadyExists))
	})

	t.Run("credential issue failure", func(t *testing.T) {
		f := newFixture()
		f.verifier.assertions["token"] = identity.Assertion{ExternalID: "u1", Email: "b@x.com"}
		f.service.deps.Credentials = fakeIssuer{err: errors.New("signing key missing")}

		result, err := f.service.Login(context.Background(), "token")
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, autherr.Internal))
	})
}

func TestLogin_ConcurrentFirstSight(t *testing.T) {
	f := newFixture()
	f.verifier.assertions["token"] = identity.Assertion{ExternalID: "u1", Email: "b@x.com"}

	var wg sync.WaitGroup
	results := make([]*Result, 6)
	errs := make([]error, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.Login(context.Background(), "token")
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "u1", results[i].Profile.ExternalID)
	}
	assert.Equal(t, 1, f.profiles.count())
}

func TestFederatedLogin_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	input := FederatedInput{ExternalID: "g-1", Email: "g@x.com", DisplayName: "Gia", PhotoURL: "https://img/g.png"}

	first, err := f.service.FederatedLogin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleBeneficiary, first.Profile.Role)
	assert.Equal(t, "https://img/g.png", first.Profile.PhotoURL)

	second, err := f.service.FederatedLogin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.Profile, second.Profile)

	changed := input
	changed.DisplayName = "Someone Else"
	changed.PhotoURL = ""
	third, err := f.service.FederatedLogin(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, first.Profile, third.Profile)

	assert.Equal(t, 1, f.profiles.creates)
}

func TestFederatedLogin_PropagatesDefaultRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// An identity the authority administers.
	externalID, err := f.authority.CreateIdentity(ctx, "g@x.com", "", "Gia")
	require.NoError(t, err)

	_, err = f.service.FederatedLogin(ctx, FederatedInput{ExternalID: externalID, Email: "g@x.com", DisplayName: "Gia"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleBeneficiary, f.authority.claims[externalID])

	// An identity held only by the federated provider.
	result, err := f.service.FederatedLogin(ctx, FederatedInput{ExternalID: "google-only", Email: "o@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "User", result.Profile.DisplayName)
}

func TestFederatedLogin_ClaimFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.authority.claimErr = errors.New("claims quota exceeded")

	result, err := f.service.FederatedLogin(context.Background(), FederatedInput{ExternalID: "g-1", Email: "g@x.com"})
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, autherr.FederatedAuthFailed))
}

func TestFederatedLogin_UnverifiedBodyRejectedWhenNotTrusted(t *testing.T) {
	f := newFixture()
	f.service.WithUnverifiedFederated(false)

	result, err := f.service.FederatedLogin(context.Background(), FederatedInput{ExternalID: "admin-1", Email: "root@x.com"})
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, autherr.FederatedAuthFailed))
	assert.Zero(t, f.profiles.creates)

	// A configured verifier still works.
	f.service.deps.Federated = &fakeVerifier{assertions: map[string]identity.Assertion{
		"google-token": {ExternalID: "g-8", Email: "v@x.com"},
	}}
	result, err = f.service.FederatedLogin(context.Background(), FederatedInput{IDToken: "google-token"})
	require.NoError(t, err)
	assert.Equal(t, "g-8", result.Profile.ExternalID)
}

func TestFederatedLogin_VerifiedToken(t *testing.T) {
	f := newFixture()
	federated := &fakeVerifier{assertions: map[string]identity.Assertion{
		"google-token": {ExternalID: "g-7", Email: "verified@x.com", DisplayName: "Verified"},
	}}
	f.service.deps.Federated = federated
	ctx := context.Background()

	result, err := f.service.FederatedLogin(ctx, FederatedInput{
		ExternalID: "spoofed", Email: "spoofed@x.com", DisplayName: "Spoof", IDToken: "google-token",
	})
	require.NoError(t, err)
	assert.Equal(t, "g-7", result.Profile.ExternalID)
	assert.Equal(t, "verified@x.com", result.Profile.Email)
	assert.Equal(t, "Verified", result.Profile.DisplayName)

	_, err = f.service.FederatedLogin(ctx, FederatedInput{ExternalID: "g-7", Email: "verified@x.com"})
	assert.True(t, errors.Is(err, autherr.InvalidRequest))

	_, err = f.service.FederatedLogin(ctx, FederatedInput{IDToken: "forged"})
	assert.True(t, errors.Is(err, autherr.FederatedAuthFailed))
}

func TestFederatedLogin_RequiresIdentity(t *testing.T) {
	f := newFixture()
	_, err := f.service.FederatedLogin(context.Background(), FederatedInput{Email: "g@x.com"})
	assert.True(t, errors.Is(err, autherr.InvalidRequest))
}

func TestProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	registered, err := f.service.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1", DisplayName: "Alice"})
	require.NoError(t, err)

	profile, err := f.service.Profile(ctx, registered.Profile.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, registered.Profile, *profile)

	_, err = f.service.Profile(ctx, "missing")
	assert.True(t, errors.Is(err, autherr.NotFound))

	f.profiles.findErr = errStoreDown
	_, err = f.service.Profile(ctx, registered.Profile.ExternalID)
	assert.True(t, errors.Is(err, autherr.Internal))
}
