package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() (*Cache, *MemoryScope, *MemoryScope) {
	durable, tab := NewMemoryScope(), NewMemoryScope()
	return NewCache(durable, tab), durable, tab
}

func sampleResult() *AuthResult {
	return &AuthResult{
		Message: "Login successful",
		User: Profile{
			ExternalID:  "u1",
			Email:       "b@x.com",
			DisplayName: "User",
			Role:        "beneficiary",
			PhoneNumber: "555-0100",
		},
		SessionCredential: "cred-u1",
	}
}

func TestCache_PersistSelectsScope(t *testing.T) {
	tests := []struct {
		name       string
		rememberMe bool
	}{
		{name: "remember me uses durable scope", rememberMe: true},
		{name: "otherwise tab scope", rememberMe: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, durable, tab := newTestCache()
			require.NoError(t, cache.Persist(sampleResult(), tt.rememberMe))

			written, untouched := tab, durable
			if tt.rememberMe {
				written, untouched = durable, tab
			}

			token, ok, _ := written.Get(TokenKey)
			assert.True(t, ok)
			assert.Equal(t, "cred-u1", token)
			raw, ok, _ := written.Get(UserKey)
			assert.True(t, ok)
			assert.JSONEq(t, `{"externalId":"u1","email":"b@x.com","displayName":"User","role":"beneficiary","photoURL":""}`, raw)

			_, ok, _ = untouched.Get(TokenKey)
			assert.False(t, ok)
		})
	}
}

func TestCache_PersistRequiresCredential(t *testing.T) {
	cache, _, _ := newTestCache()
	assert.Error(t, cache.Persist(nil, false))
	assert.Error(t, cache.Persist(&AuthResult{}, true))
}

func TestCache_LoadPrefersDurable(t *testing.T) {
	cache, _, tab := newTestCache()

	_, _, err := cache.Load()
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, cache.Persist(sampleResult(), false))
	token, snap, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, "cred-u1", token)
	require.NotNil(t, snap)
	assert.Equal(t, "u1", snap.ExternalID)

	durableResult := sampleResult()
	durableResult.SessionCredential = "cred-durable"
	durableResult.User.DisplayName = "Durable"
	require.NoError(t, cache.Persist(durableResult, true))

	token, snap, err = cache.Load()
	require.NoError(t, err)
	assert.Equal(t, "cred-durable", token)
	assert.Equal(t, "Durable", snap.DisplayName)

	v, _, _ := tab.Get(TokenKey)
	assert.Equal(t, "cred-u1", v)
}

func TestCache_Clear(t *testing.T) {
	cache, durable, tab := newTestCache()
	require.NoError(t, cache.Persist(sampleResult(), true))
	require.NoError(t, cache.Persist(sampleResult(), false))

	require.NoError(t, cache.Clear())

	for _, scope := range []*MemoryScope{durable, tab} {
		_, ok, _ := scope.Get(TokenKey)
		assert.False(t, ok)
		_, ok, _ = scope.Get(UserKey)
		assert.False(t, ok)
	}
	_, _, err := cache.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}
