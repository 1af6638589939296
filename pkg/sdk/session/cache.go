package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Storage keys shared with the browser client.
const (
	TokenKey = "medreach_token"
	UserKey  = "medreach_user"
)

// ErrNoSession is returned by Load when neither scope holds a credential.
var ErrNoSession = errors.New("no session")

// Snapshot is the denormalised profile kept next to the credential.
type Snapshot struct {
	ExternalID  string `json:"externalId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	PhotoURL    string `json:"photoURL"`
}

// SnapshotOf projects a profile returned by the bridge.
func SnapshotOf(p Profile) Snapshot {
	return Snapshot{
		ExternalID:  p.ExternalID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		PhotoURL:    p.PhotoURL,
	}
}

// Cache stores the outcome of a register, login or federated login exchange.
type Cache struct {
	durable Scope
	tab     Scope
}

// NewCache returns a Cache over the durable and tab-lifetime scopes.
func NewCache(durable, tab Scope) *Cache {
	return &Cache{durable: durable, tab: tab}
}

// Persist writes the credential and profile snapshot into the durable scope
// when rememberMe is set, otherwise into the tab scope.
func (c *Cache) Persist(result *AuthResult, rememberMe bool) error {
	if result == nil || result.SessionCredential == "" {
		return errors.New("session credential is required")
	}
	scope := c.tab
	if rememberMe {
		scope = c.durable
	}
	if err := scope.Set(TokenKey, result.SessionCredential); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return writeSnapshot(scope, SnapshotOf(result.User))
}

// Load returns the stored credential and snapshot, durable scope first.
func (c *Cache) Load() (string, *Snapshot, error) {
	for _, scope := range []Scope{c.durable, c.tab} {
		token, ok, err := scope.Get(TokenKey)
		if err != nil {
			return "", nil, err
		}
		if !ok || token == "" {
			continue
		}
		snap, err := readSnapshot(scope)
		if err != nil {
			return "", nil, err
		}
		return token, snap, nil
	}
	return "", nil, ErrNoSession
}

// Clear removes the session from both scopes.
func (c *Cache) Clear() error {
	return errors.Join(
		c.durable.Delete(TokenKey, UserKey),
		c.tab.Delete(TokenKey, UserKey),
	)
}

// mirror copies a signed-in snapshot into the tab scope.
func (c *Cache) mirror(snap Snapshot) error {
	return writeSnapshot(c.tab, snap)
}

func writeSnapshot(scope Scope, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := scope.Set(UserKey, string(data)); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func readSnapshot(scope Scope) (*Snapshot, error) {
	raw, ok, err := scope.Get(UserKey)
	if err != nil || !ok {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
