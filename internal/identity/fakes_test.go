package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/medreach/identitybridge/internal/db/models"
	"github.com/medreach/identitybridge/internal/repository"
)

// memoryIdentities is an in-memory IdentityRepository
type memoryIdentities struct {
	mu      sync.Mutex
	byID    map[string]*models.Identity
	byEmail map[string]string
}

func newMemoryIdentities() *memoryIdentities {
	return &memoryIdentities{
		byID:    make(map[string]*models.Identity),
		byEmail: make(map[string]string),
	}
}

func (m *memoryIdentities) Create(_ context.Context, identity *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity.Email = models.NormalizeEmail(identity.Email)
	if _, ok := m.byEmail[identity.Email]; ok {
		return fmt.Errorf("create identity: %w", repository.ErrUniqueViolation)
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	stored := *identity
	m.byID[identity.ID] = &stored
	m.byEmail[identity.Email] = identity.ID
	return nil
}

func (m *memoryIdentities) GetByID(_ context.Context, id string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *identity
	return &out, nil
}

func (m *memoryIdentities) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	m.mu.Lock()
	id, ok := m.byEmail[models.NormalizeEmail(email)]
	m.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *memoryIdentities) SetRoleClaim(_ context.Context, id string, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.RoleClaim = &role
	return nil
}

func (m *memoryIdentities) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(m.byEmail, identity.Email)
	delete(m.byID, id)
	return nil
}
