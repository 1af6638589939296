package repository

import (
	"context"

	"github.com/medreach/identitybridge/internal/db/models"
)

// ProfileRepository is the profile store collaborator. It enforces uniqueness
// on external id and email and reports violations as ErrUniqueViolation.
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	FindByExternalID(ctx context.Context, externalID string) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
}

// IdentityRepository persists the built-in identity authority's records.
type IdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	SetRoleClaim(ctx context.Context, id string, role string) error
	Delete(ctx context.Context, id string) error
}
