package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/medreach/identitybridge/internal/db/bunx"
	"github.com/medreach/identitybridge/internal/db/models"
)

// BunProfileRepository implements ProfileRepository using Bun ORM
type BunProfileRepository struct {
	db *bun.DB
}

// NewBunProfileRepository creates a new Bun-based profile repository
func NewBunProfileRepository(db *bun.DB) *BunProfileRepository {
	return &BunProfileRepository{db: db}
}

// Create normalizes and inserts a profile. The internal ID and timestamps are
// assigned here when unset.
func (r *BunProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	profile.Normalize()
	if !profile.Role.Valid() {
		return fmt.Errorf("create profile: invalid role %q", profile.Role)
	}
	if profile.ID == "" {
		profile.ID = bunx.NewUUIDv7()
	}
	// Stored with microsecond precision.
	now := time.Now().UTC().Truncate(time.Microsecond)
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(profile).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create profile: %w: %w", ErrUniqueViolation, err)
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// FindByExternalID retrieves a profile by the identity authority's id
func (r *BunProfileRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Profile, error) {
	profile := new(models.Profile)
	err := r.db.NewSelect().
		Model(profile).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile with external id %s: %w", externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("get profile by external id: %w", err)
	}
	return profile, nil
}

// FindByEmail retrieves a profile by normalized email
func (r *BunProfileRepository) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	profile := new(models.Profile)
	err := r.db.NewSelect().
		Model(profile).
		Where("email = ?", models.NormalizeEmail(email)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile with email %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("get profile by email: %w", err)
	}
	return profile, nil
}
