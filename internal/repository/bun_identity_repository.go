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

// BunIdentityRepository implements IdentityRepository using Bun ORM
type BunIdentityRepository struct {
	db *bun.DB
}

// NewBunIdentityRepository creates a new Bun-based identity repository
func NewBunIdentityRepository(db *bun.DB) *BunIdentityRepository {
	return &BunIdentityRepository{db: db}
}

// Create inserts a new identity
func (r *BunIdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	identity.Email = models.NormalizeEmail(identity.Email)
	if identity.ID == "" {
		identity.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	identity.CreatedAt = now
	identity.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(identity).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create identity: %w: %w", ErrUniqueViolation, err)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// GetByID retrieves an identity by id
func (r *BunIdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	identity := new(models.Identity)
	err := r.db.NewSelect().
		Model(identity).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get identity by ID: %w", err)
	}
	return identity, nil
}

// GetByEmail retrieves an identity by email
func (r *BunIdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	identity := new(models.Identity)
	err := r.db.NewSelect().
		Model(identity).
		Where("email = ?", models.NormalizeEmail(email)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity with email %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("get identity by email: %w", err)
	}
	return identity, nil
}

// SetRoleClaim updates the role claim attached to an identity
func (r *BunIdentityRepository) SetRoleClaim(ctx context.Context, id string, role string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Identity)(nil)).
		Set("role_claim = ?", role).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set role claim: %w", err)
	}
	return requireRow(result, "identity", id)
}

// Delete removes an identity
func (r *BunIdentityRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Identity)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return requireRow(result, "identity", id)
}

func requireRow(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
