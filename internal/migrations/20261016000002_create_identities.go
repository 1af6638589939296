package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/medreach/identitybridge/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20261016000002, down_20261016000002)
}

// up_20261016000002 creates the identities table used by the local identity authority
func up_20261016000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating identities table...")

	_, err := db.NewCreateTable().
		Model((*models.Identity)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create identities table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20261016000002 drops the identities table
func down_20261016000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping identities table...")

	_, err := db.NewDropTable().
		Model((*models.Identity)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop identities table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
