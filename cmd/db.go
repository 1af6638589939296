package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"github.com/medreach/identitybridge/internal/db/bunx"
	"github.com/medreach/identitybridge/internal/migrations"
)

// withMigrator opens the configured database and hands fn a migrator over the
// embedded migrations. When locked is set the migration lock is held while fn
// runs.
func withMigrator(ctx context.Context, locked bool, fn func(context.Context, *migrate.Migrator) error) error {
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL, cfg.MaxDBConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer bunx.Close(db)

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if locked {
		if err := migrator.Lock(ctx); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		defer func() {
			if err := migrator.Unlock(ctx); err != nil {
				log.Printf("Warning: failed to release migration lock: %v", err)
			}
		}()
	}
	return fn(ctx, migrator)
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Manage the profile and identity schema.`,
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create migration bookkeeping tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(context.Background(), false, func(ctx context.Context, m *migrate.Migrator) error {
			if err := m.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize migrator: %w", err)
			}
			log.Printf("Migration tables initialized")
			return nil
		})
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(context.Background(), true, func(ctx context.Context, m *migrate.Migrator) error {
			if err := m.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize migrator: %w", err)
			}
			group, err := m.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if group.IsZero() {
				log.Printf("Schema is up to date")
				return nil
			}
			log.Printf("Applied %s", group)
			return nil
		})
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(context.Background(), false, func(ctx context.Context, m *migrate.Migrator) error {
			ms, err := m.MigrationsWithStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			for _, mig := range ms {
				state := "pending"
				if mig.IsApplied() {
					state = fmt.Sprintf("applied (group %d)", mig.GroupID)
				}
				log.Printf("%-40s %s", mig.Name, state)
			}
			if unapplied := ms.Unapplied(); len(unapplied) > 0 {
				log.Printf("%d pending", len(unapplied))
			}
			return nil
		})
	},
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the last migration group",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(context.Background(), true, func(ctx context.Context, m *migrate.Migrator) error {
			group, err := m.Rollback(ctx)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			if group.IsZero() {
				log.Printf("Nothing to roll back")
				return nil
			}
			log.Printf("Rolled back %s", group)
			return nil
		})
	},
}

var dbLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Acquire the migration lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(context.Background(), false, func(ctx context.Context, m *migrate.Migrator) error {
			if err := m.Lock(ctx); err != nil {
				return fmt.Errorf("failed to acquire migration lock: %w", err)
			}
			log.Printf("Migration lock held; release it with 'db unlock'")
			return nil
		})
	},
}

var dbUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Force release the migration lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(context.Background(), false, func(ctx context.Context, m *migrate.Migrator) error {
			if err := m.Unlock(ctx); err != nil {
				return fmt.Errorf("failed to release migration lock: %w", err)
			}
			log.Printf("Migration lock released")
			return nil
		})
	},
}

func init() {
	dbCmd.AddCommand(dbInitCmd, dbMigrateCmd, dbStatusCmd, dbRollbackCmd, dbLockCmd, dbUnlockCmd)
	rootCmd.AddCommand(dbCmd)
}
