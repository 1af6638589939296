package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medreach/identitybridge/internal/db/bunx"
	"github.com/medreach/identitybridge/internal/db/models"
	"github.com/medreach/identitybridge/internal/repository"
)

var (
	profileExternalID string
	profileEmail      string
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect reconciled profile records",
}

var profilesGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print a profile by external id or email",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (profileExternalID == "") == (profileEmail == "") {
			return errors.New("exactly one of --external-id or --email is required")
		}

		ctx := context.Background()
		db, err := bunx.NewDB(ctx, cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		repo := repository.NewBunProfileRepository(db)
		var profile *models.Profile
		if profileExternalID != "" {
			profile, err = repo.FindByExternalID(ctx, profileExternalID)
		} else {
			profile, err = repo.FindByEmail(ctx, profileEmail)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("no profile found")
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile.Public())
	},
}

func init() {
	profilesGetCmd.Flags().StringVar(&profileExternalID, "external-id", "", "External identity id")
	profilesGetCmd.Flags().StringVar(&profileEmail, "email", "", "Profile email")
	profilesCmd.AddCommand(profilesGetCmd)
	rootCmd.AddCommand(profilesCmd)
}
