package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/medreach/identitybridge/internal/compensation"
	"github.com/medreach/identitybridge/internal/config"
	"github.com/medreach/identitybridge/internal/db/bunx"
)

var (
	orphansLimit int64
	orphansMax   int
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Work the queue of identities whose compensating delete failed",
}

func openOrphanQueue() (*compensation.RedisSink, func(), error) {
	if cfg.Compensation.RedisAddr == "" {
		return nil, nil, errors.New("compensation.redis_addr is not configured")
	}
	client, err := compensation.NewRedisClient(cfg.Compensation.RedisAddr, cfg.Compensation.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	return compensation.NewRedisSink(client, cfg.Compensation.RedisKey), func() { _ = client.Close() }, nil
}

var orphansListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show pending orphaned identities, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		queue, closeQueue, err := openOrphanQueue()
		if err != nil {
			return err
		}
		defer closeQueue()

		events, err := queue.Pending(context.Background(), orphansLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			log.Printf("No orphaned identities")
			return nil
		}
		for _, e := range events {
			log.Printf("%s  %s  %s  (%s: %s)", e.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), e.ExternalID, e.Email, e.Reason, e.DeleteError)
		}
		return nil
	},
}

var orphansRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-attempt the delete of queued orphaned identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Identity.Mode != config.IdentityModeLocal {
			return fmt.Errorf("orphans retry needs an administrable identity authority (identity.mode=%s)", config.IdentityModeLocal)
		}

		queue, closeQueue, err := openOrphanQueue()
		if err != nil {
			return err
		}
		defer closeQueue()

		ctx := context.Background()
		db, err := bunx.NewDB(ctx, cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		result, err := compensation.Retry(ctx, queue, newLocalAuthority(cfg, db), orphansMax)
		if err != nil {
			return err
		}
		log.Printf("deleted=%d already_gone=%d requeued=%d more_pending=%t",
			result.Deleted, result.Gone, result.Requeued, result.Remaining)
		return nil
	},
}

func init() {
	orphansListCmd.Flags().Int64Var(&orphansLimit, "limit", 50, "Maximum entries to show")
	orphansRetryCmd.Flags().IntVar(&orphansMax, "max", 100, "Maximum entries to process")
	orphansCmd.AddCommand(orphansListCmd, orphansRetryCmd)
	rootCmd.AddCommand(orphansCmd)
}
