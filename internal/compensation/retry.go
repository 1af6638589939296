package compensation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/medreach/identitybridge/internal/identity"
)

// Deleter removes identities at the authority.
type Deleter interface {
	DeleteIdentity(ctx context.Context, externalID string) error
}

// RetryResult summarises a Retry pass.
type RetryResult struct {
	Deleted   int
	Gone      int
	Requeued  int
	Remaining bool
}

// Retry takes up to max reports from queue and re-attempts each delete.
// Identities already gone count as resolved. Failed deletes go back on the
// queue with the new error once the pass is over, so one pass never sees the
// same report twice.
func Retry(ctx context.Context, queue *RedisSink, deleter Deleter, max int) (RetryResult, error) {
	var (
		result RetryResult
		failed []Event
	)
	for i := 0; i < max; i++ {
		event, err := queue.Next(ctx)
		if err != nil {
			return result, requeue(ctx, queue, failed, &result, err)
		}
		if event == nil {
			break
		}

		err = deleter.DeleteIdentity(ctx, event.ExternalID)
		switch {
		case err == nil:
			result.Deleted++
			log.Printf("compensation: deleted orphaned identity %s", event.ExternalID)
		case errors.Is(err, identity.ErrIdentityNotFound):
			result.Gone++
		default:
			event.DeleteError = err.Error()
			event.OccurredAt = time.Now().UTC()
			failed = append(failed, *event)
		}
	}

	if err := requeue(ctx, queue, failed, &result, nil); err != nil {
		return result, err
	}

	pending, err := queue.Pending(ctx, 1)
	if err != nil {
		return result, err
	}
	result.Remaining = len(pending) > 0
	return result, nil
}

// requeue pushes failed reports back and joins any push error with cause.
func requeue(ctx context.Context, queue *RedisSink, failed []Event, result *RetryResult, cause error) error {
	for _, event := range failed {
		if err := queue.Report(ctx, event); err != nil {
			return errors.Join(cause, fmt.Errorf("requeue orphan %s: %w", event.ExternalID, err))
		}
		result.Requeued++
	}
	return cause
}
