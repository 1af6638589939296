// Package compensation reports identities orphaned by a failed compensating
// delete during registration. The caller of Register never sees these
// failures; an operator reconciles them from the reports.
package compensation

import (
	"context"
	"errors"
	"log"
	"time"
)

// Event describes one orphaned identity.
type Event struct {
	ExternalID  string    `json:"externalId"`
	Email       string    `json:"email"`
	Reason      string    `json:"reason"`
	DeleteError string    `json:"deleteError"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Sink receives orphan reports.
type Sink interface {
	Report(ctx context.Context, event Event) error
}

// LogSink writes reports to the process log.
type LogSink struct{}

func (LogSink) Report(_ context.Context, event Event) error {
	log.Printf("compensation: orphaned identity external_id=%s email=%s reason=%q delete_error=%q",
		event.ExternalID, event.Email, event.Reason, event.DeleteError)
	return nil
}

// Multi fans a report out to every sink. All sinks are tried; their errors
// are joined.
type Multi []Sink

func (m Multi) Report(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Report(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
