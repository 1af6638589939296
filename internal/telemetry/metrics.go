package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Auth flows
const (
	FlowRegister  = "register"
	FlowLogin     = "login"
	FlowFederated = "federated"
	FlowGate      = "gate"
)

// AuthMetrics holds the identity bridge's metric instruments.
type AuthMetrics struct {
	Attempts      metric.Int64Counter // outcomes per flow
	Synthesized   metric.Int64Counter // profiles created just in time
	Compensations metric.Int64Counter // compensating deletes by result
}

// NewAuthMetrics registers instruments on the global meter provider.
func NewAuthMetrics() (*AuthMetrics, error) {
	return NewAuthMetricsWith(otel.GetMeterProvider())
}

// NewAuthMetricsWith registers instruments on provider.
func NewAuthMetricsWith(provider metric.MeterProvider) (*AuthMetrics, error) {
	meter := provider.Meter("medreach/identity")

	attempts, err := meter.Int64Counter(
		"identity.auth.attempts",
		metric.WithDescription("Authentication and registration attempts by flow and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	synthesized, err := meter.Int64Counter(
		"identity.profile.synthesized",
		metric.WithDescription("Profiles created on first sight of a verified identity"),
		metric.WithUnit("{profile}"),
	)
	if err != nil {
		return nil, err
	}

	compensations, err := meter.Int64Counter(
		"identity.compensation.count",
		metric.WithDescription("Compensating identity deletes after a failed registration"),
		metric.WithUnit("{delete}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		Attempts:      attempts,
		Synthesized:   synthesized,
		Compensations: compensations,
	}, nil
}

// RecordAttempt counts one attempt. outcome is an error code or "ok".
// A nil receiver records nothing.
func (m *AuthMetrics) RecordAttempt(ctx context.Context, flow, outcome string) {
	if m == nil {
		return
	}
	m.Attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFlow, flow),
		attribute.String(AttrOutcome, outcome),
	))
}

func (m *AuthMetrics) RecordSynthesized(ctx context.Context, flow string) {
	if m == nil {
		return
	}
	m.Synthesized.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrFlow, flow)))
}

// RecordCompensation counts a compensating delete; succeeded is false when
// the identity was orphaned.
func (m *AuthMetrics) RecordCompensation(ctx context.Context, succeeded bool) {
	if m == nil {
		return
	}
	m.Compensations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("compensation.succeeded", succeeded)))
}
