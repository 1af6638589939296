package cmd

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/uptrace/bun"

	"github.com/medreach/identitybridge/internal/compensation"
	"github.com/medreach/identitybridge/internal/config"
	"github.com/medreach/identitybridge/internal/identity"
	"github.com/medreach/identitybridge/internal/repository"
	"github.com/medreach/identitybridge/internal/server"
	"github.com/medreach/identitybridge/internal/services/gate"
	"github.com/medreach/identitybridge/internal/services/reconciler"
	"github.com/medreach/identitybridge/internal/telemetry"
)

// app holds the wired collaborators for the serve command.
type app struct {
	router  server.RouterOptions
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

// buildApp wires the identity stack selected by cfg on top of db.
func buildApp(ctx context.Context, cfg *config.Config, db *bun.DB) (*app, error) {
	a := &app{}

	metrics, err := telemetry.NewAuthMetrics()
	if err != nil {
		return nil, fmt.Errorf("create auth metrics: %w", err)
	}

	sessions := identity.NewSessionIssuer(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TTL)
	deps := reconciler.Dependencies{
		Profiles:    repository.NewBunProfileRepository(db),
		Credentials: sessions,
		Metrics:     metrics,
	}

	var upstream identity.Verifier
	switch cfg.Identity.Mode {
	case config.IdentityModeLocal:
		local := newLocalAuthority(cfg, db)
		deps.Authority = local
		upstream = local
		a.router.SignIn = local
		log.Printf("Identity mode: local")
	case config.IdentityModeOIDC:
		verifier, err := identity.NewOIDCVerifier(cfg.Identity.OIDCIssuer, cfg.Identity.OIDCAudience, cfg.Identity.RoleClaim)
		if err != nil {
			return nil, err
		}
		upstream = verifier
		log.Printf("Identity mode: oidc (issuer=%s, role claim=%s)", cfg.Identity.OIDCIssuer, cfg.Identity.RoleClaim)
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Identity.Mode)
	}
	deps.Verifier = upstream

	if cfg.Federated.Enabled() {
		federated, err := identity.NewFederatedVerifier(ctx, cfg.Federated.Issuer, cfg.Federated.ClientID)
		if err != nil {
			return nil, err
		}
		deps.Federated = federated
		log.Printf("Federated ID tokens verified against %s", cfg.Federated.Issuer)
	} else if cfg.Federated.AllowUnverified {
		log.Printf("WARNING: federated.allow_unverified is set, /api/auth/google trusts its request body")
	} else {
		log.Printf("Federated sign-in not configured, /api/auth/google rejects requests")
	}

	sink, closers, err := newCompensationSink(cfg.Compensation)
	if err != nil {
		a.closers = closers
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closers...)
	deps.Sink = sink

	svc := reconciler.NewService(deps).WithAdminRegistration(cfg.Registration.AllowAdmin).
		WithUnverifiedFederated(cfg.Federated.AllowUnverified)

	corsCfg := server.DefaultCORSOptions()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.CORS.AllowedOrigins
	}

	a.router.Identity = svc
	a.router.Authenticator = gate.New(gate.Sessions(sessions), gate.Assertions(upstream)).WithMetrics(metrics)
	a.router.CORSOptions = &corsCfg
	return a, nil
}

// newLocalAuthority builds the database-backed identity authority. Its
// assertions use a distinct issuer so they are never mistaken for sessions.
func newLocalAuthority(cfg *config.Config, db *bun.DB) *identity.LocalAuthority {
	return identity.NewLocalAuthority(
		repository.NewBunIdentityRepository(db),
		cfg.Identity.AssertionSecret,
		cfg.Session.Issuer+"-identity",
		cfg.Identity.AssertionTTL,
	)
}

// newCompensationSink always logs and additionally publishes to the brokers
// configured in cfg.
func newCompensationSink(cfg config.CompensationConfig) (compensation.Sink, []io.Closer, error) {
	sinks := compensation.Multi{compensation.LogSink{}}
	var closers []io.Closer

	if cfg.AMQPURL != "" {
		publisher, err := compensation.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, closers, fmt.Errorf("compensation amqp sink: %w", err)
		}
		closers = append(closers, publisher)
		sinks = append(sinks, compensation.NewAMQPSink(publisher))
		log.Printf("Orphaned identities published to exchange %s", cfg.AMQPExchange)
	}

	if cfg.RedisAddr != "" {
		client, err := compensation.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, closers, fmt.Errorf("compensation redis sink: %w", err)
		}
		closers = append(closers, client)
		sinks = append(sinks, compensation.NewRedisSink(client, cfg.RedisKey))
		log.Printf("Orphaned identities pushed to redis list %s", cfg.RedisKey)
	}

	return sinks, closers, nil
}
