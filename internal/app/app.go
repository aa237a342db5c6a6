// Package app builds the registry services from configuration. The server and
// the operator CLI share it so both act on the same stores.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"magbot/internal/collateral/resolver"
	collateral "magbot/internal/collateral/service"
	collateralstore "magbot/internal/collateral/store"
	collateralmemory "magbot/internal/collateral/store/memory"
	collateralpostgres "magbot/internal/collateral/store/postgres"
	"magbot/internal/deployment"
	"magbot/internal/platform/config"
	"magbot/internal/platform/metrics"
	"magbot/internal/platform/postgres"
	"magbot/internal/platform/redis"
	verification "magbot/internal/verification/service"
	verificationstore "magbot/internal/verification/store"
	verificationmemory "magbot/internal/verification/store/memory"
	verificationpostgres "magbot/internal/verification/store/postgres"
	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
	"magbot/pkg/platform/audit/publisher"
	auditmemory "magbot/pkg/platform/audit/store/memory"
	auditpostgres "magbot/pkg/platform/audit/store/postgres"
)

// App holds the wired registries and the resources behind them.
type App struct {
	Config       config.Server
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Verification *verification.Service
	Collateral   *collateral.Service
	AddressBook  *deployment.AddressBook
	Deployer     *deployment.Deployer

	// DB is nil when running on the in-memory stores.
	DB *sql.DB
	// Outbox is set with DB and feeds the audit relay.
	Outbox *auditpostgres.Store
	// Redis is nil when the credential cache is disabled.
	Redis *redis.Client

	publisher *publisher.Publisher
}

// Options tune what Build wires.
type Options struct {
	Registerer prometheus.Registerer
	// RequireDatabase fails Build when no DATABASE_URL is configured instead
	// of falling back to the in-memory stores.
	RequireDatabase bool
}

// Build connects the configured backends and wires both registries.
func Build(ctx context.Context, cfg config.Server, logger *slog.Logger, opts Options) (*App, error) {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	a := &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics.New(opts.Registerer),
		AddressBook: deployment.NewAddressBook(cfg.Registry.AddressBookDir, cfg.Registry.ChainID),
	}

	var (
		sbtStore   verificationstore.Store
		collStore  collateralstore.Store
		auditStore audit.Store
	)
	switch {
	case cfg.DatabaseURL != "":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.DB = db
		a.Outbox = auditpostgres.New(db)
		sbtStore = verificationpostgres.New(db)
		collStore = collateralpostgres.New(db)
		auditStore = a.Outbox
	case opts.RequireDatabase:
		return nil, errors.New("DATABASE_URL is required")
	default:
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		sbtStore = verificationmemory.New()
		collStore = collateralmemory.New()
		auditStore = auditmemory.NewInMemoryStore()
	}

	a.publisher = publisher.NewPublisher(auditStore,
		publisher.WithLogger(logger),
		publisher.WithMetrics(publisher.NewMetrics(opts.Registerer)),
	)

	var credentials collateral.CredentialResolver = resolver.NewVerification(sbtStore)
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client != nil {
		a.Redis = client
		credentials = resolver.NewCached(resolver.NewVerification(sbtStore), client, cfg.Redis.CacheTTL,
			resolver.WithLogger(logger),
			resolver.WithMetrics(a.Metrics),
		)
	}

	a.Verification = verification.New(sbtStore,
		verification.WithLogger(logger),
		verification.WithAuditPublisher(a.publisher),
		verification.WithMetrics(a.Metrics),
	)
	a.Collateral = collateral.New(collStore, credentials,
		collateral.WithLogger(logger),
		collateral.WithAuditPublisher(a.publisher),
		collateral.WithMetrics(a.Metrics),
	)
	a.Deployer = deployment.NewDeployer(a.AddressBook, a.Verification, a.Collateral, deployment.WithLogger(logger))
	return a, nil
}

// Instances returns both recorded instance addresses.
func (a *App) Instances() (sbt, coll domain.Account, err error) {
	if sbt, err = a.AddressBook.Lookup(deployment.KeyVerification); err != nil {
		return domain.ZeroAccount, domain.ZeroAccount, err
	}
	if coll, err = a.AddressBook.Lookup(deployment.KeyCollateral); err != nil {
		return domain.ZeroAccount, domain.ZeroAccount, err
	}
	return sbt, coll, nil
}

// Close releases every backend Build opened.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("close database", "error", err)
		}
	}
}
