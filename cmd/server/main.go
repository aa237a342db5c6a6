package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"magbot/internal/app"
	collateralhandler "magbot/internal/collateral/handler"
	"magbot/internal/deployment"
	jwttoken "magbot/internal/jwt_token"
	"magbot/internal/platform/config"
	"magbot/internal/platform/httpserver"
	"magbot/internal/platform/logger"
	"magbot/internal/ratelimit"
	httptransport "magbot/internal/transport/http"
	verificationhandler "magbot/internal/verification/handler"
	"magbot/pkg/domain"
	"magbot/pkg/platform/audit/relay"
)

const (
	shutdownTimeout = 10 * time.Second
	requestTimeout  = 15 * time.Second
	auditPartitions = 3
	jwtAudience     = "magbot-api"
)

// main wires the registries behind the HTTP API and runs the server next to
// the audit relay until a signal arrives.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, log, app.Options{Registerer: reg})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := bootstrap(ctx, a, log); err != nil {
		return err
	}

	jwtValidator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, jwtAudience))
	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Metrics:        a.Metrics,
		Gatherer:       reg,
		Health:         healthChecks(a),
		RequestTimeout: requestTimeout,
		RateLimit:      rateLimiter(a, log),
	},
		verificationhandler.New(a.Verification, log, jwtValidator),
		collateralhandler.New(a.Collateral, log, jwtValidator),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting magbot", "addr", cfg.Addr, "network", cfg.Registry.Network, "chain_id", cfg.Registry.ChainID)
		return httpserver.Serve(gctx, httpserver.New(cfg.Addr, router), shutdownTimeout)
	})

	switch {
	case len(cfg.Kafka.Brokers) == 0:
		log.Info("audit relay disabled, no kafka brokers configured")
	case a.Outbox == nil:
		log.Warn("audit relay disabled, outbox needs DATABASE_URL")
	default:
		client, err := relay.NewClient(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := relay.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, auditPartitions, 1); err != nil {
			return err
		}
		r := relay.New(a.Outbox, client, cfg.Kafka.AuditTopic,
			relay.WithBatchSize(cfg.Kafka.RelayBatch),
			relay.WithInterval(cfg.Kafka.RelayInterval),
			relay.WithLogger(log),
			relay.WithMetrics(relay.NewMetrics(reg)),
		)
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// bootstrap deploys the registry pair when an admin is configured and the
// address book has no verification entry yet.
func bootstrap(ctx context.Context, a *app.App, log *slog.Logger) error {
	if a.Config.Registry.BootstrapAdmin == "" {
		return nil
	}
	_, err := a.AddressBook.Lookup(deployment.KeyVerification)
	if err == nil {
		return nil
	}
	if !errors.Is(err, deployment.ErrNotDeployed) {
		return err
	}
	admin, err := domain.ParseAccount(a.Config.Registry.BootstrapAdmin)
	if err != nil {
		return err
	}
	res, err := a.Deployer.Deploy(ctx, admin)
	if err != nil {
		return err
	}
	log.Info("bootstrapped registries",
		"verification", res.Verification.String(),
		"collateral", res.Collateral.String(),
	)
	return nil
}

// rateLimiter shares windows through Redis when it is configured so limits
// hold across replicas.
func rateLimiter(a *app.App, log *slog.Logger) func(http.Handler) http.Handler {
	cfg := a.Config.RateLimit
	if !cfg.Enabled {
		return nil
	}
	var store ratelimit.Store = ratelimit.NewInMemoryStore()
	if a.Redis != nil {
		store = ratelimit.NewRedisStore(a.Redis.Client)
	}
	return ratelimit.New(store, map[ratelimit.Class]ratelimit.Limit{
		ratelimit.ClassRead:  {Requests: cfg.ReadLimit, Window: cfg.Window},
		ratelimit.ClassWrite: {Requests: cfg.WriteLimit, Window: cfg.Window},
	}, ratelimit.WithLogger(log), ratelimit.WithMetrics(a.Metrics)).Handler
}

func healthChecks(a *app.App) []httptransport.HealthCheck {
	var checks []httptransport.HealthCheck
	if a.DB != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "postgres", Check: a.DB.PingContext})
	}
	if a.Redis != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: a.Redis.Health})
	}
	return checks
}
