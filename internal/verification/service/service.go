// Package service implements the verification registry: one
// non-transferable credential token per account, each bound to a unique
// verification datum.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"magbot/internal/access"
	"magbot/internal/verification/store"
	"magbot/internal/platform/metrics"
	"magbot/internal/registry/base"
	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
)

const registryName = string(audit.RegistryVerification)

// Roles is the verification role table. DefaultAdmin administers itself
// and Backend.
var Roles = access.NewTable(access.BackendRole)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the stateless registry blueprint. All per-instance state lives
// in the store.
type Service struct {
	*base.Registry
	store store.Store
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.Logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.Publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.Metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.Tracer = tracer
	}
}

// New constructs a Service.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		Registry: base.New(audit.RegistryVerification, Roles, st, runRoles(st)),
		store:    st,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func runRoles(st store.Store) base.RunRoles {
	return func(ctx context.Context, instance domain.Account, fn func(ctx context.Context, w access.Writer) error) error {
		return st.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
			return fn(ctx, tx)
		})
	}
}
