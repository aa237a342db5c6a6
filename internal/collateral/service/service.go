// Package service implements the collateral registry. A collateral token
// may only be minted for an account holding a credential in the linked
// verification registry, and each credential backs at most one token.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"magbot/internal/access"
	"magbot/internal/collateral/store"
	"magbot/internal/platform/metrics"
	"magbot/internal/registry/base"
	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
)

const registryName = string(audit.RegistryCollateral)

// Roles is the collateral role table. DefaultAdmin administers every role.
var Roles = access.NewTable(access.BackendRole, access.PauserRole)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CredentialResolver answers which credential an account holds in a
// verification registry instance. It returns 0 when the account holds none.
type CredentialResolver interface {
	TokenByAccount(ctx context.Context, registry, account domain.Account) (domain.TokenID, error)
}

type Service struct {
	*base.Registry
	store       store.Store
	credentials CredentialResolver
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

func New(st store.Store, credentials CredentialResolver, opts ...Option) *Service {
	s := &Service{
		Registry:    base.New(audit.RegistryCollateral, Roles, st, runRoles(st)),
		store:       st,
		credentials: credentials,
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
