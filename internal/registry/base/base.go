// Package base carries what both registries share: tracing and metrics per
// operation, audit logging and role administration over an access.Writer.
package base

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"magbot/internal/access"
	"magbot/internal/platform/metrics"
	"magbot/pkg/attrs"
	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
	audit "magbot/pkg/platform/audit"
	"magbot/pkg/requestcontext"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RunRoles runs fn in a registry transaction on instance, so role changes
// commit or roll back with their audit events.
type RunRoles func(ctx context.Context, instance domain.Account, fn func(ctx context.Context, w access.Writer) error) error

// Registry is embedded by each registry service. Logger, Publisher, Metrics
// and Tracer are set by the service's options and may be nil, except Tracer.
type Registry struct {
	Guard     *access.Guard
	Logger    *slog.Logger
	Publisher AuditPublisher
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer

	kind    audit.Registry
	members access.Store
	run     RunRoles
}

func New(kind audit.Registry, roles access.Table, members access.Store, run RunRoles) *Registry {
	return &Registry{
		Guard:   access.NewGuard(roles),
		Tracer:  otel.Tracer("magbot/" + string(kind)),
		kind:    kind,
		members: members,
		run:     run,
	}
}

// Instrument opens a span and returns the function that records the
// outcome. Call it as `defer done(&err)`.
func (r *Registry) Instrument(ctx context.Context, op string, instance domain.Account) (context.Context, func(*error)) {
	ctx, span := r.Tracer.Start(ctx, string(r.kind)+"."+op,
		trace.WithAttributes(attribute.String("registry.instance", instance.String())))
	start := time.Now()
	return ctx, func(errp *error) {
		if err := *errp; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.GetCode(err)))
			if r.Metrics != nil {
				r.Metrics.IncrementRejected(string(r.kind), op, err)
			}
		}
		if r.Metrics != nil {
			r.Metrics.ObserveOperation(string(r.kind), op, start)
		}
		span.End()
	}
}

// LogAudit logs the event and publishes it. Compliance events are raised
// inside the registry transaction, so a publish failure aborts the change.
func (r *Registry) LogAudit(ctx context.Context, instance domain.Account, event audit.AuditEvent, attributes ...any) error {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "instance", instance.String(), "event", string(event), "log_type", "audit")
	if r.Logger != nil {
		r.Logger.InfoContext(ctx, string(event), args...)
	}
	if r.Publisher == nil {
		return nil
	}
	return r.Publisher.Emit(ctx, audit.Event{
		Registry:   r.kind,
		Instance:   instance,
		Action:     string(event),
		Actor:      requestcontext.Caller(ctx),
		Subject:    attrs.String(attributes, "account"),
		Attributes: attrs.Strings(attributes, "request_id"),
	})
}

// LogRejected records a refused operation outside the failed transaction.
// Delivery problems are logged, never returned.
func (r *Registry) LogRejected(ctx context.Context, instance domain.Account, event audit.AuditEvent, err error, attributes ...any) {
	attributes = append(attributes, "reason", string(dErrors.GetCode(err)))
	if emitErr := r.LogAudit(ctx, instance, event, attributes...); emitErr != nil && r.Logger != nil {
		r.Logger.ErrorContext(ctx, "failed to record rejected operation",
			"event", string(event),
			"error", emitErr,
		)
	}
}

// Rejected records access denials as such and any other failure under
// event. An empty event records only denials.
func (r *Registry) Rejected(ctx context.Context, instance domain.Account, event audit.AuditEvent, err error, attributes ...any) {
	var unauthorized *access.UnauthorizedError
	if errors.As(err, &unauthorized) {
		r.LogRejected(ctx, instance, audit.EventAccessDenied, err,
			"account", unauthorized.Account.String(),
			"role", unauthorized.Role.String())
		return
	}
	if event != "" {
		r.LogRejected(ctx, instance, event, err, attributes...)
	}
}
