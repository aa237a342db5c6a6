// Package publisher fronts an audit.Store with enrichment and delivery
// policy. Compliance and security events are always written synchronously
// and fail closed: if the write fails the caller's operation must fail.
// Operations events may be buffered and written by a background worker.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
	"magbot/pkg/platform/audit/worker"
	txcontext "magbot/pkg/platform/tx"
	"magbot/pkg/requestcontext"
)

// ErrBufferFull is returned when a buffered event cannot be queued.
var ErrBufferFull = errors.New("audit buffer full")

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	Dropped         prometheus.Counter
	PersistFailures prometheus.Counter
}

// NewMetrics registers publisher metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Emitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magbot_audit_events_emitted_total",
			Help: "Total number of audit events accepted, by category",
		}, []string{"category"}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "magbot_audit_events_dropped_total",
			Help: "Total number of buffered audit events dropped because the buffer was full",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "magbot_audit_persist_failures_total",
			Help: "Total number of audit events that failed to persist",
		}),
	}
}

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics

	bufferSize int
	inbox      chan audit.Event
	done       chan struct{}
	closeOnce  sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer buffers operations events in a channel of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox,
			worker.WithLogger(p.logger),
			worker.WithFailureHook(p.incPersistFailures),
		)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit enriches event from the request context and delivers it.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	event.Category = audit.AuditEvent(event.Action).Category()
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.Client == "" {
		event.Client = requestcontext.ClientKind(ctx)
	}

	if p.buffered(ctx, event) {
		select {
		case p.inbox <- event:
			p.incEmitted(event.Category)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			if p.metrics != nil {
				p.metrics.Dropped.Inc()
			}
			return ErrBufferFull
		}
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.incPersistFailures()
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: audit persistence failed",
				"action", event.Action,
				"instance", event.Instance.String(),
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}
	p.incEmitted(event.Category)
	return nil
}

// buffered reports whether event may skip the synchronous path. Events
// raised inside a SQL transaction always join it.
func (p *Publisher) buffered(ctx context.Context, event audit.Event) bool {
	if p.inbox == nil || event.Category != audit.CategoryOperations {
		return false
	}
	_, inTx := txcontext.From(ctx)
	return !inTx
}

// List returns the events recorded for an instance when the store can read
// them back.
func (p *Publisher) List(ctx context.Context, instance domain.Account) ([]audit.Event, error) {
	lister, ok := p.store.(audit.Lister)
	if !ok {
		return nil, errors.New("audit store does not support listing")
	}
	return lister.ListByInstance(ctx, instance)
}

// Close drains buffered events. It is safe to call more than once; Emit
// must not be called afterwards.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox == nil {
			return
		}
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) incEmitted(category audit.EventCategory) {
	if p.metrics != nil {
		p.metrics.Emitted.WithLabelValues(string(category)).Inc()
	}
}

func (p *Publisher) incPersistFailures() {
	if p.metrics != nil {
		p.metrics.PersistFailures.Inc()
	}
}
