package worker

import (
	"context"
	"log/slog"

	audit "magbot/pkg/platform/audit"
)

// Worker consumes buffered audit events from a channel and persists them.
// It returns when the inbox is closed and drained, or ctx is done.
type Worker struct {
	store     audit.Store
	inbox     <-chan audit.Event
	logger    *slog.Logger
	onFailure func()
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithFailureHook is called once per event that could not be persisted.
func WithFailureHook(fn func()) Option {
	return func(w *Worker) {
		w.onFailure = fn
	}
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				if w.logger != nil {
					w.logger.ErrorContext(ctx, "failed to persist buffered audit event",
						"action", event.Action,
						"instance", event.Instance.String(),
						"error", err,
					)
				}
				if w.onFailure != nil {
					w.onFailure()
				}
			}
		}
	}
}
