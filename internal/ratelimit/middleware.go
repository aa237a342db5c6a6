package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"magbot/internal/platform/metrics"
	dErrors "magbot/pkg/domain-errors"
	"magbot/pkg/platform/httputil"
	"magbot/pkg/requestcontext"
)

type Middleware struct {
	store   Store
	limits  map[Class]Limit
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Middleware) {
		m.now = now
	}
}

// New builds the middleware. A class without a limit is not throttled.
func New(store Store, limits map[Class]Limit, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limits: limits,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ClassFor maps safe methods to ClassRead and everything else to ClassWrite.
func ClassFor(r *http.Request) Class {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassWrite
	}
}

// Handler throttles by client IP. Store failures let the request through.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := ClassFor(r)
		limit, ok := m.limits[class]
		if !ok || limit.Requests <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		result, err := m.store.Allow(ctx, string(class)+":"+ip, limit, m.now())
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed", "error", err, "class", class)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.IncrementRateLimited(string(class))
			}
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"class", class,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
