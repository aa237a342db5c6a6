package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"magbot/internal/platform/metrics"
	"magbot/pkg/domain"
	"magbot/pkg/platform/circuit"
)

const keyPrefix = "magbot:sbt:"

// Source resolves credentials from the system of record.
type Source interface {
	TokenByAccount(ctx context.Context, registry, account domain.Account) (domain.TokenID, error)
}

// Cached is a read-through Redis cache in front of a Source. Only positive
// answers are cached: a binding never changes once minted, while an account
// without a credential may be verified at any moment.
//
// Redis failures never fail a lookup. A breaker counts them and, while open,
// cached answers are ignored until Redis has answered reliably again.
type Cached struct {
	source  Source
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type CacheOption func(*Cached)

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cached) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cached) {
		c.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) CacheOption {
	return func(c *Cached) {
		c.breaker = b
	}
}

func NewCached(source Source, client redis.Cmdable, ttl time.Duration, opts ...CacheOption) *Cached {
	c := &Cached{
		source:  source,
		client:  client,
		ttl:     ttl,
		breaker: circuit.New("credential-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) TokenByAccount(ctx context.Context, registry, account domain.Account) (domain.TokenID, error) {
	key := cacheKey(registry, account)

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if c.recordSuccess(ctx) {
			if id, perr := strconv.ParseUint(raw, 10, 64); perr == nil && id != 0 {
				c.lookup("hit")
				return domain.TokenID(id), nil
			}
		}
		c.lookup("bypass")
	case errors.Is(err, redis.Nil):
		c.recordSuccess(ctx)
		c.lookup("miss")
	default:
		c.recordFailure(ctx, err)
		c.lookup("error")
	}

	id, err := c.source.TokenByAccount(ctx, registry, account)
	if err != nil || id.IsNil() {
		return id, err
	}
	if err := c.client.Set(ctx, key, id.String(), c.ttl).Err(); err != nil {
		c.recordFailure(ctx, err)
	}
	return id, nil
}

func (c *Cached) recordSuccess(ctx context.Context) bool {
	usePrimary, change := c.breaker.RecordSuccess()
	if change.Closed && c.logger != nil {
		c.logger.InfoContext(ctx, "credential cache recovered", "breaker", c.breaker.Name())
	}
	return usePrimary
}

func (c *Cached) recordFailure(ctx context.Context, err error) {
	_, change := c.breaker.RecordFailure()
	if c.logger == nil {
		return
	}
	if change.Opened {
		c.logger.WarnContext(ctx, "credential cache unavailable, reading through",
			"breaker", c.breaker.Name(),
			"error", err,
		)
		return
	}
	c.logger.DebugContext(ctx, "credential cache error", "error", err)
}

func (c *Cached) lookup(result string) {
	if c.metrics != nil {
		c.metrics.IncrementCacheLookup(result)
	}
}

func cacheKey(registry, account domain.Account) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, registry.String(), account.String())
}
