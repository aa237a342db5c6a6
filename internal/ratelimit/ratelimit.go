// Package ratelimit throttles API requests per client with a sliding window.
// Reads and writes are counted in separate windows so a burst of lookups
// never starves minting.
package ratelimit

import (
	"context"
	"time"
)

// Class groups routes that share a limit.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

// Limit is the number of requests allowed per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Store counts requests per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit Limit, now time.Time) (*Result, error)
}
