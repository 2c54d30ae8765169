// Package upstream implements the rate-limited, circuit-broken HTTP
// client for the card catalog service, together with the bulk snapshot
// catalog types the loader consumes.
package upstream

import (
	"context"
	"math"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Limiter is a token bucket gating calls to the upstream. Capacity and
// refill rate are both the configured requests per second, so short
// bursts may drain the bucket but sustained throughput averages out to
// the configured rate.
type Limiter struct {
	bucket    *rate.Limiter
	perSecond float64
}

// NewLimiter returns a bucket admitting perSecond requests per second.
// Non-positive rates fall back to 10.
func NewLimiter(perSecond float64) *Limiter {
	if perSecond <= 0 {
		perSecond = 10
	}
	log.WithField("rate", perSecond).Info("initialized upstream rate limiter")
	return &Limiter{
		bucket:    rate.NewLimiter(rate.Limit(perSecond), int(math.Ceil(perSecond))),
		perSecond: perSecond,
	}
}

// Acquire consumes one token, suspending until the bucket admits it.
// The wait is the only blocking point and honors ctx cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.bucket.Allow() {
		return nil
	}
	rateLimitWaits.Inc()
	return l.bucket.Wait(ctx)
}

// TryAcquire consumes a token only when one is immediately available.
func (l *Limiter) TryAcquire() bool { return l.bucket.Allow() }

// PerSecond reports the configured rate.
func (l *Limiter) PerSecond() float64 { return l.perSecond }
