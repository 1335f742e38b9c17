package rpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/Storj/core/crypto"
	"github.com/Storj/core/errs"
	"github.com/Storj/core/metrics"
)

// ErrRateLimited is wrapped by the error the server reports, in place of
// invoking the handler, when Limiter.Allow rejects a contact over budget.
var ErrRateLimited = fmt.Errorf("%w", errs.ErrRateLimit)

// bucket is a leaky bucket: tokens drain to zero at rate/min, refilling
// toward capacity as real time passes.
type bucket struct {
	tokens   float64
	capacity float64
	perMin   float64
	last     time.Time
}

// Limiter enforces a per-contact leaky-bucket budget over requests
// (never responses). Over-limit requests must be rejected before any
// handler runs.
type Limiter struct {
	mu      sync.Mutex
	buckets map[crypto.Hash]*bucket
	perMin  int

	Metrics *metrics.Metrics
}

// NewLimiter returns a Limiter admitting perMin requests per minute per
// contact, refilling continuously.
func NewLimiter(perMin int) *Limiter {
	return &Limiter{buckets: make(map[crypto.Hash]*bucket), perMin: perMin, Metrics: metrics.Discard()}
}

// Allow reports whether a request from nodeID at now may proceed. On
// rejection it also reports the duration the caller should advise the
// sender to wait before retrying.
func (l *Limiter) Allow(nodeID crypto.Hash, now time.Time) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, found := l.buckets[nodeID]
	if !found {
		b = &bucket{tokens: float64(l.perMin), capacity: float64(l.perMin), perMin: float64(l.perMin), last: now}
		l.buckets[nodeID] = b
	} else {
		elapsed := now.Sub(b.last).Minutes()
		b.tokens += elapsed * b.perMin
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	if b.tokens < 1 {
		deficit := 1 - b.tokens
		wait := time.Duration(deficit / b.perMin * float64(time.Minute))
		l.Metrics.RateLimitRejections.Inc()
		return false, wait
	}
	b.tokens--
	return true, 0
}

// RateLimitError formats the synthetic response body sent in place of
// invoking a handler, per §4.6's "RateLimitExceeded, retry in X" wording.
func RateLimitError(retryAfter time.Duration) error {
	return fmt.Errorf("%w: RateLimitExceeded, retry in %s", ErrRateLimited, retryAfter.Round(time.Millisecond))
}
