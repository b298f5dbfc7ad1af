package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// TokenBucket throttles each agent to requestsPerInterval calls per
// interval, implemented as a per-agent-name token bucket from
// golang.org/x/time/rate. Limiter.Wait(ctx) already provides FIFO-fair
// blocking admission — reservations are granted in call order — which is
// exactly the fairness guarantee required of Acquire.
type TokenBucket struct {
	requestsPerInterval int
	interval            ratePerSecond

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// ratePerSecond is the configured refill rate, expressed once in events
// per second so every per-agent limiter is constructed identically.
type ratePerSecond = rate.Limit

// NewTokenBucket builds a per-agent token bucket admitting
// requestsPerInterval calls per intervalMs, with a burst equal to
// requestsPerInterval (a full bucket may be spent in a single instant,
// then refills smoothly).
func NewTokenBucket(requestsPerInterval int, intervalMs int64) *TokenBucket {
	if requestsPerInterval <= 0 {
		requestsPerInterval = 1
	}
	if intervalMs <= 0 {
		intervalMs = 1000
	}
	perSecond := rate.Limit(float64(requestsPerInterval) / (float64(intervalMs) / 1000.0))
	return &TokenBucket{
		requestsPerInterval: requestsPerInterval,
		interval:            perSecond,
		limiters:            make(map[string]*rate.Limiter),
	}
}

func (t *TokenBucket) limiterFor(agentName string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[agentName]
	if !ok {
		l = rate.NewLimiter(t.interval, t.requestsPerInterval)
		t.limiters[agentName] = l
	}
	return l
}

// Acquire suspends the caller until the named agent's bucket has a token
// available, then consumes one.
func (t *TokenBucket) Acquire(ctx context.Context, agentName string) error {
	return t.limiterFor(agentName).Wait(ctx)
}
