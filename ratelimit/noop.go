package ratelimit

import "context"

// Noop never suspends the caller; used when rate limiting is disabled in
// config so the executor can depend on Limiter unconditionally.
type Noop struct{}

func (Noop) Acquire(ctx context.Context, agentName string) error { return nil }
