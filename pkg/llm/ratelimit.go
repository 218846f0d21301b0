package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiterConfig bounds the LLM call rate independently of the
// WorkerPool's concurrency cap, so a burst of cheap patterns cannot
// exceed a provider's requests-per-minute or tokens-per-minute quota.
type RateLimiterConfig struct {
	RequestsPerMinute int
	TokensPerMinute   int
}

// RateLimiter wraps two token buckets, one for request count and one
// for an estimated token count, that callers wait on before issuing an
// LLM call.
type RateLimiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewRateLimiter creates a RateLimiter from per-minute quotas. A zero
// value for either quota disables that bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{}
	if cfg.RequestsPerMinute > 0 {
		rl.requests = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}
	if cfg.TokensPerMinute > 0 {
		rl.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60.0), cfg.TokensPerMinute)
	}
	return rl
}

// Wait blocks until both the request bucket and the token bucket (sized
// by estimatedTokens) admit the call, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, estimatedTokens int) error {
	if rl.requests != nil {
		if err := rl.requests.Wait(ctx); err != nil {
			return err
		}
	}
	if rl.tokens != nil && estimatedTokens > 0 {
		if err := rl.tokens.WaitN(ctx, estimatedTokens); err != nil {
			return err
		}
	}
	return nil
}
