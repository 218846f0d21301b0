package llm

import (
	"context"
	"fmt"
)

// ResilientClient layers a CircuitBreaker and RateLimiter in front of
// an LLMClient, so every extraction call driver gets both protections
// for free regardless of which provider backs the underlying client.
type ResilientClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
	limiter *RateLimiter
}

// NewResilientClient wraps inner. breaker and limiter may be nil to
// disable that protection.
func NewResilientClient(inner LLMClient, breaker *CircuitBreaker, limiter *RateLimiter) *ResilientClient {
	return &ResilientClient{inner: inner, breaker: breaker, limiter: limiter}
}

// GenerateResponse checks the circuit breaker, waits for rate-limiter
// admission, calls through to inner, and records the outcome against the
// breaker.
func (c *ResilientClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	if c.breaker != nil {
		allowed, err := c.breaker.Allow()
		if !allowed {
			return nil, fmt.Errorf("llm call rejected: %w", err)
		}
	}

	if c.limiter != nil {
		estimatedTokens := (len(prompt) + len(systemMessage)) / 4
		if err := c.limiter.Wait(ctx, estimatedTokens); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	result, err := c.inner.GenerateResponse(ctx, prompt, systemMessage, temperature)
	if c.breaker != nil {
		if err != nil {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
	return result, err
}

func (c *ResilientClient) GetModel() string    { return c.inner.GetModel() }
func (c *ResilientClient) GetEndpoint() string { return c.inner.GetEndpoint() }

var _ LLMClient = (*ResilientClient)(nil)
