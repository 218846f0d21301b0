package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClient struct {
	calls   int
	err     error
	result  *GenerateResponseResult
}

func (f *fakeClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeClient) GetModel() string    { return "fake-model" }
func (f *fakeClient) GetEndpoint() string { return "fake-endpoint" }

func TestResilientClient_PassesThroughOnSuccess(t *testing.T) {
	inner := &fakeClient{result: &GenerateResponseResult{Content: "ok"}}
	rc := NewResilientClient(inner, NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Second}), nil)

	result, err := rc.GenerateResponse(context.Background(), "prompt", "system", 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Content != "ok" {
		t.Fatalf("expected content to pass through, got %q", result.Content)
	}
	if inner.calls != 1 {
		t.Fatalf("expected exactly one inner call, got %d", inner.calls)
	}
}

func TestResilientClient_TrippedBreakerRejectsWithoutCallingInner(t *testing.T) {
	inner := &fakeClient{err: errors.New("boom")}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Minute})
	rc := NewResilientClient(inner, breaker, nil)

	_, err := rc.GenerateResponse(context.Background(), "prompt", "system", 0)
	if err == nil {
		t.Fatalf("expected first call to fail and trip the breaker")
	}
	if inner.calls != 1 {
		t.Fatalf("expected first call to reach inner, got %d calls", inner.calls)
	}

	_, err = rc.GenerateResponse(context.Background(), "prompt", "system", 0)
	if err == nil {
		t.Fatalf("expected second call to be rejected by the open breaker")
	}
	if inner.calls != 1 {
		t.Fatalf("expected breaker to reject without calling inner again, got %d calls", inner.calls)
	}
}

func TestResilientClient_RateLimiterBlocksUntilContextDone(t *testing.T) {
	inner := &fakeClient{result: &GenerateResponseResult{Content: "ok"}}
	limiter := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 1})
	rc := NewResilientClient(inner, nil, limiter)

	// First call consumes the single token in the bucket.
	if _, err := rc.GenerateResponse(context.Background(), "p", "s", 0); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := rc.GenerateResponse(ctx, "p", "s", 0)
	if err == nil {
		t.Fatalf("expected second call to block past the rate limit and hit the context deadline")
	}
}

func TestResilientClient_DelegatesModelAndEndpoint(t *testing.T) {
	inner := &fakeClient{}
	rc := NewResilientClient(inner, nil, nil)

	if rc.GetModel() != "fake-model" {
		t.Fatalf("expected GetModel to delegate, got %s", rc.GetModel())
	}
	if rc.GetEndpoint() != "fake-endpoint" {
		t.Fatalf("expected GetEndpoint to delegate, got %s", rc.GetEndpoint())
	}
}
