package gateway

import (
	"context"
	"time"
)

// Retrier wraps a Client with a per-attempt timeout and immediate retries.
// On exhaustion it returns an answer with Error set instead of a Go error:
// gateway failures are per-batch data, never fatal pipeline errors.
type Retrier struct {
	inner   Client
	timeout time.Duration
	retries int
}

// NewRetrier wraps inner with timeout/retry discipline. retries is the number
// of additional attempts after the first; negative values are treated as zero.
func NewRetrier(inner Client, timeout time.Duration, retries int) *Retrier {
	if retries < 0 {
		retries = 0
	}
	return &Retrier{inner: inner, timeout: timeout, retries: retries}
}

// Extract calls the inner extract with retry discipline.
func (r *Retrier) Extract(ctx context.Context, promptID, text string) (*RawExtraction, error) {
	answer, err := call(r, ctx, promptID, text, r.inner.Extract)
	if err != nil {
		return &RawExtraction{Error: err.Error()}, nil
	}
	return answer, nil
}

// Score calls the inner score with retry discipline.
func (r *Retrier) Score(ctx context.Context, promptID, text string) (*RawScore, error) {
	answer, err := call(r, ctx, promptID, text, r.inner.Score)
	if err != nil {
		return &RawScore{Error: err.Error()}, nil
	}
	return answer, nil
}

// Decide calls the inner decide with retry discipline.
func (r *Retrier) Decide(ctx context.Context, promptID, text string) (*RawDecision, error) {
	answer, err := call(r, ctx, promptID, text, r.inner.Decide)
	if err != nil {
		return &RawDecision{Error: err.Error()}, nil
	}
	return answer, nil
}

// Close releases the inner client.
func (r *Retrier) Close() error {
	return r.inner.Close()
}

// call runs fn up to 1+retries times, each attempt under its own timeout.
// Retries are immediate and independent per batch; sibling calls are never
// cancelled by one attempt expiring.
func call[T any](r *Retrier, ctx context.Context, promptID, text string,
	fn func(context.Context, string, string) (*T, error)) (*T, error) {

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		answer, err := fn(attemptCtx, promptID, text)
		cancel()
		if err == nil {
			return answer, nil
		}
		lastErr = err

		// Give up early if the surrounding context is gone.
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
