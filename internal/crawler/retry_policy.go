package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ExponentialRetryPolicy retries transport failures, 429, and 5xx with jittered backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy. maxRetries counts attempts after the first;
// zero disables retries. Non-positive delays fall back to 250ms and 5s.
func NewExponentialRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxRetries + 1,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// ShouldRetry decides whether the error is retryable. attempt is 1-based.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// Backoff returns the wait before retry number attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// RetryingFetcher wraps a Fetcher with a RetryPolicy.
type RetryingFetcher struct {
	next   Fetcher
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryingFetcher decorates next. A nil policy returns next unchanged.
func NewRetryingFetcher(next Fetcher, policy RetryPolicy, logger *zap.Logger) Fetcher {
	if policy == nil {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{next: next, policy: policy, logger: logger}
}

// Fetch calls the wrapped fetcher until it succeeds or the policy gives up.
func (f *RetryingFetcher) Fetch(ctx context.Context, url string) (FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		resp, err := f.next.Fetch(ctx, url)
		if err == nil || !f.policy.ShouldRetry(err, attempt) {
			return resp, err
		}
		wait := f.policy.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return FetchResponse{}, fmt.Errorf("retry backoff canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
