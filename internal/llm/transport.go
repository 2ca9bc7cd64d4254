package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a provider answers with HTTP 429.
var ErrRateLimited = errors.New("rate limited by provider")

// DefaultRetryDelay is the pause before the single retry after a rate limit.
const DefaultRetryDelay = 60 * time.Second

// ClientOptions are shared by every HTTP provider.
type ClientOptions struct {
	Timeout           time.Duration // per request (default: 120s)
	RequestsPerSecond float64       // client side throttle, 0 disables
	RetryDelay        time.Duration // pause before retrying a rate-limited call (default: 60s)
}

// transport sends JSON requests through a limiter and a circuit breaker and
// retries once when the provider reports a rate limit.
type transport struct {
	name       string
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	retryDelay time.Duration
}

func newTransport(name string, opts ClientOptions) *transport {
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &transport{
		name:       name,
		client:     &http.Client{Timeout: opts.Timeout},
		limiter:    newLimiter(opts.RequestsPerSecond),
		breaker:    NewCircuitBreaker(name),
		retryDelay: opts.RetryDelay,
	}
}

// newLimiter returns a limiter allowing rps requests per second, or an
// unlimited one when rps is not positive.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// postJSON posts body to url and decodes the response into out.
func (t *transport) postJSON(ctx context.Context, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = RetryRateLimited(ctx, t.retryDelay, func(ctx context.Context) (struct{}, error) {
		if err := t.limiter.Wait(ctx); err != nil {
			return struct{}{}, err
		}
		_, err := t.breaker.Execute(ctx, func() (interface{}, error) {
			return nil, t.do(ctx, url, header, payload, out)
		})
		if errors.Is(err, ErrCircuitOpen) {
			return struct{}{}, fmt.Errorf("%s circuit breaker open: %w", t.name, err)
		}
		return struct{}{}, err
	})
	return err
}

func (t *transport) do(ctx context.Context, url string, header http.Header, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: %w", t.name, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", t.name, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RetryRateLimited calls fn and, if it fails with ErrRateLimited, waits
// delay and calls it exactly once more. Any other error is returned
// immediately. The wait ends early when ctx is done.
func RetryRateLimited[T any](ctx context.Context, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if !errors.Is(err, ErrRateLimited) {
		return v, err
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-timer.C:
	}
	return fn(ctx)
}
