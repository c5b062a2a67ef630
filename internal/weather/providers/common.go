package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	// ErrUpstreamStatus is matched by every non-2xx response.
	ErrUpstreamStatus = errors.New("unexpected upstream status")

	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// StatusError carries the status code of a rejected upstream response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d", ErrUpstreamStatus, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrUpstreamStatus
}

// doRequestWithResilience sends the request through the circuit breaker,
// retrying with exponential backoff. Transport failures, 429 and 5xx count
// against the breaker and are retried. Any other non-2xx (usually a 404 for
// a forecast hour NOMADS has not published yet) is a healthy answer and comes
// back at once as a *StatusError. An open or half-open breaker refusing the
// call fails immediately with errCircuitOpen.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, err := cfg.Client.Do(req.WithContext(ctx))
			if err != nil {
				return nil, err
			}
			if err := retryable(resp); err != nil {
				drain(resp)
				return nil, err
			}
			return resp, nil
		})

		switch {
		case err == nil:
			resp := result.(*http.Response)
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				drain(resp)
				return nil, &StatusError{Code: resp.StatusCode}
			}
			return resp, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		case attempt >= cfg.Backoff.MaxRetries:
			return nil, err
		}

		timer := time.NewTimer(cfg.Backoff.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// retryable reports the statuses that mean the upstream is struggling.
func retryable(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", errRateLimited, &StatusError{Code: resp.StatusCode})
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %w", errServerError, &StatusError{Code: resp.StatusCode})
	}
	return nil
}

// delay is InitialInterval doubled per attempt, capped at MaxInterval.
func (b BackoffConfig) delay(attempt int) time.Duration {
	d := b.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
	if b.MaxInterval > 0 && d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
