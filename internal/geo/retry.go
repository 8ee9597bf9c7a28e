package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// errThrottled marks a 429 response; retryAfter carries the server's hint.
type errThrottled struct {
	retryAfter time.Duration
}

func (e *errThrottled) Error() string {
	return fmt.Sprintf("provider returned 429 (retry after %s)", e.retryAfter)
}

// send performs one logical request: limiter wait, call, and retries for 429
// and transport failures. Attempt n (1-based) waits n*backoff before the next
// try, or the server's Retry-After when that is longer.
// Any other non-2xx status is returned immediately as a *statusError.
func (c *Client) send(ctx context.Context, build func() *resty.Request, method, path string) (*resty.Response, error) {
	var (
		attempt   int
		lastAfter time.Duration
		resp      *resty.Response
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		wait := time.Duration(attempt) * c.cfg.Backoff
		if lastAfter > wait {
			wait = lastAfter
		}
		return wait, false
	})
	maxRetries := uint64(0)
	if c.cfg.MaxAttempts > 1 {
		maxRetries = uint64(c.cfg.MaxAttempts - 1)
	}

	err := retry.Do(ctx, retry.WithMaxRetries(maxRetries, backoff), func(ctx context.Context) error {
		attempt++
		lastAfter = 0

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		r, err := build().SetContext(ctx).Execute(method, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("routing request failed", "path", path, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}

		switch {
		case r.StatusCode() == http.StatusTooManyRequests:
			lastAfter = parseRetryAfter(r.Header().Get("Retry-After"), time.Now())
			c.logger.Warn("routing provider throttled", "path", path, "attempt", attempt, "retry_after", lastAfter)
			return retry.RetryableError(&errThrottled{retryAfter: lastAfter})
		case r.IsError():
			return &statusError{code: r.StatusCode(), body: strings.TrimSpace(string(r.Body()))}
		}
		resp = r
		return nil
	})

	var throttled *errThrottled
	switch {
	case err == nil:
		return resp, nil
	case errors.As(err, &throttled):
		return nil, fmt.Errorf("%w: %d attempts", domain.ErrRateLimited, attempt)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		var se *statusError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrRoute, err)
	}
}

// statusError is a non-retryable HTTP failure from the provider.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("provider returned %d", e.code)
	}
	return fmt.Sprintf("provider returned %d: %s", e.code, e.body)
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable or past
// values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
