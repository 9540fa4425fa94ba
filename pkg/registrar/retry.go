package registrar

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// maxAttempts bounds the retry policy shared by every driver: on HTTP 429/5xx
// or network errors, retry up to this many attempts with exponential
// backoff; any other error is not retried.
const maxAttempts = 3

// exponentialSeconds waits 2^attempt seconds between retries, per spec §4.4.
type exponentialSeconds struct {
	attempt int
}

func (b *exponentialSeconds) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(math.Pow(2, float64(b.attempt))) * time.Second
}

// WithRetry runs op, retrying while isRetryable(err) is true, up to
// maxAttempts. Once attempts are exhausted the last error is reported as
// ErrMaxRetries; a non-retryable error surfaces immediately, unwrapped.
func WithRetry[T any](ctx context.Context, isRetryable func(error) bool, op func() (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !isRetryable(err) {
			return v, backoff.Permanent(err)
		}
		if attempt >= maxAttempts {
			return v, backoff.Permanent(&DriverError{Code: ErrMaxRetries, Message: "exceeded retry attempts", Cause: err})
		}
		return v, err
	}

	return backoff.Retry(ctx, wrapped, backoff.WithBackOff(&exponentialSeconds{}))
}

// isRetryableHTTPStatus reports whether an HTTP status code warrants a retry.
func isRetryableHTTPStatus(status int) bool {
	return status == 429 || status >= 500
}

// IsRetryable is the shared retry predicate both drivers use: network errors
// always retry, HTTP errors retry only for 429/5xx, everything else does not.
func IsRetryable(err error) bool {
	code, ok := Code(err)
	if !ok {
		return false
	}
	switch code {
	case ErrNetworkError:
		return true
	case ErrHTTPError:
		var de *DriverError
		if errors.As(err, &de) {
			return isRetryableHTTPStatus(de.StatusCode)
		}
		return false
	default:
		return false
	}
}
