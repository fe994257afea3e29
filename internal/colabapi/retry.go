package colabapi

import (
	"context"
	"time"

	"github.com/colabcli/colab/internal/httpclient"
)

// retryableStatusCodes defines HTTP status codes that trigger retry logic
// at the Colab API client layer (spec.md §7): 429 and 5xx are retryable,
// everything else is fatal to the operation.
var retryableStatusCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// backoffSchedule mirrors the donor's per-provider retry shape: base 500ms,
// doubling, capped at 8s, three attempts total (spec.md §7).
var backoffSchedule = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
}

const maxAttempts = 3

func waitForDuration(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry runs fn up to maxAttempts times, retrying only on a
// *httpclient.HttpError whose status code is in retryableStatusCodes or is
// any other 5xx. A non-retryable error (including a 4xx other than 429)
// returns immediately.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		httpErr, ok := err.(*httpclient.HttpError)
		if !ok || !(retryableStatusCodes[httpErr.StatusCode] || (httpErr.StatusCode >= 500 && httpErr.StatusCode <= 599)) {
			return zero, err
		}
		if attempt == maxAttempts-1 {
			break
		}
		wait := backoffSchedule[attempt]
		if werr := waitForDuration(ctx, wait); werr != nil {
			return zero, werr
		}
	}
	return zero, lastErr
}
