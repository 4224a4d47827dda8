// backoff.go computes the retry delay shared by phase retries and
// candidate failover.
package failover

import (
	"context"
	"time"
)

const (
	baseBackoff = time.Second
	maxBackoff  = 10 * time.Second
)

// Backoff returns the wait before retry attempt n, counted from 1:
// min(1s * 2^(n-1), 10s).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= 5 {
		return maxBackoff
	}
	return baseBackoff << (attempt - 1)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
