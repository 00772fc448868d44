package service

import (
	"context"
	"time"
)

// pollUntil re-runs check every interval until it reports ready or the wait
// budget is spent. Returns true when ready, false on timeout. A check error
// aborts the wait, ctx cancellation aborts it between attempts.
func pollUntil(ctx context.Context, interval, maxWait time.Duration, check func(context.Context) (bool, error)) (bool, error) {
	deadline := time.Now().Add(maxWait)

	for {
		ready, err := check(ctx)
		if err != nil {
			return false, err
		}
		if ready {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
}
