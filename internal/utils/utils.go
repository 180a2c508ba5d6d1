// Package utils holds small helpers shared by the scraper and the AI client.
package utils

import (
	"context"
	"time"
)

// WaitFor blocks for d or until ctx is done, whichever comes first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
