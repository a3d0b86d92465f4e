package util

import (
	"context"
	"time"
)

// Throttle blocks until nextAllowed and returns the time the following call may proceed.
// Triggers missed while the caller was busy are skipped rather than replayed.
func Throttle(ctx context.Context, throttle time.Duration, nextAllowed time.Time) (time.Time, error) {
	now := time.Now()
	if nextAllowed.IsZero() {
		nextAllowed = now
	}
	if err := Sleep(ctx, nextAllowed.Sub(now)); err != nil {
		return nextAllowed, err
	}
	next := nextAllowed.Add(throttle)
	if now := time.Now(); next.Before(now) {
		next = now.Add(throttle)
	}
	return next, nil
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
