package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/roach88/txsim/internal/ir"
)

// Work executes one attempt of an item. attempt is 1 for the first
// execution and increases by one per retry.
//
// Return nil on success, an error wrapping ErrPermanent for a failure that
// must not be retried, and any other error for a transient interruption.
// When ctx is cancelled the Work function should return promptly; the
// engine classifies that outcome by the run state, not by the error.
type Work func(ctx context.Context, item ir.WorkItem, attempt int) error

// DurationFunc maps an item to its simulated processing time.
type DurationFunc func(item ir.WorkItem) time.Duration

// ModuloDuration simulates amount mod 1000 milliseconds of work.
func ModuloDuration(item ir.WorkItem) time.Duration {
	ms := math.Mod(item.Amount(), 1000)
	return time.Duration(ms * float64(time.Millisecond))
}

// LinearDuration scales the duration with the amount: an item of
// MaxAmount takes scale, an item of 0 takes nothing.
func LinearDuration(scale time.Duration) DurationFunc {
	return func(item ir.WorkItem) time.Duration {
		return time.Duration(item.Amount() / MaxAmount * float64(scale))
	}
}

// Sleep returns a Work function that waits d(item) or until ctx ends.
func Sleep(d DurationFunc) Work {
	return func(ctx context.Context, item ir.WorkItem, _ int) error {
		timer := time.NewTimer(d(item))
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
		case <-timer.C:
			return nil
		}
	}
}

// Instant returns a Work function that finishes immediately.
func Instant() Work {
	return func(ctx context.Context, _ ir.WorkItem, _ int) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
		}
		return nil
	}
}
