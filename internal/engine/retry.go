package engine

import (
	"fmt"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
)

// CancelReason classifies why an attempt ended without success.
type CancelReason int

const (
	// TransientFailure is an interruption the item may recover from.
	TransientFailure CancelReason = iota + 1
	// ShutdownRequested is an attempt cut short by a forced shutdown.
	// It is never retried.
	ShutdownRequested
)

func (r CancelReason) String() string {
	switch r {
	case TransientFailure:
		return "TransientFailure"
	case ShutdownRequested:
		return "ShutdownRequested"
	default:
		return fmt.Sprintf("CancelReason(%d)", int(r))
	}
}

// BackoffKind selects how the retry delay grows.
type BackoffKind string

const (
	// BackoffFixed waits Delay before every retry.
	BackoffFixed BackoffKind = "fixed"
	// BackoffExponential grows from Delay towards MaxDelay.
	BackoffExponential BackoffKind = "exponential"
)

// Retry defaults.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = 500 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultRetryWorkers = 2
)

// RetryPolicy bounds and paces retries of interrupted items.
type RetryPolicy struct {
	// MaxAttempts is the number of retries before an item becomes
	// FailedPermanently. Zero disables retry.
	MaxAttempts int

	// Delay is the fixed delay, or the first delay for exponential backoff.
	Delay time.Duration

	// MaxDelay caps exponential delays.
	MaxDelay time.Duration

	Backoff BackoffKind
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
		MaxDelay:    DefaultMaxDelay,
		Backoff:     BackoffFixed,
	}
}

// Validate reports an invalid configuration error for unusable policies.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return NewInvalidConfigurationError("retry max attempts must be >= 0 (got %d)", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return NewInvalidConfigurationError("retry delay must be >= 0 (got %s)", p.Delay)
	}
	switch p.Backoff {
	case BackoffFixed, "":
	case BackoffExponential:
		if p.MaxDelay < p.Delay {
			return NewInvalidConfigurationError("retry max delay %s is below delay %s", p.MaxDelay, p.Delay)
		}
	default:
		return NewInvalidConfigurationError("unknown backoff %q (want fixed or exponential)", p.Backoff)
	}
	return nil
}

// DelayFor returns the wait before the given retry (1-based).
func (p RetryPolicy) DelayFor(retry int) time.Duration {
	if p.Backoff != BackoffExponential || retry < 1 {
		return p.Delay
	}

	bo := boff.New(p.Delay, p.MaxDelay, time.Now().UnixNano())
	var d time.Duration
	for i := 0; i < retry; i++ {
		d = bo.Next()
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		d = p.Delay
	}
	return d
}
