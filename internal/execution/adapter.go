package execution

import (
	"context"
	"errors"
	"time"
)

// Adapter is the abstract exchange surface the machine talks to. Any error it
// returns is treated as transient and retried unless wrapped with Fatal.
type Adapter interface {
	Submit(ctx context.Context, o Order) error
	Cancel(ctx context.Context, orderID string) error
	PollFills(ctx context.Context) ([]Fill, error)
}

// FatalError marks an adapter failure that retrying cannot fix (bad
// credentials, rejected symbol). The machine surfaces it instead of backing
// off.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal adapter error: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so the retry loop gives up immediately.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// RetryPolicy bounds the submit retry loop.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// Timeout bounds each individual adapter call.
	Timeout time.Duration
}

// DefaultRetryPolicy matches the reconnect cadence used by the market feeds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		Backoff:     250 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Timeout:     10 * time.Second,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	return p
}

// next doubles the backoff up to the cap.
func (p RetryPolicy) next(d time.Duration) time.Duration {
	d *= 2
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}
