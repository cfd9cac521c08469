package retry

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// SleepFunc suspends the caller for the supplied duration. Tests inject a
// recording implementation instead of sleeping for real.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
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

// Policy retries an operation a fixed number of times with exponential backoff.
type Policy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Sleep       SleepFunc
}

// DefaultPolicy matches the store gateway contract: three attempts with a
// doubling delay starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
	}
}

// Do runs fn until it succeeds or the attempt budget is exhausted; the last
// failure is returned to the caller.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	backoff := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(p.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(attempts-1, backoff)
	sleep := p.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}
	var err error
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		delay, stop := backoff.Next()
		if stop {
			return err
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}
