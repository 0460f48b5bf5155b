package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/c360/journaldconcat/errors"
)

// PermanentError stops Do from making further attempts
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not worth retrying. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether Do gives up on err immediately: errors marked
// with Permanent and errors classified invalid or fatal.
func IsPermanent(err error) bool {
	var pe *PermanentError
	if stderrors.As(err, &pe) {
		return true
	}
	return errors.IsInvalid(err) || errors.IsFatal(err)
}

// Policy describes how many times to try and how long to wait in between
type Policy struct {
	MaxAttempts  int           // total attempts, values below 1 mean one
	InitialDelay time.Duration // wait after the first failure
	MaxDelay     time.Duration // cap on any single wait
	Multiplier   float64       // growth per attempt
	Jitter       bool          // add up to 25% random extra wait

	// OnRetry, if set, is called before each wait
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Default suits one-off operations
func Default() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Startup suits connecting to infrastructure while the process boots
func Startup() Policy {
	return Policy{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		Jitter:       true,
	}
}

func (p Policy) normalize() (Policy, error) {
	if p.InitialDelay < 0 || p.MaxDelay < 0 || p.Multiplier < 0 {
		return p, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "negative delay or multiplier")
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Multiplier == 0 {
		p.Multiplier = 2.0
	}
	p.Multiplier = min(p.Multiplier, 1000)
	if p.MaxDelay < p.InitialDelay {
		return p, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "MaxDelay below InitialDelay")
	}
	return p, nil
}

// Delay returns the wait after the given failed attempt (1-based), without
// jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return min(time.Duration(d), p.MaxDelay)
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or ctx ends.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p, err := p.normalize()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if IsPermanent(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Delay(attempt)
		if p.Jitter && wait >= 4 {
			wait += rand.N(wait / 4)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

// DoWithResult is Do for functions that also produce a value
func DoWithResult[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	return result, err
}
