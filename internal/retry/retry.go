// Package retry provides a small exponential-backoff retry policy shared by
// the mirror node client, the rate oracle client, and the transfer verifier.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy configures bounded retries with exponential backoff.
type Policy struct {
	MaxAttempts     int           // Maximum attempts including the first (default: 5)
	InitialInterval time.Duration // Initial backoff interval (default: 500ms)
	MaxInterval     time.Duration // Backoff cap, 0 for uncapped
	Multiplier      float64       // Backoff multiplier (default: 2.0)

	// Sleep is replaceable in tests. Defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the verification defaults: 5 attempts starting at
// 500ms and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2.0,
	}
}

// ErrExhausted signals that every attempt failed. The last attempt's error is
// wrapped and reachable through errors.Unwrap.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Permanent wraps an error to stop the retry loop immediately. Used for
// failures that repeating cannot fix, like 4xx responses.
type Permanent struct {
	Err error
}

func (p Permanent) Error() string { return p.Err.Error() }

func (p Permanent) Unwrap() error { return p.Err }

// Do runs op until it succeeds, returns a Permanent error, the context is
// cancelled, or the policy's attempts are exhausted. Sleeps between attempts
// are cancellable waits, never busy loops.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	interval := p.InitialInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2.0
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
		interval = time.Duration(float64(interval) * multiplier)
		if p.MaxInterval > 0 && interval > p.MaxInterval {
			interval = p.MaxInterval
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, maxAttempts, lastErr)
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
