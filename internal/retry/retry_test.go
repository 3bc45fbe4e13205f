package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingSleep captures requested sleep durations without waiting.
func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2.0,
		Sleep:           recordingSleep(&delays),
	}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 4 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 4 {
		t.Errorf("op called %d times, want 4", calls)
	}

	// Delays must double: 500ms, 1s, 2s.
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("got %d sleeps, want %d", len(delays), len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, delays[i], want[i])
		}
		if i > 0 && delays[i] < delays[i-1] {
			t.Errorf("backoff decreased between attempts %d and %d", i-1, i)
		}
	}
}

func TestDoExhaustion(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		Multiplier:      2.0,
		Sleep:           recordingSleep(&delays),
	}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("always failing")
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Do() error = %v, want ErrExhausted", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
	if len(delays) != 2 {
		t.Errorf("slept %d times, want 2 (no sleep after last attempt)", len(delays))
	}
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	policy := Policy{MaxAttempts: 5, InitialInterval: time.Millisecond, Sleep: recordingSleep(&[]time.Duration{})}

	sentinel := errors.New("bad request")
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent{Err: sentinel}
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Do() error = %v, want sentinel", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestDoMaxIntervalCap(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		Sleep:           recordingSleep(&delays),
	}

	_ = policy.Do(context.Background(), func(context.Context) error {
		return errors.New("nope")
	})

	for i, d := range delays {
		if d > 2*time.Second {
			t.Errorf("sleep %d = %v exceeds cap", i, d)
		}
	}
}

func TestDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	err := policy.Do(ctx, func(context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
}
