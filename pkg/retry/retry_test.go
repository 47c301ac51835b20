package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"redditcollector/pkg/errors"
)

func quietConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, quietConfig(3))

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return errors.WithCode(errors.TypeServerError, "server returned 503", 503)
		}
		return nil
	}, quietConfig(5))

	if err != nil {
		t.Fatalf("Expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errors.New(errors.TypeNetwork, "connection reset")
	}, quietConfig(3))

	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errors.New(errors.TypeFetchTooLarge, "file too large")
	}, quietConfig(5))

	if err == nil {
		t.Fatal("Expected the non-retryable error to surface")
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
	if !errors.Is(err, errors.TypeFetchTooLarge) {
		t.Errorf("Expected the original error, got %v", err)
	}
}

func TestDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := quietConfig(0)
	cfg.Backoff = &ConstantBackoff{Delay: time.Second}
	cfg.Context = ctx

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(func() error {
			calls++
			return errors.New(errors.TypeNetwork, "unreachable")
		}, cfg)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Expected cancellation error")
		}
		if !stderrors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled in the chain, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(func() ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, errors.New(errors.TypeNetwork, "timeout")
		}
		return []byte("payload"), nil
	}, quietConfig(3))

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if string(result) != "payload" {
		t.Errorf("Expected payload, got %q", result)
	}
}

func TestOnRetryCallback(t *testing.T) {
	cfg := quietConfig(3)
	var attempts []int
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	_ = Do(func() error {
		return errors.New(errors.TypeNetwork, "flaky")
	}, cfg)

	// Two retries happen after the first and second failures.
	if len(attempts) != 2 {
		t.Errorf("Expected OnRetry to fire twice, got %v", attempts)
	}
}

func TestExponentialBackoffGrowth(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	d1 := eb.NextDelay(1)
	d2 := eb.NextDelay(2)
	d3 := eb.NextDelay(3)

	if d1 != 100*time.Millisecond || d2 != 200*time.Millisecond || d3 != 400*time.Millisecond {
		t.Errorf("Unexpected delays: %v %v %v", d1, d2, d3)
	}

	if d := eb.NextDelay(10); d != time.Second {
		t.Errorf("Expected delay capped at max, got %v", d)
	}

	if d := eb.NextDelay(0); d != 0 {
		t.Errorf("Expected zero delay for attempt 0, got %v", d)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Second); err == nil {
		t.Error("Expected Wait to fail with a cancelled context")
	}

	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Expected zero delay to return immediately, got %v", err)
	}
}
