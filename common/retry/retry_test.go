package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	stats := &Stats{}
	calls := 0

	result, err := Do(context.Background(), "op", testPolicy(3), stats, func() (string, error) {
		calls++
		if calls <= 3 {
			return "", Transient(errors.New("not ready"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("Expected \"ok\", got %q", result)
	}
	if calls != 4 {
		t.Errorf("Expected 4 calls, got %d", calls)
	}
	if stats.Attempts != 4 {
		t.Errorf("Expected 4 attempts recorded, got %d", stats.Attempts)
	}
	if stats.RetriedSuccess != 1 {
		t.Errorf("Expected 1 retried success, got %d", stats.RetriedSuccess)
	}
	if stats.FirstTrySuccess != 0 {
		t.Errorf("Expected 0 first-try successes, got %d", stats.FirstTrySuccess)
	}
}

func TestDoExhaustsAfterMaxRetries(t *testing.T) {
	stats := &Stats{}
	calls := 0

	_, err := Do(context.Background(), "op", testPolicy(3), stats, func() (int, error) {
		calls++
		return 0, Transient(errors.New("still not ready"))
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Expected ErrExhausted, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected exactly max_retries+1 = 4 attempts, got %d", calls)
	}
	if stats.Exhausted != 1 {
		t.Errorf("Expected 1 exhausted operation, got %d", stats.Exhausted)
	}
	// The exhaustion error still wraps the transient cause, so an
	// enclosing scheduler may retry the whole operation.
	if !IsTransient(err) {
		t.Error("Exhaustion error should remain classified transient")
	}
}

func TestDoPermanentFailureDoesNotRetry(t *testing.T) {
	stats := &Stats{}
	calls := 0
	permanent := errors.New("bad configuration")

	_, err := Do(context.Background(), "op", testPolicy(3), stats, func() (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Expected permanent error to propagate, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("Permanent failure must not be reported as exhaustion")
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}

func TestDoFirstTrySuccess(t *testing.T) {
	stats := &Stats{}

	_, err := Do(context.Background(), "op", testPolicy(3), stats, func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.FirstTrySuccess != 1 || stats.Attempts != 1 {
		t.Errorf("Expected one first-try success, got %+v", stats)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	stats := &Stats{}
	ctx, cancel := context.WithCancel(context.Background())

	policy := Policy{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: 2 * time.Hour}
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, "op", policy, stats, func() (int, error) {
			return 0, Transient(errors.New("not ready"))
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("Timeout waiting for cancellation to abort backoff")
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name        string
		policy      Policy
		expectError bool
	}{
		{"valid", Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute}, false},
		{"zero retries", Policy{MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Second}, false},
		{"negative retries", Policy{MaxRetries: -1, BaseDelay: time.Second, MaxDelay: time.Minute}, true},
		{"zero base delay", Policy{MaxRetries: 3, BaseDelay: 0, MaxDelay: time.Minute}, true},
		{"max below base", Policy{MaxRetries: 3, BaseDelay: time.Minute, MaxDelay: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestDelayIsCappedWithBoundedJitter(t *testing.T) {
	policy := Policy{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 4 * time.Second}

	for attempt := 0; attempt < 10; attempt++ {
		d := policy.delay(attempt)
		if d > policy.MaxDelay+policy.MaxDelay/10 {
			t.Errorf("Attempt %d: delay %s exceeds cap plus jitter", attempt, d)
		}
		if d < policy.BaseDelay {
			t.Errorf("Attempt %d: delay %s below base delay", attempt, d)
		}
	}
}

func TestStatsMergeAndSuccessRate(t *testing.T) {
	a := Stats{Attempts: 8, FirstTrySuccess: 5, RetriedSuccess: 2, Exhausted: 1}
	b := Stats{Attempts: 2, FirstTrySuccess: 2}
	a.Merge(b)

	if a.Attempts != 10 || a.FirstTrySuccess != 7 {
		t.Errorf("Unexpected merged stats: %+v", a)
	}
	if rate := a.SuccessRate(); rate != 90 {
		t.Errorf("Expected 90%% success rate, got %.1f", rate)
	}
	if rate := (Stats{}).SuccessRate(); rate != 0 {
		t.Errorf("Expected 0%% for empty stats, got %.1f", rate)
	}
}
