package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/medquiz/keeper/internal/core/domain"
)

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: 1 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0}

	tests := []struct {
		attempt int
		expect  time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // capped
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := Delay(p, tt.attempt); got != tt.expect {
			t.Errorf("Delay(attempt=%d) = %v, want %v", tt.attempt, got, tt.expect)
		}
	}
}

func TestJitteredBounds(t *testing.T) {
	d := 4 * time.Second
	for _, u := range []float64{0, 0.25, 0.5, 0.75, 0.9999} {
		got := Jittered(d, u)
		if got < d/2 || got > d {
			t.Errorf("Jittered(%v, %v) = %v, want within [%v, %v]", d, u, got, d/2, d)
		}
	}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect bool
	}{
		{"no status", errors.New("connection reset by peer"), true},
		{"408 timeout", &domain.StatusError{Op: "fetch", Code: 408}, true},
		{"429 rate limit", &domain.StatusError{Op: "fetch", Code: 429}, true},
		{"500", &domain.StatusError{Op: "fetch", Code: 500}, true},
		{"503", &domain.StatusError{Op: "fetch", Code: 503}, true},
		{"400 bad request", &domain.StatusError{Op: "fetch", Code: 400}, false},
		{"401 unauthorized", &domain.StatusError{Op: "fetch", Code: 401}, false},
		{"404 not found", &domain.StatusError{Op: "fetch", Code: 404}, false},
		{"wrapped 403", &ExhaustedError{Op: "x", Attempts: 1, Err: &domain.StatusError{Op: "fetch", Code: 403}}, false},
	}
	for _, tt := range tests {
		if got := DefaultRetryIf(tt.err); got != tt.expect {
			t.Errorf("%s: DefaultRetryIf = %v, want %v", tt.name, got, tt.expect)
		}
	}
}

// testExecutor records sleeps instead of waiting.
func testExecutor(sleeps *[]time.Duration, u float64) *Executor {
	return NewWithClock(nil,
		func(ctx context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return ctx.Err()
		},
		func() float64 { return u },
	)
}

func TestDoExhaustsAttempts(t *testing.T) {
	var sleeps []time.Duration
	e := testExecutor(&sleeps, 1) // jitter factor 1.0 = full delay

	calls := 0
	err := e.Do(context.Background(), "flaky", Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}, func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	if calls != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", calls)
	}
	var ee *ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if ee.Attempts != 3 || ee.Op != "flaky" {
		t.Errorf("ExhaustedError = %+v, want 3 attempts on flaky", ee)
	}
	if !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("error should report attempt count: %v", err)
	}
	// Sleeps happen between attempts only: 1s then 2s, jitter factor 1.
	if len(sleeps) != 2 || sleeps[0] != 1*time.Second || sleeps[1] != 2*time.Second {
		t.Errorf("unexpected backoff sleeps: %v", sleeps)
	}
}

func TestDoSucceedsAfterFailure(t *testing.T) {
	var sleeps []time.Duration
	e := testExecutor(&sleeps, 0.5)

	calls := 0
	err := e.Do(context.Background(), "once", DefaultPolicy, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 invocations, got %d", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	var sleeps []time.Duration
	e := testExecutor(&sleeps, 1)

	calls := 0
	err := e.Do(context.Background(), "auth", DefaultPolicy, func(ctx context.Context) error {
		calls++
		return &domain.StatusError{Op: "signin", Code: 401}
	})

	if calls != 1 {
		t.Fatalf("401 must not be retried, got %d invocations", calls)
	}
	var ee *ExhaustedError
	if !errors.As(err, &ee) || ee.Attempts != 1 {
		t.Errorf("expected ExhaustedError with 1 attempt, got %v", err)
	}
	if len(sleeps) != 0 {
		t.Errorf("no backoff sleep expected, got %v", sleeps)
	}
}

func TestDoCancellation(t *testing.T) {
	var sleeps []time.Duration
	e := testExecutor(&sleeps, 1)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := e.Do(ctx, "canceled", DefaultPolicy, func(ctx context.Context) error {
		calls++
		cancel() // give up mid-operation
		return errors.New("interrupted")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var ee *ExhaustedError
	if errors.As(err, &ee) {
		t.Error("cancellation must not surface as exhaustion")
	}
	if calls != 1 {
		t.Errorf("expected 1 invocation before cancel took effect, got %d", calls)
	}
}

func TestDoValue(t *testing.T) {
	var sleeps []time.Duration
	e := testExecutor(&sleeps, 1)

	calls := 0
	got, err := DoValue(context.Background(), e, "fetch", DefaultPolicy, func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("DoValue = (%d, %v), want (42, nil)", got, err)
	}
}

// Transient network failure twice, then success: total backoff stays
// within the jitter envelope of 1s + 2s.
func TestTransientNetworkScenario(t *testing.T) {
	var sleeps []time.Duration
	e := NewWithClock(nil,
		func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
		nil, // real jitter
	)

	calls := 0
	err := e.Do(context.Background(), "loadQuestions", Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}, func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 invocations, got %d", calls)
	}

	var total time.Duration
	for i, s := range sleeps {
		pre := Delay(Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}, i+1)
		if s < pre/2 || s > pre {
			t.Errorf("sleep %d = %v outside jitter bounds of %v", i, s, pre)
		}
		total += s
	}
	if total < 1500*time.Millisecond || total > 4*time.Second {
		t.Errorf("total backoff %v outside [1.5s, 4s]", total)
	}
}
