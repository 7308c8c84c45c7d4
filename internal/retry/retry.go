package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/metrics"
)

// Policy defines retry behavior for one invocation. Immutable once
// passed to Do; callers share the package defaults or build their own.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	RetryIf     func(error) bool // nil = DefaultRetryIf
}

// DefaultPolicy provides sensible defaults for network-facing calls.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    30 * time.Second,
	Multiplier:  2.0,
}

// StoragePolicy is the small policy the persistent store wraps its own
// reads and writes in. The medium fails transiently (quota, privacy
// blocks), so a couple of quick attempts is enough.
var StoragePolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   50 * time.Millisecond,
	MaxDelay:    500 * time.Millisecond,
	Multiplier:  2.0,
}

// ExhaustedError reports terminal failure: the operation name, how many
// attempts were made and the last underlying error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// DefaultRetryIf retries pure transport failures (no status code) and
// statuses 408, 429 and 5xx. Other 4xx statuses indicate a client error
// that waiting will not fix.
func DefaultRetryIf(err error) bool {
	var se *domain.StatusError
	if !errors.As(err, &se) {
		return true
	}
	switch {
	case se.Code == 408, se.Code == 429:
		return true
	case se.Code >= 500:
		return true
	}
	return false
}

// Delay computes the pre-jitter backoff for a 1-based attempt index:
// min(base * multiplier^(attempt-1), max). Pure, so it can be tested
// without waiting in real time.
func Delay(p Policy, attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Executor runs fallible operations with exponential backoff and
// jitter. Sleep and jitter sources are injectable so tests never wait.
type Executor struct {
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64 // uniform in [0, 1)
}

// New creates an Executor backed by real time and math/rand jitter.
func New(log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		log:    log,
		sleep:  sleepCtx,
		jitter: rand.Float64,
	}
}

// NewWithClock creates an Executor with injected sleep and jitter
// sources, for tests.
func NewWithClock(
	log *slog.Logger,
	sleep func(ctx context.Context, d time.Duration) error,
	jitter func() float64,
) *Executor {
	e := New(log)
	if sleep != nil {
		e.sleep = sleep
	}
	if jitter != nil {
		e.jitter = jitter
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, the policy's retry budget is exhausted,
// or the error is not retry-eligible. The first attempt runs
// immediately. Attempts are strictly sequential. A canceled context
// aborts at the next suspension point and is surfaced as the context's
// error, never as an ExhaustedError.
func (e *Executor) Do(ctx context.Context, op string, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attempts = attempt
		if err := ctx.Err(); err != nil {
			return err
		}

		metrics.RetryAttempts.WithLabelValues(op).Inc()
		start := time.Now()
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Cancellation is not a failure; do not wrap, log or retry.
			return err
		}

		lastErr = err
		e.log.Debug("attempt failed",
			"operation", op,
			"attempt", attempt,
			"of", p.MaxAttempts,
			"elapsed", time.Since(start),
			"error", err)

		if !retryIf(err) || attempt == p.MaxAttempts {
			break
		}

		delay := Jittered(Delay(p, attempt), e.jitter())
		e.log.Debug("retrying after backoff", "operation", op, "attempt", attempt, "delay", delay)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	metrics.RetryExhausted.WithLabelValues(op).Inc()
	return &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

// Jittered scales a delay by a uniform random factor in [0.5, 1.0] so
// concurrent callers do not retry in lockstep.
func Jittered(d time.Duration, u float64) time.Duration {
	return time.Duration(float64(d) * (0.5 + u/2))
}

// DoValue is Do for operations that return a value.
func DoValue[T any](
	ctx context.Context,
	e *Executor,
	op string,
	p Policy,
	fn func(context.Context) (T, error),
) (T, error) {
	var out T
	err := e.Do(ctx, op, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
