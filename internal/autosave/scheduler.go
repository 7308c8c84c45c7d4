package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/metrics"
	"github.com/medquiz/keeper/internal/store"
)

// DefaultInterval is the autosave cadence.
const DefaultInterval = 30 * time.Second

// Accessor returns the current in-progress state for a target, or
// ok=false when there is nothing worth saving (the tick is skipped).
type Accessor func() (any, bool)

// Scheduler snapshots caller-supplied state into the persistent store
// at a fixed cadence. At most one timer runs per logical target;
// starting a new one cancels its predecessor. Stop is idempotent.
type Scheduler struct {
	store    *store.PersistentStore
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler (interval 0 = DefaultInterval).
func NewScheduler(s *store.PersistentStore, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:    s,
		interval: interval,
		log:      log,
		now:      time.Now,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start begins autosaving for target, replacing any timer already
// running for it.
func (s *Scheduler) Start(ctx context.Context, target string, fn Accessor) {
	s.mu.Lock()
	if cancel, ok := s.cancels[target]; ok {
		cancel()
	}
	tickCtx, cancel := context.WithCancel(ctx)
	s.cancels[target] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(tickCtx, target, fn)
}

// Stop cancels the timer for target. Stopping an already-stopped or
// unknown target is a no-op.
func (s *Scheduler) Stop(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[target]; ok {
		cancel()
		delete(s.cancels, target)
	}
}

// StopAll cancels every timer and waits for the tick goroutines to
// drain.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for target, cancel := range s.cancels {
		cancel()
		delete(s.cancels, target)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, target string, fn Accessor) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, target, fn)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, target string, fn Accessor) {
	state, ok := fn()
	if !ok {
		metrics.AutosaveTicks.WithLabelValues(target, "skipped").Inc()
		return
	}

	snap, err := domain.NewSnapshot(domain.WorkAutosave, state, s.now())
	if err != nil {
		metrics.AutosaveTicks.WithLabelValues(target, "error").Inc()
		s.log.Warn("autosave snapshot build failed", "target", target, "error", err)
		return
	}

	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		if errors.Is(err, store.ErrStaleWrite) {
			// A fresher save already landed; this tick has nothing to add.
			metrics.AutosaveTicks.WithLabelValues(target, "stale").Inc()
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		metrics.AutosaveTicks.WithLabelValues(target, "error").Inc()
		s.log.Warn("autosave write failed", "target", target, "error", err)
		return
	}
	metrics.AutosaveTicks.WithLabelValues(target, "ok").Inc()
	s.log.Debug("autosave tick", "target", target)
}
