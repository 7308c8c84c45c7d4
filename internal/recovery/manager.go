package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/metrics"
	"github.com/medquiz/keeper/internal/store"
)

// State of the manager. Two states only: Idle and RecoveryAvailable.
type State int

const (
	StateIdle State = iota
	StateRecoveryAvailable
)

func (s State) String() string {
	if s == StateRecoveryAvailable {
		return "recovery_available"
	}
	return "idle"
}

// Handler replays one kind of interrupted work from its snapshot data.
type Handler func(ctx context.Context, data json.RawMessage) error

// Manager detects a previously interrupted unit of work at startup and
// replays or discards it. Replay is at-least-once: a failed replay
// keeps the snapshot so a second attempt remains possible.
type Manager struct {
	store    *store.PersistentStore
	log      *slog.Logger
	handlers map[domain.WorkType]Handler

	mu      sync.Mutex
	state   State
	pending *domain.RecoverySnapshot
}

// NewManager creates a manager in the Idle state.
func NewManager(s *store.PersistentStore, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:    s,
		log:      log,
		handlers: make(map[domain.WorkType]Handler),
	}
}

// Register installs the replay handler for a work type. The work type
// set is closed; registration of each member happens at wiring time.
func (m *Manager) Register(wt domain.WorkType, h Handler) {
	m.handlers[wt] = h
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns the snapshot awaiting a replay/discard decision.
func (m *Manager) Pending() *domain.RecoverySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Check reads the well-known recovery key. A surviving snapshot moves
// the manager to RecoveryAvailable and is returned for the caller to
// offer replay.
func (m *Manager) Check(ctx context.Context) (*domain.RecoverySnapshot, error) {
	snap, err := m.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("recovery check failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap == nil {
		m.state = StateIdle
		m.pending = nil
		return nil, nil
	}
	m.state = StateRecoveryAvailable
	m.pending = snap
	m.log.Info("interrupted work detected", "type", snap.Type, "savedAt", snap.Timestamp)
	return snap, nil
}

// Recover replays the pending snapshot through its registered handler.
// On success the snapshot is cleared and the manager returns to Idle.
// On failure the snapshot is kept and the manager stays in
// RecoveryAvailable.
func (m *Manager) Recover(ctx context.Context) error {
	m.mu.Lock()
	snap := m.pending
	m.mu.Unlock()
	if snap == nil {
		return fmt.Errorf("no recovery pending")
	}

	h, ok := m.handlers[snap.Type]
	if !ok {
		return fmt.Errorf("no handler registered for work type %q", snap.Type)
	}

	if err := h(ctx, snap.Data); err != nil {
		metrics.RecoveryReplays.WithLabelValues(string(snap.Type), "error").Inc()
		m.log.Warn("recovery replay failed, snapshot kept", "type", snap.Type, "error", err)
		return fmt.Errorf("replay of %s failed: %w", snap.Type, err)
	}

	metrics.RecoveryReplays.WithLabelValues(string(snap.Type), "ok").Inc()
	if err := m.store.ClearSnapshot(ctx); err != nil {
		return fmt.Errorf("replay succeeded but snapshot not cleared: %w", err)
	}
	m.mu.Lock()
	m.state = StateIdle
	m.pending = nil
	m.mu.Unlock()
	m.log.Info("recovery replay complete", "type", snap.Type)
	return nil
}

// Discard drops the pending snapshot and returns to Idle. Discarding
// with nothing pending is a no-op.
func (m *Manager) Discard(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pending != nil
	m.mu.Unlock()
	if !pending {
		return nil
	}
	if err := m.store.ClearSnapshot(ctx); err != nil {
		return fmt.Errorf("failed to discard snapshot: %w", err)
	}
	m.mu.Lock()
	m.state = StateIdle
	m.pending = nil
	m.mu.Unlock()
	metrics.RecoveryReplays.WithLabelValues("", "discarded").Inc()
	return nil
}
