package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/infra/kv"
	"github.com/medquiz/keeper/internal/metrics"
	"github.com/medquiz/keeper/internal/retry"
)

var (
	// ErrVerifyFailed means a write read back different bytes than were
	// written. Eligible for retry, never swallowed.
	ErrVerifyFailed = errors.New("write verification failed")

	// ErrStaleWrite means SaveIfNewer observed a stored record newer
	// than the one being written.
	ErrStaleWrite = errors.New("stale write rejected")
)

// PersistentStore is the sole owner of the key-value medium. Every
// value is framed in a PersistedRecord envelope; every operation is
// wrapped in a small retry policy because the medium can fail
// transiently.
type PersistentStore struct {
	kv     kv.Store
	exec   *retry.Executor
	policy retry.Policy
	log    *slog.Logger
	now    func() time.Time
}

// New creates a store over the given medium.
func New(medium kv.Store, exec *retry.Executor, log *slog.Logger) *PersistentStore {
	if log == nil {
		log = slog.Default()
	}
	return &PersistentStore{
		kv:     medium,
		exec:   exec,
		policy: retry.StoragePolicy,
		log:    log,
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *PersistentStore) SetClock(now func() time.Time) { s.now = now }

// Save writes payload under key, stamping savedAt and bumping the
// stored version. A zero ttl means no expiry. Save is last-write-wins;
// writers that must not clobber newer data use SaveIfNewer.
func (s *PersistentStore) Save(ctx context.Context, key string, payload any, ttl time.Duration) error {
	return s.save(ctx, key, payload, s.now(), ttl, false)
}

// SaveIfNewer writes payload only if the stored record (if any) was
// saved at or before savedAt; otherwise it returns ErrStaleWrite. This
// is the explicit answer to autosave racing an explicit save.
func (s *PersistentStore) SaveIfNewer(ctx context.Context, key string, payload any, savedAt time.Time, ttl time.Duration) error {
	return s.save(ctx, key, payload, savedAt, ttl, true)
}

func (s *PersistentStore) save(ctx context.Context, key string, payload any, savedAt time.Time, ttl time.Duration, checkStale bool) error {
	start := time.Now()
	defer func() { metrics.StoreOpLatency.WithLabelValues("save").Observe(time.Since(start).Seconds()) }()

	raw, err := json.Marshal(payload)
	if err != nil {
		metrics.StoreOps.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("failed to marshal payload for %q: %w", key, err)
	}

	current, _ := s.rawRecord(ctx, key)
	if checkStale && current != nil && current.SavedAt > savedAt.UnixMilli() {
		metrics.StoreOps.WithLabelValues("save", "stale").Inc()
		return fmt.Errorf("%w: key %q stored at %d, write at %d",
			ErrStaleWrite, key, current.SavedAt, savedAt.UnixMilli())
	}

	rec := domain.PersistedRecord{
		Payload: raw,
		SavedAt: savedAt.UnixMilli(),
		Version: 1,
	}
	if current != nil {
		rec.Version = current.Version + 1
	}
	if ttl > 0 {
		rec.ExpiresAt = s.now().Add(ttl).UnixMilli()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		metrics.StoreOps.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("failed to marshal record for %q: %w", key, err)
	}

	err = s.exec.Do(ctx, "store.save", s.policy, func(ctx context.Context) error {
		if err := s.kv.Set(ctx, key, data, ttl); err != nil {
			return err
		}
		// Read back and compare; the medium can silently truncate.
		got, err := s.kv.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("verification read failed: %w", err)
		}
		if !bytes.Equal(got, data) {
			return fmt.Errorf("%w: key %q", ErrVerifyFailed, key)
		}
		return nil
	})
	if err != nil {
		metrics.StoreOps.WithLabelValues("save", "error").Inc()
		return err
	}
	metrics.StoreOps.WithLabelValues("save", "ok").Inc()
	return nil
}

// Load reads the record at key into out. It returns false when the key
// is absent, expired, or holds data that no longer deserializes; the
// latter two are deleted on observation. Corruption never propagates as
// an error to callers expecting a plain read.
func (s *PersistentStore) Load(ctx context.Context, key string, out any) (bool, error) {
	start := time.Now()
	defer func() { metrics.StoreOpLatency.WithLabelValues("load").Observe(time.Since(start).Seconds()) }()

	data, err := retry.DoValue(ctx, s.exec, "store.load", s.policy, func(ctx context.Context) ([]byte, error) {
		b, err := s.kv.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		metrics.StoreOps.WithLabelValues("load", "error").Inc()
		return false, err
	}
	if data == nil {
		metrics.StoreOps.WithLabelValues("load", "miss").Inc()
		return false, nil
	}

	var rec domain.PersistedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Warn("removing corrupt record", "key", key, "error", err)
		s.deleteQuiet(ctx, key)
		metrics.StoreOps.WithLabelValues("load", "corrupt").Inc()
		return false, nil
	}
	if rec.Expired(s.now()) {
		s.deleteQuiet(ctx, key)
		metrics.StoreOps.WithLabelValues("load", "expired").Inc()
		return false, nil
	}
	if err := json.Unmarshal(rec.Payload, out); err != nil {
		s.log.Warn("removing undecodable payload", "key", key, "error", err)
		s.deleteQuiet(ctx, key)
		metrics.StoreOps.WithLabelValues("load", "corrupt").Inc()
		return false, nil
	}
	metrics.StoreOps.WithLabelValues("load", "ok").Inc()
	return true, nil
}

// Remove deletes the record at key. Removing an absent key is a no-op.
func (s *PersistentStore) Remove(ctx context.Context, key string) error {
	start := time.Now()
	defer func() { metrics.StoreOpLatency.WithLabelValues("remove").Observe(time.Since(start).Seconds()) }()

	err := s.exec.Do(ctx, "store.remove", s.policy, func(ctx context.Context) error {
		return s.kv.Del(ctx, key)
	})
	if err != nil {
		metrics.StoreOps.WithLabelValues("remove", "error").Inc()
		return err
	}
	metrics.StoreOps.WithLabelValues("remove", "ok").Inc()
	return nil
}

// rawRecord reads the envelope at key without expiry or payload checks.
// Used for version bumps and stale-write detection.
func (s *PersistentStore) rawRecord(ctx context.Context, key string) (*domain.PersistedRecord, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var rec domain.PersistedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PersistentStore) deleteQuiet(ctx context.Context, key string) {
	if err := s.kv.Del(ctx, key); err != nil {
		s.log.Warn("failed to delete record", "key", key, "error", err)
	}
}
