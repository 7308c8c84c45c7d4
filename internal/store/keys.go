package store

import (
	"context"
	"time"

	"github.com/medquiz/keeper/internal/core/domain"
)

// Well-known keys. Each record is independently expirable.
const (
	KeySession     = "medquiz:session"
	KeyUserProfile = "medquiz:profile"
	KeyQuizState   = "medquiz:quiz_state"
	KeyRecovery    = "medquiz:recovery"
)

// SnapshotTTL bounds how long an interrupted unit of work stays
// recoverable.
const SnapshotTTL = 24 * time.Hour

// SaveSnapshot persists a recovery snapshot under the well-known
// recovery key. Writes older than the stored snapshot are rejected
// with ErrStaleWrite so a lagging autosave tick cannot clobber a
// fresher explicit save.
func (s *PersistentStore) SaveSnapshot(ctx context.Context, snap domain.RecoverySnapshot) error {
	return s.SaveIfNewer(ctx, KeyRecovery, snap, time.UnixMilli(snap.Timestamp), SnapshotTTL)
}

// LoadSnapshot returns the pending recovery snapshot, or nil if none
// survives (absent, expired or corrupt).
func (s *PersistentStore) LoadSnapshot(ctx context.Context) (*domain.RecoverySnapshot, error) {
	var snap domain.RecoverySnapshot
	ok, err := s.Load(ctx, KeyRecovery, &snap)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// ClearSnapshot removes the pending recovery snapshot.
func (s *PersistentStore) ClearSnapshot(ctx context.Context) error {
	return s.Remove(ctx, KeyRecovery)
}
