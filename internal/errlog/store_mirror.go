package errlog

import (
	"context"
	"fmt"

	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/store"
)

const mirrorKey = "medquiz:critical_errors"

// StoreMirror keeps the CRITICAL mirror inside the persistent store,
// for deployments without Redis. Capped at capacity, newest first.
type StoreMirror struct {
	store    *store.PersistentStore
	capacity int
}

// NewStoreMirror creates a store-backed mirror.
func NewStoreMirror(s *store.PersistentStore, capacity int) *StoreMirror {
	if capacity <= 0 {
		capacity = DefaultCriticalCapacity
	}
	return &StoreMirror{store: s, capacity: capacity}
}

// Append prepends rec and trims to capacity.
func (m *StoreMirror) Append(ctx context.Context, rec domain.ErrorRecord) error {
	var records []domain.ErrorRecord
	if _, err := m.store.Load(ctx, mirrorKey, &records); err != nil {
		return fmt.Errorf("failed to load critical mirror: %w", err)
	}
	records = append([]domain.ErrorRecord{rec}, records...)
	if len(records) > m.capacity {
		records = records[:m.capacity]
	}
	if err := m.store.Save(ctx, mirrorKey, records, 0); err != nil {
		return fmt.Errorf("failed to save critical mirror: %w", err)
	}
	return nil
}

// Recent returns up to n mirrored records, newest first.
func (m *StoreMirror) Recent(ctx context.Context, n int) ([]domain.ErrorRecord, error) {
	var records []domain.ErrorRecord
	if _, err := m.store.Load(ctx, mirrorKey, &records); err != nil {
		return nil, err
	}
	if n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// Clear removes the mirror.
func (m *StoreMirror) Clear(ctx context.Context) error {
	return m.store.Remove(ctx, mirrorKey)
}
