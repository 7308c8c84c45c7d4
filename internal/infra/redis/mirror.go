package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medquiz/keeper/internal/core/domain"
)

// CriticalMirror is the durable side-channel for CRITICAL error
// records: a capped Redis list, newest first. Records are already
// sanitized when they reach the mirror.
type CriticalMirror struct {
	rdb *Client
	key string
	cap int64
}

// NewCriticalMirror creates a mirror holding at most capacity records.
func NewCriticalMirror(client *Client, capacity int) *CriticalMirror {
	return &CriticalMirror{
		rdb: client,
		key: "keeper:critical_errors",
		cap: int64(capacity),
	}
}

// Append pushes a record and trims the list to capacity.
func (m *CriticalMirror) Append(ctx context.Context, rec domain.ErrorRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal error record: %w", err)
	}
	pipe := m.rdb.rdb.TxPipeline()
	pipe.LPush(ctx, m.key, data)
	pipe.LTrim(ctx, m.key, 0, m.cap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to critical mirror: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first. Entries that fail to
// decode are skipped rather than propagated.
func (m *CriticalMirror) Recent(ctx context.Context, n int) ([]domain.ErrorRecord, error) {
	raws, err := m.rdb.rdb.LRange(ctx, m.key, 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read critical mirror: %w", err)
	}
	records := make([]domain.ErrorRecord, 0, len(raws))
	for _, raw := range raws {
		var rec domain.ErrorRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Clear removes the mirror entirely.
func (m *CriticalMirror) Clear(ctx context.Context) error {
	if err := m.rdb.rdb.Del(ctx, m.key).Err(); err != nil {
		return fmt.Errorf("failed to clear critical mirror: %w", err)
	}
	return nil
}
