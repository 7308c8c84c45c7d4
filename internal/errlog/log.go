package errlog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/medquiz/keeper/internal/core/domain"
)

const (
	// DefaultCapacity bounds the in-memory buffer.
	DefaultCapacity = 1000
	// DefaultCriticalCapacity bounds the durable CRITICAL mirror.
	DefaultCriticalCapacity = 50
)

// Mirror is the durable side-channel for CRITICAL records.
type Mirror interface {
	Append(ctx context.Context, rec domain.ErrorRecord) error
	Clear(ctx context.Context) error
}

// Sink receives CRITICAL records in addition to the mirror: the
// monitoring forwarder, the Postgres audit table.
type Sink interface {
	Write(ctx context.Context, rec domain.ErrorRecord) error
}

// Log is a bounded, time-ordered buffer of classified errors. Oldest
// entries are evicted once capacity is exceeded. CRITICAL entries are
// additionally mirrored durably and fanned out to sinks; a mirror or
// sink failure never blocks the append.
type Log struct {
	mu        sync.Mutex
	entries   []domain.ErrorRecord
	capacity  int
	sessionID string
	mirror    Mirror
	sinks     []Sink
	log       *slog.Logger
}

// NewLog creates a log with the given capacity (0 = DefaultCapacity).
func NewLog(capacity int, sessionID string, mirror Mirror, log *slog.Logger, sinks ...Sink) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = slog.Default()
	}
	return &Log{
		capacity:  capacity,
		sessionID: sessionID,
		mirror:    mirror,
		sinks:     sinks,
		log:       log,
	}
}

// Append records rec, evicting the oldest entry if the buffer is full.
func (l *Log) Append(ctx context.Context, rec domain.ErrorRecord) {
	l.mu.Lock()
	l.entries = append(l.entries, rec)
	if len(l.entries) > l.capacity {
		l.entries = append(l.entries[:0], l.entries[len(l.entries)-l.capacity:]...)
	}
	l.mu.Unlock()

	if rec.Severity != domain.SeverityCritical {
		return
	}
	if l.mirror != nil {
		if err := l.mirror.Append(ctx, rec); err != nil {
			l.log.Warn("failed to mirror critical record", "id", rec.ID, "error", err)
		}
	}
	for _, s := range l.sinks {
		if err := s.Write(ctx, rec); err != nil {
			l.log.Warn("failed to deliver critical record to sink", "id", rec.ID, "error", err)
		}
	}
}

// Len returns the number of buffered entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Recent returns the most recent k entries in original relative order.
func (l *Log) Recent(k int) []domain.ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if k <= 0 || k > len(l.entries) {
		k = len(l.entries)
	}
	out := make([]domain.ErrorRecord, k)
	copy(out, l.entries[len(l.entries)-k:])
	return out
}

// ByKind returns all buffered entries of the given kind.
func (l *Log) ByKind(kind domain.ErrorKind) []domain.ErrorRecord {
	return l.filter(func(r domain.ErrorRecord) bool { return r.Kind == kind })
}

// BySeverity returns all buffered entries of the given severity.
func (l *Log) BySeverity(sev domain.Severity) []domain.ErrorRecord {
	return l.filter(func(r domain.ErrorRecord) bool { return r.Severity == sev })
}

func (l *Log) filter(keep func(domain.ErrorRecord) bool) []domain.ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.ErrorRecord
	for _, r := range l.entries {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Clear empties the buffer and removes the durable CRITICAL mirror.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
	if l.mirror != nil {
		return l.mirror.Clear(ctx)
	}
	return nil
}
