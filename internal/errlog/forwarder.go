package errlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/metrics"
)

// DefaultForwardQueue caps how many undelivered records wait for the
// next online transition.
const DefaultForwardQueue = 100

// Forwarder posts CRITICAL records to an external monitoring endpoint.
// Delivery failures queue the record; the queue is flushed on the next
// successful delivery or an explicit SetOnline(true) transition.
type Forwarder struct {
	url    string
	client *http.Client
	log    *slog.Logger

	mu       sync.Mutex
	queue    []domain.ErrorRecord
	maxQueue int
	online   bool
}

// NewForwarder creates a forwarder for the given endpoint.
func NewForwarder(url string, log *slog.Logger) *Forwarder {
	if log == nil {
		log = slog.Default()
	}
	return &Forwarder{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
		maxQueue: DefaultForwardQueue,
		online:   true,
	}
}

// Write delivers rec, queueing it if the endpoint is unreachable.
// Write never returns a delivery error to the caller; an undeliverable
// record waits in the queue instead.
func (f *Forwarder) Write(ctx context.Context, rec domain.ErrorRecord) error {
	f.mu.Lock()
	if !f.online {
		f.enqueueLocked(rec)
		f.mu.Unlock()
		metrics.CriticalForwarded.WithLabelValues("queued").Inc()
		return nil
	}
	f.mu.Unlock()

	if err := f.post(ctx, rec); err != nil {
		f.log.Warn("monitoring delivery failed, queueing record", "id", rec.ID, "error", err)
		f.mu.Lock()
		f.online = false
		f.enqueueLocked(rec)
		f.mu.Unlock()
		metrics.CriticalForwarded.WithLabelValues("queued").Inc()
		return nil
	}
	metrics.CriticalForwarded.WithLabelValues("ok").Inc()
	f.flush(ctx)
	return nil
}

// SetOnline marks the connectivity state; transitioning to online
// flushes the pending queue.
func (f *Forwarder) SetOnline(ctx context.Context, online bool) {
	f.mu.Lock()
	f.online = online
	f.mu.Unlock()
	if online {
		f.flush(ctx)
	}
}

// Pending returns the number of queued records.
func (f *Forwarder) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *Forwarder) enqueueLocked(rec domain.ErrorRecord) {
	f.queue = append(f.queue, rec)
	if len(f.queue) > f.maxQueue {
		f.queue = f.queue[len(f.queue)-f.maxQueue:]
	}
}

// flush drains the queue in order, stopping at the first failure.
func (f *Forwarder) flush(ctx context.Context) {
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			return
		}
		rec := f.queue[0]
		f.mu.Unlock()

		if err := f.post(ctx, rec); err != nil {
			f.mu.Lock()
			f.online = false
			f.mu.Unlock()
			return
		}
		metrics.CriticalForwarded.WithLabelValues("ok").Inc()

		f.mu.Lock()
		if len(f.queue) > 0 && f.queue[0].ID == rec.ID {
			f.queue = f.queue[1:]
		}
		f.mu.Unlock()
	}
}

func (f *Forwarder) post(ctx context.Context, rec domain.ErrorRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("monitoring endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
