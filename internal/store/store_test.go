package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/infra/kv"
	"github.com/medquiz/keeper/internal/retry"
)

func instantExecutor() *retry.Executor {
	return retry.NewWithClock(nil,
		func(ctx context.Context, d time.Duration) error { return ctx.Err() },
		func() float64 { return 1 },
	)
}

// newTestStore returns a store over a memory medium with a frozen
// medium clock and a controllable store clock, so expiry is exercised
// in the store layer rather than the medium's own TTL handling.
func newTestStore(t *testing.T) (*PersistentStore, *kv.Memory, *time.Time) {
	t.Helper()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base

	mem := kv.NewMemory()
	mem.SetClock(func() time.Time { return base })

	s := New(mem, instantExecutor(), nil)
	s.SetClock(func() time.Time { return now })
	return s, mem, &now
}

type payload struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	in := payload{Name: "cardio quiz", Count: 7, Tags: []string{"cardiology", "hard"}}
	if err := s.Save(ctx, "k", in, 0); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var out payload
	ok, err := s.Load(ctx, "k", &out)
	if err != nil || !ok {
		t.Fatalf("load = (%v, %v), want (true, nil)", ok, err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestLoadMissingKey(t *testing.T) {
	s, _, _ := newTestStore(t)
	var out payload
	ok, err := s.Load(context.Background(), "absent", &out)
	if err != nil || ok {
		t.Errorf("load of absent key = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestExpiryIsDestructive(t *testing.T) {
	s, mem, now := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "k", payload{Name: "x"}, time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	*now = now.Add(2 * time.Hour)

	var out payload
	ok, err := s.Load(ctx, "k", &out)
	if err != nil || ok {
		t.Fatalf("expired load = (%v, %v), want (false, nil)", ok, err)
	}
	// Deleted on observation: the medium no longer holds the key.
	if _, err := mem.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expired record should be deleted, got %v", err)
	}
	// And a second read agrees.
	if ok, err := s.Load(ctx, "k", &out); err != nil || ok {
		t.Errorf("second expired load = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestCorruptRecordIsRemoved(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()

	if err := mem.Set(ctx, "k", []byte("{definitely not json"), 0); err != nil {
		t.Fatal(err)
	}
	var out payload
	ok, err := s.Load(ctx, "k", &out)
	if err != nil || ok {
		t.Fatalf("corrupt load = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := mem.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("corrupt record should be deleted, got %v", err)
	}
}

func TestUndecodablePayloadIsRemoved(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()

	rec := domain.PersistedRecord{Payload: json.RawMessage(`"just a string"`), SavedAt: 1}
	data, _ := json.Marshal(rec)
	if err := mem.Set(ctx, "k", data, 0); err != nil {
		t.Fatal(err)
	}

	var out payload
	ok, err := s.Load(ctx, "k", &out)
	if err != nil || ok {
		t.Fatalf("undecodable load = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := mem.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("undecodable record should be deleted, got %v", err)
	}
}

// truncatingKV corrupts the first write to each key; the read-back
// verification must catch it and the retry must repair it.
type truncatingKV struct {
	kv.Store
	mu        sync.Mutex
	truncated map[string]bool
}

func (f *truncatingKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	first := !f.truncated[key]
	f.truncated[key] = true
	f.mu.Unlock()
	if first && len(value) > 4 {
		value = value[:len(value)/2]
	}
	return f.Store.Set(ctx, key, value, ttl)
}

func TestWriteVerificationRetries(t *testing.T) {
	mem := kv.NewMemory()
	flaky := &truncatingKV{Store: mem, truncated: make(map[string]bool)}
	s := New(flaky, instantExecutor(), nil)

	ctx := context.Background()
	in := payload{Name: "verify me", Count: 3}
	if err := s.Save(ctx, "k", in, 0); err != nil {
		t.Fatalf("save should recover from truncated write: %v", err)
	}

	var out payload
	ok, err := s.Load(ctx, "k", &out)
	if err != nil || !ok || !reflect.DeepEqual(in, out) {
		t.Errorf("load after repaired write = (%+v, %v, %v)", out, ok, err)
	}
}

func TestSaveIfNewerRejectsStale(t *testing.T) {
	s, _, now := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "k", payload{Name: "fresh"}, 0); err != nil {
		t.Fatal(err)
	}
	err := s.SaveIfNewer(ctx, "k", payload{Name: "stale"}, now.Add(-time.Hour), 0)
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}

	var out payload
	if ok, _ := s.Load(ctx, "k", &out); !ok || out.Name != "fresh" {
		t.Errorf("stale write must not clobber, got %+v", out)
	}
}

func TestVersionIncrements(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Save(ctx, "k", payload{Count: i}, 0); err != nil {
			t.Fatal(err)
		}
	}

	data, err := mem.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	var rec domain.PersistedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Version != 3 {
		t.Errorf("version = %d, want 3", rec.Version)
	}
}

func TestRemove(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "k", payload{Name: "x"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	var out payload
	if ok, _ := s.Load(ctx, "k", &out); ok {
		t.Error("removed key should not load")
	}
	// Removing again is a no-op.
	if err := s.Remove(ctx, "k"); err != nil {
		t.Errorf("second remove should be a no-op: %v", err)
	}
}

func TestSnapshotHelpers(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	snap, err := domain.NewSnapshot(domain.WorkQuizCreation, map[string]any{"count": 10}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot failed: %v", err)
	}

	got, err := s.LoadSnapshot(ctx)
	if err != nil || got == nil {
		t.Fatalf("load snapshot = (%v, %v)", got, err)
	}
	if got.Type != domain.WorkQuizCreation || got.Timestamp != snap.Timestamp {
		t.Errorf("snapshot mismatch: %+v", got)
	}

	if err := s.ClearSnapshot(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.LoadSnapshot(ctx); got != nil {
		t.Error("cleared snapshot should not load")
	}
}
