// ABOUTME: Tests for the dual-scope login throttle and memory counter store
// ABOUTME: Covers capacity, blocking, lazy expiry, reset, races, and store outage policy

package throttle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{Points: 5, Window: 20 * time.Minute, BlockDuration: 20 * time.Minute}
}

func TestMemoryCounterStore_CapacityThenBlock(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()
	limits := testLimits()

	for i := 0; i < 5; i++ {
		c, err := store.ConsumePoint(ctx, ScopeAddress, "1.2.3.4", limits)
		if err != nil {
			t.Fatalf("ConsumePoint() error = %v", err)
		}
		if !c.OK {
			t.Fatalf("consumption %d rejected, want ok", i+1)
		}
	}

	c, err := store.ConsumePoint(ctx, ScopeAddress, "1.2.3.4", limits)
	if err != nil {
		t.Fatalf("ConsumePoint() error = %v", err)
	}
	if c.OK {
		t.Fatal("sixth consumption succeeded, want rejected")
	}
	if c.RetryAfter <= 0 || c.RetryAfter > limits.BlockDuration {
		t.Errorf("RetryAfter = %v, want within (0, %v]", c.RetryAfter, limits.BlockDuration)
	}
}

func TestMemoryCounterStore_BlockOutlivesWindow(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()
	limits := Limits{Points: 2, Window: time.Minute, BlockDuration: 20 * time.Minute}

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		store.ConsumePoint(ctx, ScopeAccount, "a@x.com", limits)
	}

	// Past the window but inside the block: still rejected.
	now = now.Add(5 * time.Minute)
	c, err := store.ConsumePoint(ctx, ScopeAccount, "a@x.com", limits)
	if err != nil {
		t.Fatalf("ConsumePoint() error = %v", err)
	}
	if c.OK {
		t.Fatal("consumption during block succeeded, want rejected")
	}

	// Past the block: counting starts over.
	now = now.Add(16 * time.Minute)
	c, err = store.ConsumePoint(ctx, ScopeAccount, "a@x.com", limits)
	if err != nil {
		t.Fatalf("ConsumePoint() error = %v", err)
	}
	if !c.OK {
		t.Fatal("consumption after block elapsed rejected, want ok")
	}
}

func TestMemoryCounterStore_WindowExpiry(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()
	limits := testLimits()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		store.ConsumePoint(ctx, ScopeAddress, "1.2.3.4", limits)
	}

	// A fresh window clears consumed points for a key that never blocked.
	now = now.Add(21 * time.Minute)
	c, err := store.ConsumePoint(ctx, ScopeAddress, "1.2.3.4", limits)
	if err != nil {
		t.Fatalf("ConsumePoint() error = %v", err)
	}
	if !c.OK {
		t.Fatal("consumption in a fresh window rejected, want ok")
	}
}

func TestMemoryCounterStore_ResetUnblocks(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()
	limits := Limits{Points: 1, Window: time.Minute, BlockDuration: time.Hour}

	store.ConsumePoint(ctx, ScopeAccount, "a@x.com", limits)
	c, _ := store.ConsumePoint(ctx, ScopeAccount, "a@x.com", limits)
	if c.OK {
		t.Fatal("expected key to be blocked")
	}

	if err := store.ResetCounter(ctx, ScopeAccount, "a@x.com"); err != nil {
		t.Fatalf("ResetCounter() error = %v", err)
	}

	c, _ = store.ConsumePoint(ctx, ScopeAccount, "a@x.com", limits)
	if !c.OK {
		t.Fatal("consumption after reset rejected, want ok")
	}
}

func TestMemoryCounterStore_NoDoubleCountRace(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()
	limits := Limits{Points: 5, Window: time.Minute, BlockDuration: time.Hour}

	var ok int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := store.ConsumePoint(ctx, ScopeAddress, "race-key", limits)
			if err == nil && c.OK {
				atomic.AddInt64(&ok, 1)
			}
		}()
	}
	wg.Wait()

	if ok != 5 {
		t.Errorf("successful consumptions = %d, want exactly 5", ok)
	}
}

func TestLimiter_BothScopesConsulted(t *testing.T) {
	store := NewMemoryCounterStore()
	logger := slog.New(slog.DiscardHandler)
	limits := Limits{Points: 2, Window: time.Minute, BlockDuration: time.Hour}
	lim := NewLimiter(store, logger, WithLimits(limits))
	ctx := context.Background()

	// Exhaust the address scope against one account.
	for i := 0; i < 3; i++ {
		lim.Check(ctx, "9.9.9.9", "victim@x.com")
	}

	// A different account from the same address is still throttled.
	d := lim.Check(ctx, "9.9.9.9", "other@x.com")
	if d.Outcome != OutcomeThrottled {
		t.Fatalf("Check() outcome = %v, want OutcomeThrottled", d.Outcome)
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", d.RetryAfter)
	}

	// The same account from a fresh address is fine (account got 2 points).
	d = lim.Check(ctx, "8.8.8.8", "other2@x.com")
	if d.Outcome != OutcomeOK {
		t.Errorf("Check() outcome = %v, want OutcomeOK", d.Outcome)
	}
}

func TestLimiter_ResetClearsBothScopes(t *testing.T) {
	store := NewMemoryCounterStore()
	logger := slog.New(slog.DiscardHandler)
	limits := Limits{Points: 1, Window: time.Minute, BlockDuration: time.Hour}
	lim := NewLimiter(store, logger, WithLimits(limits))
	ctx := context.Background()

	lim.Check(ctx, "1.1.1.1", "A@X.com")
	d := lim.Check(ctx, "1.1.1.1", "a@x.com")
	if d.Outcome != OutcomeThrottled {
		t.Fatalf("Check() outcome = %v, want OutcomeThrottled", d.Outcome)
	}

	lim.Reset(ctx, "1.1.1.1", "a@x.com")

	d = lim.Check(ctx, "1.1.1.1", "A@X.com")
	if d.Outcome != OutcomeOK {
		t.Errorf("Check() after reset = %v, want OutcomeOK", d.Outcome)
	}
}

type failingCounterStore struct{}

func (failingCounterStore) ConsumePoint(context.Context, string, string, Limits) (Consumption, error) {
	return Consumption{}, errors.New("connection refused")
}

func (failingCounterStore) ResetCounter(context.Context, string, string) error {
	return errors.New("connection refused")
}

func TestLimiter_StoreOutage(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	open := NewLimiter(failingCounterStore{}, logger)
	if d := open.Check(ctx, "1.1.1.1", "a@x.com"); d.Outcome != OutcomeOK {
		t.Errorf("fail-open Check() = %v, want OutcomeOK", d.Outcome)
	}

	closed := NewLimiter(failingCounterStore{}, logger, WithFailClosed())
	if d := closed.Check(ctx, "1.1.1.1", "a@x.com"); d.Outcome != OutcomeStoreUnavailable {
		t.Errorf("fail-closed Check() = %v, want OutcomeStoreUnavailable", d.Outcome)
	}
}
