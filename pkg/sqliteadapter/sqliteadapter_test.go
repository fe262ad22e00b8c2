package sqliteadapter

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func openTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cachelock_test.db")
	a, err := Open(context.Background(), Config{Path: dbPath, BusyTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestCacheGetSetRoundTrip(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	if _, hit, err := a.Get(ctx, "k"); err != nil || hit {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}
	if err := a.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry, hit, err := a.Get(ctx, "k")
	if err != nil || !hit || string(entry.Value) != "v1" {
		t.Fatalf("unexpected read: hit=%v err=%v value=%s", hit, err, entry.Value)
	}

	if err := a.Set(ctx, "k", []byte("v2"), 50*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, hit, _ := a.Get(ctx, "k"); hit {
		t.Fatalf("expected expired entry to read as a miss")
	}
}

func TestAcquireIsExclusiveUnderConcurrency(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	const callers = 20
	var leaders atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := a.Acquire(ctx, "shared-key", fmt.Sprintf("owner-%d", i), time.Minute)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if res.Outcome == 0 {
				leaders.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := leaders.Load(); got != 1 {
		t.Fatalf("expected exactly 1 leader among %d callers, got %d", callers, got)
	}
}

func TestReleaseRequiresMatchingOwner(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	if _, err := a.Acquire(ctx, "k", "owner-1", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := a.Release(ctx, "k", "owner-2"); err != nil {
		t.Fatalf("release: %v", err)
	}

	res, err := a.Acquire(ctx, "k", "owner-3", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res.Outcome == 0 {
		t.Fatalf("lease should still be held by owner-1")
	}
}

func TestMarkReadyAndIsReady(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	if _, err := a.Acquire(ctx, "k", "owner-1", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	state, supported, err := a.IsReady(ctx, "k")
	if err != nil || !supported || state.Ready {
		t.Fatalf("expected not-ready, got %+v supported=%v err=%v", state, supported, err)
	}

	if err := a.MarkReady(ctx, "k"); err != nil {
		t.Fatalf("markready: %v", err)
	}
	state, _, err = a.IsReady(ctx, "k")
	if err != nil || !state.Ready {
		t.Fatalf("expected ready, got %+v err=%v", state, err)
	}
}
