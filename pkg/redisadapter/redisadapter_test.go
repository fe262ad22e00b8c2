package redisadapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestCacheGetSetRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	if _, hit, err := a.Get(ctx, "k"); err != nil || hit {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}
	if err := a.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry, hit, err := a.Get(ctx, "k")
	if err != nil || !hit || string(entry.Value) != "v" {
		t.Fatalf("unexpected read: hit=%v err=%v value=%s", hit, err, entry.Value)
	}
}

func TestAcquireIsExclusiveUnderConcurrency(t *testing.T) {
	a := newTestAdapter(t)
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

func TestReleaseOnlyByOwner(t *testing.T) {
	a := newTestAdapter(t)
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

	if err := a.Release(ctx, "k", "owner-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	res, err = a.Acquire(ctx, "k", "owner-4", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res.Outcome != 0 {
		t.Fatalf("expected owner-4 to become leader after owner-1 released")
	}
}

func TestMarkReadyAndIsReady(t *testing.T) {
	a := newTestAdapter(t)
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
