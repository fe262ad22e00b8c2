package cachelock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cachelock "github.com/jbt95/cache-locking"
	"github.com/jbt95/cache-locking/pkg/memadapter"
)

func newTestLocker(nowFn func() int64) (*cachelock.Locker, *memadapter.Adapter) {
	adapter := memadapter.New(nowFn)
	return cachelock.New(cachelock.Defaults{
		Cache:    adapter,
		Leases:   adapter,
		LeaseTTL: time.Second,
		WaitStep: time.Millisecond,
	}), adapter
}

// S1: single caller, cache miss -> becomes leader, fetches once, result is
// cached for the next call.
func TestGetOrSetSingleCallerBecomesLeader(t *testing.T) {
	locker, _ := newTestLocker(nil)
	var calls atomic.Int32

	fetch := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("value"), nil
	}

	res, err := locker.GetOrSet(context.Background(), "k", fetch, cachelock.Options{})
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if string(res.Value) != "value" {
		t.Fatalf("unexpected value: %s", res.Value)
	}
	if res.Meta.Outcome != cachelock.OutcomeMissLeader {
		t.Fatalf("expected MISS-LEADER, got %s", res.Meta.Outcome)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", calls.Load())
	}
}

// S2: a cache hit never invokes the fetcher.
func TestGetOrSetCacheHitSkipsFetcher(t *testing.T) {
	locker, adapter := newTestLocker(nil)
	if err := adapter.Set(context.Background(), "k", []byte("cached"), time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	called := false
	fetch := func(ctx context.Context) ([]byte, error) {
		called = true
		return nil, nil
	}

	res, err := locker.GetOrSet(context.Background(), "k", fetch, cachelock.Options{})
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if called {
		t.Fatalf("fetcher must not be called on a cache hit")
	}
	if res.Meta.Outcome != cachelock.OutcomeHit {
		t.Fatalf("expected HIT, got %s", res.Meta.Outcome)
	}
	if string(res.Value) != "cached" {
		t.Fatalf("unexpected value: %s", res.Value)
	}
}

// S3: N concurrent callers racing a miss for the same key invoke the
// fetcher exactly once; everyone else waits for the leader's cache write
// and returns the cached value.
func TestGetOrSetConcurrentCallersShareOneFetch(t *testing.T) {
	locker, _ := newTestLocker(nil)
	var calls atomic.Int32

	fetch := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return []byte("shared-value"), nil
	}

	const callers = 25
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := locker.GetOrSet(context.Background(), "shared-key", fetch, cachelock.Options{
				WaitMax: time.Second, HasWaitMax: true,
			})
			errs[i] = err
			if err == nil {
				results[i] = string(res.Value)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
		if results[i] != "shared-value" {
			t.Fatalf("caller %d got unexpected value %q", i, results[i])
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 fetcher invocation across %d callers, got %d", callers, got)
	}
}

// S4: when the leader decides not to cache the value, a follower that was
// waiting falls back to fetching for itself.
func TestFollowerFallsBackWhenLeaderDoesNotCache(t *testing.T) {
	locker, _ := newTestLocker(nil)
	var calls atomic.Int32

	leaderStarted := make(chan struct{})
	leaderMayFinish := make(chan struct{})

	fetch := func(ctx context.Context) ([]byte, error) {
		n := calls.Add(1)
		if n == 1 {
			close(leaderStarted)
			<-leaderMayFinish
		}
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	var followerRes cachelock.Result
	var followerErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-leaderStarted
		followerRes, followerErr = locker.GetOrSet(context.Background(), "k", fetch, cachelock.Options{
			WaitMax: 30 * time.Millisecond, HasWaitMax: true,
			WaitStep: 5 * time.Millisecond,
		})
	}()

	go func() {
		time.Sleep(60 * time.Millisecond) // outlast the follower's WaitMax
		close(leaderMayFinish)
	}()

	leaderRes, leaderErr := locker.GetOrSet(context.Background(), "k", fetch, cachelock.Options{
		ShouldCache: func(value []byte) bool { return false },
	})
	wg.Wait()

	if leaderErr != nil {
		t.Fatalf("leader: %v", leaderErr)
	}
	if leaderRes.Meta.Outcome != cachelock.OutcomeMissLeaderNoCache {
		t.Fatalf("expected MISS-LEADER-NOCACHE, got %s", leaderRes.Meta.Outcome)
	}
	if followerErr != nil {
		t.Fatalf("follower: %v", followerErr)
	}
	if followerRes.Meta.Outcome != cachelock.OutcomeMissFollowerFallback {
		t.Fatalf("expected MISS-FOLLOWER-FALLBACK, got %s", followerRes.Meta.Outcome)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected leader + fallback fetch = 2 calls, got %d", calls.Load())
	}
}

// S6: a context already cancelled before the call starts aborts
// immediately without invoking the fetcher.
func TestGetOrSetAbortsOnPreCancelledContext(t *testing.T) {
	locker, _ := newTestLocker(nil)
	called := false
	fetch := func(ctx context.Context) ([]byte, error) {
		called = true
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := locker.GetOrSet(ctx, "k", fetch, cachelock.Options{})
	if err == nil {
		t.Fatalf("expected an error for a pre-cancelled context")
	}
	if !errors.Is(err, cachelock.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if called {
		t.Fatalf("fetcher must not run when ctx is already cancelled")
	}
}

func TestGetOrSetValidatesEmptyKey(t *testing.T) {
	locker, _ := newTestLocker(nil)

	_, err := locker.GetOrSet(context.Background(), "", func(ctx context.Context) ([]byte, error) { return nil, nil }, cachelock.Options{})
	if !errors.Is(err, cachelock.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty key, got %v", err)
	}
}

// A nil Fetcher passed through a statically-typed parameter must still be
// caught by validation, not sail through as a non-nil `any` and panic
// inside the runtime's fetcher call.
func TestGetOrSetValidatesNilFetcher(t *testing.T) {
	locker, _ := newTestLocker(nil)

	var nilFetch cachelock.Fetcher
	_, err := locker.GetOrSet(context.Background(), "k", nilFetch, cachelock.Options{})
	if !errors.Is(err, cachelock.ErrValidation) {
		t.Fatalf("expected ErrValidation for a nil fetcher, got %v", err)
	}
}

// Instance-level hooks and per-call hooks for the same event must both
// fire, instance hook first, rather than the per-call hook clobbering the
// instance one.
func TestInstanceAndPerCallHooksBothFireInOrder(t *testing.T) {
	adapter := memadapter.New(nil)
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	locker := cachelock.New(cachelock.Defaults{
		Cache:    adapter,
		Leases:   adapter,
		LeaseTTL: time.Second,
		WaitStep: time.Millisecond,
		Hooks: cachelock.Hooks{
			OnLeader: func(value []byte, key string, leaseUntil int64, cached bool) { record("instance") },
		},
	})

	fetch := func(ctx context.Context) ([]byte, error) { return []byte("v"), nil }
	_, err := locker.GetOrSet(context.Background(), "k", fetch, cachelock.Options{
		Hooks: cachelock.Hooks{
			OnLeader: func(value []byte, key string, leaseUntil int64, cached bool) { record("per-call") },
		},
	})
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "instance" || order[1] != "per-call" {
		t.Fatalf("expected [instance per-call], got %v", order)
	}
}

func TestHooksFireOnLeaderAndHit(t *testing.T) {
	locker, _ := newTestLocker(nil)
	var onLeaderCalled, onHitCalled bool

	fetch := func(ctx context.Context) ([]byte, error) { return []byte("v"), nil }

	_, err := locker.GetOrSet(context.Background(), "k", fetch, cachelock.Options{
		Hooks: cachelock.Hooks{
			OnLeader: func(value []byte, key string, leaseUntil int64, cached bool) { onLeaderCalled = true },
		},
	})
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if !onLeaderCalled {
		t.Fatalf("expected OnLeader hook to fire")
	}

	_, err = locker.GetOrSet(context.Background(), "k", fetch, cachelock.Options{
		Hooks: cachelock.Hooks{
			OnHit: func(value []byte, key string) { onHitCalled = true },
		},
	})
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if !onHitCalled {
		t.Fatalf("expected OnHit hook to fire on the cached read")
	}
}
