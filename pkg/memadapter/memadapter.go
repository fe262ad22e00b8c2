// Package memadapter implements Cache and Leases entirely in process
// memory with a sync.Mutex-guarded map, matching the teacher's style of
// a single small struct guarding plain Go maps (internal/model keeps its
// state in sqlite instead, but the locking discipline is the same: every
// access goes through the mutex, no lock-free shortcuts).
//
// It is the default backend for tests and for cmd/cachelockd's
// CACHELOCK_BACKEND=memory mode. Because all state lives in one process, it gives
// no cross-process coordination at all — that's the point for local dev
// and unit tests, and the reason it is never the right choice for a
// real multi-instance deployment.
package memadapter

import (
	"context"
	"sync"
	"time"

	"github.com/jbt95/cache-locking/internal/coretypes"
)

type cacheRow struct {
	value        []byte
	expiryMillis int64
	hasExpiry    bool
}

type leaseRow struct {
	owner        string
	expiryMillis int64
	ready        bool
}

// Adapter implements coretypes.Cache, coretypes.Leases, coretypes.ReadyMarker
// and coretypes.ReadyChecker against two in-memory maps.
type Adapter struct {
	mu     sync.Mutex
	cache  map[string]cacheRow
	leases map[string]leaseRow
	now    func() int64
}

// New builds an Adapter. nowFn defaults to time.Now().UnixMilli(); tests may
// override it for deterministic expiry behavior.
func New(nowFn func() int64) *Adapter {
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().UnixMilli() }
	}
	return &Adapter{
		cache:  make(map[string]cacheRow),
		leases: make(map[string]leaseRow),
		now:    nowFn,
	}
}

func (a *Adapter) Get(_ context.Context, key string) (coretypes.CacheEntry, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.cache[key]
	if !ok {
		return coretypes.CacheEntry{}, false, nil
	}
	if row.hasExpiry && row.expiryMillis <= a.now() {
		delete(a.cache, key)
		return coretypes.CacheEntry{}, false, nil
	}
	return coretypes.CacheEntry{
		Value:        row.value,
		ExpiryMillis: row.expiryMillis,
		HasExpiry:    row.hasExpiry,
	}, true, nil
}

func (a *Adapter) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	row := cacheRow{value: value}
	if ttl > 0 {
		row.hasExpiry = true
		row.expiryMillis = a.now() + ttl.Milliseconds()
	}
	a.cache[key] = row
	return nil
}

// Acquire is the atomic compare-and-set required by spec §4.3: under the
// single mutex, a key with no active lease (or an expired one) is claimed
// by owner; any other caller during that window becomes a follower.
func (a *Adapter) Acquire(_ context.Context, key, owner string, ttl time.Duration) (coretypes.AcquireResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	row, held := a.leases[key]
	if held && row.expiryMillis > now {
		return coretypes.AcquireResult{
			Outcome:    coretypes.AcquireFollower,
			LeaseUntil: row.expiryMillis,
		}, nil
	}

	leaseUntil := now + ttl.Milliseconds()
	a.leases[key] = leaseRow{owner: owner, expiryMillis: leaseUntil}
	return coretypes.AcquireResult{
		Outcome:    coretypes.AcquireLeader,
		LeaseUntil: leaseUntil,
	}, nil
}

func (a *Adapter) Release(_ context.Context, key, owner string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.leases[key]
	if !ok || row.owner != owner {
		return nil
	}
	delete(a.leases, key)
	return nil
}

func (a *Adapter) MarkReady(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.leases[key]
	if !ok {
		return nil
	}
	row.ready = true
	a.leases[key] = row
	return nil
}

func (a *Adapter) IsReady(_ context.Context, key string) (coretypes.ReadyState, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row, ok := a.leases[key]
	if !ok {
		return coretypes.ReadyState{Expired: true}, true, nil
	}
	expired := row.expiryMillis <= a.now()
	return coretypes.ReadyState{Ready: row.ready, Expired: expired}, true, nil
}
