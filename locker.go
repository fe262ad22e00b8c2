// Package cachelock implements single-flight coordination for cache
// misses: GetOrSet(key, fetcher, opts) ensures that under concurrent
// callers racing a cache miss for the same key, at most one caller (the
// leader) performs the expensive fetch while the rest (followers) wait a
// bounded time for the leader's result before falling back to fetching
// themselves. Coordination across processes is delegated to a Leases
// backend providing an atomic, short-lived, owner-stamped lease.
//
// The state machine is: CacheProbe -> Acquire -> {LeaderFetch|FollowerWait}
// -> Classify. See internal/runtime for the implementation and DESIGN.md
// for the grounding of each piece in the retrieval pack.
package cachelock

import (
	"context"
	"time"

	"github.com/jbt95/cache-locking/internal/coretypes"
	"github.com/jbt95/cache-locking/internal/obs"
	"github.com/jbt95/cache-locking/internal/runtime"
)

// Defaults holds the instance-level configuration a Locker applies to
// every call unless a per-call Options field overrides it.
type Defaults struct {
	Cache    Cache
	Leases   Leases
	LeaseTTL time.Duration

	WaitMax    time.Duration
	HasWaitMax bool

	WaitStep        time.Duration
	CacheTTL        time.Duration
	HasCacheTTL     bool
	OwnerID         string
	ShouldCache     func(value []byte) bool
	WaitStrategy    WaitStrategy
	Hooks           Hooks
	ValidateOptions *bool

	// Logger and Metrics are optional observability sinks, nil-safe exactly
	// like the teacher's model.Service(logger, metrics).
	Logger  *obs.Logger
	Metrics *obs.Metrics
}

// Locker is the Facade of spec §4.10: the single entry point GetOrSet.
// A Locker is safe for concurrent use; it holds no per-key state itself —
// all cross-call coordination happens through the Leases backend.
type Locker struct {
	defaults Defaults
}

// New builds a Locker from instance-level Defaults.
func New(defaults Defaults) *Locker {
	return &Locker{defaults: defaults}
}

// Fetcher is the capability the caller supplies: it performs the actual
// expensive computation/lookup and may observe cancellation via ctx.
type Fetcher = coretypes.Fetcher

// GetOrSet is the Facade entry point described in spec §6.1.
func (l *Locker) GetOrSet(ctx context.Context, key string, fetcher Fetcher, opt Options) (Result, error) {
	res, err := l.resolveOptions(key, fetcher, opt)
	if err != nil {
		return Result{}, err
	}

	rt := runtime.New(runtime.Config{
		Cache:        res.cache,
		Leases:       res.leases,
		LeaseTTL:     res.leaseTTL,
		WaitMax:      res.waitMax,
		WaitStep:     res.waitStep,
		CacheTTL:     res.cacheTTL,
		HasCacheTTL:  res.hasCacheTTL,
		OwnerID:      res.ownerID,
		ShouldCache:  res.shouldCache,
		WaitStrategy: res.waitStrategy,
		Hooks:        res.hooks,
		Logger:       l.defaults.Logger,
		Metrics:      l.defaults.Metrics,
	})

	out, err := rt.GetOrSet(ctx, key, fetcher)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: out.Value, Meta: out.Meta}, nil
}
