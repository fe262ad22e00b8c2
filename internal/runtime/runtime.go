// Package runtime implements CoordinationRuntime, the getOrSet state
// machine described in spec §4.8: CacheProbe -> Acquire ->
// {LeaderFetch|FollowerWait} -> Classify. The runtime holds no per-key
// state; all cross-call coordination is delegated to the Leases backend
// (spec §9, "Per-call owned state vs shared state").
package runtime

import (
	"context"
	"time"

	"github.com/jbt95/cache-locking/internal/coretypes"
	"github.com/jbt95/cache-locking/internal/obs"
	"github.com/jbt95/cache-locking/internal/rtclock"
)

type (
	Cache         = coretypes.Cache
	Leases        = coretypes.Leases
	ReadyMarker   = coretypes.ReadyMarker
	ReadyChecker  = coretypes.ReadyChecker
	WaitStrategy  = coretypes.WaitStrategy
	Hooks         = coretypes.Hooks
	Fetcher       = coretypes.Fetcher
	Result        = coretypes.Result
	Meta          = coretypes.Meta
	CacheEntry    = coretypes.CacheEntry
	AcquireResult = coretypes.AcquireResult
)

// Config is the fully-resolved, immutable configuration for one GetOrSet
// call (the output of the facade's OptionsResolver).
type Config struct {
	Cache        Cache
	Leases       Leases
	LeaseTTL     time.Duration
	WaitMax      time.Duration
	WaitStep     time.Duration
	CacheTTL     time.Duration
	HasCacheTTL  bool
	OwnerID      string
	ShouldCache  func(value []byte) bool // nil means always cache
	WaitStrategy WaitStrategy
	Hooks        Hooks
	Logger       *obs.Logger
	Metrics      *obs.Metrics
	Clock        rtclock.Clock // nil means rtclock.NewSystem()
}

// Runtime drives one getOrSet call. It is cheap to construct and carries
// no state beyond its Config, matching spec §9's "trivially shardable and
// re-entrant" requirement.
type Runtime struct {
	cfg   Config
	clock rtclock.Clock
	ph    *phaseRunner
	hooks *hookRunner
}

func New(cfg Config) *Runtime {
	clk := cfg.Clock
	if clk == nil {
		clk = rtclock.NewSystem()
	}
	return &Runtime{
		cfg:   cfg,
		clock: clk,
		ph:    newPhaseRunner(cfg.Logger, cfg.Metrics),
		hooks: newHookRunner(cfg.Hooks),
	}
}

// GetOrSet runs the full state machine for key, racing the flow against
// ctx cancellation per spec §4.9.
func (r *Runtime) GetOrSet(ctx context.Context, key string, fetcher Fetcher) (Result, error) {
	return runCancelable(ctx, func(ctx context.Context) (Result, error) {
		return r.run(ctx, key, fetcher)
	})
}

func (r *Runtime) run(ctx context.Context, key string, fetcher Fetcher) (Result, error) {
	// 1. CacheProbe
	entry, hit, err := r.ph.cacheGet(ctx, key, r.cfg.Cache, "probe")
	if err != nil {
		return Result{}, err
	}
	if hit {
		if err := r.hooks.onHit(ctx, entry.Value, key); err != nil {
			return Result{}, err
		}
		r.cfg.Metrics.IncOutcome(string(coretypes.OutcomeHit))
		return Result{Value: entry.Value, Meta: Meta{Outcome: coretypes.OutcomeHit}}, nil
	}

	// 2. Acquire
	acq, err := r.ph.leasesAcquire(ctx, key, r.cfg.Leases, r.cfg.OwnerID, r.cfg.LeaseTTL)
	if err != nil {
		return Result{}, err
	}

	if acq.Outcome == coretypes.AcquireLeader {
		return r.leaderFetch(ctx, key, fetcher, acq.LeaseUntil)
	}
	return r.followerWait(ctx, key, fetcher, acq.LeaseUntil)
}

// leaderFetch is state 3L/4L/4L'/Release of spec §4.8. Release always runs
// on every exit path; its errors are swallowed. leaseUntil is the expiry
// the Leases backend returned at acquire time, not recomputed after the
// fetch runs.
func (r *Runtime) leaderFetch(ctx context.Context, key string, fetcher Fetcher, leaseUntil int64) (Result, error) {
	defer func() {
		r.ph.leasesReleaseBestEffort(ctx, key, r.cfg.Leases, r.cfg.OwnerID)
	}()

	value, err := r.ph.runFetcher(ctx, key, fetcher)
	r.cfg.Metrics.IncFetcher("leader")
	if err != nil {
		return Result{}, err
	}

	cached := r.cfg.ShouldCache == nil || r.cfg.ShouldCache(value)
	outcome := coretypes.OutcomeMissLeaderNoCache
	if cached {
		ttl := coretypes.ClampDuration(r.cfg.CacheTTL)
		if !r.cfg.HasCacheTTL {
			ttl = 0
		}
		if err := r.ph.cacheSet(ctx, key, r.cfg.Cache, value, ttl); err != nil {
			return Result{}, err
		}
		outcome = coretypes.OutcomeMissLeader
	}

	r.ph.leasesMarkReadyBestEffort(ctx, key, r.cfg.Leases)

	if err := r.hooks.onLeader(ctx, value, key, leaseUntil, cached); err != nil {
		return Result{}, err
	}

	r.cfg.Metrics.IncOutcome(string(outcome))
	return Result{
		Value: value,
		Meta: Meta{
			Outcome:       outcome,
			LeaseUntil:    leaseUntil,
			HasLeaseUntil: true,
		},
	}, nil
}

// followerWait is state 3F/5F of spec §4.8.
func (r *Runtime) followerWait(ctx context.Context, key string, fetcher Fetcher, leaseUntil int64) (Result, error) {
	startMs := r.clock.NowMillis()
	attempt := 0

	outcome, value, err := r.pollLoop(ctx, key, startMs, &attempt)
	if err != nil {
		return Result{}, err
	}

	// Final belt-and-suspenders cache read (spec §4.8, end of 3F).
	if outcome != coretypes.FollowerHit {
		entry, hit, err := r.ph.cacheGet(ctx, key, r.cfg.Cache, "follower-final")
		if err != nil {
			return Result{}, err
		}
		if hit {
			outcome = coretypes.FollowerHit
			value = entry.Value
		}
	}

	waited := time.Duration(rtclock.ElapsedSince(startMs, r.clock.NowMillis())) * time.Millisecond
	r.cfg.Metrics.ObserveFollowerWaited(waited)

	if err := r.hooks.onFollowerWait(ctx, key, leaseUntil, waited, outcome); err != nil {
		return Result{}, err
	}

	if outcome == coretypes.FollowerHit {
		r.cfg.Metrics.IncOutcome(string(coretypes.OutcomeMissFollowerHit))
		return Result{
			Value: value,
			Meta: Meta{
				Outcome:       coretypes.OutcomeMissFollowerHit,
				LeaseUntil:    leaseUntil,
				HasLeaseUntil: true,
				Waited:        waited,
				HasWaited:     true,
			},
		}, nil
	}

	// FALLBACK: fetch directly, no lease, no cache write, no markReady.
	value, err = r.ph.runFetcher(ctx, key, fetcher)
	r.cfg.Metrics.IncFetcher("fallback")
	if err != nil {
		return Result{}, err
	}
	if err := r.hooks.onFallback(ctx, value, key, leaseUntil, waited); err != nil {
		return Result{}, err
	}
	r.cfg.Metrics.IncOutcome(string(coretypes.OutcomeMissFollowerFallback))
	return Result{
		Value: value,
		Meta: Meta{
			Outcome:       coretypes.OutcomeMissFollowerFallback,
			LeaseUntil:    leaseUntil,
			HasLeaseUntil: true,
			Waited:        waited,
			HasWaited:     true,
		},
	}, nil
}

// pollLoop implements steps 1-5 of 3F as a bounded retry around a step
// that either returns "done" (hit or ready/expired) or signals "retry
// after delay d" — an explicit attempt/start/elapsed loop rather than
// hidden recursion (spec §9, "Follower poll loop implementation").
func (r *Runtime) pollLoop(ctx context.Context, key string, startMs int64, attempt *int) (coretypes.FollowerOutcome, []byte, error) {
	for {
		entry, hit, err := r.ph.cacheGet(ctx, key, r.cfg.Cache, "poll")
		if err != nil {
			return "", nil, err
		}
		if hit {
			return coretypes.FollowerHit, entry.Value, nil
		}

		if rc, ok := r.cfg.Leases.(ReadyChecker); ok {
			state, supported, err := r.ph.leasesIsReady(ctx, key, rc)
			if err != nil {
				return "", nil, err
			}
			if supported && (state.Ready || state.Expired) {
				return coretypes.FollowerFallback, nil, nil
			}
		}

		now := r.clock.NowMillis()
		elapsed := time.Duration(rtclock.ElapsedSince(startMs, now)) * time.Millisecond
		remaining := r.cfg.WaitMax - elapsed
		if remaining <= 0 {
			return coretypes.FollowerFallback, nil, nil
		}

		delay, err := r.ph.computeWait(key, *attempt, elapsed, remaining, r.cfg.WaitMax, r.cfg.WaitStep, r.cfg.WaitStrategy)
		if err != nil {
			return "", nil, err
		}
		if delay < 0 {
			delay = 0
		}
		if delay > remaining {
			delay = remaining
		}

		*attempt++
		if err := r.ph.sleep(ctx, key, r.clock, delay); err != nil {
			return "", nil, err
		}
	}
}
