package cachelock

import (
	"time"

	"github.com/google/uuid"
	"github.com/jbt95/cache-locking/internal/coretypes"
)

// Hooks are user-supplied callbacks invoked at the phase boundaries in
// spec §4.5. Any hook left nil is simply not called. Instance-level hooks
// (set on Locker) run before per-call hooks (passed via Options) for the
// same event.
type Hooks = coretypes.Hooks

// FollowerOutcome is the local classification used only to select which
// branch the follower took before the public Outcome is computed.
type FollowerOutcome = coretypes.FollowerOutcome

const (
	FollowerHit      = coretypes.FollowerHit
	FollowerFallback = coretypes.FollowerFallback
)

func mergeHooks(base, override Hooks) Hooks {
	return coretypes.MergeHooks(base, override)
}

// Options configures a single GetOrSet call. Fields left at their zero
// value fall back to the Locker's defaults, then to the package defaults
// below.
type Options struct {
	Leases   Leases // overrides the Locker's Leases backend for this call
	Cache    Cache  // overrides the Locker's Cache backend for this call
	LeaseTTL time.Duration

	// WaitMax of exactly 0 is meaningful (spec §4.8: the follower does one
	// final cache check and goes straight to fallback), so "unset" is
	// tracked separately rather than inferred from the zero value.
	WaitMax    time.Duration
	HasWaitMax bool

	WaitStep        time.Duration
	CacheTTL        time.Duration
	HasCacheTTL     bool
	OwnerID         string
	ShouldCache     func(value []byte) bool
	WaitStrategy    WaitStrategy
	Hooks           Hooks
	ValidateOptions *bool // nil means "use Locker default (true)"
}

// resolved is the immutable, fully-merged configuration for one call.
type resolved struct {
	cache        Cache
	leases       Leases
	leaseTTL     time.Duration
	waitMax      time.Duration
	waitStep     time.Duration
	cacheTTL     time.Duration
	hasCacheTTL  bool
	ownerID      string
	shouldCache  func(value []byte) bool
	waitStrategy WaitStrategy
	hooks        Hooks
}

const (
	defaultLeaseTTL = 15 * time.Second
	defaultWaitMax  = 4 * time.Second
	defaultWaitStep = 250 * time.Millisecond
)

func alwaysCache([]byte) bool { return true }

// resolveOptions validates key/fetcher and merges per-call Options onto
// Locker defaults, producing a resolved configuration. It is the Go
// counterpart to spec §4.6's OptionsResolver.
func (l *Locker) resolveOptions(key string, fetcher Fetcher, opt Options) (resolved, error) {
	validate := true
	if opt.ValidateOptions != nil {
		validate = *opt.ValidateOptions
	} else if l.defaults.ValidateOptions != nil {
		validate = *l.defaults.ValidateOptions
	}

	if validate {
		if key == "" {
			return resolved{}, newErr(KindValidation, PhaseValidation, key, "", "key must be non-empty", nil)
		}
		if fetcher == nil {
			return resolved{}, newErr(KindValidation, PhaseValidation, key, "", "fetcher must be non-nil", nil)
		}
	}

	cache := opt.Cache
	if cache == nil {
		cache = l.defaults.Cache
	}
	leases := opt.Leases
	if leases == nil {
		leases = l.defaults.Leases
	}
	if validate && (cache == nil || leases == nil) {
		return resolved{}, newErr(KindValidation, PhaseValidation, key, "", "cache and leases backends are required (set on Locker or Options)", nil)
	}

	leaseTTL := firstPositive(opt.LeaseTTL, l.defaults.LeaseTTL, defaultLeaseTTL)
	waitStep := firstPositive(opt.WaitStep, l.defaults.WaitStep, defaultWaitStep)

	waitMax := defaultWaitMax
	switch {
	case opt.HasWaitMax:
		waitMax = opt.WaitMax
	case l.defaults.HasWaitMax:
		waitMax = l.defaults.WaitMax
	}

	cacheTTL := opt.CacheTTL
	hasCacheTTL := opt.HasCacheTTL
	if !hasCacheTTL {
		cacheTTL = l.defaults.CacheTTL
		hasCacheTTL = l.defaults.HasCacheTTL
	}
	cacheTTL = ClampDuration(cacheTTL)
	leaseTTL = ClampDuration(leaseTTL)
	waitMax = ClampDuration(waitMax)
	waitStep = ClampDuration(waitStep)

	ownerID := opt.OwnerID
	if ownerID == "" {
		ownerID = l.defaults.OwnerID
	}
	if ownerID == "" {
		ownerID = uuid.NewString()
	}

	shouldCache := opt.ShouldCache
	if shouldCache == nil {
		shouldCache = l.defaults.ShouldCache
	}
	if shouldCache == nil {
		shouldCache = alwaysCache
	}

	waitStrategy := opt.WaitStrategy
	if waitStrategy == nil {
		waitStrategy = l.defaults.WaitStrategy
	}
	if waitStrategy == nil {
		waitStrategy = FixedWait
	}

	hooks := mergeHooks(l.defaults.Hooks, opt.Hooks)

	return resolved{
		cache:        cache,
		leases:       leases,
		leaseTTL:     leaseTTL,
		waitMax:      waitMax,
		waitStep:     waitStep,
		cacheTTL:     cacheTTL,
		hasCacheTTL:  hasCacheTTL,
		ownerID:      ownerID,
		shouldCache:  shouldCache,
		waitStrategy: waitStrategy,
		hooks:        hooks,
	}, nil
}

func firstPositive(vs ...time.Duration) time.Duration {
	for _, v := range vs {
		if v > 0 {
			return v
		}
	}
	return 0
}
