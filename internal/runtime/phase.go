package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jbt95/cache-locking/internal/cerrors"
	"github.com/jbt95/cache-locking/internal/coretypes"
	"github.com/jbt95/cache-locking/internal/obs"
	"github.com/jbt95/cache-locking/internal/rtclock"
)

var tracer = otel.Tracer("github.com/jbt95/cache-locking")

// phaseRunner is the PhaseRunner of spec §4.7: every side-effecting call
// into an adapter, the fetcher, or the wait strategy goes through one of
// its methods so that error tagging, tracing, logging and metrics are
// applied uniformly instead of being duplicated at each call site.
type phaseRunner struct {
	logger  *obs.Logger
	metrics *obs.Metrics
}

func newPhaseRunner(logger *obs.Logger, metrics *obs.Metrics) *phaseRunner {
	return &phaseRunner{logger: logger, metrics: metrics}
}

// wrap starts the span/metric envelope for phase and returns a finish
// func that records the outcome (logging is done by the caller). adapter may be "" when the operation has
// no backend (e.g. hooks, wait strategy).
func (ph *phaseRunner) wrap(ctx context.Context, phase cerrors.Phase, key, adapter string) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "cache-locking."+string(phase), trace.WithAttributes(
		attribute.String("key", key),
		attribute.String("adapter", adapter),
	))
	start := time.Now()
	return ctx, func(err error) {
		ph.metrics.ObservePhaseLatency(string(phase), start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (ph *phaseRunner) logError(phase cerrors.Phase, key, adapter string, err error) {
	if ph.logger == nil {
		return
	}
	ph.logger.Error(map[string]interface{}{
		"event":   "cache-locking.phase_failed",
		"phase":   string(phase),
		"key":     key,
		"adapter": adapter,
		"error":   err.Error(),
	})
}

func (ph *phaseRunner) cacheGet(ctx context.Context, key string, cache Cache, label string) (CacheEntry, bool, error) {
	ctx, finish := ph.wrap(ctx, cerrors.PhaseCacheGet, key, "cache")
	entry, hit, err := cache.Get(ctx, key)
	finish(err)
	if err != nil {
		tagged := cerrors.New(cerrors.KindCacheGet, cerrors.PhaseCacheGet, key, "cache", "cache get failed ("+label+")", err)
		ph.logError(cerrors.PhaseCacheGet, key, "cache", tagged)
		return CacheEntry{}, false, tagged
	}
	return entry, hit, nil
}

func (ph *phaseRunner) cacheSet(ctx context.Context, key string, cache Cache, value []byte, ttl time.Duration) error {
	ctx, finish := ph.wrap(ctx, cerrors.PhaseCacheSet, key, "cache")
	err := cache.Set(ctx, key, value, ttl)
	finish(err)
	if err != nil {
		tagged := cerrors.New(cerrors.KindCacheSet, cerrors.PhaseCacheSet, key, "cache", "cache set failed", err)
		ph.logError(cerrors.PhaseCacheSet, key, "cache", tagged)
		return tagged
	}
	return nil
}

func (ph *phaseRunner) leasesAcquire(ctx context.Context, key string, leases Leases, owner string, ttl time.Duration) (AcquireResult, error) {
	ctx, finish := ph.wrap(ctx, cerrors.PhaseLeasesAcquire, key, "leases")
	res, err := leases.Acquire(ctx, key, owner, ttl)
	finish(err)
	if err != nil {
		tagged := cerrors.New(cerrors.KindLeaseAcquire, cerrors.PhaseLeasesAcquire, key, "leases", "lease acquire failed", err)
		ph.logError(cerrors.PhaseLeasesAcquire, key, "leases", tagged)
		return AcquireResult{}, tagged
	}
	return res, nil
}

// leasesReleaseBestEffort implements spec §9's "release happens regardless
// of hook outcome" contract: failures are logged and counted but never
// returned, since the caller already has its own result or error.
func (ph *phaseRunner) leasesReleaseBestEffort(ctx context.Context, key string, leases Leases, owner string) {
	ctx, finish := ph.wrap(ctx, cerrors.PhaseLeasesRelease, key, "leases")
	err := leases.Release(ctx, key, owner)
	finish(err)
	if err != nil {
		tagged := cerrors.New(cerrors.KindLeaseRelease, cerrors.PhaseLeasesRelease, key, "leases", "lease release failed", err)
		ph.logError(cerrors.PhaseLeasesRelease, key, "leases", tagged)
		ph.metrics.IncLeaseError(string(cerrors.PhaseLeasesRelease))
	}
}

func (ph *phaseRunner) leasesMarkReadyBestEffort(ctx context.Context, key string, leases Leases) {
	rm, ok := leases.(ReadyMarker)
	if !ok {
		return
	}
	ctx, finish := ph.wrap(ctx, cerrors.PhaseLeasesMarkReady, key, "leases")
	err := rm.MarkReady(ctx, key)
	finish(err)
	if err != nil {
		tagged := cerrors.New(cerrors.KindLeaseReady, cerrors.PhaseLeasesMarkReady, key, "leases", "lease markReady failed", err)
		ph.logError(cerrors.PhaseLeasesMarkReady, key, "leases", tagged)
		ph.metrics.IncLeaseError(string(cerrors.PhaseLeasesMarkReady))
	}
}

func (ph *phaseRunner) leasesIsReady(ctx context.Context, key string, rc ReadyChecker) (coretypes.ReadyState, bool, error) {
	ctx, finish := ph.wrap(ctx, cerrors.PhaseLeasesIsReady, key, "leases")
	state, supported, err := rc.IsReady(ctx, key)
	finish(err)
	if err != nil {
		tagged := cerrors.New(cerrors.KindLeaseReady, cerrors.PhaseLeasesIsReady, key, "leases", "lease isReady failed", err)
		ph.logError(cerrors.PhaseLeasesIsReady, key, "leases", tagged)
		return coretypes.ReadyState{}, false, tagged
	}
	return state, supported, nil
}

func (ph *phaseRunner) runFetcher(ctx context.Context, key string, fetcher Fetcher) ([]byte, error) {
	ctx, finish := ph.wrap(ctx, cerrors.PhaseFetcher, key, "")
	value, err := fetcher(ctx)
	finish(err)
	if err != nil {
		tagged := cerrors.New(cerrors.KindFetcher, cerrors.PhaseFetcher, key, "", "fetcher failed", err)
		ph.logError(cerrors.PhaseFetcher, key, "", tagged)
		return nil, tagged
	}
	return value, nil
}

// computeWait invokes the caller-supplied WaitStrategy, treating a panic as
// a WAIT_STRATEGY_FAILED error per spec §4.6 ("a strategy that panics or
// returns garbage is the caller's bug, but the runtime must not crash").
func (ph *phaseRunner) computeWait(key string, attempt int, elapsed, remaining, waitMax, waitStep time.Duration, strategy WaitStrategy) (delay time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cerrors.New(cerrors.KindWaitStrategy, cerrors.PhaseWaitStrategy, key, "", "wait strategy panicked", panicErr(r))
			ph.logError(cerrors.PhaseWaitStrategy, key, "", err)
		}
	}()
	return strategy(attempt, elapsed, remaining, waitMax, waitStep), nil
}

func (ph *phaseRunner) sleep(ctx context.Context, key string, clock rtclock.Clock, delay time.Duration) error {
	ctx, finish := ph.wrap(ctx, cerrors.PhaseWaitSleep, key, "")
	err := clock.Sleep(ctx, delay)
	finish(err)
	if err != nil {
		tagged := cerrors.New(cerrors.KindWaitFailed, cerrors.PhaseWaitSleep, key, "", "wait sleep interrupted", err)
		return tagged
	}
	return nil
}

type panicValue struct{ v interface{} }

func (p panicValue) Error() string { return "panic: " + toString(p.v) }

func panicErr(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return panicValue{r}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic value"
}
