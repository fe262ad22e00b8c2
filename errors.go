package cachelock

import "github.com/jbt95/cache-locking/internal/cerrors"

// Error, Kind and Phase are re-exported from internal/cerrors so that both
// this package and internal/runtime can construct and classify errors
// without an import cycle (runtime is imported by this package, so the
// error model has to live below both).
type (
	Error   = cerrors.Error
	Kind    = cerrors.Kind
	Phase   = cerrors.Phase
	Context = cerrors.Context
)

const (
	KindValidation   = cerrors.KindValidation
	KindCacheGet     = cerrors.KindCacheGet
	KindCacheSet     = cerrors.KindCacheSet
	KindLeaseAcquire = cerrors.KindLeaseAcquire
	KindLeaseRelease = cerrors.KindLeaseRelease
	KindLeaseReady   = cerrors.KindLeaseReady
	KindFetcher      = cerrors.KindFetcher
	KindHook         = cerrors.KindHook
	KindWaitStrategy = cerrors.KindWaitStrategy
	KindWaitFailed   = cerrors.KindWaitFailed
	KindAborted      = cerrors.KindAborted
)

const (
	PhaseValidation       = cerrors.PhaseValidation
	PhaseCacheGet         = cerrors.PhaseCacheGet
	PhaseCacheSet         = cerrors.PhaseCacheSet
	PhaseLeasesAcquire    = cerrors.PhaseLeasesAcquire
	PhaseLeasesRelease    = cerrors.PhaseLeasesRelease
	PhaseLeasesMarkReady  = cerrors.PhaseLeasesMarkReady
	PhaseLeasesIsReady    = cerrors.PhaseLeasesIsReady
	PhaseFetcher          = cerrors.PhaseFetcher
	PhaseHookOnHit        = cerrors.PhaseHookOnHit
	PhaseHookOnLeader     = cerrors.PhaseHookOnLeader
	PhaseHookOnFollowerWt = cerrors.PhaseHookOnFollowerWt
	PhaseHookOnFallback   = cerrors.PhaseHookOnFallback
	PhaseWaitStrategy     = cerrors.PhaseWaitStrategy
	PhaseWaitSleep        = cerrors.PhaseWaitSleep
	PhaseAbort            = cerrors.PhaseAbort
)

// Sentinels usable with errors.Is(err, cachelock.ErrAborted) etc.
var (
	ErrValidation   = cerrors.ErrValidation
	ErrCacheGet     = cerrors.ErrCacheGet
	ErrCacheSet     = cerrors.ErrCacheSet
	ErrLeaseAcquire = cerrors.ErrLeaseAcquire
	ErrLeaseRelease = cerrors.ErrLeaseRelease
	ErrLeaseReady   = cerrors.ErrLeaseReady
	ErrFetcher      = cerrors.ErrFetcher
	ErrHook         = cerrors.ErrHook
	ErrWaitStrategy = cerrors.ErrWaitStrategy
	ErrWaitFailed   = cerrors.ErrWaitFailed
	ErrAborted      = cerrors.ErrAborted
)

// AdapterError is the lower-level failure shape an adapter is expected to
// raise; PhaseRunner maps it to the appropriately-tagged *Error.
type AdapterError = cerrors.AdapterError

func newErr(kind Kind, phase Phase, key, adapter, message string, cause error) *Error {
	return cerrors.New(kind, phase, key, adapter, message, cause)
}
