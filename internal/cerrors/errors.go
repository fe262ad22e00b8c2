package cerrors

import (
	"errors"
	"fmt"
)

// Kind tags an Error with one of the stable outcome classes from the
// error taxonomy. Kinds are compared with errors.Is against the sentinel
// values below, not by string.
type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindCacheGet       Kind = "CACHE_GET_FAILED"
	KindCacheSet       Kind = "CACHE_SET_FAILED"
	KindLeaseAcquire   Kind = "LEASE_ACQUIRE_FAILED"
	KindLeaseRelease   Kind = "LEASE_RELEASE_FAILED"
	KindLeaseReady     Kind = "LEASE_READY_FAILED"
	KindFetcher        Kind = "FETCHER_FAILED"
	KindHook           Kind = "HOOK_FAILED"
	KindWaitStrategy   Kind = "WAIT_STRATEGY_FAILED"
	KindWaitFailed     Kind = "WAIT_FAILED"
	KindAborted        Kind = "ABORTED"
)

// Phase identifies the side-effecting step an Error occurred in. Values are
// the stable strings from spec §6.5.
type Phase string

const (
	PhaseValidation       Phase = "validation"
	PhaseCacheGet         Phase = "cache.get"
	PhaseCacheSet         Phase = "cache.set"
	PhaseLeasesAcquire    Phase = "leases.acquire"
	PhaseLeasesRelease    Phase = "leases.release"
	PhaseLeasesMarkReady  Phase = "leases.markReady"
	PhaseLeasesIsReady    Phase = "leases.isReady"
	PhaseFetcher          Phase = "fetcher"
	PhaseHookOnHit        Phase = "hooks.onHit"
	PhaseHookOnLeader     Phase = "hooks.onLeader"
	PhaseHookOnFollowerWt Phase = "hooks.onFollowerWait"
	PhaseHookOnFallback   Phase = "hooks.onFallback"
	PhaseWaitStrategy     Phase = "waitStrategy"
	PhaseWaitSleep        Phase = "wait.sleep"
	PhaseAbort            Phase = "abort"
)

// Context carries the diagnostic attributes attached to every Error.
type Context struct {
	Key     string
	Phase   Phase
	Adapter string
}

// Error is the single error type returned by this package. Its Kind
// classifies it per the taxonomy in spec §7; Cause preserves whatever the
// adapter or callback raised.
type Error struct {
	Kind    Kind
	Message string
	Context Context
	Cause   error
}

func (e *Error) Error() string {
	if e.Context.Key != "" {
		return fmt.Sprintf("cachelock: %s: %s (key=%s phase=%s): %v", e.Kind, e.Message, e.Context.Key, e.Context.Phase, e.unwrapMsg())
	}
	return fmt.Sprintf("cachelock: %s: %s (phase=%s): %v", e.Kind, e.Message, e.Context.Phase, e.unwrapMsg())
}

func (e *Error) unwrapMsg() error {
	if e.Cause == nil {
		return errNone
	}
	return e.Cause
}

var errNone = errors.New("<none>")

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a sentinel Kind (compared via the package
// level Err* values) or another *Error with the same Kind.
func (e *Error) Is(target error) bool {
	if s, ok := target.(sentinelKind); ok {
		return e.Kind == s.kind
	}
	if other, ok := target.(*Error); ok {
		return e.Kind == other.Kind
	}
	return false
}

type sentinelKind struct{ kind Kind }

func (s sentinelKind) Error() string { return string(s.kind) }

// Sentinels usable with errors.Is(err, cachelock.ErrAborted) etc.
var (
	ErrValidation   error = sentinelKind{KindValidation}
	ErrCacheGet     error = sentinelKind{KindCacheGet}
	ErrCacheSet     error = sentinelKind{KindCacheSet}
	ErrLeaseAcquire error = sentinelKind{KindLeaseAcquire}
	ErrLeaseRelease error = sentinelKind{KindLeaseRelease}
	ErrLeaseReady   error = sentinelKind{KindLeaseReady}
	ErrFetcher      error = sentinelKind{KindFetcher}
	ErrHook         error = sentinelKind{KindHook}
	ErrWaitStrategy error = sentinelKind{KindWaitStrategy}
	ErrWaitFailed   error = sentinelKind{KindWaitFailed}
	ErrAborted      error = sentinelKind{KindAborted}
)

func New(kind Kind, phase Phase, key, adapter, message string, cause error) *Error {
	// Identity preservation: a tagged *Error passed through another phase
	// boundary is re-raised unchanged rather than re-wrapped (spec §4.7.3).
	if tagged, ok := cause.(*Error); ok {
		return tagged
	}
	return &Error{
		Kind:    kind,
		Message: message,
		Context: Context{Key: key, Phase: phase, Adapter: adapter},
		Cause:   cause,
	}
}

// AdapterError is the lower-level failure shape an adapter is expected to
// raise; PhaseRunner maps it to the appropriately-tagged *Error.
type AdapterError struct {
	Operation string
	Key       string
	Cause     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter error: op=%s key=%s: %v", e.Operation, e.Key, e.Cause)
}

func (e *AdapterError) Unwrap() error { return e.Cause }
