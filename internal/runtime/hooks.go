package runtime

import (
	"context"
	"time"

	"github.com/jbt95/cache-locking/internal/cerrors"
	"github.com/jbt95/cache-locking/internal/coretypes"
)

// hookRunner invokes the user-supplied Hooks and maps any panic to a
// HOOK_FAILED error (spec §4.5: "Any hook failure is mapped to
// <HookFailed> and aborts the call with the error bubbling up"). Hooks
// here are plain synchronous callbacks, not fallible funcs, so the only
// failure mode available to the caller is a panic.
type hookRunner struct {
	hooks coretypes.Hooks
}

func newHookRunner(hooks coretypes.Hooks) *hookRunner {
	return &hookRunner{hooks: hooks}
}

func (h *hookRunner) onHit(_ context.Context, value []byte, key string) error {
	if h.hooks.OnHit == nil {
		return nil
	}
	return runHook(cerrors.PhaseHookOnHit, key, func() { h.hooks.OnHit(value, key) })
}

func (h *hookRunner) onLeader(_ context.Context, value []byte, key string, leaseUntil int64, cached bool) error {
	if h.hooks.OnLeader == nil {
		return nil
	}
	return runHook(cerrors.PhaseHookOnLeader, key, func() { h.hooks.OnLeader(value, key, leaseUntil, cached) })
}

func (h *hookRunner) onFollowerWait(_ context.Context, key string, leaseUntil int64, waited time.Duration, outcome coretypes.FollowerOutcome) error {
	if h.hooks.OnFollowerWait == nil {
		return nil
	}
	return runHook(cerrors.PhaseHookOnFollowerWt, key, func() { h.hooks.OnFollowerWait(key, leaseUntil, waited, outcome) })
}

func (h *hookRunner) onFallback(_ context.Context, value []byte, key string, leaseUntil int64, waited time.Duration) error {
	if h.hooks.OnFallback == nil {
		return nil
	}
	return runHook(cerrors.PhaseHookOnFallback, key, func() { h.hooks.OnFallback(value, key, leaseUntil, waited) })
}

func runHook(phase cerrors.Phase, key string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cerrors.New(cerrors.KindHook, phase, key, "", "hook panicked", panicErr(r))
		}
	}()
	fn()
	return nil
}
