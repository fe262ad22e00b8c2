package cachelock

import "github.com/jbt95/cache-locking/internal/coretypes"

// Cache is the storage boundary described in spec §4.2. Implementations
// (pkg/memadapter, pkg/sqliteadapter, pkg/redisadapter, or a caller's own)
// must never return a stale value: an expired entry is reported absent.
type Cache = coretypes.Cache

// Leases is the distributed mutual-exclusion boundary described in spec
// §4.3. Acquire MUST be an atomic compare-and-set.
type Leases = coretypes.Leases

// ReadyMarker is an optional capability a Leases backend may also
// implement: leaders call MarkReady after the fetch and any cache write
// (also when the value was not cached) so followers using IsReady can
// stop polling early.
type ReadyMarker = coretypes.ReadyMarker

// ReadyChecker is an optional capability a Leases backend may also
// implement. IsReady returning (_, false, nil) means the backend does not
// support readiness at all; callers must then rely on cache polling only.
type ReadyChecker = coretypes.ReadyChecker

// WaitStrategy computes the next inter-poll delay for a follower. It must
// be a pure function of its inputs and return a non-negative, finite
// duration; the runtime clamps the result to [0, remaining] itself.
type WaitStrategy = coretypes.WaitStrategy

// FixedWait always waits waitStep, ignoring attempt/elapsed/remaining.
var FixedWait = coretypes.FixedWait

// ExponentialWait returns exponential backoff with jitter (default +/-20%),
// seeded from waitStep as the initial delay and capped at waitMax.
var ExponentialWait = coretypes.ExponentialWait
