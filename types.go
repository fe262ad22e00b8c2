package cachelock

import "github.com/jbt95/cache-locking/internal/coretypes"

// Outcome is the stable, externally visible classification of a GetOrSet
// call (spec §3, §6.4).
type Outcome = coretypes.Outcome

const (
	OutcomeHit                  = coretypes.OutcomeHit
	OutcomeMissLeader           = coretypes.OutcomeMissLeader
	OutcomeMissLeaderNoCache    = coretypes.OutcomeMissLeaderNoCache
	OutcomeMissFollowerHit      = coretypes.OutcomeMissFollowerHit
	OutcomeMissFollowerFallback = coretypes.OutcomeMissFollowerFallback
)

// Meta carries the diagnostic envelope around a Result's value.
type Meta = coretypes.Meta

// Result is what GetOrSet returns on success.
type Result struct {
	Value []byte
	Meta  Meta
}

// CacheEntry is the external view of a stored value: the core never
// inspects Value, only presence/absence.
type CacheEntry = coretypes.CacheEntry

// LeaseRecord is the external view of a held lease.
type LeaseRecord = coretypes.LeaseRecord

// AcquireOutcome distinguishes Leader from Follower without a sum type.
type AcquireOutcome = coretypes.AcquireOutcome

const (
	AcquireLeader   = coretypes.AcquireLeader
	AcquireFollower = coretypes.AcquireFollower
)

// AcquireResult is the result of Leases.Acquire.
type AcquireResult = coretypes.AcquireResult

// ReadyState is the result of Leases.IsReady.
type ReadyState = coretypes.ReadyState

// ClampDuration clamps a negative time.Duration TTL input to zero before
// any TTL computation, per spec §3.
var ClampDuration = coretypes.ClampDuration
