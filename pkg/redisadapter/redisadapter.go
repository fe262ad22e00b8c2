// Package redisadapter implements Cache and Leases on top of Redis with
// github.com/redis/go-redis/v9, grounded on the SET-NX-for-acquire /
// Lua-CAS-for-release shape the retrieval pack's cachelock managers use
// (dcbickfo redcache's TryAcquire/Commit) and the go-redis client-wiring
// idiom from dmitrymomot/forge and agentuity's cache packages.
package redisadapter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jbt95/cache-locking/internal/cerrors"
	"github.com/jbt95/cache-locking/internal/coretypes"
)

const (
	leaseKeyPrefix = "cachelock:lease:"
	readyKeyPrefix = "cachelock:ready:"
	cacheKeyPrefix = "cachelock:cache:"
)

func adapterErr(op, key string, cause error) error {
	if cause == nil {
		return nil
	}
	return &cerrors.AdapterError{Operation: op, Key: key, Cause: cause}
}

// releaseScript deletes the lease key only if it is still held by owner,
// the same CAS-via-Lua shape redcache's Commit/Release use to avoid
// deleting a lease another owner has since acquired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Adapter implements coretypes.Cache, coretypes.Leases, coretypes.ReadyMarker
// and coretypes.ReadyChecker against a redis.UniversalClient.
type Adapter struct {
	client redis.UniversalClient
}

// New wraps an already-configured client, mirroring forge's
// redis.MustOpen-then-pass-in-the-client wiring style: this package owns
// no connection lifecycle, the caller does.
func New(client redis.UniversalClient) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Get(ctx context.Context, key string) (coretypes.CacheEntry, bool, error) {
	val, err := a.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return coretypes.CacheEntry{}, false, nil
	}
	if err != nil {
		return coretypes.CacheEntry{}, false, adapterErr("cache.Get", key, err)
	}

	var expiryMillis int64
	var hasExpiry bool
	if ttl, err := a.client.PTTL(ctx, cacheKeyPrefix+key).Result(); err == nil && ttl > 0 {
		hasExpiry = true
		expiryMillis = time.Now().UnixMilli() + ttl.Milliseconds()
	}
	return coretypes.CacheEntry{Value: val, ExpiryMillis: expiryMillis, HasExpiry: hasExpiry}, true, nil
}

func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return adapterErr("cache.Set", key, a.client.Set(ctx, cacheKeyPrefix+key, value, ttl).Err())
}

// Acquire uses SET key owner NX PX ttl, the standard Redis distributed-lock
// primitive (the same operation redcache's LockModeRead documents using).
// SetNX is atomic, so exactly one concurrent caller observes ok=true.
func (a *Adapter) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (coretypes.AcquireResult, error) {
	ok, err := a.client.SetNX(ctx, leaseKeyPrefix+key, owner, ttl).Result()
	if err != nil {
		return coretypes.AcquireResult{}, adapterErr("leases.Acquire", key, err)
	}
	if ok {
		return coretypes.AcquireResult{
			Outcome:    coretypes.AcquireLeader,
			LeaseUntil: time.Now().Add(ttl).UnixMilli(),
		}, nil
	}

	leaseUntil := time.Now().UnixMilli()
	if pttl, err := a.client.PTTL(ctx, leaseKeyPrefix+key).Result(); err == nil && pttl > 0 {
		leaseUntil = time.Now().Add(pttl).UnixMilli()
	}
	return coretypes.AcquireResult{Outcome: coretypes.AcquireFollower, LeaseUntil: leaseUntil}, nil
}

func (a *Adapter) Release(ctx context.Context, key, owner string) error {
	_, err := releaseScript.Run(ctx, a.client, []string{leaseKeyPrefix + key}, owner).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return adapterErr("leases.Release", key, err)
}

func (a *Adapter) MarkReady(ctx context.Context, key string) error {
	ttl, err := a.client.PTTL(ctx, leaseKeyPrefix+key).Result()
	if err != nil {
		return adapterErr("leases.MarkReady", key, err)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return adapterErr("leases.MarkReady", key, a.client.Set(ctx, readyKeyPrefix+key, "1", ttl).Err())
}

func (a *Adapter) IsReady(ctx context.Context, key string) (coretypes.ReadyState, bool, error) {
	leaseTTL, err := a.client.PTTL(ctx, leaseKeyPrefix+key).Result()
	if err != nil {
		return coretypes.ReadyState{}, false, adapterErr("leases.IsReady", key, err)
	}
	if leaseTTL <= 0 {
		return coretypes.ReadyState{Expired: true}, true, nil
	}

	ready, err := a.client.Exists(ctx, readyKeyPrefix+key).Result()
	if err != nil {
		return coretypes.ReadyState{}, false, adapterErr("leases.IsReady", key, err)
	}
	return coretypes.ReadyState{Ready: ready > 0}, true, nil
}
