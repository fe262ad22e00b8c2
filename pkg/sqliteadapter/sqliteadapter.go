// Package sqliteadapter implements Cache and Leases on top of SQLite,
// grounded on the teacher's internal/storage (WAL pragmas, busy_timeout
// DSN, versioned migrations) and internal/model.Service (serializable
// transactions doing an atomic read-then-upsert, isSQLiteBusy retry
// classification). Acquire's compare-and-set runs inside one transaction:
// a SELECT of the current lease row, an expiry check in Go, and, only when
// the row is absent or expired, an INSERT ... ON CONFLICT DO UPDATE.
package sqliteadapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/jbt95/cache-locking/internal/cerrors"
	"github.com/jbt95/cache-locking/internal/coretypes"
)

func adapterErr(op, key string, cause error) error {
	if cause == nil {
		return nil
	}
	return &cerrors.AdapterError{Operation: op, Key: key, Cause: cause}
}

// Config mirrors the teacher's storage.Config.
type Config struct {
	Path            string
	BusyTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Adapter implements coretypes.Cache, coretypes.Leases, coretypes.ReadyMarker
// and coretypes.ReadyChecker against a SQLite database.
type Adapter struct {
	db *sql.DB
}

// Open opens (and migrates) a SQLite-backed Adapter, applying the same
// WAL + busy_timeout pragmas as the teacher's storage.Open.
func Open(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqliteadapter: path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &Adapter{db: db}
	if err := a.applyPragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Adapter) Close() error { return a.db.Close() }

func (a *Adapter) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := a.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply pragma failed (%s): %w", p, err)
		}
	}
	return nil
}

func (a *Adapter) migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_ns INTEGER NOT NULL
);
`); err != nil {
		return err
	}

	const latest = 1
	var cur sql.NullInt64
	if err := a.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations;`).Scan(&cur); err != nil {
		return err
	}
	from := 0
	if cur.Valid {
		from = int(cur.Int64)
	}
	for v := from + 1; v <= latest; v++ {
		if err := a.applyMigration(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) applyMigration(ctx context.Context, version int) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	switch version {
	case 1:
		if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS cache_entries (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  expiry_ms INTEGER NOT NULL,
  has_expiry INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS leases (
  key TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  expiry_ms INTEGER NOT NULL,
  ready INTEGER NOT NULL
);
`); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at_ns) VALUES(?, strftime('%s','now')*1000000000);`, version); err != nil {
		return err
	}
	return tx.Commit()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(sqlite3.Error); ok {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// withBusyRetry retries fn a bounded number of times on SQLITE_BUSY/LOCKED,
// matching the teacher's isSQLiteBusy classification but folding the retry
// loop in here since coretypes.Leases has no retry-hint return value.
func withBusyRetry(fn func() error) error {
	const maxAttempts = 5
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func (a *Adapter) Get(ctx context.Context, key string) (coretypes.CacheEntry, bool, error) {
	var (
		value     []byte
		expiryMs  int64
		hasExpiry int
	)
	err := a.db.QueryRowContext(ctx, `
SELECT value, expiry_ms, has_expiry FROM cache_entries WHERE key = ?;
`, key).Scan(&value, &expiryMs, &hasExpiry)
	if errors.Is(err, sql.ErrNoRows) {
		return coretypes.CacheEntry{}, false, nil
	}
	if err != nil {
		return coretypes.CacheEntry{}, false, adapterErr("cache.Get", key, err)
	}
	if hasExpiry != 0 && expiryMs <= nowMillis() {
		_, _ = a.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?;`, key)
		return coretypes.CacheEntry{}, false, nil
	}
	return coretypes.CacheEntry{Value: value, ExpiryMillis: expiryMs, HasExpiry: hasExpiry != 0}, true, nil
}

func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	hasExpiry := 0
	var expiryMs int64
	if ttl > 0 {
		hasExpiry = 1
		expiryMs = nowMillis() + ttl.Milliseconds()
	}
	return adapterErr("cache.Set", key, withBusyRetry(func() error {
		_, err := a.db.ExecContext(ctx, `
INSERT INTO cache_entries(key, value, expiry_ms, has_expiry) VALUES(?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expiry_ms = excluded.expiry_ms, has_expiry = excluded.has_expiry;
`, key, value, expiryMs, hasExpiry)
		return err
	}))
}

// Acquire performs the compare-and-set required by spec §4.3 inside a
// serializable transaction: read the current lease row, and only claim it
// if absent or expired, exactly the shape of the teacher's lock upsert in
// internal/model.Service.Acquire.
func (a *Adapter) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (coretypes.AcquireResult, error) {
	var result coretypes.AcquireResult
	err := withBusyRetry(func() error {
		tx, err := a.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		now := nowMillis()
		var curExpiry int64
		err = tx.QueryRowContext(ctx, `SELECT expiry_ms FROM leases WHERE key = ?;`, key).Scan(&curExpiry)
		notFound := errors.Is(err, sql.ErrNoRows)
		if err != nil && !notFound {
			return err
		}

		if !notFound && curExpiry > now {
			result = coretypes.AcquireResult{Outcome: coretypes.AcquireFollower, LeaseUntil: curExpiry}
			return tx.Commit()
		}

		leaseUntil := now + ttl.Milliseconds()
		if _, err := tx.ExecContext(ctx, `
INSERT INTO leases(key, owner, expiry_ms, ready) VALUES(?, ?, ?, 0)
ON CONFLICT(key) DO UPDATE SET owner = excluded.owner, expiry_ms = excluded.expiry_ms, ready = 0;
`, key, owner, leaseUntil); err != nil {
			return err
		}
		result = coretypes.AcquireResult{Outcome: coretypes.AcquireLeader, LeaseUntil: leaseUntil}
		return tx.Commit()
	})
	return result, adapterErr("leases.Acquire", key, err)
}

func (a *Adapter) Release(ctx context.Context, key, owner string) error {
	return adapterErr("leases.Release", key, withBusyRetry(func() error {
		_, err := a.db.ExecContext(ctx, `DELETE FROM leases WHERE key = ? AND owner = ?;`, key, owner)
		return err
	}))
}

func (a *Adapter) MarkReady(ctx context.Context, key string) error {
	return adapterErr("leases.MarkReady", key, withBusyRetry(func() error {
		_, err := a.db.ExecContext(ctx, `UPDATE leases SET ready = 1 WHERE key = ?;`, key)
		return err
	}))
}

func (a *Adapter) IsReady(ctx context.Context, key string) (coretypes.ReadyState, bool, error) {
	var (
		expiryMs int64
		ready    int
	)
	err := a.db.QueryRowContext(ctx, `SELECT expiry_ms, ready FROM leases WHERE key = ?;`, key).Scan(&expiryMs, &ready)
	if errors.Is(err, sql.ErrNoRows) {
		return coretypes.ReadyState{Expired: true}, true, nil
	}
	if err != nil {
		return coretypes.ReadyState{}, false, adapterErr("leases.IsReady", key, err)
	}
	return coretypes.ReadyState{Ready: ready != 0, Expired: expiryMs <= nowMillis()}, true, nil
}
