// Command cachelockd runs a small HTTP server fronting a deliberately
// slow "origin" with cachelock.Locker.GetOrSet, so the thundering-herd
// protection can be exercised end to end: many concurrent GET /fetch?key=
// requests for the same key should produce exactly one slow origin call.
//
// Structured like the teacher's cmd/lockserver: env-var configuration,
// /metrics via promhttp, graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	cachelock "github.com/jbt95/cache-locking"
	"github.com/jbt95/cache-locking/internal/obs"
	"github.com/jbt95/cache-locking/pkg/memadapter"
	"github.com/jbt95/cache-locking/pkg/redisadapter"
	"github.com/jbt95/cache-locking/pkg/sqliteadapter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := getenv("CACHELOCK_ADDR", ":8081")
	backendKind := getenv("CACHELOCK_BACKEND", "memory")
	originLatency := getenvDuration("CACHELOCK_ORIGIN_LATENCY", 200*time.Millisecond)

	logger := obs.NewLogger()
	metrics := obs.NewMetrics()

	cache, leases, closeBackend, err := openBackend(ctx, backendKind)
	if err != nil {
		log.Fatalf("backend open: %v", err)
	}
	defer closeBackend()

	locker := cachelock.New(cachelock.Defaults{
		Cache:      cache,
		Leases:     leases,
		LeaseTTL:   10 * time.Second,
		WaitMax:    4 * time.Second,
		HasWaitMax: true,
		WaitStep:   250 * time.Millisecond,
		CacheTTL:   30 * time.Second,
		Logger:     logger,
		Metrics:    metrics,
	})

	mux := newMux(locker, originLatency)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("cachelockd up addr=%s backend=%s", addr, backendKind)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	wg.Wait()
	log.Printf("cachelockd stopped")
}

// newMux builds the server's routes around a fake slow "origin": each
// /fetch request simulates an expensive lookup gated by locker.GetOrSet,
// so concurrent requests for the same key collapse into one origin call.
func newMux(locker *cachelock.Locker, originLatency time.Duration) *http.ServeMux {
	var originCalls int64
	var originMu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/fetch", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "key is required", http.StatusBadRequest)
			return
		}

		fetch := func(ctx context.Context) ([]byte, error) {
			originMu.Lock()
			originCalls++
			n := originCalls
			originMu.Unlock()

			select {
			case <-time.After(originLatency):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return []byte(fmt.Sprintf("origin-response-for-%s-call-%d", key, n)), nil
		}

		res, err := locker.GetOrSet(r.Context(), key, fetch, cachelock.Options{})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Cachelock-Outcome", string(res.Meta.Outcome))
		w.Write(res.Value)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func openBackend(ctx context.Context, kind string) (cachelock.Cache, cachelock.Leases, func(), error) {
	switch kind {
	case "memory":
		a := memadapter.New(nil)
		return a, a, func() {}, nil
	case "sqlite":
		path := getenv("CACHELOCK_SQLITE_PATH", "./cachelockd.db")
		a, err := sqliteadapter.Open(ctx, sqliteadapter.Config{Path: path})
		if err != nil {
			return nil, nil, nil, err
		}
		return a, a, func() { _ = a.Close() }, nil
	case "redis":
		addr := getenv("CACHELOCK_REDIS_ADDR", "localhost:6379")
		client := redis.NewClient(&redis.Options{Addr: addr})
		a := redisadapter.New(client)
		return a, a, func() { _ = client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown CACHELOCK_BACKEND %q (want memory, sqlite, or redis)", kind)
	}
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
