// Command cachelockload hammers a running cachelockd instance with
// concurrent GET /fetch requests for a small set of hot keys, to make the
// thundering-herd protection visible: origin-call counts should stay flat
// as client concurrency grows.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8081", "cachelockd base URL")
		clients  = flag.Int("clients", 50, "number of concurrent clients")
		duration = flag.Duration("duration", 10*time.Second, "test duration")
		keys     = flag.Int("keys", 3, "number of distinct hot keys to request")
	)
	flag.Parse()

	httpc := &http.Client{Timeout: 10 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var (
		requests int64
		errors   int64

		outcomesMu sync.Mutex
		outcomes   = make(map[string]int64)
	)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				key := fmt.Sprintf("hot-key-%d", rand.Intn(*keys))
				outcome, err := fetchOnce(ctx, httpc, *baseURL, key)
				atomic.AddInt64(&requests, 1)
				if err != nil {
					atomic.AddInt64(&errors, 1)
					continue
				}
				outcomesMu.Lock()
				outcomes[outcome]++
				outcomesMu.Unlock()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("=== cachelockload ===")
	fmt.Printf("duration: %s, clients: %d, keys: %d\n", elapsed, *clients, *keys)
	fmt.Printf("requests: %d\n", requests)
	fmt.Printf("errors:   %d\n", errors)
	for outcome, n := range outcomes {
		fmt.Printf("outcome %-24s %d\n", outcome, n)
	}
}

func fetchOnce(ctx context.Context, c *http.Client, baseURL, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/fetch?key=%s", baseURL, key), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Header.Get("X-Cachelock-Outcome"), nil
}
