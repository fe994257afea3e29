package proxycache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/colabcli/colab/internal/colabapi"
)

// countingRefresher simulates a slow upstream refresh and counts how many
// times it was actually invoked, so tests can assert the singleflight
// contract (spec.md §8 invariant 6: at most one network call per endpoint
// under concurrent Get).
type countingRefresher struct {
	calls int64
}

func (r *countingRefresher) RefreshConnection(ctx context.Context, endpoint string) (colabapi.ProxyInfo, error) {
	atomic.AddInt64(&r.calls, 1)
	time.Sleep(10 * time.Millisecond)
	return colabapi.ProxyInfo{
		URL:        "https://proxy.example/" + endpoint,
		Token:      "tok-" + endpoint,
		IssuedAt:   time.Now(),
		TTLSeconds: 3600,
	}, nil
}

func TestGetCoalescesConcurrentRefreshesForSameEndpoint(t *testing.T) {
	refresher := &countingRefresher{}
	cache := New(refresher, nil)

	const n = 50
	var wg sync.WaitGroup
	results := make([]colabapi.ProxyInfo, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Get(context.Background(), "ep-shared")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Get[%d]: unexpected error: %v", i, err)
		}
	}
	if got := atomic.LoadInt64(&refresher.calls); got != 1 {
		t.Fatalf("refresher called %d times, want exactly 1", got)
	}
	for i, info := range results {
		if info.Token != "tok-ep-shared" {
			t.Fatalf("results[%d].Token = %q, want tok-ep-shared", i, info.Token)
		}
	}
}

func TestGetIssuesIndependentRefreshesForDistinctEndpoints(t *testing.T) {
	refresher := &countingRefresher{}
	cache := New(refresher, nil)

	var wg sync.WaitGroup
	for _, ep := range []string{"ep-a", "ep-b", "ep-c"} {
		wg.Add(1)
		go func(ep string) {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), ep); err != nil {
				t.Errorf("Get(%s): unexpected error: %v", ep, err)
			}
		}(ep)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&refresher.calls); got != 3 {
		t.Fatalf("refresher called %d times, want 3 (one per distinct endpoint)", got)
	}
}

func TestGetReturnsCachedEntryWithoutRefresh(t *testing.T) {
	refresher := &countingRefresher{}
	cache := New(refresher, nil)

	if _, err := cache.Get(context.Background(), "ep-1"); err != nil {
		t.Fatalf("first Get: unexpected error: %v", err)
	}
	if _, err := cache.Get(context.Background(), "ep-1"); err != nil {
		t.Fatalf("second Get: unexpected error: %v", err)
	}
	if got := atomic.LoadInt64(&refresher.calls); got != 1 {
		t.Fatalf("refresher called %d times, want 1 (second Get should hit the warm cache)", got)
	}
}
