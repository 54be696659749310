package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCacheSetPeekDelete(t *testing.T) {
	c := New(Options{TTL: 50 * time.Millisecond, StaleWhileRevalidate: 20 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})

	c.Set("alpha", "value")
	if val, ok := c.Peek("alpha"); !ok || val.(string) != "value" {
		t.Fatalf("expected peeked value")
	}

	c.Delete("alpha")
	if _, ok := c.Peek("alpha"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestCacheGetLoadsOnceWhileFresh(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 10}, MetricsHooks{})

	var mu sync.Mutex
	calls := 0
	loader := func(_ context.Context, _ string) (interface{}, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		return n, nil
	}

	val, err := c.Get(context.Background(), "alpha", loader)
	if err != nil || val.(int) != 1 {
		t.Fatalf("expected first load, got %v, %v", val, err)
	}
	val, err = c.Get(context.Background(), "alpha", loader)
	if err != nil || val.(int) != 1 {
		t.Fatalf("expected cache hit, got %v, %v", val, err)
	}
}

func TestCacheConcurrentHitsOnHotKey(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 10}, MetricsHooks{})
	c.Set("alpha", 42)

	// Hammer one fresh key from many goroutines; the hit path must only
	// ever read shared state.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				val, err := c.Get(context.Background(), "alpha", func(context.Context, string) (interface{}, error) {
					return nil, errors.New("must not load")
				})
				if err != nil || val.(int) != 42 {
					t.Errorf("expected hit, got %v, %v", val, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestCacheGetLoaderError(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 10}, MetricsHooks{})

	wantErr := errors.New("load failed")
	_, err := c.Get(context.Background(), "alpha", func(context.Context, string) (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if _, ok := c.Peek("alpha"); ok {
		t.Fatalf("errors must not be cached")
	}
}

func TestCacheInvalidatePrefix(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 10}, MetricsHooks{})
	c.Set("range:team-a:2024-06", 1)
	c.Set("range:team-a:2024-07", 2)
	c.Set("range:team-b:2024-06", 3)

	if n := c.InvalidatePrefix("range:team-a:"); n != 2 {
		t.Fatalf("expected 2 dropped, got %d", n)
	}
	if _, ok := c.Peek("range:team-a:2024-06"); ok {
		t.Fatalf("expected team-a entries gone")
	}
	if _, ok := c.Peek("range:team-b:2024-06"); !ok {
		t.Fatalf("expected team-b entry kept")
	}
}

func TestCacheEviction(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 2}, MetricsHooks{})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	if _, ok := c.Peek("a"); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if _, ok := c.Peek("c"); !ok {
		t.Fatalf("expected newest entry kept")
	}
}
