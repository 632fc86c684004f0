package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a should be cached")
	}
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a lost: %v %v", v, ok)
	}
	if c.Size() != 2 || c.Stats().Evictions != 1 {
		t.Fatalf("size=%d stats=%+v", c.Size(), c.Stats())
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache[string](4, time.Second)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set("x", "v")
	c.Set("y", "w")
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("x"); ok {
		t.Fatalf("x should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired removed %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Fatalf("size %d", c.Size())
	}
}

func TestLoaderSharesConcurrentLoads(t *testing.T) {
	l := NewLoader[int](NewLRUCache[int](4, time.Minute))
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.GetOrLoad(context.Background(), "k", load)
			if err != nil {
				t.Errorf("GetOrLoad: %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		if v != 42 {
			t.Fatalf("unexpected result %v", results)
		}
	}
	if calls.Load() < 1 || calls.Load() > 8 {
		t.Fatalf("calls = %d", calls.Load())
	}
	if v, err := l.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, errors.New("should not load") }); err != nil || v != 42 {
		t.Fatalf("expected cached value, got %v %v", v, err)
	}
}

func TestLoaderInvalidateFencesInFlightLoad(t *testing.T) {
	l := NewLoader[int](NewLRUCache[int](4, time.Minute))
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started
	l.Invalidate("k")
	close(release)
	<-done

	v, err := l.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 2, nil })
	if err != nil || v != 2 {
		t.Fatalf("stale value survived invalidation: %v %v", v, err)
	}
}

func TestLoaderDoesNotCacheErrors(t *testing.T) {
	l := NewLoader[int](NewLRUCache[int](4, time.Minute))
	boom := errors.New("boom")
	if _, err := l.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if v, _ := l.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 7, nil }); v != 7 {
		t.Fatalf("error result was cached")
	}
}

func TestManagerSweep(t *testing.T) {
	var cleaned int
	m := NewManager(func(n int) { cleaned += n })
	c := NewLRUCache[int](4, time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	m.Register(c)
	now = now.Add(time.Hour)
	if n := m.Sweep(); n != 1 || cleaned != 1 {
		t.Fatalf("Sweep = %d, cleaned = %d", n, cleaned)
	}
	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}
