package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Loader fronts a Cache with a load function. Concurrent misses for the
// same key share one load. A load that started before Invalidate never
// repopulates the key.
type Loader[T any] struct {
	cache Cache[T]
	group singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

func NewLoader[T any](c Cache[T]) *Loader[T] {
	return &Loader[T]{cache: c, gen: make(map[string]uint64)}
}

func (l *Loader[T]) generation(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen[key]
}

// GetOrLoad returns the cached value for key, calling load on a miss.
func (l *Loader[T]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	g := l.generation(key)
	v, err, _ := l.group.Do(key+"#"+strconv.FormatUint(g, 10), func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if l.gen[key] == g {
			l.cache.Set(key, val)
		}
		l.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops keys and fences off loads already in flight for them.
func (l *Loader[T]) Invalidate(keys ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		l.gen[k]++
		l.cache.Delete(k)
	}
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	mu          sync.Mutex
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	onClean     func(removed int)
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// NewManager creates a cache manager. onClean, if set, is called after
// each sweep that removed something.
func NewManager(onClean func(removed int)) *Manager {
	return &Manager{onClean: onClean}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, cache)
}

// Sweep cleans every registered cache once and returns the number of
// entries removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	if total > 0 && m.onClean != nil {
		m.onClean(total)
	}
	return total
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	if m.stopCleanup != nil {
		m.mu.Unlock()
		return
	}
	m.stopCleanup = make(chan struct{})
	m.cleanupDone = make(chan struct{})
	stop, done := m.stopCleanup, m.cleanupDone
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup routine started by StartCleanup.
func (m *Manager) Stop() {
	m.mu.Lock()
	stop, done := m.stopCleanup, m.cleanupDone
	m.stopCleanup = nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}
