package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/cmsconsole/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// MemoryRateStore provides process-local rate limiting. It is concurrency-safe.
type MemoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*memoryCounter
	clock func() time.Time
	stop  chan struct{}
	once  sync.Once
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store. Close stops its sweeper.
func NewMemoryRateStore() *MemoryRateStore {
	store := &MemoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: time.Now,
		stop:  make(chan struct{}),
	}
	go store.cleanupLoop(time.Minute)
	return store
}

// Close stops the background sweeper.
func (s *MemoryRateStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemoryRateStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryRateStore) sweep() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, counter := range s.data {
		if now.After(counter.windowEnd) {
			delete(s.data, key)
		}
	}
}

// Increment bumps the counter for key, starting a new window when the last one elapsed.
func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.data[key]
	if !ok || now.After(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}
	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

// storeRateStore adapts a shared cache.Store (Redis or the database) to RateStore.
type storeRateStore struct {
	store cache.Store
}

// NewCacheRateStore wraps a shared cache store so limits hold across instances.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
