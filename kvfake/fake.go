// Package kvfake offers an in-memory store that records every operation,
// for tests that want to assert how code under test touched the backend.
package kvfake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/replaycache"
)

// Op identifies a store operation for assertions.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpSetEx  Op = "setex"
	OpIncr   Op = "incr"
	OpRPush  Op = "rpush"
	OpLRange Op = "lrange"
	OpFlush  Op = "flush"
)

// Fake exposes a deterministic in-memory store plus assertion helpers for tests.
// It wraps the memory store so no external services are needed.
type Fake struct {
	store  *countingStore
	counts map[Op]map[string]int
	mu     sync.Mutex
}

// New creates a Fake using an in-memory store.
func New() *Fake {
	f := &Fake{counts: make(map[Op]map[string]int)}
	f.store = &countingStore{
		inner:   replaycache.NewMemoryStore(context.Background()),
		onCount: f.record,
	}
	return f
}

// Store returns the counting store to inject into code under test.
func (f *Fake) Store() replaycache.Store { return f.store }

// Cache builds a cache facade over the fake store. The facade's initial flush
// is not counted.
func (f *Fake) Cache(opts ...replaycache.CacheOption) *replaycache.Cache {
	c, err := replaycache.NewCache(context.Background(), f.store, opts...)
	if err != nil {
		// the memory store never fails to flush.
		panic(err)
	}
	f.Reset()
	return c
}

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies key was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		return 0
	}
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

// countingStore wraps a Store to record calls.
type countingStore struct {
	inner   replaycache.Store
	onCount func(Op, string)
}

func (s *countingStore) Driver() replaycache.Driver { return s.inner.Driver() }

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.bump(OpGet, key)
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte) error {
	s.bump(OpSet, key)
	return s.inner.Set(ctx, key, value)
}

func (s *countingStore) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	s.bump(OpSetEx, key)
	return s.inner.SetEx(ctx, key, ttl, value)
}

func (s *countingStore) Incr(ctx context.Context, key string) (int64, error) {
	s.bump(OpIncr, key)
	return s.inner.Incr(ctx, key)
}

func (s *countingStore) RPush(ctx context.Context, key string, value []byte) (int64, error) {
	s.bump(OpRPush, key)
	return s.inner.RPush(ctx, key, value)
}

func (s *countingStore) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	s.bump(OpLRange, key)
	return s.inner.LRange(ctx, key, start, stop)
}

func (s *countingStore) Flush(ctx context.Context) error {
	s.bump(OpFlush, "")
	return s.inner.Flush(ctx)
}

func (s *countingStore) bump(op Op, key string) {
	if s.onCount != nil {
		s.onCount(op, key)
	}
}
