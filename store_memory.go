package replaycache

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/goforj/replaycache/kvcore"
)

// memoryList is the in-process representation of a list key.
type memoryList struct {
	items [][]byte
}

type memoryStore struct {
	cache *gocache.Cache
	mu    sync.Mutex
}

func newMemoryStore(cleanupInterval time.Duration) Store {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultMemoryCleanupInterval
	}
	return &memoryStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (s *memoryStore) Driver() Driver {
	return DriverMemory
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	body, ok := item.([]byte)
	if !ok {
		return nil, false, kvcore.ErrWrongType
	}
	return cloneBytes(body), true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(key, cloneBytes(value), gocache.NoExpiration)
	return nil
}

func (s *memoryStore) SetEx(_ context.Context, key string, ttl time.Duration, value []byte) error {
	if ttl <= 0 {
		return kvcore.ErrInvalidTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(key, cloneBytes(value), ttl)
	return nil
}

// Incr keeps the remaining expiry of an existing key, like INCR.
func (s *memoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(0)
	ttl := gocache.NoExpiration
	if item, expiresAt, ok := s.cache.GetWithExpiration(key); ok {
		body, isString := item.([]byte)
		if !isString {
			return 0, kvcore.ErrWrongType
		}
		n, err := strconv.ParseInt(string(body), 10, 64)
		if err != nil {
			return 0, kvcore.ErrNotInteger
		}
		current = n
		if !expiresAt.IsZero() {
			ttl = time.Until(expiresAt)
			if ttl <= 0 {
				// expired between the read and now.
				current = 0
				ttl = gocache.NoExpiration
			}
		}
	}
	next := current + 1
	s.cache.Set(key, []byte(strconv.FormatInt(next, 10)), ttl)
	return next, nil
}

func (s *memoryStore) RPush(_ context.Context, key string, value []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := &memoryList{}
	if item, ok := s.cache.Get(key); ok {
		existing, isList := item.(*memoryList)
		if !isList {
			return 0, kvcore.ErrWrongType
		}
		list = existing
	}
	list.items = append(list.items, cloneBytes(value))
	s.cache.Set(key, list, gocache.NoExpiration)
	return int64(len(list.items)), nil
}

func (s *memoryStore) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cache.Get(key)
	if !ok {
		return [][]byte{}, nil
	}
	list, isList := item.(*memoryList)
	if !isList {
		return nil, kvcore.ErrWrongType
	}
	lo, hi, ok := kvcore.NormalizeRange(int64(len(list.items)), start, stop)
	if !ok {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, hi-lo)
	for _, v := range list.items[lo:hi] {
		out = append(out, cloneBytes(v))
	}
	return out, nil
}

func (s *memoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Flush()
	return nil
}
