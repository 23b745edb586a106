// Package pagecache caches fetched web pages in a key-value store.
//
// Every lookup increments count:{url}. The page body is stored under the URL
// itself for a short TTL, so repeated lookups inside the window skip the fetch.
package pagecache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goforj/replaycache/kvcore"
)

// DefaultTTL is how long a fetched page stays cached.
const DefaultTTL = 10 * time.Second

// CountKey is the counter key tracking lookups of url.
func CountKey(url string) string {
	return "count:" + url
}

// PageCache fronts a Fetcher with a store-backed cache.
type PageCache struct {
	store   kvcore.Store
	fetcher Fetcher
	ttl     time.Duration
}

// Option configures a PageCache.
type Option func(*PageCache)

// WithFetcher replaces the default HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(p *PageCache) { p.fetcher = f }
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(p *PageCache) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// New returns a page cache over store.
//
// Example: cache a page
//
//	ctx := context.Background()
//	pages := pagecache.New(replaycache.NewMemoryStore(ctx))
//	body, _ := pages.Get(ctx, "https://example.com")
//	fmt.Println(len(body) > 0) // true
func New(store kvcore.Store, opts ...Option) *PageCache {
	p := &PageCache{store: store, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(p)
	}
	if p.fetcher == nil {
		p.fetcher = NewHTTPFetcher()
	}
	return p
}

// Get counts the lookup, then returns the cached body for url or fetches and
// caches it. Fetch failures are returned and nothing is cached.
func (p *PageCache) Get(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", errors.New("pagecache: url is required")
	}
	if _, err := p.store.Incr(ctx, CountKey(url)); err != nil {
		return "", fmt.Errorf("pagecache: count %s: %w", url, err)
	}
	body, ok, err := p.store.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("pagecache: read %s: %w", url, err)
	}
	if ok {
		return string(body), nil
	}
	body, err = p.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if err := p.store.SetEx(ctx, url, p.ttl, body); err != nil {
		return "", fmt.Errorf("pagecache: cache %s: %w", url, err)
	}
	return string(body), nil
}

// Count returns how many times url has been looked up.
func (p *PageCache) Count(ctx context.Context, url string) (int64, error) {
	body, ok, err := p.store.Get(ctx, CountKey(url))
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pagecache: counter %s: %w", url, err)
	}
	return n, nil
}
