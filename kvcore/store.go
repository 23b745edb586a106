package kvcore

import (
	"context"
	"time"
)

// Store is the key-value contract consumed by the cache facade, the
// instrumentation layer and the page cache.
//
// Implementations follow Redis semantics: Set clears any expiry, Incr starts
// absent keys at 0, RPush creates absent lists, and LRange treats both bounds as
// inclusive with negative indices counted from the tail.
type Store interface {
	Driver() Driver
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Incr(ctx context.Context, key string) (int64, error)
	RPush(ctx context.Context, key string, value []byte) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	Flush(ctx context.Context) error
}
