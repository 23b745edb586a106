package replaycache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// StoreOperation is the stable name under which Cache.Store is counted and recorded.
const StoreOperation = "Cache.store"

// Cache stores values under generated keys and records how Store was called.
type Cache struct {
	store    Store
	newKey   func() string
	observer Observer
	storeOp  Invoker[Value, string]
}

// NewCache creates a cache facade bound to store and flushes the store so the
// run starts from empty counters and history.
// @group Cache
//
// Example: cache from store
//
//	ctx := context.Background()
//	c, _ := replaycache.NewCache(ctx, replaycache.NewMemoryStore(ctx))
//	fmt.Println(c.Driver()) // memory
func NewCache(ctx context.Context, store Store, opts ...CacheOption) (*Cache, error) {
	cfg := cacheConfig{flush: true}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	cfg = cfg.withDefaults()

	c := &Cache{
		store:    store,
		newKey:   cfg.keyGen,
		observer: cfg.observer,
	}
	c.storeOp = Instrument[Value, string](StoreOperation,
		InvokerFunc[Value, string](c.set),
		CallHistory[Value, string](store, formatArgs, formatKey),
		CountCalls[Value, string](store),
	)
	if cfg.flush {
		if err := c.FlushCtx(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithObserver attaches an observer to receive operation events.
func (c *Cache) WithObserver(o Observer) *Cache {
	c.observer = o
	return c
}

// Backend returns the underlying key-value store.
func (c *Cache) Backend() Store {
	return c.store
}

// Driver reports the underlying store driver.
// @group Cache
func (c *Cache) Driver() Driver {
	return c.store.Driver()
}

// Store writes v under a freshly generated key and returns the key.
// Every call increments the Cache.store counter and appends to its history.
// @group Cache
//
// Example: store text
//
//	ctx := context.Background()
//	c, _ := replaycache.NewCache(ctx, replaycache.NewMemoryStore(ctx))
//	key, _ := c.Store(replaycache.Text("foo"))
//	s, _ := c.GetStr(key)
//	fmt.Println(s) // foo
func (c *Cache) Store(v Value) (string, error) {
	return c.StoreCtx(context.Background(), v)
}

func (c *Cache) StoreCtx(ctx context.Context, v Value) (string, error) {
	start := time.Now()
	if v == nil {
		err := errors.New("replaycache: store requires a value")
		c.observe(ctx, "store", "", false, err, start)
		return "", err
	}
	key, err := c.storeOp.Invoke(ctx, v)
	c.observe(ctx, "store", key, false, err, start)
	return key, err
}

func (c *Cache) set(ctx context.Context, v Value) (string, error) {
	key := c.newKey()
	if err := c.store.Set(ctx, key, v.Encode()); err != nil {
		return "", err
	}
	return key, nil
}

// Get returns the raw bytes stored under key. A missing key reports ok=false
// without an error.
// @group Cache
func (c *Cache) Get(key string) ([]byte, bool, error) {
	return c.GetCtx(context.Background(), key)
}

func (c *Cache) GetCtx(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	body, ok, err := c.store.Get(ctx, key)
	c.observe(ctx, "get", key, ok, err, start)
	return body, ok, err
}

// GetAs reads key and converts it with decode. A missing key returns
// ErrNotFound and decode is not called; a decode failure is returned as a
// *DecodeError.
// @group Cache
//
// Example: decode with a custom function
//
//	ctx := context.Background()
//	c, _ := replaycache.NewCache(ctx, replaycache.NewMemoryStore(ctx))
//	key, _ := c.Store(replaycache.Text("a,b"))
//	parts, _ := replaycache.GetAs(c, key, func(b []byte) ([]string, error) {
//		return strings.Split(string(b), ","), nil
//	})
//	fmt.Println(len(parts)) // 2
func GetAs[T any](c *Cache, key string, decode func([]byte) (T, error)) (T, error) {
	return GetAsCtx(context.Background(), c, key, decode)
}

// GetAsCtx is the context-aware variant of GetAs.
func GetAsCtx[T any](ctx context.Context, c *Cache, key string, decode func([]byte) (T, error)) (T, error) {
	return getAs(ctx, c, "get_as", "custom", key, decode)
}

func getAs[T any](ctx context.Context, c *Cache, op string, kind Kind, key string, decode func([]byte) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	body, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.observe(ctx, op, key, false, err, start)
		return zero, err
	}
	if !ok {
		c.observe(ctx, op, key, false, ErrNotFound, start)
		return zero, ErrNotFound
	}
	if decode == nil {
		err := errors.New("replaycache: get requires a decode function")
		c.observe(ctx, op, key, true, err, start)
		return zero, err
	}
	out, err := decode(body)
	if err != nil {
		err = &DecodeError{Key: key, Kind: kind, Err: err}
		c.observe(ctx, op, key, true, err, start)
		return zero, err
	}
	c.observe(ctx, op, key, true, nil, start)
	return out, nil
}

// GetStr returns the UTF-8 string stored under key.
// @group Cache
func (c *Cache) GetStr(key string) (string, error) {
	return c.GetStrCtx(context.Background(), key)
}

func (c *Cache) GetStrCtx(ctx context.Context, key string) (string, error) {
	return getAs(ctx, c, "get_str", KindText, key, DecodeText)
}

// GetInt returns the base-10 integer stored under key.
// @group Cache
//
// Example: store and read an integer
//
//	ctx := context.Background()
//	c, _ := replaycache.NewCache(ctx, replaycache.NewMemoryStore(ctx))
//	key, _ := c.Store(replaycache.Integer(42))
//	n, _ := c.GetInt(key)
//	fmt.Println(n) // 42
func (c *Cache) GetInt(key string) (int64, error) {
	return c.GetIntCtx(context.Background(), key)
}

func (c *Cache) GetIntCtx(ctx context.Context, key string) (int64, error) {
	return getAs(ctx, c, "get_int", KindInteger, key, DecodeInt)
}

// GetFloat returns the floating-point number stored under key.
// @group Cache
func (c *Cache) GetFloat(key string) (float64, error) {
	return c.GetFloatCtx(context.Background(), key)
}

func (c *Cache) GetFloatCtx(ctx context.Context, key string) (float64, error) {
	return getAs(ctx, c, "get_float", KindFloat, key, DecodeFloat)
}

// Flush clears every key in the backing store.
// @group Cache
func (c *Cache) Flush() error {
	return c.FlushCtx(context.Background())
}

func (c *Cache) FlushCtx(ctx context.Context) error {
	start := time.Now()
	err := c.store.Flush(ctx)
	c.observe(ctx, "flush", "", err == nil, err, start)
	return err
}

func (c *Cache) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnCacheOp(ctx, op, key, hit, err, time.Since(start), c.Driver())
}

func formatArgs(v Value) string {
	return "(" + v.Repr() + ")"
}

func formatKey(key string) string {
	return key
}

func newUUIDKey() string {
	return uuid.NewString()
}
