package replaycache

import (
	"context"
	"fmt"
)

// NewStore returns a concrete store for the requested driver.
// Caller is responsible for providing any driver-specific dependencies.
// A driver that fails to initialize yields a store that returns the
// construction error from every call.
// @group Constructors
//
// Example: select driver explicitly
//
//	ctx := context.Background()
//	store := replaycache.NewStore(ctx, replaycache.StoreConfig{
//		Driver: replaycache.DriverMemory,
//	})
//	fmt.Println(store.Driver()) // memory
func NewStore(ctx context.Context, cfg StoreConfig) Store {
	cfg = cfg.withDefaults()
	switch cfg.Driver {
	case DriverMemory:
		return newMemoryStore(cfg.MemoryCleanupInterval)
	case DriverRedis:
		return newRedisStore(cfg.RedisClient, cfg.Prefix)
	case DriverSQL:
		store, err := newSQLStore(ctx, cfg)
		if err != nil {
			return &errorStore{driver: DriverSQL, err: err}
		}
		return store
	case DriverNATS:
		return newNATSStore(cfg.NATSKeyValue, cfg.Prefix)
	case DriverDynamo:
		store, err := newDynamoStore(ctx, cfg)
		if err != nil {
			return &errorStore{driver: DriverDynamo, err: err}
		}
		return store
	default:
		return &errorStore{driver: cfg.Driver, err: fmt.Errorf("replaycache: unsupported driver %q", cfg.Driver)}
	}
}

// NewStoreWith builds a store using a driver and a set of functional options.
// Required data (e.g., Redis client) must be provided via options when needed.
// @group Constructors
//
// Example: redis store (options)
//
//	ctx := context.Background()
//	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store := replaycache.NewStoreWith(ctx, replaycache.DriverRedis,
//		replaycache.WithRedisClient(rdb),
//	)
//	fmt.Println(store.Driver()) // redis
func NewStoreWith(ctx context.Context, driver Driver, opts ...StoreOption) Store {
	cfg := StoreConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// NewMemoryStore is a convenience for an in-process store with optional overrides.
// @group Constructors
func NewMemoryStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverMemory, opts...)
}

// NewRedisStore is a convenience for a redis-backed store. Redis client is required.
// @group Constructors
//
// Example: redis helper
//
//	ctx := context.Background()
//	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store := replaycache.NewRedisStore(ctx, rdb)
//	fmt.Println(store.Driver()) // redis
func NewRedisStore(ctx context.Context, client RedisClient, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverRedis, append([]StoreOption{WithRedisClient(client)}, opts...)...)
}

// NewSQLStore is a convenience for a database/sql-backed store.
// @group Constructors
//
// Example: sqlite helper
//
//	ctx := context.Background()
//	store := replaycache.NewSQLStore(ctx, "sqlite", "file::memory:?cache=shared", "kv_entries")
//	fmt.Println(store.Driver()) // sql
func NewSQLStore(ctx context.Context, driverName, dsn, table string, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverSQL, append([]StoreOption{WithSQL(driverName, dsn, table)}, opts...)...)
}

// NewNATSStore is a convenience for a JetStream key-value backed store.
// @group Constructors
func NewNATSStore(ctx context.Context, kv NATSKeyValue, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverNATS, append([]StoreOption{WithNATSKeyValue(kv)}, opts...)...)
}

// NewDynamoStore is a convenience for a DynamoDB-backed store.
// @group Constructors
func NewDynamoStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverDynamo, opts...)
}
