package replaycache

import "time"

// StoreOption mutates StoreConfig when constructing a store.
type StoreOption func(StoreConfig) StoreConfig

// WithPrefix sets the key prefix for shared backends.
func WithPrefix(prefix string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithMemoryCleanupInterval overrides the sweep interval for the memory driver.
func WithMemoryCleanupInterval(interval time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MemoryCleanupInterval = interval
		return cfg
	}
}

// WithRedisClient sets the redis client; required when using DriverRedis.
func WithRedisClient(client RedisClient) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.RedisClient = client
		return cfg
	}
}

// WithSQL sets the database/sql driver name, DSN and table for DriverSQL.
// An empty table keeps the default.
func WithSQL(driverName, dsn, table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		if table != "" {
			cfg.SQLTable = table
		}
		return cfg
	}
}

// WithNATSKeyValue sets the JetStream key-value bucket; required when using DriverNATS.
func WithNATSKeyValue(kv NATSKeyValue) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.NATSKeyValue = kv
		return cfg
	}
}

// WithDynamoClient injects a DynamoDB client for DriverDynamo.
func WithDynamoClient(client DynamoAPI) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoClient = client
		return cfg
	}
}

// WithDynamoTable sets the DynamoDB table name.
func WithDynamoTable(table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoTable = table
		return cfg
	}
}

// WithDynamoEndpoint points the built-in DynamoDB client at region and endpoint
// (for example dynamodb-local).
func WithDynamoEndpoint(region, endpoint string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoRegion = region
		cfg.DynamoEndpoint = endpoint
		return cfg
	}
}

// CacheOption mutates cache construction settings.
type CacheOption func(cacheConfig) cacheConfig

// WithoutFlush keeps existing store contents when the cache is constructed.
func WithoutFlush() CacheOption {
	return func(cfg cacheConfig) cacheConfig {
		cfg.flush = false
		return cfg
	}
}

// WithKeyGenerator replaces the uuid key generator used by Store.
func WithKeyGenerator(fn func() string) CacheOption {
	return func(cfg cacheConfig) cacheConfig {
		cfg.keyGen = fn
		return cfg
	}
}

// WithCacheObserver attaches an observer at construction time, so the initial
// flush is observed too.
func WithCacheObserver(o Observer) CacheOption {
	return func(cfg cacheConfig) cacheConfig {
		cfg.observer = o
		return cfg
	}
}
