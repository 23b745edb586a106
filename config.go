package replaycache

import "time"

const (
	defaultMemoryCleanupInterval = 10 * time.Minute
	defaultSQLTable              = "kv_entries"
	defaultDynamoTable           = "kv_entries"
	defaultDynamoRegion          = "us-east-1"
)

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	Driver Driver

	// Prefix namespaces keys on shared backends. Empty keeps keys verbatim so
	// counters and history lists are visible under their plain names.
	Prefix string

	// MemoryCleanupInterval controls in-process eviction of expired keys.
	MemoryCleanupInterval time.Duration

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient

	// SQLDriverName and SQLDSN are required when DriverSQL is used.
	// Supported driver names: sqlite, pgx, postgres, mysql.
	SQLDriverName string
	SQLDSN        string
	SQLTable      string

	// NATSKeyValue is required when DriverNATS is used.
	NATSKeyValue NATSKeyValue

	// DynamoClient is optional; when nil a client is built from DynamoRegion
	// and DynamoEndpoint.
	DynamoClient   DynamoAPI
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultSQLTable
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultDynamoTable
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = defaultDynamoRegion
	}
	return c
}

// cacheConfig controls how a Cache is constructed.
type cacheConfig struct {
	flush    bool
	keyGen   func() string
	observer Observer
}

func (c cacheConfig) withDefaults() cacheConfig {
	if c.keyGen == nil {
		c.keyGen = newUUIDKey
	}
	return c
}
