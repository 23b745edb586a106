package replaycache

import "github.com/goforj/replaycache/kvcore"

// Driver identifies the key-value backend.
type Driver = kvcore.Driver

// Store is the key-value contract the cache is built on.
type Store = kvcore.Store

const (
	DriverMemory = kvcore.DriverMemory
	DriverRedis  = kvcore.DriverRedis
	DriverSQL    = kvcore.DriverSQL
	DriverNATS   = kvcore.DriverNATS
	DriverDynamo = kvcore.DriverDynamo
)

// Persistent drivers tag each entry with the kind of value it holds.
const (
	entryKindString = "s"
	entryKindList   = "l"
)
