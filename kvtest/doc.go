// Package kvtest provides reusable contract tests for kvcore.Store implementations.
//
// Each driver test builds a store against its backend and hands it to
// RunStoreContract. Keys are namespaced per case so suites can share a backend.
//
//	func TestRedisStoreContract(t *testing.T) {
//		client := newTestRedisClient(t)
//		store := replaycache.NewRedisStore(ctx, client, replaycache.WithPrefix("test"))
//
//		// Redis expiries have one-second resolution.
//		kvtest.RunStoreContract(t, store, kvtest.Options{
//			TTL:     time.Second,
//			TTLWait: 2500 * time.Millisecond,
//		})
//	}
package kvtest
