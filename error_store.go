package replaycache

import (
	"context"
	"time"
)

// errorStore is returned when a driver fails to initialize; it preserves the driver
// identity while surfacing the construction error on every call.
type errorStore struct {
	driver Driver
	err    error
}

func (e *errorStore) Driver() Driver                                    { return e.driver }
func (e *errorStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, e.err }
func (e *errorStore) Set(context.Context, string, []byte) error         { return e.err }
func (e *errorStore) SetEx(context.Context, string, time.Duration, []byte) error {
	return e.err
}
func (e *errorStore) Incr(context.Context, string) (int64, error) { return 0, e.err }
func (e *errorStore) RPush(context.Context, string, []byte) (int64, error) {
	return 0, e.err
}
func (e *errorStore) LRange(context.Context, string, int64, int64) ([][]byte, error) {
	return nil, e.err
}
func (e *errorStore) Flush(context.Context) error { return e.err }

// StoreErr reports the construction error held by store, if NewStore could not
// initialize the requested driver.
func StoreErr(store Store) error {
	if e, ok := store.(*errorStore); ok {
		return e.err
	}
	return nil
}
