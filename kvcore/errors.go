package kvcore

import "errors"

var (
	// ErrWrongType is returned when a string operation targets a list or the reverse.
	ErrWrongType = errors.New("kv: operation against a key holding the wrong kind of value")
	// ErrNotInteger is returned by Incr when the stored value is not a base-10 int64.
	ErrNotInteger = errors.New("kv: value is not an integer or out of range")
	// ErrInvalidTTL is returned by SetEx when ttl is not positive.
	ErrInvalidTTL = errors.New("kv: invalid expire time")
)
