package replaycache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by typed getters when the key is absent.
	ErrNotFound = errors.New("replaycache: key not found")
	// ErrHistoryMismatch is returned when the recorded input and output lists differ in length.
	ErrHistoryMismatch = errors.New("replaycache: call history inputs and outputs are misaligned")

	errInvalidUTF8 = errors.New("invalid utf-8")
)

// DecodeError reports a stored value that could not be decoded as Kind.
type DecodeError struct {
	Key  string
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("replaycache: decode %s value for key %q: %v", e.Kind, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnknownKindError reports a value kind outside Text, Bytes, Integer and Float.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("replaycache: unknown value kind %q", e.Kind)
}
