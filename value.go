package replaycache

import (
	"strconv"
	"unicode/utf8"
)

// Kind names the variant held by a Value.
type Kind string

const (
	KindText    Kind = "text"
	KindBytes   Kind = "bytes"
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
)

// Value is a storable payload: Text, Bytes, Integer or Float.
// The set of variants is closed.
type Value interface {
	Kind() Kind
	// Encode returns the bytes written to the store.
	Encode() []byte
	// Repr returns the printable form recorded in call history.
	Repr() string
	sealed()
}

// Text is a UTF-8 string value.
type Text string

// Bytes is an opaque byte value.
type Bytes []byte

// Integer is a signed 64-bit integer value.
type Integer int64

// Float is a 64-bit floating-point value.
type Float float64

func (Text) Kind() Kind    { return KindText }
func (Bytes) Kind() Kind   { return KindBytes }
func (Integer) Kind() Kind { return KindInteger }
func (Float) Kind() Kind   { return KindFloat }

func (v Text) Encode() []byte    { return []byte(v) }
func (v Bytes) Encode() []byte   { return cloneBytes(v) }
func (v Integer) Encode() []byte { return strconv.AppendInt(nil, int64(v), 10) }
func (v Float) Encode() []byte   { return strconv.AppendFloat(nil, float64(v), 'g', -1, 64) }

func (v Text) Repr() string    { return strconv.Quote(string(v)) }
func (v Bytes) Repr() string   { return "[]byte(" + strconv.Quote(string(v)) + ")" }
func (v Integer) Repr() string { return strconv.FormatInt(int64(v), 10) }
func (v Float) Repr() string   { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

func (Text) sealed()    {}
func (Bytes) sealed()   {}
func (Integer) sealed() {}
func (Float) sealed()   {}

// ParseValue builds a Value of kind from its command-line form.
func ParseValue(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindText, "":
		return Text(raw), nil
	case KindBytes:
		return Bytes(raw), nil
	case KindInteger:
		n, err := DecodeInt([]byte(raw))
		if err != nil {
			return nil, err
		}
		return Integer(n), nil
	case KindFloat:
		f, err := DecodeFloat([]byte(raw))
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}

// DecodeBytes returns a copy of body.
func DecodeBytes(body []byte) ([]byte, error) {
	return cloneBytes(body), nil
}

// DecodeText interprets body as UTF-8.
func DecodeText(body []byte) (string, error) {
	if !utf8.Valid(body) {
		return "", errInvalidUTF8
	}
	return string(body), nil
}

// DecodeInt parses body as a base-10 int64 literal.
func DecodeInt(body []byte) (int64, error) {
	return strconv.ParseInt(string(body), 10, 64)
}

// DecodeFloat parses body as a float64 literal.
func DecodeFloat(body []byte) (float64, error) {
	return strconv.ParseFloat(string(body), 64)
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	clone := make([]byte, len(value))
	copy(clone, value)
	return clone
}
