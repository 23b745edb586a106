package replaycache

import (
	"errors"
	"testing"
)

func TestValueEncodeAndRepr(t *testing.T) {
	cases := []struct {
		value  Value
		kind   Kind
		encode string
		repr   string
	}{
		{Text("foo"), KindText, "foo", `"foo"`},
		{Text(`a"b`), KindText, `a"b`, `"a\"b"`},
		{Bytes("foo"), KindBytes, "foo", `[]byte("foo")`},
		{Integer(123), KindInteger, "123", "123"},
		{Integer(-7), KindInteger, "-7", "-7"},
		{Float(1.5), KindFloat, "1.5", "1.5"},
		{Float(0.1), KindFloat, "0.1", "0.1"},
	}
	for _, tc := range cases {
		if tc.value.Kind() != tc.kind {
			t.Fatalf("%v: expected kind %s, got %s", tc.value, tc.kind, tc.value.Kind())
		}
		if got := string(tc.value.Encode()); got != tc.encode {
			t.Fatalf("%v: expected encoding %q, got %q", tc.value, tc.encode, got)
		}
		if got := tc.value.Repr(); got != tc.repr {
			t.Fatalf("%v: expected repr %q, got %q", tc.value, tc.repr, got)
		}
	}
}

func TestBytesEncodeCopies(t *testing.T) {
	b := Bytes("abc")
	enc := b.Encode()
	enc[0] = 'X'
	if string(b) != "abc" {
		t.Fatalf("expected encode to copy, value is now %q", string(b))
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(KindInteger, "42")
	if err != nil || v != Integer(42) {
		t.Fatalf("expected Integer(42), got %v err=%v", v, err)
	}
	v, err = ParseValue(KindFloat, "2.25")
	if err != nil || v != Float(2.25) {
		t.Fatalf("expected Float(2.25), got %v err=%v", v, err)
	}
	v, err = ParseValue("", "plain")
	if err != nil || v != Text("plain") {
		t.Fatalf("expected Text default, got %v err=%v", v, err)
	}
	if _, err := ParseValue(KindInteger, "x"); err == nil {
		t.Fatalf("expected parse error for bad integer")
	}
	var unknown *UnknownKindError
	if _, err := ParseValue("json", "{}"); !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownKindError, got %v", err)
	}
}

func TestDecoders(t *testing.T) {
	if _, err := DecodeText([]byte{0xff, 0xfe}); err == nil {
		t.Fatalf("expected invalid utf-8 error")
	}
	if s, err := DecodeText([]byte("héllo")); err != nil || s != "héllo" {
		t.Fatalf("unexpected text decode: %q err=%v", s, err)
	}
	if _, err := DecodeInt([]byte("1.5")); err == nil {
		t.Fatalf("expected int decode error for float literal")
	}
	if f, err := DecodeFloat([]byte("123")); err != nil || f != 123 {
		t.Fatalf("expected integer literal to decode as float, got %v err=%v", f, err)
	}
	b, _ := DecodeBytes([]byte("x"))
	if string(b) != "x" {
		t.Fatalf("unexpected bytes decode: %q", string(b))
	}
}
