package kvtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goforj/replaycache/kvcore"
)

// Options configures shared store contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// SkipCloneCheck disables the "get returns a cloned value" assertion.
	SkipCloneCheck bool
	// TTL controls the expiry duration used in SetEx tests.
	TTL time.Duration
	// TTLWait is how long the harness waits for expiry to occur.
	TTLWait time.Duration
	// SkipFlush disables the flush assertion for backends shared with other data.
	SkipFlush bool
}

// Store is the contract exercised by RunStoreContract.
type Store = kvcore.Store

// RunStoreContract runs a backend-agnostic store contract suite.
func RunStoreContract(t *testing.T, store Store, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 120 * time.Millisecond
	}

	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}

	// Set/Get round-trip.
	if err := store.Set(ctx, key("alpha"), []byte("value")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, key("alpha"))
	if err != nil || !ok || string(body) != "value" {
		t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, string(body), err)
	}
	if !opts.SkipCloneCheck {
		body[0] = 'X'
		body2, ok2, err2 := store.Get(ctx, key("alpha"))
		if err2 != nil || !ok2 || string(body2) != "value" {
			t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok2, string(body2), err2)
		}
	}
	if _, ok, err := store.Get(ctx, key("missing")); err != nil || ok {
		t.Fatalf("expected miss for absent key; ok=%v err=%v", ok, err)
	}

	// Binary values survive untouched.
	raw := []byte{0x00, 0xff, 0x10, '\n'}
	if err := store.Set(ctx, key("binary"), raw); err != nil {
		t.Fatalf("set binary failed: %v", err)
	}
	if got, ok, err := store.Get(ctx, key("binary")); err != nil || !ok || string(got) != string(raw) {
		t.Fatalf("unexpected binary round trip: ok=%v body=%v err=%v", ok, got, err)
	}

	// SetEx expiry and validation.
	if err := store.SetEx(ctx, key("ttl"), ttl, []byte("v")); err != nil {
		t.Fatalf("setex failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, key("ttl")); err != nil || !ok {
		t.Fatalf("expected setex value before expiry; ok=%v err=%v", ok, err)
	}
	if err := waitForMiss(ctx, store, key("ttl"), wait); err != nil {
		t.Fatalf("expected ttl expiry: %v", err)
	}
	if err := store.SetEx(ctx, key("ttl-bad"), 0, []byte("v")); !errors.Is(err, kvcore.ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL for zero ttl, got %v", err)
	}

	// Set clears a pending expiry.
	if err := store.SetEx(ctx, key("persist"), ttl, []byte("short")); err != nil {
		t.Fatalf("setex persist failed: %v", err)
	}
	if err := store.Set(ctx, key("persist"), []byte("long")); err != nil {
		t.Fatalf("set persist failed: %v", err)
	}
	time.Sleep(wait)
	if got, ok, err := store.Get(ctx, key("persist")); err != nil || !ok || string(got) != "long" {
		t.Fatalf("expected set to clear expiry; ok=%v body=%q err=%v", ok, string(got), err)
	}

	// Counters.
	for want := int64(1); want <= 3; want++ {
		n, err := store.Incr(ctx, key("counter"))
		if err != nil {
			t.Fatalf("incr failed: %v", err)
		}
		if n != want {
			t.Fatalf("expected incr=%d, got %d", want, n)
		}
	}
	if got, ok, err := store.Get(ctx, key("counter")); err != nil || !ok || string(got) != "3" {
		t.Fatalf("expected counter readable as string; ok=%v body=%q err=%v", ok, string(got), err)
	}
	if err := store.Set(ctx, key("counter-seed"), []byte("41")); err != nil {
		t.Fatalf("set counter seed failed: %v", err)
	}
	if n, err := store.Incr(ctx, key("counter-seed")); err != nil || n != 42 {
		t.Fatalf("expected incr on seeded counter=42, got %d err=%v", n, err)
	}
	if err := store.Set(ctx, key("not-int"), []byte("abc")); err != nil {
		t.Fatalf("set not-int failed: %v", err)
	}
	if _, err := store.Incr(ctx, key("not-int")); !errors.Is(err, kvcore.ErrNotInteger) {
		t.Fatalf("expected ErrNotInteger, got %v", err)
	}

	// Lists.
	for i, v := range []string{"a", "b", "c", "d"} {
		n, err := store.RPush(ctx, key("list"), []byte(v))
		if err != nil {
			t.Fatalf("rpush %q failed: %v", v, err)
		}
		if n != int64(i+1) {
			t.Fatalf("expected rpush length=%d, got %d", i+1, n)
		}
	}
	ranges := []struct {
		start, stop int64
		want        string
	}{
		{0, -1, "a,b,c,d"},
		{1, 2, "b,c"},
		{-2, -1, "c,d"},
		{0, 100, "a,b,c,d"},
		{-100, 0, "a"},
		{3, 1, ""},
		{10, 20, ""},
	}
	for _, r := range ranges {
		got, err := store.LRange(ctx, key("list"), r.start, r.stop)
		if err != nil {
			t.Fatalf("lrange %d..%d failed: %v", r.start, r.stop, err)
		}
		if joined := join(got); joined != r.want {
			t.Fatalf("lrange %d..%d: expected %q, got %q", r.start, r.stop, r.want, joined)
		}
	}
	if got, err := store.LRange(ctx, key("list-missing"), 0, -1); err != nil || len(got) != 0 {
		t.Fatalf("expected empty range for absent list; got %d err=%v", len(got), err)
	}

	// Kind mismatches.
	if _, _, err := store.Get(ctx, key("list")); !errors.Is(err, kvcore.ErrWrongType) {
		t.Fatalf("expected ErrWrongType for get on list, got %v", err)
	}
	if _, err := store.Incr(ctx, key("list")); !errors.Is(err, kvcore.ErrWrongType) {
		t.Fatalf("expected ErrWrongType for incr on list, got %v", err)
	}
	if _, err := store.RPush(ctx, key("alpha"), []byte("x")); !errors.Is(err, kvcore.ErrWrongType) {
		t.Fatalf("expected ErrWrongType for rpush on string, got %v", err)
	}
	if _, err := store.LRange(ctx, key("alpha"), 0, -1); !errors.Is(err, kvcore.ErrWrongType) {
		t.Fatalf("expected ErrWrongType for lrange on string, got %v", err)
	}

	// Set replaces a list.
	if err := store.Set(ctx, key("list"), []byte("scalar")); err != nil {
		t.Fatalf("set over list failed: %v", err)
	}
	if got, ok, err := store.Get(ctx, key("list")); err != nil || !ok || string(got) != "scalar" {
		t.Fatalf("expected set to replace list; ok=%v body=%q err=%v", ok, string(got), err)
	}

	// Flush.
	if !opts.SkipFlush {
		if _, err := store.RPush(ctx, key("flush-list"), []byte("x")); err != nil {
			t.Fatalf("rpush flush failed: %v", err)
		}
		if err := store.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := store.Get(ctx, key("alpha")); err != nil || ok {
			t.Fatalf("expected flush to clear key; ok=%v err=%v", ok, err)
		}
		if got, err := store.LRange(ctx, key("flush-list"), 0, -1); err != nil || len(got) != 0 {
			t.Fatalf("expected flush to clear list; got %d err=%v", len(got), err)
		}
		if n, err := store.Incr(ctx, key("counter")); err != nil || n != 1 {
			t.Fatalf("expected counter restart after flush, got %d err=%v", n, err)
		}
	}
}

func waitForMiss(ctx context.Context, store Store, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		_, ok, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("key %q still present after %s", key, wait)
	}
	return nil
}

func join(items [][]byte) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = string(item)
	}
	return strings.Join(parts, ",")
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
