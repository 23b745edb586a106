package replaycache

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestReplayPrintsHistory(t *testing.T) {
	c, _ := newTestCache(t)
	_, _ = c.Store(Bytes("foo"))
	_, _ = c.Store(Integer(123))
	_, _ = c.Store(Text("bar"))

	var buf bytes.Buffer
	if err := c.Replay(&buf, StoreOperation); err != nil {
		t.Fatalf("replay: %v", err)
	}
	want := "Cache.store was called 3 times:\n" +
		"Cache.store([]byte(\"foo\")) -> k1\n" +
		"Cache.store(123) -> k2\n" +
		"Cache.store(\"bar\") -> k3\n"
	if buf.String() != want {
		t.Fatalf("unexpected replay output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestReplaySingularHeader(t *testing.T) {
	c, _ := newTestCache(t)
	_, _ = c.Store(Float(1.5))

	var buf bytes.Buffer
	_ = c.Replay(&buf, StoreOperation)
	want := "Cache.store was called 1 time:\nCache.store(1.5) -> k1\n"
	if buf.String() != want {
		t.Fatalf("unexpected replay output: %q", buf.String())
	}
}

func TestReplayIsDeterministicAndReadOnly(t *testing.T) {
	c, _ := newTestCache(t)
	_, _ = c.Store(Text("a"))
	_, _ = c.Store(Text("b"))

	var first, second bytes.Buffer
	if err := c.Replay(&first, StoreOperation); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if err := c.Replay(&second, StoreOperation); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("expected identical replays, got %q vs %q", first.String(), second.String())
	}
	if n, _ := c.Calls(StoreOperation); n != 2 {
		t.Fatalf("expected replay not to count calls, got %d", n)
	}
}

func TestReplayUnknownOperation(t *testing.T) {
	c, _ := newTestCache(t)
	var buf bytes.Buffer
	if err := c.Replay(&buf, "Nothing.here"); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if buf.String() != "Nothing.here was called 0 times:\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestReplayUsesHistoryLengthWhenCounterMissing(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	_, _ = store.RPush(ctx, InputsKey("Manual.op"), []byte("(1)"))
	_, _ = store.RPush(ctx, OutputsKey("Manual.op"), []byte("ok"))

	var buf bytes.Buffer
	_ = c.Replay(&buf, "Manual.op")
	if buf.String() != "Manual.op was called 1 time:\nManual.op(1) -> ok\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestHistoryMismatch(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	_, _ = store.RPush(ctx, InputsKey("Broken.op"), []byte("(1)"))

	if _, err := c.History("Broken.op"); !errors.Is(err, ErrHistoryMismatch) {
		t.Fatalf("expected ErrHistoryMismatch, got %v", err)
	}
	var buf bytes.Buffer
	if err := c.Replay(&buf, "Broken.op"); !errors.Is(err, ErrHistoryMismatch) {
		t.Fatalf("expected replay to surface mismatch, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output on mismatch, got %q", buf.String())
	}
}

func TestReplayRequiresWriter(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.Replay(nil, StoreOperation); err == nil {
		t.Fatalf("expected error for nil writer")
	}
}

func TestCallsRejectsCorruptCounter(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	_ = store.Set(ctx, StoreOperation, []byte("many"))
	var decodeErr *DecodeError
	if _, err := c.Calls(StoreOperation); !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
