package replaycache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/goforj/replaycache/kvtest"
)

func TestNATSStoreContractWithStubKV(t *testing.T) {
	store := newNATSStore(newStubNATSKeyValue("bucket"), "pfx")
	kvtest.RunStoreContract(t, store, kvtest.Options{})
}

func TestNATSStoreNilKeyValueErrors(t *testing.T) {
	store := newNATSStore(nil, "")
	ctx := context.Background()

	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, errNATSUnavailable) {
		t.Fatalf("expected get error when nats key-value is nil, got %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v")); !errors.Is(err, errNATSUnavailable) {
		t.Fatalf("expected set error when nats key-value is nil, got %v", err)
	}
	if _, err := store.Incr(ctx, "k"); !errors.Is(err, errNATSUnavailable) {
		t.Fatalf("expected incr error when nats key-value is nil, got %v", err)
	}
	if _, err := store.RPush(ctx, "k", []byte("v")); !errors.Is(err, errNATSUnavailable) {
		t.Fatalf("expected rpush error when nats key-value is nil, got %v", err)
	}
	if _, err := store.LRange(ctx, "k", 0, -1); !errors.Is(err, errNATSUnavailable) {
		t.Fatalf("expected lrange error when nats key-value is nil, got %v", err)
	}
	if err := store.Flush(ctx); !errors.Is(err, errNATSUnavailable) {
		t.Fatalf("expected flush error when nats key-value is nil, got %v", err)
	}
}

func TestNATSStoreEncodesKeysIntoNATSAlphabet(t *testing.T) {
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, "")
	ctx := context.Background()

	if _, err := store.RPush(ctx, "Cache.store:inputs", []byte(`("foo")`)); err != nil {
		t.Fatalf("rpush failed: %v", err)
	}
	if err := store.Set(ctx, "https://example.com/a b", []byte("page")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	for key := range kv.entries {
		if strings.ContainsAny(key, ":/ ") {
			t.Fatalf("expected nats-safe key, got %q", key)
		}
		if !strings.HasPrefix(key, "p._.k.") {
			t.Fatalf("expected empty-prefix scope, got %q", key)
		}
	}
}

func TestNATSStoreFlushRespectsPrefix(t *testing.T) {
	kv := newStubNATSKeyValue("bucket")
	ctx := context.Background()
	mine := newNATSStore(kv, "mine")
	theirs := newNATSStore(kv, "theirs")

	_ = mine.Set(ctx, "a", []byte("1"))
	_, _ = mine.RPush(ctx, "l", []byte("1"))
	_ = theirs.Set(ctx, "a", []byte("2"))

	if err := mine.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, ok, _ := mine.Get(ctx, "a"); ok {
		t.Fatalf("expected own key flushed")
	}
	if body, ok, err := theirs.Get(ctx, "a"); err != nil || !ok || string(body) != "2" {
		t.Fatalf("expected other prefix untouched; ok=%v body=%q err=%v", ok, string(body), err)
	}
}

func TestNATSStoreRetriesRevisionConflicts(t *testing.T) {
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, "")
	ctx := context.Background()

	if _, err := store.Incr(ctx, "n"); err != nil {
		t.Fatalf("first incr failed: %v", err)
	}
	kv.conflicts = 3
	n, err := store.Incr(ctx, "n")
	if err != nil || n != 2 {
		t.Fatalf("expected incr=2 after conflicts, got %d err=%v", n, err)
	}

	kv.conflicts = natsMaxCASAttempts
	if _, err := store.Incr(ctx, "n"); err == nil {
		t.Fatalf("expected retry limit error")
	}
}

func TestNATSStoreConcurrentIncr(t *testing.T) {
	store := newNATSStore(newStubNATSKeyValue("bucket"), "")
	ctx := context.Background()

	var wg sync.WaitGroup
	var failures sync.Map
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				if _, err := store.Incr(ctx, "n"); err != nil {
					failures.Store(i, err)
				}
			}
		}(i)
	}
	wg.Wait()
	failed := 0
	failures.Range(func(any, any) bool { failed++; return true })

	body, ok, err := store.Get(ctx, "n")
	if err != nil || !ok {
		t.Fatalf("expected counter present; ok=%v err=%v", ok, err)
	}
	if failed == 0 && string(body) != "12" {
		t.Fatalf("expected counter=12, got %q", string(body))
	}
}

func TestNATSStoreExpiredEntryIsReplacedInPlace(t *testing.T) {
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, "")
	ctx := context.Background()

	if err := store.SetEx(ctx, "k", 20*time.Millisecond, []byte("5")); err != nil {
		t.Fatalf("setex failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if n, err := store.Incr(ctx, "k"); err != nil || n != 1 {
		t.Fatalf("expected expired counter to restart at 1, got %d err=%v", n, err)
	}
	if n, err := store.RPush(ctx, "k2", []byte("x")); err != nil || n != 1 {
		t.Fatalf("expected rpush on absent key, got %d err=%v", n, err)
	}
}

func TestNATSStoreRejectsForeignPayload(t *testing.T) {
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, "")
	ctx := context.Background()

	if _, err := kv.Put(store.(*natsStore).cacheKey("raw"), []byte("not json")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, _, err := store.Get(ctx, "raw"); err == nil {
		t.Fatalf("expected decode error for foreign payload")
	}
	if _, err := kv.Put(store.(*natsStore).cacheKey("marker"), []byte(`{"m":"other","t":"s"}`)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, _, err := store.Get(ctx, "marker"); err == nil {
		t.Fatalf("expected marker mismatch error")
	}
}

func TestNATSStoreErrorPropagation(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	kv := newStubNATSKeyValue("bucket")
	kv.getErr = boom
	store := newNATSStore(kv, "")
	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("expected get error, got %v", err)
	}
	if _, err := store.Incr(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("expected incr error, got %v", err)
	}

	kv = newStubNATSKeyValue("bucket")
	kv.putErr = boom
	kv.createErr = boom
	store = newNATSStore(kv, "")
	if err := store.Set(ctx, "k", []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("expected set error, got %v", err)
	}
	if _, err := store.RPush(ctx, "k", []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("expected rpush error, got %v", err)
	}

	kv = newStubNATSKeyValue("bucket")
	kv.listErr = boom
	store = newNATSStore(kv, "")
	if err := store.Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected flush error, got %v", err)
	}

	kv = newStubNATSKeyValue("bucket")
	kv.listErr = nats.ErrNoKeysFound
	store = newNATSStore(kv, "")
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("expected empty bucket flush to succeed, got %v", err)
	}
}
