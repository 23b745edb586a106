package replaycache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goforj/replaycache/kvcore"
	"github.com/goforj/replaycache/kvtest"
)

func TestMemoryStoreContract(t *testing.T) {
	kvtest.RunStoreContract(t, newMemoryStore(time.Second), kvtest.Options{})
}

func TestMemoryStoreIncrKeepsExpiry(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(time.Second)

	if err := store.SetEx(ctx, "n", 40*time.Millisecond, []byte("5")); err != nil {
		t.Fatalf("setex failed: %v", err)
	}
	if n, err := store.Incr(ctx, "n"); err != nil || n != 6 {
		t.Fatalf("expected incr=6, got %d err=%v", n, err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok, err := store.Get(ctx, "n"); err != nil || ok {
		t.Fatalf("expected incr to keep the pending expiry; ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreConcurrentIncrAndPush(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(time.Second)

	const workers = 16
	const perWorker = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := store.Incr(ctx, "counter"); err != nil {
					t.Errorf("incr failed: %v", err)
					return
				}
				if _, err := store.RPush(ctx, "list", []byte("x")); err != nil {
					t.Errorf("rpush failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	body, ok, err := store.Get(ctx, "counter")
	if err != nil || !ok || string(body) != "800" {
		t.Fatalf("expected counter=800, got ok=%v body=%q err=%v", ok, string(body), err)
	}
	items, err := store.LRange(ctx, "list", 0, -1)
	if err != nil || len(items) != workers*perWorker {
		t.Fatalf("expected %d list items, got %d err=%v", workers*perWorker, len(items), err)
	}
}

func TestMemoryStoreLRangeCopiesItems(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(time.Second)
	_, _ = store.RPush(ctx, "l", []byte("abc"))

	items, _ := store.LRange(ctx, "l", 0, -1)
	items[0][0] = 'X'
	again, _ := store.LRange(ctx, "l", 0, -1)
	if string(again[0]) != "abc" {
		t.Fatalf("expected list item unchanged, got %q", string(again[0]))
	}
}

func TestMemoryStoreDefaultsCleanupInterval(t *testing.T) {
	store := newMemoryStore(0)
	if store.Driver() != kvcore.DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}
	if err := store.SetEx(context.Background(), "k", -time.Second, []byte("v")); !errors.Is(err, kvcore.ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}
