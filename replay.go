package replaycache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// CallRecord pairs the recorded input of one call with its recorded output.
type CallRecord struct {
	Input  string
	Output string
}

// Calls returns how many times the operation name was invoked, or 0 when it
// was never called.
// @group Replay
func (c *Cache) Calls(name string) (int64, error) {
	return c.CallsCtx(context.Background(), name)
}

func (c *Cache) CallsCtx(ctx context.Context, name string) (int64, error) {
	body, ok, err := c.store.Get(ctx, name)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, &DecodeError{Key: name, Kind: KindInteger, Err: err}
	}
	return n, nil
}

// History returns the recorded calls of name in invocation order.
// @group Replay
func (c *Cache) History(name string) ([]CallRecord, error) {
	return c.HistoryCtx(context.Background(), name)
}

func (c *Cache) HistoryCtx(ctx context.Context, name string) ([]CallRecord, error) {
	inputs, err := c.store.LRange(ctx, InputsKey(name), 0, -1)
	if err != nil {
		return nil, err
	}
	outputs, err := c.store.LRange(ctx, OutputsKey(name), 0, -1)
	if err != nil {
		return nil, err
	}
	if len(inputs) != len(outputs) {
		return nil, fmt.Errorf("%w: %s has %d inputs and %d outputs", ErrHistoryMismatch, name, len(inputs), len(outputs))
	}
	records := make([]CallRecord, len(inputs))
	for i := range inputs {
		records[i] = CallRecord{Input: string(inputs[i]), Output: string(outputs[i])}
	}
	return records, nil
}

// Replay writes the call history of name to w, oldest call first.
// @group Replay
//
// Example: replay store calls
//
//	ctx := context.Background()
//	c, _ := replaycache.NewCache(ctx, replaycache.NewMemoryStore(ctx),
//		replaycache.WithKeyGenerator(func() string { return "k1" }))
//	_, _ = c.Store(replaycache.Text("foo"))
//	_ = c.Replay(os.Stdout, replaycache.StoreOperation)
//	// Cache.store was called 1 time:
//	// Cache.store("foo") -> k1
func (c *Cache) Replay(w io.Writer, name string) error {
	return c.ReplayCtx(context.Background(), w, name)
}

func (c *Cache) ReplayCtx(ctx context.Context, w io.Writer, name string) error {
	start := time.Now()
	err := c.replay(ctx, w, name)
	c.observe(ctx, "replay", name, err == nil, err, start)
	return err
}

func (c *Cache) replay(ctx context.Context, w io.Writer, name string) error {
	if w == nil {
		return errors.New("replaycache: replay requires a writer")
	}
	records, err := c.HistoryCtx(ctx, name)
	if err != nil {
		return err
	}
	calls, err := c.CallsCtx(ctx, name)
	if err != nil {
		return err
	}
	if calls == 0 {
		calls = int64(len(records))
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s was called %d %s:\n", name, calls, plural(calls, "time", "times"))
	for _, rec := range records {
		fmt.Fprintf(bw, "%s%s -> %s\n", name, rec.Input, rec.Output)
	}
	return bw.Flush()
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
