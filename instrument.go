package replaycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Invoker runs one call of an operation.
type Invoker[In, Out any] interface {
	Invoke(ctx context.Context, in In) (Out, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// Invoke implements Invoker.
func (f InvokerFunc[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// Middleware wraps the next stage of a named operation.
type Middleware[In, Out any] func(name string, next Invoker[In, Out]) Invoker[In, Out]

// Instrument wraps base with mws under name. The first middleware is the
// outermost stage, so it observes the call first and the result last.
//
// Example: count and record a custom operation
//
//	ctx := context.Background()
//	store := replaycache.NewMemoryStore(ctx)
//	echo := replaycache.InvokerFunc[string, string](func(_ context.Context, s string) (string, error) {
//		return s, nil
//	})
//	op := replaycache.Instrument("Echo.say", echo,
//		replaycache.CallHistory[string, string](store, strconv.Quote, func(s string) string { return s }),
//		replaycache.CountCalls[string, string](store),
//	)
//	out, _ := op.Invoke(ctx, "hi")
//	fmt.Println(out) // hi
func Instrument[In, Out any](name string, base Invoker[In, Out], mws ...Middleware[In, Out]) Invoker[In, Out] {
	if name == "" {
		panic("replaycache: instrumented operation requires a name")
	}
	next := base
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](name, next)
	}
	return next
}

// InputsKey is the list key holding recorded inputs for name.
func InputsKey(name string) string { return name + ":inputs" }

// OutputsKey is the list key holding recorded outputs for name.
func OutputsKey(name string) string { return name + ":outputs" }

// CountCalls increments the counter stored under the operation name before
// each call. A failed increment aborts the call.
func CountCalls[In, Out any](store Store) Middleware[In, Out] {
	return func(name string, next Invoker[In, Out]) Invoker[In, Out] {
		return &countingInvoker[In, Out]{store: store, name: name, next: next}
	}
}

type countingInvoker[In, Out any] struct {
	store Store
	name  string
	next  Invoker[In, Out]
}

func (c *countingInvoker[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	if _, err := c.store.Incr(ctx, c.name); err != nil {
		var zero Out
		return zero, fmt.Errorf("count calls %s: %w", c.name, err)
	}
	return c.next.Invoke(ctx, in)
}

// CallHistory appends formatIn(in) to the inputs list before each call and
// formatOut(out) to the outputs list after it. A failed call records
// "error: <message>" as its output so both lists keep the same length.
//
// Calls sharing an operation name through the same middleware are serialized
// so that entry i of the inputs list always pairs with entry i of the outputs
// list. Other middlewares and other processes writing the same lists are not
// coordinated.
func CallHistory[In, Out any](store Store, formatIn func(In) string, formatOut func(Out) string) Middleware[In, Out] {
	locks := newKeyedMutex()
	return func(name string, next Invoker[In, Out]) Invoker[In, Out] {
		return &historyInvoker[In, Out]{
			store:     store,
			name:      name,
			next:      next,
			locks:     locks,
			formatIn:  formatIn,
			formatOut: formatOut,
		}
	}
}

type historyInvoker[In, Out any] struct {
	store     Store
	name      string
	next      Invoker[In, Out]
	locks     *keyedMutex
	formatIn  func(In) string
	formatOut func(Out) string
}

func (h *historyInvoker[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	unlock := h.locks.lock(h.name)
	defer unlock()

	var zero Out
	if _, err := h.store.RPush(ctx, InputsKey(h.name), []byte(h.formatIn(in))); err != nil {
		return zero, fmt.Errorf("record input %s: %w", h.name, err)
	}
	out, callErr := h.next.Invoke(ctx, in)
	var recorded string
	if callErr != nil {
		recorded = "error: " + callErr.Error()
	} else {
		recorded = h.formatOut(out)
	}
	if _, err := h.store.RPush(ctx, OutputsKey(h.name), []byte(recorded)); err != nil {
		return zero, errors.Join(callErr, fmt.Errorf("record output %s: %w", h.name, err))
	}
	if callErr != nil {
		return zero, callErr
	}
	return out, nil
}

// keyedMutex hands out one mutex per name. An entry lives only while some
// caller holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(name string) func() {
	k.mu.Lock()
	m, ok := k.locks[name]
	if !ok {
		m = &refMutex{}
		k.locks[name] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, name)
		}
		k.mu.Unlock()
	}
}
