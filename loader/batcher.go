package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"tidb-loadergen/internal/planner"
)

const (
	// DefaultWait is how long a batch stays open for more keys.
	DefaultWait = 2 * time.Millisecond
	// DefaultMaxBatch caps the keys in one batch; a full batch dispatches early.
	DefaultMaxBatch = 1000
)

var errMissingResult = errors.New("loader: fetch returned fewer results than keys")

// FetchFunc loads a batch. The returned results must be aligned with keys.
type FetchFunc[V any] func(ctx context.Context, keys []Key) []Result[V]

// Thunk waits for the result of a queued key.
type Thunk[V any] func() (V, error)

// Batcher coalesces keys requested within one window into a single fetch.
// Duplicate keys in a window share a slot. Nothing is cached across windows.
type Batcher[V any] struct {
	fetch    FetchFunc[V]
	wait     time.Duration
	maxBatch int

	mu      sync.Mutex
	current *batch[V]
}

type batch[V any] struct {
	keys  []Key
	slots map[string]int
	// waiters holds the contexts of every caller per slot.
	waiters [][]context.Context
	results []Result[V]
	timer   *time.Timer
	done    chan struct{}
}

// NewBatcher creates a batcher. wait <= 0 dispatches as soon as the timer
// goroutine runs; maxBatch <= 0 means unbounded.
func NewBatcher[V any](fetch FetchFunc[V], wait time.Duration, maxBatch int) *Batcher[V] {
	if wait < 0 {
		wait = 0
	}
	return &Batcher[V]{fetch: fetch, wait: wait, maxBatch: maxBatch}
}

// Load queues key in the open window and returns a thunk for its result.
func (b *Batcher[V]) Load(ctx context.Context, key Key) Thunk[V] {
	b.mu.Lock()
	cur := b.current
	if cur == nil {
		cur = &batch[V]{
			slots: make(map[string]int),
			done:  make(chan struct{}),
		}
		b.current = cur
		cur.timer = time.AfterFunc(b.wait, func() { b.dispatchWindow(cur) })
	}

	sig := planner.TupleKey(key)
	slot, ok := cur.slots[sig]
	if !ok {
		slot = len(cur.keys)
		cur.slots[sig] = slot
		cur.keys = append(cur.keys, key)
		cur.waiters = append(cur.waiters, nil)
	}
	cur.waiters[slot] = append(cur.waiters[slot], ctx)

	if b.maxBatch > 0 && len(cur.keys) >= b.maxBatch {
		b.current = nil
		if cur.timer.Stop() {
			go b.dispatch(cur)
		}
	}
	b.mu.Unlock()

	return func() (V, error) {
		select {
		case <-cur.done:
			r := cur.results[slot]
			return r.Value, r.Err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
}

// dispatchWindow closes the window when its timer fires.
func (b *Batcher[V]) dispatchWindow(cur *batch[V]) {
	b.mu.Lock()
	if b.current == cur {
		b.current = nil
	}
	b.mu.Unlock()
	b.dispatch(cur)
}

// dispatch fetches the live slots of a closed batch. Slots whose callers all
// cancelled are answered with the cancellation error and left out of the query.
func (b *Batcher[V]) dispatch(cur *batch[V]) {
	defer close(cur.done)
	cur.results = make([]Result[V], len(cur.keys))

	var fetchCtx context.Context
	live := make([]int, 0, len(cur.keys))
	for slot, waiters := range cur.waiters {
		ctx := firstLive(waiters)
		if ctx == nil {
			cur.results[slot] = Result[V]{Err: waiters[0].Err()}
			continue
		}
		if fetchCtx == nil {
			fetchCtx = context.WithoutCancel(ctx)
		}
		live = append(live, slot)
	}
	if len(live) == 0 {
		return
	}

	keys := make([]Key, len(live))
	for i, slot := range live {
		keys[i] = cur.keys[slot]
	}
	results := b.fetch(fetchCtx, keys)
	for i, slot := range live {
		if i < len(results) {
			cur.results[slot] = results[i]
		} else {
			cur.results[slot] = Result[V]{Err: errMissingResult}
		}
	}
}

func firstLive(ctxs []context.Context) context.Context {
	for _, ctx := range ctxs {
		if ctx.Err() == nil {
			return ctx
		}
	}
	return nil
}
