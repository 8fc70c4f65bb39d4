package zoho

import (
	"context"
	"errors"
	"sync"

	"github.com/calendarlogger/calendar-logger/internal/metrics"
)

// Cache memoizes successful loads per key with no TTL and no eviction.
// Concurrent callers for the same key share one load; different keys load
// independently. Failed loads are not cached.
type Cache[K comparable, V any] struct {
	resource string
	metrics  metrics.Recorder

	mu       sync.Mutex
	values   map[K]V
	inflight map[K]*cacheCall[V]
	gen      uint64
}

var errLoadPanicked = errors.New("zoho: cache load panicked")

type cacheCall[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// NewCache creates an empty cache. resource labels cache metrics.
func NewCache[K comparable, V any](resource string, rec metrics.Recorder) *Cache[K, V] {
	return &Cache[K, V]{
		resource: resource,
		metrics:  metrics.OrNop(rec),
		values:   make(map[K]V),
		inflight: make(map[K]*cacheCall[V]),
	}
}

// Get returns the cached value for key, or runs load and caches its result.
// The returned value is shared with later callers and must not be mutated.
// A waiter whose context is still live retries when the shared load ended
// because the loading caller's context was cancelled.
func (c *Cache[K, V]) Get(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	for {
		c.mu.Lock()
		if v, ok := c.values[key]; ok {
			c.mu.Unlock()
			c.metrics.RecordCacheLookup(c.resource, true)
			return v, nil
		}
		call, ok := c.inflight[key]
		if !ok {
			break
		}
		c.mu.Unlock()
		select {
		case <-call.done:
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
		if isContextErr(call.err) && ctx.Err() == nil {
			continue
		}
		return call.val, call.err
	}

	call := &cacheCall[V]{done: make(chan struct{})}
	c.inflight[key] = call
	gen := c.gen
	c.mu.Unlock()

	c.metrics.RecordCacheLookup(c.resource, false)
	c.run(ctx, key, call, gen, load)
	return call.val, call.err
}

// run executes load for the leading caller. Waiters are released even when
// load panics.
func (c *Cache[K, V]) run(ctx context.Context, key K, call *cacheCall[V], gen uint64, load func(context.Context) (V, error)) {
	call.err = errLoadPanicked
	defer func() {
		c.mu.Lock()
		if c.inflight[key] == call {
			delete(c.inflight, key)
		}
		// A Reset during the load discards its result.
		if call.err == nil && gen == c.gen {
			if existing, ok := c.values[key]; ok {
				call.val = existing
			} else {
				c.values[key] = call.val
			}
		}
		c.mu.Unlock()
		close(call.done)
	}()
	call.val, call.err = load(ctx)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Peek returns the cached value without loading.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Reset drops every entry.
func (c *Cache[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[K]V)
	c.inflight = make(map[K]*cacheCall[V])
	c.gen++
}

// Len returns the number of cached keys.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}
