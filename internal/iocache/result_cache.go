package iocache

import (
	"container/list"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/metrics"
	"github.com/huangsam/subpulse/schema"
)

// CacheKey identifies one cached computation.
type CacheKey struct {
	Kind      string // series, forecast, retention, churn ...
	Metric    schema.MetricName
	Dimension string
	Range     schema.DateRange
	Horizon   int
	ModelHash string
}

// String renders the key for logs and error messages.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s:h%d:%s", k.Kind, k.Metric, k.Dimension, k.Range, k.Horizon, k.ModelHash)
}

// affectedBy reports whether new data in r can change this entry.
// A zero key range covers all time.
func (k CacheKey) affectedBy(r schema.DateRange) bool {
	return k.Range.IsZero() || r.IsZero() || k.Range.Intersects(r)
}

// invalidationLog bounds how many recent invalidations are kept to judge stale callers.
// A caller older than the whole log is treated as stale.
const invalidationLog = 64

// ResultCache memoizes derived results and deduplicates concurrent computations.
//
// The index lock only guards the key map, the LRU list and the generation; all state
// of an entry is guarded by the entry's own mutex, so computations never hold a
// cache-wide lock.
//
// Every Invalidate starts a new generation. Callers stamp a request with the
// generation current when they captured their inputs; a stamp that predates an
// invalidation covering the key may read stale inputs, so such a caller computes
// without storing or sharing its result.
type ResultCache struct {
	index         sync.Mutex
	slots         map[CacheKey]*slot
	lru           *list.List // front is most recently used
	maxEntries    int
	gen           uint64
	invalidations []invalidation // oldest first

	hits   atomic.Int64
	misses atomic.Int64
}

type invalidation struct {
	gen uint64
	r   schema.DateRange
}

type slot struct {
	mu    sync.Mutex
	key   CacheKey
	elem  *list.Element
	done  bool
	value any
	call  *call
	refs  atomic.Int32 // callers between lookup and registration; dropped under mu
}

// call is one in-flight computation shared by every waiter of a slot.
type call struct {
	done    chan struct{}
	value   any
	err     error
	waiters int
	cancel  context.CancelFunc
}

// NewResultCache returns an empty cache. maxEntries <= 0 means unbounded.
func NewResultCache(maxEntries int) *ResultCache {
	return &ResultCache{
		slots:      make(map[CacheKey]*slot),
		lru:        list.New(),
		maxEntries: maxEntries,
	}
}

// GetOrCompute returns the cached value for key, computing it with fn on a miss.
// The caller's inputs are taken to be current.
func GetOrCompute[T any](ctx context.Context, c *ResultCache, key CacheKey, fn func(context.Context) (T, error)) (T, error) {
	return GetOrComputeAt(ctx, c, key, c.Generation(), fn)
}

// GetOrComputeAt is GetOrCompute for a caller whose inputs were captured at generation gen.
//
// Concurrent callers for the same key share one computation. A caller whose ctx ends
// stops waiting and gets ctx.Err(); the computation itself is cancelled only when no
// waiter is left. Failures are returned to every waiter wrapped as ErrCacheComputation
// and are not stored. A caller whose generation predates an invalidation of key may
// still use a cached or in-flight value, but its own result is never stored.
func GetOrComputeAt[T any](ctx context.Context, c *ResultCache, key CacheKey, gen uint64, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	s := c.slotFor(key, gen)
	if s == nil {
		c.misses.Add(1)
		metrics.ResultCacheRequestsTotal.WithLabelValues("stale").Inc()
		v, err := fn(ctx)
		if err != nil {
			return zero, contract.NewCacheComputationError(key.String(), err)
		}
		return v, nil
	}

	s.mu.Lock()
	if s.done {
		v := s.value.(T)
		s.refs.Add(-1)
		s.mu.Unlock()
		c.hits.Add(1)
		metrics.ResultCacheRequestsTotal.WithLabelValues("hit").Inc()
		return v, nil
	}
	cl := s.call
	if cl == nil {
		c.misses.Add(1)
		metrics.ResultCacheRequestsTotal.WithLabelValues("miss").Inc()
		cl = c.start(s, ctx, func(ctx context.Context) (any, error) { return fn(ctx) })
	} else {
		metrics.ResultCacheRequestsTotal.WithLabelValues("shared").Inc()
	}
	cl.waiters++
	s.refs.Add(-1)
	s.mu.Unlock()

	select {
	case <-cl.done:
		if cl.err != nil {
			return zero, cl.err
		}
		return cl.value.(T), nil
	case <-ctx.Done():
		s.mu.Lock()
		cl.waiters--
		abandoned := cl.waiters == 0 && s.call == cl
		if abandoned {
			cl.cancel()
			// Later callers start over instead of joining a cancelled computation.
			s.call = nil
		}
		s.mu.Unlock()
		if abandoned {
			c.release(s)
		}
		return zero, ctx.Err()
	}
}

// Generation returns the current invalidation generation.
func (c *ResultCache) Generation() uint64 {
	c.index.Lock()
	defer c.index.Unlock()
	return c.gen
}

// start launches the computation for s. Must be called with s.mu held.
func (c *ResultCache) start(s *slot, parent context.Context, fn func(context.Context) (any, error)) *call {
	// The computation outlives the first caller; it keeps its values but not its deadline.
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	cl := &call{done: make(chan struct{}), cancel: cancel}
	s.call = cl

	go func() {
		defer cancel()
		v, err := fn(ctx)

		s.mu.Lock()
		if err != nil {
			cl.err = contract.NewCacheComputationError(s.key.String(), err)
		} else {
			cl.value = v
		}
		current := s.call == cl
		if current {
			s.call = nil
			if err == nil {
				s.done = true
				s.value = v
			}
		}
		close(cl.done)
		s.mu.Unlock()

		if err != nil && current {
			c.release(s)
		}
	}()
	return cl
}

// slotFor returns the slot of key, creating it if needed, marks it recently used and
// holds a reference on it for the caller. A caller stamped with a stale generation
// gets an existing slot or nil, never a new one.
func (c *ResultCache) slotFor(key CacheKey, gen uint64) *slot {
	c.index.Lock()
	defer c.index.Unlock()

	if s, ok := c.slots[key]; ok {
		c.lru.MoveToFront(s.elem)
		s.refs.Add(1)
		return s
	}
	if c.staleLocked(key, gen) {
		return nil
	}
	s := &slot{key: key}
	s.refs.Add(1)
	s.elem = c.lru.PushFront(s)
	c.slots[key] = s
	c.evictLocked(s)
	return s
}

// staleLocked reports whether an invalidation after gen covered key.
func (c *ResultCache) staleLocked(key CacheKey, gen uint64) bool {
	if gen >= c.gen {
		return false
	}
	if len(c.invalidations) == 0 || c.invalidations[0].gen > gen+1 {
		return true
	}
	for _, inv := range c.invalidations {
		if inv.gen > gen && key.affectedBy(inv.r) {
			return true
		}
	}
	return false
}

// release drops a slot that holds neither a value nor a computation.
func (c *ResultCache) release(s *slot) {
	c.index.Lock()
	defer c.index.Unlock()

	s.mu.Lock()
	idle := !s.done && s.call == nil && s.refs.Load() == 0
	s.mu.Unlock()
	if idle && c.slots[s.key] == s {
		c.removeLocked(s)
	}
}

// evictLocked drops least recently used entries above maxEntries, sparing keep.
// In-flight entries and entries a caller is about to start are never evicted.
func (c *ResultCache) evictLocked(keep *slot) {
	if c.maxEntries <= 0 {
		return
	}
	for e := c.lru.Back(); e != nil && c.lru.Len() > c.maxEntries; {
		prev := e.Prev()
		s := e.Value.(*slot)
		if s == keep {
			e = prev
			continue
		}
		s.mu.Lock()
		busy := s.call != nil || s.refs.Load() > 0
		s.mu.Unlock()
		if !busy {
			c.removeLocked(s)
		}
		e = prev
	}
}

func (c *ResultCache) removeLocked(s *slot) {
	c.lru.Remove(s.elem)
	delete(c.slots, s.key)
}

// Invalidate drops every entry whose range intersects r, starts a new generation and
// returns how many entries were dropped. Computations already running finish for their
// waiters but are not stored.
func (c *ResultCache) Invalidate(r schema.DateRange) int {
	c.index.Lock()
	defer c.index.Unlock()

	c.gen++
	c.invalidations = append(c.invalidations, invalidation{gen: c.gen, r: r})
	if n := len(c.invalidations); n > invalidationLog {
		c.invalidations = slices.Clone(c.invalidations[n-invalidationLog:])
	}

	dropped := 0
	for key, s := range c.slots {
		if !key.affectedBy(r) {
			continue
		}
		s.mu.Lock()
		s.call = nil
		s.mu.Unlock()
		c.removeLocked(s)
		dropped++
	}
	metrics.ResultCacheInvalidationsTotal.Add(float64(dropped))
	return dropped
}

// Contains reports whether a completed value is cached for key.
func (c *ResultCache) Contains(key CacheKey) bool {
	c.index.Lock()
	s, ok := c.slots[key]
	c.index.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Len returns the number of entries, completed or in flight.
func (c *ResultCache) Len() int {
	c.index.Lock()
	defer c.index.Unlock()
	return len(c.slots)
}

// Status returns a snapshot of cache counters.
func (c *ResultCache) Status() schema.ResultCacheStatus {
	c.index.Lock()
	slots := make([]*slot, 0, len(c.slots))
	for _, s := range c.slots {
		slots = append(slots, s)
	}
	c.index.Unlock()

	status := schema.ResultCacheStatus{
		MaxEntries: c.maxEntries,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
	}
	for _, s := range slots {
		s.mu.Lock()
		if s.done {
			status.Entries++
		} else if s.call != nil {
			status.InFlight++
		}
		s.mu.Unlock()
	}
	return status
}
