// Package cache is an in-process TTL cache for serialized aggregates. Expired
// entries are invisible to readers immediately and physically removed by a
// background sweep or by overwrite.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/alumnet-backend/pkg/logger"
	"github.com/angelmondragon/alumnet-backend/pkg/metrics"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultSweepBatch    = 256
)

// Options configure a TTLCache.
type Options struct {
	// Name labels the cache in metrics.
	Name          string
	Now           func() time.Time
	SweepInterval time.Duration
	SweepBatch    int
	Metrics       *metrics.CacheMetrics
	Logger        *logger.Logger
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// live reports whether the entry may still be served; an entry is valid up
// to and including its expiry instant.
func (e entry) live(now time.Time) bool {
	return !now.After(e.expiresAt)
}

type flight struct {
	loads int
	epoch uint64
}

// TTLCache maps string keys to byte payloads with per-entry lifetimes.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	// flights tracks keys with a running load; invalidation bumps their
	// epoch so a load that started earlier does not store its result.
	flights map[string]*flight

	name     string
	now      func() time.Time
	interval time.Duration
	batch    int
	metrics  *metrics.CacheMetrics
	logg     *logger.Logger
	group    singleflight.Group

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a cache; call Start to run the background sweep.
func New(opts Options) *TTLCache {
	c := &TTLCache{
		entries:  make(map[string]entry),
		flights:  make(map[string]*flight),
		name:     opts.Name,
		now:      opts.Now,
		interval: opts.SweepInterval,
		batch:    opts.SweepBatch,
		metrics:  opts.Metrics,
		logg:     opts.Logger,
	}
	if c.name == "" {
		c.name = "default"
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.interval <= 0 {
		c.interval = DefaultSweepInterval
	}
	if c.batch <= 0 {
		c.batch = DefaultSweepBatch
	}
	if c.logg == nil {
		c.logg = logger.Nop()
	}
	return c
}

// Set stores a copy of value under key for ttl. A non-positive ttl stores an
// entry that is already expired.
func (c *TTLCache) Set(key string, value []byte, ttl time.Duration) {
	stored := append([]byte(nil), value...)
	c.mu.Lock()
	c.entries[key] = entry{value: stored, expiresAt: c.now().Add(ttl)}
	size := len(c.entries)
	c.mu.Unlock()
	c.metrics.SetEntries(c.name, size)
}

// Get returns a copy of the live value for key. Reading an expired entry
// removes it.
func (c *TTLCache) Get(key string) ([]byte, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		c.metrics.IncMiss(c.name)
		return nil, false
	}
	if !e.live(now) {
		c.mu.Lock()
		if current, still := c.entries[key]; still && !current.live(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.metrics.IncMiss(c.name)
		return nil, false
	}
	c.metrics.IncHit(c.name)
	return append([]byte(nil), e.value...), true
}

// Delete removes key and discards the result of any load for it that is
// still running.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	stale := c.staleFlightsLocked(func(k string) bool { return k == key })
	c.mu.Unlock()
	c.forget(stale)
}

// DeletePrefix removes every key starting with prefix and returns the count
// of stored entries removed. Running loads under the prefix are discarded too.
func (c *TTLCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	stale := c.staleFlightsLocked(func(k string) bool { return strings.HasPrefix(k, prefix) })
	c.mu.Unlock()
	c.forget(stale)
	return removed
}

func (c *TTLCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	stale := c.staleFlightsLocked(func(string) bool { return true })
	c.mu.Unlock()
	c.forget(stale)
	c.metrics.SetEntries(c.name, 0)
}

// staleFlightsLocked bumps the epoch of every running load whose key matches
// and returns those keys. Callers hold c.mu.
func (c *TTLCache) staleFlightsLocked(match func(string) bool) []string {
	var keys []string
	for key, f := range c.flights {
		if match(key) {
			f.epoch++
			keys = append(keys, key)
		}
	}
	return keys
}

// forget detaches invalidated loads so later callers start a fresh one.
func (c *TTLCache) forget(keys []string) {
	for _, key := range keys {
		c.group.Forget(key)
	}
}

func (c *TTLCache) beginLoad(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		f = &flight{}
		c.flights[key] = f
	}
	f.loads++
	return f.epoch
}

// finishLoad stores value unless the key was invalidated after the load
// began, and reports whether it did.
func (c *TTLCache) finishLoad(key string, epoch uint64, value []byte, ttl time.Duration) bool {
	c.mu.Lock()
	f := c.flights[key]
	current := f.epoch == epoch
	if f.loads--; f.loads == 0 {
		delete(c.flights, key)
	}
	if current && value != nil {
		c.entries[key] = entry{value: append([]byte(nil), value...), expiresAt: c.now().Add(ttl)}
	}
	size := len(c.entries)
	c.mu.Unlock()
	if current && value != nil {
		c.metrics.SetEntries(c.name, size)
	}
	return current
}

// Len counts stored entries, expired ones included until swept.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries in batches, releasing the write lock between
// batches so readers are never blocked for a whole pass.
func (c *TTLCache) Sweep() int {
	now := c.now()
	c.mu.RLock()
	expired := make([]string, 0)
	for key, e := range c.entries {
		if !e.live(now) {
			expired = append(expired, key)
		}
	}
	c.mu.RUnlock()

	removed := 0
	for start := 0; start < len(expired); start += c.batch {
		end := start + c.batch
		if end > len(expired) {
			end = len(expired)
		}
		c.mu.Lock()
		for _, key := range expired[start:end] {
			// the key may have been overwritten since it was collected
			if e, ok := c.entries[key]; ok && !e.live(now) {
				delete(c.entries, key)
				removed++
			}
		}
		c.mu.Unlock()
	}
	c.metrics.AddEvictions(c.name, removed)
	c.metrics.SetEntries(c.name, c.Len())
	return removed
}

// GetOrLoad returns the live value for key or runs load once for all
// concurrent callers and caches a successful result for ttl. Load errors are
// returned to every waiter and never cached. The shared load is detached from
// any single caller's cancellation; each caller still stops waiting when its
// own ctx ends. A Delete, DeletePrefix or Clear that lands while the load runs
// keeps its result out of the cache and sends later callers to a new load.
func (c *TTLCache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		epoch := c.beginLoad(key)
		value, err := load(context.WithoutCancel(ctx))
		if err != nil {
			c.finishLoad(key, epoch, nil, ttl)
			return nil, err
		}
		if !c.finishLoad(key, epoch, value, ttl) {
			c.logg.Debug(c.logg.WithField(ctx, "cache_key", key), "cache.load_discarded")
		}
		return value, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]byte(nil), res.Val.([]byte)...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start launches the periodic sweep. It is a no-op when already running.
func (c *TTLCache) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
}

// Stop halts the sweep and waits for it to exit. Safe to call repeatedly.
func (c *TTLCache) Stop() {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *TTLCache) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
					"cache":   c.name,
					"evicted": removed,
				}), "cache sweep completed")
			}
		}
	}
}
