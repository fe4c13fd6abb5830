package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks TTL cache effectiveness per cache name.
type CacheMetrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
	entries   *prometheus.GaugeVec
}

// NewCacheMetrics registers the cache metrics on the provided registerer.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_cache_hits_total",
		Help: "Cache lookups served from a live entry.",
	}, []string{"cache"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_cache_misses_total",
		Help: "Cache lookups that found no live entry.",
	}, []string{"cache"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_cache_evictions_total",
		Help: "Expired entries removed from the cache.",
	}, []string{"cache"})
	entries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alumnet_cache_entries",
		Help: "Entries currently held, expired ones included until swept.",
	}, []string{"cache"})
	reg.MustRegister(hits, misses, evictions, entries)
	return &CacheMetrics{
		hits:      hits,
		misses:    misses,
		evictions: evictions,
		entries:   entries,
	}
}

func (c *CacheMetrics) IncHit(cache string) {
	if c == nil || c.hits == nil {
		return
	}
	c.hits.WithLabelValues(normalizeLabel(cache)).Inc()
}

func (c *CacheMetrics) IncMiss(cache string) {
	if c == nil || c.misses == nil {
		return
	}
	c.misses.WithLabelValues(normalizeLabel(cache)).Inc()
}

func (c *CacheMetrics) AddEvictions(cache string, n int) {
	if c == nil || c.evictions == nil || n <= 0 {
		return
	}
	c.evictions.WithLabelValues(normalizeLabel(cache)).Add(float64(n))
}

func (c *CacheMetrics) SetEntries(cache string, n int) {
	if c == nil || c.entries == nil {
		return
	}
	c.entries.WithLabelValues(normalizeLabel(cache)).Set(float64(n))
}
