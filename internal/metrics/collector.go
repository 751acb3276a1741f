// Package metrics provides the optional Prometheus mirror for the cache
// and traversal engine's plain counters. Both components accept an optional
// *Collector; it is constructed by the caller and passed in, so a consumer
// that never supplies one pays nothing beyond the counters each component
// already keeps (the cache's int64 Counters, the engine's Summary).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures the metric namespace the Collector registers under.
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// Collector registers and updates the Prometheus series mirroring the
// cache adapter's and traversal engine's counters.
type Collector struct {
	config Config

	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	cacheBypasses       *prometheus.CounterVec
	cacheEvictions      *prometheus.CounterVec
	cacheUpgrades       *prometheus.CounterVec
	cacheCoalescedWaits *prometheus.CounterVec
	cacheTrackedNodes   *prometheus.GaugeVec

	engineNodesEmitted     *prometheus.CounterVec
	engineTasksDispatched  *prometheus.CounterVec
	engineTasksErrored     *prometheus.CounterVec
	engineCancellations    *prometheus.CounterVec
	engineDispatchLatency  *prometheus.HistogramVec
	engineFrontierDepth    *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers its series with registry.
func NewCollector(registry *prometheus.Registry, config Config) (*Collector, error) {
	c := &Collector{config: config}
	c.initMetrics()

	for _, m := range c.all() {
		if err := registry.Register(m); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) initMetrics() {
	c.cacheHits = c.counterVec("cache_hits_total", "Completeness cache hits satisfying the requested depth.", "cache")
	c.cacheMisses = c.counterVec("cache_misses_total", "Completeness cache misses requiring a source call.", "cache")
	c.cacheBypasses = c.counterVec("cache_bypasses_total", "Children calls made with use_cache=false.", "cache")
	c.cacheEvictions = c.counterVec("cache_evictions_total", "Safe-mode LRU evictions.", "cache")
	c.cacheUpgrades = c.counterVec("cache_upgrades_total", "Entries rescanned to satisfy a deeper required_depth.", "cache")
	c.cacheCoalescedWaits = c.counterVec("cache_coalesced_waits_total", "Callers that joined an in-flight scan instead of starting their own.", "cache")
	c.cacheTrackedNodes = c.gaugeVec("cache_tracked_nodes", "Entries currently held by the completeness table.", "cache")

	c.engineNodesEmitted = c.counterVec("engine_nodes_emitted_total", "Nodes yielded by a traversal.", "engine")
	c.engineTasksDispatched = c.counterVec("engine_tasks_dispatched_total", "Children calls dispatched by the engine.", "engine")
	c.engineTasksErrored = c.counterVec("engine_tasks_errored_total", "Children calls that returned an error.", "engine")
	c.engineCancellations = c.counterVec("engine_cancellations_total", "Traversals terminated by context cancellation.", "engine")
	c.engineDispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "engine_dispatch_latency_seconds",
			Help:      "Latency of a single dispatched Children call.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"engine"},
	)
	c.engineFrontierDepth = c.gaugeVec("engine_frontier_depth", "Current traversal depth of the active frontier.", "engine")
}

func (c *Collector) counterVec(name, help, label string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
		},
		[]string{label},
	)
}

func (c *Collector) gaugeVec(name, help, label string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
		},
		[]string{label},
	)
}

func (c *Collector) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.cacheHits, c.cacheMisses, c.cacheBypasses, c.cacheEvictions,
		c.cacheUpgrades, c.cacheCoalescedWaits, c.cacheTrackedNodes,
		c.engineNodesEmitted, c.engineTasksDispatched, c.engineTasksErrored,
		c.engineCancellations, c.engineDispatchLatency, c.engineFrontierDepth,
	}
}

// RecordCacheHit records a completeness cache hit for the named cache.
func (c *Collector) RecordCacheHit(cacheName string) {
	c.cacheHits.WithLabelValues(cacheName).Inc()
}

// RecordCacheMiss records a completeness cache miss for the named cache.
func (c *Collector) RecordCacheMiss(cacheName string) {
	c.cacheMisses.WithLabelValues(cacheName).Inc()
}

// RecordCacheBypass records a Children call made with use_cache=false.
func (c *Collector) RecordCacheBypass(cacheName string) {
	c.cacheBypasses.WithLabelValues(cacheName).Inc()
}

// RecordCacheEviction records a safe-mode LRU eviction.
func (c *Collector) RecordCacheEviction(cacheName string) {
	c.cacheEvictions.WithLabelValues(cacheName).Inc()
}

// RecordCacheUpgrade records an entry rescanned to satisfy a deeper
// required_depth than what was cached.
func (c *Collector) RecordCacheUpgrade(cacheName string) {
	c.cacheUpgrades.WithLabelValues(cacheName).Inc()
}

// RecordCoalescedWait records a caller joining an in-flight scan.
func (c *Collector) RecordCoalescedWait(cacheName string) {
	c.cacheCoalescedWaits.WithLabelValues(cacheName).Inc()
}

// SetCacheTrackedNodes sets the current entry count for the named cache.
func (c *Collector) SetCacheTrackedNodes(cacheName string, count int) {
	c.cacheTrackedNodes.WithLabelValues(cacheName).Set(float64(count))
}

// RecordNodeEmitted records a node yielded by the named traversal.
func (c *Collector) RecordNodeEmitted(engineName string) {
	c.engineNodesEmitted.WithLabelValues(engineName).Inc()
}

// RecordTaskDispatched records a dispatched Children call.
func (c *Collector) RecordTaskDispatched(engineName string) {
	c.engineTasksDispatched.WithLabelValues(engineName).Inc()
}

// RecordTaskErrored records a Children call that returned an error.
func (c *Collector) RecordTaskErrored(engineName string) {
	c.engineTasksErrored.WithLabelValues(engineName).Inc()
}

// RecordCancellation records a traversal terminated by context cancellation.
func (c *Collector) RecordCancellation(engineName string) {
	c.engineCancellations.WithLabelValues(engineName).Inc()
}

// ObserveDispatchLatency records how long a single dispatched call took.
func (c *Collector) ObserveDispatchLatency(engineName string, d time.Duration) {
	c.engineDispatchLatency.WithLabelValues(engineName).Observe(d.Seconds())
}

// SetFrontierDepth sets the traversal's current frontier depth.
func (c *Collector) SetFrontierDepth(engineName string, depth int) {
	c.engineFrontierDepth.WithLabelValues(engineName).Set(float64(depth))
}
