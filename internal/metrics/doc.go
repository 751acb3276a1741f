/*
Package metrics provides the optional Prometheus mirror for the cache
adapter's and traversal engine's counters.

The cache adapter keeps its own atomic int64 counters and the engine its
Summary — Collector never sits in the hot path as a required dependency. A
caller that wants cache hit ratios or engine throughput in Prometheus
constructs a Collector against its own registry and passes it as
cache.Config.Metrics or traverse.Options.Metrics; a caller that doesn't,
pays nothing beyond the plain counters.

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry, metrics.Config{Namespace: "arbor"})
	...
	adapter, err := cache.New(inner, cache.Config{..., Metrics: collector})
*/
package metrics
