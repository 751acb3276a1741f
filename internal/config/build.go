package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arbortree/arbor/internal/circuit"
	"github.com/arbortree/arbor/internal/metrics"
	"github.com/arbortree/arbor/internal/telemetry"
	"github.com/arbortree/arbor/pkg/adapter"
	"github.com/arbortree/arbor/pkg/adapter/fsadapter"
	"github.com/arbortree/arbor/pkg/adapter/s3adapter"
	"github.com/arbortree/arbor/pkg/cache"
	"github.com/arbortree/arbor/pkg/filteradapter"
	"github.com/arbortree/arbor/pkg/node"
	"github.com/arbortree/arbor/pkg/retry"
	"github.com/arbortree/arbor/pkg/traverse"
)

// Stack is the fully constructed runtime a Configuration describes: a
// cached, optionally filtered base adapter, the logger every layer of it
// logs through, and the traverse.Options derived from the same config.
type Stack struct {
	Adapter  adapter.Adapter
	Logger   *telemetry.Logger
	Traverse traverse.Options
}

// sharedBreakers is the process-wide circuit.Manager every Build call's S3
// adapter obtains its breaker from, so two Build calls targeting the same
// bucket share one breaker instead of tripping independently.
var sharedBreakers = circuit.NewManager(circuit.Config{})

// Build validates c and constructs the adapter stack, logger and traverse
// options it describes. registry is where Prometheus series are
// registered if metrics are wanted; pass nil to build without metrics.
func Build(ctx context.Context, c *Configuration, registry *prometheus.Registry) (*Stack, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := telemetry.ParseLevel(c.Global.LogLevel)
	if err != nil {
		return nil, err
	}
	format := telemetry.FormatText
	if c.Global.LogFormat == "json" {
		format = telemetry.FormatJSON
	}
	logger := telemetry.New(telemetry.Config{Level: level, Format: format, IncludeCaller: true})

	var collector *metrics.Collector
	if registry != nil {
		collector, err = metrics.NewCollector(registry, metrics.Config{Namespace: "arbor"})
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	base, err := buildBaseAdapter(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	var built adapter.Adapter = base
	if c.Adapter.FilterPattern != "" {
		pattern := c.Adapter.FilterPattern
		built = filteradapter.New(built, filteradapter.Config{
			Label: pattern,
			Predicate: func(n node.Node) bool {
				ok, _ := filepath.Match(pattern, filepath.Base(string(n.Key())))
				return ok
			},
		})
	}

	cached, err := cache.New(built, cache.Config{
		Name:          "arbor",
		Mode:          cacheModeFromString(c.Cache.Mode),
		MaxEntries:    c.Cache.MaxEntries,
		ValidationTTL: c.Cache.TTL,
		Metrics:       collector,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	logger.WithComponent("config").Info("adapter stack built", map[string]interface{}{
		"adapter_kind": c.Adapter.Kind,
		"cache_mode":   c.Cache.Mode,
		"filtered":     c.Adapter.FilterPattern != "",
	})

	return &Stack{
		Adapter:  cached,
		Logger:   logger,
		Traverse: buildTraverseOptions(c, logger, collector),
	}, nil
}

func cacheModeFromString(s string) cache.Mode {
	if s == "fast" {
		return cache.Fast
	}
	return cache.Safe
}

// buildBaseAdapter constructs the adapter.Kind base adapter. "json" is not
// constructible from Configuration alone (AdapterConfig carries no document
// source), so it is rejected here; callers wanting a json adapter build one
// directly with jsonadapter.New and compose the rest of the Stack by hand.
func buildBaseAdapter(ctx context.Context, c *Configuration, logger *telemetry.Logger) (adapter.Adapter, error) {
	switch c.Adapter.Kind {
	case "fs":
		return fsadapter.New(fsadapter.Config{
			FollowSymlinks: c.Adapter.FS.FollowSymlinks,
			IncludeHidden:  c.Adapter.FS.IncludeHidden,
		}), nil
	case "s3":
		retryConfig := retry.DefaultConfig()
		if c.Network.Retry.MaxAttempts > 0 {
			retryConfig.MaxAttempts = c.Network.Retry.MaxAttempts
		}
		if c.Network.Retry.InitialDelay > 0 {
			retryConfig.InitialDelay = c.Network.Retry.InitialDelay
		}
		if c.Network.Retry.MaxDelay > 0 {
			retryConfig.MaxDelay = c.Network.Retry.MaxDelay
		}

		var breakerConfig circuit.Config
		if c.Network.CircuitBreaker.Enabled {
			breakerConfig.Timeout = c.Network.CircuitBreaker.Timeout
		}

		return s3adapter.New(ctx, s3adapter.Config{
			Bucket:   c.Adapter.S3.Bucket,
			Region:   c.Adapter.S3.Region,
			Endpoint: c.Adapter.S3.Endpoint,
			Retry:    retryConfig,
			Breaker:  breakerConfig,
			Breakers: sharedBreakers,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("adapter.kind %q cannot be built from a Configuration alone", c.Adapter.Kind)
	}
}

func buildTraverseOptions(c *Configuration, logger *telemetry.Logger, collector *metrics.Collector) traverse.Options {
	opts := traverse.DefaultOptions()

	switch c.Traverse.Strategy {
	case "dfs_pre":
		opts.Strategy = traverse.DFSPre
	case "dfs_post":
		opts.Strategy = traverse.DFSPost
	default:
		opts.Strategy = traverse.BFS
	}

	switch c.Traverse.ErrorPolicy {
	case "fail_fast":
		opts.ErrorPolicy = traverse.FailFast
	case "collect_errors":
		opts.ErrorPolicy = traverse.CollectErrors
	default:
		opts.ErrorPolicy = traverse.ContinueOnErrors
	}

	opts.MaxDepth = c.Traverse.MaxDepth
	opts.BatchSize = c.Traverse.BatchSize
	opts.MaxConcurrent = c.Traverse.MaxConcurrent
	opts.Name = "arbor"
	opts.Logger = logger
	opts.Metrics = collector

	return opts
}
