// Package config provides YAML/environment-driven configuration for the
// adapter, cache and traversal layers, mirroring the precedence order
// defaults < file < environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is the complete, top-level configuration tree.
type Configuration struct {
	Global   GlobalConfig   `yaml:"global"`
	Adapter  AdapterConfig  `yaml:"adapter"`
	Cache    CacheConfig    `yaml:"cache"`
	Traverse TraverseConfig `yaml:"traverse"`
	Network  NetworkConfig  `yaml:"network"`
}

// GlobalConfig holds settings ambient to the whole process.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// AdapterConfig configures the base adapter a traversal runs against.
type AdapterConfig struct {
	// Kind selects which base adapter to construct: "fs", "json" or "s3".
	Kind string `yaml:"kind"`

	FS FSAdapterConfig `yaml:"fs"`
	S3 S3AdapterConfig `yaml:"s3"`

	// FilterPattern, when non-empty, wraps the base adapter in a filter
	// adapter whose inclusion predicate matches this glob against the
	// base name of the node's key.
	FilterPattern string `yaml:"filter_pattern"`
}

// FSAdapterConfig configures the filesystem base adapter.
type FSAdapterConfig struct {
	FollowSymlinks bool `yaml:"follow_symlinks"`
	IncludeHidden  bool `yaml:"include_hidden"`
}

// S3AdapterConfig configures the S3 base adapter.
type S3AdapterConfig struct {
	Bucket             string `yaml:"bucket"`
	Region             string `yaml:"region"`
	Endpoint           string `yaml:"endpoint"`
	ConnectionPoolSize int    `yaml:"connection_pool_size"`
}

// CacheConfig configures the completeness cache decorator.
type CacheConfig struct {
	// Mode selects "safe" (bounded LRU, ordered) or "fast" (unordered, no
	// eviction). Resolved once at construction; never branched on per call.
	Mode       string        `yaml:"mode"`
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// TraverseConfig configures the traversal engine.
type TraverseConfig struct {
	Strategy      string `yaml:"strategy"`
	MaxDepth      int    `yaml:"max_depth"`
	BatchSize     int    `yaml:"batch_size"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	ErrorPolicy   string `yaml:"error_policy"`
}

// NetworkConfig configures resilience around a network-backed base adapter.
type NetworkConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig mirrors pkg/retry.Config's tunables.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig holds circuit breaker tunables. Build copies Timeout
// (when Enabled) into the S3 adapter's Breaker config, but that config has
// no effect: every S3 adapter Build constructs takes its breaker from the
// package-level shared Manager, which uses circuit.Config defaults.
// FailureThreshold is not read.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// NewDefault returns a configuration with sensible defaults matching
// SPEC_FULL's documented engine defaults (BFS, unbounded depth, batch 256,
// 100-way concurrency).
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Adapter: AdapterConfig{
			Kind: "fs",
			FS: FSAdapterConfig{
				FollowSymlinks: false,
				IncludeHidden:  false,
			},
			S3: S3AdapterConfig{
				ConnectionPoolSize: 8,
			},
		},
		Cache: CacheConfig{
			Mode:       "safe",
			MaxEntries: 100000,
			TTL:        5 * time.Minute,
		},
		Traverse: TraverseConfig{
			Strategy:      "bfs",
			MaxDepth:      -1,
			BatchSize:     256,
			MaxConcurrent: 100,
			ErrorPolicy:   "continue_on_errors",
		},
		Network: NetworkConfig{
			Retry: RetryConfig{
				MaxAttempts:  5,
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     30 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          60 * time.Second,
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file, overlaying it onto c.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overlays ARBOR_* environment variables onto c.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("ARBOR_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("ARBOR_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}
	if val := os.Getenv("ARBOR_ADAPTER_KIND"); val != "" {
		c.Adapter.Kind = val
	}
	if val := os.Getenv("ARBOR_S3_BUCKET"); val != "" {
		c.Adapter.S3.Bucket = val
	}
	if val := os.Getenv("ARBOR_CACHE_MODE"); val != "" {
		c.Cache.Mode = val
	}
	if val := os.Getenv("ARBOR_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Cache.TTL = duration
		}
	}
	if val := os.Getenv("ARBOR_TRAVERSE_STRATEGY"); val != "" {
		c.Traverse.Strategy = val
	}
	if val := os.Getenv("ARBOR_TRAVERSE_MAX_CONCURRENT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Traverse.MaxConcurrent = n
		}
	}

	return nil
}

// SaveToFile persists the configuration as YAML.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for internally-inconsistent values,
// the sort an adapter or engine constructor would otherwise discover late
// and awkwardly as a CodeConfigurationError deep in a call stack.
func (c *Configuration) Validate() error {
	validKinds := map[string]bool{"fs": true, "json": true, "s3": true}
	if !validKinds[c.Adapter.Kind] {
		return fmt.Errorf("invalid adapter.kind: %s (must be one of: fs, json, s3)", c.Adapter.Kind)
	}

	if c.Adapter.Kind == "s3" && c.Adapter.S3.Bucket == "" {
		return fmt.Errorf("adapter.s3.bucket is required when adapter.kind is s3")
	}

	validModes := map[string]bool{"safe": true, "fast": true}
	if !validModes[c.Cache.Mode] {
		return fmt.Errorf("invalid cache.mode: %s (must be one of: safe, fast)", c.Cache.Mode)
	}
	if c.Cache.Mode == "safe" && c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be greater than 0 in safe mode")
	}

	validStrategies := map[string]bool{"bfs": true, "dfs_pre": true, "dfs_post": true}
	if !validStrategies[c.Traverse.Strategy] {
		return fmt.Errorf("invalid traverse.strategy: %s (must be one of: bfs, dfs_pre, dfs_post)", c.Traverse.Strategy)
	}
	if c.Traverse.BatchSize <= 0 {
		return fmt.Errorf("traverse.batch_size must be greater than 0")
	}
	if c.Traverse.MaxConcurrent <= 0 {
		return fmt.Errorf("traverse.max_concurrent must be greater than 0")
	}

	validErrorPolicies := map[string]bool{"fail_fast": true, "continue_on_errors": true, "collect_errors": true}
	if !validErrorPolicies[c.Traverse.ErrorPolicy] {
		return fmt.Errorf("invalid traverse.error_policy: %s", c.Traverse.ErrorPolicy)
	}

	validLogLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid global.log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}
