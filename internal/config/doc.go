/*
Package config provides multi-source configuration for arbor's adapter,
cache and traversal layers.

Configuration precedence, lowest to highest:

	defaults (NewDefault) < YAML file (LoadFromFile) < environment (LoadFromEnv)

A typical composition root loads defaults, overlays a file if one is
configured, then overlays environment variables, then calls Validate
before constructing adapters, cache or the traversal engine from the
result:

	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

Validate exists so misconfiguration surfaces at startup as a plain error,
rather than as a CodeConfigurationError raised lazily the first time a
component is used.

Build takes a validated Configuration the rest of the way: it constructs
the base adapter the Configuration names (fs or s3), wraps it in a filter
adapter and the cache adapter as configured, and derives traverse.Options,
returning the assembled Stack ready to drive a traversal.
*/
package config
