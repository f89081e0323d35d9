package config

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/mapsource/internal/catalog"
)

var outputFormats = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Catalog.Type {
	case catalog.TypeSQLite:
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is required for the %s catalog", catalog.TypeSQLite)
		}
	case catalog.TypePostGIS:
		if c.Catalog.Database == "" {
			return fmt.Errorf("catalog.database is required for the %s catalog", catalog.TypePostGIS)
		}
	default:
		return fmt.Errorf("unknown catalog type %q\nHint: use %q or %q", c.Catalog.Type, catalog.TypeSQLite, catalog.TypePostGIS)
	}

	if c.Resolver.MaxConcurrentFetches < 0 {
		return fmt.Errorf("resolver.max_concurrent_fetches must not be negative, got %d", c.Resolver.MaxConcurrentFetches)
	}
	if c.Resolver.FetchTimeout < 0 {
		return fmt.Errorf("resolver.fetch_timeout must not be negative, got %s", c.Resolver.FetchTimeout)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !slices.Contains(outputFormats, c.OutputFormat) {
		return fmt.Errorf("unknown output format %q (expected one of %v)", c.OutputFormat, outputFormats)
	}
	return nil
}
