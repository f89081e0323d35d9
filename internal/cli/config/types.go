// Package config provides configuration management for the mapsource CLI.
package config

import (
	"time"

	"github.com/leapstack-labs/mapsource/internal/catalog"
)

// Config holds all CLI configuration options.
type Config struct {
	Workspace    string         `koanf:"workspace"`
	Catalog      catalog.Config `koanf:"catalog"`
	Resolver     ResolverConfig `koanf:"resolver"`
	Server       ServerConfig   `koanf:"server"`
	Verbose      bool           `koanf:"verbose"`
	OutputFormat string         `koanf:"output"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the config file that was loaded, if any.
	ConfigFile string `koanf:"-"`
}

// ResolverConfig tunes fetch cycles.
type ResolverConfig struct {
	MaxConcurrentFetches int           `koanf:"max_concurrent_fetches"`
	FetchTimeout         time.Duration `koanf:"fetch_timeout"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
}

// Default configuration values.
const (
	DefaultWorkspace            = "workspace.yaml"
	DefaultCatalogType          = catalog.TypeSQLite
	DefaultCatalogPath          = ".mapsource/catalog.db"
	DefaultPostGISPort          = 5432
	DefaultPostGISSchema        = "public"
	DefaultMaxConcurrentFetches = 8
	DefaultFetchTimeout         = 30 * time.Second
	DefaultServerPort           = 8766
	DefaultOutput               = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)
