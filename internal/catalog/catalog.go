// Package catalog is the dataset catalog behind the table picker: the
// datasets that can feed a source node, and the source nodes created from
// them.
//
// Two stores are provided. SQLiteStore keeps a local catalog file and is
// seeded with `mapsource catalog import`. PostGISStore reads the spatial
// tables of a PostGIS database from geometry_columns.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/mapsource/pkg/core"
)

var (
	// ErrNotOpen is returned by store operations after Close.
	ErrNotOpen = errors.New("catalog not open")
	// ErrDatasetNotFound is returned when a dataset name does not resolve.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrReadOnly is returned when writing datasets to a store that only
	// reflects an external database.
	ErrReadOnly = errors.New("catalog is read-only")
)

// Dataset is a table known to the catalog.
type Dataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Geometry lists the geometry types of the dataset, primary first.
	Geometry []core.GeometryType `json:"geometry"`
}

// Store is a dataset catalog.
type Store interface {
	ListDatasets(ctx context.Context) ([]Dataset, error)
	DatasetGeometry(ctx context.Context, name string) ([]core.GeometryType, error)
	// SaveDataset inserts or updates a dataset by name and returns it with
	// its id.
	SaveDataset(ctx context.Context, d Dataset) (Dataset, error)
	SaveSourceNode(ctx context.Context, spec core.SourceNodeSpec) error
	ListSourceNodes(ctx context.Context) ([]core.SourceNodeSpec, error)
	Close() error
}

// Store types.
const (
	TypeSQLite  = "sqlite"
	TypePostGIS = "postgis"
)

// Config selects and configures a store.
type Config struct {
	Type string `koanf:"type"`

	// Path is the SQLite catalog file.
	Path string `koanf:"path"`

	// PostGIS connection.
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Schema   string            `koanf:"schema"`
	Options  map[string]string `koanf:"options"`
}

// Open opens the store described by cfg. SQLite catalogs are migrated to
// the latest schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch cfg.Type {
	case TypeSQLite, "":
		s := NewSQLiteStore(logger)
		if err := s.Open(ctx, cfg.Path); err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case TypePostGIS:
		return OpenPostGIS(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown catalog type %q (expected %s or %s)", cfg.Type, TypeSQLite, TypePostGIS)
	}
}
