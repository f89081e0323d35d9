package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/pkg/core"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// SQLiteStore is a catalog kept in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates an unopened store.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the catalog file, creating its directory when needed. Use
// ":memory:" for an in-memory catalog.
func (s *SQLiteStore) Open(ctx context.Context, path string) error {
	dsn := ":memory:"
	if path != ":memory:" {
		if path == "" {
			return errors.New("catalog path is required")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create catalog directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite catalog: %w", err)
	}
	// An in-memory database lives in a single connection; one writer is
	// all SQLite allows anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite catalog: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("catalog opened", slog.String("path", path))
	return nil
}

// Close closes the catalog.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ListDatasets returns the datasets in insertion order.
func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]Dataset, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, geometry FROM datasets ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Dataset
	for rows.Next() {
		var d Dataset
		var geom string
		if err := rows.Scan(&d.ID, &d.Name, &geom); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		d.Geometry = decodeGeometry(geom)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DatasetGeometry returns the geometry types of the named dataset.
func (s *SQLiteStore) DatasetGeometry(ctx context.Context, name string) ([]core.GeometryType, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	var geom string
	err := s.db.QueryRowContext(ctx, `SELECT geometry FROM datasets WHERE name = ?`, name).Scan(&geom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset %s: %w", name, err)
	}
	return decodeGeometry(geom), nil
}

// SaveDataset inserts a dataset or updates the geometry of the dataset with
// the same name. New datasets get a random id unless d.ID is set.
func (s *SQLiteStore) SaveDataset(ctx context.Context, d Dataset) (Dataset, error) {
	if s.db == nil {
		return Dataset{}, ErrNotOpen
	}
	if d.Name == "" {
		return Dataset{}, errors.New("dataset name is required")
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO datasets (id, name, geometry) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			geometry = excluded.geometry,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id`,
		d.ID, d.Name, encodeGeometry(d.Geometry),
	).Scan(&d.ID)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to save dataset %s: %w", d.Name, err)
	}

	s.logger.Debug("dataset saved", slog.String("dataset", d.Name), slog.String("id", d.ID))
	return d, nil
}

// SaveSourceNode records a source node. Saving an existing id is a no-op.
func (s *SQLiteStore) SaveSourceNode(ctx context.Context, spec core.SourceNodeSpec) error {
	if s.db == nil {
		return ErrNotOpen
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_nodes (id, table_name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		spec.ID, spec.TableName,
	)
	if err != nil {
		return fmt.Errorf("failed to save source node %s: %w", spec.ID, err)
	}
	return nil
}

// ListSourceNodes returns the recorded source nodes in creation order.
func (s *SQLiteStore) ListSourceNodes(ctx context.Context) ([]core.SourceNodeSpec, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, table_name FROM source_nodes ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.SourceNodeSpec
	for rows.Next() {
		var spec core.SourceNodeSpec
		if err := rows.Scan(&spec.ID, &spec.TableName); err != nil {
			return nil, fmt.Errorf("failed to scan source node: %w", err)
		}
		out = append(out, spec)
	}
	return out, rows.Err()
}

func encodeGeometry(types []core.GeometryType) string {
	return geometry.Of(types...).String()
}

func decodeGeometry(s string) []core.GeometryType {
	if s == "" {
		return nil
	}
	return []core.GeometryType(geometry.Parse(s))
}
