package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/pkg/core"
)

// PostGISStore lists the spatial tables of one PostGIS schema. Datasets
// are identified by their qualified name; source nodes are recorded in a
// mapsource_source_nodes table of the same schema.
type PostGISStore struct {
	db     *sql.DB
	schema string
	logger *slog.Logger
}

// OpenPostGIS connects to PostGIS and prepares the source node table.
func OpenPostGIS(ctx context.Context, cfg Config, logger *slog.Logger) (*PostGISStore, error) {
	logger.Debug("connecting to postgis",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", buildPostGISDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgis connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgis: %w", err)
	}

	s := newPostGISStore(db, cfg.Schema, logger)
	if err := s.ensureSourceNodeTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newPostGISStore(db *sql.DB, schema string, logger *slog.Logger) *PostGISStore {
	if schema == "" {
		schema = "public"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostGISStore{db: db, schema: schema, logger: logger}
}

// buildPostGISDSN constructs a key=value connection string.
func buildPostGISDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, cfg.Database, sslmode)
	if cfg.User != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.User)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}

func (s *PostGISStore) ensureSourceNodeTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.mapsource_source_nodes (
			id TEXT PRIMARY KEY,
			table_name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, quoteIdent(s.schema)))
	if err != nil {
		return fmt.Errorf("failed to create source node table: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *PostGISStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ListDatasets returns one dataset per spatial table, ordered by name. A
// table with several geometry columns lists each column's type, first
// column first.
func (s *PostGISStore) ListDatasets(ctx context.Context) ([]Dataset, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f_table_name, type
		FROM geometry_columns
		WHERE f_table_schema = $1
		ORDER BY f_table_name, f_geometry_column`, s.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query geometry_columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Dataset
	index := make(map[string]int)
	for rows.Next() {
		var table, typ string
		if err := rows.Scan(&table, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan geometry column: %w", err)
		}
		i, ok := index[table]
		if !ok {
			i = len(out)
			index[table] = i
			out = append(out, Dataset{ID: s.schema + "." + table, Name: table})
		}
		if g := geometry.Classify(typ); !g.IsZero() {
			out[i].Geometry = append(out[i].Geometry, g)
		}
	}
	return out, rows.Err()
}

// DatasetGeometry returns the geometry types of a spatial table.
func (s *PostGISStore) DatasetGeometry(ctx context.Context, name string) ([]core.GeometryType, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type
		FROM geometry_columns
		WHERE f_table_schema = $1 AND f_table_name = $2
		ORDER BY f_geometry_column`, s.schema, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var found bool
	var out []core.GeometryType
	for rows.Next() {
		found = true
		var typ string
		if err := rows.Scan(&typ); err != nil {
			return nil, fmt.Errorf("failed to scan geometry column: %w", err)
		}
		if g := geometry.Classify(typ); !g.IsZero() {
			out = append(out, g)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s.%s", ErrDatasetNotFound, s.schema, name)
	}
	return out, nil
}

// SaveDataset always fails: datasets are the tables of the database.
func (s *PostGISStore) SaveDataset(_ context.Context, d Dataset) (Dataset, error) {
	return Dataset{}, fmt.Errorf("%w: create table %s in postgis instead", ErrReadOnly, d.Name)
}

// SaveSourceNode records a source node. Saving an existing id is a no-op.
func (s *PostGISStore) SaveSourceNode(ctx context.Context, spec core.SourceNodeSpec) error {
	if s.db == nil {
		return ErrNotOpen
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s.mapsource_source_nodes (id, table_name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		quoteIdent(s.schema)), spec.ID, spec.TableName)
	if err != nil {
		return fmt.Errorf("failed to save source node %s: %w", spec.ID, err)
	}
	return nil
}

// ListSourceNodes returns the recorded source nodes in creation order.
func (s *PostGISStore) ListSourceNodes(ctx context.Context) ([]core.SourceNodeSpec, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, table_name FROM %s.mapsource_source_nodes ORDER BY created_at, id`,
		quoteIdent(s.schema)))
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

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var (
	_ Store = (*PostGISStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
