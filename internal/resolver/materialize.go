package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/mapsource/pkg/core"
)

// CreateSourceNodeUnlessExisting materializes a picked option.
//
// When id names a table, a source node keyed by the table's name is
// requested; the node collection guarantees one node per key. Any other id
// is taken to reference an existing analysis node and nothing happens.
func (r *Resolver) CreateSourceNodeUnlessExisting(ctx context.Context, id string) error {
	table, ok := r.tables.Get(id)
	if !ok {
		r.logger.Debug("picked option is not a table, nothing to create", slog.String("id", id))
		return nil
	}

	name := table.Name()
	node, err := r.nodes.CreateSourceNode(ctx, core.SourceNodeSpec{
		ID:        name,
		TableName: name,
	})
	if err != nil {
		return fmt.Errorf("failed to create source node for table %q: %w", name, err)
	}

	r.logger.Debug("source node ready",
		slog.String("table", name),
		slog.String("node", node.ID()))
	return nil
}
