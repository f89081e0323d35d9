package resolver

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/pkg/core"
)

// nodeEntry is the per-cycle cached part of a node option. Layer metadata
// is not cached: ownership and naming can change without a schema refetch.
type nodeEntry struct {
	id       string
	geometry core.GeometryType
}

// resolveNode drives one node's schema to a settled state and returns the
// entry it contributes, if any.
func (r *Resolver) resolveNode(ctx context.Context, gen uint64, node core.AnalysisNode) (nodeEntry, bool) {
	schema := node.Schema()
	if schema == nil {
		return nodeEntry{}, false
	}

	switch schema.Status() {
	case core.SchemaFetched:
		return r.nodeEntry(node)
	case core.SchemaUnfetchable:
		r.logger.Debug("skipping unfetchable node",
			slog.Uint64("generation", gen),
			slog.String("node", node.ID()))
		return nodeEntry{}, false
	}

	if err := schema.Fetch(ctx); err != nil {
		r.logger.Debug("node schema fetch failed",
			slog.Uint64("generation", gen),
			slog.String("node", node.ID()),
			slog.String("error", err.Error()))
	}
	return r.nodeEntry(node)
}

// nodeEntry applies the option guard: the node needs a resolved geometry
// and an owning layer. Intermediate nodes such as intersections have no
// owner and are never offered.
func (r *Resolver) nodeEntry(node core.AnalysisNode) (nodeEntry, bool) {
	geom := node.Schema().SimpleGeometry()
	if geom.IsZero() {
		return nodeEntry{}, false
	}
	if _, owned := r.layers.FindOwnerOfAnalysisNode(node); !owned {
		return nodeEntry{}, false
	}
	return nodeEntry{id: node.ID(), geometry: geom}, true
}

// projectNodeOptions turns cached entries into options, resolving layer
// name, color and title at call time.
func (r *Resolver) projectNodeOptions(entries []nodeEntry, accepted geometry.Accepted) []core.SourceOption {
	out := make([]core.SourceOption, 0, len(entries))
	for _, e := range entries {
		if !accepted.Matches(e.geometry) {
			continue
		}
		node, ok := r.nodes.Get(e.id)
		if !ok {
			continue
		}
		layer, ok := r.layers.FindOwnerOfAnalysisNode(node)
		if !ok {
			continue
		}
		out = append(out, core.NodeOption{
			ID:           e.id,
			Text:         e.id,
			GeometryType: e.geometry,
			LayerName:    layer.Name(),
			LayerColor:   layer.Color(),
			Title:        r.title(node),
		})
	}
	return out
}
