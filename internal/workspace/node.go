package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/mapsource/internal/analysis"
	"github.com/leapstack-labs/mapsource/internal/dag"
	"github.com/leapstack-labs/mapsource/pkg/core"
)

// Node is an analysis node of the workspace.
type Node struct {
	ws     *Workspace
	spec   NodeSpec
	schema *Schema
}

func newNode(w *Workspace, spec NodeSpec) *Node {
	n := &Node{ws: w, spec: spec}
	n.schema = &Schema{node: n, status: core.SchemaIdle}
	return n
}

// ID returns the node id.
func (n *Node) ID() string { return n.spec.ID }

// Type returns the analysis type.
func (n *Node) Type() string { return n.spec.Type }

// TableName returns the dataset read by a source node.
func (n *Node) TableName() string { return n.spec.TableName }

// Params returns the analysis parameters.
func (n *Node) Params() map[string]string { return n.spec.Params }

// Schema returns the lazily fetched query schema.
func (n *Node) Schema() core.QuerySchema { return n.schema }

// upstreamIDs returns the node ids referenced by source parameters, primary
// source first.
func (n *Node) upstreamIDs() []string {
	def, _ := analysis.Lookup(n.spec.Type)
	var ids []string
	for _, param := range def.SourceParams {
		if id := n.spec.Params[param]; id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (n *Node) hasBrokenUpstream(g *dag.Graph) bool {
	for _, id := range n.upstreamIDs() {
		if id == n.spec.ID || !g.Has(id) {
			return true
		}
	}
	return false
}

// resolveGeometry computes the simple geometry of the node output. Source
// nodes ask the catalog; derived nodes either have a fixed output or
// inherit from their primary source, fetching it first.
func (n *Node) resolveGeometry(ctx context.Context) (core.GeometryType, error) {
	if n.spec.Type == analysis.SourceType {
		types, err := n.ws.catalog.DatasetGeometry(ctx, n.spec.TableName)
		if err != nil {
			return core.GeometryNone, fmt.Errorf("dataset %s: %w", n.spec.TableName, err)
		}
		if len(types) == 0 {
			return core.GeometryNone, nil
		}
		return types[0], nil
	}

	def, _ := analysis.Lookup(n.spec.Type)
	if !def.Output.IsZero() {
		return def.Output, nil
	}
	param, ok := def.PrimarySource()
	if !ok {
		return core.GeometryNone, nil
	}
	upstreamID := n.spec.Params[param]
	upstream, ok := n.ws.node(upstreamID)
	if !ok {
		return core.GeometryNone, fmt.Errorf("%w %q", ErrUnknownNode, upstreamID)
	}
	if upstream.schema.Status() != core.SchemaFetched {
		if err := upstream.schema.Fetch(ctx); err != nil {
			return core.GeometryNone, fmt.Errorf("upstream %s: %w", upstreamID, err)
		}
	}
	return upstream.schema.SimpleGeometry(), nil
}

// Schema is the query schema of a node. It moves from idle to fetching and
// settles in fetched or failed; a failed schema is fetched again on the
// next Fetch. Unfetchable schemas never leave that state.
type Schema struct {
	node *Node

	mu       sync.Mutex
	status   core.SchemaStatus
	geometry core.GeometryType
	err      error
}

// Status returns the current state.
func (s *Schema) Status() core.SchemaStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SimpleGeometry returns the resolved geometry, empty until fetched.
func (s *Schema) SimpleGeometry() core.GeometryType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geometry
}

// Err returns the error of the last failed fetch.
func (s *Schema) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Fetch resolves the schema and blocks until it settles or ctx is done.
// Concurrent calls share one fetch, which is not cut short by any single
// caller's ctx.
func (s *Schema) Fetch(ctx context.Context) error {
	if s.Status() == core.SchemaUnfetchable {
		return fmt.Errorf("node %s: %w", s.node.spec.ID, ErrUnfetchable)
	}

	key := fmt.Sprintf("schema:%p", s)
	_, _, err := s.node.ws.do(ctx, key, func(ctx context.Context) (any, error) {
		return nil, s.fetch(ctx)
	})
	return err
}

func (s *Schema) fetch(ctx context.Context) error {
	s.mu.Lock()
	if s.status == core.SchemaFetched {
		s.mu.Unlock()
		return nil
	}
	s.status = core.SchemaFetching
	s.mu.Unlock()

	geom, err := s.node.resolveGeometry(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == core.SchemaUnfetchable {
		return fmt.Errorf("node %s: %w", s.node.spec.ID, ErrUnfetchable)
	}
	if err != nil {
		s.status = core.SchemaFailed
		s.err = err
		s.node.ws.logger.Debug("schema fetch failed",
			slog.String("node", s.node.spec.ID),
			slog.String("error", err.Error()))
		return err
	}
	s.status = core.SchemaFetched
	s.geometry = geom
	s.err = nil
	return nil
}

func (s *Schema) setUnfetchable(unfetchable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case unfetchable:
		s.status = core.SchemaUnfetchable
		s.geometry = core.GeometryNone
	case s.status == core.SchemaUnfetchable:
		s.status = core.SchemaIdle
	}
}
