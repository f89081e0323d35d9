// Package workspace holds the editing context of a map: its layers and the
// analysis node pipeline, loaded from a YAML file.
//
// A Workspace is the node and layer collection handed to the resolver.
// Node schemas are fetched lazily against the catalog; source nodes created
// while editing are persisted in the catalog and merged back on load.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/mapsource/internal/analysis"
	"github.com/leapstack-labs/mapsource/internal/dag"
	"github.com/leapstack-labs/mapsource/pkg/core"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnknownNode is returned when a node id does not resolve.
	ErrUnknownNode = errors.New("unknown analysis node")
	// ErrCycle reports analysis nodes that depend on themselves.
	ErrCycle = errors.New("analysis nodes form a cycle")
	// ErrUnfetchable is returned by fetching a schema that can never be fetched.
	ErrUnfetchable = errors.New("schema is unfetchable")
)

// Catalog is the part of the dataset catalog a workspace needs.
type Catalog interface {
	// DatasetGeometry returns the geometry types of the named dataset,
	// primary first.
	DatasetGeometry(ctx context.Context, name string) ([]core.GeometryType, error)
	SaveSourceNode(ctx context.Context, spec core.SourceNodeSpec) error
	ListSourceNodes(ctx context.Context) ([]core.SourceNodeSpec, error)
}

// Config configures a Workspace.
type Config struct {
	// Path of the workspace file. An empty path starts an empty workspace.
	Path    string
	Catalog Catalog
	Logger  *slog.Logger
}

// Workspace implements core.NodeCollection and core.LayerCollection.
type Workspace struct {
	path    string
	catalog Catalog
	logger  *slog.Logger

	mu       sync.RWMutex
	file     *File
	nodes    []*Node
	byID     map[string]*Node
	layers   []*Layer
	byLetter map[string]*Layer
	graph    *dag.Graph
	problems []error

	group singleflight.Group
}

// Open loads the workspace file and the source nodes persisted in the
// catalog.
func Open(ctx context.Context, cfg Config) (*Workspace, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("workspace requires a catalog")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	w := &Workspace{
		path:    cfg.Path,
		catalog: cfg.Catalog,
		logger:  logger,
	}
	if err := w.Reload(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Path returns the workspace file path.
func (w *Workspace) Path() string { return w.path }

// Reload re-reads the workspace file. Nodes whose declaration did not
// change keep their schema, so fetched geometry survives a reload.
func (w *Workspace) Reload(ctx context.Context) error {
	f := &File{}
	if w.path != "" {
		var err error
		if f, err = LoadFile(w.path); err != nil {
			return err
		}
	}

	persisted, err := w.catalog.ListSourceNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persisted source nodes: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	specs := make([]NodeSpec, 0, len(f.Nodes)+len(persisted))
	declared := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		specs = append(specs, n)
		declared[n.ID] = true
	}
	for _, p := range persisted {
		if declared[p.ID] {
			continue
		}
		specs = append(specs, NodeSpec{ID: p.ID, Type: analysis.SourceType, TableName: p.TableName})
	}

	w.build(f, specs)
	w.logger.Debug("workspace loaded",
		slog.String("path", w.path),
		slog.Int("layers", len(w.layers)),
		slog.Int("nodes", len(w.nodes)),
		slog.Int("problems", len(w.problems)))
	return nil
}

// build replaces the node and layer sets. Callers hold w.mu.
func (w *Workspace) build(f *File, specs []NodeSpec) {
	previous := w.byID

	w.file = f
	w.layers = make([]*Layer, 0, len(f.Layers))
	w.byLetter = make(map[string]*Layer, len(f.Layers))
	for _, ls := range f.Layers {
		l := &Layer{spec: ls}
		w.layers = append(w.layers, l)
		w.byLetter[ls.Letter] = l
	}

	w.nodes = make([]*Node, 0, len(specs))
	w.byID = make(map[string]*Node, len(specs))
	for _, spec := range specs {
		if old, ok := previous[spec.ID]; ok && old.spec.equal(spec) {
			w.nodes = append(w.nodes, old)
			w.byID[spec.ID] = old
			continue
		}
		n := newNode(w, spec)
		w.nodes = append(w.nodes, n)
		w.byID[spec.ID] = n
	}

	w.graph, w.problems = w.buildGraph()
	w.markUnfetchable()
}

func (w *Workspace) buildGraph() (*dag.Graph, []error) {
	g := dag.NewGraph()
	for _, n := range w.nodes {
		g.AddNode(n.spec.ID)
	}

	var problems []error
	for _, n := range w.nodes {
		for _, upstream := range n.upstreamIDs() {
			if !g.Has(upstream) {
				problems = append(problems, fmt.Errorf("node %s: %w %q", n.spec.ID, ErrUnknownNode, upstream))
				continue
			}
			if err := g.AddEdge(upstream, n.spec.ID); err != nil {
				problems = append(problems, fmt.Errorf("node %s: %w", n.spec.ID, err))
			}
		}
	}
	if cyclic, path := g.HasCycle(); cyclic {
		problems = append(problems, fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> ")))
	}
	return g, problems
}

// markUnfetchable flags schemas that can never be fetched: source nodes
// without a table, nodes with a missing upstream or a self-loop, nodes on
// a cycle, and everything downstream of those.
func (w *Workspace) markUnfetchable() {
	var roots []string
	for _, n := range w.nodes {
		id := n.spec.ID
		switch {
		case n.spec.Type == analysis.SourceType && n.spec.TableName == "":
			roots = append(roots, id)
		case n.hasBrokenUpstream(w.graph):
			roots = append(roots, id)
		case slices.Contains(w.graph.Upstream(id), id):
			roots = append(roots, id)
		}
	}

	broken := make(map[string]bool)
	for _, id := range w.graph.Downstream(roots) {
		broken[id] = true
	}
	for _, n := range w.nodes {
		n.schema.setUnfetchable(broken[n.spec.ID])
	}
}

// Problems returns the issues found while loading: missing upstream nodes
// and cycles. Affected nodes are unfetchable.
func (w *Workspace) Problems() []error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]error, len(w.problems))
	copy(out, w.problems)
	return out
}

// Datasets returns the datasets declared in the workspace file.
func (w *Workspace) Datasets() []DatasetSpec {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.file == nil {
		return nil
	}
	out := make([]DatasetSpec, len(w.file.Datasets))
	copy(out, w.file.Datasets)
	return out
}

// Nodes returns the analysis nodes in declaration order, persisted source
// nodes last.
func (w *Workspace) Nodes() []core.AnalysisNode {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]core.AnalysisNode, len(w.nodes))
	for i, n := range w.nodes {
		out[i] = n
	}
	return out
}

// Get returns the node with the given id.
func (w *Workspace) Get(id string) (core.AnalysisNode, bool) {
	n, ok := w.node(id)
	if !ok {
		return nil, false
	}
	return n, true
}

func (w *Workspace) node(id string) (*Node, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n, ok := w.byID[id]
	return n, ok
}

// CreateSourceNode creates a source node reading spec.TableName unless a
// node with spec.ID exists. Concurrent calls for the same id create one
// node. The node is persisted in the catalog before it becomes visible.
func (w *Workspace) CreateSourceNode(ctx context.Context, spec core.SourceNodeSpec) (core.AnalysisNode, error) {
	if spec.ID == "" {
		return nil, errors.New("source node id is required")
	}
	if spec.TableName == "" {
		return nil, fmt.Errorf("source node %s: table name is required", spec.ID)
	}

	v, shared, err := w.do(ctx, "create:"+spec.ID, func(ctx context.Context) (any, error) {
		if n, ok := w.node(spec.ID); ok {
			return n, nil
		}
		if err := w.catalog.SaveSourceNode(ctx, spec); err != nil {
			return nil, fmt.Errorf("failed to persist source node %s: %w", spec.ID, err)
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if n, ok := w.byID[spec.ID]; ok {
			return n, nil
		}
		n := newNode(w, NodeSpec{ID: spec.ID, Type: analysis.SourceType, TableName: spec.TableName})
		w.nodes = append(w.nodes, n)
		w.byID[spec.ID] = n
		w.graph.AddNode(spec.ID)

		w.logger.Info("source node created",
			slog.String("node", spec.ID),
			slog.String("table", spec.TableName))
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		w.logger.Debug("joined in-flight source node creation", slog.String("node", spec.ID))
	}
	return v.(*Node), nil
}

// do runs fn once for all concurrent callers of key. fn runs detached from
// the cancellation of whichever caller started it; each caller stops waiting
// when its own ctx is done.
func (w *Workspace) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := w.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (s NodeSpec) equal(other NodeSpec) bool {
	return s.ID == other.ID &&
		s.Type == other.Type &&
		s.TableName == other.TableName &&
		maps.Equal(s.Params, other.Params)
}
