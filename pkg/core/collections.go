package core

import "context"

// QuerySchema is the lazily fetched schema sub-resource of an analysis node.
type QuerySchema interface {
	Status() SchemaStatus
	// Fetch blocks until the schema settles. Concurrent calls share a
	// single fetch.
	Fetch(ctx context.Context) error
	// SimpleGeometry is only meaningful once Status is SchemaFetched.
	SimpleGeometry() GeometryType
}

// AnalysisNode is a node of the analysis pipeline graph.
type AnalysisNode interface {
	ID() string
	// Type is the analysis type, e.g. "source" or "buffer".
	Type() string
	Schema() QuerySchema
}

// SourceNodeSpec describes a source node to create. ID doubles as the
// construction key: creating the same ID twice yields one node.
type SourceNodeSpec struct {
	ID        string
	TableName string
}

// NodeCollection is the set of analysis nodes in an editing context.
type NodeCollection interface {
	// Nodes returns a snapshot of the current nodes in insertion order.
	Nodes() []AnalysisNode
	Get(id string) (AnalysisNode, bool)
	// CreateSourceNode creates a source node unless one with spec.ID exists.
	CreateSourceNode(ctx context.Context, spec SourceNodeSpec) (AnalysisNode, error)
}

// Layer is a map layer that may own analysis nodes.
type Layer interface {
	Name() string
	Color() string
}

// LayerCollection answers ownership questions about analysis nodes.
type LayerCollection interface {
	FindOwnerOfAnalysisNode(node AnalysisNode) (Layer, bool)
}

// TableRecord is a dataset known to the table catalog.
type TableRecord interface {
	ID() string
	Name() string
	// GeometryTypes may hold several values for mixed datasets; the first
	// one is the primary geometry.
	GeometryTypes() []GeometryType
}

// TableCollection is the bulk-fetched table catalog.
type TableCollection interface {
	// Fetch reloads the collection and returns once it settles. Callers
	// that only care about settlement may ignore the error.
	Fetch(ctx context.Context) error
	// Tables returns the loaded records in insertion order.
	Tables() []TableRecord
	Get(id string) (TableRecord, bool)
}
