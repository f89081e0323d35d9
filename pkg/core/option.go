package core

import "encoding/json"

// OptionKind tags the origin of a SourceOption.
type OptionKind string

// Option kinds. The string values are the ones exposed to pickers.
const (
	OptionKindNode  OptionKind = "node"
	OptionKindTable OptionKind = "dataset"
)

// SourceOption is a pickable input for a new analysis. It is a closed sum
// type: the only implementations are NodeOption and TableOption.
type SourceOption interface {
	Identifier() string
	Label() string
	Kind() OptionKind
	Geometry() GeometryType

	sourceOption()
}

// NodeOption offers the output of an existing analysis node.
type NodeOption struct {
	ID           string
	Text         string
	GeometryType GeometryType

	// Layer metadata is projected at read time.
	LayerName  string
	LayerColor string
	Title      string
}

// Identifier returns the analysis node id.
func (o NodeOption) Identifier() string { return o.ID }

// Label returns the display label.
func (o NodeOption) Label() string { return o.Text }

// Kind returns OptionKindNode.
func (o NodeOption) Kind() OptionKind { return OptionKindNode }

// Geometry returns the resolved simple geometry of the node.
func (o NodeOption) Geometry() GeometryType { return o.GeometryType }

func (NodeOption) sourceOption() {}

// MarshalJSON renders the option with its kind tag.
func (o NodeOption) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Identifier   string       `json:"identifier"`
		Label        string       `json:"label"`
		Type         OptionKind   `json:"type"`
		GeometryType GeometryType `json:"geometry_type"`
		LayerName    string       `json:"layer_name"`
		LayerColor   string       `json:"color"`
		Title        string       `json:"title"`
	}{o.ID, o.Text, OptionKindNode, o.GeometryType, o.LayerName, o.LayerColor, o.Title})
}

// TableOption offers a raw dataset from the table catalog.
type TableOption struct {
	ID           string
	Text         string
	GeometryType GeometryType
}

// Identifier returns the table id.
func (o TableOption) Identifier() string { return o.ID }

// Label returns the table name.
func (o TableOption) Label() string { return o.Text }

// Kind returns OptionKindTable.
func (o TableOption) Kind() OptionKind { return OptionKindTable }

// Geometry returns the table's primary simple geometry, if any.
func (o TableOption) Geometry() GeometryType { return o.GeometryType }

func (TableOption) sourceOption() {}

// MarshalJSON renders the option with its kind tag.
func (o TableOption) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Identifier   string       `json:"identifier"`
		Label        string       `json:"label"`
		Type         OptionKind   `json:"type"`
		GeometryType GeometryType `json:"geometry_type,omitempty"`
	}{o.ID, o.Text, OptionKindTable, o.GeometryType})
}

// FetchState is a snapshot of the resolver's refresh state.
type FetchState struct {
	Fetching   bool
	Generation uint64
	// NodeCount is the number of node options cached by the last cycle.
	NodeCount int
}
