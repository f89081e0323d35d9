// Package analysis describes the analysis types known to the editor: their
// display titles, which parameters reference upstream nodes, and what
// geometry they produce.
package analysis

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/mapsource/pkg/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SourceType is the analysis type of nodes that read a dataset directly.
const SourceType = "source"

// Definition describes one analysis type.
type Definition struct {
	Type  string
	Title string
	// SourceParams names the parameters that hold upstream node ids. The
	// first one is the primary source.
	SourceParams []string
	// Output is the geometry the analysis always produces. GeometryNone
	// means the output inherits the geometry of the primary source.
	Output core.GeometryType
}

// PrimarySource returns the name of the primary source parameter.
func (d Definition) PrimarySource() (string, bool) {
	if len(d.SourceParams) == 0 {
		return "", false
	}
	return d.SourceParams[0], true
}

var definitions = map[string]Definition{
	SourceType: {
		Title: "Source",
	},
	"buffer": {
		Title:        "Area of influence",
		SourceParams: []string{"source"},
		Output:       core.GeometryPolygon,
	},
	"trade-area": {
		Title:        "Area of influence",
		SourceParams: []string{"source"},
		Output:       core.GeometryPolygon,
	},
	"point-in-polygon": {
		Title:        "Points in polygons",
		SourceParams: []string{"polygons_source", "points_source"},
		Output:       core.GeometryPolygon,
	},
	"aggregate-intersection": {
		Title:        "Intersect second layer",
		SourceParams: []string{"source", "target"},
	},
	"intersection": {
		Title:        "Intersection",
		SourceParams: []string{"source", "target"},
	},
	"filter-category": {
		Title:        "Filter by column value",
		SourceParams: []string{"source"},
	},
	"filter-range": {
		Title:        "Filter by range",
		SourceParams: []string{"source"},
	},
	"sampling": {
		Title:        "Subsample percent of rows",
		SourceParams: []string{"source"},
	},
	"merge": {
		Title:        "Join columns from second layer",
		SourceParams: []string{"left_source", "right_source"},
	},
	"centroid": {
		Title:        "Find centroid of geometries",
		SourceParams: []string{"source"},
		Output:       core.GeometryPoint,
	},
	"kmeans": {
		Title:        "Calculate clusters of points",
		SourceParams: []string{"source"},
		Output:       core.GeometryPoint,
	},
	"georeference-street-address": {
		Title:        "Georeference",
		SourceParams: []string{"source"},
		Output:       core.GeometryPoint,
	},
}

// Lookup returns the definition for an analysis type. Unknown types get a
// definition with a derived title and a single "source" parameter.
func Lookup(typ string) (Definition, bool) {
	if d, ok := definitions[typ]; ok {
		d.Type = typ
		return d, true
	}
	return Definition{
		Type:         typ,
		Title:        titleFromType(typ),
		SourceParams: []string{"source"},
	}, false
}

// Types returns the registered analysis types, sorted.
func Types() []string {
	types := make([]string, 0, len(definitions))
	for t := range definitions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Title returns the human title of a node's analysis.
func Title(node core.AnalysisNode) string {
	if node == nil {
		return ""
	}
	d, _ := Lookup(node.Type())
	return d.Title
}

func titleFromType(typ string) string {
	words := strings.FieldsFunc(typ, func(r rune) bool {
		return r == '-' || r == '_'
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}
