package core

// GeometryType is the coarse geometry classification used to decide which
// sources are valid inputs for an analysis.
type GeometryType string

// Simple geometry types.
const (
	GeometryNone    GeometryType = ""
	GeometryPoint   GeometryType = "point"
	GeometryLine    GeometryType = "line"
	GeometryPolygon GeometryType = "polygon"
)

// GeometryWildcard accepts any geometry when it heads an accepted set.
const GeometryWildcard GeometryType = "*"

// IsZero reports whether no geometry could be determined.
func (g GeometryType) IsZero() bool {
	return g == GeometryNone
}

// String implements fmt.Stringer.
func (g GeometryType) String() string {
	return string(g)
}
