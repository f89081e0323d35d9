// Package geometry decides whether a simple geometry type satisfies the
// geometry requirements of an analysis input.
package geometry

import (
	"strings"

	"github.com/leapstack-labs/mapsource/pkg/core"
)

// Accepted is the set of geometry types an analysis accepts. A set whose
// first element is core.GeometryWildcard accepts everything.
type Accepted []core.GeometryType

// Any accepts every geometry.
var Any = Accepted{core.GeometryWildcard}

// Of builds an Accepted set from typed values. A single value is a
// singleton set.
func Of(types ...core.GeometryType) Accepted {
	return Accepted(types)
}

// Parse builds an Accepted set from raw values. Each value may itself be a
// comma separated list, so both Parse("point", "line") and
// Parse("point,line") yield the same set.
func Parse(values ...string) Accepted {
	var out Accepted
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			out = append(out, core.GeometryType(part))
		}
	}
	return out
}

// IsWildcard reports whether the set accepts any geometry.
func (a Accepted) IsWildcard() bool {
	return len(a) > 0 && a[0] == core.GeometryWildcard
}

// Matches reports whether candidate satisfies the set.
func (a Accepted) Matches(candidate core.GeometryType) bool {
	return Matches(a, candidate)
}

// String renders the set as a comma separated list.
func (a Accepted) String() string {
	parts := make([]string, len(a))
	for i, t := range a {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// Matches reports whether candidate is accepted. The wildcard accepts any
// candidate, including an absent one; otherwise candidate must be a member
// of accepted. An empty set accepts nothing.
func Matches(accepted Accepted, candidate core.GeometryType) bool {
	if accepted.IsWildcard() {
		return true
	}
	if candidate.IsZero() {
		return false
	}
	for _, t := range accepted {
		if t == candidate {
			return true
		}
	}
	return false
}

// Classify maps a database geometry type name (PostGIS GeometryType or
// geometry_columns.type) onto a simple geometry type.
func Classify(name string) core.GeometryType {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "ST_")
	n = strings.TrimPrefix(n, "MULTI")
	n = strings.TrimRight(n, "ZM")
	switch n {
	case "POINT":
		return core.GeometryPoint
	case "LINESTRING", "LINE":
		return core.GeometryLine
	case "POLYGON":
		return core.GeometryPolygon
	default:
		return core.GeometryNone
	}
}
