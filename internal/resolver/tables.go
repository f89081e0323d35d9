package resolver

import (
	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/pkg/core"
)

// collectTableOptions maps loaded table records onto options, keeping
// collection order and the first record of any repeated id.
func collectTableOptions(tables []core.TableRecord, accepted geometry.Accepted) []core.SourceOption {
	out := make([]core.SourceOption, 0, len(tables))
	seen := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		if _, dup := seen[t.ID()]; dup {
			continue
		}
		seen[t.ID()] = struct{}{}

		primary := primaryGeometry(t)
		if !accepted.Matches(primary) {
			continue
		}
		out = append(out, core.TableOption{
			ID:           t.ID(),
			Text:         t.Name(),
			GeometryType: primary,
		})
	}
	return out
}

func primaryGeometry(t core.TableRecord) core.GeometryType {
	types := t.GeometryTypes()
	if len(types) == 0 {
		return core.GeometryNone
	}
	return types[0]
}
