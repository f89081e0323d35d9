package resolver

import (
	"slices"

	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/pkg/core"
)

// SelectOptions returns the options whose geometry satisfies accepted:
// node options first, then table options.
//
// While a fetch cycle is in flight it returns an empty list rather than a
// partial one; use Fetching to tell "still loading" from "nothing matches".
func (r *Resolver) SelectOptions(accepted geometry.Accepted) []core.SourceOption {
	opts, _ := r.Snapshot(accepted)
	return opts
}

// Snapshot is SelectOptions plus the fetch state the options were read
// under. Both come from the same critical section, so an empty list is
// reported as fetching exactly when it is still loading.
func (r *Resolver) Snapshot(accepted geometry.Accepted) ([]core.SourceOption, core.FetchState) {
	r.mu.Lock()
	state := r.stateLocked()
	if r.fetching {
		r.mu.Unlock()
		return []core.SourceOption{}, state
	}
	entries := slices.Clone(r.cache)
	r.mu.Unlock()

	out := r.projectNodeOptions(entries, accepted)
	return append(out, collectTableOptions(r.tables.Tables(), accepted)...), state
}
