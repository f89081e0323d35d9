package resolver

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Fetch starts a new fetch cycle and returns immediately.
//
// The cycle resets the cached node options, then runs one unit for the
// table catalog and one unit per analysis node present right now; nodes
// added afterwards belong to the next cycle. Fetching stays true until
// every unit has settled. Calling Fetch again while a cycle is in flight
// supersedes it: results of the older cycle are discarded.
//
// ctx bounds the whole cycle, so it should outlive the call.
func (r *Resolver) Fetch(ctx context.Context) {
	nodes := r.nodes.Nodes()

	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.fetching = true
	r.cache = nil
	r.seen = make(map[string]struct{})
	done := make(chan struct{})
	r.done = done
	state := r.stateLocked()
	r.mu.Unlock()

	r.logger.Debug("fetch cycle started",
		slog.Uint64("generation", gen),
		slog.Int("nodes", len(nodes)))
	r.notifier.Broadcast(state)

	cycleCtx, cancel := r.cycleContext(ctx)

	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}

	go func() {
		defer cancel()

		g.Go(func() error {
			r.fetchTables(cycleCtx, gen)
			return nil
		})
		for _, node := range nodes {
			g.Go(func() error {
				if entry, ok := r.resolveNode(cycleCtx, gen, node); ok {
					r.appendNodeOption(gen, entry)
				}
				return nil
			})
		}

		_ = g.Wait()
		r.settle(gen, done)
	}()
}

// Wait blocks until no fetch cycle is in flight or ctx is done. A cycle
// superseded while waiting is followed by waiting on its successor.
func (r *Resolver) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		fetching, done := r.fetching, r.done
		r.mu.Unlock()

		if !fetching {
			return nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Resolver) cycleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// fetchTables settles on success or failure alike; an empty or stale table
// list is an acceptable outcome.
func (r *Resolver) fetchTables(ctx context.Context, gen uint64) {
	if err := r.tables.Fetch(ctx); err != nil {
		r.logger.Warn("table fetch failed",
			slog.Uint64("generation", gen),
			slog.String("error", err.Error()))
		return
	}
	r.logger.Debug("table fetch settled", slog.Uint64("generation", gen))
}

// settle closes the cycle. Only the current generation may clear the
// fetching flag.
func (r *Resolver) settle(gen uint64, done chan struct{}) {
	r.mu.Lock()
	current := gen == r.generation
	if current {
		r.fetching = false
	}
	state := r.stateLocked()
	r.mu.Unlock()

	close(done)

	if !current {
		r.logger.Debug("discarding superseded fetch cycle",
			slog.Uint64("generation", gen),
			slog.Uint64("current", state.Generation))
		return
	}

	r.logger.Debug("fetch cycle settled",
		slog.Uint64("generation", gen),
		slog.Int("node_options", state.NodeCount))
	r.notifier.Broadcast(state)
}

// appendNodeOption adds entry to the cache of cycle gen. Entries from a
// superseded cycle and repeated node ids are dropped.
func (r *Resolver) appendNodeOption(gen uint64, entry nodeEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation {
		return
	}
	if _, dup := r.seen[entry.id]; dup {
		return
	}
	r.seen[entry.id] = struct{}{}
	r.cache = append(r.cache, entry)
}
