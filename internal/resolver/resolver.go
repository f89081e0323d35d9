// Package resolver produces the list of sources a user can pick as input to
// a new analysis: outputs of existing analysis nodes and raw tables.
//
// Both backing collections may still be loading. A Resolver coordinates one
// refresh (a fetch cycle) over the table catalog and every analysis node
// schema, exposes a single fetching flag while the cycle is in flight, and
// serves geometry-filtered option lists once it settles.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/mapsource/internal/analysis"
	"github.com/leapstack-labs/mapsource/internal/notifier"
	"github.com/leapstack-labs/mapsource/pkg/core"
)

// ErrMissingCollaborator is returned by New when a required collection is nil.
var ErrMissingCollaborator = errors.New("missing required collaborator")

// Config holds the collaborators and tuning of a Resolver.
type Config struct {
	Nodes  core.NodeCollection
	Layers core.LayerCollection
	Tables core.TableCollection

	// Logger defaults to a discard logger.
	Logger *slog.Logger
	// Notifier receives every fetch-state transition. A private one is
	// created when nil.
	Notifier *notifier.Notifier
	// MaxConcurrentFetches bounds the fetch units running at once.
	// Zero means unbounded.
	MaxConcurrentFetches int
	// FetchTimeout bounds a whole fetch cycle. Zero means no timeout.
	FetchTimeout time.Duration
	// Titler computes node titles at read time. Defaults to analysis.Title.
	Titler func(core.AnalysisNode) string
}

// Resolver is created once per editing context.
type Resolver struct {
	nodes  core.NodeCollection
	layers core.LayerCollection
	tables core.TableCollection

	logger   *slog.Logger
	notifier *notifier.Notifier
	limit    int
	timeout  time.Duration
	title    func(core.AnalysisNode) string

	mu         sync.Mutex
	generation uint64
	fetching   bool
	cache      []nodeEntry
	seen       map[string]struct{}
	done       chan struct{}
}

// New creates a Resolver. It fails when any collection is missing.
func New(cfg Config) (*Resolver, error) {
	switch {
	case cfg.Nodes == nil:
		return nil, fmt.Errorf("%w: analysis nodes collection", ErrMissingCollaborator)
	case cfg.Layers == nil:
		return nil, fmt.Errorf("%w: layers collection", ErrMissingCollaborator)
	case cfg.Tables == nil:
		return nil, fmt.Errorf("%w: tables collection", ErrMissingCollaborator)
	}
	if cfg.MaxConcurrentFetches < 0 {
		return nil, fmt.Errorf("max concurrent fetches must not be negative, got %d", cfg.MaxConcurrentFetches)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	n := cfg.Notifier
	if n == nil {
		n = notifier.New()
	}
	title := cfg.Titler
	if title == nil {
		title = analysis.Title
	}

	done := make(chan struct{})
	close(done)

	return &Resolver{
		nodes:    cfg.Nodes,
		layers:   cfg.Layers,
		tables:   cfg.Tables,
		logger:   logger,
		notifier: n,
		limit:    cfg.MaxConcurrentFetches,
		timeout:  cfg.FetchTimeout,
		title:    title,
		seen:     make(map[string]struct{}),
		done:     done,
	}, nil
}

// Fetching reports whether a fetch cycle is in flight. Option lists are only
// authoritative when it returns false.
func (r *Resolver) Fetching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetching
}

// State returns a snapshot of the fetch state.
func (r *Resolver) State() core.FetchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Resolver) stateLocked() core.FetchState {
	return core.FetchState{
		Fetching:   r.fetching,
		Generation: r.generation,
		NodeCount:  len(r.cache),
	}
}

// Subscribe returns a channel receiving every fetch-state transition.
func (r *Resolver) Subscribe() chan core.FetchState {
	return r.notifier.Subscribe()
}

// Unsubscribe releases a channel returned by Subscribe.
func (r *Resolver) Unsubscribe(ch chan core.FetchState) {
	r.notifier.Unsubscribe(ch)
}
