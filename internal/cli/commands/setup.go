package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/mapsource/internal/catalog"
	"github.com/leapstack-labs/mapsource/internal/cli/config"
	"github.com/leapstack-labs/mapsource/internal/cli/output"
	"github.com/leapstack-labs/mapsource/internal/resolver"
	"github.com/leapstack-labs/mapsource/internal/workspace"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg       *config.Config
	Logger    *slog.Logger
	Renderer  *output.Renderer
	Store     catalog.Store
	Workspace *workspace.Workspace
	Tables    *catalog.Tables
	Resolver  *resolver.Resolver
}

// NewCommandContext opens the catalog and the workspace and builds a
// resolver over them.
// Returns the context and a cleanup function that must be called (typically via defer).
// Cleanup waits for an in-flight fetch cycle, up to the fetch timeout, before
// closing the catalog.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc, err := newBaseContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()

	store, err := catalog.Open(ctx, cc.Cfg.Catalog, cc.Logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = store.Close()
	}

	ws, err := workspace.Open(ctx, workspace.Config{
		Path:    cc.Cfg.Workspace,
		Catalog: store,
		Logger:  cc.Logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	for _, problem := range ws.Problems() {
		cc.Logger.Warn("workspace problem", slog.String("error", problem.Error()))
	}

	tables := catalog.NewTables(store, cc.Logger)
	res, err := resolver.New(resolver.Config{
		Nodes:                ws,
		Layers:               ws,
		Tables:               tables,
		Logger:               cc.Logger,
		MaxConcurrentFetches: cc.Cfg.Resolver.MaxConcurrentFetches,
		FetchTimeout:         cc.Cfg.Resolver.FetchTimeout,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	cc.Store = store
	cc.Workspace = ws
	cc.Tables = tables
	cc.Resolver = res
	return cc, func() {
		// Cycle units still read the catalog; let them settle first.
		waitCtx, cancel := settleContext(ctx, cc.Cfg.Resolver.FetchTimeout)
		defer cancel()
		if err := res.Wait(waitCtx); err != nil {
			cc.Logger.Debug("closing catalog with a fetch in flight", slog.String("error", err.Error()))
		}
		cleanup()
	}, nil
}

// settleContext bounds how long cleanup waits for an in-flight fetch cycle.
func settleContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// NewCommandContextWithStore opens the catalog only.
func NewCommandContextWithStore(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc, err := newBaseContext(cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := catalog.Open(cmd.Context(), cc.Cfg.Catalog, cc.Logger)
	if err != nil {
		return nil, nil, err
	}
	cc.Store = store
	return cc, func() { _ = store.Close() }, nil
}

func newBaseContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig(cmd)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// getConfig returns the configuration loaded by the root command, loading
// it from the working directory when the command runs standalone.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	if cfg := config.FromContext(cmd.Context()); cfg != nil {
		return cfg, nil
	}
	return config.Load("", nil)
}
