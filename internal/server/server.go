// Package server exposes the source options resolver over HTTP and keeps it
// in sync with the workspace file.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/mapsource/internal/resolver"
	"github.com/leapstack-labs/mapsource/internal/workspace"
	"golang.org/x/sync/errgroup"
)

// Server is the HTTP front end of a resolver.
type Server struct {
	resolver  *resolver.Resolver
	workspace *workspace.Workspace
	port      int
	watch     bool
	debounce  time.Duration
	logger    *slog.Logger
}

// Config holds configuration for the server.
type Config struct {
	Resolver  *resolver.Resolver
	Workspace *workspace.Workspace
	Port      int
	// Watch reloads the workspace and starts a fetch cycle when the
	// workspace file changes.
	Watch  bool
	Logger *slog.Logger
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Resolver == nil || cfg.Workspace == nil {
		return nil, errors.New("server requires a resolver and a workspace")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		resolver:  cfg.Resolver,
		workspace: cfg.Workspace,
		port:      cfg.Port,
		watch:     cfg.Watch,
		debounce:  100 * time.Millisecond,
		logger:    logger,
	}, nil
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
			NoColor: true,
		}),
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Route("/api", func(r chi.Router) {
		r.Post("/fetch", s.handleFetch)
		r.Get("/state", s.handleState)
		r.Get("/options", s.handleOptions)
		r.Post("/source-nodes", s.handleCreateSourceNode)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Serve starts a fetch cycle, then serves HTTP until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting server", slog.String("addr", fmt.Sprintf("http://localhost:%d", s.port)))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.resolver.Fetch(egctx)

	if s.watch {
		eg.Go(func() error {
			return s.watchWorkspace(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// reload re-reads the workspace and starts a new fetch cycle.
func (s *Server) reload(ctx context.Context) {
	if err := s.workspace.Reload(ctx); err != nil {
		s.logger.Warn("workspace reload failed", slog.String("error", err.Error()))
		return
	}
	for _, problem := range s.workspace.Problems() {
		s.logger.Warn("workspace problem", slog.String("error", problem.Error()))
	}
	s.resolver.Fetch(ctx)
}
