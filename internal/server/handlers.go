package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/leapstack-labs/mapsource/internal/filter"
	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/pkg/core"
	"github.com/starfederation/datastar-go/datastar"
)

// FetchingHeader is set on option responses while a cycle is in flight.
const FetchingHeader = "X-Mapsource-Fetching"

type stateResponse struct {
	Fetching   bool   `json:"fetching"`
	Generation uint64 `json:"generation"`
	NodeCount  int    `json:"node_count"`
}

func newStateResponse(s core.FetchState) stateResponse {
	return stateResponse{Fetching: s.Fetching, Generation: s.Generation, NodeCount: s.NodeCount}
}

type createSourceNodeRequest struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// handleFetch starts a fetch cycle. The cycle outlives the request.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.resolver.Fetch(context.WithoutCancel(r.Context()))
	s.writeJSON(w, http.StatusAccepted, newStateResponse(s.resolver.State()))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, newStateResponse(s.resolver.State()))
}

// handleOptions lists accepted options. While a cycle is in flight the list
// is empty and FetchingHeader is true.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	accepted := geometry.Any
	if types := strings.TrimSpace(q.Get("types")); types != "" {
		accepted = geometry.Parse(types)
	}
	pred, err := filter.Compile(q.Get("where"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	selected, state := s.resolver.Snapshot(accepted)
	opts, err := pred.Apply(selected)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if opts == nil {
		opts = []core.SourceOption{}
	}

	w.Header().Set(FetchingHeader, strconv.FormatBool(state.Fetching))
	s.writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleCreateSourceNode(w http.ResponseWriter, r *http.Request) {
	var req createSourceNodeRequest
	if err := datastar.ReadSignals(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "id is required"})
		return
	}

	if err := s.resolver.CreateSourceNodeUnlessExisting(r.Context(), req.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams fetch-state transitions as signal patches, starting
// with the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	updates := s.resolver.Subscribe()
	defer s.resolver.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(newStateResponse(s.resolver.State())); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			if err := sse.MarshalAndPatchSignals(newStateResponse(state)); err != nil {
				_ = sse.ConsoleError(err)
				return
			}
		}
	}
}
