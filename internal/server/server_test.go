package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/mapsource/internal/catalog"
	"github.com/leapstack-labs/mapsource/internal/resolver"
	"github.com/leapstack-labs/mapsource/internal/testutil"
	"github.com/leapstack-labs/mapsource/internal/workspace"
	"github.com/leapstack-labs/mapsource/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server    *Server
	resolver  *resolver.Resolver
	workspace *workspace.Workspace
	tables    *catalog.Tables
	store     catalog.Store
	path      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	store, err := catalog.Open(ctx, catalog.Config{Type: catalog.TypeSQLite, Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = catalog.Import(ctx, store, []catalog.Dataset{
		{Name: "stores", Geometry: []core.GeometryType{core.GeometryPoint}},
		{Name: "roads", Geometry: []core.GeometryType{core.GeometryLine}},
	})
	require.NoError(t, err)

	path := testutil.WriteFile(t, t.TempDir(), "workspace.yaml", testutil.SampleWorkspace)
	ws, err := workspace.Open(ctx, workspace.Config{Path: path, Catalog: store, Logger: logger})
	require.NoError(t, err)

	tables := catalog.NewTables(store, logger)
	res, err := resolver.New(resolver.Config{
		Nodes:        ws,
		Layers:       ws,
		Tables:       tables,
		Logger:       logger,
		FetchTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	srv, err := New(Config{Resolver: res, Workspace: ws, Logger: logger})
	require.NoError(t, err)
	srv.debounce = 10 * time.Millisecond

	return &fixture{server: srv, resolver: res, workspace: ws, tables: tables, store: store, path: path}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) fetch(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/fetch", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.resolver.Wait(ctx))
}

func (f *fixture) tableID(t *testing.T, name string) string {
	t.Helper()
	for _, rec := range f.tables.Tables() {
		if rec.Name() == name {
			return rec.ID()
		}
	}
	t.Fatalf("table %s not loaded", name)
	return ""
}

type optionJSON struct {
	Identifier   string `json:"identifier"`
	Label        string `json:"label"`
	Type         string `json:"type"`
	GeometryType string `json:"geometry_type"`
	LayerName    string `json:"layer_name"`
	Title        string `json:"title"`
}

func decodeOptions(t *testing.T, rec *httptest.ResponseRecorder) []optionJSON {
	t.Helper()
	var opts []optionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
	return opts
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestState(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fetching": false, "generation": 0, "node_count": 0}`, rec.Body.String())

	f.fetch(t)
	rec = f.do(t, http.MethodGet, "/api/state", "")
	assert.JSONEq(t, `{"fetching": false, "generation": 1, "node_count": 2}`, rec.Body.String())
}

func TestOptions(t *testing.T) {
	f := newFixture(t)
	f.fetch(t)

	tests := []struct {
		name    string
		target  string
		wantIDs []string
	}{
		{
			name:    "wildcard",
			target:  "/api/options",
			wantIDs: []string{"a0", "a1", f.tableID(t, "stores"), f.tableID(t, "roads")},
		},
		{
			name:    "polygon only",
			target:  "/api/options?types=polygon",
			wantIDs: []string{"a1"},
		},
		{
			name:    "point and line",
			target:  "/api/options?types=point,line",
			wantIDs: []string{"a0", f.tableID(t, "stores"), f.tableID(t, "roads")},
		},
		{
			name:    "where filter",
			target:  "/api/options?where=" + urlQuery(`kind == "dataset"`),
			wantIDs: []string{f.tableID(t, "stores"), f.tableID(t, "roads")},
		},
		{
			name:    "nothing matches",
			target:  "/api/options?types=line&where=" + urlQuery(`kind == "node"`),
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "false", rec.Header().Get(FetchingHeader))

			opts := decodeOptions(t, rec)
			ids := make([]string, 0, len(opts))
			for _, o := range opts {
				ids = append(ids, o.Identifier)
			}
			// Node options settle in completion order.
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestOptions_NodeMetadata(t *testing.T) {
	f := newFixture(t)
	f.fetch(t)

	opts := decodeOptions(t, f.do(t, http.MethodGet, "/api/options?types=polygon", ""))
	require.Len(t, opts, 1)
	assert.Equal(t, optionJSON{
		Identifier:   "a1",
		Label:        "a1",
		Type:         "node",
		GeometryType: "polygon",
		LayerName:    "Stores",
		Title:        "Area of influence",
	}, opts[0])
}

func TestOptions_InvalidWhere(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/options?where="+urlQuery("kind =="), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid filter")
}

func TestCreateSourceNode(t *testing.T) {
	f := newFixture(t)
	f.fetch(t)
	ctx := context.Background()

	body := `{"id": "` + f.tableID(t, "roads") + `"}`
	for range 2 {
		rec := f.do(t, http.MethodPost, "/api/source-nodes", body)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	node, ok := f.workspace.Get("roads")
	require.True(t, ok)
	assert.Equal(t, "source", node.Type())

	persisted, err := f.store.ListSourceNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.SourceNodeSpec{{ID: "roads", TableName: "roads"}}, persisted)
}

func TestCreateSourceNode_ExistingNodeIsNoop(t *testing.T) {
	f := newFixture(t)
	f.fetch(t)
	before := len(f.workspace.Nodes())

	rec := f.do(t, http.MethodPost, "/api/source-nodes", `{"id": "a0"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, f.workspace.Nodes(), before)
}

func TestCreateSourceNode_BadRequest(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{"", "{", `{"id": "  "}`} {
		rec := f.do(t, http.MethodPost, "/api/source-nodes", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	readUntil := func(substr string) {
		t.Helper()
		for lines.Scan() {
			if strings.Contains(lines.Text(), substr) {
				return
			}
		}
		t.Fatalf("stream ended before %q: %v", substr, lines.Err())
	}

	readUntil(`"generation":0`)

	f.resolver.Fetch(ctx)
	readUntil(`"generation":1`)
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updated := strings.Replace(testutil.SampleWorkspace, "datasets:", `  - id: a2
    type: centroid
    params:
      source: a1
datasets:`, 1)
	require.NoError(t, writeFile(f.path, updated))

	f.server.reload(ctx)
	require.NoError(t, f.resolver.Wait(ctx))

	_, ok := f.workspace.Get("a2")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), f.resolver.State().Generation)
}

func TestReload_InvalidWorkspaceKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, writeFile(f.path, "layers: [\n"))
	f.server.reload(ctx)

	assert.Equal(t, uint64(0), f.resolver.State().Generation, "no cycle after a failed reload")
	_, ok := f.workspace.Get("a0")
	assert.True(t, ok)
}

func TestWatchWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.server.watchWorkspace(ctx) }()

	updated := strings.Replace(testutil.SampleWorkspace, "datasets:", `  - id: a2
    type: centroid
    params:
      source: a1
datasets:`, 1)

	require.Eventually(t, func() bool {
		// The watch may not be registered yet, so keep rewriting.
		_ = writeFile(f.path, updated)
		_, ok := f.workspace.Get("a2")
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, f.resolver.Wait(context.Background()))
}
