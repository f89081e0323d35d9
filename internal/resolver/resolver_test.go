package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/internal/testutil"
	"github.com/leapstack-labs/mapsource/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	nodes  *fakeNodes
	layers *fakeLayers
	tables *fakeTables
}

func newFixture() *fixture {
	return &fixture{
		nodes:  newFakeNodes(),
		layers: newFakeLayers(),
		tables: newFakeTables(),
	}
}

func (f *fixture) resolver(t *testing.T, mutate ...func(*Config)) *Resolver {
	t.Helper()
	cfg := Config{
		Nodes:  f.nodes,
		Layers: f.layers,
		Tables: f.tables,
		Logger: testutil.NewTestLogger(t),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func fetchAndWait(t *testing.T, r *Resolver) {
	t.Helper()
	r.Fetch(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
	require.False(t, r.Fetching())
}

func ids(opts []core.SourceOption) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Identifier()
	}
	return out
}

func TestNew_MissingCollaborators(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"nodes", Config{Layers: f.layers, Tables: f.tables}, "analysis nodes"},
		{"layers", Config{Nodes: f.nodes, Tables: f.tables}, "layers"},
		{"tables", Config{Nodes: f.nodes, Layers: f.layers}, "tables"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.cfg)
			require.Error(t, err)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, ErrMissingCollaborator)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := New(Config{Nodes: f.nodes, Layers: f.layers, Tables: f.tables, MaxConcurrentFetches: -1})
	assert.Error(t, err)
}

func TestResolver_InitialState(t *testing.T) {
	r := newFixture().resolver(t)

	assert.False(t, r.Fetching())
	assert.Empty(t, r.SelectOptions(geometry.Any))
	assert.NoError(t, r.Wait(context.Background()), "Wait without a cycle returns immediately")
}

func TestResolver_Scenario_NodeAndTable(t *testing.T) {
	f := newFixture()
	f.nodes.add(&fakeNode{id: "a0", typ: "buffer", schema: fetchedSchema(core.GeometryPolygon)})
	f.layers.own("a0", &fakeLayer{name: "Layer1", color: "#F15743"})
	f.tables.pending = []core.TableRecord{
		fakeTable{id: "T1", name: "T1", geom: []core.GeometryType{core.GeometryPoint}},
	}
	r := f.resolver(t)

	fetchAndWait(t, r)

	polygons := r.SelectOptions(geometry.Parse("polygon"))
	require.Len(t, polygons, 1)
	node, ok := polygons[0].(core.NodeOption)
	require.True(t, ok, "polygon option should be a node option")
	assert.Equal(t, core.NodeOption{
		ID:           "a0",
		Text:         "a0",
		GeometryType: core.GeometryPolygon,
		LayerName:    "Layer1",
		LayerColor:   "#F15743",
		Title:        "Area of influence",
	}, node)

	points := r.SelectOptions(geometry.Parse("point"))
	require.Len(t, points, 1)
	assert.Equal(t, core.TableOption{ID: "T1", Text: "T1", GeometryType: core.GeometryPoint}, points[0])
	assert.Equal(t, core.OptionKindTable, points[0].Kind())

	all := r.SelectOptions(geometry.Any)
	assert.Equal(t, []string{"a0", "T1"}, ids(all), "node options come first")
}

func TestResolver_ZeroNodes_TableFetchFails(t *testing.T) {
	f := newFixture()
	f.tables.err = errBoom
	r := f.resolver(t)

	fetchAndWait(t, r)

	assert.Empty(t, r.SelectOptions(geometry.Any))
	assert.Equal(t, 1, f.tables.fetchCount())
}

func TestResolver_TableFetchFailure_KeepsNodeOptions(t *testing.T) {
	f := newFixture()
	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: fetchedSchema(core.GeometryLine)})
	f.layers.own("a0", &fakeLayer{name: "Roads"})
	f.tables.err = errBoom
	r := f.resolver(t)

	fetchAndWait(t, r)

	assert.Equal(t, []string{"a0"}, ids(r.SelectOptions(geometry.Any)))
}

func TestResolver_SelectOptions_EmptyWhileFetching(t *testing.T) {
	f := newFixture()
	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: fetchedSchema(core.GeometryPoint)})
	f.layers.own("a0", &fakeLayer{name: "Stores"})
	f.tables.pending = []core.TableRecord{
		fakeTable{id: "T1", name: "T1", geom: []core.GeometryType{core.GeometryPoint}},
	}
	r := f.resolver(t)

	// A completed cycle first, so there is data that must not leak.
	fetchAndWait(t, r)
	require.Len(t, r.SelectOptions(geometry.Any), 2)

	gate := f.tables.hold()
	r.Fetch(context.Background())
	require.True(t, r.Fetching())

	for _, accepted := range []geometry.Accepted{geometry.Any, geometry.Parse("point"), geometry.Parse("polygon"), nil} {
		opts := r.SelectOptions(accepted)
		assert.NotNil(t, opts)
		assert.Empty(t, opts, "filter %v", accepted)
	}

	close(gate)
	require.NoError(t, r.Wait(context.Background()))
	assert.Len(t, r.SelectOptions(geometry.Any), 2)
}

func TestResolver_Snapshot(t *testing.T) {
	f := newFixture()
	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: fetchedSchema(core.GeometryPoint)})
	f.layers.own("a0", &fakeLayer{name: "Stores"})
	f.tables.pending = []core.TableRecord{
		fakeTable{id: "T1", name: "T1", geom: []core.GeometryType{core.GeometryPoint}},
	}
	r := f.resolver(t)

	gate := f.tables.hold()
	r.Fetch(context.Background())

	opts, state := r.Snapshot(geometry.Any)
	assert.NotNil(t, opts)
	assert.Empty(t, opts)
	assert.True(t, state.Fetching)
	assert.Equal(t, uint64(1), state.Generation)

	close(gate)
	require.NoError(t, r.Wait(context.Background()))

	opts, state = r.Snapshot(geometry.Any)
	assert.Equal(t, []string{"a0", "T1"}, ids(opts))
	assert.False(t, state.Fetching)
	assert.Equal(t, uint64(1), state.Generation)
	assert.Equal(t, 1, state.NodeCount)
}

func TestResolver_UnownedNodeNeverOffered(t *testing.T) {
	f := newFixture()
	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: fetchedSchema(core.GeometryPolygon)})
	f.nodes.add(&fakeNode{id: "x1", typ: "intersection", schema: fetchedSchema(core.GeometryPolygon)})
	f.nodes.add(&fakeNode{id: "x2", typ: "intersection", schema: idleSchema(core.GeometryPolygon)})
	f.layers.own("a0", &fakeLayer{name: "Zones"})
	r := f.resolver(t)

	fetchAndWait(t, r)

	for _, accepted := range []geometry.Accepted{geometry.Any, geometry.Parse("polygon"), geometry.Parse("point")} {
		assert.NotContains(t, ids(r.SelectOptions(accepted)), "x1")
		assert.NotContains(t, ids(r.SelectOptions(accepted)), "x2")
	}
	assert.Equal(t, []string{"a0"}, ids(r.SelectOptions(geometry.Any)))
}

func TestResolver_NodeSchemaStates(t *testing.T) {
	f := newFixture()
	fetched := fetchedSchema(core.GeometryPoint)
	idle := idleSchema(core.GeometryLine)
	unfetchable := &fakeSchema{status: core.SchemaUnfetchable, result: core.GeometryPolygon}
	failing := idleSchema(core.GeometryPolygon)
	failing.err = errBoom
	noGeom := idleSchema(core.GeometryNone)

	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: fetched})
	f.nodes.add(&fakeNode{id: "a1", typ: "source", schema: idle})
	f.nodes.add(&fakeNode{id: "a2", typ: "source", schema: unfetchable})
	f.nodes.add(&fakeNode{id: "a3", typ: "source", schema: failing})
	f.nodes.add(&fakeNode{id: "a4", typ: "source", schema: noGeom})
	f.nodes.add(&fakeNode{id: "a5", typ: "source", schema: nil})
	for _, id := range []string{"a0", "a1", "a2", "a3", "a4", "a5"} {
		f.layers.own(id, &fakeLayer{name: "Layer " + id})
	}
	r := f.resolver(t)

	fetchAndWait(t, r)

	assert.Equal(t, 0, fetched.fetchCount(), "fetched schema is not refetched")
	assert.Equal(t, 1, idle.fetchCount())
	assert.Equal(t, 0, unfetchable.fetchCount(), "unfetchable schema is never fetched")
	assert.Equal(t, 1, failing.fetchCount())
	assert.Equal(t, core.SchemaFailed, failing.Status())

	assert.ElementsMatch(t, []string{"a0", "a1"}, ids(r.SelectOptions(geometry.Any)))
	assert.Equal(t, []string{"a1"}, ids(r.SelectOptions(geometry.Parse("line"))))
}

func TestResolver_NoDuplicateIdentifiers(t *testing.T) {
	f := newFixture()
	dup := &fakeNode{id: "a0", typ: "source", schema: idleSchema(core.GeometryPoint)}
	f.nodes.add(dup)
	f.nodes.add(dup)
	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: fetchedSchema(core.GeometryPoint)})
	f.layers.own("a0", &fakeLayer{name: "Stores"})
	f.tables.pending = []core.TableRecord{
		fakeTable{id: "T1", name: "stores", geom: []core.GeometryType{core.GeometryPoint}},
		fakeTable{id: "T1", name: "stores copy", geom: []core.GeometryType{core.GeometryPoint}},
		fakeTable{id: "T2", name: "roads", geom: []core.GeometryType{core.GeometryLine}},
	}
	r := f.resolver(t)

	// Run two cycles; the second must start from an empty cache.
	fetchAndWait(t, r)
	fetchAndWait(t, r)

	all := r.SelectOptions(geometry.Any)
	assert.Equal(t, []string{"a0", "T1", "T2"}, ids(all))
	assert.Equal(t, "stores", all[1].Label(), "first record of a repeated id wins")
}

func TestResolver_TableOptions(t *testing.T) {
	f := newFixture()
	f.tables.pending = []core.TableRecord{
		fakeTable{id: "t-1", name: "stores", geom: []core.GeometryType{core.GeometryPoint}},
		fakeTable{id: "t-2", name: "mixed", geom: []core.GeometryType{core.GeometryPolygon, core.GeometryPoint}},
		fakeTable{id: "t-3", name: "attributes"},
	}
	r := f.resolver(t)

	fetchAndWait(t, r)

	assert.Equal(t, []string{"t-1"}, ids(r.SelectOptions(geometry.Parse("point"))), "only the primary geometry counts")
	assert.Equal(t, []string{"t-2"}, ids(r.SelectOptions(geometry.Parse("polygon"))))
	assert.Equal(t, []string{"t-1", "t-2", "t-3"}, ids(r.SelectOptions(geometry.Any)), "wildcard keeps geometry-less tables")
	assert.Empty(t, r.SelectOptions(geometry.Accepted{}))

	labels := []string{}
	for _, o := range r.SelectOptions(geometry.Any) {
		labels = append(labels, o.Label())
	}
	assert.Equal(t, []string{"stores", "mixed", "attributes"}, labels)
}

func TestResolver_LayerMetadataResolvedAtReadTime(t *testing.T) {
	f := newFixture()
	f.nodes.add(&fakeNode{id: "a1", typ: "trade-area", schema: fetchedSchema(core.GeometryPolygon)})
	layer := &fakeLayer{name: "Before", color: "#000000"}
	f.layers.own("a1", layer)
	r := f.resolver(t)

	fetchAndWait(t, r)

	first := r.SelectOptions(geometry.Any)[0].(core.NodeOption)
	assert.Equal(t, "Before", first.LayerName)

	f.layers.own("a1", &fakeLayer{name: "After", color: "#ffffff"})

	second := r.SelectOptions(geometry.Any)[0].(core.NodeOption)
	assert.Equal(t, "After", second.LayerName)
	assert.Equal(t, "#ffffff", second.LayerColor)
}

func TestResolver_CustomTitler(t *testing.T) {
	f := newFixture()
	f.nodes.add(&fakeNode{id: "a1", typ: "buffer", schema: fetchedSchema(core.GeometryPolygon)})
	f.layers.own("a1", &fakeLayer{name: "L"})
	r := f.resolver(t, func(c *Config) {
		c.Titler = func(n core.AnalysisNode) string { return "custom " + n.ID() }
	})

	fetchAndWait(t, r)

	opt := r.SelectOptions(geometry.Any)[0].(core.NodeOption)
	assert.Equal(t, "custom a1", opt.Title)
}

func TestResolver_NodesAddedDuringCycleAreNotCovered(t *testing.T) {
	f := newFixture()
	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: fetchedSchema(core.GeometryPoint)})
	f.layers.own("a0", &fakeLayer{name: "L0"})
	f.layers.own("b0", &fakeLayer{name: "L1"})
	r := f.resolver(t)

	gate := f.tables.hold()
	r.Fetch(context.Background())

	late := idleSchema(core.GeometryPoint)
	f.nodes.add(&fakeNode{id: "b0", typ: "source", schema: late})
	close(gate)
	require.NoError(t, r.Wait(context.Background()))

	assert.Equal(t, 0, late.fetchCount())
	assert.Equal(t, []string{"a0"}, ids(r.SelectOptions(geometry.Any)))

	fetchAndWait(t, r)
	assert.Equal(t, []string{"a0", "b0"}, ids(r.SelectOptions(geometry.Any)))
}

func TestResolver_SupersededCycleIsDiscarded(t *testing.T) {
	f := newFixture()
	slow := idleSchema(core.GeometryPoint)
	slow.gate = make(chan struct{})
	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: slow})
	f.layers.own("a0", &fakeLayer{name: "Slow"})
	r := f.resolver(t)

	r.Fetch(context.Background())
	require.Equal(t, uint64(1), r.State().Generation)
	require.Eventually(t, func() bool { return f.tables.fetchCount() == 1 }, time.Second, time.Millisecond)

	// The second cycle no longer iterates a0, but a0 stays resolvable.
	f.nodes.hide("a0")
	tableGate := f.tables.hold()
	r.Fetch(context.Background())
	require.Equal(t, uint64(2), r.State().Generation)

	// Cycle 1 finishes first; its result and settlement must be ignored.
	close(slow.gate)
	require.Eventually(t, func() bool { return slow.Status() == core.SchemaFetched }, time.Second, 5*time.Millisecond)
	assert.True(t, r.Fetching(), "a superseded cycle must not clear the flag")

	close(tableGate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))

	assert.Empty(t, r.SelectOptions(geometry.Any), "results of cycle 1 must not leak into cycle 2")
	assert.Equal(t, 0, r.State().NodeCount)
}

func TestResolver_Wait_ContextCancelled(t *testing.T) {
	f := newFixture()
	gate := f.tables.hold()
	r := f.resolver(t)

	r.Fetch(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
	assert.True(t, r.Fetching())

	close(gate)
	require.NoError(t, r.Wait(context.Background()))
}

func TestResolver_FetchTimeout(t *testing.T) {
	f := newFixture()
	stuck := idleSchema(core.GeometryPoint)
	stuck.gate = make(chan struct{})
	defer close(stuck.gate)
	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: stuck})
	f.layers.own("a0", &fakeLayer{name: "Stuck"})
	f.tables.hold()
	r := f.resolver(t, func(c *Config) { c.FetchTimeout = 20 * time.Millisecond })

	fetchAndWait(t, r)

	assert.Empty(t, r.SelectOptions(geometry.Any))
	assert.Equal(t, core.SchemaFailed, stuck.Status())
}

func TestResolver_ConcurrencyLimit(t *testing.T) {
	f := newFixture()
	for _, id := range []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"} {
		f.nodes.add(&fakeNode{id: id, typ: "source", schema: idleSchema(core.GeometryPoint)})
		f.layers.own(id, &fakeLayer{name: id})
	}
	r := f.resolver(t, func(c *Config) { c.MaxConcurrentFetches = 1 })

	fetchAndWait(t, r)

	assert.Len(t, r.SelectOptions(geometry.Parse("point")), 8)
}

func TestResolver_Subscribe(t *testing.T) {
	f := newFixture()
	gate := f.tables.hold()
	r := f.resolver(t)

	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	r.Fetch(context.Background())
	select {
	case st := <-ch:
		assert.True(t, st.Fetching)
		assert.Equal(t, uint64(1), st.Generation)
	case <-time.After(time.Second):
		t.Fatal("no fetching transition")
	}

	close(gate)
	select {
	case st := <-ch:
		assert.False(t, st.Fetching)
	case <-time.After(time.Second):
		t.Fatal("no settled transition")
	}
}

func TestResolver_CreateSourceNodeUnlessExisting(t *testing.T) {
	f := newFixture()
	f.nodes.add(&fakeNode{id: "a0", typ: "source", schema: fetchedSchema(core.GeometryPoint)})
	f.tables.pending = []core.TableRecord{
		fakeTable{id: "9f1c", name: "populated_places", geom: []core.GeometryType{core.GeometryPoint}},
		fakeTable{id: "77ab", name: "populated_places", geom: []core.GeometryType{core.GeometryPoint}},
	}
	r := f.resolver(t)
	fetchAndWait(t, r)
	ctx := context.Background()

	require.NoError(t, r.CreateSourceNodeUnlessExisting(ctx, "9f1c"))
	require.NoError(t, r.CreateSourceNodeUnlessExisting(ctx, "9f1c"))
	require.NoError(t, r.CreateSourceNodeUnlessExisting(ctx, "77ab"))

	created := f.nodes.createdSpecs()
	require.Len(t, created, 1, "same table name yields one source node")
	assert.Equal(t, core.SourceNodeSpec{ID: "populated_places", TableName: "populated_places"}, created[0])

	_, ok := f.nodes.Get("populated_places")
	assert.True(t, ok)
	_, ok = f.nodes.Get("9f1c")
	assert.False(t, ok, "the node is keyed by table name, not table id")

	// Existing node ids and unknown ids are no-ops.
	require.NoError(t, r.CreateSourceNodeUnlessExisting(ctx, "a0"))
	require.NoError(t, r.CreateSourceNodeUnlessExisting(ctx, "nope"))
	assert.Len(t, f.nodes.createdSpecs(), 1)
}

func TestResolver_CreateSourceNode_Error(t *testing.T) {
	f := newFixture()
	f.tables.pending = []core.TableRecord{fakeTable{id: "T1", name: "stores"}}
	f.nodes.err = errBoom
	r := f.resolver(t)
	fetchAndWait(t, r)

	err := r.CreateSourceNodeUnlessExisting(context.Background(), "T1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "stores")
}
