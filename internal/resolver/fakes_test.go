package resolver

import (
	"context"
	"errors"
	"sync"

	"github.com/leapstack-labs/mapsource/pkg/core"
)

// fakeSchema is a QuerySchema whose fetch can be held open with gate.
type fakeSchema struct {
	mu      sync.Mutex
	status  core.SchemaStatus
	geom    core.GeometryType
	result  core.GeometryType
	err     error
	gate    chan struct{}
	fetches int
}

func fetchedSchema(geom core.GeometryType) *fakeSchema {
	return &fakeSchema{status: core.SchemaFetched, geom: geom, result: geom}
}

func idleSchema(result core.GeometryType) *fakeSchema {
	return &fakeSchema{status: core.SchemaIdle, result: result}
}

func (s *fakeSchema) Status() core.SchemaStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSchema) SimpleGeometry() core.GeometryType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geom
}

func (s *fakeSchema) Fetch(ctx context.Context) error {
	s.mu.Lock()
	s.fetches++
	s.status = core.SchemaFetching
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			s.mu.Lock()
			s.status = core.SchemaFailed
			s.mu.Unlock()
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		s.status = core.SchemaFailed
		return s.err
	}
	s.status = core.SchemaFetched
	s.geom = s.result
	return nil
}

func (s *fakeSchema) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type fakeNode struct {
	id     string
	typ    string
	schema core.QuerySchema
}

func (n *fakeNode) ID() string               { return n.id }
func (n *fakeNode) Type() string             { return n.typ }
func (n *fakeNode) Schema() core.QuerySchema { return n.schema }

type fakeNodes struct {
	mu      sync.Mutex
	list    []core.AnalysisNode
	byID    map[string]core.AnalysisNode
	created []core.SourceNodeSpec
	err     error
}

func newFakeNodes(nodes ...*fakeNode) *fakeNodes {
	f := &fakeNodes{byID: make(map[string]core.AnalysisNode)}
	for _, n := range nodes {
		f.add(n)
	}
	return f
}

func (f *fakeNodes) add(n *fakeNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = append(f.list, n)
	f.byID[n.id] = n
}

// hide removes a node from iteration while keeping it resolvable by id.
func (f *fakeNodes) hide(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.list {
		if n.ID() == id {
			f.list = append(f.list[:i:i], f.list[i+1:]...)
			return
		}
	}
}

func (f *fakeNodes) Nodes() []core.AnalysisNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.AnalysisNode(nil), f.list...)
}

func (f *fakeNodes) Get(id string) (core.AnalysisNode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	return n, ok
}

func (f *fakeNodes) CreateSourceNode(_ context.Context, spec core.SourceNodeSpec) (core.AnalysisNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if n, ok := f.byID[spec.ID]; ok {
		return n, nil
	}
	n := &fakeNode{id: spec.ID, typ: "source", schema: idleSchema(core.GeometryNone)}
	f.list = append(f.list, n)
	f.byID[n.id] = n
	f.created = append(f.created, spec)
	return n, nil
}

func (f *fakeNodes) createdSpecs() []core.SourceNodeSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.SourceNodeSpec(nil), f.created...)
}

type fakeLayer struct {
	name  string
	color string
}

func (l *fakeLayer) Name() string  { return l.name }
func (l *fakeLayer) Color() string { return l.color }

// fakeLayers maps node ids to their owning layer.
type fakeLayers struct {
	mu     sync.Mutex
	owners map[string]*fakeLayer
}

func newFakeLayers() *fakeLayers {
	return &fakeLayers{owners: make(map[string]*fakeLayer)}
}

func (f *fakeLayers) own(nodeID string, l *fakeLayer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[nodeID] = l
}

func (f *fakeLayers) FindOwnerOfAnalysisNode(node core.AnalysisNode) (core.Layer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.owners[node.ID()]
	if !ok {
		return nil, false
	}
	return l, true
}

type fakeTable struct {
	id   string
	name string
	geom []core.GeometryType
}

func (t fakeTable) ID() string                         { return t.id }
func (t fakeTable) Name() string                       { return t.name }
func (t fakeTable) GeometryTypes() []core.GeometryType { return t.geom }

// fakeTables loads pending into records on Fetch. Each Fetch call takes the
// next gate from gates, if any, and blocks on it.
type fakeTables struct {
	mu      sync.Mutex
	pending []core.TableRecord
	records []core.TableRecord
	err     error
	gates   []chan struct{}
	fetches int
}

func newFakeTables(records ...core.TableRecord) *fakeTables {
	return &fakeTables{pending: records}
}

func (f *fakeTables) Fetch(ctx context.Context) error {
	f.mu.Lock()
	f.fetches++
	var gate chan struct{}
	if len(f.gates) > 0 {
		gate, f.gates = f.gates[0], f.gates[1:]
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append([]core.TableRecord(nil), f.pending...)
	return nil
}

func (f *fakeTables) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeTables) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates = append(f.gates, gate)
	return gate
}

func (f *fakeTables) Tables() []core.TableRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.TableRecord(nil), f.records...)
}

func (f *fakeTables) Get(id string) (core.TableRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.records {
		if t.ID() == id {
			return t, true
		}
	}
	return nil, false
}

var errBoom = errors.New("boom")
