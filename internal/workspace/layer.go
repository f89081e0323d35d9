package workspace

import (
	"regexp"

	"github.com/leapstack-labs/mapsource/pkg/core"
)

var (
	letterPattern = regexp.MustCompile(`^[a-z]+$`)
	nodeIDPattern = regexp.MustCompile(`^([a-z]+)(\d+)$`)
)

// Layer is a map layer of the workspace.
type Layer struct {
	spec LayerSpec
}

// Letter returns the node id prefix owned by the layer.
func (l *Layer) Letter() string { return l.spec.Letter }

// Name returns the layer name.
func (l *Layer) Name() string { return l.spec.Name }

// Color returns the layer color.
func (l *Layer) Color() string { return l.spec.Color }

// LetterOf returns the layer letter of a node id: "a" for "a0", "ab" for
// "ab12". Ids without a letter-then-digits shape have no letter.
func LetterOf(nodeID string) (string, bool) {
	m := nodeIDPattern.FindStringSubmatch(nodeID)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Layers returns the layers in declaration order.
func (w *Workspace) Layers() []*Layer {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Layer, len(w.layers))
	copy(out, w.layers)
	return out
}

// FindOwnerOfAnalysisNode returns the layer whose letter prefixes the node id.
func (w *Workspace) FindOwnerOfAnalysisNode(node core.AnalysisNode) (core.Layer, bool) {
	if node == nil {
		return nil, false
	}
	letter, ok := LetterOf(node.ID())
	if !ok {
		return nil, false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	l, ok := w.byLetter[letter]
	if !ok {
		return nil, false
	}
	return l, true
}
