package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk workspace document.
//
//	layers:
//	  - letter: a
//	    name: Stores
//	    color: "#F15743"
//	nodes:
//	  - id: a0
//	    type: source
//	    table_name: stores
//	  - id: a1
//	    type: buffer
//	    params:
//	      source: a0
//	datasets:
//	  - name: stores
//	    geometry: [point]
type File struct {
	Layers   []LayerSpec   `yaml:"layers"`
	Nodes    []NodeSpec    `yaml:"nodes"`
	Datasets []DatasetSpec `yaml:"datasets,omitempty"`
}

// LayerSpec declares a map layer. A layer owns every analysis node whose
// id starts with its letter.
type LayerSpec struct {
	Letter string `yaml:"letter"`
	Name   string `yaml:"name"`
	Color  string `yaml:"color,omitempty"`
}

// NodeSpec declares an analysis node.
type NodeSpec struct {
	ID        string            `yaml:"id"`
	Type      string            `yaml:"type"`
	TableName string            `yaml:"table_name,omitempty"`
	Params    map[string]string `yaml:"params,omitempty"`
}

// DatasetSpec seeds the catalog with a dataset, see `mapsource catalog import`.
type DatasetSpec struct {
	Name     string   `yaml:"name"`
	Geometry []string `yaml:"geometry,omitempty"`
}

// LoadFile reads and decodes a workspace file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from user configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", path, err)
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse workspace %s: %w", path, err)
	}
	return f, nil
}

// Decode decodes a workspace document. An empty document is an empty
// workspace.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Encode writes f as YAML.
func (f *File) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}

func (f *File) validate() error {
	letters := make(map[string]bool, len(f.Layers))
	for i, l := range f.Layers {
		if !letterPattern.MatchString(l.Letter) {
			return fmt.Errorf("layer %d: invalid letter %q", i, l.Letter)
		}
		if letters[l.Letter] {
			return fmt.Errorf("layer %d: duplicate letter %q", i, l.Letter)
		}
		letters[l.Letter] = true
	}

	ids := make(map[string]bool, len(f.Nodes))
	for i, n := range f.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %d: missing id", i)
		}
		if n.Type == "" {
			return fmt.Errorf("node %s: missing type", n.ID)
		}
		if ids[n.ID] {
			return fmt.Errorf("node %s: duplicate id", n.ID)
		}
		ids[n.ID] = true
	}
	return nil
}
