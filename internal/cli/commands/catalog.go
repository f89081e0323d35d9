package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/mapsource/internal/catalog"
	"github.com/leapstack-labs/mapsource/internal/cli/output"
	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/internal/workspace"
	"github.com/leapstack-labs/mapsource/pkg/core"
	"github.com/spf13/cobra"
)

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and seed the table catalog",
	}
	cmd.AddCommand(newCatalogImportCommand())
	cmd.AddCommand(newCatalogListCommand())
	return cmd
}

func newCatalogImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import the datasets declared in the workspace file",
		Long: `Save every entry of the workspace file's datasets section into the
catalog. Datasets that already exist are updated in place.

Only the SQLite catalog accepts imports; a PostGIS catalog is read from
geometry_columns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContextWithStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			f, err := workspace.LoadFile(cc.Cfg.Workspace)
			if err != nil {
				return err
			}

			datasets := make([]catalog.Dataset, 0, len(f.Datasets))
			for _, spec := range f.Datasets {
				datasets = append(datasets, datasetFromSpec(spec))
			}

			saved, err := catalog.Import(cmd.Context(), cc.Store, datasets)
			if err != nil {
				return err
			}
			for _, d := range saved {
				cc.Renderer.Success(fmt.Sprintf("%s (%s)", d.Name, geometryList(d.Geometry)))
			}
			cc.Renderer.Println("")
			cc.Renderer.Printf("Imported %d datasets\n", len(saved))
			return nil
		},
	}
}

func datasetFromSpec(spec workspace.DatasetSpec) catalog.Dataset {
	d := catalog.Dataset{Name: spec.Name}
	for _, g := range spec.Geometry {
		if t := geometry.Classify(g); !t.IsZero() {
			d.Geometry = append(d.Geometry, t)
		}
	}
	return d
}

func newCatalogListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContextWithStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			datasets, err := cc.Store.ListDatasets(cmd.Context())
			if err != nil {
				return err
			}
			return renderDatasets(cc.Renderer, datasets)
		},
	}
}

func renderDatasets(r *output.Renderer, datasets []catalog.Dataset) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if datasets == nil {
			datasets = []catalog.Dataset{}
		}
		return r.JSON(datasets)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Datasets (%d)", len(datasets))))
		r.Println("")
		for _, d := range datasets {
			r.Println(output.FormatKeyValue(d.Name, geometryList(d.Geometry)))
		}
	default:
		if len(datasets) == 0 {
			r.Muted("No datasets. Run 'mapsource catalog import' to seed the catalog.")
			return nil
		}
		t := table.NewWriter()
		t.SetOutputMirror(r.Writer())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "Name", "Geometry"})
		for _, d := range datasets {
			t.AppendRow(table.Row{d.ID, d.Name, geometryList(d.Geometry)})
		}
		t.Render()
	}
	return nil
}

func geometryList(types []core.GeometryType) string {
	if len(types) == 0 {
		return "none"
	}
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
