package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/mapsource/internal/cli/output"
	"github.com/leapstack-labs/mapsource/internal/workspace"
	"github.com/leapstack-labs/mapsource/pkg/core"
	"github.com/spf13/cobra"
)

// NewSourceCommand creates the source command group.
func NewSourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage analysis source nodes",
	}
	cmd.AddCommand(newSourceCreateCommand())
	cmd.AddCommand(newSourceListCommand())
	return cmd
}

func newSourceCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <id>",
		Short: "Create a source node for a picked option",
		Long: `Materialize a picked option. When <id> names a catalog table, a source
node named after the table is created unless one already exists; running
the command twice creates one node. Any other id is taken to reference an
existing analysis node and nothing changes.`,
		Example: `  mapsource source create 0b5a1e2c-5a4f-4c1e-9d53-6f2f1f0a9d11`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			if err := cc.Tables.Fetch(ctx); err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}

			id := args[0]
			if err := cc.Resolver.CreateSourceNodeUnlessExisting(ctx, id); err != nil {
				return err
			}

			t, ok := cc.Tables.Get(id)
			if !ok {
				cc.Renderer.Muted(fmt.Sprintf("%s is not a catalog table, nothing created", id))
				return nil
			}
			cc.Renderer.Success(fmt.Sprintf("Source node %s ready", t.Name()))
			return nil
		},
	}
}

// nodeRow is the listing view of an analysis node.
type nodeRow struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Table    string `json:"table_name,omitempty"`
	Status   string `json:"status"`
	Geometry string `json:"geometry,omitempty"`
	Layer    string `json:"layer,omitempty"`
}

func newSourceListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List analysis nodes with their schema status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			cc.Resolver.Fetch(ctx)
			if err := cc.Resolver.Wait(ctx); err != nil {
				return err
			}
			return renderNodes(cc.Renderer, nodeRows(cc.Workspace))
		},
	}
}

func nodeRows(ws *workspace.Workspace) []nodeRow {
	nodes := ws.Nodes()
	rows := make([]nodeRow, 0, len(nodes))
	for _, n := range nodes {
		row := nodeRow{
			ID:     n.ID(),
			Type:   n.Type(),
			Status: string(n.Schema().Status()),
		}
		if wn, ok := n.(*workspace.Node); ok {
			row.Table = wn.TableName()
		}
		if n.Schema().Status() == core.SchemaFetched {
			row.Geometry = string(n.Schema().SimpleGeometry())
		}
		if layer, ok := ws.FindOwnerOfAnalysisNode(n); ok {
			row.Layer = layer.Name()
		}
		rows = append(rows, row)
	}
	return rows
}

func renderNodes(r *output.Renderer, rows []nodeRow) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rows)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Analysis nodes (%d)", len(rows))))
		r.Println("")
		for _, row := range rows {
			r.Printf("- **%s** (%s): %s", row.ID, row.Type, row.Status)
			if row.Geometry != "" {
				r.Printf(", %s", row.Geometry)
			}
			if row.Layer != "" {
				r.Printf(", layer %s", row.Layer)
			}
			r.Println("")
		}
	default:
		r.Header(1, fmt.Sprintf("Analysis nodes (%d)", len(rows)))
		t := table.NewWriter()
		t.SetOutputMirror(r.Writer())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "Type", "Table", "Status", "Geometry", "Layer"})
		for _, row := range rows {
			t.AppendRow(table.Row{row.ID, row.Type, row.Table, row.Status, row.Geometry, row.Layer})
		}
		t.Render()
	}
	return nil
}
