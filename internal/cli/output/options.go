package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/mapsource/pkg/core"
)

// OptionsOutput is the JSON document of an option listing.
type OptionsOutput struct {
	Fetching   bool                `json:"fetching"`
	Generation uint64              `json:"generation"`
	Filter     string              `json:"filter"`
	Options    []core.SourceOption `json:"options"`
}

// Options renders an option listing in the effective mode.
func (r *Renderer) Options(doc OptionsOutput) error {
	if doc.Options == nil {
		doc.Options = []core.SourceOption{}
	}

	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(doc)
	case ModeMarkdown:
		r.optionsMarkdown(doc)
	default:
		r.optionsText(doc)
	}
	return nil
}

func (r *Renderer) optionsText(doc OptionsOutput) {
	if doc.Fetching {
		r.Muted("Still loading sources…")
		return
	}
	if len(doc.Options) == 0 {
		r.Muted(fmt.Sprintf("No sources match %s", doc.Filter))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "ID", "Label", "Kind", "Geometry", "Layer", "Title"})
	for _, opt := range doc.Options {
		row := table.Row{" ", opt.Identifier(), opt.Label(), string(opt.Kind()), string(opt.Geometry()), "", ""}
		if n, ok := opt.(core.NodeOption); ok {
			row[0] = r.Swatch(n.LayerColor)
			row[5] = n.LayerName
			row[6] = n.Title
		}
		t.AppendRow(row)
	}
	t.Render()
	r.Muted(fmt.Sprintf("(%d sources)", len(doc.Options)))
}

func (r *Renderer) optionsMarkdown(doc OptionsOutput) {
	r.Println(FormatHeader(1, fmt.Sprintf("Sources (%d)", len(doc.Options))))
	r.Println("")
	r.Println(FormatKeyValue("Filter", doc.Filter))
	if doc.Fetching {
		r.Println(FormatKeyValue("Status", "fetching"))
		return
	}
	if len(doc.Options) == 0 {
		return
	}

	r.Println("")
	r.Println("| ID | Label | Kind | Geometry | Layer | Color | Title |")
	r.Println("| --- | --- | --- | --- | --- | --- | --- |")
	for _, opt := range doc.Options {
		cells := []string{opt.Identifier(), opt.Label(), string(opt.Kind()), string(opt.Geometry()), "", "", ""}
		if n, ok := opt.(core.NodeOption); ok {
			cells[4], cells[5], cells[6] = n.LayerName, n.LayerColor, n.Title
		}
		for i := range cells {
			cells[i] = escapeCell(cells[i])
		}
		r.Printf("| %s |\n", strings.Join(cells, " | "))
	}
}
