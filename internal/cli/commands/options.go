package commands

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/mapsource/internal/cli/output"
	"github.com/leapstack-labs/mapsource/internal/filter"
	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/internal/resolver"
	"github.com/spf13/cobra"
)

// optionsFlags are shared by commands that list or pick sources.
type optionsFlags struct {
	types []string
	where string
}

func (f *optionsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.types, "types", []string{"*"}, "Accepted geometry types (point, line, polygon or *)")
	cmd.Flags().StringVar(&f.where, "where", "", "Filter expression over option fields, e.g. kind == \"node\"")
}

func (f *optionsFlags) accepted() geometry.Accepted {
	return geometry.Parse(f.types...)
}

// NewOptionsCommand creates the options command.
func NewOptionsCommand() *cobra.Command {
	var flags optionsFlags
	var noWait bool

	cmd := &cobra.Command{
		Use:   "options",
		Short: "List the sources accepted as analysis input",
		Long: `Fetch the table catalog and every analysis node schema, then list the
sources whose geometry is accepted.

Node options come first, annotated with the owning layer; tables follow.
Nodes without an owning layer are never offered.

With --no-wait the state is reported right after the fetch starts. The
list stays empty until the fetch settles.`,
		Example: `  # Every source
  mapsource options

  # Polygon or point sources
  mapsource options --types polygon,point

  # Only tables
  mapsource options --where 'kind == "dataset"'

  # Machine readable
  mapsource options -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pred, err := filter.Compile(flags.where)
			if err != nil {
				return err
			}

			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			doc, err := listOptions(cmd.Context(), cc.Resolver, flags.accepted(), pred, !noWait)
			if err != nil {
				return err
			}
			return cc.Renderer.Options(doc)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Report the state right after starting the fetch instead of waiting for it to settle (the list is empty while fetching)")

	return cmd
}

// listOptions runs a fetch cycle and reads the accepted options.
func listOptions(ctx context.Context, res *resolver.Resolver, accepted geometry.Accepted, pred *filter.Predicate, wait bool) (output.OptionsOutput, error) {
	res.Fetch(ctx)
	if wait {
		if err := res.Wait(ctx); err != nil {
			return output.OptionsOutput{}, fmt.Errorf("fetch did not settle: %w", err)
		}
	}

	selected, state := res.Snapshot(accepted)
	opts, err := pred.Apply(selected)
	if err != nil {
		return output.OptionsOutput{}, err
	}
	return output.OptionsOutput{
		Fetching:   state.Fetching,
		Generation: state.Generation,
		Filter:     accepted.String(),
		Options:    opts,
	}, nil
}
