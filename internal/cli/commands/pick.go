package commands

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/leapstack-labs/mapsource/internal/cli/picker"
	"github.com/spf13/cobra"
)

// NewPickCommand creates the interactive pick command.
func NewPickCommand() *cobra.Command {
	var flags optionsFlags

	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Interactively pick a source for a new analysis",
		Long: `Open an interactive list of accepted sources. The list shows a spinner
while the catalog and node schemas are fetched.

Picking a table creates a source node for it unless one already exists.
Picking an analysis node leaves the workspace unchanged.`,
		Example: `  mapsource pick --types polygon`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.where != "" {
				return errors.New("--where is not supported by pick, use options")
			}

			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			updates := cc.Resolver.Subscribe()
			defer cc.Resolver.Unsubscribe(updates)
			cc.Resolver.Fetch(ctx)

			model := picker.New(cc.Resolver, flags.accepted(), updates)
			p := tea.NewProgram(model,
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()))
			final, err := p.Run()
			if err != nil {
				return fmt.Errorf("picker failed: %w", err)
			}

			m, ok := final.(picker.Model)
			if !ok {
				return nil
			}
			opt, ok := m.Selected()
			if !ok {
				return nil
			}

			if err := cc.Resolver.CreateSourceNodeUnlessExisting(ctx, opt.Identifier()); err != nil {
				return err
			}
			cc.Renderer.Success(fmt.Sprintf("Picked %s (%s)", opt.Label(), opt.Kind()))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
