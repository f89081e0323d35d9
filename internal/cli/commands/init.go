package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/mapsource/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new mapsource project",
		Long: `Initialize a new mapsource project.

This creates:
  - mapsource.yaml configuration file
  - workspace.yaml with a sample layer, analysis nodes and datasets
  - .gitignore excluding the local catalog`,
		Example: `  # Initialize in current directory
  mapsource init

  # Initialize in a new directory
  mapsource init my-map

  # Force overwrite existing files
  mapsource init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			// init runs before a project exists, so it never loads config
			mode, _ := cmd.Flags().GetString("output")
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(mode))
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "mapsource.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("mapsource.yaml already exists. Use --force to overwrite")
	}

	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.Success(f)
	}

	r.Println("")
	r.Success("mapsource project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Run 'mapsource catalog import' to seed the catalog")
	r.Println("  2. Run 'mapsource options' to list sources")
	r.Println("  3. Run 'mapsource serve' to expose them over HTTP")

	return nil
}
