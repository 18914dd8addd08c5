package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"idbcore/internal/commandrouter/cliformat"
	"idbcore/internal/config"
	"idbcore/internal/target"
)

var (
	targetsOutputFormat string
	targetsRegistryPath string
)

func newTargetsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "targets",
		Short: "Inspect known simulators and devices",
	}
	c.AddCommand(newTargetsListCmd())
	return c
}

func newTargetsListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List known targets and their lifecycle state",
		RunE: func(c *cobra.Command, args []string) error {
			path := targetsRegistryPath
			if path == "" {
				path = config.Default().TargetRegistryPath
			}

			targets, err := registeredTargets(path)
			if err != nil {
				return err
			}
			out, err := cliformat.FormatTargets(targets, cliformat.Options{Format: cliformat.OutputFormat(targetsOutputFormat)})
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), out)
			return nil
		},
	}
	c.Flags().StringVar(&targetsOutputFormat, "output", "table", "output format: table|json|yaml")
	c.Flags().StringVar(&targetsRegistryPath, "registry", "", "path to the target inventory YAML file (defaults to config TargetRegistryPath)")
	return c
}

// registeredTargets reads the target inventory from path (spec §3). It
// is declared as a var so tests and alternate entry points can replace
// it without touching command wiring.
var registeredTargets = target.LoadRegistry
