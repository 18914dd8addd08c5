// Package cmd implements the outer-process CLI surface (spec §6): it
// maps argv to CommandForwarder capability invocations. No business
// logic lives here — every subcommand constructs a request and either
// awaits a future or polls a session. Grounded on the teacher's
// cmd/root.go cobra wiring and exit-code convention.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeTimeout = 2
)

var rootCmd = &cobra.Command{
	Use:          "idbcored",
	Short:        "Drive iOS simulators and devices through a local control-plane daemon",
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command.
func SetVersion(v string) { rootCmd.Version = v }

// Execute is the CLI entry point called from main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "idbcored version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newTargetsCmd())
	rootCmd.AddCommand(newXCTestCmd())
	rootCmd.AddCommand(newVideoCmd())
	rootCmd.AddCommand(newHIDCmd())
	rootCmd.AddCommand(newCrashlogCmd())
	rootCmd.AddCommand(newUpdateCmd())
}
