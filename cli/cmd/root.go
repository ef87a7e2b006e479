// Package cmd contains CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/glimpse-dev/glimpse-go/cli/internal/config"
)

var (
	cfg     *config.Config
	format  string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "glimpse",
	Short: "Glimpse CLI - application telemetry and live snapshots",
	Long: `Glimpse captures live variable snapshots from instrumented services
via remotely-controlled breakpoints.

This CLI talks to a breakpoint registry: it lists and registers
breakpoints, tails captured snapshots, and runs a local dev registry.

Examples:
  # List active breakpoints for a service
  glimpse breakpoints list checkout-service

  # Register a breakpoint by hand
  glimpse breakpoints register checkout-service --function checkout --label after-payment

  # Tail recent snapshots
  glimpse snapshots tail checkout-service

  # Run a local dev registry
  glimpse registry serve --port 8080
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.DefaultConfig()
		if format != "" {
			cfg.Format = format
		}
		cfg.Verbose = verbose
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&format, "output", "o", "", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(breakpointsCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd prints version info.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("glimpse version 0.1.0")
	},
}
