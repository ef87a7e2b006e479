package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimpse-dev/glimpse-go/cli/internal/output"
	"github.com/glimpse-dev/glimpse-go/pkg/config"
	"github.com/glimpse-dev/glimpse-go/pkg/snapshot"
	"github.com/glimpse-dev/glimpse-go/pkg/transport"
)

// captureCmd fires a test snapshot through a real client: it
// auto-registers the given location and submits one capture, which is
// useful for smoke-testing a registry deployment.
var captureCmd = &cobra.Command{
	Use:   "capture <service> [key=value ...]",
	Short: "Fire a test snapshot at the registry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		function, _ := cmd.Flags().GetString("function")
		label, _ := cmd.Flags().GetString("label")
		file, _ := cmd.Flags().GetString("file")
		line, _ := cmd.Flags().GetInt("line")

		vars := make(map[string]any)
		for _, arg := range args[1:] {
			key, value, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("variable %q is not key=value", arg)
			}
			vars[key] = value
		}

		sdkCfg := &config.Config{
			ServiceName:     args[0],
			APIKey:          cfg.APIKey,
			Endpoint:        cfg.RegistryURL,
			Enabled:         true,
			MaxCaptureDepth: 10,
			MaxStringLength: 1000,
		}
		if sdkCfg.Disabled() {
			return fmt.Errorf("GLIMPSE_API_KEY is not set")
		}

		registry := transport.NewRegistryClient(cfg.RegistryURL, cfg.APIKey)
		client := snapshot.NewClient(sdkCfg, snapshot.NewMemoryStore(), registry,
			snapshot.WithResolver(&snapshot.StaticResolver{
				Location: snapshot.Location{File: file, Line: line, Function: function},
			}),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client.CaptureSnapshot(ctx, label, vars)

		output.Success("capture fired for %s at %s:%d (%s)", args[0], file, line, function)
		output.Info("whether a snapshot was stored depends on the breakpoint state; check with: glimpse snapshots tail %s", args[0])
		return nil
	},
}

func init() {
	captureCmd.Flags().String("function", "main", "Function name for the test location")
	captureCmd.Flags().String("label", "cli-test", "Capture label")
	captureCmd.Flags().String("file", "main.go", "Source file path")
	captureCmd.Flags().Int("line", 1, "Line number")

	rootCmd.AddCommand(captureCmd)
}
