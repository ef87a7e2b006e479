package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimpse-dev/glimpse-go/cli/internal/output"
	"github.com/glimpse-dev/glimpse-go/pkg/snapshot"
	"github.com/glimpse-dev/glimpse-go/pkg/transport"
)

var breakpointsCmd = &cobra.Command{
	Use:   "breakpoints",
	Short: "Breakpoint operations",
	Long:  "Commands for listing and managing breakpoints in the registry.",
}

var breakpointsListCmd = &cobra.Command{
	Use:   "list <service>",
	Short: "List active breakpoints for a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := transport.NewRegistryClient(cfg.RegistryURL, cfg.APIKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		breakpoints, err := client.FetchActive(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to list breakpoints: %w", err)
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(breakpoints)
		}

		table := output.Table{
			Headers: []string{"ID", "LOCATION", "LABEL", "ENABLED", "CAPTURES"},
			Rows:    make([][]string, len(breakpoints)),
		}
		for i, bp := range breakpoints {
			captures := fmt.Sprintf("%d", bp.CaptureCount)
			if bp.MaxCaptures > 0 {
				captures = fmt.Sprintf("%d/%d", bp.CaptureCount, bp.MaxCaptures)
			}
			table.Rows[i] = []string{
				output.TruncateID(bp.ID, 8),
				fmt.Sprintf("%s:%d (%s)", bp.FilePath, bp.LineNumber, bp.FunctionName),
				bp.Label,
				fmt.Sprintf("%t", bp.Enabled),
				captures,
			}
		}

		w := output.NewWriter("table")
		return w.Print(table)
	},
}

var breakpointsRegisterCmd = &cobra.Command{
	Use:   "register <service>",
	Short: "Register a breakpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		function, _ := cmd.Flags().GetString("function")
		label, _ := cmd.Flags().GetString("label")
		file, _ := cmd.Flags().GetString("file")
		line, _ := cmd.Flags().GetInt("line")

		if function == "" {
			return fmt.Errorf("--function is required")
		}

		client := transport.NewRegistryClient(cfg.RegistryURL, cfg.APIKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		bp, err := client.AutoRegister(ctx, snapshot.AutoRegisterRequest{
			ServiceName:  args[0],
			FilePath:     file,
			LineNumber:   line,
			FunctionName: function,
			Label:        label,
		})
		if err != nil {
			return fmt.Errorf("failed to register breakpoint: %w", err)
		}

		output.Success("registered breakpoint %s at %s", bp.ID, bp.FunctionKey())
		return nil
	},
}

var breakpointsEnableCmd = &cobra.Command{
	Use:   "enable <breakpoint-id>",
	Short: "Enable a breakpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setBreakpointEnabled(args[0], true)
	},
}

var breakpointsDisableCmd = &cobra.Command{
	Use:   "disable <breakpoint-id>",
	Short: "Disable a breakpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setBreakpointEnabled(args[0], false)
	},
}

func setBreakpointEnabled(id string, enabled bool) error {
	body, _ := json.Marshal(map[string]any{"enabled": enabled})
	url := fmt.Sprintf("%s/sdk/breakpoints/%s/enabled", cfg.RegistryURL, id)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", cfg.APIKey)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update breakpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to update breakpoint: status %d", resp.StatusCode)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	output.Success("breakpoint %s %s", id, state)
	return nil
}

func init() {
	breakpointsRegisterCmd.Flags().String("function", "", "Function name (required)")
	breakpointsRegisterCmd.Flags().String("label", "", "Capture label")
	breakpointsRegisterCmd.Flags().String("file", "", "Source file path")
	breakpointsRegisterCmd.Flags().Int("line", 0, "Line number")

	breakpointsCmd.AddCommand(breakpointsListCmd)
	breakpointsCmd.AddCommand(breakpointsRegisterCmd)
	breakpointsCmd.AddCommand(breakpointsEnableCmd)
	breakpointsCmd.AddCommand(breakpointsDisableCmd)
}
