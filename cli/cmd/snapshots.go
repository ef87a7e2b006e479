package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimpse-dev/glimpse-go/cli/internal/output"
	"github.com/glimpse-dev/glimpse-go/services/registry"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Snapshot operations",
	Long:  "Commands for inspecting captured snapshots.",
}

var snapshotsTailCmd = &cobra.Command{
	Use:   "tail <service>",
	Short: "Show recent snapshots for a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		url := fmt.Sprintf("%s/sdk/snapshots/recent/%s?limit=%d", cfg.RegistryURL, args[0], limit)
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-API-Key", cfg.APIKey)

		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch snapshots: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to fetch snapshots: status %d", resp.StatusCode)
		}

		var decoded struct {
			Snapshots []registry.CapturedSnapshot `json:"snapshots"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("failed to decode snapshots: %w", err)
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(decoded.Snapshots)
		}

		table := output.Table{
			Headers: []string{"ID", "LOCATION", "LABEL", "VARIABLES", "FLAGS", "RECEIVED"},
			Rows:    make([][]string, len(decoded.Snapshots)),
		}
		for i, snap := range decoded.Snapshots {
			table.Rows[i] = []string{
				output.TruncateID(snap.ID, 8),
				fmt.Sprintf("%s:%d", snap.FilePath, snap.LineNumber),
				snap.Label,
				fmt.Sprintf("%d", len(snap.Variables)),
				fmt.Sprintf("%d", len(snap.SecurityFlags)),
				snap.ReceivedAt.Format("15:04:05"),
			}
		}

		w := output.NewWriter("table")
		return w.Print(table)
	},
}

func init() {
	snapshotsTailCmd.Flags().Int("limit", 20, "Maximum number of snapshots to show")

	snapshotsCmd.AddCommand(snapshotsTailCmd)
}
