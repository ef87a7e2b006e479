package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimpse-dev/glimpse-go/pkg/telemetry"
	"github.com/glimpse-dev/glimpse-go/services/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Registry operations",
	Long:  "Commands for running a local dev registry.",
}

var registryServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local dev registry with in-memory storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		apiKey, _ := cmd.Flags().GetString("api-key")

		logLevel := "info"
		if cfg.Verbose {
			logLevel = "debug"
		}

		tp, err := telemetry.Setup(context.Background(), telemetry.Config{
			ServiceName: "glimpse-registry",
			LogLevel:    logLevel,
			LogFormat:   "text",
		})
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		handler := registry.NewHandler(registry.NewMemoryStore(), apiKey, tp.Logger())

		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler.Router(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		tp.Logger().Info("starting dev registry", "port", port)
		return server.ListenAndServe()
	},
}

func init() {
	registryServeCmd.Flags().Int("port", 8080, "Port to listen on")
	registryServeCmd.Flags().String("api-key", "", "Require this X-API-Key (empty disables auth)")

	registryCmd.AddCommand(registryServeCmd)
}
