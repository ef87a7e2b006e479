package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/glimpse-dev/glimpse-go/pkg/config"
	"github.com/glimpse-dev/glimpse-go/pkg/database"
	"github.com/glimpse-dev/glimpse-go/pkg/telemetry"
	"github.com/glimpse-dev/glimpse-go/services/registry"
)

const serviceName = "glimpse-registry"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The registry is the collector; it never traces to itself.
	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		TracingEnabled: false,
		LogLevel:       cfg.LogLevel,
		LogFormat:      cfg.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tp.Shutdown(ctx)

	logger := tp.Logger()

	store, err := buildStore(ctx, logger)
	if err != nil {
		return err
	}

	handler := registry.NewHandler(store, os.Getenv("GLIMPSE_REGISTRY_API_KEY"), logger)

	port := 8080
	if raw := os.Getenv("GLIMPSE_REGISTRY_PORT"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			port = p
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting registry service", "port", port, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStore selects the storage backend: Postgres when a database host
// is configured, in-memory otherwise.
func buildStore(ctx context.Context, logger *slog.Logger) (registry.Store, error) {
	host := os.Getenv("GLIMPSE_DB_HOST")
	if host == "" {
		logger.Info("using in-memory store")
		return registry.NewMemoryStore(), nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.Host = host
	if raw := os.Getenv("GLIMPSE_DB_PORT"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			dbCfg.Port = p
		}
	}
	if user := os.Getenv("GLIMPSE_DB_USER"); user != "" {
		dbCfg.User = user
	}
	if password := os.Getenv("GLIMPSE_DB_PASSWORD"); password != "" {
		dbCfg.Password = password
	}
	if name := os.Getenv("GLIMPSE_DB_NAME"); name != "" {
		dbCfg.Database = name
	}

	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("using postgres store", "host", dbCfg.Host, "database", dbCfg.Database)
	return registry.NewPostgresStore(ctx, db.WithLogger(logger), logger)
}
