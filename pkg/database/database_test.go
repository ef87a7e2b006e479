package database

import (
	"log/slog"
	"testing"
	"testing/fstest"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Host != "localhost" {
		t.Errorf("Host = %v, want %v", cfg.Host, "localhost")
	}
	if cfg.Port != 5432 {
		t.Errorf("Port = %v, want %v", cfg.Port, 5432)
	}
	if cfg.SSLMode != "disable" {
		t.Errorf("SSLMode = %v, want %v", cfg.SSLMode, "disable")
	}
	if cfg.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %v, want %v", cfg.MaxOpenConns, 25)
	}
	if cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want %v", cfg.ConnMaxLifetime, 5*time.Minute)
	}
}

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{
			name: "default config",
			cfg:  DefaultConfig(),
			want: "host=localhost port=5432 user=glimpse password=glimpse dbname=glimpse sslmode=disable",
		},
		{
			name: "custom config",
			cfg: &Config{
				Host:     "db.example.com",
				Port:     5433,
				User:     "registry",
				Password: "s3cret",
				Database: "registry",
				SSLMode:  "require",
			},
			want: "host=db.example.com port=5433 user=registry password=s3cret dbname=registry sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMigrator_LoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_add_snapshots.sql":      {Data: []byte("CREATE TABLE snapshots ()")},
		"migrations/001_create_breakpoints.sql": {Data: []byte("CREATE TABLE breakpoints ()")},
		"migrations/README.md":                  {Data: []byte("ignored")},
	}

	m := &Migrator{schema: "registry", logger: slog.Default()}
	if err := m.LoadMigrations(fsys, "migrations"); err != nil {
		t.Fatalf("LoadMigrations failed: %v", err)
	}

	if len(m.migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(m.migrations))
	}
	if m.migrations[0].Version != 1 || m.migrations[0].Name != "create_breakpoints" {
		t.Errorf("unexpected first migration: %+v", m.migrations[0])
	}
	if m.migrations[1].Version != 2 || m.migrations[1].Name != "add_snapshots" {
		t.Errorf("unexpected second migration: %+v", m.migrations[1])
	}
}

func TestMigrator_LoadMigrationsBadVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/abc_broken.sql": {Data: []byte("SELECT 1")},
	}

	m := &Migrator{schema: "registry", logger: slog.Default()}
	if err := m.LoadMigrations(fsys, "migrations"); err == nil {
		t.Error("expected error for non-numeric version prefix")
	}
}
