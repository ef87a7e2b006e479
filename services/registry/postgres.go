package registry

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glimpse-dev/glimpse-go/pkg/database"
	"github.com/glimpse-dev/glimpse-go/pkg/snapshot"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresStore is a PostgreSQL-backed implementation of Store.
type PostgresStore struct {
	db     *database.DB
	logger *slog.Logger
}

// NewPostgresStore creates a Postgres store and applies pending schema
// migrations.
func NewPostgresStore(ctx context.Context, db *database.DB, logger *slog.Logger) (*PostgresStore, error) {
	migrator := database.NewMigrator(db, "registry")
	if err := migrator.LoadMigrations(migrationFiles, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: logger.With("component", "registry-store"),
	}, nil
}

const breakpointColumns = `id, service_name, file_path, line_number, function_name, label,
	enabled, expire_at, max_captures, capture_count, created_at, updated_at`

func scanBreakpoint(row interface{ Scan(...any) error }) (Breakpoint, error) {
	var bp Breakpoint
	var expireAt sql.NullTime
	err := row.Scan(
		&bp.ID, &bp.ServiceName, &bp.FilePath, &bp.LineNumber, &bp.FunctionName,
		&bp.Label, &bp.Enabled, &expireAt, &bp.MaxCaptures, &bp.CaptureCount,
		&bp.CreatedAt, &bp.UpdatedAt,
	)
	if err != nil {
		return Breakpoint{}, err
	}
	if expireAt.Valid {
		t := expireAt.Time
		bp.ExpireAt = &t
	}
	return bp, nil
}

func (s *PostgresStore) ListActive(ctx context.Context, service string) ([]Breakpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM breakpoints
		WHERE service_name = $1
		  AND enabled
		  AND (expire_at IS NULL OR expire_at > NOW())
		  AND (max_captures <= 0 OR capture_count < max_captures)
		ORDER BY created_at`, breakpointColumns)

	rows, err := s.db.QueryContext(ctx, query, service)
	if err != nil {
		return nil, fmt.Errorf("failed to list breakpoints: %w", err)
	}
	defer rows.Close()

	var results []Breakpoint
	for rows.Next() {
		bp, err := scanBreakpoint(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, bp)
	}

	return results, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, req snapshot.AutoRegisterRequest) (Breakpoint, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO breakpoints (id, service_name, file_path, line_number, function_name, label)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (service_name, function_name, label) DO UPDATE
		SET file_path = EXCLUDED.file_path,
		    line_number = EXCLUDED.line_number,
		    updated_at = NOW()
		RETURNING %s, (xmax = 0) AS created`, breakpointColumns)

	var bp Breakpoint
	var expireAt sql.NullTime
	var created bool
	err := s.db.QueryRowContext(ctx, query,
		uuid.NewString(), req.ServiceName, req.FilePath, req.LineNumber, req.FunctionName, req.Label,
	).Scan(
		&bp.ID, &bp.ServiceName, &bp.FilePath, &bp.LineNumber, &bp.FunctionName,
		&bp.Label, &bp.Enabled, &expireAt, &bp.MaxCaptures, &bp.CaptureCount,
		&bp.CreatedAt, &bp.UpdatedAt, &created,
	)
	if err != nil {
		return Breakpoint{}, false, fmt.Errorf("failed to upsert breakpoint: %w", err)
	}
	if expireAt.Valid {
		t := expireAt.Time
		bp.ExpireAt = &t
	}

	return bp, created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Breakpoint, error) {
	query := fmt.Sprintf("SELECT %s FROM breakpoints WHERE id = $1", breakpointColumns)

	bp, err := scanBreakpoint(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get breakpoint: %w", err)
	}

	return &bp, nil
}

func (s *PostgresStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE breakpoints SET enabled = $2, updated_at = NOW() WHERE id = $1", id, enabled)
	if err != nil {
		return fmt.Errorf("failed to update breakpoint: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordCapture(ctx context.Context, snap snapshot.Snapshot) (CapturedSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CapturedSnapshot{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE breakpoints SET capture_count = capture_count + 1, updated_at = NOW() WHERE id = $1",
		snap.BreakpointID)
	if err != nil {
		return CapturedSnapshot{}, fmt.Errorf("failed to count capture: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return CapturedSnapshot{}, err
	}
	if affected == 0 {
		return CapturedSnapshot{}, ErrNotFound
	}

	captured := CapturedSnapshot{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
		Snapshot:   snap,
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return CapturedSnapshot{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, breakpoint_id, service_name, payload, received_at) VALUES ($1, $2, $3, $4, $5)",
		captured.ID, snap.BreakpointID, snap.ServiceName, payload, captured.ReceivedAt,
	); err != nil {
		return CapturedSnapshot{}, fmt.Errorf("failed to store snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return CapturedSnapshot{}, fmt.Errorf("failed to commit capture: %w", err)
	}

	return captured, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, service string, limit int) ([]CapturedSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload, received_at FROM snapshots WHERE service_name = $1 ORDER BY received_at DESC LIMIT $2",
		service, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var results []CapturedSnapshot
	for rows.Next() {
		var captured CapturedSnapshot
		var payload []byte
		if err := rows.Scan(&captured.ID, &payload, &captured.ReceivedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &captured.Snapshot); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "id", captured.ID, "error", err)
			continue
		}
		results = append(results, captured)
	}

	return results, rows.Err()
}

func (s *PostgresStore) RecordMetrics(ctx context.Context, payload MetricsPayload) (int, error) {
	count := 0
	for _, records := range payload.Metrics {
		for _, rec := range records {
			tags, err := json.Marshal(rec.Tags)
			if err != nil {
				return count, fmt.Errorf("failed to encode tags: %w", err)
			}
			if _, err := s.db.ExecContext(ctx,
				"INSERT INTO metric_records (name, tags, value, type, recorded_at) VALUES ($1, $2, $3, $4, $5)",
				rec.Name, tags, rec.Value, rec.Type, rec.Timestamp,
			); err != nil {
				return count, fmt.Errorf("failed to store metric: %w", err)
			}
			count++
		}
	}

	return count, nil
}

var _ Store = (*PostgresStore)(nil)
