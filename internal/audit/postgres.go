package audit

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations
var migrationsFS embed.FS

// Connect creates and validates a pgx connection pool.
func Connect(ctx context.Context, databaseURL string, logger *log.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to audit database")
	return pool, nil
}

// Migrate runs all pending up migrations embedded in the binary.
func Migrate(databaseURL string, logger *log.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("audit migrations applied")
	return nil
}

// PostgresRecorder writes audit entries to PostgreSQL.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// NewPostgresRecorder creates a recorder on an open pool. Close releases the pool.
func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) RecordUpload(ctx context.Context, rec UploadRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO share_uploads (group_id, file_count, total_bytes, created_at)
		 VALUES ($1, $2, $3, $4)`,
		rec.GroupID, rec.Files, rec.Bytes, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) RecordSweep(ctx context.Context, rec SweepRecord) error {
	var errText *string
	if rec.Error != "" {
		errText = &rec.Error
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO sweep_runs (started_at, scanned, deleted, failed, elapsed_ms, error)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.StartedAt, rec.Scanned, rec.Deleted, rec.Failed, rec.Elapsed.Milliseconds(), errText,
	)
	if err != nil {
		return fmt.Errorf("insert sweep run: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	s := &Stats{}
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(file_count), 0)::BIGINT,
		        COALESCE(SUM(total_bytes), 0)::BIGINT,
		        COUNT(*) FILTER (WHERE created_at >= $1)
		 FROM share_uploads`,
		startOfDay(now),
	).Scan(&s.TotalGroups, &s.TotalFiles, &s.TotalBytes, &s.GroupsToday)
	if err != nil {
		return nil, fmt.Errorf("upload stats: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(deleted), 0)::BIGINT,
		        COALESCE(SUM(failed), 0)::BIGINT,
		        MAX(started_at)
		 FROM sweep_runs`,
	).Scan(&s.SweepRuns, &s.ObjectsDeleted, &s.DeleteFailures, &s.LastSweepAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sweep stats: %w", err)
	}
	return s, nil
}

func (r *PostgresRecorder) Close() error {
	r.db.Close()
	return nil
}

var _ Recorder = (*PostgresRecorder)(nil)
