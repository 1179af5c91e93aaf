package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder writes audit entries to a local SQLite file.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLite opens the database at path, creating directories and tables as needed.
func OpenSQLite(path string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One writer at a time; avoids SQLITE_BUSY under concurrent uploads.
	db.SetMaxOpenConns(1)

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS share_uploads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id TEXT NOT NULL,
	file_count INTEGER NOT NULL,
	total_bytes INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	scanned INTEGER NOT NULL,
	deleted INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	error TEXT
);
`)
	if err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// isoLayout is fixed width so stored timestamps sort correctly as text.
const isoLayout = "2006-01-02T15:04:05.000000000Z07:00"

func iso(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func (r *SQLiteRecorder) RecordUpload(ctx context.Context, rec UploadRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO share_uploads (group_id, file_count, total_bytes, created_at) VALUES (?, ?, ?, ?)`,
		rec.GroupID, rec.Files, rec.Bytes, iso(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) RecordSweep(ctx context.Context, rec SweepRecord) error {
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sweep_runs (started_at, scanned, deleted, failed, elapsed_ms, error) VALUES (?, ?, ?, ?, ?, ?)`,
		iso(rec.StartedAt), rec.Scanned, rec.Deleted, rec.Failed, rec.Elapsed.Milliseconds(), errText,
	)
	if err != nil {
		return fmt.Errorf("insert sweep run: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	s := &Stats{}

	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(file_count), 0),
       COALESCE(SUM(total_bytes), 0),
       COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
FROM share_uploads`,
		iso(startOfDay(now)),
	).Scan(&s.TotalGroups, &s.TotalFiles, &s.TotalBytes, &s.GroupsToday)
	if err != nil {
		return nil, fmt.Errorf("upload stats: %w", err)
	}

	var last sql.NullString
	err = r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(deleted), 0),
       COALESCE(SUM(failed), 0),
       MAX(started_at)
FROM sweep_runs`,
	).Scan(&s.SweepRuns, &s.ObjectsDeleted, &s.DeleteFailures, &last)
	if err != nil {
		return nil, fmt.Errorf("sweep stats: %w", err)
	}
	if last.Valid {
		t, err := time.Parse(isoLayout, last.String)
		if err == nil {
			s.LastSweepAt = &t
		}
	}
	return s, nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

var _ Recorder = (*SQLiteRecorder)(nil)
