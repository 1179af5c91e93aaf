// Package audit keeps an append-only log of accepted uploads and sweep runs.
//
// The log is informational. It is never consulted to decide whether a share group
// exists; that is inferred from the object store alone.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easyshare/service/internal/config"
)

// UploadRecord describes one accepted upload batch.
type UploadRecord struct {
	GroupID   string
	Files     int
	Bytes     int64
	CreatedAt time.Time
}

// SweepRecord describes one sweep run, fatal or not.
type SweepRecord struct {
	StartedAt time.Time
	Scanned   int
	Deleted   int
	Failed    int
	Elapsed   time.Duration
	Error     string // set when the run aborted
}

// Stats summarises the log.
type Stats struct {
	TotalGroups    int64      `json:"totalGroups"`
	TotalFiles     int64      `json:"totalFiles"`
	TotalBytes     int64      `json:"totalBytes"`
	GroupsToday    int64      `json:"groupsToday"`
	SweepRuns      int64      `json:"sweepRuns"`
	ObjectsDeleted int64      `json:"objectsDeleted"`
	DeleteFailures int64      `json:"deleteFailures"`
	LastSweepAt    *time.Time `json:"lastSweepAt,omitempty"`
}

// Recorder persists audit entries.
type Recorder interface {
	RecordUpload(ctx context.Context, rec UploadRecord) error
	RecordSweep(ctx context.Context, rec SweepRecord) error
	Stats(ctx context.Context, now time.Time) (*Stats, error)
	Close() error
}

// Nop records nothing and reports empty stats.
type Nop struct{}

func (Nop) RecordUpload(context.Context, UploadRecord) error { return nil }
func (Nop) RecordSweep(context.Context, SweepRecord) error   { return nil }
func (Nop) Stats(context.Context, time.Time) (*Stats, error) { return &Stats{}, nil }
func (Nop) Close() error                                     { return nil }

// Open builds the Recorder selected by cfg.AuditDriver.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (Recorder, error) {
	switch cfg.AuditDriver {
	case "", "none":
		return Nop{}, nil
	case "postgres":
		pool, err := Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := Migrate(cfg.DatabaseURL, logger); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresRecorder(pool), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.AuditDriver)
	}
}

// startOfDay truncates t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
