// Package sweep enforces the retention window by deleting stored objects older than it.
package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/easyshare/service/internal/audit"
	"github.com/easyshare/service/internal/metrics"
	"github.com/easyshare/service/internal/storage"
)

// ErrListFailed marks a run that aborted because the namespace could not be listed.
// Nothing was deleted; the next scheduled run starts from scratch.
var ErrListFailed = errors.New("sweep: list objects")

const defaultConcurrency = 4

// Failure is one object that could not be deleted.
type Failure struct {
	Key string
	Err error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %v", f.Key, f.Err)
}

// MarshalJSON renders the cause as its message.
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key   string `json:"key"`
		Error string `json:"error"`
	}{f.Key, fmt.Sprint(f.Err)})
}

// Report aggregates the outcome of one sweep run.
type Report struct {
	StartedAt  time.Time     `json:"startedAt"`
	Scanned    int           `json:"scanned"`
	Deleted    int           `json:"deleted"`
	FreedBytes int64         `json:"freedBytes"`
	Failures   []Failure     `json:"failures"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Sweeper deletes expired objects. It has no timer of its own; see Scheduler.
type Sweeper struct {
	store       storage.Store
	concurrency int
	logger      *log.Logger
	observer    metrics.Observer
	audit       audit.Recorder
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithConcurrency bounds the number of deletes in flight. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o metrics.Observer) Option {
	return func(s *Sweeper) { s.observer = o }
}

// WithAudit attaches an audit recorder.
func WithAudit(r audit.Recorder) Option {
	return func(s *Sweeper) { s.audit = r }
}

// New creates a Sweeper over store.
func New(store storage.Store, logger *log.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:       store,
		concurrency: defaultConcurrency,
		logger:      logger,
		observer:    metrics.Nop{},
		audit:       audit.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep lists the whole namespace and deletes every object whose age exceeds
// retention. An object exactly retention old is kept.
//
// Delete failures are collected in the report and do not stop the run. A listing
// failure aborts the run with ErrListFailed and a report with nothing scanned.
// A cancelled ctx stops scheduling further deletes and is returned alongside the
// partial report.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time, retention time.Duration) (*Report, error) {
	start := time.Now()
	report := &Report{StartedAt: now, Failures: []Failure{}}

	objects, err := s.store.List(ctx, "")
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrListFailed, err)
		s.finish(ctx, report, start, err)
		return report, err
	}
	report.Scanned = len(objects)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, obj := range objects {
		if now.Sub(obj.UploadedAt) <= retention {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		obj := obj
		g.Go(func() error {
			err := s.store.Delete(ctx, obj.Key)
			// Already gone counts as deleted.
			if errors.Is(err, storage.ErrNotFound) {
				err = nil
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, Failure{Key: obj.Key, Err: err})
				s.logger.Warn("sweep delete", "key", obj.Key, "err", err)
				return nil
			}
			report.Deleted++
			report.FreedBytes += obj.Size
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Key < report.Failures[j].Key
	})

	err = ctx.Err()
	s.finish(ctx, report, start, err)
	return report, err
}

func (s *Sweeper) finish(ctx context.Context, report *Report, start time.Time, err error) {
	report.Elapsed = time.Since(start)
	s.observer.RecordSweep(report.Elapsed, report.Scanned, report.Deleted, len(report.Failures), err)

	rec := audit.SweepRecord{
		StartedAt: report.StartedAt,
		Scanned:   report.Scanned,
		Deleted:   report.Deleted,
		Failed:    len(report.Failures),
		Elapsed:   report.Elapsed,
	}
	if err != nil {
		rec.Error = err.Error()
		s.logger.Error("sweep aborted", "err", err)
	} else {
		s.logger.Info("sweep finished",
			"scanned", report.Scanned,
			"deleted", report.Deleted,
			"failed", len(report.Failures),
			"freed", humanize.Bytes(uint64(report.FreedBytes)),
			"elapsed", report.Elapsed,
		)
	}
	// The run's own ctx may already be cancelled; the audit entry should still land.
	if aerr := s.audit.RecordSweep(context.WithoutCancel(ctx), rec); aerr != nil {
		s.logger.Warn("audit sweep", "err", aerr)
	}
}
