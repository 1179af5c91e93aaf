package sweep

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Scheduler triggers a sweep immediately and then once per interval until its
// context ends. Runs never overlap; a fatal run is simply retried at the next tick.
type Scheduler struct {
	sweeper   *Sweeper
	interval  time.Duration
	retention time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// NewScheduler creates a Scheduler. interval must be positive.
func NewScheduler(sweeper *Sweeper, interval, retention time.Duration, logger *log.Logger) *Scheduler {
	return &Scheduler{
		sweeper:   sweeper,
		interval:  interval,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("sweep scheduler started", "interval", s.interval, "retention", s.retention)
	defer s.logger.Info("sweep scheduler stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		// Errors are already logged and recorded by the sweeper.
		_, _ = s.sweeper.Sweep(ctx, s.now(), s.retention)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
