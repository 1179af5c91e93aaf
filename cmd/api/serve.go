package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/easyshare/service/internal/sweep"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API and, unless SWEEP_INTERVAL is 0, an in-process sweep
that deletes expired objects once at startup and then on every interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := loadConfig()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", "err", err)
				return err
			}
			defer a.close()

			if cfg.IsProduction() && cfg.AdminJWTSecret == "change_me_in_production" {
				logger.Warn("ADMIN_JWT_SECRET is the default value; admin endpoints are not protected")
			}
			return serve(ctx, a)
		},
	}
}

// serve runs the server and the scheduler until ctx ends, then shuts both down.
func serve(ctx context.Context, a *app) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup
	if a.cfg.SweepInterval > 0 {
		sched := sweep.NewScheduler(a.sweeper(), a.cfg.SweepInterval, a.cfg.Retention, a.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	} else {
		a.logger.Info("in-process sweep disabled; run `easyshare sweep` from an external scheduler")
	}

	srv := a.server()
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", srv.Addr, "env", a.cfg.AppEnv, "storage", a.cfg.StorageDriver, "retention", a.cfg.Retention)
		a.logger.Info("swagger UI", "url", a.cfg.PublicBaseURL+"/swagger/")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	a.logger.Info("shutting down gracefully...")
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("forced shutdown", "err", err)
		serveErr = errors.Join(serveErr, err)
	}
	wg.Wait()

	a.logger.Info("server stopped")
	return serveErr
}
