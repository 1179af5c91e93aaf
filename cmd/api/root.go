package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/easyshare/service/internal/audit"
	"github.com/easyshare/service/internal/config"
	"github.com/easyshare/service/internal/logging"
	"github.com/easyshare/service/internal/metrics"
	appMiddleware "github.com/easyshare/service/internal/middleware"
	"github.com/easyshare/service/internal/share"
	"github.com/easyshare/service/internal/storage"
	"github.com/easyshare/service/internal/sweep"

	_ "github.com/easyshare/service/docs/swagger"
)

// newRootCmd returns the root command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cobra.EnableCommandSorting = false
	root := &cobra.Command{
		Use:   "easyshare",
		Short: "Ephemeral file sharing service.",
		Long: `EasyShare stores uploaded files under a single share link and purges them
once they are older than the retention window (EXPIRATION_TIME_HOURS).

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newTokenCmd())
	return root
}

// app holds the dependencies shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	store    storage.Store
	recorder audit.Recorder
	registry *prometheus.Registry
	observer metrics.Observer
	closers  []func() error
}

// loadConfig reads configuration and builds the logger.
func loadConfig() (*config.Config, *log.Logger) {
	cfg, dotenv := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.IsProduction())
	if !dotenv {
		logger.Debug("no .env file found, using environment only")
	}
	return cfg, logger
}

// newApp opens storage, the audit log and the metrics registry.
func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("object storage init: %w", err)
	}

	recorder, err := audit.Open(ctx, cfg, logger)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("audit log init: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.NewPrometheusObserver("easyshare", registry)
	if err != nil {
		_ = recorder.Close()
		_ = closeStore()
		return nil, fmt.Errorf("metrics init: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		recorder: recorder,
		registry: registry,
		observer: observer,
		closers:  []func() error{recorder.Close, closeStore},
	}, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close", "err", err)
		}
	}
}

func (a *app) sweeper() *sweep.Sweeper {
	return sweep.New(a.store, a.logger,
		sweep.WithConcurrency(a.cfg.SweepConcurrency),
		sweep.WithObserver(a.observer),
		sweep.WithAudit(a.recorder),
	)
}

// router wires repository → service → handler and mounts every route.
func (a *app) router() http.Handler {
	shareSvc := share.NewService(a.store, a.logger,
		share.WithObserver(a.observer),
		share.WithAudit(a.recorder),
	)
	shareHandler := share.NewHandler(shareSvc, a.cfg.PublicBaseURL, a.cfg.Retention, a.cfg.MaxUploadBytes, a.logger)
	sweepHandler := sweep.NewHandler(a.sweeper(), a.cfg.Retention, a.logger)
	auditHandler := audit.NewHandler(a.recorder, a.logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(a.logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-None-Match", "X-Request-ID"},
		ExposedHeaders: []string{"ETag", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	shareHandler.Routes(r)

	r.Route("/admin", func(r chi.Router) {
		r.Use(appMiddleware.RequireAdmin(a.cfg.AdminJWTSecret))
		r.Post("/sweep", sweepHandler.Run)
		r.Get("/stats", auditHandler.Stats)
	})

	return r
}

func (a *app) server() *http.Server {
	return &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 15 * time.Second,
		// No WriteTimeout: downloads stream bodies of arbitrary size.
		IdleTimeout: 60 * time.Second,
	}
}
