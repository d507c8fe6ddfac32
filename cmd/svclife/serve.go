package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neomorfeo/svclife/internal/adapter/fsm"
	otelAdapter "github.com/neomorfeo/svclife/internal/adapter/otel"
	riverAdapter "github.com/neomorfeo/svclife/internal/adapter/river"
	"github.com/neomorfeo/svclife/internal/adapter/sqlite"
	"github.com/neomorfeo/svclife/internal/app"
	"github.com/neomorfeo/svclife/internal/config"
	"github.com/neomorfeo/svclife/internal/domain"

	handler "github.com/neomorfeo/svclife/internal/adapter/http"
)

func newServeCmd(load func(*cobra.Command) (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background job queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}

			logger, err := config.NewLogger(cfg)
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}
}

// run wires every adapter, serves HTTP until ctx is cancelled, then shuts
// down in reverse order.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// --- Observability ---
	providers, err := otelAdapter.Setup(ctx, otelAdapter.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("otel shutdown", zap.Error(err))
		}
	}()

	// --- Adapters (out) ---
	db, err := otelAdapter.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	instances := otelAdapter.NewTracingInstances(store)
	events := otelAdapter.NewTracingEvents(store)
	tasks := otelAdapter.NewTracingTasks(store)
	history, err := otelAdapter.NewTracingHistory(store)
	if err != nil {
		return fmt.Errorf("transition metrics: %w", err)
	}

	riverOpts := riverAdapter.Options{Logger: logger.Named("jobs")}
	if cfg.Sweep.Enabled {
		riverOpts.Events = events
		riverOpts.SweepSchedule = cfg.Sweep.Schedule
	}
	client, err := riverAdapter.Setup(ctx, db, riverOpts)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}

	var notifier domain.Notifier = otelAdapter.NewTracingNotifier(riverAdapter.NewNotifier(client))

	// --- Application ---
	table := fsm.New()
	opts := []app.Option{app.WithLogger(logger), app.WithNotifier(notifier)}
	controller := app.NewController(instances, history, table, opts...)
	services := handler.Services{
		Instances:  app.NewInstanceService(instances, opts...),
		Controller: controller,
		Scheduler:  app.NewScheduler(events, instances, table, controller, opts...),
		Tasks:      app.NewTaskManager(tasks, events, opts...),
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware("svclife", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("svclife", version))
	handler.Register(api, services)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Run ---
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("svclife listening",
			zap.String("addr", srv.Addr),
			zap.String("docs", fmt.Sprintf("http://localhost%s/docs", srv.Addr)),
			zap.Bool("sweep", cfg.Sweep.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("server: %w", err)
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Warn("river shutdown", zap.Error(err))
	}

	logger.Info("stopped")
	return runErr
}
