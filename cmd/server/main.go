// Package main is the entrypoint for the GeoScan API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhinao/geoscan/internal/api"
	"github.com/zhinao/geoscan/internal/api/handler"
	mw "github.com/zhinao/geoscan/internal/api/middleware"
	"github.com/zhinao/geoscan/internal/api/response"
	"github.com/zhinao/geoscan/internal/cache"
	"github.com/zhinao/geoscan/internal/config"
	"github.com/zhinao/geoscan/internal/credits"
	"github.com/zhinao/geoscan/internal/engine"
	"github.com/zhinao/geoscan/internal/mailer"
	"github.com/zhinao/geoscan/internal/store"
	"github.com/zhinao/geoscan/internal/tracker"
	"github.com/zhinao/geoscan/internal/trigger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "engine_auth_mode", cfg.Engine.AuthMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and start the change-event listener
	pgStore := store.NewPostgresStore(pool)

	listener := store.NewListener(pool)
	go listener.Run(ctx)
	slog.Info("job event listener started", "channel", store.NotifyChannel)

	// 6. Build domain services
	engineClient := engine.NewHTTPClient(cfg.Engine)
	creditSvc := credits.NewService(pgStore, redisCache, credits.NewPriceTable(cfg.Credits), cfg.Credits.MonthlyFreeQuota)
	triggerSvc := trigger.NewService(pgStore, engineClient, creditSvc, redisCache)
	jobTracker := tracker.New(pgStore, listener, tracker.Options{})
	mailClient := mailer.NewHTTPClient(cfg.Mail)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:  healthHandler(pgStore, redisCache),
		InquiryHandler: handler.NewInquiryHandler(mailClient),

		ScanHandler:       handler.NewScanHandler(triggerSvc),
		DiagnosisHandler:  handler.NewDiagnosisHandler(triggerSvc),
		SimulationHandler: handler.NewSimulationHandler(triggerSvc),
		GetJobHandler:     handler.NewGetJobHandler(pgStore),
		ListJobsHandler:   handler.NewListJobsHandler(pgStore),
		JobEventsHandler:  handler.NewJobEventsHandler(jobTracker),

		CreditsHandler: handler.NewCreditsHandler(creditSvc),
		LedgerHandler:  handler.NewLedgerHandler(pgStore),
		TopUpHandler:   handler.NewTopUpHandler(pgStore),
		ReportHandler:  handler.NewUpdateReportHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open past any fixed write deadline
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
