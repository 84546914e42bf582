// main is the entry point of the student-manager application.
//
// STARTUP SEQUENCE:
//  1. Load configuration from a YAML file (plus .env / env overrides)
//  2. Initialise the logger
//  3. Open the database (SQLite or PostgreSQL) and the cache
//  4. Build the service and register the JSON, HTML and /metrics routes
//  5. Start the HTTP server in a separate goroutine
//  6. Block the main goroutine until an OS signal (Ctrl+C / kill) arrives
//  7. Gracefully shut down: finish in-flight requests, close storage and cache
//
// RUNNING THE SERVER:
//
//	go run ./cmd/student-manager --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/student-manager
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aanand-mishra/student-manager/internal/audit"
	"github.com/aanand-mishra/student-manager/internal/cache"
	"github.com/aanand-mishra/student-manager/internal/config"
	"github.com/aanand-mishra/student-manager/internal/http/handlers/student"
	"github.com/aanand-mishra/student-manager/internal/http/handlers/web"
	"github.com/aanand-mishra/student-manager/internal/http/middleware"
	"github.com/aanand-mishra/student-manager/internal/metrics"
	studentsvc "github.com/aanand-mishra/student-manager/internal/service/student"
	"github.com/aanand-mishra/student-manager/internal/storage"
	"github.com/aanand-mishra/student-manager/internal/storage/postgres"
	"github.com/aanand-mishra/student-manager/internal/storage/sqlite"
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting student-manager",
		slog.String("env", cfg.Env),
		slog.String("version", "1.0.0"),
	)

	ctx := context.Background()

	// ── 3. Initialise Storage and Cache ───────────────────────────────────
	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeWithLog(log, "storage", store.Close)

	log.Info("storage initialised", slog.String("driver", cfg.Storage.Driver))

	c, err := cache.New(ctx, cfg.Cache.Driver, cfg.Cache.RedisURL)
	if err != nil {
		log.Error("failed to initialise cache",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeWithLog(log, "cache", c.Close)

	log.Info("cache initialised", slog.String("driver", cfg.Cache.Driver))

	// ── 4. Service and Routes ─────────────────────────────────────────────
	svc := studentsvc.New(store, c, audit.New(cfg.Audit.DefaultActor), log)

	router := http.NewServeMux()
	student.Register(router, svc)
	web.Register(router, svc)
	router.Handle("GET /metrics", metrics.Handler())
	router.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/students", http.StatusFound)
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	if limiter.Enabled() && !limiter.StartCleanup(cfg.RateLimit.CleanupInterval, stopCleanup) {
		log.Warn("rate limiter cleanup disabled", slog.Duration("interval", cfg.RateLimit.CleanupInterval))
	}

	// Outermost first: the request id must exist before anything logs.
	handler := middleware.Chain(router,
		middleware.RequestID,
		middleware.Logger(log),
		middleware.Recover(log),
		middleware.Metrics,
		limiter.Handler,
		middleware.Actor(cfg.Audit.ActorHeader),
	)

	// ── 5. Create the HTTP Server ─────────────────────────────────────────
	server := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	// ── 6. Start Server in a Goroutine ────────────────────────────────────
	// ListenAndServe blocks, so it runs beside the signal wait below.
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Address))

		// http.ErrServerClosed is the normal result of Shutdown().
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// ── 7. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
		log.Info("shutdown signal received, stopping server...")
	case err := <-serverErr:
		// Returning (rather than os.Exit) lets the deferred closes run.
		log.Error("server encountered an error", slog.String("error", err.Error()))
		return
	}

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server gracefully",
			slog.String("error", err.Error()))
		return
	}

	log.Info("server stopped gracefully")
}

func openStorage(ctx context.Context, cfg config.Storage) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DSN)
	default:
		return sqlite.New(cfg.DSN)
	}
}

func closeWithLog(log *slog.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		log.Error("close failed", slog.String("resource", what), slog.String("error", err.Error()))
	}
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default: // "dev" and anything unrecognised
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	}
}
