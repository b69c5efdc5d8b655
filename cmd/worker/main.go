package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/config"
	"github.com/aaravmahajanofficial/storefront-cart/internal/health"
	"github.com/aaravmahajanofficial/storefront-cart/internal/jobs"
	"github.com/aaravmahajanofficial/storefront-cart/internal/metrics"
	repository "github.com/aaravmahajanofficial/storefront-cart/internal/repositories"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

func main() {

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := repository.New(ctx, cfg)
	if err != nil {
		slog.Error("❌ Error accessing the database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repos.Close()

	redisOpt := jobs.RedisOpt(&cfg.RedisConnect)

	scheduler, err := jobs.NewScheduler(redisOpt, cfg.Worker)
	if err != nil {
		slog.Error("❌ Error registering periodic tasks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := jobs.NewServer(redisOpt, cfg.Worker)
	mux := jobs.NewServeMux(jobs.NewSweepHandler(repos.Cart, nil))

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	healthHandler, err := health.NewHealthHandler(cfg, health.PingCheck("asynq", 2*time.Second, func(context.Context) error {
		_, err := inspector.Queues()
		return err
	}))
	if err != nil {
		slog.Error("❌ Error setting up health checks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	opsMux := http.NewServeMux()
	opsMux.Handle("GET /health", healthHandler.Handler())
	opsMux.Handle("GET /metrics", metrics.Handler())
	opsServer := &http.Server{Addr: cfg.Worker.Addr, Handler: opsMux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("🚀 Worker is starting...", slog.String("queue", cfg.Worker.Queue), slog.Int("concurrency", cfg.Worker.Concurrency))
		return server.Start(mux)
	})

	g.Go(func() error {
		slog.Info("⏰ Scheduler is starting...", slog.String("cron", cfg.Worker.SweepCron))
		return scheduler.Start()
	})

	g.Go(func() error {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		slog.Warn("🛑 Shutdown signal received. Stopping worker...")

		scheduler.Shutdown()
		server.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return opsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("❌ Worker stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("✅ Worker shut down gracefully")
}
