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

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/handlers"
	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	"github.com/aaravmahajanofficial/storefront-cart/internal/cache"
	"github.com/aaravmahajanofficial/storefront-cart/internal/config"
	"github.com/aaravmahajanofficial/storefront-cart/internal/health"
	"github.com/aaravmahajanofficial/storefront-cart/internal/metrics"
	repository "github.com/aaravmahajanofficial/storefront-cart/internal/repositories"
	service "github.com/aaravmahajanofficial/storefront-cart/internal/services"
	"github.com/aaravmahajanofficial/storefront-cart/internal/tracing"
)

func main() {

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg)
	if err != nil {
		slog.Error("❌ Error setting up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repos, err := repository.New(ctx, cfg)
	if err != nil {
		slog.Error("❌ Error accessing the database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redisClient, err := repository.NewRedisClient(cfg)
	if err != nil {
		slog.Error("❌ Error accessing the redis instance", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Validation tolerates slightly stale catalog reads; mutations do not.
	cachedCatalog := cache.NewCachedCatalog(repos.Catalog, cache.NewRedisCache(redisClient, &cfg.Cache), cfg.Cache.ProductTTL)

	cartService := service.NewCartService(repos.Cart, repos.Catalog, service.NewTotalsCalculator(&cfg.Cart), cfg.Cart.Expiry)
	validationService := service.NewValidationService(repos.Cart, cachedCatalog, service.ValidationRulesFromConfig(&cfg.Cart), nil)
	mergeService := service.NewMergeService(cartService, repository.NewMergeGate(redisClient, cfg))

	owners := middleware.NewOwnerResolver(cfg.Cart.SessionCookieName, cfg.Cart.Expiry, cfg.Cart.SecureCookies)
	cartHandler := handlers.NewCartHandler(cartService, validationService, mergeService, owners)
	authMiddleware := middleware.NewAuthMiddleware([]byte(cfg.Security.JWTKey))
	rateLimiter := middleware.NewRateLimiter(repository.NewRateLimitRepo(redisClient, cfg))

	healthHandler, err := health.NewHealthHandler(cfg)
	if err != nil {
		slog.Error("❌ Error setting up health checks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	routerMux := http.NewServeMux()
	cartHandler.RegisterRoutes(routerMux, authMiddleware, rateLimiter)
	routerMux.Handle("GET /health", healthHandler.Handler())
	routerMux.Handle("GET /metrics", metrics.Handler())

	var handler http.Handler = routerMux
	handler = middleware.Logging(handler)
	handler = tracing.Middleware(cfg.Tracing.ServiceName, handler)

	server := http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("🚀 Server is starting...", slog.String("address", cfg.Addr), slog.String("env", cfg.Env))

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("❌ Failed to start server", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	slog.Warn("🛑 Shutdown signal received. Preparing to stop the server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("⚠️ Server shutdown encountered an issue", slog.String("error", err.Error()))
	} else {
		slog.Info("✅ Server shut down gracefully. All connections closed.")
	}

	if err := redisClient.Close(); err != nil {
		slog.Error("⚠️ Error closing redis connection", slog.String("error", err.Error()))
	}

	if err := repos.Close(); err != nil {
		slog.Error("⚠️ Error closing database connection", slog.String("error", err.Error()))
	} else {
		slog.Info("✅ Database connection closed")
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("⚠️ Error flushing traces", slog.String("error", err.Error()))
	}
}
