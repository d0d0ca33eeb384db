package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrops-br/products-kv-api/internal/app/service"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/config"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/http"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/http/handler"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/http/middleware"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	limiterCleanupInterval = time.Minute
	limiterIdleTimeout     = 5 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

func run(ctx context.Context) error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Printf("Configuration loaded: %v", cfg)

	// Initialize OpenTelemetry
	telem, err := telemetry.NewTelemetry(&cfg.OTLP, &cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		if err := telem.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	tracer := telem.TracerProvider.Tracer("products-api")
	meter := telem.MeterProvider.Meter("products-api")
	logger := telem.Logger
	slog.SetDefault(logger)

	logger.Info("Starting Products API", slog.String("store.backend", cfg.Store.Backend))

	repo, closeStore, err := newRepository(ctx, &cfg.Store, tracer, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	productService := service.NewProductService(repo, tracer, meter, logger)

	if cfg.Seed.File != "" {
		products, err := loadSeed(cfg.Seed.File)
		if err != nil {
			return err
		}
		if _, err := productService.SeedProducts(ctx, products); err != nil {
			return fmt.Errorf("failed to seed products: %w", err)
		}
	}

	productHandler := handler.NewProductHandler(productService, logger, cfg.Server.MaxBodyBytes)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	server := http.NewServer(&cfg.Server, productHandler, limiter, logger, telem)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if limiter != nil {
		g.Go(func() error {
			limiter.Cleanup(gCtx, limiterCleanupInterval, limiterIdleTimeout)
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
