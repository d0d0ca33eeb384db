package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mrops-br/products-kv-api/internal/domain"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/config"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/repository/dynamodb"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/repository/memory"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/repository/redis"
	"go.opentelemetry.io/otel/trace"
)

// newRepository builds the configured store adapter and checks it is reachable.
// The returned func releases the store client.
func newRepository(ctx context.Context, cfg *config.StoreConfig, tracer trace.Tracer, logger *slog.Logger) (domain.ProductRepository, func(), error) {
	switch cfg.Backend {
	case config.BackendDynamoDB:
		client, err := dynamodb.NewClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
		}
		repo := dynamodb.NewProductRepository(client, cfg.DynamoDB.Table, tracer, logger)
		if err := repo.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to reach DynamoDB: %w", err)
		}
		logger.Info("Using DynamoDB store",
			slog.String("table", cfg.DynamoDB.Table),
			slog.String("region", cfg.DynamoDB.Region),
		)
		return repo, func() {}, nil

	case config.BackendRedis:
		client := redis.NewClient(cfg.Redis)
		repo := redis.NewProductRepository(client, cfg.Redis.KeyPrefix, tracer, logger)
		if err := repo.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to reach Redis: %w", err)
		}
		logger.Info("Using Redis store",
			slog.String("addr", cfg.Redis.Addr),
			slog.String("key_prefix", cfg.Redis.KeyPrefix),
		)
		return repo, func() { _ = client.Close() }, nil

	case config.BackendMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		return memory.NewProductRepository(tracer, logger), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// loadSeed reads a JSON array of products
func loadSeed(path string) ([]*domain.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var products []*domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return products, nil
}
