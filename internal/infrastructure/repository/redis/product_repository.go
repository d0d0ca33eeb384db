// Package redis stores each product as a JSON document under
// "<prefix>:<id>:<barcode>", using SET NX / SET XX for conditional writes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/mrops-br/products-kv-api/internal/domain"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scanBatch = 100

// ProductRepository is a Redis implementation of domain.ProductRepository
type ProductRepository struct {
	rdb    redis.UniversalClient
	prefix string
	tracer trace.Tracer
	logger *slog.Logger
}

// NewClient creates the shared Redis client
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewProductRepository creates a repository storing keys under prefix
func NewProductRepository(rdb redis.UniversalClient, prefix string, tracer trace.Tracer, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		rdb:    rdb,
		prefix: prefix,
		tracer: tracer,
		logger: logger,
	}
}

func (r *ProductRepository) key(k domain.ProductKey) string {
	// escaping keeps ':' inside an id or barcode from colliding with the separator
	return r.prefix + ":" + url.QueryEscape(k.ID) + ":" + url.QueryEscape(k.Barcode)
}

// Scan walks every key under the prefix with SCAN and fetches values with MGET
func (r *ProductRepository) Scan(ctx context.Context) ([]*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Scan")
	defer span.End()

	products := make([]*domain.Product, 0)
	batch := make([]string, 0, scanBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		values, err := r.rdb.MGet(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("mget products: %w", err)
		}
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				// deleted between SCAN and MGET
				continue
			}
			var p domain.Product
			if err := json.Unmarshal([]byte(s), &p); err != nil {
				return fmt.Errorf("decode product %s: %w", batch[i], err)
			}
			products = append(products, &p)
		}
		batch = batch[:0]
		return nil
	}

	iter := r.rdb.Scan(ctx, 0, r.prefix+":*", scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return nil, r.fail(span, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, r.fail(span, fmt.Errorf("scan products: %w", err))
	}
	if err := flush(); err != nil {
		return nil, r.fail(span, err)
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	r.logger.DebugContext(ctx, "Products scanned from Redis",
		slog.Int("count", len(products)),
	)

	span.SetStatus(codes.Ok, "Products retrieved successfully")
	return products, nil
}

// Load retrieves a product by its composite key
func (r *ProductRepository) Load(ctx context.Context, key domain.ProductKey) (*domain.Product, error) {
	ctx, span := r.startSpan(ctx, "ProductRepository.Load", key)
	defer span.End()

	raw, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetStatus(codes.Error, "Product not found")
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("get product %s: %w", key, err))
	}

	var p domain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, r.fail(span, fmt.Errorf("decode product %s: %w", key, err))
	}

	span.SetStatus(codes.Ok, "Product found")
	return &p, nil
}

// Save upserts a product
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) error {
	ctx, span := r.startSpan(ctx, "ProductRepository.Save", product.Key())
	defer span.End()

	raw, err := json.Marshal(product)
	if err != nil {
		return r.fail(span, fmt.Errorf("encode product %s: %w", product.Key(), err))
	}
	if err := r.rdb.Set(ctx, r.key(product.Key()), raw, 0).Err(); err != nil {
		return r.fail(span, fmt.Errorf("set product %s: %w", product.Key(), err))
	}

	span.SetStatus(codes.Ok, "Product saved")
	return nil
}

// Insert stores a product with SET NX
func (r *ProductRepository) Insert(ctx context.Context, product *domain.Product) error {
	ctx, span := r.startSpan(ctx, "ProductRepository.Insert", product.Key())
	defer span.End()

	raw, err := json.Marshal(product)
	if err != nil {
		return r.fail(span, fmt.Errorf("encode product %s: %w", product.Key(), err))
	}
	ok, err := r.rdb.SetNX(ctx, r.key(product.Key()), raw, 0).Result()
	if err != nil {
		return r.fail(span, fmt.Errorf("setnx product %s: %w", product.Key(), err))
	}
	if !ok {
		span.SetStatus(codes.Error, "Product already exists")
		return domain.ErrProductAlreadyExists
	}

	span.SetStatus(codes.Ok, "Product inserted")
	return nil
}

// Replace overwrites a product with SET XX
func (r *ProductRepository) Replace(ctx context.Context, product *domain.Product) error {
	ctx, span := r.startSpan(ctx, "ProductRepository.Replace", product.Key())
	defer span.End()

	raw, err := json.Marshal(product)
	if err != nil {
		return r.fail(span, fmt.Errorf("encode product %s: %w", product.Key(), err))
	}
	ok, err := r.rdb.SetXX(ctx, r.key(product.Key()), raw, 0).Result()
	if err != nil {
		return r.fail(span, fmt.Errorf("setxx product %s: %w", product.Key(), err))
	}
	if !ok {
		span.SetStatus(codes.Error, "Product not found")
		return domain.ErrProductNotFound
	}

	span.SetStatus(codes.Ok, "Product replaced")
	return nil
}

// Delete removes a product; DEL reporting zero keys means it was absent
func (r *ProductRepository) Delete(ctx context.Context, key domain.ProductKey) error {
	ctx, span := r.startSpan(ctx, "ProductRepository.Delete", key)
	defer span.End()

	n, err := r.rdb.Del(ctx, r.key(key)).Result()
	if err != nil {
		return r.fail(span, fmt.Errorf("del product %s: %w", key, err))
	}
	if n == 0 {
		span.SetStatus(codes.Error, "Product not found")
		return domain.ErrProductNotFound
	}

	span.SetStatus(codes.Ok, "Product deleted")
	return nil
}

// Ping checks the connection
func (r *ProductRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *ProductRepository) startSpan(ctx context.Context, name string, key domain.ProductKey) (context.Context, trace.Span) {
	ctx, span := r.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("product.id", key.ID),
		attribute.String("product.barcode", key.Barcode),
	)
	return ctx, span
}

func (r *ProductRepository) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
