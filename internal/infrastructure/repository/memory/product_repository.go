package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mrops-br/products-kv-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProductRepository is an in-memory implementation of domain.ProductRepository
type ProductRepository struct {
	mu       sync.RWMutex
	products map[domain.ProductKey]domain.Product
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewProductRepository creates a new in-memory product repository
func NewProductRepository(tracer trace.Tracer, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		products: make(map[domain.ProductKey]domain.Product),
		tracer:   tracer,
		logger:   logger,
	}
}

// Scan retrieves all products
func (r *ProductRepository) Scan(ctx context.Context) ([]*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Scan")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]*domain.Product, 0, len(r.products))
	for _, product := range r.products {
		p := product
		products = append(products, &p)
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))

	r.logger.DebugContext(ctx, "Products scanned from memory",
		slog.Int("count", len(products)),
	)

	span.SetStatus(codes.Ok, "Products retrieved successfully")
	return products, nil
}

// Load retrieves a product by its composite key
func (r *ProductRepository) Load(ctx context.Context, key domain.ProductKey) (*domain.Product, error) {
	_, span := r.startSpan(ctx, "ProductRepository.Load", key)
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	product, exists := r.products[key]
	if !exists {
		span.SetStatus(codes.Error, "Product not found")
		return nil, domain.ErrProductNotFound
	}

	span.SetStatus(codes.Ok, "Product found")
	return &product, nil
}

// Save upserts a product
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) error {
	_, span := r.startSpan(ctx, "ProductRepository.Save", product.Key())
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.products[product.Key()] = *product

	span.SetStatus(codes.Ok, "Product saved")
	return nil
}

// Insert stores a product only if its key is not taken
func (r *ProductRepository) Insert(ctx context.Context, product *domain.Product) error {
	_, span := r.startSpan(ctx, "ProductRepository.Insert", product.Key())
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[product.Key()]; exists {
		span.SetStatus(codes.Error, "Product already exists")
		return domain.ErrProductAlreadyExists
	}
	r.products[product.Key()] = *product

	span.SetStatus(codes.Ok, "Product inserted")
	return nil
}

// Replace overwrites an existing product
func (r *ProductRepository) Replace(ctx context.Context, product *domain.Product) error {
	_, span := r.startSpan(ctx, "ProductRepository.Replace", product.Key())
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[product.Key()]; !exists {
		span.SetStatus(codes.Error, "Product not found")
		return domain.ErrProductNotFound
	}
	r.products[product.Key()] = *product

	span.SetStatus(codes.Ok, "Product replaced")
	return nil
}

// Delete removes a product by its composite key
func (r *ProductRepository) Delete(ctx context.Context, key domain.ProductKey) error {
	_, span := r.startSpan(ctx, "ProductRepository.Delete", key)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[key]; !exists {
		span.SetStatus(codes.Error, "Product not found")
		return domain.ErrProductNotFound
	}
	delete(r.products, key)

	span.SetStatus(codes.Ok, "Product deleted")
	return nil
}

// Ping always succeeds
func (r *ProductRepository) Ping(context.Context) error {
	return nil
}

func (r *ProductRepository) startSpan(ctx context.Context, name string, key domain.ProductKey) (context.Context, trace.Span) {
	ctx, span := r.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("product.id", key.ID),
		attribute.String("product.barcode", key.Barcode),
	)
	return ctx, span
}
