package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mrops-br/products-kv-api/internal/app/dto"
	"github.com/mrops-br/products-kv-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ProductService handles product use cases
type ProductService struct {
	repo                  domain.ProductRepository
	tracer                trace.Tracer
	logger                *slog.Logger
	productCreatedCounter metric.Int64Counter
	productOperations     metric.Int64Counter
}

// NewProductService creates a new product service
func NewProductService(
	repo domain.ProductRepository,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *ProductService {
	// Initialize metrics
	productCreatedCounter, _ := meter.Int64Counter(
		"products.created.total",
		metric.WithDescription("Total number of products created"),
	)

	productOperations, _ := meter.Int64Counter(
		"products.operations",
		metric.WithDescription("Total number of product operations"),
	)

	return &ProductService{
		repo:                  repo,
		tracer:                tracer,
		logger:                logger,
		productCreatedCounter: productCreatedCounter,
		productOperations:     productOperations,
	}
}

func (s *ProductService) record(ctx context.Context, operation, result string) {
	s.productOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("result", result),
		),
	)
}

// resultOf classifies an error for the operations counter
func resultOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrProductAlreadyExists):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidProductKey):
		return "invalid"
	default:
		return "failure"
	}
}

// ListProducts retrieves all products
func (s *ProductService) ListProducts(ctx context.Context) ([]*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.ListProducts")
	defer span.End()

	s.logger.InfoContext(ctx, "Listing all products")

	products, err := s.repo.Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to retrieve products")
		s.logger.ErrorContext(ctx, "Failed to list products",
			slog.String("error", err.Error()),
		)
		s.record(ctx, "list", "failure")
		return nil, err
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	s.record(ctx, "list", "success")

	s.logger.InfoContext(ctx, "Products listed successfully",
		slog.Int("count", len(products)),
	)

	span.SetStatus(codes.Ok, "Products listed successfully")
	return dto.ToProductResponseList(products), nil
}

// GetProduct retrieves a product by its composite key
func (s *ProductService) GetProduct(ctx context.Context, key domain.ProductKey) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.GetProduct")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.id", key.ID),
		attribute.String("product.barcode", key.Barcode),
	)

	if err := key.Validate(); err != nil {
		span.SetStatus(codes.Error, "Invalid product key")
		s.record(ctx, "read", resultOf(err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "Getting product",
		slog.String("product_id", key.ID),
		slog.String("barcode", key.Barcode),
	)

	product, err := s.repo.Load(ctx, key)
	if errors.Is(err, domain.ErrProductNotFound) {
		span.SetStatus(codes.Error, "Product not found")
		s.logger.WarnContext(ctx, "Product not found",
			slog.String("product_id", key.ID),
			slog.String("barcode", key.Barcode),
		)
		s.record(ctx, "read", "not_found")
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load product")
		s.logger.ErrorContext(ctx, "Failed to load product",
			slog.String("error", err.Error()),
		)
		s.record(ctx, "read", "failure")
		return nil, err
	}

	s.record(ctx, "read", "success")
	s.logger.InfoContext(ctx, "Product retrieved successfully",
		slog.String("product_id", key.ID),
	)

	span.SetStatus(codes.Ok, "Product retrieved successfully")
	return dto.ToProductResponse(product), nil
}

// CreateProduct inserts a product that must not exist yet and echoes it back
func (s *ProductService) CreateProduct(ctx context.Context, req *dto.ProductRequest) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.CreateProduct")
	defer span.End()

	product := req.ToDomain()
	span.SetAttributes(
		attribute.String("product.id", product.ID),
		attribute.String("product.barcode", product.Barcode),
		attribute.String("product.name", product.Name),
	)

	s.logger.InfoContext(ctx, "Creating product",
		slog.String("product_id", product.ID),
		slog.String("barcode", product.Barcode),
		slog.String("price", product.Price.String()),
	)

	if err := product.Validate(); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		s.record(ctx, "create", resultOf(err))
		return nil, err
	}

	if err := s.repo.Insert(ctx, product); err != nil {
		s.writeFailed(ctx, span, "create", err)
		return nil, err
	}

	s.productCreatedCounter.Add(ctx, 1)
	s.record(ctx, "create", "success")

	s.logger.InfoContext(ctx, "Product created successfully",
		slog.String("product_id", product.ID),
		slog.String("barcode", product.Barcode),
	)

	span.SetStatus(codes.Ok, "Product created successfully")
	return dto.ToProductResponse(product), nil
}

// UpdateProduct overwrites an existing product and echoes it back
func (s *ProductService) UpdateProduct(ctx context.Context, req *dto.ProductRequest) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.UpdateProduct")
	defer span.End()

	product := req.ToDomain()
	span.SetAttributes(
		attribute.String("product.id", product.ID),
		attribute.String("product.barcode", product.Barcode),
	)

	s.logger.InfoContext(ctx, "Updating product",
		slog.String("product_id", product.ID),
		slog.String("barcode", product.Barcode),
	)

	if err := product.Validate(); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		s.record(ctx, "update", resultOf(err))
		return nil, err
	}

	if err := s.repo.Replace(ctx, product); err != nil {
		s.writeFailed(ctx, span, "update", err)
		return nil, err
	}

	s.record(ctx, "update", "success")
	s.logger.InfoContext(ctx, "Product updated successfully",
		slog.String("product_id", product.ID),
		slog.String("barcode", product.Barcode),
	)

	span.SetStatus(codes.Ok, "Product updated successfully")
	return dto.ToProductResponse(product), nil
}

// DeleteProduct removes an existing product
func (s *ProductService) DeleteProduct(ctx context.Context, key domain.ProductKey) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.DeleteProduct")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.id", key.ID),
		attribute.String("product.barcode", key.Barcode),
	)

	if err := key.Validate(); err != nil {
		span.SetStatus(codes.Error, "Invalid product key")
		s.record(ctx, "delete", resultOf(err))
		return err
	}

	s.logger.InfoContext(ctx, "Deleting product",
		slog.String("product_id", key.ID),
		slog.String("barcode", key.Barcode),
	)

	if err := s.repo.Delete(ctx, key); err != nil {
		s.writeFailed(ctx, span, "delete", err)
		return err
	}

	s.record(ctx, "delete", "success")
	s.logger.InfoContext(ctx, "Product deleted successfully",
		slog.String("product_id", key.ID),
		slog.String("barcode", key.Barcode),
	)

	span.SetStatus(codes.Ok, "Product deleted successfully")
	return nil
}

// SeedProducts upserts products unconditionally. Products without a full key
// are skipped. It returns how many were written.
func (s *ProductService) SeedProducts(ctx context.Context, products []*domain.Product) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.SeedProducts")
	defer span.End()

	written := 0
	for _, p := range products {
		if p == nil || p.Validate() != nil {
			s.logger.WarnContext(ctx, "Skipping seed product without id or barcode")
			continue
		}
		if err := s.repo.Save(ctx, p); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to seed products")
			s.record(ctx, "seed", "failure")
			return written, err
		}
		written++
	}

	span.SetAttributes(attribute.Int("product.count", written))
	s.record(ctx, "seed", "success")
	s.logger.InfoContext(ctx, "Products seeded",
		slog.Int("count", written),
	)

	span.SetStatus(codes.Ok, "Products seeded")
	return written, nil
}

// Ping reports whether the store is reachable
func (s *ProductService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// writeFailed records a failed conditional write. Precondition failures are
// expected outcomes and logged at warn; anything else is a store error.
func (s *ProductService) writeFailed(ctx context.Context, span trace.Span, operation string, err error) {
	result := resultOf(err)
	s.record(ctx, operation, result)

	if result == "failure" {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to store product")
		s.logger.ErrorContext(ctx, "Failed to store product",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return
	}

	span.SetStatus(codes.Error, err.Error())
	s.logger.WarnContext(ctx, "Product write rejected",
		slog.String("operation", operation),
		slog.String("reason", err.Error()),
	)
}
