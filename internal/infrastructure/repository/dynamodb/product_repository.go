// Package dynamodb stores products in a DynamoDB table whose hash key is Id
// and range key is Barcode.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/mrops-br/products-kv-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	hashKey  = "Id"
	rangeKey = "Barcode"
)

// API is the subset of the DynamoDB client used by ProductRepository
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// ProductRepository is a DynamoDB implementation of domain.ProductRepository
type ProductRepository struct {
	client API
	table  string
	tracer trace.Tracer
	logger *slog.Logger
}

// NewProductRepository creates a repository over the given table
func NewProductRepository(client API, table string, tracer trace.Tracer, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		client: client,
		table:  table,
		tracer: tracer,
		logger: logger,
	}
}

// Scan reads the whole table, following pagination until exhausted
func (r *ProductRepository) Scan(ctx context.Context) ([]*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Scan")
	defer span.End()
	span.SetAttributes(attribute.String("db.dynamodb.table", r.table))

	products := make([]*domain.Product, 0)
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.table),
	})
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, r.fail(span, fmt.Errorf("scan %s: %w", r.table, err))
		}
		pages++

		var items []productItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, r.fail(span, fmt.Errorf("unmarshal scanned products: %w", err))
		}
		for _, item := range items {
			products = append(products, item.toDomain())
		}
	}

	span.SetAttributes(
		attribute.Int("product.count", len(products)),
		attribute.Int("db.dynamodb.pages", pages),
	)
	r.logger.DebugContext(ctx, "Products scanned from DynamoDB",
		slog.Int("count", len(products)),
		slog.Int("pages", pages),
	)

	span.SetStatus(codes.Ok, "Products retrieved successfully")
	return products, nil
}

// Load performs a strongly consistent point lookup
func (r *ProductRepository) Load(ctx context.Context, key domain.ProductKey) (*domain.Product, error) {
	ctx, span := r.startSpan(ctx, "ProductRepository.Load", key)
	defer span.End()

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("get item %s: %w", key, err))
	}
	if len(out.Item) == 0 {
		span.SetStatus(codes.Error, "Product not found")
		return nil, domain.ErrProductNotFound
	}

	var item productItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, r.fail(span, fmt.Errorf("unmarshal product %s: %w", key, err))
	}

	span.SetStatus(codes.Ok, "Product found")
	return item.toDomain(), nil
}

// Save upserts the product
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) error {
	ctx, span := r.startSpan(ctx, "ProductRepository.Save", product.Key())
	defer span.End()

	if err := r.put(ctx, product, nil); err != nil {
		return r.fail(span, err)
	}
	span.SetStatus(codes.Ok, "Product saved")
	return nil
}

// Insert writes the product with an attribute_not_exists condition
func (r *ProductRepository) Insert(ctx context.Context, product *domain.Product) error {
	ctx, span := r.startSpan(ctx, "ProductRepository.Insert", product.Key())
	defer span.End()

	cond := expression.AttributeNotExists(expression.Name(hashKey))
	err := r.put(ctx, product, &cond)
	if isConditionFailed(err) {
		span.SetStatus(codes.Error, "Product already exists")
		return domain.ErrProductAlreadyExists
	}
	if err != nil {
		return r.fail(span, err)
	}
	span.SetStatus(codes.Ok, "Product inserted")
	return nil
}

// Replace writes the product with an attribute_exists condition
func (r *ProductRepository) Replace(ctx context.Context, product *domain.Product) error {
	ctx, span := r.startSpan(ctx, "ProductRepository.Replace", product.Key())
	defer span.End()

	cond := expression.AttributeExists(expression.Name(hashKey))
	err := r.put(ctx, product, &cond)
	if isConditionFailed(err) {
		span.SetStatus(codes.Error, "Product not found")
		return domain.ErrProductNotFound
	}
	if err != nil {
		return r.fail(span, err)
	}
	span.SetStatus(codes.Ok, "Product replaced")
	return nil
}

// Delete removes the item, failing with ErrProductNotFound if it is absent
func (r *ProductRepository) Delete(ctx context.Context, key domain.ProductKey) error {
	ctx, span := r.startSpan(ctx, "ProductRepository.Delete", key)
	defer span.End()

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name(hashKey))).
		Build()
	if err != nil {
		return r.fail(span, fmt.Errorf("build delete condition: %w", err))
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.table),
		Key:                      itemKey(key),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if isConditionFailed(err) {
		span.SetStatus(codes.Error, "Product not found")
		return domain.ErrProductNotFound
	}
	if err != nil {
		return r.fail(span, fmt.Errorf("delete item %s: %w", key, err))
	}

	span.SetStatus(codes.Ok, "Product deleted")
	return nil
}

// Ping checks that the table is reachable
func (r *ProductRepository) Ping(ctx context.Context) error {
	if _, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.table),
	}); err != nil {
		return fmt.Errorf("describe table %s: %w", r.table, err)
	}
	return nil
}

func (r *ProductRepository) put(ctx context.Context, product *domain.Product, cond *expression.ConditionBuilder) error {
	item, err := attributevalue.MarshalMap(fromDomain(product))
	if err != nil {
		return fmt.Errorf("marshal product %s: %w", product.Key(), err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}
	if cond != nil {
		expr, err := expression.NewBuilder().WithCondition(*cond).Build()
		if err != nil {
			return fmt.Errorf("build put condition: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
	}

	if _, err := r.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("put item %s: %w", product.Key(), err)
	}
	return nil
}

func (r *ProductRepository) startSpan(ctx context.Context, name string, key domain.ProductKey) (context.Context, trace.Span) {
	ctx, span := r.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.dynamodb.table", r.table),
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

func itemKey(key domain.ProductKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		hashKey:  &types.AttributeValueMemberS{Value: key.ID},
		rangeKey: &types.AttributeValueMemberS{Value: key.Barcode},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
