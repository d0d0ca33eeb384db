package domain

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// ProductRepository defines the contract for product storage.
// Implementations address records by the composite key (Id, Barcode).
type ProductRepository interface {
	// Scan returns every stored product. Order is store-dependent.
	Scan(ctx context.Context) ([]*Product, error)
	// Load returns ErrProductNotFound when no record matches the key.
	Load(ctx context.Context, key ProductKey) (*Product, error)
	// Save upserts the product, overwriting any record with the same key.
	Save(ctx context.Context, product *Product) error
	// Insert writes the product only if its key is absent, else ErrProductAlreadyExists.
	Insert(ctx context.Context, product *Product) error
	// Replace overwrites the product only if its key is present, else ErrProductNotFound.
	Replace(ctx context.Context, product *Product) error
	// Delete removes the record, or returns ErrProductNotFound.
	Delete(ctx context.Context, key ProductKey) error
	Ping(ctx context.Context) error
}
