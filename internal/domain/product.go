package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidProductKey    = errors.New("product id and barcode are required")
	ErrProductAlreadyExists = errors.New("product already exists")
)

func init() {
	// Price goes over the wire as a JSON number, not a quoted string
	decimal.MarshalJSONWithoutQuotes = true
}

// Product represents the product entity
type Product struct {
	ID          string          `json:"Id"`
	Barcode     string          `json:"Barcode"`
	Name        string          `json:"Name"`
	Description string          `json:"Description"`
	Price       decimal.Decimal `json:"Price"`
}

// ProductKey is the composite key (Id, Barcode) that identifies a product
type ProductKey struct {
	ID      string
	Barcode string
}

// Key returns the composite key of the product
func (p *Product) Key() ProductKey {
	return ProductKey{ID: p.ID, Barcode: p.Barcode}
}

// Validate checks that both key parts are present
func (p *Product) Validate() error {
	return p.Key().Validate()
}

// Validate reports ErrInvalidProductKey when either part is empty
func (k ProductKey) Validate() error {
	if k.ID == "" || k.Barcode == "" {
		return ErrInvalidProductKey
	}
	return nil
}

func (k ProductKey) String() string {
	return k.ID + "/" + k.Barcode
}
