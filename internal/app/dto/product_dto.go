package dto

import (
	"github.com/mrops-br/products-kv-api/internal/domain"
	"github.com/shopspring/decimal"
)

// ProductRequest is the body of create and update requests
type ProductRequest struct {
	ID          string          `json:"Id" validate:"required"`
	Barcode     string          `json:"Barcode" validate:"required"`
	Name        string          `json:"Name"`
	Description string          `json:"Description"`
	Price       decimal.Decimal `json:"Price"`
}

// ProductResponse represents the product response
type ProductResponse struct {
	ID          string          `json:"Id"`
	Barcode     string          `json:"Barcode"`
	Name        string          `json:"Name"`
	Description string          `json:"Description"`
	Price       decimal.Decimal `json:"Price"`
}

// ToDomain converts the request into a domain Product
func (r *ProductRequest) ToDomain() *domain.Product {
	return &domain.Product{
		ID:          r.ID,
		Barcode:     r.Barcode,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
	}
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p *domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:          p.ID,
		Barcode:     p.Barcode,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
	}
}

// ToProductResponseList converts a list of domain Products to ProductResponse list
func ToProductResponseList(products []*domain.Product) []*ProductResponse {
	responses := make([]*ProductResponse, len(products))
	for i, p := range products {
		responses[i] = ToProductResponse(p)
	}
	return responses
}
