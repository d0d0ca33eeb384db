package dynamodb

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/mrops-br/products-kv-api/internal/domain"
	"github.com/shopspring/decimal"
)

// productItem is the stored shape of a product; attribute names match the JSON field names
type productItem struct {
	ID          string `dynamodbav:"Id"`
	Barcode     string `dynamodbav:"Barcode"`
	Name        string `dynamodbav:"Name,omitempty"`
	Description string `dynamodbav:"Description,omitempty"`
	Price       price  `dynamodbav:"Price"`
}

// price keeps decimals exact by storing them as DynamoDB numbers
type price struct {
	decimal.Decimal
}

func (p price) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: p.Decimal.String()}, nil
}

func (p *price) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		d, err := decimal.NewFromString(v.Value)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", v.Value, err)
		}
		p.Decimal = d
	case *types.AttributeValueMemberNULL:
		p.Decimal = decimal.Zero
	default:
		return fmt.Errorf("unexpected price attribute type %T", av)
	}
	return nil
}

func fromDomain(p *domain.Product) productItem {
	return productItem{
		ID:          p.ID,
		Barcode:     p.Barcode,
		Name:        p.Name,
		Description: p.Description,
		Price:       price{p.Price},
	}
}

func (i productItem) toDomain() *domain.Product {
	return &domain.Product{
		ID:          i.ID,
		Barcode:     i.Barcode,
		Name:        i.Name,
		Description: i.Description,
		Price:       i.Price.Decimal,
	}
}
