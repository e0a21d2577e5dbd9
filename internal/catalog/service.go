package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the requested product could not be located.
var ErrNotFound = errors.New("product not found")

// ErrInvalidInput is returned when a product definition is malformed.
var ErrInvalidInput = errors.New("invalid input")

// namespace seeds deterministic product identifiers.
var namespace = uuid.MustParse("4c0f0e5a-8f55-4b0e-9a53-0b8f8d0b6a11")

// Product is an immutable catalog entry. Two products are the same product
// when their identifiers match, whatever their other fields say.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	ImageName   string          `json:"imageName"`
}

// Equal reports identity equality.
func (p Product) Equal(other Product) bool {
	return p.ID == other.ID
}

// NewProduct builds a product with a name-derived identifier.
func NewProduct(name string, price decimal.Decimal, description, imageName string) Product {
	return Product{
		ID:          uuid.NewSHA1(namespace, []byte(name)),
		Name:        name,
		Price:       price,
		Description: description,
		ImageName:   imageName,
	}
}

// Catalog is a read-only product listing preserving insertion order.
type Catalog struct {
	products []Product
	byID     map[uuid.UUID]int
}

// New validates and indexes products.
func New(products ...Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byID:     make(map[uuid.UUID]int, len(products)),
	}
	for _, p := range products {
		if p.ID == uuid.Nil {
			return nil, fmt.Errorf("product %q has no id: %w", p.Name, ErrInvalidInput)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("product %q has negative price: %w", p.Name, ErrInvalidInput)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %s: %w", p.ID, ErrInvalidInput)
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

// List returns a copy of all products.
func (c *Catalog) List() []Product {
	if c == nil {
		return nil
	}
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Get looks up a product by identifier.
func (c *Catalog) Get(id uuid.UUID) (Product, error) {
	if c == nil {
		return Product{}, ErrNotFound
	}
	idx, ok := c.byID[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return c.products[idx], nil
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.products)
}
