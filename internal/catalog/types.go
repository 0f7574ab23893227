package catalog

import (
	"errors"
	"time"

	"github.com/imrishuroy/sneakerstore/internal/money"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoSaleMovement    = errors.New("no sale recorded for this order line")
)

// Stock movement kinds recorded in stock_movements.
const (
	MovementSale       = "sale"
	MovementRestock    = "restock"
	MovementAdjustment = "adjustment"
)

// Product is a catalog row. SizesAvailable maps size label to units on hand.
type Product struct {
	ID             string         `json:"id"`
	CategoryID     string         `json:"category_id,omitempty"`
	Name           string         `json:"name"`
	Brand          string         `json:"brand"`
	Description    string         `json:"description,omitempty"`
	PriceCents     money.Cents    `json:"price_cents"`
	Images         []string       `json:"images"`
	SizesAvailable map[string]int `json:"sizes_available"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Stock returns the units on hand for size, zero for unknown sizes.
func (p Product) Stock(size string) int {
	if p.SizesAvailable == nil {
		return 0
	}
	return p.SizesAvailable[size]
}

// FirstImage returns the lead image or "".
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Line is one (product, size, quantity) stock change.
type Line struct {
	ProductID string
	Size      string
	Quantity  int
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	CategoryID      string
	Brand           string
	IncludeInactive bool
}
