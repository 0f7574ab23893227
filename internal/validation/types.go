package validation

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItemRequest is the payload for POST /api/cart/items.
type CartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Size      string `json:"size" validate:"required,size"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=10"`
}

// CartQuantityRequest is the payload for PATCH /api/cart/items. Zero removes the line.
type CartQuantityRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Size      string `json:"size" validate:"required,size"`
	Quantity  int    `json:"quantity" validate:"min=0,max=10"`
}

// CartLineRequest identifies a line for DELETE /api/cart/items.
type CartLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Size      string `json:"size" validate:"required,size"`
}

type DiscountCodeRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// ValidateDiscountRequest checks a code against a subtotal. Without a subtotal the caller's
// cart is used.
type ValidateDiscountRequest struct {
	Code          string `json:"code" validate:"required,max=64"`
	SubtotalCents int64  `json:"cart_subtotal" validate:"gte=0"`
}

type CheckoutItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Size      string `json:"size" validate:"required,size"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CheckoutRequest is the payload for POST /api/checkout/session. Items default to the
// cart; DiscountInfo is accepted for compatibility and ignored.
type CheckoutRequest struct {
	Items        []CheckoutItem `json:"items" validate:"omitempty,dive"`
	DiscountCode string         `json:"discount_code" validate:"omitempty,max=64"`
	DiscountInfo map[string]any `json:"discount_info,omitempty"`
	GuestEmail   string         `json:"guest_email" validate:"omitempty,email"`
}

type ConfirmRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type ReturnOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type OrderStatusRequest struct {
	Status string `json:"status" validate:"required,order_status"`
}

// ProductRequest creates or replaces a product.
type ProductRequest struct {
	CategoryID     string         `json:"category_id"`
	Name           string         `json:"name" validate:"required,max=200"`
	Brand          string         `json:"brand" validate:"required,max=100"`
	Description    string         `json:"description" validate:"max=5000"`
	PriceCents     int64          `json:"price_cents" validate:"required,gt=0"`
	Images         []string       `json:"images" validate:"omitempty,dive,url"`
	SizesAvailable map[string]int `json:"sizes_available" validate:"omitempty,dive,keys,size,endkeys,gte=0"`
	Active         *bool          `json:"active"`
}

type StockRequest struct {
	Size     string `json:"size" validate:"required,size"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Slug string `json:"slug" validate:"required,max=100"`
}

// DiscountRequest creates a discount code. Fixed values are cents.
type DiscountRequest struct {
	Code             string          `json:"code" validate:"required,alphanum,max=32"`
	Type             string          `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Value            decimal.Decimal `json:"discount_value"`
	Description      string          `json:"description" validate:"max=500"`
	StartsAt         *time.Time      `json:"starts_at"`
	ExpiresAt        *time.Time      `json:"expires_at"`
	MinPurchaseCents int64           `json:"min_purchase_cents" validate:"gte=0"`
	MaxUses          *int            `json:"max_uses" validate:"omitempty,min=1"`
	MaxUsesPerUser   *int            `json:"max_uses_per_user" validate:"omitempty,min=1"`
}

type DiscountActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type AddressRequest struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	State      string `json:"state" validate:"max=100"`
	Country    string `json:"country" validate:"required,len=2"`
}

type AccountRequest struct {
	FullName        *string         `json:"full_name" validate:"omitempty,max=120"`
	Phone           *string         `json:"phone" validate:"omitempty,max=32"`
	ShippingAddress *AddressRequest `json:"shipping_address" validate:"omitempty"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}
