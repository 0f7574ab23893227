// Package invoice numbers, stores and renders invoices.
package invoice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/orders"
)

// Invoice types
const (
	TypeStandard      = "standard"
	TypeRectification = "rectificativa"
)

var ErrNotFound = errors.New("invoice not found")

var prefixes = map[string]string{
	TypeStandard:      "FAC",
	TypeRectification: "REC",
}

type Invoice struct {
	ID                string      `json:"id"`
	Number            string      `json:"invoice_number"`
	Type              string      `json:"invoice_type"`
	OrderID           string      `json:"order_id"`
	OriginalInvoiceID *string     `json:"original_invoice_id,omitempty"`
	AmountCents       money.Cents `json:"amount_cents"`
	CustomerEmail     string      `json:"customer_email"`
	CreatedAt         time.Time   `json:"created_at"`
}

// FormatNumber renders the n-th number of an invoice type, e.g. FAC-000001.
func FormatNumber(invoiceType string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefixes[invoiceType], n)
}

// NewDocument fills a Document from an order.
func NewDocument(inv Invoice, o orders.Order, seller string) Document {
	doc := Document{
		Invoice:       inv,
		Seller:        seller,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.BillingEmail,
		DiscountCode:  o.DiscountCode,
		DiscountCents: o.DiscountCents,
		Currency:      o.Currency,
	}
	if a := o.ShippingAddress; a != nil {
		doc.Address = []string{a.Line1, a.Line2, strings.TrimSpace(a.PostalCode + " " + a.City), a.State, a.Country}
	}
	for _, it := range o.Items {
		doc.Lines = append(doc.Lines, DocumentLine{
			Name: it.Name, Size: it.Size, Quantity: it.Quantity, UnitCents: it.PriceCents,
		})
	}
	return doc
}
