package cart

import (
	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/discount"
	"github.com/imrishuroy/sneakerstore/internal/money"
)

// Item is one cart line with the product snapshot taken when it was added.
type Item struct {
	ProductID      string         `json:"product_id"`
	Name           string         `json:"name"`
	Brand          string         `json:"brand"`
	PriceCents     money.Cents    `json:"price_cents"`
	Image          string         `json:"image,omitempty"`
	SizesAvailable map[string]int `json:"sizes_available"`
	Quantity       int            `json:"quantity"`
	Size           string         `json:"size"`
}

func (it Item) stock() int { return it.SizesAvailable[it.Size] }

// LineTotal is price times quantity.
func (it Item) LineTotal() money.Cents { return it.PriceCents * money.Cents(it.Quantity) }

// State is an immutable cart value. Every operation returns a new State and leaves
// the receiver untouched. Derived amounts are never stored; use the selectors.
type State struct {
	Items    []Item            `json:"items"`
	Discount *discount.Applied `json:"discount,omitempty"`
	Visible  bool              `json:"visible"`
}

func snapshot(p catalog.Product) Item {
	sizes := make(map[string]int, len(p.SizesAvailable))
	for k, v := range p.SizesAvailable {
		sizes[k] = v
	}
	return Item{
		ProductID:      p.ID,
		Name:           p.Name,
		Brand:          p.Brand,
		PriceCents:     p.PriceCents,
		Image:          p.FirstImage(),
		SizesAvailable: sizes,
	}
}

func (s State) clone() State {
	out := State{Visible: s.Visible, Items: make([]Item, len(s.Items))}
	copy(out.Items, s.Items)
	if s.Discount != nil {
		d := *s.Discount
		out.Discount = &d
	}
	return out
}

func (s State) index(productID, size string) int {
	for i, it := range s.Items {
		if it.ProductID == productID && it.Size == size {
			return i
		}
	}
	return -1
}

// Held is the quantity of (productID, size) already in the cart.
func (s State) Held(productID, size string) int {
	if i := s.index(productID, size); i >= 0 {
		return s.Items[i].Quantity
	}
	return 0
}

// Add merges qty units of p in size, clamped so the cart never holds more than
// the snapshot's stock for that size. Nothing changes when no units are left.
func (s State) Add(p catalog.Product, qty int, size string) State {
	allowed := p.Stock(size) - s.Held(p.ID, size)
	if qty > allowed {
		qty = allowed
	}
	if qty <= 0 {
		return s
	}

	out := s.clone()
	item := snapshot(p)
	item.Size = size
	if i := out.index(p.ID, size); i >= 0 {
		item.Quantity = out.Items[i].Quantity + qty
		out.Items[i] = item
		return out
	}
	item.Quantity = qty
	out.Items = append(out.Items, item)
	return out
}

// Remove drops the (productID, size) line.
func (s State) Remove(productID, size string) State {
	i := s.index(productID, size)
	if i < 0 {
		return s
	}
	out := s.clone()
	out.Items = append(out.Items[:i], out.Items[i+1:]...)
	return out
}

// SetQuantity replaces a line's quantity, clamped to stock. qty <= 0 removes the line.
func (s State) SetQuantity(productID, size string, qty int) State {
	if qty <= 0 {
		return s.Remove(productID, size)
	}
	i := s.index(productID, size)
	if i < 0 {
		return s
	}
	out := s.clone()
	if stock := out.Items[i].stock(); qty > stock {
		qty = stock
	}
	if qty <= 0 {
		return out.Remove(productID, size)
	}
	out.Items[i].Quantity = qty
	return out
}

// ApplyDiscount replaces any applied discount.
func (s State) ApplyDiscount(a discount.Applied) State {
	out := s.clone()
	out.Discount = &a
	return out
}

func (s State) RemoveDiscount() State {
	out := s.clone()
	out.Discount = nil
	return out
}

// Clear empties items and discount. Visibility is kept.
func (s State) Clear() State {
	return State{Items: []Item{}, Visible: s.Visible}
}

func (s State) ToggleVisibility() State {
	out := s.clone()
	out.Visible = !s.Visible
	return out
}

// Subtotal is the sum of line totals.
func (s State) Subtotal() money.Cents {
	var sum money.Cents
	for _, it := range s.Items {
		sum += it.LineTotal()
	}
	return sum
}

// DiscountAmount is the applied discount for the current subtotal.
func (s State) DiscountAmount() money.Cents {
	return discount.AmountFor(s.Discount, s.Subtotal())
}

// Total is Subtotal minus DiscountAmount, never negative.
func (s State) Total() money.Cents {
	return s.Subtotal() - s.DiscountAmount()
}

// Count is the number of units in the cart.
func (s State) Count() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

func (s State) Empty() bool { return len(s.Items) == 0 }
