package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/discount"
	"github.com/imrishuroy/sneakerstore/internal/money"
)

var (
	ErrProductUnavailable = errors.New("product unavailable")
	ErrUnknownSize        = errors.New("size not offered for this product")
)

// Record is a persisted cart.
type Record struct {
	CartID     string
	UserID     string
	Email      string
	State      State
	UpdatedAt  time.Time
	RemindedAt *time.Time
}

// Persister saves whole cart records.
type Persister interface {
	Load(ctx context.Context, cartID string) (*Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, cartID string) error
}

// Products resolves the catalog snapshot for a line.
type Products interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}

// DiscountChecker validates a code against a subtotal.
type DiscountChecker interface {
	Check(ctx context.Context, code string, subtotal money.Cents, userID string) (*discount.Code, error)
}

// View is the cart as returned to clients.
type View struct {
	CartID        string            `json:"cart_id"`
	Items         []Item            `json:"items"`
	Discount      *discount.Applied `json:"discount,omitempty"`
	Visible       bool              `json:"visible"`
	Count         int               `json:"count"`
	SubtotalCents money.Cents       `json:"subtotal_cents"`
	DiscountCents money.Cents       `json:"discount_cents"`
	TotalCents    money.Cents       `json:"total_cents"`
}

// NewView derives the totals from s.
func NewView(cartID string, s State) View {
	items := s.Items
	if items == nil {
		items = []Item{}
	}
	return View{
		CartID:        cartID,
		Items:         items,
		Discount:      s.Discount,
		Visible:       s.Visible,
		Count:         s.Count(),
		SubtotalCents: s.Subtotal(),
		DiscountCents: s.DiscountAmount(),
		TotalCents:    s.Total(),
	}
}

// Store applies cart operations and persists the resulting state after every change.
type Store struct {
	persister Persister
	products  Products
	discounts DiscountChecker
	logger    *zap.Logger
	nowFunc   func() time.Time
}

func NewStore(persister Persister, products Products, discounts DiscountChecker, logger *zap.Logger) *Store {
	return &Store{
		persister: persister,
		products:  products,
		discounts: discounts,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

func (s *Store) load(ctx context.Context, cartID string) (Record, error) {
	rec, err := s.persister.Load(ctx, cartID)
	if err != nil {
		return Record{}, fmt.Errorf("load cart: %w", err)
	}
	if rec == nil {
		return Record{CartID: cartID, State: State{Items: []Item{}}}, nil
	}
	return *rec, nil
}

func (s *Store) save(ctx context.Context, rec Record) (View, error) {
	rec.UpdatedAt = s.nowFunc().UTC()
	if err := s.persister.Save(ctx, rec); err != nil {
		return View{}, fmt.Errorf("save cart: %w", err)
	}
	return NewView(rec.CartID, rec.State), nil
}

func (s *Store) mutate(ctx context.Context, cartID string, fn func(State) State) (View, error) {
	rec, err := s.load(ctx, cartID)
	if err != nil {
		return View{}, err
	}
	rec.State = fn(rec.State)
	return s.save(ctx, rec)
}

func (s *Store) Get(ctx context.Context, cartID string) (View, error) {
	rec, err := s.load(ctx, cartID)
	if err != nil {
		return View{}, err
	}
	return NewView(cartID, rec.State), nil
}

// State returns the raw cart state, e.g. for checkout.
func (s *Store) State(ctx context.Context, cartID string) (State, error) {
	rec, err := s.load(ctx, cartID)
	if err != nil {
		return State{}, err
	}
	return rec.State, nil
}

// Add reads the product from the catalog so clients never supply prices or stock.
func (s *Store) Add(ctx context.Context, cartID, productID, size string, qty int) (View, error) {
	p, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return View{}, ErrProductUnavailable
	}
	if err != nil {
		return View{}, fmt.Errorf("get product: %w", err)
	}
	if !p.Active {
		return View{}, ErrProductUnavailable
	}
	if _, ok := p.SizesAvailable[size]; !ok {
		return View{}, ErrUnknownSize
	}
	return s.mutate(ctx, cartID, func(st State) State { return st.Add(*p, qty, size) })
}

func (s *Store) Remove(ctx context.Context, cartID, productID, size string) (View, error) {
	return s.mutate(ctx, cartID, func(st State) State { return st.Remove(productID, size) })
}

func (s *Store) SetQuantity(ctx context.Context, cartID, productID, size string, qty int) (View, error) {
	return s.mutate(ctx, cartID, func(st State) State { return st.SetQuantity(productID, size, qty) })
}

// ApplyDiscount validates code against the current subtotal. A failed rule comes back
// as *discount.InvalidError and leaves the cart unchanged.
func (s *Store) ApplyDiscount(ctx context.Context, cartID, code, userID string) (View, error) {
	rec, err := s.load(ctx, cartID)
	if err != nil {
		return View{}, err
	}
	c, err := s.discounts.Check(ctx, code, rec.State.Subtotal(), userID)
	if err != nil {
		return View{}, err
	}
	rec.State = rec.State.ApplyDiscount(c.Applied())
	return s.save(ctx, rec)
}

func (s *Store) RemoveDiscount(ctx context.Context, cartID string) (View, error) {
	return s.mutate(ctx, cartID, State.RemoveDiscount)
}

func (s *Store) ToggleVisibility(ctx context.Context, cartID string) (View, error) {
	return s.mutate(ctx, cartID, State.ToggleVisibility)
}

// Clear drops the persisted cart entirely.
func (s *Store) Clear(ctx context.Context, cartID string) error {
	if cartID == "" {
		return nil
	}
	if err := s.persister.Delete(ctx, cartID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	s.logger.Debug("cart cleared", zap.String("cart_id", cartID))
	return nil
}

// SetContact attaches the shopper's identity, used for abandoned cart reminders.
func (s *Store) SetContact(ctx context.Context, cartID, userID, email string) error {
	rec, err := s.load(ctx, cartID)
	if err != nil {
		return err
	}
	if rec.UserID == userID && rec.Email == email {
		return nil
	}
	rec.UserID, rec.Email = userID, email
	_, err = s.save(ctx, rec)
	return err
}
