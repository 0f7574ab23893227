// Package account serves customer profiles and order history.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/imrishuroy/sneakerstore/internal/db"
	"github.com/imrishuroy/sneakerstore/internal/orders"
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrNotOwner = errors.New("order belongs to another account")
)

type Profile struct {
	ID              string          `json:"id"`
	Email           string          `json:"email"`
	FullName        string          `json:"full_name"`
	Phone           string          `json:"phone"`
	ShippingAddress *orders.Address `json:"shipping_address,omitempty"`
	IsAdmin         bool            `json:"is_admin"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Update holds the fields a customer may change on their own profile.
type Update struct {
	FullName        *string
	Phone           *string
	ShippingAddress *orders.Address
}

type Repository struct {
	db      db.DBTX
	nowFunc func() time.Time
}

func NewRepository(pool db.DBTX) *Repository {
	return &Repository{db: pool, nowFunc: time.Now}
}

const profileColumns = `id, email, full_name, phone, shipping_address, is_admin, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Phone, &p.ShippingAddress, &p.IsAdmin, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

// Ensure returns the profile of an authenticated user, creating it on first sight.
func (r *Repository) Ensure(ctx context.Context, id, email string) (*Profile, error) {
	now := r.nowFunc().UTC()
	return scanProfile(r.db.QueryRow(ctx, `
		INSERT INTO profiles (id, email, created_at, updated_at) VALUES ($1, lower($2), $3, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
		RETURNING `+profileColumns, id, email, now))
}

func (r *Repository) Update(ctx context.Context, id string, u Update) (*Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, `
		UPDATE profiles SET
			full_name = COALESCE($2, full_name),
			phone = COALESCE($3, phone),
			shipping_address = COALESCE($4, shipping_address),
			updated_at = $5
		WHERE id = $1
		RETURNING `+profileColumns, id, u.FullName, u.Phone, u.ShippingAddress, r.nowFunc().UTC()))
}

// EmailRegistered reports whether email owns an account. Used to block guest checkout with it.
func (r *Repository) EmailRegistered(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE email = lower($1))`,
		strings.TrimSpace(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *Repository) IsAdmin(ctx context.Context, id string) (bool, error) {
	var admin bool
	err := r.db.QueryRow(ctx, `SELECT is_admin FROM profiles WHERE id = $1`, id).Scan(&admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return admin, nil
}

// OrderReader is the part of the order store the account pages read.
type OrderReader interface {
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// Orders lists a customer's orders, newest first.
func Orders(ctx context.Context, store OrderReader, userID string) ([]orders.Order, error) {
	list, err := store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if list == nil {
		list = []orders.Order{}
	}
	return list, nil
}

// Order returns one of the customer's orders.
func Order(ctx context.Context, store OrderReader, userID, orderID string) (*orders.Order, error) {
	o, err := store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID == "" || o.UserID != userID {
		return nil, ErrNotOwner
	}
	return o, nil
}
