package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/imrishuroy/sneakerstore/internal/db"
	"github.com/imrishuroy/sneakerstore/internal/money"
)

type Repository struct {
	db      db.TxBeginner
	nowFunc func() time.Time
}

func NewRepository(pool db.TxBeginner) *Repository {
	return &Repository{db: pool, nowFunc: time.Now}
}

const invoiceColumns = `id, invoice_number, invoice_type, order_id, original_invoice_id, amount_cents, customer_email, created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Type, &inv.OrderID, &inv.OriginalInvoiceID,
		&inv.AmountCents, &inv.CustomerEmail, &inv.CreatedAt)
	return inv, err
}

// Get returns the invoice of the given type for an order.
func (r *Repository) Get(ctx context.Context, orderID, invoiceType string) (*Invoice, error) {
	return r.get(ctx, r.db, orderID, invoiceType)
}

func (r *Repository) get(ctx context.Context, q db.DBTX, orderID, invoiceType string) (*Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1 AND invoice_type = $2`,
		orderID, invoiceType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

// IssueStandard creates the standard invoice for an order once. A repeated call returns the
// existing invoice with created=false.
func (r *Repository) IssueStandard(ctx context.Context, orderID string, amount money.Cents, email string) (*Invoice, bool, error) {
	var out *Invoice
	created := false
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		inv, ok, err := r.issue(ctx, tx, TypeStandard, orderID, nil, amount, email)
		out, created = inv, ok
		return err
	})
	if db.IsUniqueViolation(err) {
		inv, err := r.Get(ctx, orderID, TypeStandard)
		return inv, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// IssueRectification creates the negative invoice cancelling an order's standard invoice,
// issuing the standard one first if it is missing.
func (r *Repository) IssueRectification(ctx context.Context, orderID string, amount money.Cents, email string) (*Invoice, bool, error) {
	var out *Invoice
	created := false
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		original, _, err := r.issue(ctx, tx, TypeStandard, orderID, nil, amount, email)
		if err != nil {
			return err
		}
		inv, ok, err := r.issue(ctx, tx, TypeRectification, orderID, &original.ID, -original.AmountCents, email)
		out, created = inv, ok
		return err
	})
	if db.IsUniqueViolation(err) {
		inv, err := r.Get(ctx, orderID, TypeRectification)
		return inv, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (r *Repository) issue(ctx context.Context, tx pgx.Tx, invoiceType, orderID string, originalID *string, amount money.Cents, email string) (*Invoice, bool, error) {
	existing, err := r.get(ctx, tx, orderID, invoiceType)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	n, err := nextNumber(ctx, tx, invoiceType)
	if err != nil {
		return nil, false, err
	}
	inv := Invoice{
		ID:                uuid.NewString(),
		Number:            FormatNumber(invoiceType, n),
		Type:              invoiceType,
		OrderID:           orderID,
		OriginalInvoiceID: originalID,
		AmountCents:       amount,
		CustomerEmail:     email,
		CreatedAt:         r.nowFunc().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inv.ID, inv.Number, inv.Type, inv.OrderID, inv.OriginalInvoiceID, inv.AmountCents, inv.CustomerEmail, inv.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert invoice: %w", err)
	}
	return &inv, true, nil
}

// nextNumber bumps the per-type counter. The row lock serialises concurrent issuers.
func nextNumber(ctx context.Context, tx pgx.Tx, invoiceType string) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx, `
		INSERT INTO invoice_counters (invoice_type, last_value) VALUES ($1, 1)
		ON CONFLICT (invoice_type) DO UPDATE SET last_value = invoice_counters.last_value + 1
		RETURNING last_value
	`, invoiceType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next invoice number: %w", err)
	}
	return n, nil
}
