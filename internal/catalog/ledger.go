package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/imrishuroy/sneakerstore/internal/db"
)

// Reduce takes line.Quantity units of line.Size for orderID. The decrement only
// happens while enough units remain, so stock never goes below zero. Calling it
// again for the same order and line is a no-op.
func (r *Repository) Reduce(ctx context.Context, orderID string, line Line) error {
	if line.Quantity <= 0 {
		return nil
	}
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		applied, err := r.recordMovement(ctx, tx, orderID, line, MovementSale, -line.Quantity)
		if err != nil || !applied {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET sizes_available = jsonb_set(sizes_available, ARRAY[$2::text],
			        to_jsonb((sizes_available->>$2::text)::int - $3::int)),
			    updated_at = NOW()
			WHERE id = $1 AND COALESCE((sizes_available->>$2::text)::int, 0) >= $3::int
		`, line.ProductID, line.Size, line.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrShort(ctx, tx, line.ProductID)
		}
		return nil
	})
}

// Restore gives line.Quantity units back for orderID, once per order and line. Lines whose
// sale was never recorded return ErrNoSaleMovement and leave stock untouched.
func (r *Repository) Restore(ctx context.Context, orderID string, line Line) error {
	if line.Quantity <= 0 {
		return nil
	}
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var sold bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM stock_movements
			              WHERE order_id = $1 AND product_id = $2 AND size = $3 AND movement_type = $4)
		`, orderID, line.ProductID, line.Size, MovementSale).Scan(&sold)
		if err != nil {
			return fmt.Errorf("check sale movement: %w", err)
		}
		if !sold {
			return ErrNoSaleMovement
		}

		applied, err := r.recordMovement(ctx, tx, orderID, line, MovementRestock, line.Quantity)
		if err != nil || !applied {
			return err
		}
		return r.increment(ctx, tx, line)
	})
}

// SetStock overwrites the units on hand for one size and records the difference.
func (r *Repository) SetStock(ctx context.Context, productID, size string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("stock for size %s: %w", size, ErrInsufficientStock)
	}
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var current int
		err := tx.QueryRow(ctx, `
			SELECT COALESCE((sizes_available->>$2::text)::int, 0) FROM products WHERE id = $1 FOR UPDATE
		`, productID, size).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE products
			SET sizes_available = jsonb_set(sizes_available, ARRAY[$2::text], to_jsonb($3::int)), updated_at = NOW()
			WHERE id = $1
		`, productID, size, quantity)
		if err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		_, err = r.recordMovement(ctx, tx, "adjustment:"+uuid.NewString(),
			Line{ProductID: productID, Size: size}, MovementAdjustment, quantity-current)
		return err
	})
}

// recordMovement reports false when the movement already exists.
func (r *Repository) recordMovement(ctx context.Context, tx pgx.Tx, orderID string, line Line, kind string, delta int) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (id, product_id, size, order_id, movement_type, delta)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id, product_id, size, movement_type) DO NOTHING
	`, uuid.NewString(), line.ProductID, line.Size, orderID, kind, delta)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return false, ErrProductNotFound
		}
		return false, fmt.Errorf("insert stock movement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) increment(ctx context.Context, tx pgx.Tx, line Line) error {
	tag, err := tx.Exec(ctx, `
		UPDATE products
		SET sizes_available = jsonb_set(sizes_available, ARRAY[$2::text],
		        to_jsonb(COALESCE((sizes_available->>$2::text)::int, 0) + $3::int)),
		    updated_at = NOW()
		WHERE id = $1
	`, line.ProductID, line.Size, line.Quantity)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *Repository) missingOrShort(ctx context.Context, tx pgx.Tx, productID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return ErrProductNotFound
	}
	return ErrInsufficientStock
}
