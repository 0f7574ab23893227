package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/imrishuroy/sneakerstore/internal/db"
)

var ErrCodeExists = errors.New("discount code already exists")

// Repository stores discount codes and their usages in Postgres.
type Repository struct {
	db      db.TxBeginner
	nowFunc func() time.Time
}

func NewRepository(pool db.TxBeginner) *Repository {
	return &Repository{db: pool, nowFunc: time.Now}
}

const codeColumns = `id, code, discount_type, discount_value, description, active, starts_at,
	expires_at, min_purchase_cents, max_uses, uses_count, max_uses_per_user, created_at`

func scanCode(row pgx.Row) (Code, error) {
	var c Code
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.Description, &c.Active, &c.StartsAt,
		&c.ExpiresAt, &c.MinPurchase, &c.MaxUses, &c.UsesCount, &c.MaxUsesPerUser, &c.CreatedAt)
	return c, err
}

// GetByCode matches case-insensitively.
func (r *Repository) GetByCode(ctx context.Context, code string) (*Code, error) {
	c, err := scanCode(r.db.QueryRow(ctx, "SELECT "+codeColumns+" FROM discount_codes WHERE upper(code) = upper($1)", code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get discount code: %w", err)
	}
	return &c, nil
}

func (r *Repository) CountUserUsages(ctx context.Context, codeID, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM discount_usages WHERE discount_code_id = $1 AND user_id = $2`,
		codeID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usages: %w", err)
	}
	return n, nil
}

// RecordUsage logs that orderID used code and bumps uses_count, once per order.
// It reports false when the order's usage was already recorded.
func (r *Repository) RecordUsage(ctx context.Context, code, orderID, userID, email string) (bool, error) {
	recorded := false
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var codeID string
		err := tx.QueryRow(ctx, `SELECT id FROM discount_codes WHERE upper(code) = upper($1)`, code).Scan(&codeID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("find code: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO discount_usages (id, discount_code_id, order_id, user_id, email, created_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
			ON CONFLICT (order_id) DO NOTHING
		`, uuid.NewString(), codeID, orderID, userID, email, r.nowFunc().UTC())
		if err != nil {
			return fmt.Errorf("insert usage: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE discount_codes SET uses_count = uses_count + 1 WHERE id = $1`, codeID); err != nil {
			return fmt.Errorf("increment uses: %w", err)
		}
		recorded = true
		return nil
	})
	return recorded, err
}

// Create inserts c. Codes are stored upper-cased.
func (r *Repository) Create(ctx context.Context, c Code) (*Code, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.CreatedAt = r.nowFunc().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO discount_codes (id, code, discount_type, discount_value, description, active,
			starts_at, expires_at, min_purchase_cents, max_uses, uses_count, max_uses_per_user, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12)
	`, c.ID, c.Code, string(c.Type), c.Value, c.Description, c.Active, c.StartsAt, c.ExpiresAt,
		c.MinPurchase, c.MaxUses, c.MaxUsesPerUser, c.CreatedAt)
	if db.IsUniqueViolation(err) {
		return nil, ErrCodeExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert discount code: %w", err)
	}
	return &c, nil
}

func (r *Repository) List(ctx context.Context) ([]Code, error) {
	rows, err := r.db.Query(ctx, "SELECT "+codeColumns+" FROM discount_codes ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list discount codes: %w", err)
	}
	defer rows.Close()
	out := []Code{}
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discount code: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) SetActive(ctx context.Context, id string, active bool) (*Code, error) {
	c, err := scanCode(r.db.QueryRow(ctx,
		"UPDATE discount_codes SET active = $2 WHERE id = $1 RETURNING "+codeColumns, id, active))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set active: %w", err)
	}
	return &c, nil
}
