package catalog

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

// Repository reads and writes products, categories and the stock ledger in Postgres.
type Repository struct {
	db      db.TxBeginner
	nowFunc func() time.Time
}

func NewRepository(pool db.TxBeginner) *Repository {
	return &Repository{db: pool, nowFunc: time.Now}
}

const productColumns = `id, COALESCE(category_id, ''), name, brand, description, price_cents,
	images, sizes_available, active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Brand, &p.Description, &p.PriceCents,
		&p.Images, &p.SizesAvailable, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListProducts returns products ordered by newest first.
func (r *Repository) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	where := []string{}
	args := []any{}
	if !f.IncludeInactive {
		where = append(where, "active")
	}
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if f.Brand != "" {
		args = append(args, f.Brand)
		where = append(where, fmt.Sprintf("lower(brand) = lower($%d)", len(args)))
	}
	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProduct returns ErrProductNotFound when no row matches.
func (r *Repository) GetProduct(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// GetProducts loads the given ids in one round trip. Missing ids are absent from the map.
func (r *Repository) GetProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, "SELECT "+productColumns+" FROM products WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// CreateProduct inserts p, assigning an id when empty.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.SizesAvailable == nil {
		p.SizesAvailable = map[string]int{}
	}
	now := r.nowFunc().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.Exec(ctx, `
		INSERT INTO products (id, category_id, name, brand, description, price_cents, images,
			sizes_available, active, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, p.ID, p.CategoryID, p.Name, p.Brand, p.Description, p.PriceCents, p.Images, p.SizesAvailable, p.Active, now)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return &p, nil
}

// UpdateProduct overwrites the editable fields. Stock is changed through SetStock only.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) (*Product, error) {
	if p.Images == nil {
		p.Images = []string{}
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE products
		SET category_id = NULLIF($2, ''), name = $3, brand = $4, description = $5,
		    price_cents = $6, images = $7, active = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.CategoryID, p.Name, p.Brand, p.Description, p.PriceCents, p.Images, p.Active, r.nowFunc().UTC())
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrProductNotFound
	}
	return r.GetProduct(ctx, p.ID)
}

// DeactivateProduct hides a product. Rows are kept because orders reference them.
func (r *Repository) DeactivateProduct(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET active = FALSE, updated_at = $2 WHERE id = $1`, id, r.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, slug, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) CreateCategory(ctx context.Context, name, slug string) (*Category, error) {
	c := Category{ID: uuid.NewString(), Name: name, Slug: slug, CreatedAt: r.nowFunc().UTC()}
	_, err := r.db.Exec(ctx, `INSERT INTO categories (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Slug, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return &c, nil
}

// DeleteCategory detaches products from the category before removing it.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE products SET category_id = NULL WHERE category_id = $1`, id); err != nil {
			return fmt.Errorf("detach products: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCategoryNotFound
		}
		return nil
	})
}
