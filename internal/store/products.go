package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pos-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = `id, code, name, remaining_qty, sold_qty, actual_price, selling_price,
	archived_at, created_at, updated_at`

// CreateProduct inserts a product and fills its generated fields
func (q queries) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (code, name, remaining_qty, sold_qty, actual_price, selling_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.ext, product, query,
		product.Code, product.Name, product.RemainingQty, product.SoldQty,
		product.ActualPrice, product.SellingPrice)
	if err != nil {
		return uniqueViolation(err)
	}
	return nil
}

// GetProductByID retrieves a product by ID
func (q queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return q.getProduct(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
}

// GetProductByCode retrieves a product by code
func (q queries) GetProductByCode(ctx context.Context, code string) (*models.Product, error) {
	return q.getProduct(ctx, "SELECT "+productColumns+" FROM products WHERE code = $1", code)
}

// LockProductByCode retrieves a product by code with a FOR UPDATE lock
func (q queries) LockProductByCode(ctx context.Context, code string) (*models.Product, error) {
	return q.getProduct(ctx, "SELECT "+productColumns+" FROM products WHERE code = $1 FOR UPDATE", code)
}

// GetProductByName retrieves an active product by case-insensitive name
func (q queries) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	return q.getProduct(ctx,
		"SELECT "+productColumns+" FROM products WHERE lower(name) = lower($1) AND archived_at IS NULL", name)
}

func (q queries) getProduct(ctx context.Context, query string, args ...interface{}) (*models.Product, error) {
	var product models.Product
	if err := sqlx.GetContext(ctx, q.ext, &product, query, args...); err != nil {
		return nil, notFoundOr(err)
	}
	return &product, nil
}

// UpdateProduct writes the editable product fields
func (q queries) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, remaining_qty = $2, sold_qty = $3, actual_price = $4, selling_price = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	err := sqlx.GetContext(ctx, q.ext, &product.UpdatedAt, query,
		product.Name, product.RemainingQty, product.SoldQty,
		product.ActualPrice, product.SellingPrice, product.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return uniqueViolation(err)
	}
	return nil
}

// ArchiveProduct marks an active product as archived
func (q queries) ArchiveProduct(ctx context.Context, id int64, at time.Time) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE products SET archived_at = $1, updated_at = NOW() WHERE id = $2 AND archived_at IS NULL", at, id)
	if err != nil {
		return models.StoreFailure(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.StoreFailure(err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListProducts retrieves all active products
func (q queries) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := sqlx.SelectContext(ctx, q.ext, &products,
		"SELECT "+productColumns+" FROM products WHERE archived_at IS NULL ORDER BY name")
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	return products, nil
}

// SearchProducts matches active products by name or code prefix
func (q queries) SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error) {
	products := []models.Product{}
	err := sqlx.SelectContext(ctx, q.ext, &products,
		"SELECT "+productColumns+` FROM products
		WHERE archived_at IS NULL AND (name ILIKE $1 OR code LIKE $1)
		ORDER BY name LIMIT $2`,
		likePattern(term)+"%", limit)
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	return products, nil
}

// AdjustStock applies stock deltas with a conditional update
func (q queries) AdjustStock(ctx context.Context, code string, deltaRemaining, deltaSold int) (*models.Product, error) {
	query := `
		UPDATE products
		SET remaining_qty = remaining_qty + $1, sold_qty = GREATEST(sold_qty + $2, 0), updated_at = NOW()
		WHERE code = $3 AND remaining_qty + $1 >= 0
		RETURNING ` + productColumns

	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product, query, deltaRemaining, deltaSold, code)
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, models.StoreFailure(err)
	}

	var exists bool
	if err := sqlx.GetContext(ctx, q.ext, &exists,
		"SELECT EXISTS(SELECT 1 FROM products WHERE code = $1)", code); err != nil {
		return nil, models.StoreFailure(err)
	}
	if !exists {
		return nil, models.ErrNotFound
	}
	return nil, models.ErrInsufficientStock
}
