package store

import (
	"context"
	"fmt"
	"strings"

	"pos-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

const saleColumns = `id, invoice_no, product_code, product_name, qty, price, amount, profit,
	sale_date, payment_mode, status, created_at`

// InsertSale appends a sale row
func (q queries) InsertSale(ctx context.Context, sale *models.Sale) error {
	query := `
		INSERT INTO sales (invoice_no, product_code, product_name, qty, price, amount, profit, sale_date, payment_mode, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := sqlx.GetContext(ctx, q.ext, sale, query,
		sale.InvoiceNo, sale.ProductCode, sale.ProductName, sale.Qty, sale.Price,
		sale.Amount, sale.Profit, sale.Date, sale.PaymentMode, sale.Status)
	if err != nil {
		return models.StoreFailure(fmt.Errorf("failed to insert sale: %w", err))
	}
	return nil
}

// LockSale retrieves a sale with a FOR UPDATE lock
func (q queries) LockSale(ctx context.Context, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := sqlx.GetContext(ctx, q.ext, &sale,
		"SELECT "+saleColumns+" FROM sales WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &sale, nil
}

// DeleteSale removes a sale row
func (q queries) DeleteSale(ctx context.Context, id int64) error {
	return q.deleteByID(ctx, "DELETE FROM sales WHERE id = $1", id)
}

// QuerySales retrieves sales matching the filter, newest first
func (q queries) QuerySales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	conds := []string{"TRUE"}
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.From != nil {
		add("sale_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("sale_date <= $%d", *filter.To)
	}
	if filter.ProductName != "" {
		add("product_name ILIKE $%d", "%"+likePattern(filter.ProductName)+"%")
	}
	if filter.Year > 0 {
		add("EXTRACT(YEAR FROM sale_date) = $%d", filter.Year)
	}
	if filter.Month > 0 {
		add("EXTRACT(MONTH FROM sale_date) = $%d", filter.Month)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	query := "SELECT " + saleColumns + " FROM sales WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY sale_date DESC, id DESC"

	sales := []models.Sale{}
	if err := sqlx.SelectContext(ctx, q.ext, &sales, query, args...); err != nil {
		return nil, models.StoreFailure(err)
	}
	return sales, nil
}

func (q queries) deleteByID(ctx context.Context, query string, id int64) error {
	res, err := q.ext.ExecContext(ctx, query, id)
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
