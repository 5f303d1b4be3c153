package store

import (
	"context"

	"pos-ledger/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const creditColumns = `id, invoice_no, customer_name, phone, national_id, product_code, product_name,
	qty, total, paid, payment_mode, created_at`

// InsertCredit inserts an open credit
func (q queries) InsertCredit(ctx context.Context, credit *models.Credit) error {
	query := `
		INSERT INTO credits (invoice_no, customer_name, phone, national_id, product_code, product_name, qty, total, paid, payment_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := sqlx.GetContext(ctx, q.ext, credit, query,
		credit.InvoiceNo, credit.CustomerName, credit.Phone, credit.NationalID,
		credit.ProductCode, credit.ProductName, credit.Qty, credit.Total, credit.Paid, credit.PaymentMode)
	if err != nil {
		return models.StoreFailure(err)
	}
	return nil
}

// GetCredit retrieves a credit by ID
func (q queries) GetCredit(ctx context.Context, id int64) (*models.Credit, error) {
	return q.getCredit(ctx, "SELECT "+creditColumns+" FROM credits WHERE id = $1", id)
}

// LockCredit retrieves a credit with a FOR UPDATE lock
func (q queries) LockCredit(ctx context.Context, id int64) (*models.Credit, error) {
	return q.getCredit(ctx, "SELECT "+creditColumns+" FROM credits WHERE id = $1 FOR UPDATE", id)
}

func (q queries) getCredit(ctx context.Context, query string, id int64) (*models.Credit, error) {
	var credit models.Credit
	if err := sqlx.GetContext(ctx, q.ext, &credit, query, id); err != nil {
		return nil, notFoundOr(err)
	}
	return &credit, nil
}

// UpdateCreditPaid records the amount received so far
func (q queries) UpdateCreditPaid(ctx context.Context, id int64, paid decimal.Decimal) error {
	res, err := q.ext.ExecContext(ctx, "UPDATE credits SET paid = $1 WHERE id = $2", paid, id)
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

// DeleteCredit removes a credit row
func (q queries) DeleteCredit(ctx context.Context, id int64) error {
	return q.deleteByID(ctx, "DELETE FROM credits WHERE id = $1", id)
}

// ListCredits retrieves all credits, newest first
func (q queries) ListCredits(ctx context.Context) ([]models.Credit, error) {
	credits := []models.Credit{}
	err := sqlx.SelectContext(ctx, q.ext, &credits,
		"SELECT "+creditColumns+" FROM credits ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, models.StoreFailure(err)
	}
	return credits, nil
}
