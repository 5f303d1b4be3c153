package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry with its stock counters
type Product struct {
	ID           int64           `db:"id" json:"id"`
	Code         string          `db:"code" json:"code"`
	Name         string          `db:"name" json:"name"`
	RemainingQty int             `db:"remaining_qty" json:"remaining_qty"`
	SoldQty      int             `db:"sold_qty" json:"sold_qty"`
	ActualPrice  decimal.Decimal `db:"actual_price" json:"actual_price"`
	SellingPrice decimal.Decimal `db:"selling_price" json:"selling_price"`
	ArchivedAt   *time.Time      `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Archived reports whether the product was removed from the catalog.
// Archived rows stay in place so ledger history can still resolve them.
func (p *Product) Archived() bool {
	return p.ArchivedAt != nil
}

// Sale represents one line of a completed transaction.
// Amount and Profit are frozen at insertion time.
type Sale struct {
	ID          int64           `db:"id" json:"id"`
	InvoiceNo   string          `db:"invoice_no" json:"invoice_no"`
	ProductCode string          `db:"product_code" json:"product_code"`
	ProductName string          `db:"product_name" json:"product_name"`
	Qty         int             `db:"qty" json:"qty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Profit      decimal.Decimal `db:"profit" json:"profit"`
	Date        time.Time       `db:"sale_date" json:"date"`
	PaymentMode string          `db:"payment_mode" json:"payment_mode"`
	Status      string          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Credit represents an open deferred-payment obligation
type Credit struct {
	ID           int64           `db:"id" json:"id"`
	InvoiceNo    string          `db:"invoice_no" json:"invoice_no"`
	CustomerName string          `db:"customer_name" json:"customer_name"`
	Phone        string          `db:"phone" json:"phone"`
	NationalID   string          `db:"national_id" json:"national_id"`
	ProductCode  string          `db:"product_code" json:"product_code"`
	ProductName  string          `db:"product_name" json:"product_name"`
	Qty          int             `db:"qty" json:"qty"`
	Total        decimal.Decimal `db:"total" json:"total"`
	Paid         decimal.Decimal `db:"paid" json:"paid"`
	PaymentMode  string          `db:"payment_mode" json:"payment_mode"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Balance returns the amount still owed
func (c *Credit) Balance() decimal.Decimal {
	return c.Total.Sub(c.Paid)
}

// IsDebtor reports whether anything is still owed on the credit
func (c *Credit) IsDebtor() bool {
	return c.Total.GreaterThan(c.Paid)
}

// Customer identifies the holder of a credit
type Customer struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	NationalID string `json:"national_id"`
}

// SaleFilter narrows a sales query. Zero values disable a filter.
type SaleFilter struct {
	From        *time.Time
	To          *time.Time
	ProductName string
	Year        int
	Month       int
	Status      string
}

// Sale statuses
const (
	SaleStatusPaid   = "paid"
	SaleStatusUnpaid = "unpaid"
)

// Payment modes
const (
	PaymentModeCash   = "cash"
	PaymentModeCard   = "card"
	PaymentModeMobile = "mobile"
)

// DefaultPaymentMode returns mode, or cash when mode is empty
func DefaultPaymentMode(mode string) string {
	if mode == "" {
		return PaymentModeCash
	}
	return mode
}

// DateOf truncates t to its calendar day in t's location, returned as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
