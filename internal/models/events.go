package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeProductCreated       = "PRODUCT_CREATED"
	EventTypeProductUpdated       = "PRODUCT_UPDATED"
	EventTypeProductArchived      = "PRODUCT_ARCHIVED"
	EventTypeSaleRecorded         = "SALE_RECORDED"
	EventTypeSaleReversed         = "SALE_REVERSED"
	EventTypeCreditOpened         = "CREDIT_OPENED"
	EventTypeCreditPaymentApplied = "CREDIT_PAYMENT_APPLIED"
	EventTypeCreditSettled        = "CREDIT_SETTLED"
	EventTypeCreditCancelled      = "CREDIT_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// StockSnapshot is the product state right after the change that produced the event
type StockSnapshot struct {
	ProductCode  string `json:"product_code"`
	ProductName  string `json:"product_name"`
	RemainingQty int    `json:"remaining_qty"`
}

// ProductEvent published when the catalog changes
type ProductEvent struct {
	BaseEvent
	StockSnapshot
	ProductID int64 `json:"product_id"`
}

// SaleEvent published when a sale is recorded or reversed
type SaleEvent struct {
	BaseEvent
	StockSnapshot
	SaleID    int64           `json:"sale_id"`
	InvoiceNo string          `json:"invoice_no"`
	Qty       int             `json:"qty"`
	Amount    decimal.Decimal `json:"amount"`
	Profit    decimal.Decimal `json:"profit"`
}

// CreditEvent published on every credit transition
type CreditEvent struct {
	BaseEvent
	StockSnapshot
	CreditID  int64           `json:"credit_id"`
	InvoiceNo string          `json:"invoice_no"`
	Qty       int             `json:"qty"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	SaleID    int64           `json:"sale_id,omitempty"`
}
