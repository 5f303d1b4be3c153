package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"pos-ledger/internal/auth"
	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
	"pos-ledger/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// money values on ledger rows are kept to cents
const moneyPlaces = 2

func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(moneyPlaces))
}

// SalesLedger records and reverses completed sales
type SalesLedger struct {
	store  store.Backend
	events eventSink
	opts   options
	logger *zap.Logger
}

// NewSalesLedger creates a new sales ledger
func NewSalesLedger(backend store.Backend, publisher EventPublisher, opts ...Option) *SalesLedger {
	o := buildOptions("sales", opts)
	return &SalesLedger{
		store:  backend,
		events: eventSink{publisher: publisher, logger: o.logger},
		opts:   o,
		logger: o.logger,
	}
}

// SaleEntry is the input for RecordSale
type SaleEntry struct {
	InvoiceNo   string
	ProductCode string
	ProductName string
	Qty         int
	UnitPrice   decimal.Decimal
	UnitCost    decimal.Decimal
	// Amount, when set, is recorded as is instead of UnitPrice x Qty
	Amount      *decimal.Decimal
	Date        time.Time
	PaymentMode string
	Status      string
}

// RecordSale computes amount and profit once and appends the row through q,
// so it commits or rolls back with the caller's transaction
func (l *SalesLedger) RecordSale(ctx context.Context, q store.Queries, entry SaleEntry) (*models.Sale, error) {
	if entry.Qty <= 0 {
		return nil, models.Validationf("sale quantity must be positive")
	}
	if entry.UnitPrice.IsNegative() {
		return nil, models.Validationf("sale price must not be negative")
	}
	switch entry.Status {
	case "":
		entry.Status = models.SaleStatusPaid
	case models.SaleStatusPaid, models.SaleStatusUnpaid:
	default:
		return nil, models.Validationf("unknown sale status %q", entry.Status)
	}
	if entry.Date.IsZero() {
		entry.Date = l.opts.today()
	}

	qty := decimal.NewFromInt(int64(entry.Qty))
	amount := entry.UnitPrice.Mul(qty).Round(moneyPlaces)
	if entry.Amount != nil {
		if entry.Amount.IsNegative() {
			return nil, models.Validationf("sale amount must not be negative")
		}
		amount = entry.Amount.Round(moneyPlaces)
	}

	sale := &models.Sale{
		InvoiceNo:   entry.InvoiceNo,
		ProductCode: entry.ProductCode,
		ProductName: entry.ProductName,
		Qty:         entry.Qty,
		Price:       entry.UnitPrice,
		Amount:      amount,
		Profit:      amount.Sub(entry.UnitCost.Mul(qty)).Round(moneyPlaces),
		Date:        models.DateOf(entry.Date),
		PaymentMode: models.DefaultPaymentMode(entry.PaymentMode),
		Status:      entry.Status,
	}

	if err := q.InsertSale(ctx, sale); err != nil {
		return nil, err
	}
	util.SalesRecordedTotal.Inc()
	return sale, nil
}

// Reversal describes a reversed sale
type Reversal struct {
	Sale          models.Sale     `json:"sale"`
	StockRestored bool            `json:"stock_restored"`
	Product       *models.Product `json:"product,omitempty"`
}

// ReverseSale deletes a sale and puts its quantity back on the product.
// When the product row no longer exists only the sale is removed.
func (l *SalesLedger) ReverseSale(ctx context.Context, saleID int64) (reversal *Reversal, err error) {
	ctx, span := util.StartSpan(ctx, "SalesLedger.ReverseSale")
	defer func() { util.EndSpan(span, err) }()

	err = l.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		sale, err := q.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		reversal = &Reversal{Sale: *sale}

		_, err = q.LockProductByCode(ctx, sale.ProductCode)
		switch {
		case err == nil:
			product, err := q.AdjustStock(ctx, sale.ProductCode, sale.Qty, -sale.Qty)
			if err != nil {
				return err
			}
			reversal.StockRestored = true
			reversal.Product = product
		case errors.Is(err, models.ErrNotFound):
		default:
			return err
		}

		return q.DeleteSale(ctx, saleID)
	})
	if err != nil {
		return nil, models.NewOpError("reverse", "sale", strconv.FormatInt(saleID, 10), err)
	}

	util.SalesReversedTotal.Inc()
	l.logger.Info("Sale reversed",
		zap.Int64("sale_id", saleID),
		zap.String("invoice_no", reversal.Sale.InvoiceNo),
		zap.Bool("stock_restored", reversal.StockRestored),
		zap.String("caller", auth.SubjectFrom(ctx)))
	l.events.sale(ctx, models.EventTypeSaleReversed, &reversal.Sale, reversal.Product)

	return reversal, nil
}

// SaleQuery selects sales for reports. Zero values disable a filter;
// every enabled filter must match.
type SaleQuery struct {
	From        *time.Time
	To          *time.Time
	ProductName string
	Year        int
	Month       int
	CurrentWeek bool
	Status      string
}

// SalesReport is a query result with its totals
type SalesReport struct {
	Sales       []models.Sale   `json:"sales"`
	TotalQty    int             `json:"total_qty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalProfit decimal.Decimal `json:"total_profit"`
}

// Query returns matching sales, newest first. It never mutates.
func (l *SalesLedger) Query(ctx context.Context, query SaleQuery) (*SalesReport, error) {
	ctx, span := util.StartSpan(ctx, "SalesLedger.Query")
	defer span.End()

	filter, err := l.buildFilter(query)
	if err != nil {
		return nil, models.NewOpError("query", "sales", "", err)
	}

	sales, err := l.store.QuerySales(ctx, filter)
	if err != nil {
		return nil, models.NewOpError("query", "sales", "", err)
	}
	return summarise(sales), nil
}

func (l *SalesLedger) buildFilter(query SaleQuery) (models.SaleFilter, error) {
	filter := models.SaleFilter{
		ProductName: strings.TrimSpace(query.ProductName),
		Year:        query.Year,
		Month:       query.Month,
		Status:      query.Status,
	}
	if query.Year < 0 {
		return filter, models.Validationf("invalid year %d", query.Year)
	}
	if query.Month < 0 || query.Month > 12 {
		return filter, models.Validationf("invalid month %d", query.Month)
	}
	switch query.Status {
	case "", models.SaleStatusPaid, models.SaleStatusUnpaid:
	default:
		return filter, models.Validationf("unknown sale status %q", query.Status)
	}

	if query.From != nil {
		from := models.DateOf(*query.From)
		filter.From = &from
	}
	if query.To != nil {
		to := models.DateOf(*query.To)
		filter.To = &to
	}

	if query.CurrentWeek {
		monday, sunday := isoWeekBounds(l.opts.today())
		if filter.From == nil || filter.From.Before(monday) {
			filter.From = &monday
		}
		if filter.To == nil || filter.To.After(sunday) {
			filter.To = &sunday
		}
	}

	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		if !query.CurrentWeek {
			return filter, models.Validationf("date range starts after it ends")
		}
	}
	return filter, nil
}

// isoWeekBounds returns Monday and Sunday of the ISO week containing day
func isoWeekBounds(day time.Time) (time.Time, time.Time) {
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

func summarise(sales []models.Sale) *SalesReport {
	report := &SalesReport{
		Sales:       sales,
		TotalAmount: decimal.Zero,
		TotalProfit: decimal.Zero,
	}
	for _, s := range sales {
		report.TotalQty += s.Qty
		report.TotalAmount = report.TotalAmount.Add(s.Amount)
		report.TotalProfit = report.TotalProfit.Add(s.Profit)
	}
	return report
}
