package service

import (
	"context"
	"time"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
	"pos-ledger/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultLowStockThreshold = 5

// Dashboard aggregates read-only figures for the front counter
type Dashboard struct {
	store             store.Backend
	lowStockThreshold int
	opts              options
	logger            *zap.Logger
}

// NewDashboard creates a new dashboard service
func NewDashboard(backend store.Backend, lowStockThreshold int, opts ...Option) *Dashboard {
	o := buildOptions("dashboard", opts)
	if lowStockThreshold <= 0 {
		lowStockThreshold = defaultLowStockThreshold
	}
	return &Dashboard{
		store:             backend,
		lowStockThreshold: lowStockThreshold,
		opts:              o,
		logger:            o.logger,
	}
}

// PeriodTotals sums sales over a date range
type PeriodTotals struct {
	Sales   int             `json:"sales"`
	Revenue decimal.Decimal `json:"revenue"`
	Profit  decimal.Decimal `json:"profit"`
}

// Summary is the dashboard view
type Summary struct {
	ProductCount       int              `json:"product_count"`
	LowStockThreshold  int              `json:"low_stock_threshold"`
	LowStock           []models.Product `json:"low_stock"`
	Today              PeriodTotals     `json:"today"`
	Month              PeriodTotals     `json:"month"`
	UnpaidSales        int              `json:"unpaid_sales"`
	Debtors            []models.Credit  `json:"debtors"`
	OutstandingBalance decimal.Decimal  `json:"outstanding_balance"`
}

// Summary collects catalog, sales and credit figures
func (d *Dashboard) Summary(ctx context.Context) (*Summary, error) {
	ctx, span := util.StartSpan(ctx, "Dashboard.Summary")
	defer span.End()

	products, err := d.store.ListProducts(ctx)
	if err != nil {
		return nil, models.NewOpError("summary", "products", "", err)
	}

	summary := &Summary{
		ProductCount:       len(products),
		LowStockThreshold:  d.lowStockThreshold,
		LowStock:           []models.Product{},
		OutstandingBalance: decimal.Zero,
	}
	for _, p := range products {
		if p.RemainingQty < d.lowStockThreshold {
			summary.LowStock = append(summary.LowStock, p)
		}
	}

	today := d.opts.today()
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	if summary.Today, err = d.totals(ctx, today, today); err != nil {
		return nil, err
	}
	if summary.Month, err = d.totals(ctx, monthStart, monthStart.AddDate(0, 1, -1)); err != nil {
		return nil, err
	}

	unpaid, err := d.store.QuerySales(ctx, models.SaleFilter{Status: models.SaleStatusUnpaid})
	if err != nil {
		return nil, models.NewOpError("summary", "sales", "", err)
	}
	summary.UnpaidSales = len(unpaid)

	credits, err := d.store.ListCredits(ctx)
	if err != nil {
		return nil, models.NewOpError("summary", "credits", "", err)
	}
	summary.Debtors = debtorsOf(credits)
	for _, c := range summary.Debtors {
		summary.OutstandingBalance = summary.OutstandingBalance.Add(c.Balance())
	}

	d.logger.Debug("Dashboard summary built",
		zap.Int("products", summary.ProductCount),
		zap.Int("low_stock", len(summary.LowStock)),
		zap.Int("debtors", len(summary.Debtors)))
	return summary, nil
}

func (d *Dashboard) totals(ctx context.Context, from, to time.Time) (PeriodTotals, error) {
	sales, err := d.store.QuerySales(ctx, models.SaleFilter{From: &from, To: &to})
	if err != nil {
		return PeriodTotals{}, models.NewOpError("summary", "sales", "", err)
	}
	report := summarise(sales)
	return PeriodTotals{
		Sales:   len(sales),
		Revenue: report.TotalAmount,
		Profit:  report.TotalProfit,
	}, nil
}
