package service

import (
	"context"
	"testing"
	"time"

	"pos-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tea := f.product(t, "Tea", 20, "1", "2")
	milk := f.product(t, "Milk", 6, "1", "3")
	f.product(t, "Sugar", 2, "1", "2")
	gone := f.product(t, "Salt", 1, "1", "2")
	require.NoError(t, f.catalog.DeleteProduct(ctx, gone.ID))

	_, err := f.checkout.Checkout(ctx, CheckoutRequest{
		Lines: []CartLine{
			{ProductCode: tea.Code, Qty: 2},
			{ProductCode: milk.Code, Qty: 3},
		},
	})
	require.NoError(t, err)

	f.recordSale(t, SaleEntry{
		ProductCode: tea.Code, ProductName: tea.Name, Qty: 1,
		UnitPrice: dec("2"), UnitCost: dec("1"),
		Date: day(2024, time.March, 2),
	})
	f.recordSale(t, SaleEntry{
		ProductCode: tea.Code, ProductName: tea.Name, Qty: 1,
		UnitPrice: dec("2"), UnitCost: dec("1"),
		Date:   day(2024, time.February, 28),
		Status: models.SaleStatusUnpaid,
	})

	_, err = f.credits.OpenCredit(ctx, openRequest(tea.Code, 2, "4", "1"))
	require.NoError(t, err)

	summary, err := f.dashboard.Summary(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.ProductCount)
	assert.Equal(t, 5, summary.LowStockThreshold)
	names := []string{}
	for _, p := range summary.LowStock {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"Milk", "Sugar"}, names)

	assert.Equal(t, 2, summary.Today.Sales)
	assertDecimal(t, "13", summary.Today.Revenue)
	assertDecimal(t, "8", summary.Today.Profit)

	assert.Equal(t, 3, summary.Month.Sales)
	assertDecimal(t, "15", summary.Month.Revenue)
	assertDecimal(t, "9", summary.Month.Profit)

	assert.Equal(t, 1, summary.UnpaidSales)
	require.Len(t, summary.Debtors, 1)
	assertDecimal(t, "3", summary.OutstandingBalance)
}

func TestDashboardEmptyStore(t *testing.T) {
	f := newFixture(t)

	summary, err := f.dashboard.Summary(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.ProductCount)
	assert.Empty(t, summary.LowStock)
	assert.Empty(t, summary.Debtors)
	assert.Zero(t, summary.Today.Sales)
	assertDecimal(t, "0", summary.OutstandingBalance)
}

func TestNewDashboardDefaultsThreshold(t *testing.T) {
	d := NewDashboard(newFixture(t).store, 0)
	assert.Equal(t, defaultLowStockThreshold, d.lowStockThreshold)
}
