package service

import (
	"context"
	"testing"
	"time"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) recordSale(t *testing.T, entry SaleEntry) *models.Sale {
	t.Helper()
	var sale *models.Sale
	err := f.store.InTx(context.Background(), func(ctx context.Context, q store.Queries) error {
		var err error
		sale, err = f.sales.RecordSale(ctx, q, entry)
		return err
	})
	require.NoError(t, err)
	return sale
}

func TestRecordSaleComputesAmountAndProfit(t *testing.T) {
	f := newFixture(t)

	sale := f.recordSale(t, SaleEntry{
		InvoiceNo:   "INV1",
		ProductCode: "1234",
		ProductName: "Widget",
		Qty:         3,
		UnitPrice:   dec("5.50"),
		UnitCost:    dec("2.25"),
	})

	assertDecimal(t, "16.50", sale.Amount)
	assertDecimal(t, "9.75", sale.Profit)
	assert.Equal(t, models.SaleStatusPaid, sale.Status)
	assert.Equal(t, models.PaymentModeCash, sale.PaymentMode)
	assert.Equal(t, day(2024, time.March, 13), sale.Date)
}

func TestRecordSaleValidation(t *testing.T) {
	f := newFixture(t)

	err := f.store.InTx(context.Background(), func(ctx context.Context, q store.Queries) error {
		_, err := f.sales.RecordSale(ctx, q, SaleEntry{ProductCode: "1", Qty: 0})
		return err
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	err = f.store.InTx(context.Background(), func(ctx context.Context, q store.Queries) error {
		_, err := f.sales.RecordSale(ctx, q, SaleEntry{ProductCode: "1", Qty: 1, Status: "refunded"})
		return err
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	negative := dec("-1")
	err = f.store.InTx(context.Background(), func(ctx context.Context, q store.Queries) error {
		_, err := f.sales.RecordSale(ctx, q, SaleEntry{ProductCode: "1", Qty: 1, Amount: &negative})
		return err
	})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, f.allSales(t))
}

func TestSaleRowsStayFrozenAfterPriceChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "2", "5")

	_, err := f.checkout.Checkout(ctx, CheckoutRequest{Lines: []CartLine{{ProductCode: p.Code, Qty: 2}}})
	require.NoError(t, err)

	cost, price := dec("4"), dec("9")
	_, err = f.catalog.UpdateProduct(ctx, p.ID, ProductUpdate{ActualPrice: &cost, SellingPrice: &price})
	require.NoError(t, err)

	sales := f.allSales(t)
	require.Len(t, sales, 1)
	assertDecimal(t, "10", sales[0].Amount)
	assertDecimal(t, "6", sales[0].Profit)
}

func TestReverseSaleRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "2", "5")

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{Lines: []CartLine{{ProductCode: p.Code, Qty: 4}}})
	require.NoError(t, err)
	require.Len(t, result.Sales, 1)

	before := f.reload(t, p.Code)
	assert.Equal(t, 6, before.RemainingQty)
	assert.Equal(t, 4, before.SoldQty)

	reversal, err := f.sales.ReverseSale(ctx, result.Sales[0].ID)
	require.NoError(t, err)
	assert.True(t, reversal.StockRestored)

	after := f.reload(t, p.Code)
	assert.Equal(t, 10, after.RemainingQty)
	assert.Equal(t, 0, after.SoldQty)
	assert.Empty(t, f.allSales(t))

	_, err = f.sales.ReverseSale(ctx, result.Sales[0].ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 10, f.reload(t, p.Code).RemainingQty)
}

func TestReverseSaleOnArchivedProductStillRestores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "2", "5")

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{Lines: []CartLine{{ProductCode: p.Code, Qty: 4}}})
	require.NoError(t, err)
	require.NoError(t, f.catalog.DeleteProduct(ctx, p.ID))

	reversal, err := f.sales.ReverseSale(ctx, result.Sales[0].ID)
	require.NoError(t, err)
	assert.True(t, reversal.StockRestored)
	assert.Equal(t, 10, f.reload(t, p.Code).RemainingQty)
}

func TestReverseSaleWithoutProductOnlyDeletesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sale := f.recordSale(t, SaleEntry{ProductCode: "4040", ProductName: "Gone", Qty: 1, UnitPrice: dec("3")})

	reversal, err := f.sales.ReverseSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.False(t, reversal.StockRestored)
	assert.Nil(t, reversal.Product)
	assert.Empty(t, f.allSales(t))

	require.Len(t, f.events.sales, 1)
	assert.Equal(t, -1, f.events.sales[0].RemainingQty)
}

func TestQueryFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entries := []SaleEntry{
		{ProductName: "Green Tea", Date: day(2023, time.December, 30)},
		{ProductName: "Black Tea", Date: day(2024, time.February, 2)},
		{ProductName: "Coffee", Date: day(2024, time.March, 11)},
		{ProductName: "Tea Cups", Date: day(2024, time.March, 13)},
		{ProductName: "Coffee", Date: day(2024, time.March, 18), Status: models.SaleStatusUnpaid},
	}
	for i := range entries {
		entries[i].ProductCode = "1000"
		entries[i].Qty = 1
		entries[i].UnitPrice = dec("2")
		f.recordSale(t, entries[i])
	}

	names := func(q SaleQuery) []string {
		t.Helper()
		report, err := f.sales.Query(ctx, q)
		require.NoError(t, err)
		out := make([]string, 0, len(report.Sales))
		for _, s := range report.Sales {
			out = append(out, s.ProductName)
		}
		return out
	}

	from, to := day(2024, time.February, 1), day(2024, time.March, 12)
	assert.Equal(t, []string{"Coffee", "Black Tea"}, names(SaleQuery{From: &from, To: &to}))
	assert.Equal(t, []string{"Tea Cups", "Black Tea", "Green Tea"}, names(SaleQuery{ProductName: "tea"}))
	assert.Equal(t, []string{"Green Tea"}, names(SaleQuery{Year: 2023}))
	assert.Equal(t, []string{"Coffee", "Tea Cups", "Coffee"}, names(SaleQuery{Month: 3}))
	assert.Equal(t, []string{"Tea Cups", "Coffee"}, names(SaleQuery{CurrentWeek: true}))
	assert.Equal(t, []string{"Coffee"}, names(SaleQuery{Status: models.SaleStatusUnpaid}))
	assert.Equal(t, []string{"Black Tea"}, names(SaleQuery{Year: 2024, ProductName: "TEA", Month: 2}))

	report, err := f.sales.Query(ctx, SaleQuery{Year: 2024})
	require.NoError(t, err)
	assert.Equal(t, 4, report.TotalQty)
	assertDecimal(t, "8", report.TotalAmount)
}

func TestQueryValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sales.Query(ctx, SaleQuery{Month: 13})
	assert.ErrorIs(t, err, models.ErrValidation)

	from, to := day(2024, time.March, 2), day(2024, time.March, 1)
	_, err = f.sales.Query(ctx, SaleQuery{From: &from, To: &to})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestISOWeekBounds(t *testing.T) {
	monday, sunday := isoWeekBounds(day(2024, time.March, 17))
	assert.Equal(t, day(2024, time.March, 11), monday)
	assert.Equal(t, day(2024, time.March, 17), sunday)

	monday, sunday = isoWeekBounds(day(2024, time.March, 11))
	assert.Equal(t, day(2024, time.March, 11), monday)
	assert.Equal(t, day(2024, time.March, 17), sunday)
}
