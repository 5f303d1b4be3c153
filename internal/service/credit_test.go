package service

import (
	"context"
	"testing"

	"pos-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRequest(code string, qty int, total, paid string) OpenCreditRequest {
	return OpenCreditRequest{
		Customer:    models.Customer{Name: "Jane Doe", Phone: "0700000000", NationalID: "12345678"},
		ProductCode: code,
		Qty:         qty,
		Total:       dec(total),
		Paid:        dec(paid),
		PaymentMode: models.PaymentModeMobile,
	}
}

func TestOpenCreditReservesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "12", "20")

	credit, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 5, "100", "40"))
	require.NoError(t, err)

	assert.NotZero(t, credit.ID)
	assert.Equal(t, "CR0001", credit.InvoiceNo)
	assert.Equal(t, "Widget", credit.ProductName)
	assertDecimal(t, "60", credit.Balance())

	after := f.reload(t, p.Code)
	assert.Equal(t, 5, after.RemainingQty)
	assert.Equal(t, 0, after.SoldQty)
	assert.Empty(t, f.allSales(t))
}

func TestOpenThenCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "12", "20")

	credit, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 5, "100", "40"))
	require.NoError(t, err)

	_, err = f.credits.CancelCredit(ctx, credit.ID)
	require.NoError(t, err)

	after := f.reload(t, p.Code)
	assert.Equal(t, 10, after.RemainingQty)
	assert.Equal(t, 0, after.SoldQty)
	assert.Empty(t, f.allSales(t))

	_, err = f.credits.Get(ctx, credit.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.credits.CancelCredit(ctx, credit.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, []string{models.EventTypeCreditOpened, models.EventTypeCreditCancelled}, f.events.creditTypes())
}

func TestOpenCreditRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "12", "20")
	archived := f.product(t, "Old Widget", 10, "12", "20")
	require.NoError(t, f.catalog.DeleteProduct(ctx, archived.ID))

	tests := []struct {
		name string
		req  OpenCreditRequest
		want error
	}{
		{"paid equals total", openRequest(p.Code, 5, "100", "100"), models.ErrValidation},
		{"paid exceeds total", openRequest(p.Code, 5, "100", "120"), models.ErrValidation},
		{"zero quantity", openRequest(p.Code, 0, "100", "10"), models.ErrValidation},
		{"negative paid", openRequest(p.Code, 1, "100", "-1"), models.ErrValidation},
		{"insufficient stock", openRequest(p.Code, 11, "100", "10"), models.ErrInsufficientStock},
		{"unknown product", openRequest("missing", 1, "100", "10"), models.ErrNotFound},
		{"archived product", openRequest(archived.Code, 1, "100", "10"), models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.credits.OpenCredit(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	missingName := openRequest(p.Code, 1, "100", "10")
	missingName.Customer.Name = " "
	_, err := f.credits.OpenCredit(ctx, missingName)
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.Equal(t, 10, f.reload(t, p.Code).RemainingQty)
	open, err := f.credits.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAddPaymentSettlesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "12", "20")

	credit, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 5, "100", "40"))
	require.NoError(t, err)

	partial, err := f.credits.AddPayment(ctx, credit.ID, dec("30"))
	require.NoError(t, err)
	assert.False(t, partial.Settled)
	require.NotNil(t, partial.Credit)
	assertDecimal(t, "70", partial.Credit.Paid)
	assert.Empty(t, f.allSales(t))

	final, err := f.credits.AddPayment(ctx, credit.ID, dec("30"))
	require.NoError(t, err)
	assert.True(t, final.Settled)
	assert.Nil(t, final.Credit)
	assertDecimal(t, "0", final.Change)

	sales := f.allSales(t)
	require.Len(t, sales, 1)
	sale := sales[0]
	assert.Equal(t, credit.InvoiceNo, sale.InvoiceNo)
	assert.Equal(t, models.SaleStatusPaid, sale.Status)
	assert.Equal(t, models.PaymentModeMobile, sale.PaymentMode)
	assert.Equal(t, 5, sale.Qty)
	assertDecimal(t, "20", sale.Price)
	assertDecimal(t, "100", sale.Amount)
	assertDecimal(t, "40", sale.Profit)

	after := f.reload(t, p.Code)
	assert.Equal(t, 5, after.RemainingQty)
	assert.Equal(t, 5, after.SoldQty)

	_, err = f.credits.Get(ctx, credit.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.credits.AddPayment(ctx, credit.ID, dec("1"))
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, []string{
		models.EventTypeCreditOpened,
		models.EventTypeCreditPaymentApplied,
		models.EventTypeCreditSettled,
	}, f.events.creditTypes())
}

func TestAddPaymentOverpaymentReturnsChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "10", "30")

	credit, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 3, "100", "0"))
	require.NoError(t, err)

	result, err := f.credits.AddPayment(ctx, credit.ID, dec("150"))
	require.NoError(t, err)
	assert.True(t, result.Settled)
	assertDecimal(t, "50", result.Change)
	require.NotNil(t, result.Sale)
	assertDecimal(t, "100", result.Sale.Amount)
	assertDecimal(t, "70", result.Sale.Profit)
}

func TestAddPaymentRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "10", "30")
	credit, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 1, "30", "0"))
	require.NoError(t, err)

	_, err = f.credits.AddPayment(ctx, credit.ID, dec("0"))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.credits.AddPayment(ctx, credit.ID, dec("-5"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSettleInFullIgnoresRemainder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "12", "20")

	credit, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 5, "100", "10"))
	require.NoError(t, err)

	result, err := f.credits.SettleInFull(ctx, credit.ID)
	require.NoError(t, err)
	assert.True(t, result.Settled)
	assertDecimal(t, "100", result.Sale.Amount)

	after := f.reload(t, p.Code)
	assert.Equal(t, 5, after.RemainingQty)
	assert.Equal(t, 5, after.SoldQty)

	_, err = f.credits.SettleInFull(ctx, credit.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSettleUnevenTotalKeepsAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "10", "40")

	credit, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 3, "100", "0"))
	require.NoError(t, err)

	result, err := f.credits.SettleInFull(ctx, credit.ID)
	require.NoError(t, err)
	assertDecimal(t, "33.333333", result.Sale.Price)
	assertDecimal(t, "100", result.Sale.Amount)
	assertDecimal(t, "70", result.Sale.Profit)
}

func TestSettleLargeQuantityRecordsExactTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Screw", 30000, "0.10", "0.50")

	credit, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 30000, "10000", "0"))
	require.NoError(t, err)

	result, err := f.credits.AddPayment(ctx, credit.ID, dec("10000"))
	require.NoError(t, err)
	require.True(t, result.Settled)
	assertDecimal(t, "0.333333", result.Sale.Price)
	assertDecimal(t, "10000", result.Sale.Amount)
	assertDecimal(t, "7000", result.Sale.Profit)

	sales := f.allSales(t)
	require.Len(t, sales, 1)
	assertDecimal(t, "10000", sales[0].Amount)
}

func TestCreditAmountsAreWholeCents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "10", "30")

	_, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 1, "100", "99.999"))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.credits.OpenCredit(ctx, openRequest(p.Code, 1, "100.005", "0"))
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 10, f.reload(t, p.Code).RemainingQty)

	credit, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 1, "100", "99.99"))
	require.NoError(t, err)

	_, err = f.credits.AddPayment(ctx, credit.ID, dec("0.005"))
	assert.ErrorIs(t, err, models.ErrValidation)

	still, err := f.credits.Get(ctx, credit.ID)
	require.NoError(t, err)
	assertDecimal(t, "99.99", still.Paid)
}

func TestFindDebtorsSkipsFullyPaidRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "10", "30")

	first, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 1, "30", "0"))
	require.NoError(t, err)
	second, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 1, "30", "5"))
	require.NoError(t, err)

	require.NoError(t, f.store.UpdateCreditPaid(ctx, first.ID, dec("30")))

	open, err := f.credits.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, second.ID, open[0].ID)

	debtors, err := f.credits.FindDebtors(ctx)
	require.NoError(t, err)
	require.Len(t, debtors, 1)
	assert.Equal(t, second.ID, debtors[0].ID)
}

func TestOpenCreditIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 10, "10", "30")

	req := openRequest(p.Code, 2, "60", "10")
	req.IdempotencyKey = "credit-key-1"

	first, err := f.credits.OpenCredit(ctx, req)
	require.NoError(t, err)
	second, err := f.credits.OpenCredit(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.InvoiceNo, second.InvoiceNo)
	assert.Equal(t, 8, f.reload(t, p.Code).RemainingQty)
}

func TestStockNeverNegativeAcrossLedgerOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Widget", 6, "1", "2")

	c1, err := f.credits.OpenCredit(ctx, openRequest(p.Code, 4, "8", "0"))
	require.NoError(t, err)
	_, err = f.credits.OpenCredit(ctx, openRequest(p.Code, 3, "6", "0"))
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{Lines: []CartLine{{ProductCode: p.Code, Qty: 3}}})
	require.NoError(t, err)
	assert.Len(t, result.Rejected, 1)

	_, err = f.credits.CancelCredit(ctx, c1.ID)
	require.NoError(t, err)
	result, err = f.checkout.Checkout(ctx, CheckoutRequest{Lines: []CartLine{{ProductCode: p.Code, Qty: 6}}})
	require.NoError(t, err)
	assert.Len(t, result.Sales, 1)

	after := f.reload(t, p.Code)
	assert.Equal(t, 0, after.RemainingQty)
	assert.Equal(t, 6, after.SoldQty)
}
