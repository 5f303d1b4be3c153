package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"pos-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCheckoutRecordsSalesUnderOneInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 10, "1.20", "2.50")
	milk := f.product(t, "Milk", 4, "0.80", "1.10")

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{
		Lines: []CartLine{
			{ProductCode: tea.Code, Qty: 3},
			{ProductCode: milk.Code, Qty: 2, Price: decPtr("1.00")},
		},
		PaymentMode: models.PaymentModeCard,
	})
	require.NoError(t, err)

	assert.Equal(t, "INV0001", result.InvoiceNo)
	assert.Equal(t, models.PaymentModeCard, result.PaymentMode)
	require.Len(t, result.Sales, 2)
	assert.Empty(t, result.Rejected)
	assertDecimal(t, "9.50", result.Total)
	assertDecimal(t, "4.30", result.Profit)

	for _, s := range result.Sales {
		assert.Equal(t, "INV0001", s.InvoiceNo)
		assert.Equal(t, models.SaleStatusPaid, s.Status)
		assert.Equal(t, fixedNow.Format("2006-01-02"), s.Date.Format("2006-01-02"))
	}
	assertDecimal(t, "2.50", result.Sales[0].Price)
	assertDecimal(t, "1.00", result.Sales[1].Price)

	assert.Equal(t, 7, f.reload(t, tea.Code).RemainingQty)
	assert.Equal(t, 3, f.reload(t, tea.Code).SoldQty)
	assert.Equal(t, 2, f.reload(t, milk.Code).RemainingQty)
	assert.Equal(t, 2, f.reload(t, milk.Code).SoldQty)

	assert.Len(t, f.allSales(t), 2)
	assert.Len(t, f.events.sales, 2)
}

func TestCheckoutRejectsOnlyTheShortLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 10, "1", "2")
	milk := f.product(t, "Milk", 3, "1", "2")

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{
		Lines: []CartLine{
			{ProductCode: tea.Code, Qty: 4},
			{ProductCode: milk.Code, Qty: 5},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Sales, 1)
	assert.Equal(t, tea.Code, result.Sales[0].ProductCode)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, RejectedLine{Line: 2, ProductCode: milk.Code, Qty: 5, Reason: RejectInsufficientStock}, result.Rejected[0])

	assert.Equal(t, 6, f.reload(t, tea.Code).RemainingQty)
	assert.Equal(t, 4, f.reload(t, tea.Code).SoldQty)

	milkAfter := f.reload(t, milk.Code)
	assert.Equal(t, 3, milkAfter.RemainingQty)
	assert.Equal(t, 0, milkAfter.SoldQty)

	sales := f.allSales(t)
	require.Len(t, sales, 1)
	assert.Equal(t, tea.Code, sales[0].ProductCode)
}

func TestCheckoutStrictRollsBackCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 10, "1", "2")
	milk := f.product(t, "Milk", 3, "1", "2")

	_, err := f.checkout.Checkout(ctx, CheckoutRequest{
		Lines: []CartLine{
			{ProductCode: tea.Code, Qty: 4},
			{ProductCode: milk.Code, Qty: 5},
		},
		Strict: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	assert.Equal(t, 10, f.reload(t, tea.Code).RemainingQty)
	assert.Equal(t, 0, f.reload(t, tea.Code).SoldQty)
	assert.Empty(t, f.allSales(t))
	assert.Empty(t, f.events.sales)
}

func TestCheckoutUnknownAndArchivedProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.product(t, "Old Tea", 10, "1", "2")
	require.NoError(t, f.catalog.DeleteProduct(ctx, old.ID))

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{
		Lines: []CartLine{
			{ProductCode: "missing", Qty: 1},
			{ProductCode: old.Code, Qty: 1},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Sales)
	assert.Empty(t, result.InvoiceNo)
	require.Len(t, result.Rejected, 2)
	assert.Equal(t, RejectProductNotFound, result.Rejected[0].Reason)
	assert.Equal(t, RejectProductNotFound, result.Rejected[1].Reason)
	assert.Equal(t, 10, f.reload(t, old.Code).RemainingQty)
}

func TestCheckoutSameProductTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 5, "1", "2")

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{
		Lines: []CartLine{
			{ProductCode: tea.Code, Qty: 3},
			{ProductCode: tea.Code, Qty: 3},
		},
	})
	require.NoError(t, err)

	assert.Len(t, result.Sales, 1)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 2, result.Rejected[0].Line)

	after := f.reload(t, tea.Code)
	assert.Equal(t, 2, after.RemainingQty)
	assert.Equal(t, 3, after.SoldQty)
}

func TestCheckoutIgnoresClientCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 5, "1", "2")

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{
		Lines: []CartLine{{ProductCode: tea.Code, Qty: 2, ActualPrice: dec("1.90")}},
	})
	require.NoError(t, err)
	require.Len(t, result.Sales, 1)
	assertDecimal(t, "2", result.Sales[0].Profit)
}

func TestCheckoutExplicitZeroPriceSellsFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 5, "1", "2")

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{
		Lines: []CartLine{{ProductCode: tea.Code, Qty: 2, Price: decPtr("0")}},
	})
	require.NoError(t, err)
	require.Len(t, result.Sales, 1)
	assertDecimal(t, "0", result.Sales[0].Price)
	assertDecimal(t, "0", result.Sales[0].Amount)
	assertDecimal(t, "-2", result.Sales[0].Profit)
	assert.Equal(t, 3, f.reload(t, tea.Code).RemainingQty)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	tea := f.product(t, "Tea", 5, "1", "2")

	tests := []struct {
		name  string
		lines []CartLine
	}{
		{"empty cart", nil},
		{"blank code", []CartLine{{ProductCode: "  ", Qty: 1}}},
		{"zero quantity", []CartLine{{ProductCode: tea.Code, Qty: 0}}},
		{"negative quantity", []CartLine{{ProductCode: tea.Code, Qty: -2}}},
		{"negative price", []CartLine{{ProductCode: tea.Code, Qty: 1, Price: decPtr("-1")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Lines: tt.lines})
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
	assert.Equal(t, 5, f.reload(t, tea.Code).RemainingQty)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 10, "1", "2")

	const buyers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.checkout.Checkout(ctx, CheckoutRequest{
				Lines: []CartLine{{ProductCode: tea.Code, Qty: 1}},
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			sold += len(result.Sales)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, sold)
	after := f.reload(t, tea.Code)
	assert.Equal(t, 0, after.RemainingQty)
	assert.Equal(t, 10, after.SoldQty)
	assert.Len(t, f.allSales(t), 10)
}

func TestCheckoutIdempotencyKeyReplaysResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 10, "1", "2")

	req := CheckoutRequest{
		Lines:          []CartLine{{ProductCode: tea.Code, Qty: 2}},
		IdempotencyKey: "cart-42",
	}
	first, err := f.checkout.Checkout(ctx, req)
	require.NoError(t, err)
	second, err := f.checkout.Checkout(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.InvoiceNo, second.InvoiceNo)
	require.Len(t, second.Sales, 1)
	assert.Equal(t, first.Sales[0].ID, second.Sales[0].ID)
	assert.Equal(t, 8, f.reload(t, tea.Code).RemainingQty)
	assert.Len(t, f.allSales(t), 1)
}

func TestCheckoutInFlightKeyIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 10, "1", "2")

	locked, err := f.idem.AcquireLock(ctx, "checkout:cart-7", 0)
	require.NoError(t, err)
	require.True(t, locked)

	_, err = f.checkout.Checkout(ctx, CheckoutRequest{
		Lines:          []CartLine{{ProductCode: tea.Code, Qty: 1}},
		IdempotencyKey: "cart-7",
	})
	assert.ErrorIs(t, err, ErrRequestInFlight)
	assert.Equal(t, 10, f.reload(t, tea.Code).RemainingQty)
}

// stallingIdempotency misses on its first lookup and then waits for resume
type stallingIdempotency struct {
	*memIdempotency
	once   sync.Once
	missed chan struct{}
	resume chan struct{}
}

func (s *stallingIdempotency) Recall(ctx context.Context, scope, key string) ([]byte, bool, error) {
	first := false
	s.once.Do(func() { first = true })
	if !first {
		return s.memIdempotency.Recall(ctx, scope, key)
	}
	close(s.missed)
	<-s.resume
	return nil, false, nil
}

func TestCheckoutKeyRunsOnceWhenLookupRacesCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 10, "1", "2")

	idem := &stallingIdempotency{
		memIdempotency: newMemIdempotency(),
		missed:         make(chan struct{}),
		resume:         make(chan struct{}),
	}
	checkout := NewCheckout(f.store, f.sales, f.events, &seqInvoices{}, idem, time.Hour,
		WithLogger(zaptest.NewLogger(t)))
	req := CheckoutRequest{
		Lines:          []CartLine{{ProductCode: tea.Code, Qty: 2}},
		IdempotencyKey: "k1",
	}

	type outcome struct {
		result *CheckoutResult
		err    error
	}
	late := make(chan outcome, 1)
	go func() {
		result, err := checkout.Checkout(ctx, req)
		late <- outcome{result, err}
	}()

	<-idem.missed
	first, err := checkout.Checkout(ctx, req)
	require.NoError(t, err)
	close(idem.resume)

	second := <-late
	require.NoError(t, second.err)
	assert.Equal(t, first.InvoiceNo, second.result.InvoiceNo)
	assert.Equal(t, 8, f.reload(t, tea.Code).RemainingQty)
	assert.Len(t, f.allSales(t), 1)
}

func TestCheckoutEventsCarrySnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tea := f.product(t, "Tea", 10, "1", "2")

	_, err := f.checkout.Checkout(ctx, CheckoutRequest{
		Lines: []CartLine{{ProductCode: tea.Code, Qty: 4}},
	})
	require.NoError(t, err)

	require.Len(t, f.events.sales, 1)
	event := f.events.sales[0]
	assert.Equal(t, models.EventTypeSaleRecorded, event.EventType)
	assert.Equal(t, tea.Code, event.ProductCode)
	assert.Equal(t, 6, event.RemainingQty)
	assert.Equal(t, 4, event.Qty)
	assert.NotEmpty(t, event.EventID)
}
