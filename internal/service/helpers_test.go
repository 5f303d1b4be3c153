package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fixedNow is a Wednesday
var fixedNow = time.Date(2024, time.March, 13, 10, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu       sync.Mutex
	products []*models.ProductEvent
	sales    []*models.SaleEvent
	credits  []*models.CreditEvent
}

func (p *recordingPublisher) PublishProductEvent(_ context.Context, event *models.ProductEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.products = append(p.products, event)
	return nil
}

func (p *recordingPublisher) PublishSaleEvent(_ context.Context, event *models.SaleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sales = append(p.sales, event)
	return nil
}

func (p *recordingPublisher) PublishCreditEvent(_ context.Context, event *models.CreditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credits = append(p.credits, event)
	return nil
}

func (p *recordingPublisher) creditTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.credits))
	for _, e := range p.credits {
		types = append(types, e.EventType)
	}
	return types
}

type memIdempotency struct {
	mu     sync.Mutex
	values map[string][]byte
	locks  map[string]bool
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{values: map[string][]byte{}, locks: map[string]bool{}}
}

func (m *memIdempotency) Recall(_ context.Context, scope, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[scope+":"+key]
	return v, ok, nil
}

func (m *memIdempotency) Remember(_ context.Context, scope, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[scope+":"+key]; !ok {
		m.values[scope+":"+key] = value
	}
	return nil
}

func (m *memIdempotency) AcquireLock(_ context.Context, lockKey string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[lockKey] {
		return false, nil
	}
	m.locks[lockKey] = true
	return true, nil
}

func (m *memIdempotency) ReleaseLock(_ context.Context, lockKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, lockKey)
	return nil
}

type seqInvoices struct {
	n int64
}

func (s *seqInvoices) Next(prefix string) string {
	return fmt.Sprintf("%s%04d", prefix, atomic.AddInt64(&s.n, 1))
}

type fixture struct {
	store     *memstore.Store
	events    *recordingPublisher
	idem      *memIdempotency
	catalog   *Catalog
	sales     *SalesLedger
	credits   *CreditLedger
	checkout  *Checkout
	dashboard *Dashboard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	opts := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	}

	f := &fixture{
		store:  memstore.New(),
		events: &recordingPublisher{},
		idem:   newMemIdempotency(),
	}
	invoices := &seqInvoices{}
	f.catalog = NewCatalog(f.store, f.events, CatalogConfig{}, opts...)
	f.sales = NewSalesLedger(f.store, f.events, opts...)
	f.credits = NewCreditLedger(f.store, f.sales, f.events, invoices, f.idem, time.Hour, opts...)
	f.checkout = NewCheckout(f.store, f.sales, f.events, invoices, f.idem, time.Hour, opts...)
	f.dashboard = NewDashboard(f.store, 5, opts...)
	return f
}

func (f *fixture) product(t *testing.T, name string, qty int, cost, price string) *models.Product {
	t.Helper()
	p, err := f.catalog.CreateProduct(context.Background(), NewProduct{
		Name:         name,
		RemainingQty: qty,
		ActualPrice:  dec(cost),
		SellingPrice: dec(price),
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) reload(t *testing.T, code string) *models.Product {
	t.Helper()
	p, err := f.store.GetProductByCode(context.Background(), code)
	require.NoError(t, err)
	return p
}

func (f *fixture) allSales(t *testing.T) []models.Sale {
	t.Helper()
	sales, err := f.store.QuerySales(context.Background(), models.SaleFilter{})
	require.NoError(t, err)
	return sales
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}
