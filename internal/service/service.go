package service

import (
	"context"
	"time"

	"pos-ledger/internal/models"
	"pos-ledger/internal/util"

	"go.uber.org/zap"
)

// EventPublisher announces committed ledger changes
type EventPublisher interface {
	PublishProductEvent(ctx context.Context, event *models.ProductEvent) error
	PublishSaleEvent(ctx context.Context, event *models.SaleEvent) error
	PublishCreditEvent(ctx context.Context, event *models.CreditEvent) error
}

// IdempotencyStore remembers request results by client-supplied key
type IdempotencyStore interface {
	Recall(ctx context.Context, scope, key string) ([]byte, bool, error)
	Remember(ctx context.Context, scope, key string, value []byte, ttl time.Duration) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

type options struct {
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
}

// Option customises a service
type Option func(*options)

// WithLogger overrides the component logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLocation sets the time zone that decides calendar days
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = util.ComponentLogger(component)
	}
	return o
}

// today returns the current calendar day in the configured location
func (o options) today() time.Time {
	return models.DateOf(o.now().In(o.location))
}

// eventSink publishes after commit. Failures are logged and counted, never returned.
type eventSink struct {
	publisher EventPublisher
	logger    *zap.Logger
}

func (s eventSink) failed(eventType string, err error) {
	util.LedgerEventsFailedTotal.WithLabelValues(eventType).Inc()
	s.logger.Error("Failed to publish ledger event", zap.String("event_type", eventType), zap.Error(err))
}

func (s eventSink) product(ctx context.Context, eventType string, product *models.Product) {
	if s.publisher == nil || product == nil {
		return
	}
	event := &models.ProductEvent{
		BaseEvent:     models.NewBaseEvent(eventType),
		StockSnapshot: snapshotOf(product, product.Code, product.Name),
		ProductID:     product.ID,
	}
	if err := s.publisher.PublishProductEvent(ctx, event); err != nil {
		s.failed(eventType, err)
	}
}

func (s eventSink) sale(ctx context.Context, eventType string, sale *models.Sale, product *models.Product) {
	if s.publisher == nil {
		return
	}
	event := &models.SaleEvent{
		BaseEvent:     models.NewBaseEvent(eventType),
		StockSnapshot: snapshotOf(product, sale.ProductCode, sale.ProductName),
		SaleID:        sale.ID,
		InvoiceNo:     sale.InvoiceNo,
		Qty:           sale.Qty,
		Amount:        sale.Amount,
		Profit:        sale.Profit,
	}
	if err := s.publisher.PublishSaleEvent(ctx, event); err != nil {
		s.failed(eventType, err)
	}
}

func (s eventSink) credit(ctx context.Context, eventType string, credit *models.Credit, product *models.Product, saleID int64) {
	if s.publisher == nil {
		return
	}
	event := &models.CreditEvent{
		BaseEvent:     models.NewBaseEvent(eventType),
		StockSnapshot: snapshotOf(product, credit.ProductCode, credit.ProductName),
		CreditID:      credit.ID,
		InvoiceNo:     credit.InvoiceNo,
		Qty:           credit.Qty,
		Total:         credit.Total,
		Paid:          credit.Paid,
		SaleID:        saleID,
	}
	if err := s.publisher.PublishCreditEvent(ctx, event); err != nil {
		s.failed(eventType, err)
	}
}

// snapshotOf falls back to the ledger row's product fields when the product is gone.
// A missing product reports -1 remaining so consumers can tell it apart from empty stock.
func snapshotOf(product *models.Product, code, name string) models.StockSnapshot {
	if product == nil {
		return models.StockSnapshot{ProductCode: code, ProductName: name, RemainingQty: -1}
	}
	return models.StockSnapshot{ProductCode: product.Code, ProductName: product.Name, RemainingQty: product.RemainingQty}
}
