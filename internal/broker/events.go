package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"pos-ledger/internal/models"
	"pos-ledger/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes ledger events keyed by product code so every
// change to one product lands on the same partition in order
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func productKey(code string) string {
	return fmt.Sprintf("product-%s", code)
}

// PublishProductEvent publishes a catalog event
func (ep *EventPublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductCode), event)
}

// PublishSaleEvent publishes a sales ledger event
func (ep *EventPublisher) PublishSaleEvent(ctx context.Context, event *models.SaleEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductCode), event)
}

// PublishCreditEvent publishes a credit ledger event
func (ep *EventPublisher) PublishCreditEvent(ctx context.Context, event *models.CreditEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductCode), event)
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishProductEvent(context.Context, *models.ProductEvent) error { return nil }
func (NopPublisher) PublishSaleEvent(context.Context, *models.SaleEvent) error       { return nil }
func (NopPublisher) PublishCreditEvent(context.Context, *models.CreditEvent) error   { return nil }

// StockHandler receives the product state carried by any ledger event
type StockHandler func(ctx context.Context, eventType string, snapshot models.StockSnapshot) error

// ArchiveHandler receives products that left the catalog
type ArchiveHandler func(ctx context.Context, productCode string) error

// EventHandler handles incoming ledger events
type EventHandler struct {
	onStockChange StockHandler
	onArchived    ArchiveHandler
	logger        *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("event-handler")}
}

// OnStockChange registers a handler for events that carry a stock snapshot
func (eh *EventHandler) OnStockChange(handler StockHandler) {
	eh.onStockChange = handler
}

// OnProductArchived registers a handler for archived products
func (eh *EventHandler) OnProductArchived(handler ArchiveHandler) {
	eh.onArchived = handler
}

// ledgerEnvelope decodes the fields shared by every ledger event
type ledgerEnvelope struct {
	models.BaseEvent
	models.StockSnapshot
}

// HandleMessage routes messages to the registered handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var envelope ledgerEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal ledger event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", envelope.EventType),
		zap.String("id", envelope.EventID))

	switch envelope.EventType {
	case models.EventTypeProductCreated,
		models.EventTypeProductUpdated,
		models.EventTypeSaleRecorded,
		models.EventTypeSaleReversed,
		models.EventTypeCreditOpened,
		models.EventTypeCreditSettled,
		models.EventTypeCreditCancelled:
		if eh.onStockChange != nil {
			return eh.onStockChange(ctx, envelope.EventType, envelope.StockSnapshot)
		}

	case models.EventTypeProductArchived:
		if eh.onArchived != nil {
			return eh.onArchived(ctx, envelope.ProductCode)
		}

	case models.EventTypeCreditPaymentApplied:
		// no stock movement

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", envelope.EventType))
	}

	return nil
}
