package worker

import (
	"context"
	"sort"
	"sync"

	"pos-ledger/internal/broker"
	"pos-ledger/internal/models"
	"pos-ledger/internal/util"

	"go.uber.org/zap"
)

const defaultLowStockThreshold = 5

// MessageSource feeds ledger events to a handler until ctx ends
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StockAlertWorker watches ledger events and tracks products whose remaining
// stock fell below the threshold. It only reads events and never touches the ledger.
type StockAlertWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	threshold    int
	logger       *zap.Logger

	mu  sync.Mutex
	low map[string]models.StockSnapshot
}

// NewStockAlertWorker creates a new stock alert worker
func NewStockAlertWorker(consumer MessageSource, threshold int, logger *zap.Logger) *StockAlertWorker {
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	if logger == nil {
		logger = util.ComponentLogger("stock-alert-worker")
	}

	w := &StockAlertWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		threshold:    threshold,
		logger:       logger,
		low:          make(map[string]models.StockSnapshot),
	}
	w.eventHandler.OnStockChange(w.handleStockChange)
	w.eventHandler.OnProductArchived(w.handleArchived)
	return w
}

// Start starts the worker
func (w *StockAlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock alert worker", zap.Int("threshold", w.threshold))
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	w.logger.Info("Stopping stock alert worker")
	return w.consumer.Close()
}

func (w *StockAlertWorker) handleStockChange(_ context.Context, eventType string, snapshot models.StockSnapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, wasLow := w.low[snapshot.ProductCode]
	switch {
	case snapshot.RemainingQty < 0:
		// product row is gone
		delete(w.low, snapshot.ProductCode)
	case snapshot.RemainingQty < w.threshold:
		w.low[snapshot.ProductCode] = snapshot
		if !wasLow {
			w.logger.Warn("Product stock is low",
				zap.String("product_code", snapshot.ProductCode),
				zap.String("product_name", snapshot.ProductName),
				zap.Int("remaining_qty", snapshot.RemainingQty),
				zap.String("event_type", eventType))
		}
	default:
		if wasLow {
			w.logger.Info("Product stock recovered",
				zap.String("product_code", snapshot.ProductCode),
				zap.Int("remaining_qty", snapshot.RemainingQty))
		}
		delete(w.low, snapshot.ProductCode)
	}

	util.LowStockProducts.Set(float64(len(w.low)))
	return nil
}

func (w *StockAlertWorker) handleArchived(_ context.Context, productCode string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.low, productCode)
	util.LowStockProducts.Set(float64(len(w.low)))
	return nil
}

// LowStock returns the products currently below the threshold, ordered by code
func (w *StockAlertWorker) LowStock() []models.StockSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshots := make([]models.StockSnapshot, 0, len(w.low))
	for _, s := range w.low {
		snapshots = append(snapshots, s)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].ProductCode < snapshots[j].ProductCode
	})
	return snapshots
}
