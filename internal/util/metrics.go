package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_created_total",
		Help: "Total number of products added to the catalog",
	})

	ProductsImportSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "products_import_skipped_total",
		Help: "Total number of bulk import rows skipped",
	}, []string{"reason"})

	CheckoutLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_lines_total",
		Help: "Total number of checkout lines by outcome",
	}, []string{"outcome"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of checkout transactions",
		Buckets: prometheus.DefBuckets,
	})

	StockRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_rejections_total",
		Help: "Total number of stock checks that failed",
	}, []string{"operation"})

	SalesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_recorded_total",
		Help: "Total number of sale rows recorded",
	})

	SalesReversedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_reversed_total",
		Help: "Total number of sale rows reversed",
	})

	CreditsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credits_opened_total",
		Help: "Total number of credits opened",
	})

	CreditPaymentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credit_payments_total",
		Help: "Total number of payments applied to credits",
	})

	CreditsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_settled_total",
		Help: "Total number of credits settled",
	}, []string{"trigger"})

	CreditsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credits_cancelled_total",
		Help: "Total number of credits cancelled",
	})

	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotent_replays_total",
		Help: "Total number of requests answered from a stored idempotent result",
	})

	LedgerEventsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_failed_total",
		Help: "Total number of ledger events that could not be published",
	}, []string{"event_type"})

	LowStockProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "low_stock_products",
		Help: "Number of products last seen below the low stock threshold",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
