package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pos-ledger/internal/auth"
	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
	"pos-ledger/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Rejection reasons for checkout lines
const (
	RejectProductNotFound   = "product not found"
	RejectInsufficientStock = "insufficient stock"
)

// Checkout turns carts into paid sales with matching stock deductions
type Checkout struct {
	store    store.Backend
	sales    *SalesLedger
	events   eventSink
	invoices InvoiceNumberer
	idem     idempotency
	opts     options
	logger   *zap.Logger
}

// NewCheckout creates a new checkout service
func NewCheckout(
	backend store.Backend,
	sales *SalesLedger,
	publisher EventPublisher,
	invoices InvoiceNumberer,
	idem IdempotencyStore,
	idemTTL time.Duration,
	opts ...Option,
) *Checkout {
	o := buildOptions("checkout", opts)
	return &Checkout{
		store:    backend,
		sales:    sales,
		events:   eventSink{publisher: publisher, logger: o.logger},
		invoices: invoices,
		idem:     idempotency{store: idem, ttl: idemTTL, logger: o.logger},
		opts:     o,
		logger:   o.logger,
	}
}

// CartLine is one product line of a cart. A missing Price sells at the catalog
// price. ActualPrice is accepted for compatibility but cost always comes from
// the catalog at sale time.
type CartLine struct {
	ProductCode string           `json:"product_code"`
	Qty         int              `json:"qty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	ActualPrice decimal.Decimal  `json:"actual_price"`
}

// CheckoutRequest is the input for Checkout
type CheckoutRequest struct {
	Lines          []CartLine `json:"lines" binding:"required,min=1"`
	PaymentMode    string     `json:"payment_mode"`
	Strict         bool       `json:"strict"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
}

func (r *CheckoutRequest) validate() error {
	if len(r.Lines) == 0 {
		return models.Validationf("cart is empty")
	}
	for i := range r.Lines {
		line := &r.Lines[i]
		line.ProductCode = strings.TrimSpace(line.ProductCode)
		if line.ProductCode == "" {
			return models.Validationf("line %d: product code is required", i+1)
		}
		if line.Qty <= 0 {
			return models.Validationf("line %d: quantity must be positive", i+1)
		}
		if line.Price != nil && line.Price.IsNegative() {
			return models.Validationf("line %d: price must not be negative", i+1)
		}
	}
	return nil
}

// RejectedLine is a cart line that produced no sale and no stock change
type RejectedLine struct {
	Line        int    `json:"line"`
	ProductCode string `json:"product_code"`
	Qty         int    `json:"qty"`
	Reason      string `json:"reason"`
}

// CheckoutResult is the committed outcome of a checkout
type CheckoutResult struct {
	InvoiceNo   string          `json:"invoice_no"`
	PaymentMode string          `json:"payment_mode"`
	Sales       []models.Sale   `json:"sales"`
	Rejected    []RejectedLine  `json:"rejected"`
	Total       decimal.Decimal `json:"total"`
	Profit      decimal.Decimal `json:"profit"`
}

// Checkout processes every line of the cart inside one transaction. Each line
// is checked and deducted atomically before its sale row is written; lines
// that fail the check are reported and leave no trace. In strict mode any
// rejected line rolls the whole cart back.
func (c *Checkout) Checkout(ctx context.Context, req CheckoutRequest) (result *CheckoutResult, err error) {
	ctx, span := util.StartSpan(ctx, "Checkout.Checkout")
	defer func() { util.EndSpan(span, err) }()

	if err := req.validate(); err != nil {
		return nil, models.NewOpError("checkout", "cart", "", err)
	}

	return runIdempotent(ctx, c.idem, "checkout", req.IdempotencyKey, func() (*CheckoutResult, error) {
		return c.checkout(ctx, req)
	})
}

func (c *Checkout) checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	invoiceNo := c.invoices.Next(InvoicePrefixCheckout)
	var result *CheckoutResult
	var products []*models.Product

	err := c.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		result = &CheckoutResult{
			InvoiceNo:   invoiceNo,
			PaymentMode: models.DefaultPaymentMode(req.PaymentMode),
			Sales:       []models.Sale{},
			Rejected:    []RejectedLine{},
			Total:       decimal.Zero,
			Profit:      decimal.Zero,
		}
		products = products[:0]

		for i, line := range req.Lines {
			sale, product, err := c.checkoutLine(ctx, q, invoiceNo, result.PaymentMode, line)
			var reason string
			switch {
			case err == nil:
				result.Sales = append(result.Sales, *sale)
				result.Total = result.Total.Add(sale.Amount)
				result.Profit = result.Profit.Add(sale.Profit)
				products = append(products, product)
				continue
			case errors.Is(err, models.ErrNotFound):
				reason = RejectProductNotFound
			case errors.Is(err, models.ErrInsufficientStock):
				reason = RejectInsufficientStock
			default:
				return err
			}

			if req.Strict {
				return fmt.Errorf("line %d (%s): %w", i+1, line.ProductCode, err)
			}
			result.Rejected = append(result.Rejected, RejectedLine{
				Line:        i + 1,
				ProductCode: line.ProductCode,
				Qty:         line.Qty,
				Reason:      reason,
			})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.StockRejectionsTotal.WithLabelValues("checkout").Inc()
		}
		util.CheckoutLinesTotal.WithLabelValues("aborted").Add(float64(len(req.Lines)))
		return nil, models.NewOpError("checkout", "invoice", invoiceNo, err)
	}

	if len(result.Sales) == 0 {
		result.InvoiceNo = ""
	}
	util.CheckoutLinesTotal.WithLabelValues("accepted").Add(float64(len(result.Sales)))
	for _, r := range result.Rejected {
		util.CheckoutLinesTotal.WithLabelValues("rejected").Inc()
		if r.Reason == RejectInsufficientStock {
			util.StockRejectionsTotal.WithLabelValues("checkout").Inc()
		}
	}

	c.logger.Info("Checkout completed",
		zap.String("invoice_no", result.InvoiceNo),
		zap.Int("accepted", len(result.Sales)),
		zap.Int("rejected", len(result.Rejected)),
		zap.String("total", result.Total.String()),
		zap.String("caller", auth.SubjectFrom(ctx)))

	for i := range result.Sales {
		c.events.sale(ctx, models.EventTypeSaleRecorded, &result.Sales[i], products[i])
	}
	return result, nil
}

// checkoutLine locks the product row, deducts stock only if enough remains
// and then records the sale
func (c *Checkout) checkoutLine(ctx context.Context, q store.Queries, invoiceNo, paymentMode string, line CartLine) (*models.Sale, *models.Product, error) {
	product, err := q.LockProductByCode(ctx, line.ProductCode)
	if err != nil {
		return nil, nil, err
	}
	if product.Archived() {
		return nil, nil, models.ErrNotFound
	}
	if product.RemainingQty < line.Qty {
		return nil, nil, models.ErrInsufficientStock
	}

	updated, err := q.AdjustStock(ctx, line.ProductCode, -line.Qty, line.Qty)
	if err != nil {
		return nil, nil, err
	}

	price := product.SellingPrice
	if line.Price != nil {
		price = *line.Price
	}

	sale, err := c.sales.RecordSale(ctx, q, SaleEntry{
		InvoiceNo:   invoiceNo,
		ProductCode: product.Code,
		ProductName: product.Name,
		Qty:         line.Qty,
		UnitPrice:   price,
		UnitCost:    product.ActualPrice,
		Date:        c.opts.today(),
		PaymentMode: paymentMode,
		Status:      models.SaleStatusPaid,
	})
	if err != nil {
		return nil, nil, err
	}
	return sale, updated, nil
}
