package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"pos-ledger/internal/auth"
	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
	"pos-ledger/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// unit prices derived from a credit total keep extra precision
const unitPricePlaces = 6

// Settlement triggers
const (
	settledByPayment = "payment"
	settledByForce   = "force"
)

// CreditLedger tracks deferred-payment sales from opening to settlement or cancellation
type CreditLedger struct {
	store    store.Backend
	sales    *SalesLedger
	events   eventSink
	invoices InvoiceNumberer
	idem     idempotency
	opts     options
	logger   *zap.Logger
}

// NewCreditLedger creates a new credit ledger
func NewCreditLedger(
	backend store.Backend,
	sales *SalesLedger,
	publisher EventPublisher,
	invoices InvoiceNumberer,
	idem IdempotencyStore,
	idemTTL time.Duration,
	opts ...Option,
) *CreditLedger {
	o := buildOptions("credit", opts)
	return &CreditLedger{
		store:    backend,
		sales:    sales,
		events:   eventSink{publisher: publisher, logger: o.logger},
		invoices: invoices,
		idem:     idempotency{store: idem, ttl: idemTTL, logger: o.logger},
		opts:     o,
		logger:   o.logger,
	}
}

// OpenCreditRequest is the input for OpenCredit
type OpenCreditRequest struct {
	Customer       models.Customer `json:"customer"`
	ProductCode    string          `json:"product_code" binding:"required"`
	Qty            int             `json:"qty" binding:"required"`
	Total          decimal.Decimal `json:"total"`
	Paid           decimal.Decimal `json:"paid"`
	PaymentMode    string          `json:"payment_mode"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

func (r *OpenCreditRequest) validate() error {
	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	r.ProductCode = strings.TrimSpace(r.ProductCode)
	switch {
	case r.Customer.Name == "":
		return models.Validationf("customer name is required")
	case r.ProductCode == "":
		return models.Validationf("product code is required")
	case r.Qty <= 0:
		return models.Validationf("quantity must be positive")
	case r.Total.IsNegative() || r.Paid.IsNegative():
		return models.Validationf("amounts must not be negative")
	case !wholeCents(r.Total) || !wholeCents(r.Paid):
		return models.Validationf("amounts must not have fractions of a cent")
	case r.Paid.Equal(r.Total):
		return models.Validationf("paid equals total; record a checkout instead of a credit")
	case r.Paid.GreaterThan(r.Total):
		return models.Validationf("paid exceeds total")
	}
	return nil
}

// OpenCredit reserves stock and opens a credit in one transaction.
// Stock leaves remaining_qty now but is only counted as sold on settlement.
func (l *CreditLedger) OpenCredit(ctx context.Context, req OpenCreditRequest) (credit *models.Credit, err error) {
	ctx, span := util.StartSpan(ctx, "CreditLedger.OpenCredit")
	defer func() { util.EndSpan(span, err) }()

	if err := req.validate(); err != nil {
		return nil, models.NewOpError("open", "credit", "", err)
	}

	return runIdempotent(ctx, l.idem, "credit", req.IdempotencyKey, func() (*models.Credit, error) {
		return l.openCredit(ctx, req)
	})
}

func (l *CreditLedger) openCredit(ctx context.Context, req OpenCreditRequest) (*models.Credit, error) {
	var credit *models.Credit
	var product *models.Product

	err := l.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		p, err := q.LockProductByCode(ctx, req.ProductCode)
		if err != nil {
			return err
		}
		if p.Archived() {
			return models.ErrNotFound
		}
		if p.RemainingQty < req.Qty {
			return models.ErrInsufficientStock
		}

		if product, err = q.AdjustStock(ctx, req.ProductCode, -req.Qty, 0); err != nil {
			return err
		}

		credit = &models.Credit{
			InvoiceNo:    l.invoices.Next(InvoicePrefixCredit),
			CustomerName: req.Customer.Name,
			Phone:        strings.TrimSpace(req.Customer.Phone),
			NationalID:   strings.TrimSpace(req.Customer.NationalID),
			ProductCode:  p.Code,
			ProductName:  p.Name,
			Qty:          req.Qty,
			Total:        req.Total,
			Paid:         req.Paid,
			PaymentMode:  models.DefaultPaymentMode(req.PaymentMode),
		}
		return q.InsertCredit(ctx, credit)
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.StockRejectionsTotal.WithLabelValues("credit").Inc()
		}
		return nil, models.NewOpError("open", "credit", req.ProductCode, err)
	}

	util.CreditsOpenedTotal.Inc()
	l.logger.Info("Credit opened",
		zap.Int64("credit_id", credit.ID),
		zap.String("invoice_no", credit.InvoiceNo),
		zap.String("product_code", credit.ProductCode),
		zap.Int("qty", credit.Qty),
		zap.String("caller", auth.SubjectFrom(ctx)))
	l.events.credit(ctx, models.EventTypeCreditOpened, credit, product, 0)

	return credit, nil
}

// PaymentResult is the outcome of a payment or settlement.
// Exactly one of Credit (still open) and Sale (settled) is set.
type PaymentResult struct {
	Settled bool            `json:"settled"`
	Credit  *models.Credit  `json:"credit,omitempty"`
	Sale    *models.Sale    `json:"sale,omitempty"`
	Change  decimal.Decimal `json:"change"`
}

// AddPayment applies a payment. Reaching the total settles the credit:
// a paid sale is recorded, sold_qty grows and the credit row is removed.
func (l *CreditLedger) AddPayment(ctx context.Context, creditID int64, amount decimal.Decimal) (result *PaymentResult, err error) {
	ctx, span := util.StartSpan(ctx, "CreditLedger.AddPayment")
	defer func() { util.EndSpan(span, err) }()

	idStr := strconv.FormatInt(creditID, 10)
	if !amount.IsPositive() {
		return nil, models.NewOpError("pay", "credit", idStr, models.Validationf("payment must be positive"))
	}
	if !wholeCents(amount) {
		return nil, models.NewOpError("pay", "credit", idStr, models.Validationf("payment must not have fractions of a cent"))
	}

	var credit *models.Credit
	var product *models.Product
	err = l.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		var err error
		if credit, err = q.LockCredit(ctx, creditID); err != nil {
			return err
		}

		newPaid := credit.Paid.Add(amount)
		if newPaid.LessThan(credit.Total) {
			if err := q.UpdateCreditPaid(ctx, creditID, newPaid); err != nil {
				return err
			}
			credit.Paid = newPaid
			result = &PaymentResult{Credit: credit, Change: decimal.Zero}
			return nil
		}

		credit.Paid = newPaid
		sale, p, err := l.settle(ctx, q, credit)
		if err != nil {
			return err
		}
		product = p
		result = &PaymentResult{Settled: true, Sale: sale, Change: newPaid.Sub(credit.Total)}
		return nil
	})
	if err != nil {
		return nil, models.NewOpError("pay", "credit", idStr, err)
	}

	util.CreditPaymentsTotal.Inc()
	l.logger.Info("Credit payment applied",
		zap.Int64("credit_id", creditID),
		zap.String("amount", amount.String()),
		zap.Bool("settled", result.Settled),
		zap.String("caller", auth.SubjectFrom(ctx)))

	if result.Settled {
		l.afterSettle(ctx, credit, result.Sale, product, settledByPayment)
	} else {
		l.events.credit(ctx, models.EventTypeCreditPaymentApplied, credit, nil, 0)
	}
	return result, nil
}

// SettleInFull closes a credit at its full face value whatever was paid so far
func (l *CreditLedger) SettleInFull(ctx context.Context, creditID int64) (result *PaymentResult, err error) {
	ctx, span := util.StartSpan(ctx, "CreditLedger.SettleInFull")
	defer func() { util.EndSpan(span, err) }()

	var credit *models.Credit
	var product *models.Product
	err = l.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		var err error
		if credit, err = q.LockCredit(ctx, creditID); err != nil {
			return err
		}
		sale, p, err := l.settle(ctx, q, credit)
		if err != nil {
			return err
		}
		product = p
		result = &PaymentResult{Settled: true, Sale: sale, Change: decimal.Zero}
		return nil
	})
	if err != nil {
		return nil, models.NewOpError("settle", "credit", strconv.FormatInt(creditID, 10), err)
	}

	l.logger.Info("Credit force settled",
		zap.Int64("credit_id", creditID),
		zap.String("outstanding", credit.Balance().String()),
		zap.String("caller", auth.SubjectFrom(ctx)))
	l.afterSettle(ctx, credit, result.Sale, product, settledByForce)
	return result, nil
}

// settle mirrors the credit into a paid sale worth exactly its total, counts the
// units as sold and deletes the credit. remaining_qty was already reduced on open.
func (l *CreditLedger) settle(ctx context.Context, q store.Queries, credit *models.Credit) (*models.Sale, *models.Product, error) {
	product, err := q.LockProductByCode(ctx, credit.ProductCode)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, nil, err
	}

	unitCost := decimal.Zero
	if product != nil {
		unitCost = product.ActualPrice
	}

	total := credit.Total
	sale, err := l.sales.RecordSale(ctx, q, SaleEntry{
		InvoiceNo:   credit.InvoiceNo,
		ProductCode: credit.ProductCode,
		ProductName: credit.ProductName,
		Qty:         credit.Qty,
		UnitPrice:   credit.Total.DivRound(decimal.NewFromInt(int64(credit.Qty)), unitPricePlaces),
		UnitCost:    unitCost,
		Amount:      &total,
		Date:        l.opts.today(),
		PaymentMode: credit.PaymentMode,
		Status:      models.SaleStatusPaid,
	})
	if err != nil {
		return nil, nil, err
	}

	if product != nil {
		if product, err = q.AdjustStock(ctx, credit.ProductCode, 0, credit.Qty); err != nil {
			return nil, nil, err
		}
	} else {
		l.logger.Warn("Settled credit for a missing product",
			zap.Int64("credit_id", credit.ID),
			zap.String("product_code", credit.ProductCode))
	}

	if err := q.DeleteCredit(ctx, credit.ID); err != nil {
		return nil, nil, err
	}
	return sale, product, nil
}

func (l *CreditLedger) afterSettle(ctx context.Context, credit *models.Credit, sale *models.Sale, product *models.Product, trigger string) {
	util.CreditsSettledTotal.WithLabelValues(trigger).Inc()
	l.logger.Info("Credit settled",
		zap.Int64("credit_id", credit.ID),
		zap.Int64("sale_id", sale.ID),
		zap.String("invoice_no", credit.InvoiceNo),
		zap.String("trigger", trigger))
	l.events.credit(ctx, models.EventTypeCreditSettled, credit, product, sale.ID)
	l.events.sale(ctx, models.EventTypeSaleRecorded, sale, product)
}

// CancelCredit puts the reserved stock back and removes the credit. No sale is recorded.
func (l *CreditLedger) CancelCredit(ctx context.Context, creditID int64) (credit *models.Credit, err error) {
	ctx, span := util.StartSpan(ctx, "CreditLedger.CancelCredit")
	defer func() { util.EndSpan(span, err) }()

	var product *models.Product
	err = l.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		var err error
		if credit, err = q.LockCredit(ctx, creditID); err != nil {
			return err
		}

		product, err = q.AdjustStock(ctx, credit.ProductCode, credit.Qty, 0)
		if errors.Is(err, models.ErrNotFound) {
			l.logger.Warn("Cancelled credit for a missing product",
				zap.Int64("credit_id", credit.ID),
				zap.String("product_code", credit.ProductCode))
		} else if err != nil {
			return err
		}

		return q.DeleteCredit(ctx, creditID)
	})
	if err != nil {
		return nil, models.NewOpError("cancel", "credit", strconv.FormatInt(creditID, 10), err)
	}

	util.CreditsCancelledTotal.Inc()
	l.logger.Info("Credit cancelled",
		zap.Int64("credit_id", creditID),
		zap.String("invoice_no", credit.InvoiceNo),
		zap.String("caller", auth.SubjectFrom(ctx)))
	l.events.credit(ctx, models.EventTypeCreditCancelled, credit, product, 0)

	return credit, nil
}

// Get returns one open credit
func (l *CreditLedger) Get(ctx context.Context, creditID int64) (*models.Credit, error) {
	ctx, span := util.StartSpan(ctx, "CreditLedger.Get")
	defer span.End()

	credit, err := l.store.GetCredit(ctx, creditID)
	if err != nil {
		return nil, models.NewOpError("get", "credit", strconv.FormatInt(creditID, 10), err)
	}
	return credit, nil
}

// ListOpen returns all credits, newest first
func (l *CreditLedger) ListOpen(ctx context.Context) ([]models.Credit, error) {
	ctx, span := util.StartSpan(ctx, "CreditLedger.ListOpen")
	defer span.End()

	credits, err := l.store.ListCredits(ctx)
	if err != nil {
		return nil, models.NewOpError("list", "credit", "", err)
	}
	return credits, nil
}

// FindDebtors returns credits that still have a balance. A row left with
// paid >= total is not a debtor even though it has not transitioned yet.
func (l *CreditLedger) FindDebtors(ctx context.Context) ([]models.Credit, error) {
	credits, err := l.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	return debtorsOf(credits), nil
}

func debtorsOf(credits []models.Credit) []models.Credit {
	debtors := make([]models.Credit, 0, len(credits))
	for _, c := range credits {
		if c.IsDebtor() {
			debtors = append(debtors, c)
		}
	}
	return debtors
}
