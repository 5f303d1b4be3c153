package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"pos-ledger/internal/auth"
	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
	"pos-ledger/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultCodeAttempts = 50
	defaultSearchLimit  = 10
	maxSearchLimit      = 50
	// short codes first, then a wider space once the short one is crowded
	shortCodeDigits = 4
	wideCodeDigits  = 6
)

// CodeSource returns a random numeric code with the given number of digits
type CodeSource func(digits int) string

// RandomCode draws a code uniformly from [10^(digits-1), 10^digits)
func RandomCode(digits int) string {
	low := 1
	for i := 1; i < digits; i++ {
		low *= 10
	}
	return strconv.Itoa(low + rand.Intn(9*low))
}

// CatalogConfig tunes catalog behaviour
type CatalogConfig struct {
	CodeAttempts int
	SearchLimit  int
}

// Catalog owns products and their stock counters
type Catalog struct {
	store        store.Backend
	events       eventSink
	codes        CodeSource
	codeAttempts int
	searchLimit  int
	opts         options
	logger       *zap.Logger
}

// NewCatalog creates a new product catalog
func NewCatalog(backend store.Backend, publisher EventPublisher, cfg CatalogConfig, opts ...Option) *Catalog {
	o := buildOptions("catalog", opts)
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = defaultCodeAttempts
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	return &Catalog{
		store:        backend,
		events:       eventSink{publisher: publisher, logger: o.logger},
		codes:        RandomCode,
		codeAttempts: cfg.CodeAttempts,
		searchLimit:  cfg.SearchLimit,
		opts:         o,
		logger:       o.logger,
	}
}

// SetCodeSource replaces the code generator
func (c *Catalog) SetCodeSource(source CodeSource) {
	c.codes = source
}

// NewProduct is the input for CreateProduct
type NewProduct struct {
	Name         string          `json:"name" binding:"required"`
	RemainingQty int             `json:"remaining_qty"`
	ActualPrice  decimal.Decimal `json:"actual_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

func (p *NewProduct) validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return models.Validationf("product name is required")
	}
	if p.RemainingQty < 0 {
		return models.Validationf("remaining quantity must not be negative")
	}
	if p.ActualPrice.IsNegative() || p.SellingPrice.IsNegative() {
		return models.Validationf("prices must not be negative")
	}
	if !wholeCents(p.ActualPrice) || !wholeCents(p.SellingPrice) {
		return models.Validationf("prices must not have fractions of a cent")
	}
	return nil
}

// CreateProduct adds a product under a freshly generated code
func (c *Catalog) CreateProduct(ctx context.Context, req NewProduct) (product *models.Product, err error) {
	ctx, span := util.StartSpan(ctx, "Catalog.CreateProduct")
	defer func() { util.EndSpan(span, err) }()

	if err := req.validate(); err != nil {
		return nil, models.NewOpError("create", "product", "", err)
	}

	if existing, err := c.store.GetProductByName(ctx, req.Name); err == nil {
		return nil, models.NewOpError("create", "product", existing.Code,
			fmt.Errorf("%w: %q", models.ErrDuplicateName, req.Name))
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, models.NewOpError("create", "product", "", err)
	}

	product = &models.Product{
		Name:         req.Name,
		RemainingQty: req.RemainingQty,
		ActualPrice:  req.ActualPrice,
		SellingPrice: req.SellingPrice,
	}
	if err := c.insertWithFreshCode(ctx, product); err != nil {
		return nil, models.NewOpError("create", "product", "", err)
	}

	util.ProductsCreatedTotal.Inc()
	c.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("code", product.Code),
		zap.String("caller", auth.SubjectFrom(ctx)))
	c.events.product(ctx, models.EventTypeProductCreated, product)

	return product, nil
}

// insertWithFreshCode retries on code collisions, widening the code space
// after the short codes keep colliding
func (c *Catalog) insertWithFreshCode(ctx context.Context, product *models.Product) error {
	for _, digits := range []int{shortCodeDigits, wideCodeDigits} {
		for attempt := 0; attempt < c.codeAttempts; attempt++ {
			product.Code = c.codes(digits)

			err := c.store.CreateProduct(ctx, product)
			if err == nil {
				return nil
			}
			if !errors.Is(err, models.ErrDuplicateCode) {
				return err
			}
		}
		c.logger.Warn("Product code space crowded", zap.Int("digits", digits), zap.Int("attempts", c.codeAttempts))
	}
	return models.StoreFailure(models.ErrCodeSpaceExhausted)
}

// ProductUpdate holds the fields to change; nil fields are kept
type ProductUpdate struct {
	Name         *string          `json:"name"`
	RemainingQty *int             `json:"remaining_qty"`
	SoldQty      *int             `json:"sold_qty"`
	ActualPrice  *decimal.Decimal `json:"actual_price"`
	SellingPrice *decimal.Decimal `json:"selling_price"`
}

// UpdateProduct edits a product. The code never changes because ledger rows refer to it.
func (c *Catalog) UpdateProduct(ctx context.Context, id int64, update ProductUpdate) (product *models.Product, err error) {
	ctx, span := util.StartSpan(ctx, "Catalog.UpdateProduct")
	defer func() { util.EndSpan(span, err) }()

	idStr := strconv.FormatInt(id, 10)
	err = c.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		current, err := q.GetProductByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Archived() {
			return models.ErrNotFound
		}
		if current, err = q.LockProductByCode(ctx, current.Code); err != nil {
			return err
		}

		if err := applyUpdate(current, update); err != nil {
			return err
		}

		if other, err := q.GetProductByName(ctx, current.Name); err == nil && other.ID != current.ID {
			return fmt.Errorf("%w: %q", models.ErrDuplicateName, current.Name)
		} else if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}

		if err := q.UpdateProduct(ctx, current); err != nil {
			return err
		}
		product = current
		return nil
	})
	if err != nil {
		return nil, models.NewOpError("update", "product", idStr, err)
	}

	c.logger.Info("Product updated",
		zap.Int64("product_id", id),
		zap.String("caller", auth.SubjectFrom(ctx)))
	c.events.product(ctx, models.EventTypeProductUpdated, product)
	return product, nil
}

func applyUpdate(p *models.Product, update ProductUpdate) error {
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Validationf("product name is required")
		}
		p.Name = name
	}
	if update.RemainingQty != nil {
		if *update.RemainingQty < 0 {
			return models.Validationf("remaining quantity must not be negative")
		}
		p.RemainingQty = *update.RemainingQty
	}
	if update.SoldQty != nil {
		if *update.SoldQty < 0 {
			return models.Validationf("sold quantity must not be negative")
		}
		p.SoldQty = *update.SoldQty
	}
	if update.ActualPrice != nil {
		if update.ActualPrice.IsNegative() {
			return models.Validationf("prices must not be negative")
		}
		if !wholeCents(*update.ActualPrice) {
			return models.Validationf("prices must not have fractions of a cent")
		}
		p.ActualPrice = *update.ActualPrice
	}
	if update.SellingPrice != nil {
		if update.SellingPrice.IsNegative() {
			return models.Validationf("prices must not be negative")
		}
		if !wholeCents(*update.SellingPrice) {
			return models.Validationf("prices must not have fractions of a cent")
		}
		p.SellingPrice = *update.SellingPrice
	}
	return nil
}

// DeleteProduct archives a product. Its row stays so reversals and
// cancellations can still restore stock onto it.
func (c *Catalog) DeleteProduct(ctx context.Context, id int64) (err error) {
	ctx, span := util.StartSpan(ctx, "Catalog.DeleteProduct")
	defer func() { util.EndSpan(span, err) }()

	idStr := strconv.FormatInt(id, 10)
	var archived *models.Product
	err = c.store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		if err := q.ArchiveProduct(ctx, id, c.opts.now()); err != nil {
			return err
		}
		p, err := q.GetProductByID(ctx, id)
		archived = p
		return err
	})
	if err != nil {
		return models.NewOpError("delete", "product", idStr, err)
	}

	c.logger.Info("Product archived",
		zap.Int64("product_id", id),
		zap.String("code", archived.Code),
		zap.String("caller", auth.SubjectFrom(ctx)))
	c.events.product(ctx, models.EventTypeProductArchived, archived)
	return nil
}

// AdjustStock applies stock deltas as one conditional write
func (c *Catalog) AdjustStock(ctx context.Context, code string, deltaRemaining, deltaSold int) (product *models.Product, err error) {
	ctx, span := util.StartSpan(ctx, "Catalog.AdjustStock")
	defer func() { util.EndSpan(span, err) }()

	product, err = c.store.AdjustStock(ctx, code, deltaRemaining, deltaSold)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			util.StockRejectionsTotal.WithLabelValues("adjust").Inc()
		}
		return nil, models.NewOpError("adjust stock", "product", code, err)
	}

	c.logger.Info("Stock adjusted",
		zap.String("code", code),
		zap.Int("delta_remaining", deltaRemaining),
		zap.Int("delta_sold", deltaSold),
		zap.Int("remaining_qty", product.RemainingQty),
		zap.String("caller", auth.SubjectFrom(ctx)))
	c.events.product(ctx, models.EventTypeProductUpdated, product)
	return product, nil
}

// FindByCode returns an active product by code
func (c *Catalog) FindByCode(ctx context.Context, code string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.FindByCode")
	defer span.End()

	product, err := c.store.GetProductByCode(ctx, strings.TrimSpace(code))
	if err == nil && product.Archived() {
		err = models.ErrNotFound
	}
	if err != nil {
		return nil, models.NewOpError("find", "product", code, err)
	}
	return product, nil
}

// FindByName returns an active product by case-insensitive name
func (c *Catalog) FindByName(ctx context.Context, name string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.FindByName")
	defer span.End()

	product, err := c.store.GetProductByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, models.NewOpError("find", "product", name, err)
	}
	return product, nil
}

// Search matches active products whose name or code starts with term
func (c *Catalog) Search(ctx context.Context, term string, limit int) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.Search")
	defer span.End()

	term = strings.TrimSpace(term)
	if term == "" {
		return []models.Product{}, nil
	}
	if limit <= 0 {
		limit = c.searchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	products, err := c.store.SearchProducts(ctx, term, limit)
	if err != nil {
		return nil, models.NewOpError("search", "product", term, err)
	}
	return products, nil
}

// List returns all active products
func (c *Catalog) List(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.List")
	defer span.End()

	products, err := c.store.ListProducts(ctx)
	if err != nil {
		return nil, models.NewOpError("list", "product", "", err)
	}
	return products, nil
}

// ImportRow is one bulk import entry. Missing numbers decode as zero.
type ImportRow struct {
	Name         string          `json:"name"`
	RemainingQty int             `json:"remaining_qty"`
	ActualPrice  decimal.Decimal `json:"actual_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

// SkippedRow explains why an import row was not created
type SkippedRow struct {
	Row    int    `json:"row"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ImportReport summarises a bulk import
type ImportReport struct {
	Created []models.Product `json:"created"`
	Skipped []SkippedRow     `json:"skipped"`
}

// Import skip reasons
const (
	SkipEmptyName     = "empty name"
	SkipDuplicateName = "duplicate name"
	SkipInvalid       = "invalid row"
	SkipStoreFailure  = "store failure"
)

// BulkImport creates each row independently; a bad row is skipped, never fatal.
// Only context cancellation stops the batch early.
func (c *Catalog) BulkImport(ctx context.Context, rows []ImportRow) (*ImportReport, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.BulkImport")
	defer span.End()

	report := &ImportReport{
		Created: []models.Product{},
		Skipped: []SkippedRow{},
	}
	skip := func(i int, name, reason string) {
		util.ProductsImportSkippedTotal.WithLabelValues(reason).Inc()
		report.Skipped = append(report.Skipped, SkippedRow{Row: i + 1, Name: name, Reason: reason})
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := strings.TrimSpace(row.Name)
		if name == "" {
			skip(i, row.Name, SkipEmptyName)
			continue
		}

		product, err := c.CreateProduct(ctx, NewProduct{
			Name:         name,
			RemainingQty: row.RemainingQty,
			ActualPrice:  row.ActualPrice,
			SellingPrice: row.SellingPrice,
		})
		switch {
		case err == nil:
			report.Created = append(report.Created, *product)
		case errors.Is(err, models.ErrDuplicateName):
			skip(i, name, SkipDuplicateName)
		case errors.Is(err, models.ErrValidation):
			skip(i, name, SkipInvalid)
		default:
			c.logger.Warn("Import row failed", zap.Int("row", i+1), zap.Error(err))
			skip(i, name, SkipStoreFailure)
		}
	}

	c.logger.Info("Bulk import finished",
		zap.Int("created", len(report.Created)),
		zap.Int("skipped", len(report.Skipped)),
		zap.String("caller", auth.SubjectFrom(ctx)))
	return report, nil
}
