package store

import (
	"context"
	"time"

	"pos-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// Queries is the set of reads and writes available both on a backend and
// inside one of its transactions. Not-found lookups return models.ErrNotFound.
type Queries interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	// GetProductByCode also returns archived products.
	GetProductByCode(ctx context.Context, code string) (*models.Product, error)
	// LockProductByCode is GetProductByCode holding a row lock until the transaction ends.
	LockProductByCode(ctx context.Context, code string) (*models.Product, error)
	// GetProductByName matches active products case-insensitively.
	GetProductByName(ctx context.Context, name string) (*models.Product, error)
	UpdateProduct(ctx context.Context, product *models.Product) error
	ArchiveProduct(ctx context.Context, id int64, at time.Time) error
	ListProducts(ctx context.Context) ([]models.Product, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error)
	// AdjustStock applies both deltas in one conditional write. It fails with
	// models.ErrInsufficientStock when remaining_qty would go negative and
	// floors sold_qty at zero.
	AdjustStock(ctx context.Context, code string, deltaRemaining, deltaSold int) (*models.Product, error)

	InsertSale(ctx context.Context, sale *models.Sale) error
	LockSale(ctx context.Context, id int64) (*models.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	QuerySales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error)

	InsertCredit(ctx context.Context, credit *models.Credit) error
	GetCredit(ctx context.Context, id int64) (*models.Credit, error)
	LockCredit(ctx context.Context, id int64) (*models.Credit, error)
	UpdateCreditPaid(ctx context.Context, id int64, paid decimal.Decimal) error
	DeleteCredit(ctx context.Context, id int64) error
	ListCredits(ctx context.Context) ([]models.Credit, error)
}

// TxFunc runs inside a transaction and must only use q for its writes
type TxFunc func(ctx context.Context, q Queries) error

// Backend is a ledger store with transaction support
type Backend interface {
	Queries
	// InTx commits when fn returns nil and rolls back every write otherwise.
	InTx(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}
