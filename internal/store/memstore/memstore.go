// Package memstore is an in-memory ledger backend. Transactions serialise on a
// single lock and work on a copy of the state that replaces the original on commit.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"

	"github.com/shopspring/decimal"
)

type state struct {
	products      map[int64]models.Product
	sales         map[int64]models.Sale
	credits       map[int64]models.Credit
	lastProductID int64
	lastSaleID    int64
	lastCreditID  int64
}

func newState() *state {
	return &state{
		products: make(map[int64]models.Product),
		sales:    make(map[int64]models.Sale),
		credits:  make(map[int64]models.Credit),
	}
}

func (st *state) clone() *state {
	c := &state{
		products:      make(map[int64]models.Product, len(st.products)),
		sales:         make(map[int64]models.Sale, len(st.sales)),
		credits:       make(map[int64]models.Credit, len(st.credits)),
		lastProductID: st.lastProductID,
		lastSaleID:    st.lastSaleID,
		lastCreditID:  st.lastCreditID,
	}
	for id, p := range st.products {
		c.products[id] = p
	}
	for id, s := range st.sales {
		c.sales[id] = s
	}
	for id, cr := range st.credits {
		c.credits[id] = cr
	}
	return c
}

// Store is a mutex-guarded in-memory backend
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ store.Backend = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	return &Store{st: newState()}
}

// InTx runs fn against a private copy of the state and publishes it on success
func (s *Store) InTx(ctx context.Context, fn store.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.StoreFailure(err)
	}

	work := s.st.clone()
	if err := fn(ctx, view{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return models.StoreFailure(err)
	}
	s.st = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) read() (view, func()) {
	s.mu.RLock()
	return view{st: s.st}, s.mu.RUnlock
}

func (s *Store) write() (view, func()) {
	s.mu.Lock()
	return view{st: s.st}, s.mu.Unlock
}

func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	v, unlock := s.write()
	defer unlock()
	return v.CreateProduct(ctx, product)
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	v, unlock := s.read()
	defer unlock()
	return v.GetProductByID(ctx, id)
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*models.Product, error) {
	v, unlock := s.read()
	defer unlock()
	return v.GetProductByCode(ctx, code)
}

func (s *Store) LockProductByCode(ctx context.Context, code string) (*models.Product, error) {
	return s.GetProductByCode(ctx, code)
}

func (s *Store) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	v, unlock := s.read()
	defer unlock()
	return v.GetProductByName(ctx, name)
}

func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	v, unlock := s.write()
	defer unlock()
	return v.UpdateProduct(ctx, product)
}

func (s *Store) ArchiveProduct(ctx context.Context, id int64, at time.Time) error {
	v, unlock := s.write()
	defer unlock()
	return v.ArchiveProduct(ctx, id, at)
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	v, unlock := s.read()
	defer unlock()
	return v.ListProducts(ctx)
}

func (s *Store) SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error) {
	v, unlock := s.read()
	defer unlock()
	return v.SearchProducts(ctx, term, limit)
}

func (s *Store) AdjustStock(ctx context.Context, code string, deltaRemaining, deltaSold int) (*models.Product, error) {
	v, unlock := s.write()
	defer unlock()
	return v.AdjustStock(ctx, code, deltaRemaining, deltaSold)
}

func (s *Store) InsertSale(ctx context.Context, sale *models.Sale) error {
	v, unlock := s.write()
	defer unlock()
	return v.InsertSale(ctx, sale)
}

func (s *Store) LockSale(ctx context.Context, id int64) (*models.Sale, error) {
	v, unlock := s.read()
	defer unlock()
	return v.LockSale(ctx, id)
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	v, unlock := s.write()
	defer unlock()
	return v.DeleteSale(ctx, id)
}

func (s *Store) QuerySales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	v, unlock := s.read()
	defer unlock()
	return v.QuerySales(ctx, filter)
}

func (s *Store) InsertCredit(ctx context.Context, credit *models.Credit) error {
	v, unlock := s.write()
	defer unlock()
	return v.InsertCredit(ctx, credit)
}

func (s *Store) GetCredit(ctx context.Context, id int64) (*models.Credit, error) {
	v, unlock := s.read()
	defer unlock()
	return v.GetCredit(ctx, id)
}

func (s *Store) LockCredit(ctx context.Context, id int64) (*models.Credit, error) {
	return s.GetCredit(ctx, id)
}

func (s *Store) UpdateCreditPaid(ctx context.Context, id int64, paid decimal.Decimal) error {
	v, unlock := s.write()
	defer unlock()
	return v.UpdateCreditPaid(ctx, id, paid)
}

func (s *Store) DeleteCredit(ctx context.Context, id int64) error {
	v, unlock := s.write()
	defer unlock()
	return v.DeleteCredit(ctx, id)
}

func (s *Store) ListCredits(ctx context.Context) ([]models.Credit, error) {
	v, unlock := s.read()
	defer unlock()
	return v.ListCredits(ctx)
}

// view implements store.Queries on a state without locking.
// Every method checks before it mutates so a failed call leaves the state untouched.
type view struct {
	st *state
}

func (v view) CreateProduct(_ context.Context, product *models.Product) error {
	for _, p := range v.st.products {
		if p.Code == product.Code {
			return models.ErrDuplicateCode
		}
		if !p.Archived() && strings.EqualFold(p.Name, product.Name) {
			return models.ErrDuplicateName
		}
	}

	v.st.lastProductID++
	now := time.Now()
	product.ID = v.st.lastProductID
	product.CreatedAt = now
	product.UpdatedAt = now
	v.st.products[product.ID] = *product
	return nil
}

func (v view) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := v.st.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (v view) GetProductByCode(_ context.Context, code string) (*models.Product, error) {
	for _, p := range v.st.products {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, models.ErrNotFound
}

func (v view) LockProductByCode(ctx context.Context, code string) (*models.Product, error) {
	return v.GetProductByCode(ctx, code)
}

func (v view) GetProductByName(_ context.Context, name string) (*models.Product, error) {
	for _, p := range v.st.products {
		if !p.Archived() && strings.EqualFold(p.Name, name) {
			return &p, nil
		}
	}
	return nil, models.ErrNotFound
}

func (v view) UpdateProduct(_ context.Context, product *models.Product) error {
	current, ok := v.st.products[product.ID]
	if !ok {
		return models.ErrNotFound
	}
	for _, p := range v.st.products {
		if p.ID != product.ID && !p.Archived() && !current.Archived() && strings.EqualFold(p.Name, product.Name) {
			return models.ErrDuplicateName
		}
	}

	current.Name = product.Name
	current.RemainingQty = product.RemainingQty
	current.SoldQty = product.SoldQty
	current.ActualPrice = product.ActualPrice
	current.SellingPrice = product.SellingPrice
	current.UpdatedAt = time.Now()
	v.st.products[product.ID] = current
	product.UpdatedAt = current.UpdatedAt
	return nil
}

func (v view) ArchiveProduct(_ context.Context, id int64, at time.Time) error {
	p, ok := v.st.products[id]
	if !ok || p.Archived() {
		return models.ErrNotFound
	}
	p.ArchivedAt = &at
	p.UpdatedAt = time.Now()
	v.st.products[id] = p
	return nil
}

func (v view) ListProducts(_ context.Context) ([]models.Product, error) {
	products := []models.Product{}
	for _, p := range v.st.products {
		if !p.Archived() {
			products = append(products, p)
		}
	}
	sortProducts(products)
	return products, nil
}

func (v view) SearchProducts(_ context.Context, term string, limit int) ([]models.Product, error) {
	prefix := strings.ToLower(term)
	products := []models.Product{}
	for _, p := range v.st.products {
		if p.Archived() {
			continue
		}
		if strings.HasPrefix(strings.ToLower(p.Name), prefix) || strings.HasPrefix(p.Code, term) {
			products = append(products, p)
		}
	}
	sortProducts(products)
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (v view) AdjustStock(_ context.Context, code string, deltaRemaining, deltaSold int) (*models.Product, error) {
	for id, p := range v.st.products {
		if p.Code != code {
			continue
		}
		if p.RemainingQty+deltaRemaining < 0 {
			return nil, models.ErrInsufficientStock
		}
		p.RemainingQty += deltaRemaining
		p.SoldQty += deltaSold
		if p.SoldQty < 0 {
			p.SoldQty = 0
		}
		p.UpdatedAt = time.Now()
		v.st.products[id] = p
		return &p, nil
	}
	return nil, models.ErrNotFound
}

func (v view) InsertSale(_ context.Context, sale *models.Sale) error {
	v.st.lastSaleID++
	sale.ID = v.st.lastSaleID
	sale.CreatedAt = time.Now()
	v.st.sales[sale.ID] = *sale
	return nil
}

func (v view) LockSale(_ context.Context, id int64) (*models.Sale, error) {
	sale, ok := v.st.sales[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &sale, nil
}

func (v view) DeleteSale(_ context.Context, id int64) error {
	if _, ok := v.st.sales[id]; !ok {
		return models.ErrNotFound
	}
	delete(v.st.sales, id)
	return nil
}

func (v view) QuerySales(_ context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	name := strings.ToLower(filter.ProductName)
	sales := []models.Sale{}
	for _, s := range v.st.sales {
		switch {
		case filter.From != nil && s.Date.Before(*filter.From):
		case filter.To != nil && s.Date.After(*filter.To):
		case name != "" && !strings.Contains(strings.ToLower(s.ProductName), name):
		case filter.Year > 0 && s.Date.Year() != filter.Year:
		case filter.Month > 0 && int(s.Date.Month()) != filter.Month:
		case filter.Status != "" && s.Status != filter.Status:
		default:
			sales = append(sales, s)
		}
	}
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].Date.Equal(sales[j].Date) {
			return sales[i].Date.After(sales[j].Date)
		}
		return sales[i].ID > sales[j].ID
	})
	return sales, nil
}

func (v view) InsertCredit(_ context.Context, credit *models.Credit) error {
	v.st.lastCreditID++
	credit.ID = v.st.lastCreditID
	credit.CreatedAt = time.Now()
	v.st.credits[credit.ID] = *credit
	return nil
}

func (v view) GetCredit(_ context.Context, id int64) (*models.Credit, error) {
	credit, ok := v.st.credits[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &credit, nil
}

func (v view) LockCredit(ctx context.Context, id int64) (*models.Credit, error) {
	return v.GetCredit(ctx, id)
}

func (v view) UpdateCreditPaid(_ context.Context, id int64, paid decimal.Decimal) error {
	credit, ok := v.st.credits[id]
	if !ok {
		return models.ErrNotFound
	}
	credit.Paid = paid
	v.st.credits[id] = credit
	return nil
}

func (v view) DeleteCredit(_ context.Context, id int64) error {
	if _, ok := v.st.credits[id]; !ok {
		return models.ErrNotFound
	}
	delete(v.st.credits, id)
	return nil
}

func (v view) ListCredits(_ context.Context) ([]models.Credit, error) {
	credits := make([]models.Credit, 0, len(v.st.credits))
	for _, c := range v.st.credits {
		credits = append(credits, c)
	}
	sort.Slice(credits, func(i, j int) bool {
		if !credits[i].CreatedAt.Equal(credits[j].CreatedAt) {
			return credits[i].CreatedAt.After(credits[j].CreatedAt)
		}
		return credits[i].ID > credits[j].ID
	})
	return credits, nil
}

func sortProducts(products []models.Product) {
	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
}
