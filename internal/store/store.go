package store

import (
	"context"
	"errors"
	"time"

	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a concurrent writer won the race (deadlock,
	// serialization failure, lock timeout). The atomic unit was rolled back and
	// the caller may retry with fresh reads.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrDuplicate is returned on unique constraint violations
	ErrDuplicate = errors.New("duplicate key")
	// ErrReadOnly is returned when a write is attempted through View
	ErrReadOnly = errors.New("write attempted outside of a transaction")
)

// Store is the storage layer. All access goes through a scoped unit: RunInTx
// commits when fn returns nil and rolls back on error, panic, or cancellation
// of ctx before commit.
type Store interface {
	RunInTx(ctx context.Context, fn func(q Querier) error) error
	View(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Querier is the set of reads and writes available inside a unit
type Querier interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	SetQuantity(ctx context.Context, p *models.Product, quantity int) error
	ArchiveProduct(ctx context.Context, id int64) (*models.Product, error)

	InsertTransaction(ctx context.Context, t *models.Transaction) error
	ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error)

	UnresolvedAlerts(ctx context.Context, productID int64, alertType string) ([]models.Alert, error)
	ListUnresolvedAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
	InsertAlert(ctx context.Context, a *models.Alert) error
	ResolveAlerts(ctx context.Context, ids []int64, at time.Time) error

	NextSequence(ctx context.Context, name string) (int64, error)
	CurrentSequence(ctx context.Context, name string) (int64, error)

	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (*models.Invoice, error)
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, int, error)
	UpdateInvoiceStatus(ctx context.Context, inv *models.Invoice, status string) error
	DeleteInvoice(ctx context.Context, id int64) error

	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)

	StockSummary(ctx context.Context) (*StockSummary, error)
	TopSelling(ctx context.Context, limit int) ([]TopSeller, error)
	LowStockProducts(ctx context.Context, limit int) ([]models.Product, error)
}

// ProductFilter narrows product listings
type ProductFilter struct {
	Query           string
	Category        string
	IncludeArchived bool
	Page            int
	Limit           int
}

// TransactionFilter narrows transaction log queries
type TransactionFilter struct {
	ProductID int64
	Type      string
	InvoiceID int64
	Page      int
	Limit     int
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	Status string
	Query  string
	Page   int
	Limit  int
}

// Totals aggregates quantity and value over a set of transactions
type Totals struct {
	TotalQty   int             `db:"total_qty" json:"totalQty"`
	TotalValue decimal.Decimal `db:"total_value" json:"totalValue"`
}

// StockSummary is the stock value report
type StockSummary struct {
	StockValue     decimal.Decimal `json:"stockValue"`
	TotalSales     Totals          `json:"totalSales"`
	TotalPurchases Totals          `json:"totalPurchases"`
}

// TopSeller is a product ranked by units sold
type TopSeller struct {
	models.Product `json:"product"`
	TotalQty       int `db:"total_qty" json:"totalQty"`
}

// Default and maximum page sizes
const (
	DefaultProductLimit     = 200
	DefaultTransactionLimit = 100
	DefaultInvoiceLimit     = 100
	MaxPageLimit            = 500
	MaxAlertLimit           = 200
)

// pageBounds turns 1-based page/limit into limit/offset
func pageBounds(page, limit, def int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}
