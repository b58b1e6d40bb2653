package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"inventory-service/internal/models"
	"inventory-service/internal/notify"
	"inventory-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// captureSink records every published event
type captureSink struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (c *captureSink) Publish(ctx context.Context, events ...notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	return c.err
}

func (c *captureSink) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.events))
	for i, ev := range c.events {
		names[i] = ev.Name
	}
	return names
}

func (c *captureSink) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// conflictingStore fails the next n commits with ErrConflict after fn has
// made its writes
type conflictingStore struct {
	*store.MemoryStore
	conflicts atomic.Int32
}

func (s *conflictingStore) RunInTx(ctx context.Context, fn func(q store.Querier) error) error {
	return s.MemoryStore.RunInTx(ctx, func(q store.Querier) error {
		if err := fn(q); err != nil {
			return err
		}
		if s.conflicts.Add(-1) >= 0 {
			return fmt.Errorf("commit: %w", store.ErrConflict)
		}
		return nil
	})
}

type fixture struct {
	store    *store.MemoryStore
	sink     *captureSink
	ledger   *LedgerService
	products *ProductService
	invoices *InvoiceService
	alerts   *AlertService
	reports  *ReportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	sink := &captureSink{}
	ledger := NewLedgerService(st, sink)
	return &fixture{
		store:    st,
		sink:     sink,
		ledger:   ledger,
		products: NewProductService(st, sink, 5),
		invoices: NewInvoiceService(st, ledger, sink),
		alerts:   NewAlertService(st, sink),
		reports:  NewReportService(st),
	}
}

// newConflictFixture is newFixture over a store whose commits can be made
// to lose
func newConflictFixture(t *testing.T) (*fixture, *conflictingStore) {
	t.Helper()
	st := &conflictingStore{MemoryStore: store.NewMemoryStore()}
	sink := &captureSink{}
	ledger := NewLedgerService(st, sink)
	return &fixture{
		store:    st.MemoryStore,
		sink:     sink,
		ledger:   ledger,
		products: NewProductService(st, sink, 5),
		invoices: NewInvoiceService(st, ledger, sink),
		alerts:   NewAlertService(st, sink),
		reports:  NewReportService(st),
	}, st
}

func (f *fixture) product(t *testing.T, sku string, qty, reorderLevel int) *models.Product {
	t.Helper()
	change, err := f.products.CreateProduct(context.Background(), CreateProductInput{
		SKU:          sku,
		Name:         "Product " + sku,
		Category:     "general",
		CostPrice:    decimal.NewFromInt(4),
		SellingPrice: decimal.NewFromInt(10),
		Quantity:     qty,
		ReorderLevel: &reorderLevel,
	})
	require.NoError(t, err)
	f.sink.reset()
	return change.Product
}

func (f *fixture) quantity(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.products.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func (f *fixture) transactions(t *testing.T, productID int64) []models.Transaction {
	t.Helper()
	txs, err := f.ledger.ListTransactions(context.Background(), store.TransactionFilter{ProductID: productID, Limit: store.MaxPageLimit})
	require.NoError(t, err)
	return txs
}

func (f *fixture) openAlerts(t *testing.T, productID int64) []models.Alert {
	t.Helper()
	var alerts []models.Alert
	err := f.store.View(context.Background(), func(q store.Querier) error {
		var err error
		alerts, err = q.UnresolvedAlerts(context.Background(), productID, models.AlertTypeLowStock)
		return err
	})
	require.NoError(t, err)
	return alerts
}

func ptr[T any](v T) *T {
	return &v
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

var errSinkDown = errors.New("sink down")
