package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. Atomic units run one at a time against
// a private copy of the state which replaces the live state on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	products     map[int64]models.Product
	transactions []models.Transaction
	alerts       map[int64]models.Alert
	sequences    map[string]int64
	invoices     map[int64]models.Invoice
	processed    map[string]models.ProcessedEvent

	lastProductID     int64
	lastTransactionID int64
	lastAlertID       int64
	lastInvoiceID     int64
	lastItemID        int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		products:  map[int64]models.Product{},
		alerts:    map[int64]models.Alert{},
		sequences: map[string]int64{},
		invoices:  map[int64]models.Invoice{},
		processed: map[string]models.ProcessedEvent{},
	}}
}

func (s *memState) clone() *memState {
	c := *s
	c.products = make(map[int64]models.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	// append-only; capping capacity keeps appends off the shared array
	c.transactions = s.transactions[:len(s.transactions):len(s.transactions)]
	c.alerts = make(map[int64]models.Alert, len(s.alerts))
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	c.sequences = make(map[string]int64, len(s.sequences))
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	c.invoices = make(map[int64]models.Invoice, len(s.invoices))
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	c.processed = make(map[string]models.ProcessedEvent, len(s.processed))
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return &c
}

// RunInTx runs fn against a staged copy and publishes it when fn succeeds
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(&memQueries{st: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = staged
	return nil
}

// View runs fn against the committed state
func (s *MemoryStore) View(ctx context.Context, fn func(q Querier) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memQueries{st: s.state, readOnly: true})
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

type memQueries struct {
	st       *memState
	readOnly bool
}

func (q *memQueries) writable() error {
	if q.readOnly {
		return ErrReadOnly
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func page[T any](items []T, pageNum, limit, def int) []T {
	limit, offset := pageBounds(pageNum, limit, def)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func copyInvoice(inv models.Invoice) models.Invoice {
	items := make([]models.InvoiceItem, len(inv.Items))
	copy(items, inv.Items)
	inv.Items = items
	return inv
}

func (q *memQueries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := q.st.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (q *memQueries) GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	return q.GetProduct(ctx, id)
}

func (q *memQueries) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error) {
	needle := strings.ToLower(f.Query)
	matched := []models.Product{}
	for _, p := range q.st.products {
		if p.Archived && !f.IncludeArchived {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.SKU), needle) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, f.Page, f.Limit, DefaultProductLimit), len(matched), nil
}

func (q *memQueries) CreateProduct(ctx context.Context, p *models.Product) error {
	if err := q.writable(); err != nil {
		return err
	}
	for _, existing := range q.st.products {
		if existing.SKU == p.SKU {
			return fmt.Errorf("%w: sku %q already exists", ErrDuplicate, p.SKU)
		}
	}
	if p.Quantity < 0 {
		return fmt.Errorf("negative quantity %d for new product", p.Quantity)
	}

	q.st.lastProductID++
	p.ID = q.st.lastProductID
	p.Archived = false
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	q.st.products[p.ID] = *p
	return nil
}

func (q *memQueries) UpdateProduct(ctx context.Context, p *models.Product) error {
	if err := q.writable(); err != nil {
		return err
	}
	existing, ok := q.st.products[p.ID]
	if !ok {
		return ErrNotFound
	}

	updated := *p
	updated.SKU = existing.SKU
	updated.Quantity = existing.Quantity
	updated.Archived = existing.Archived
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = now()
	q.st.products[p.ID] = updated
	p.UpdatedAt = updated.UpdatedAt
	return nil
}

func (q *memQueries) SetQuantity(ctx context.Context, p *models.Product, quantity int) error {
	if err := q.writable(); err != nil {
		return err
	}
	if quantity < 0 {
		return fmt.Errorf("negative quantity %d for product %d", quantity, p.ID)
	}
	existing, ok := q.st.products[p.ID]
	if !ok {
		return ErrNotFound
	}

	existing.Quantity = quantity
	existing.UpdatedAt = now()
	q.st.products[p.ID] = existing
	p.Quantity, p.UpdatedAt = quantity, existing.UpdatedAt
	return nil
}

func (q *memQueries) ArchiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	if err := q.writable(); err != nil {
		return nil, err
	}
	p, ok := q.st.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Archived = true
	p.UpdatedAt = now()
	q.st.products[id] = p
	return &p, nil
}

func (q *memQueries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	if err := q.writable(); err != nil {
		return err
	}
	if _, ok := q.st.products[t.ProductID]; !ok {
		return fmt.Errorf("transaction references unknown product %d", t.ProductID)
	}

	q.st.lastTransactionID++
	t.ID = q.st.lastTransactionID
	t.CreatedAt = now()
	q.st.transactions = append(q.st.transactions, *t)
	return nil
}

func (q *memQueries) ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	matched := []models.Transaction{}
	for i := len(q.st.transactions) - 1; i >= 0; i-- {
		t := q.st.transactions[i]
		if f.ProductID != 0 && t.ProductID != f.ProductID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.InvoiceID != 0 && (t.InvoiceID == nil || *t.InvoiceID != f.InvoiceID) {
			continue
		}
		matched = append(matched, t)
	}
	return page(matched, f.Page, f.Limit, DefaultTransactionLimit), nil
}

func (q *memQueries) UnresolvedAlerts(ctx context.Context, productID int64, alertType string) ([]models.Alert, error) {
	alerts := []models.Alert{}
	for _, a := range q.st.alerts {
		if a.ProductID == productID && a.Type == alertType && !a.Resolved {
			alerts = append(alerts, a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts, nil
}

func (q *memQueries) ListUnresolvedAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > MaxAlertLimit {
		limit = MaxAlertLimit
	}
	alerts := []models.Alert{}
	for _, a := range q.st.alerts {
		if !a.Resolved {
			alerts = append(alerts, a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID > alerts[j].ID })
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (q *memQueries) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	a, ok := q.st.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (q *memQueries) InsertAlert(ctx context.Context, a *models.Alert) error {
	if err := q.writable(); err != nil {
		return err
	}
	q.st.lastAlertID++
	a.ID = q.st.lastAlertID
	a.Resolved = false
	a.ResolvedAt = nil
	a.CreatedAt = now()
	q.st.alerts[a.ID] = *a
	return nil
}

func (q *memQueries) ResolveAlerts(ctx context.Context, ids []int64, at time.Time) error {
	if err := q.writable(); err != nil {
		return err
	}
	for _, id := range ids {
		a, ok := q.st.alerts[id]
		if !ok || a.Resolved {
			continue
		}
		resolvedAt := at
		a.Resolved = true
		a.ResolvedAt = &resolvedAt
		q.st.alerts[id] = a
	}
	return nil
}

func (q *memQueries) NextSequence(ctx context.Context, name string) (int64, error) {
	if err := q.writable(); err != nil {
		return 0, err
	}
	q.st.sequences[name]++
	return q.st.sequences[name], nil
}

func (q *memQueries) CurrentSequence(ctx context.Context, name string) (int64, error) {
	return q.st.sequences[name], nil
}

func (q *memQueries) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if err := q.writable(); err != nil {
		return err
	}
	for _, existing := range q.st.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return fmt.Errorf("%w: invoice number %q already exists", ErrDuplicate, inv.InvoiceNumber)
		}
	}

	q.st.lastInvoiceID++
	inv.ID = q.st.lastInvoiceID
	inv.CreatedAt = now()
	inv.UpdatedAt = inv.CreatedAt
	for i := range inv.Items {
		if inv.Items[i].Quantity <= 0 {
			return fmt.Errorf("invoice item %d has non-positive quantity", i)
		}
		q.st.lastItemID++
		inv.Items[i].ID = q.st.lastItemID
		inv.Items[i].InvoiceID = inv.ID
	}
	q.st.invoices[inv.ID] = copyInvoice(*inv)
	return nil
}

func (q *memQueries) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, ok := q.st.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	inv = copyInvoice(inv)
	return &inv, nil
}

func (q *memQueries) GetInvoiceForUpdate(ctx context.Context, id int64) (*models.Invoice, error) {
	return q.GetInvoice(ctx, id)
}

func (q *memQueries) ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, int, error) {
	needle := strings.ToLower(f.Query)
	matched := []models.Invoice{}
	for _, inv := range q.st.invoices {
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(inv.Customer.Name), needle) &&
			!strings.Contains(strings.ToLower(inv.InvoiceNumber), needle) {
			continue
		}
		matched = append(matched, copyInvoice(inv))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return page(matched, f.Page, f.Limit, DefaultInvoiceLimit), len(matched), nil
}

func (q *memQueries) UpdateInvoiceStatus(ctx context.Context, inv *models.Invoice, status string) error {
	if err := q.writable(); err != nil {
		return err
	}
	existing, ok := q.st.invoices[inv.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = status
	existing.UpdatedAt = now()
	q.st.invoices[inv.ID] = existing
	inv.Status, inv.UpdatedAt = status, existing.UpdatedAt
	return nil
}

func (q *memQueries) DeleteInvoice(ctx context.Context, id int64) error {
	if err := q.writable(); err != nil {
		return err
	}
	if _, ok := q.st.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(q.st.invoices, id)
	return nil
}

func (q *memQueries) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if err := q.writable(); err != nil {
		return false, err
	}
	if _, ok := q.st.processed[eventID]; ok {
		return false, nil
	}
	q.st.processed[eventID] = models.ProcessedEvent{EventID: eventID, EventType: eventType, ProcessedAt: now()}
	return true, nil
}

func (q *memQueries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	_, ok := q.st.processed[eventID]
	return ok, nil
}

func (q *memQueries) StockSummary(ctx context.Context) (*StockSummary, error) {
	var summary StockSummary
	for _, p := range q.st.products {
		summary.StockValue = summary.StockValue.Add(p.CostPrice.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}
	for _, t := range q.st.transactions {
		qty := decimal.NewFromInt(int64(t.Quantity))
		switch t.Type {
		case models.TransactionTypeSale:
			summary.TotalSales.TotalQty += t.Quantity
			if t.SellingPrice.Valid {
				summary.TotalSales.TotalValue = summary.TotalSales.TotalValue.Add(qty.Mul(t.SellingPrice.Decimal))
			}
		case models.TransactionTypeRestock:
			summary.TotalPurchases.TotalQty += t.Quantity
			if t.CostPrice.Valid {
				summary.TotalPurchases.TotalValue = summary.TotalPurchases.TotalValue.Add(qty.Mul(t.CostPrice.Decimal))
			}
		}
	}
	return &summary, nil
}

func (q *memQueries) TopSelling(ctx context.Context, limit int) ([]TopSeller, error) {
	if limit <= 0 {
		limit = 5
	}
	sold := map[int64]int{}
	for _, t := range q.st.transactions {
		if t.Type == models.TransactionTypeSale {
			sold[t.ProductID] += t.Quantity
		}
	}

	top := []TopSeller{}
	for id, qty := range sold {
		if p, ok := q.st.products[id]; ok {
			top = append(top, TopSeller{Product: p, TotalQty: qty})
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].TotalQty != top[j].TotalQty {
			return top[i].TotalQty > top[j].TotalQty
		}
		return top[i].ID < top[j].ID
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (q *memQueries) LowStockProducts(ctx context.Context, limit int) ([]models.Product, error) {
	if limit <= 0 || limit > MaxAlertLimit {
		limit = MaxAlertLimit
	}
	products := []models.Product{}
	for _, p := range q.st.products {
		if !p.Archived && p.Quantity <= p.ReorderLevel {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Quantity != products[j].Quantity {
			return products[i].Quantity < products[j].Quantity
		}
		return products[i].ID < products[j].ID
	})
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}
