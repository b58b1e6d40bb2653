package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func fixedClock(day time.Time) func() time.Time {
	return func() time.Time { return day }
}

func invoiceInput(status string, items ...InvoiceItemInput) CreateInvoiceInput {
	return CreateInvoiceInput{
		Customer: models.Customer{Name: "Acme Corp", Email: "billing@acme.test"},
		Items:    items,
		Status:   status,
	}
}

func line(productID *int64, qty int, price int64) InvoiceItemInput {
	return InvoiceItemInput{ProductID: productID, Name: "Line item", Quantity: qty, Price: dec(price)}
}

func TestComputeTotals(t *testing.T) {
	items := []models.InvoiceItem{
		{Quantity: 2, Price: decimal.RequireFromString("19.99")},
		{Quantity: 3, Price: decimal.RequireFromString("0.10")},
	}

	totals := ComputeTotals(items, decimal.RequireFromString("4.00"), decimal.RequireFromString("1.50"))

	assert.True(t, items[0].Total.Equal(decimal.RequireFromString("39.98")))
	assert.True(t, items[1].Total.Equal(decimal.RequireFromString("0.30")))
	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("40.28")))
	assert.True(t, totals.TotalAmount.Equal(decimal.RequireFromString("42.78")))
}

func TestInvoiceNumberFormat(t *testing.T) {
	day := time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "INV-20240307-0001", InvoiceNumber(day, 1))
	assert.Equal(t, "INV-20240307-12345", InvoiceNumber(day, 12345))
	assert.Equal(t, "invoice-20240307", InvoiceSequenceScope(day))
}

func TestCreatePendingInvoiceStoresRecomputedTotals(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 5, 0)
	f.invoices.now = fixedClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	in := invoiceInput("", line(&p.ID, 2, 10), InvoiceItemInput{Name: "Setup fee", Quantity: 1, Price: dec(25)})
	in.Tax = dec(3)
	in.Discount = dec(5)

	inv, err := f.invoices.CreateInvoice(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "INV-20240115-0001", inv.InvoiceNumber)
	assert.Equal(t, models.InvoiceStatusPending, inv.Status)
	assert.True(t, inv.Subtotal.Equal(dec(45)))
	assert.True(t, inv.TotalAmount.Equal(dec(43)))

	stored, err := f.invoices.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	recomputed := ComputeTotals(stored.Items, stored.Tax, stored.Discount)
	assert.True(t, stored.Subtotal.Equal(recomputed.Subtotal))
	assert.True(t, stored.TotalAmount.Equal(recomputed.TotalAmount))

	// pending invoices do not touch stock
	assert.Equal(t, 5, f.quantity(t, p.ID))
	assert.Equal(t, []string{models.EventInvoicesNew}, f.sink.names())
}

func TestCreatePaidInvoiceSettles(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A-1", 10, 2)
	b := f.product(t, "B-1", 4, 2)

	inv, err := f.invoices.CreateInvoice(context.Background(),
		invoiceInput(models.InvoiceStatusPaid, line(&b.ID, 3, 12), line(&a.ID, 1, 9), line(nil, 1, 50)))
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, inv.Status)

	assert.Equal(t, 9, f.quantity(t, a.ID))
	assert.Equal(t, 1, f.quantity(t, b.ID))

	txs, err := f.ledger.ListTransactions(context.Background(), store.TransactionFilter{InvoiceID: inv.ID})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.Equal(t, models.TransactionTypeSale, tx.Type)
		require.NotNil(t, tx.InvoiceID)
		assert.Equal(t, inv.ID, *tx.InvoiceID)
		assert.Contains(t, tx.Note, inv.InvoiceNumber)
	}
	assert.Len(t, f.openAlerts(t, b.ID), 1)
	assert.Contains(t, f.sink.names(), models.EventAlertsNew)
}

func TestPaidInvoiceAbortsOnInsufficientStock(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A-1", 3, 0)
	b := f.product(t, "B-1", 0, 0)

	_, err := f.invoices.CreateInvoice(context.Background(),
		invoiceInput(models.InvoiceStatusPaid, line(&a.ID, 2, 10), line(&b.ID, 1, 10)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, b.ID, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Line)

	assert.Equal(t, 3, f.quantity(t, a.ID))
	assert.Empty(t, f.transactions(t, a.ID))
	assert.Empty(t, f.transactions(t, b.ID))

	invoices, total, err := f.invoices.ListInvoices(context.Background(), store.InvoiceFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, invoices)
	assert.Empty(t, f.sink.names())
}

func TestPaidInvoiceAbortsOnUnknownProduct(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A-1", 3, 0)
	missing := int64(404)

	_, err := f.invoices.CreateInvoice(context.Background(),
		invoiceInput(models.InvoiceStatusPaid, line(&a.ID, 1, 10), line(&missing, 1, 10)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Equal(t, 3, f.quantity(t, a.ID))
}

func TestUpdateStatusToPaidSettlesOnce(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 10, 0)
	ctx := context.Background()

	inv, err := f.invoices.CreateInvoice(ctx, invoiceInput(models.InvoiceStatusPending, line(&p.ID, 4, 10)))
	require.NoError(t, err)

	overdue, err := f.invoices.UpdateStatus(ctx, inv.ID, models.InvoiceStatusOverdue, "")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusOverdue, overdue.Status)
	assert.Equal(t, 10, f.quantity(t, p.ID))

	paid, err := f.invoices.UpdateStatus(ctx, inv.ID, models.InvoiceStatusPaid, "cashier")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, 6, f.quantity(t, p.ID))

	f.sink.reset()
	again, err := f.invoices.UpdateStatus(ctx, inv.ID, models.InvoiceStatusPaid, "cashier")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, again.Status)
	assert.Equal(t, 6, f.quantity(t, p.ID))
	assert.Len(t, f.transactions(t, p.ID), 1)
	assert.Empty(t, f.sink.names())

	_, err = f.invoices.UpdateStatus(ctx, inv.ID, models.InvoiceStatusPending, "")
	assert.True(t, IsValidation(err))
}

func TestUpdateStatusToPaidKeepsStatusOnFailure(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 2, 0)
	ctx := context.Background()

	inv, err := f.invoices.CreateInvoice(ctx, invoiceInput(models.InvoiceStatusPending, line(&p.ID, 3, 10)))
	require.NoError(t, err)

	_, err = f.invoices.UpdateStatus(ctx, inv.ID, models.InvoiceStatusPaid, "")
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	stored, err := f.invoices.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPending, stored.Status)
	assert.Equal(t, 2, f.quantity(t, p.ID))
}

func TestUpdateStatusValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.invoices.UpdateStatus(ctx, 1, "Refunded", "")
	assert.True(t, IsValidation(err))

	_, err = f.invoices.UpdateStatus(ctx, 99, models.InvoiceStatusPaid, "")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]CreateInvoiceInput{
		"missing customer": {Items: []InvoiceItemInput{line(nil, 1, 1)}},
		"no items":         invoiceInput(""),
		"zero quantity":    invoiceInput("", line(nil, 0, 1)),
		"negative price":   invoiceInput("", line(nil, 1, -1)),
		"unknown status":   invoiceInput("Draft", line(nil, 1, 1)),
		"discount too big": func() CreateInvoiceInput {
			in := invoiceInput("", line(nil, 1, 1))
			in.Discount = dec(5)
			return in
		}(),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.invoices.CreateInvoice(ctx, in)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}
}

func TestConcurrentInvoiceNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f.invoices.now = fixedClock(day)
	ctx := context.Background()
	const n = 50

	var mu sync.Mutex
	numbers := map[string]bool{}
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			inv, err := f.invoices.CreateInvoice(ctx, invoiceInput("", line(nil, 1, 10)))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			numbers[inv.InvoiceNumber] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, numbers, n)

	err := f.store.View(ctx, func(q store.Querier) error {
		v, err := q.CurrentSequence(ctx, InvoiceSequenceScope(day))
		require.NoError(t, err)
		assert.Equal(t, int64(n), v)
		return nil
	})
	require.NoError(t, err)
}

func TestListAndDeleteInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.invoices.CreateInvoice(ctx, invoiceInput("", line(nil, 1, 10)))
	require.NoError(t, err)
	in := invoiceInput(models.InvoiceStatusOverdue, line(nil, 1, 10))
	in.Customer.Name = "Globex"
	_, err = f.invoices.CreateInvoice(ctx, in)
	require.NoError(t, err)

	overdue, total, err := f.invoices.ListInvoices(ctx, store.InvoiceFilter{Status: models.InvoiceStatusOverdue})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Globex", overdue[0].Customer.Name)

	_, total, err = f.invoices.ListInvoices(ctx, store.InvoiceFilter{Query: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, _, err = f.invoices.ListInvoices(ctx, store.InvoiceFilter{Status: "Void"})
	assert.True(t, IsValidation(err))

	require.NoError(t, f.invoices.DeleteInvoice(ctx, first.ID))
	_, err = f.invoices.GetInvoice(ctx, first.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, errors.Is(f.invoices.DeleteInvoice(ctx, first.ID), store.ErrNotFound))
}
