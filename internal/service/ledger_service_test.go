package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"inventory-service/internal/models"
	"inventory-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSaleOpensLowStockAlert(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 10, 5)
	ctx := context.Background()

	res, err := f.ledger.ApplySale(ctx, SaleInput{ProductID: p.ID, Quantity: 6, Actor: "clerk"})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Product.Quantity)
	assert.Equal(t, models.TransactionTypeSale, res.Transaction.Type)
	assert.Equal(t, 6, res.Transaction.Quantity)
	assert.Equal(t, 4, res.Transaction.BalanceAfter)
	assert.Equal(t, "clerk", res.Transaction.CreatedBy)
	assert.True(t, res.Transaction.SellingPrice.Valid)
	assert.True(t, res.Transaction.SellingPrice.Decimal.Equal(dec(10)))
	require.Len(t, res.AlertsCreated, 1)
	assert.Equal(t, models.SeverityWarning, res.AlertsCreated[0].Severity)

	assert.Equal(t, 4, f.quantity(t, p.ID))
	assert.Len(t, f.transactions(t, p.ID), 1)
	assert.Len(t, f.openAlerts(t, p.ID), 1)
	assert.Equal(t, []string{models.EventInventoryUpdate, models.EventTransactionsNew, models.EventAlertsNew}, f.sink.names())
}

func TestRestockResolvesAlert(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 10, 5)
	ctx := context.Background()

	sale, err := f.ledger.ApplySale(ctx, SaleInput{ProductID: p.ID, Quantity: 6})
	require.NoError(t, err)
	alertID := sale.AlertsCreated[0].ID

	res, err := f.ledger.ApplyRestock(ctx, RestockInput{ProductID: p.ID, Quantity: 5})
	require.NoError(t, err)

	assert.Equal(t, 9, res.Product.Quantity)
	assert.Empty(t, res.AlertsCreated)
	assert.Equal(t, []int64{alertID}, res.AlertsResolved)
	assert.Empty(t, f.openAlerts(t, p.ID))

	var alert *models.Alert
	err = f.store.View(ctx, func(q store.Querier) error {
		alert, err = q.GetAlert(ctx, alertID)
		return err
	})
	require.NoError(t, err)
	assert.True(t, alert.Resolved)
	assert.NotNil(t, alert.ResolvedAt)
}

func TestRestockAppliesCostSupplierAndPatch(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 1, 5)

	res, err := f.ledger.ApplyRestock(context.Background(), RestockInput{
		ProductID: p.ID,
		Quantity:  2,
		UnitCost:  ptr(dec(7)),
		Supplier:  ptr("Acme Supply"),
		Patch:     &models.ProductPatch{Name: ptr("Renamed"), ReorderLevel: ptr(1)},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Product.Quantity)
	assert.True(t, res.Product.CostPrice.Equal(dec(7)))
	assert.Equal(t, "Acme Supply", res.Product.Supplier)
	assert.Equal(t, "Renamed", res.Transaction.ProductName)
	assert.True(t, res.Transaction.CostPrice.Decimal.Equal(dec(7)))
	// the opening alert at quantity 1 is resolved by the new level plus stock
	assert.Len(t, res.AlertsResolved, 1)

	got, err := f.products.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 1, got.ReorderLevel)
}

func TestSaleInsufficientStockHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 3, 1)

	_, err := f.ledger.ApplySale(context.Background(), SaleInput{ProductID: p.ID, Quantity: 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 3, stockErr.Available)

	assert.Equal(t, 3, f.quantity(t, p.ID))
	assert.Empty(t, f.transactions(t, p.ID))
	assert.Empty(t, f.sink.names())
}

func TestLedgerValidation(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 3, 1)
	ctx := context.Background()

	_, err := f.ledger.ApplySale(ctx, SaleInput{ProductID: p.ID, Quantity: 0})
	assert.True(t, IsValidation(err))

	_, err = f.ledger.ApplySale(ctx, SaleInput{ProductID: p.ID, Quantity: 1, UnitPrice: ptr(dec(-1))})
	assert.True(t, IsValidation(err))

	_, err = f.ledger.ApplyRestock(ctx, RestockInput{ProductID: p.ID, Quantity: -2})
	assert.True(t, IsValidation(err))

	_, err = f.ledger.ApplyAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Delta: 0})
	assert.True(t, IsValidation(err))

	_, err = f.ledger.ApplySale(ctx, SaleInput{ProductID: 999, Quantity: 1})
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "product", nf.Resource)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	assert.Empty(t, f.transactions(t, p.ID))
}

func TestAdjustmentCannotGoNegative(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 2, 0)
	ctx := context.Background()

	_, err := f.ledger.ApplyAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Delta: -3, Reason: "count"})
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	res, err := f.ledger.ApplyAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Delta: -2, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Product.Quantity)
	assert.Equal(t, -2, res.Transaction.Quantity)
	assert.Equal(t, -2, res.Transaction.Delta())
	assert.Equal(t, "damaged", res.Transaction.Note)
	require.Len(t, res.AlertsCreated, 1)
	assert.Equal(t, models.SeverityCritical, res.AlertsCreated[0].Severity)
}

func TestArchivedProductRejectsMovements(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 5, 0)
	ctx := context.Background()

	_, err := f.products.ArchiveProduct(ctx, p.ID)
	require.NoError(t, err)

	_, err = f.ledger.ApplyRestock(ctx, RestockInput{ProductID: p.ID, Quantity: 1})
	assert.True(t, IsValidation(err))
	assert.Equal(t, 5, f.quantity(t, p.ID))
}

func TestConservation(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 20, 5)
	ctx := context.Background()

	type op struct {
		kind string
		qty  int
	}
	ops := []op{
		{"sale", 5}, {"restock", 3}, {"adjust", -2}, {"sale", 30},
		{"sale", 10}, {"adjust", 4}, {"restock", 1}, {"adjust", -100},
	}

	expected, committed := 20, 0
	for _, o := range ops {
		var err error
		switch o.kind {
		case "sale":
			_, err = f.ledger.ApplySale(ctx, SaleInput{ProductID: p.ID, Quantity: o.qty})
			if err == nil {
				expected -= o.qty
			}
		case "restock":
			_, err = f.ledger.ApplyRestock(ctx, RestockInput{ProductID: p.ID, Quantity: o.qty})
			if err == nil {
				expected += o.qty
			}
		case "adjust":
			_, err = f.ledger.ApplyAdjustment(ctx, AdjustmentInput{ProductID: p.ID, Delta: o.qty})
			if err == nil {
				expected += o.qty
			}
		}
		if err == nil {
			committed++
		} else {
			assert.True(t, errors.Is(err, ErrInsufficientStock), "unexpected error: %v", err)
		}
		assert.GreaterOrEqual(t, f.quantity(t, p.ID), 0)
	}

	assert.Equal(t, 6, committed)
	assert.Equal(t, expected, f.quantity(t, p.ID))

	txs := f.transactions(t, p.ID)
	assert.Len(t, txs, committed)
	sum := 20
	for _, tx := range txs {
		sum += tx.Delta()
	}
	assert.Equal(t, expected, sum)
	// newest first
	assert.Equal(t, expected, txs[0].BalanceAfter)
}

func TestConcurrentSalesAreFair(t *testing.T) {
	f := newFixture(t)
	const stock, buyers = 7, 25
	p := f.product(t, "HOT-1", stock, 0)
	ctx := context.Background()

	var succeeded, rejected int32
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			_, err := f.ledger.ApplySale(ctx, SaleInput{ProductID: p.ID, Quantity: 1})
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, ErrInsufficientStock):
				atomic.AddInt32(&rejected, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(stock), succeeded)
	assert.Equal(t, int32(buyers-stock), rejected)
	assert.Equal(t, 0, f.quantity(t, p.ID))
	assert.Len(t, f.transactions(t, p.ID), stock)
	assert.Len(t, f.openAlerts(t, p.ID), 1)
}

func TestSourceEventAppliedOnce(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 10, 0)
	ctx := context.Background()

	in := SaleInput{ProductID: p.ID, Quantity: 2, SourceEventID: "evt-1"}
	_, err := f.ledger.ApplySale(ctx, in)
	require.NoError(t, err)

	_, err = f.ledger.ApplySale(ctx, in)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	assert.Equal(t, 8, f.quantity(t, p.ID))
	assert.Len(t, f.transactions(t, p.ID), 1)
}

func TestFailedSourceEventCanBeRetried(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 1, 0)
	ctx := context.Background()

	in := SaleInput{ProductID: p.ID, Quantity: 2, SourceEventID: "evt-2"}
	_, err := f.ledger.ApplySale(ctx, in)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = f.ledger.ApplyRestock(ctx, RestockInput{ProductID: p.ID, Quantity: 5})
	require.NoError(t, err)

	_, err = f.ledger.ApplySale(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 4, f.quantity(t, p.ID))
}

func TestConflictRollsBackAndCanBeRetried(t *testing.T) {
	f, st := newConflictFixture(t)
	p := f.product(t, "WID-1", 8, 5)
	ctx := context.Background()

	st.conflicts.Store(1)
	in := SaleInput{ProductID: p.ID, Quantity: 4, SourceEventID: "evt-c"}
	_, err := f.ledger.ApplySale(ctx, in)
	require.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, "conflict", outcomeOf(err))

	assert.Equal(t, 8, f.quantity(t, p.ID))
	assert.Empty(t, f.transactions(t, p.ID))
	assert.Empty(t, f.openAlerts(t, p.ID))
	assert.Empty(t, f.sink.names())

	res, err := f.ledger.ApplySale(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Product.Quantity)
	assert.Len(t, res.AlertsCreated, 1)
	assert.Len(t, f.transactions(t, p.ID), 1)
}

func TestPaidInvoiceConflictLeavesNoTrace(t *testing.T) {
	f, st := newConflictFixture(t)
	p := f.product(t, "WID-1", 5, 0)
	ctx := context.Background()

	st.conflicts.Store(1)
	_, err := f.invoices.CreateInvoice(ctx, invoiceInput(models.InvoiceStatusPaid, line(&p.ID, 2, 10)))
	require.ErrorIs(t, err, store.ErrConflict)

	assert.Equal(t, 5, f.quantity(t, p.ID))
	assert.Empty(t, f.transactions(t, p.ID))
	invoices, total, err := f.invoices.ListInvoices(ctx, store.InvoiceFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, invoices)
}

func TestSinkFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "WID-1", 10, 0)
	f.sink.err = errSinkDown

	res, err := f.ledger.ApplySale(context.Background(), SaleInput{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Product.Quantity)
	assert.Equal(t, 7, f.quantity(t, p.ID))
}

func TestListTransactionsFilters(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A-1", 10, 0)
	b := f.product(t, "B-1", 10, 0)
	ctx := context.Background()

	_, err := f.ledger.ApplySale(ctx, SaleInput{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = f.ledger.ApplyRestock(ctx, RestockInput{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = f.ledger.ApplySale(ctx, SaleInput{ProductID: b.ID, Quantity: 1})
	require.NoError(t, err)

	sales, err := f.ledger.ListTransactions(ctx, store.TransactionFilter{Type: models.TransactionTypeSale})
	require.NoError(t, err)
	assert.Len(t, sales, 2)
	assert.Equal(t, b.ID, sales[0].ProductID)

	_, err = f.ledger.ListTransactions(ctx, store.TransactionFilter{Type: "refund"})
	assert.True(t, IsValidation(err))
}
