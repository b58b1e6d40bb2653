package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/alerting"
	"inventory-service/internal/models"
	"inventory-service/internal/notify"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerService applies quantity changes. Each operation locks the product,
// writes the new quantity, appends a transaction and reconciles alerts in
// one atomic unit.
type LedgerService struct {
	store  store.Store
	sink   notify.Sink
	logger *zap.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(st store.Store, sink notify.Sink) *LedgerService {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &LedgerService{
		store:  st,
		sink:   sink,
		logger: util.GetLogger(),
	}
}

// SaleInput is a request to sell stock
type SaleInput struct {
	ProductID     int64            `json:"productId" binding:"required"`
	Quantity      int              `json:"quantity" binding:"required"`
	UnitPrice     *decimal.Decimal `json:"unitPrice,omitempty"`
	Note          string           `json:"note,omitempty"`
	Actor         string           `json:"actor,omitempty"`
	SourceEventID string           `json:"-"`
}

// RestockInput is a request to receive stock. UnitCost, Supplier and Patch
// are written to the product in the same unit.
type RestockInput struct {
	ProductID     int64                `json:"productId" binding:"required"`
	Quantity      int                  `json:"quantity" binding:"required"`
	UnitCost      *decimal.Decimal     `json:"unitCost,omitempty"`
	Supplier      *string              `json:"supplier,omitempty"`
	Note          string               `json:"note,omitempty"`
	Actor         string               `json:"actor,omitempty"`
	Patch         *models.ProductPatch `json:"patch,omitempty"`
	SourceEventID string               `json:"-"`
}

// AdjustmentInput is a signed stock correction
type AdjustmentInput struct {
	ProductID     int64  `json:"productId" binding:"required"`
	Delta         int    `json:"delta" binding:"required"`
	Reason        string `json:"reason"`
	Actor         string `json:"actor,omitempty"`
	SourceEventID string `json:"-"`
}

// MovementResult is the committed outcome of a ledger operation
type MovementResult struct {
	Transaction    *models.Transaction `json:"transaction"`
	Product        *models.Product     `json:"product"`
	AlertsCreated  []models.Alert      `json:"alertsCreated,omitempty"`
	AlertsResolved []int64             `json:"alertsResolved,omitempty"`
}

// movement is one quantity change applied under the product's row lock
type movement struct {
	productID int64
	txType    string
	delta     int
	quantity  int
	unitPrice *decimal.Decimal
	unitCost  *decimal.Decimal
	supplier  *string
	patch     *models.ProductPatch
	note      string
	actor     string
	invoiceID *int64
	line      int
}

// ApplySale removes qty units from stock
func (s *LedgerService) ApplySale(ctx context.Context, in SaleInput) (*MovementResult, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.ApplySale")
	defer span.End()

	if in.Quantity <= 0 {
		return nil, invalid("quantity", "must be positive")
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return nil, invalid("unitPrice", "must not be negative")
	}

	return s.run(ctx, models.TransactionTypeSale, in.SourceEventID, func(q store.Querier) (*MovementResult, error) {
		return s.applyMovement(ctx, q, movement{
			productID: in.ProductID,
			txType:    models.TransactionTypeSale,
			delta:     -in.Quantity,
			quantity:  in.Quantity,
			unitPrice: in.UnitPrice,
			note:      in.Note,
			actor:     in.Actor,
			line:      -1,
		})
	})
}

// ApplyRestock adds qty units to stock
func (s *LedgerService) ApplyRestock(ctx context.Context, in RestockInput) (*MovementResult, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.ApplyRestock")
	defer span.End()

	if in.Quantity <= 0 {
		return nil, invalid("quantity", "must be positive")
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return nil, invalid("unitCost", "must not be negative")
	}
	if in.Patch != nil {
		if err := validatePatch(*in.Patch); err != nil {
			return nil, err
		}
	}

	return s.run(ctx, models.TransactionTypeRestock, in.SourceEventID, func(q store.Querier) (*MovementResult, error) {
		return s.applyMovement(ctx, q, movement{
			productID: in.ProductID,
			txType:    models.TransactionTypeRestock,
			delta:     in.Quantity,
			quantity:  in.Quantity,
			unitCost:  in.UnitCost,
			supplier:  in.Supplier,
			patch:     in.Patch,
			note:      in.Note,
			actor:     in.Actor,
			line:      -1,
		})
	})
}

// ApplyAdjustment applies a signed correction
func (s *LedgerService) ApplyAdjustment(ctx context.Context, in AdjustmentInput) (*MovementResult, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.ApplyAdjustment")
	defer span.End()

	if in.Delta == 0 {
		return nil, invalid("delta", "must not be zero")
	}

	return s.run(ctx, models.TransactionTypeAdjust, in.SourceEventID, func(q store.Querier) (*MovementResult, error) {
		return s.applyMovement(ctx, q, movement{
			productID: in.ProductID,
			txType:    models.TransactionTypeAdjust,
			delta:     in.Delta,
			quantity:  in.Delta,
			note:      in.Reason,
			actor:     in.Actor,
			line:      -1,
		})
	})
}

// run executes fn in one atomic unit, records metrics and publishes the
// result's notifications after commit
func (s *LedgerService) run(ctx context.Context, opType, sourceEventID string, fn func(q store.Querier) (*MovementResult, error)) (*MovementResult, error) {
	start := time.Now()
	defer func() {
		util.LedgerOperationLatency.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}()

	var result *MovementResult
	err := s.store.RunInTx(ctx, func(q store.Querier) error {
		if sourceEventID != "" {
			first, err := q.MarkEventProcessed(ctx, sourceEventID, opType)
			if err != nil {
				return fmt.Errorf("failed to mark event processed: %w", err)
			}
			if !first {
				return ErrAlreadyProcessed
			}
		}

		r, err := fn(q)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		recordFailure(opType, "ledger", err)
		if outcomeOf(err) == "error" {
			s.logger.Error("Ledger operation failed", zap.String("type", opType), zap.Error(err))
		}
		return nil, err
	}

	util.LedgerOperationsTotal.WithLabelValues(opType, "ok").Inc()
	s.logger.Info("Ledger operation applied",
		zap.String("type", opType),
		zap.Int64("product_id", result.Product.ID),
		zap.Int("quantity", result.Transaction.Quantity),
		zap.Int("balance_after", result.Transaction.BalanceAfter))

	publish(ctx, s.sink, s.logger, result.events()...)
	return result, nil
}

// applyMovement performs one quantity change inside the caller's unit
func (s *LedgerService) applyMovement(ctx context.Context, q store.Querier, m movement) (*MovementResult, error) {
	product, err := q.GetProductForUpdate(ctx, m.productID)
	if err != nil {
		return nil, notFound(err, "product", m.productID)
	}
	if product.Archived {
		return nil, invalid("productId", "product %d is archived", product.ID)
	}

	if m.unitCost != nil || m.supplier != nil || m.patch != nil {
		if m.patch != nil {
			m.patch.Apply(product)
		}
		if m.unitCost != nil {
			product.CostPrice = *m.unitCost
		}
		if m.supplier != nil {
			product.Supplier = *m.supplier
		}
		if err := q.UpdateProduct(ctx, product); err != nil {
			return nil, fmt.Errorf("failed to update product: %w", err)
		}
	}

	previous := product.Quantity
	next := previous + m.delta
	if next < 0 {
		return nil, &InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   -m.delta,
			Available:   previous,
			Line:        m.line,
		}
	}

	if err := q.SetQuantity(ctx, product, next); err != nil {
		return nil, fmt.Errorf("failed to set quantity: %w", err)
	}

	tx := &models.Transaction{
		ProductID:    product.ID,
		ProductName:  product.Name,
		SKU:          product.SKU,
		Quantity:     m.quantity,
		Type:         m.txType,
		BalanceAfter: next,
		Supplier:     product.Supplier,
		Note:         m.note,
		InvoiceID:    m.invoiceID,
		CreatedBy:    m.actor,
	}
	switch m.txType {
	case models.TransactionTypeSale:
		price := product.SellingPrice
		if m.unitPrice != nil {
			price = *m.unitPrice
		}
		tx.SellingPrice = decimal.NewNullDecimal(price)
		tx.CostPrice = decimal.NewNullDecimal(product.CostPrice)
	case models.TransactionTypeRestock:
		tx.CostPrice = decimal.NewNullDecimal(product.CostPrice)
	}

	if err := q.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	created, resolved, err := reconcileAlerts(ctx, q, product, previous)
	if err != nil {
		return nil, err
	}

	return &MovementResult{
		Transaction:    tx,
		Product:        product,
		AlertsCreated:  created,
		AlertsResolved: resolved,
	}, nil
}

// reconcileAlerts brings the product's low-stock alerts in line with its
// current quantity and reorder level
func reconcileAlerts(ctx context.Context, q store.Querier, p *models.Product, previousQty int) ([]models.Alert, []int64, error) {
	existing, err := q.UnresolvedAlerts(ctx, p.ID, models.AlertTypeLowStock)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	decision := alerting.Reconcile(alerting.Input{
		ProductID:    p.ID,
		ProductName:  p.Name,
		PreviousQty:  previousQty,
		NewQty:       p.Quantity,
		ReorderLevel: p.ReorderLevel,
		Existing:     existing,
	})

	var created []models.Alert
	if decision.Create != nil {
		if err := q.InsertAlert(ctx, decision.Create); err != nil {
			return nil, nil, fmt.Errorf("failed to create alert: %w", err)
		}
		created = append(created, *decision.Create)
		util.AlertsOpenedTotal.Inc()
	}
	if len(decision.ResolveIDs) > 0 {
		if err := q.ResolveAlerts(ctx, decision.ResolveIDs, time.Now().UTC()); err != nil {
			return nil, nil, fmt.Errorf("failed to resolve alerts: %w", err)
		}
		util.AlertsResolvedTotal.Add(float64(len(decision.ResolveIDs)))
	}
	return created, decision.ResolveIDs, nil
}

func (r *MovementResult) events() []notify.Event {
	key := productKey(r.Product.ID)
	events := []notify.Event{
		notify.NewEvent(models.EventInventoryUpdate, key, r.Product),
		notify.NewEvent(models.EventTransactionsNew, key, r.Transaction),
	}
	return append(events, alertEvents(r.Product.ID, r.AlertsCreated, r.AlertsResolved)...)
}

func alertEvents(productID int64, created []models.Alert, resolved []int64) []notify.Event {
	key := productKey(productID)
	var events []notify.Event
	for i := range created {
		events = append(events, notify.NewEvent(models.EventAlertsNew, key, created[i]))
	}
	if len(resolved) > 0 {
		events = append(events, notify.NewEvent(models.EventAlertsResolved, key,
			models.AlertsResolvedPayload{ProductID: productID, AlertIDs: resolved}))
	}
	return events
}

func productKey(id int64) string {
	return fmt.Sprintf("product-%d", id)
}

// publish hands committed changes to the sink. Failures never reach the caller.
func publish(ctx context.Context, sink notify.Sink, logger *zap.Logger, events ...notify.Event) {
	if len(events) == 0 {
		return
	}
	if err := sink.Publish(ctx, events...); err != nil {
		logger.Warn("Failed to publish notifications",
			zap.String("event", events[0].Name),
			zap.Error(err))
	}
}

// outcomeOf classifies an error for metrics labels
func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case IsValidation(err):
		return "invalid"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAlreadyProcessed):
		return "duplicate"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

func recordFailure(opType, source string, err error) {
	outcome := outcomeOf(err)
	util.LedgerOperationsTotal.WithLabelValues(opType, outcome).Inc()
	switch outcome {
	case "insufficient_stock":
		util.InsufficientStockTotal.WithLabelValues(source).Inc()
	case "conflict":
		util.LedgerConflictsTotal.Inc()
	}
}

// ListTransactions queries the transaction log, newest first
func (s *LedgerService) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]models.Transaction, error) {
	if f.Type != "" && f.Type != models.TransactionTypeSale &&
		f.Type != models.TransactionTypeRestock && f.Type != models.TransactionTypeAdjust {
		return nil, invalid("type", "unknown transaction type %q", f.Type)
	}

	var txs []models.Transaction
	err := s.store.View(ctx, func(q store.Querier) error {
		var err error
		txs, err = q.ListTransactions(ctx, f)
		return err
	})
	return txs, err
}
