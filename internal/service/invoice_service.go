package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/notify"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InvoiceService creates invoices and settles them against stock
type InvoiceService struct {
	store  store.Store
	ledger *LedgerService
	sink   notify.Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(st store.Store, ledger *LedgerService, sink notify.Sink) *InvoiceService {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &InvoiceService{
		store:  st,
		ledger: ledger,
		sink:   sink,
		logger: util.GetLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// InvoiceItemInput is one requested invoice line
type InvoiceItemInput struct {
	ProductID   *int64          `json:"productId,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// CreateInvoiceInput is a request to create an invoice. Totals are always
// computed from the items.
type CreateInvoiceInput struct {
	Customer  models.Customer    `json:"customer"`
	Items     []InvoiceItemInput `json:"items"`
	Tax       decimal.Decimal    `json:"tax"`
	Discount  decimal.Decimal    `json:"discount"`
	Status    string             `json:"status"`
	DueDate   *time.Time         `json:"dueDate,omitempty"`
	Notes     string             `json:"notes,omitempty"`
	SourceRef string             `json:"sourceRef,omitempty"`
	Actor     string             `json:"actor,omitempty"`
}

// Totals are the derived money fields of an invoice
type Totals struct {
	Subtotal    decimal.Decimal
	TotalAmount decimal.Decimal
}

// ComputeTotals fills each line total and returns the invoice totals
func ComputeTotals(items []models.InvoiceItem, tax, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for i := range items {
		items[i].Total = items[i].Price.Mul(decimal.NewFromInt(int64(items[i].Quantity)))
		subtotal = subtotal.Add(items[i].Total)
	}
	return Totals{
		Subtotal:    subtotal,
		TotalAmount: subtotal.Add(tax).Sub(discount),
	}
}

// InvoiceNumber formats the sequence value for a creation day
func InvoiceNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%04d", day.Format("20060102"), seq)
}

// InvoiceSequenceScope is the counter name for invoices created on day
func InvoiceSequenceScope(day time.Time) string {
	return "invoice-" + day.Format("20060102")
}

func (in *CreateInvoiceInput) validate() error {
	in.Customer.Name = strings.TrimSpace(in.Customer.Name)
	if in.Customer.Name == "" {
		return invalid("customer.name", "is required")
	}
	if len(in.Items) == 0 {
		return invalid("items", "at least one item is required")
	}
	for i, item := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.Name) == "" {
			return invalid(field+".name", "is required")
		}
		if item.Quantity <= 0 {
			return invalid(field+".quantity", "must be positive")
		}
		if item.Price.IsNegative() {
			return invalid(field+".price", "must not be negative")
		}
	}
	if in.Tax.IsNegative() {
		return invalid("tax", "must not be negative")
	}
	if in.Discount.IsNegative() {
		return invalid("discount", "must not be negative")
	}
	if in.Status == "" {
		in.Status = models.InvoiceStatusPending
	}
	if !models.ValidInvoiceStatus(in.Status) {
		return invalid("status", "unknown status %q", in.Status)
	}
	return nil
}

// CreateInvoice stores a new invoice. An invoice created as Paid is settled
// in the same unit; if any line cannot be settled nothing is stored.
func (s *InvoiceService) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceService.CreateInvoice")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}

	items := make([]models.InvoiceItem, len(in.Items))
	for i, item := range in.Items {
		items[i] = models.InvoiceItem{
			ProductID:   item.ProductID,
			Name:        strings.TrimSpace(item.Name),
			Description: item.Description,
			Quantity:    item.Quantity,
			Price:       item.Price,
		}
	}
	totals := ComputeTotals(items, in.Tax, in.Discount)
	if totals.TotalAmount.IsNegative() {
		return nil, invalid("discount", "exceeds subtotal plus tax")
	}

	inv := &models.Invoice{
		Customer:    in.Customer,
		Items:       items,
		Subtotal:    totals.Subtotal,
		Tax:         in.Tax,
		Discount:    in.Discount,
		TotalAmount: totals.TotalAmount,
		Status:      in.Status,
		DueDate:     in.DueDate,
		Notes:       in.Notes,
		SourceRef:   in.SourceRef,
	}

	start := time.Now()
	var movements []*MovementResult
	err := s.store.RunInTx(ctx, func(q store.Querier) error {
		day := s.now()
		seq, err := q.NextSequence(ctx, InvoiceSequenceScope(day))
		if err != nil {
			return fmt.Errorf("failed to allocate invoice number: %w", err)
		}
		inv.InvoiceNumber = InvoiceNumber(day, seq)

		if err := q.CreateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		if inv.Status == models.InvoiceStatusPaid {
			movements, err = s.settle(ctx, q, inv, in.Actor)
			return err
		}
		return nil
	})
	if err != nil {
		if in.Status == models.InvoiceStatusPaid {
			s.recordSettlementFailure(err)
		}
		return nil, err
	}

	util.InvoicesCreatedTotal.WithLabelValues(inv.Status).Inc()
	if inv.Status == models.InvoiceStatusPaid {
		s.recordSettlement(start, movements)
	}
	s.logger.Info("Invoice created",
		zap.Int64("invoice_id", inv.ID),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("status", inv.Status))

	events := []notify.Event{notify.NewEvent(models.EventInvoicesNew, invoiceKey(inv.ID), inv)}
	for _, m := range movements {
		events = append(events, m.events()...)
	}
	publish(ctx, s.sink, s.logger, events...)
	return inv, nil
}

// UpdateStatus changes an invoice's status. Moving into Paid settles the
// invoice; repeating Paid is a no-op and Paid cannot be left.
func (s *InvoiceService) UpdateStatus(ctx context.Context, id int64, status, actor string) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceService.UpdateStatus")
	defer span.End()

	if !models.ValidInvoiceStatus(status) {
		return nil, invalid("status", "unknown status %q", status)
	}

	start := time.Now()
	var (
		inv       *models.Invoice
		changed   bool
		settled   bool
		movements []*MovementResult
	)
	err := s.store.RunInTx(ctx, func(q store.Querier) error {
		current, err := q.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "invoice", id)
		}
		inv = current

		if inv.Status == status {
			return nil
		}
		if inv.Status == models.InvoiceStatusPaid {
			return invalid("status", "invoice %s is paid and cannot move to %s", inv.InvoiceNumber, status)
		}

		if status == models.InvoiceStatusPaid {
			movements, err = s.settle(ctx, q, inv, actor)
			if err != nil {
				return err
			}
			settled = true
		}
		if err := q.UpdateInvoiceStatus(ctx, inv, status); err != nil {
			return fmt.Errorf("failed to update invoice status: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		if status == models.InvoiceStatusPaid {
			s.recordSettlementFailure(err)
		}
		return nil, err
	}

	if !changed {
		return inv, nil
	}
	if settled {
		s.recordSettlement(start, movements)
	}
	s.logger.Info("Invoice status updated",
		zap.Int64("invoice_id", inv.ID),
		zap.String("status", inv.Status))

	events := []notify.Event{notify.NewEvent(models.EventInvoicesUpdate, invoiceKey(inv.ID), inv)}
	for _, m := range movements {
		events = append(events, m.events()...)
	}
	publish(ctx, s.sink, s.logger, events...)
	return inv, nil
}

// settle debits stock for every product line of inv inside the caller's unit.
// Products are locked in ascending id order.
func (s *InvoiceService) settle(ctx context.Context, q store.Querier, inv *models.Invoice, actor string) ([]*MovementResult, error) {
	lines := make([]int, 0, len(inv.Items))
	for i, item := range inv.Items {
		if item.ProductID != nil {
			lines = append(lines, i)
		}
	}
	sort.SliceStable(lines, func(a, b int) bool {
		return *inv.Items[lines[a]].ProductID < *inv.Items[lines[b]].ProductID
	})

	invoiceID := inv.ID
	results := make([]*MovementResult, 0, len(lines))
	for _, i := range lines {
		item := inv.Items[i]
		price := item.Price
		r, err := s.ledger.applyMovement(ctx, q, movement{
			productID: *item.ProductID,
			txType:    models.TransactionTypeSale,
			delta:     -item.Quantity,
			quantity:  item.Quantity,
			unitPrice: &price,
			note:      "Invoice " + inv.InvoiceNumber,
			actor:     actor,
			invoiceID: &invoiceID,
			line:      i,
		})
		if err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				return nil, err
			}
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *InvoiceService) recordSettlement(start time.Time, movements []*MovementResult) {
	util.SettlementLatency.Observe(time.Since(start).Seconds())
	util.InvoicesSettledTotal.Inc()
	util.LedgerOperationsTotal.WithLabelValues(models.TransactionTypeSale, "ok").Add(float64(len(movements)))
}

func (s *InvoiceService) recordSettlementFailure(err error) {
	outcome := outcomeOf(err)
	util.InvoiceSettlementsFailed.WithLabelValues(outcome).Inc()
	if outcome == "insufficient_stock" {
		util.InsufficientStockTotal.WithLabelValues("settlement").Inc()
	}
	if outcome == "error" {
		s.logger.Error("Invoice settlement failed", zap.Error(err))
	}
}

// GetInvoice retrieves an invoice by ID
func (s *InvoiceService) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.store.View(ctx, func(q store.Querier) error {
		var err error
		inv, err = q.GetInvoice(ctx, id)
		return notFound(err, "invoice", id)
	})
	return inv, err
}

// ListInvoices returns one page of invoices and the total count
func (s *InvoiceService) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]models.Invoice, int, error) {
	if f.Status != "" && !models.ValidInvoiceStatus(f.Status) {
		return nil, 0, invalid("status", "unknown status %q", f.Status)
	}

	var (
		invoices []models.Invoice
		total    int
	)
	err := s.store.View(ctx, func(q store.Querier) error {
		var err error
		invoices, total, err = q.ListInvoices(ctx, f)
		return err
	})
	return invoices, total, err
}

// DeleteInvoice removes an invoice. Stock debited by a paid invoice is not returned.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "InvoiceService.DeleteInvoice")
	defer span.End()

	err := s.store.RunInTx(ctx, func(q store.Querier) error {
		return notFound(q.DeleteInvoice(ctx, id), "invoice", id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Invoice deleted", zap.Int64("invoice_id", id))
	return nil
}

func invoiceKey(id int64) string {
	return fmt.Sprintf("invoice-%d", id)
}
