package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/notify"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService manages product records. Quantity only changes through
// LedgerService.
type ProductService struct {
	store               store.Store
	sink                notify.Sink
	logger              *zap.Logger
	defaultReorderLevel int
}

// NewProductService creates a new product service
func NewProductService(st store.Store, sink notify.Sink, defaultReorderLevel int) *ProductService {
	if sink == nil {
		sink = notify.Nop{}
	}
	if defaultReorderLevel < 0 {
		defaultReorderLevel = 0
	}
	return &ProductService{
		store:               st,
		sink:                sink,
		logger:              util.GetLogger(),
		defaultReorderLevel: defaultReorderLevel,
	}
}

// CreateProductInput is a request to add a product. Quantity is the opening
// balance.
type CreateProductInput struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	SubCategory  string          `json:"subCategory,omitempty"`
	Description  string          `json:"description,omitempty"`
	Unit         string          `json:"unit,omitempty"`
	Supplier     string          `json:"supplier,omitempty"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	Quantity     int             `json:"quantity"`
	ReorderLevel *int            `json:"reorderLevel,omitempty"`
}

// ProductChange is the committed outcome of a product edit
type ProductChange struct {
	Product        *models.Product `json:"product"`
	AlertsCreated  []models.Alert  `json:"alertsCreated,omitempty"`
	AlertsResolved []int64         `json:"alertsResolved,omitempty"`
}

func (in *CreateProductInput) validate() error {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	switch {
	case in.SKU == "":
		return invalid("sku", "is required")
	case in.Name == "":
		return invalid("name", "is required")
	case in.Category == "":
		return invalid("category", "is required")
	case in.Quantity < 0:
		return invalid("quantity", "must not be negative")
	case in.ReorderLevel != nil && *in.ReorderLevel < 0:
		return invalid("reorderLevel", "must not be negative")
	case in.CostPrice.IsNegative():
		return invalid("costPrice", "must not be negative")
	case in.SellingPrice.IsNegative():
		return invalid("sellingPrice", "must not be negative")
	}
	if in.Unit == "" {
		in.Unit = "pcs"
	}
	return nil
}

func validatePatch(p models.ProductPatch) error {
	switch {
	case p.Name != nil && strings.TrimSpace(*p.Name) == "":
		return invalid("name", "must not be empty")
	case p.Category != nil && strings.TrimSpace(*p.Category) == "":
		return invalid("category", "must not be empty")
	case p.ReorderLevel != nil && *p.ReorderLevel < 0:
		return invalid("reorderLevel", "must not be negative")
	case p.CostPrice != nil && p.CostPrice.IsNegative():
		return invalid("costPrice", "must not be negative")
	case p.SellingPrice != nil && p.SellingPrice.IsNegative():
		return invalid("sellingPrice", "must not be negative")
	}
	return nil
}

// CreateProduct adds a product and opens a low-stock alert when it starts at
// or below its reorder level
func (s *ProductService) CreateProduct(ctx context.Context, in CreateProductInput) (*ProductChange, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}

	reorderLevel := s.defaultReorderLevel
	if in.ReorderLevel != nil {
		reorderLevel = *in.ReorderLevel
	}
	product := &models.Product{
		SKU:          in.SKU,
		Name:         in.Name,
		Category:     in.Category,
		SubCategory:  in.SubCategory,
		Description:  in.Description,
		Unit:         in.Unit,
		Supplier:     in.Supplier,
		CostPrice:    in.CostPrice,
		SellingPrice: in.SellingPrice,
		Quantity:     in.Quantity,
		ReorderLevel: reorderLevel,
	}

	change := &ProductChange{Product: product}
	err := s.store.RunInTx(ctx, func(q store.Querier) error {
		if err := q.CreateProduct(ctx, product); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return invalid("sku", "%q already exists", product.SKU)
			}
			return fmt.Errorf("failed to create product: %w", err)
		}
		var err error
		change.AlertsCreated, change.AlertsResolved, err = reconcileAlerts(ctx, q, product, product.Quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.String("sku", product.SKU))
	publish(ctx, s.sink, s.logger, change.events()...)
	return change, nil
}

// GetProduct retrieves a product by ID
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product *models.Product
	err := s.store.View(ctx, func(q store.Querier) error {
		var err error
		product, err = q.GetProduct(ctx, id)
		return notFound(err, "product", id)
	})
	return product, err
}

// ListProducts returns one page of products and the total match count
func (s *ProductService) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	var (
		products []models.Product
		total    int
	)
	err := s.store.View(ctx, func(q store.Querier) error {
		var err error
		products, total, err = q.ListProducts(ctx, f)
		return err
	})
	return products, total, err
}

// UpdateProduct applies a field patch. A reorder level change reconciles
// alerts in the same unit.
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, patch models.ProductPatch) (*ProductChange, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.UpdateProduct")
	defer span.End()

	if patch.IsEmpty() {
		return nil, invalid("", "no fields to update")
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	change := &ProductChange{}
	err := s.store.RunInTx(ctx, func(q store.Querier) error {
		product, err := q.GetProductForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "product", id)
		}

		previousLevel := product.ReorderLevel
		patch.Apply(product)
		if err := q.UpdateProduct(ctx, product); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		change.Product = product

		if product.ReorderLevel != previousLevel && !product.Archived {
			change.AlertsCreated, change.AlertsResolved, err = reconcileAlerts(ctx, q, product, product.Quantity)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product updated", zap.Int64("product_id", id))
	publish(ctx, s.sink, s.logger, change.events()...)
	return change, nil
}

// ArchiveProduct soft-deletes a product. Its history is kept.
func (s *ProductService) ArchiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ArchiveProduct")
	defer span.End()

	var (
		product  *models.Product
		resolved []int64
	)
	err := s.store.RunInTx(ctx, func(q store.Querier) error {
		var err error
		product, err = q.ArchiveProduct(ctx, id)
		if err != nil {
			return notFound(err, "product", id)
		}

		// archived products take no movements, close their alerts here
		open, err := q.UnresolvedAlerts(ctx, id, models.AlertTypeLowStock)
		if err != nil {
			return fmt.Errorf("failed to load alerts: %w", err)
		}
		for _, a := range open {
			resolved = append(resolved, a.ID)
		}
		if len(resolved) == 0 {
			return nil
		}
		if err := q.ResolveAlerts(ctx, resolved, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to resolve alerts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product archived",
		zap.Int64("product_id", id),
		zap.Int("alerts_resolved", len(resolved)))
	events := []notify.Event{
		notify.NewEvent(models.EventInventoryDeleted, productKey(id), models.ProductDeletedPayload{ID: id}),
	}
	publish(ctx, s.sink, s.logger, append(events, alertEvents(id, nil, resolved)...)...)
	return product, nil
}

func (c *ProductChange) events() []notify.Event {
	events := []notify.Event{notify.NewEvent(models.EventInventoryUpdate, productKey(c.Product.ID), c.Product)}
	return append(events, alertEvents(c.Product.ID, c.AlertsCreated, c.AlertsResolved)...)
}
