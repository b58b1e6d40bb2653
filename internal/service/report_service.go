package service

import (
	"context"

	"inventory-service/internal/models"
	"inventory-service/internal/store"
)

// ReportService serves read-only stock projections
type ReportService struct {
	store store.Store
}

// NewReportService creates a new report service
func NewReportService(st store.Store) *ReportService {
	return &ReportService{store: st}
}

// Summary returns stock value and sale/purchase totals
func (s *ReportService) Summary(ctx context.Context) (*store.StockSummary, error) {
	var summary *store.StockSummary
	err := s.store.View(ctx, func(q store.Querier) error {
		var err error
		summary, err = q.StockSummary(ctx)
		return err
	})
	return summary, err
}

// TopSelling ranks products by units sold
func (s *ReportService) TopSelling(ctx context.Context, limit int) ([]store.TopSeller, error) {
	var top []store.TopSeller
	err := s.store.View(ctx, func(q store.Querier) error {
		var err error
		top, err = q.TopSelling(ctx, limit)
		return err
	})
	return top, err
}

// LowStock lists active products at or below their reorder level
func (s *ReportService) LowStock(ctx context.Context, limit int) ([]models.Product, error) {
	var products []models.Product
	err := s.store.View(ctx, func(q store.Querier) error {
		var err error
		products, err = q.LowStockProducts(ctx, limit)
		return err
	})
	return products, err
}
