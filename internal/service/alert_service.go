package service

import (
	"context"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/notify"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// AlertService lists and resolves stock alerts
type AlertService struct {
	store  store.Store
	sink   notify.Sink
	logger *zap.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(st store.Store, sink notify.Sink) *AlertService {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &AlertService{
		store:  st,
		sink:   sink,
		logger: util.GetLogger(),
	}
}

// ListUnresolved returns open alerts, newest first
func (s *AlertService) ListUnresolved(ctx context.Context, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.store.View(ctx, func(q store.Querier) error {
		var err error
		alerts, err = q.ListUnresolvedAlerts(ctx, limit)
		return err
	})
	return alerts, err
}

// Resolve marks an alert resolved. Resolving a resolved alert returns it unchanged.
func (s *AlertService) Resolve(ctx context.Context, id int64) (*models.Alert, error) {
	ctx, span := util.StartSpan(ctx, "AlertService.Resolve")
	defer span.End()

	var (
		alert   *models.Alert
		changed bool
	)
	err := s.store.RunInTx(ctx, func(q store.Querier) error {
		current, err := q.GetAlert(ctx, id)
		if err != nil {
			return notFound(err, "alert", id)
		}
		if current.Resolved {
			alert = current
			return nil
		}

		now := time.Now().UTC()
		if err := q.ResolveAlerts(ctx, []int64{id}, now); err != nil {
			return err
		}
		current.Resolved = true
		current.ResolvedAt = &now
		alert, changed = current, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		util.AlertsResolvedTotal.Inc()
		s.logger.Info("Alert resolved", zap.Int64("alert_id", id), zap.Int64("product_id", alert.ProductID))
		publish(ctx, s.sink, s.logger, alertEvents(alert.ProductID, nil, []int64{id})...)
	}
	return alert, nil
}
