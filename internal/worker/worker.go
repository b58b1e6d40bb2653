package worker

import (
	"context"
	"errors"

	"inventory-service/internal/broker"
	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Ledger is the part of service.LedgerService the worker drives
type Ledger interface {
	ApplySale(ctx context.Context, in service.SaleInput) (*service.MovementResult, error)
	ApplyRestock(ctx context.Context, in service.RestockInput) (*service.MovementResult, error)
	ApplyAdjustment(ctx context.Context, in service.AdjustmentInput) (*service.MovementResult, error)
}

// StockWorker applies stock commands from the command topic. Each command's
// event id is applied at most once.
type StockWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ledger       Ledger
	logger       *zap.Logger
}

// NewStockWorker creates a new stock worker
func NewStockWorker(consumer *broker.Consumer, ledger Ledger) *StockWorker {
	w := &StockWorker{
		consumer: consumer,
		ledger:   ledger,
		logger:   util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnStockSale(w.HandleSale)
	w.eventHandler.OnStockRestock(w.HandleRestock)
	w.eventHandler.OnStockAdjust(w.HandleAdjust)
	return w
}

// Start starts the worker
func (w *StockWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// Stop stops the worker
func (w *StockWorker) Stop() error {
	w.logger.Info("Stopping stock worker")
	return w.consumer.Close()
}

// HandleMessage decodes and applies one command message
func (w *StockWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// HandleSale applies a STOCK_SALE command
func (w *StockWorker) HandleSale(ctx context.Context, cmd *models.StockCommand) error {
	ctx, span := util.StartSpan(ctx, "StockWorker.HandleSale")
	defer span.End()

	_, err := w.ledger.ApplySale(ctx, service.SaleInput{
		ProductID:     cmd.ProductID,
		Quantity:      cmd.Quantity,
		UnitPrice:     cmd.UnitPrice,
		Note:          cmd.Note,
		Actor:         cmd.Actor,
		SourceEventID: cmd.EventID,
	})
	return w.settle(cmd, err)
}

// HandleRestock applies a STOCK_RESTOCK command
func (w *StockWorker) HandleRestock(ctx context.Context, cmd *models.StockCommand) error {
	ctx, span := util.StartSpan(ctx, "StockWorker.HandleRestock")
	defer span.End()

	in := service.RestockInput{
		ProductID:     cmd.ProductID,
		Quantity:      cmd.Quantity,
		UnitCost:      cmd.UnitCost,
		Note:          cmd.Note,
		Actor:         cmd.Actor,
		SourceEventID: cmd.EventID,
	}
	if cmd.Supplier != "" {
		supplier := cmd.Supplier
		in.Supplier = &supplier
	}
	_, err := w.ledger.ApplyRestock(ctx, in)
	return w.settle(cmd, err)
}

// HandleAdjust applies a STOCK_ADJUST command. Quantity is the signed delta.
func (w *StockWorker) HandleAdjust(ctx context.Context, cmd *models.StockCommand) error {
	ctx, span := util.StartSpan(ctx, "StockWorker.HandleAdjust")
	defer span.End()

	_, err := w.ledger.ApplyAdjustment(ctx, service.AdjustmentInput{
		ProductID:     cmd.ProductID,
		Delta:         cmd.Quantity,
		Reason:        cmd.Note,
		Actor:         cmd.Actor,
		SourceEventID: cmd.EventID,
	})
	return w.settle(cmd, err)
}

// settle decides whether a command is done. Rejections and duplicates are
// final and the message is committed; only infrastructure failures are
// returned so the message stays uncommitted.
func (w *StockWorker) settle(cmd *models.StockCommand, err error) error {
	fields := []zap.Field{
		zap.String("event_id", cmd.EventID),
		zap.String("type", cmd.EventType),
		zap.Int64("product_id", cmd.ProductID),
	}

	switch {
	case err == nil:
		util.StockCommandsTotal.WithLabelValues(cmd.EventType, "applied").Inc()
		w.logger.Info("Stock command applied", fields...)
		return nil
	case errors.Is(err, service.ErrAlreadyProcessed):
		util.StockCommandsTotal.WithLabelValues(cmd.EventType, "duplicate").Inc()
		w.logger.Info("Stock command already processed", fields...)
		return nil
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, store.ErrNotFound),
		service.IsValidation(err):
		util.StockCommandsTotal.WithLabelValues(cmd.EventType, "rejected").Inc()
		w.logger.Warn("Stock command rejected", append(fields, zap.Error(err))...)
		return nil
	}

	util.StockCommandsTotal.WithLabelValues(cmd.EventType, "failed").Inc()
	return err
}
