package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"inventory-service/internal/models"
	"inventory-service/internal/notify"
	"inventory-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes change notifications to the events topic
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Publish implements notify.Sink. Events are keyed by aggregate so one
// product's changes stay ordered.
func (ep *EventPublisher) Publish(ctx context.Context, events ...notify.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := make([]Message, len(events))
	for i, ev := range events {
		batch[i] = Message{Key: ev.Key, Value: ev}
	}
	return ep.producer.PublishBatch(ctx, batch...)
}

// EventHandler routes inbound stock commands to registered handlers
type EventHandler struct {
	onStockSale    func(context.Context, *models.StockCommand) error
	onStockRestock func(context.Context, *models.StockCommand) error
	onStockAdjust  func(context.Context, *models.StockCommand) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnStockSale registers a handler for STOCK_SALE commands
func (eh *EventHandler) OnStockSale(handler func(context.Context, *models.StockCommand) error) {
	eh.onStockSale = handler
}

// OnStockRestock registers a handler for STOCK_RESTOCK commands
func (eh *EventHandler) OnStockRestock(handler func(context.Context, *models.StockCommand) error) {
	eh.onStockRestock = handler
}

// OnStockAdjust registers a handler for STOCK_ADJUST commands
func (eh *EventHandler) OnStockAdjust(handler func(context.Context, *models.StockCommand) error) {
	eh.onStockAdjust = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling command",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	var handler func(context.Context, *models.StockCommand) error
	switch baseEvent.EventType {
	case models.CommandTypeStockSale:
		handler = eh.onStockSale
	case models.CommandTypeStockRestock:
		handler = eh.onStockRestock
	case models.CommandTypeStockAdjust:
		handler = eh.onStockAdjust
	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
		return nil
	}
	if handler == nil {
		return nil
	}

	var cmd models.StockCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal %s command: %w", baseEvent.EventType, err)
	}
	return handler(ctx, &cmd)
}
