package notify

import (
	"context"
	"time"

	"inventory-service/internal/util"

	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Dispatcher hands events to a Sink on a background goroutine so callers
// never wait on downstream delivery. Delivery is best-effort.
type Dispatcher struct {
	sink   Sink
	queue  chan []Event
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher with room for buffer pending batches
func NewDispatcher(sink Sink, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		sink:   sink,
		queue:  make(chan []Event, buffer),
		logger: util.GetLogger(),
	}
}

// Publish enqueues events. A full queue drops the batch.
func (d *Dispatcher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	select {
	case d.queue <- events:
	default:
		util.NotificationsDroppedTotal.WithLabelValues("queue_full").Add(float64(len(events)))
		d.logger.Warn("Notification queue full, dropping events", zap.Int("count", len(events)))
	}
	return nil
}

// Run delivers queued events until ctx is done, then flushes what is left
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Starting notification dispatcher")
	for {
		select {
		case <-ctx.Done():
			d.flush()
			d.logger.Info("Notification dispatcher stopped")
			return nil
		case events := <-d.queue:
			d.deliver(ctx, events)
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case events := <-d.queue:
			d.deliver(ctx, events)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, events []Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := d.sink.Publish(ctx, events...); err != nil {
		util.NotificationsDroppedTotal.WithLabelValues("sink_error").Add(float64(len(events)))
		d.logger.Error("Failed to publish notifications",
			zap.String("event", events[0].Name),
			zap.Int("count", len(events)),
			zap.Error(err))
	}
}
