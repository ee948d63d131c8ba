package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sink accepts keyed events. Producer and LocalBus implement it.
type Sink interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	sink Sink
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(sink Sink) *EventPublisher {
	return &EventPublisher{sink: sink}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishTransactionCreated publishes TransactionCreated event
func (ep *EventPublisher) PublishTransactionCreated(ctx context.Context, event *models.TransactionCreatedEvent) error {
	return ep.sink.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishTransactionStatusChanged publishes TransactionStatusChanged event
func (ep *EventPublisher) PublishTransactionStatusChanged(ctx context.Context, event *models.TransactionStatusChangedEvent) error {
	return ep.sink.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onCreated       func(context.Context, *models.TransactionCreatedEvent) error
	onStatusChanged func(context.Context, *models.TransactionStatusChangedEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnTransactionCreated registers a handler for TransactionCreated events
func (eh *EventHandler) OnTransactionCreated(handler func(context.Context, *models.TransactionCreatedEvent) error) {
	eh.onCreated = handler
}

// OnTransactionStatusChanged registers a handler for TransactionStatusChanged events
func (eh *EventHandler) OnTransactionStatusChanged(handler func(context.Context, *models.TransactionStatusChangedEvent) error) {
	eh.onStatusChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrMalformedMessage, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeTransactionCreated:
		if eh.onCreated != nil {
			var event models.TransactionCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: TransactionCreated event: %v", ErrMalformedMessage, err)
			}
			return eh.onCreated(ctx, &event)
		}

	case models.EventTypeTransactionStatusChanged:
		if eh.onStatusChanged != nil {
			var event models.TransactionStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: TransactionStatusChanged event: %v", ErrMalformedMessage, err)
			}
			return eh.onStatusChanged(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
