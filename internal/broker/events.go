package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"earnings-service/internal/models"
	"earnings-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSaleRecorded publishes SaleRecorded event
func (ep *EventPublisher) PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error {
	key := fmt.Sprintf("designer-%d", event.DesignerID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPayoutBatchCreated publishes PayoutBatchCreated event
func (ep *EventPublisher) PublishPayoutBatchCreated(ctx context.Context, event *models.PayoutBatchCreatedEvent) error {
	key := fmt.Sprintf("designer-%d", event.DesignerID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishDesignRejected publishes DesignRejected event
func (ep *EventPublisher) PublishDesignRejected(ctx context.Context, event *models.DesignRejectedEvent) error {
	key := fmt.Sprintf("designer-%d", event.DesignerID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderCompleted func(context.Context, *models.OrderCompletedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Named("event-handler")}
}

// OnOrderCompleted registers a handler for OrderCompleted events
func (eh *EventHandler) OnOrderCompleted(handler func(context.Context, *models.OrderCompletedEvent) error) {
	eh.onOrderCompleted = handler
}

// HandleMessage routes messages to appropriate handlers. Undecodable
// payloads are reported as ErrMalformed.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrMalformed, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCompleted:
		if eh.onOrderCompleted != nil {
			var event models.OrderCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: OrderCompleted event: %v", ErrMalformed, err)
			}
			return eh.onOrderCompleted(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
