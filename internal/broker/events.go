package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
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

func stamp(base *models.BaseEvent, eventType string) {
	if base.EventID == "" {
		base.EventID = uuid.New().String()
	}
	base.EventType = eventType
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
}

// PublishOrderCompleted publishes order.completed
func (ep *EventPublisher) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeOrderCompleted)
	return ep.producer.Publish(ctx, fmt.Sprintf("order-%d", event.OrderID), event.EventType, event)
}

// PublishOrderRefunded publishes order.refunded
func (ep *EventPublisher) PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeOrderRefunded)
	return ep.producer.Publish(ctx, fmt.Sprintf("order-%d", event.OrderID), event.EventType, event)
}

// PublishTicketTransferred publishes ticket.transferred
func (ep *EventPublisher) PublishTicketTransferred(ctx context.Context, event *models.TicketTransferredEvent) error {
	stamp(&event.BaseEvent, models.EventTypeTicketTransferred)
	return ep.producer.Publish(ctx, fmt.Sprintf("order-%d", event.OrderID), event.EventType, event)
}

// PublishTicketCheckedIn publishes ticket.checked_in
func (ep *EventPublisher) PublishTicketCheckedIn(ctx context.Context, event *models.TicketCheckedInEvent) error {
	stamp(&event.BaseEvent, models.EventTypeTicketCheckedIn)
	return ep.producer.Publish(ctx, fmt.Sprintf("ticket-%d", event.TicketID), event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderCompleted    func(context.Context, *models.OrderCompletedEvent) error
	onOrderRefunded     func(context.Context, *models.OrderRefundedEvent) error
	onTicketTransferred func(context.Context, *models.TicketTransferredEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderCompleted registers a handler for order.completed
func (eh *EventHandler) OnOrderCompleted(handler func(context.Context, *models.OrderCompletedEvent) error) {
	eh.onOrderCompleted = handler
}

// OnOrderRefunded registers a handler for order.refunded
func (eh *EventHandler) OnOrderRefunded(handler func(context.Context, *models.OrderRefundedEvent) error) {
	eh.onOrderRefunded = handler
}

// OnTicketTransferred registers a handler for ticket.transferred
func (eh *EventHandler) OnTicketTransferred(handler func(context.Context, *models.TicketTransferredEvent) error) {
	eh.onTicketTransferred = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCompleted:
		if eh.onOrderCompleted != nil {
			var event models.OrderCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal order.completed event: %w", err)
			}
			return eh.onOrderCompleted(ctx, &event)
		}

	case models.EventTypeOrderRefunded:
		if eh.onOrderRefunded != nil {
			var event models.OrderRefundedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal order.refunded event: %w", err)
			}
			return eh.onOrderRefunded(ctx, &event)
		}

	case models.EventTypeTicketTransferred:
		if eh.onTicketTransferred != nil {
			var event models.TicketTransferredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ticket.transferred event: %w", err)
			}
			return eh.onTicketTransferred(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
