package worker

import (
	"context"

	"ticketing-service/internal/broker"
	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// Notifier sends the emails that follow domain events
type Notifier interface {
	SendReceipt(ctx context.Context, event *models.OrderCompletedEvent) error
	SendTransferNotice(ctx context.Context, event *models.TicketTransferredEvent) error
	SendRefundNotice(ctx context.Context, event *models.OrderRefundedEvent) error
}

// NotificationWorker turns domain events into email
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		notifier:     notifier,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderCompleted(w.handleOrderCompleted)
	w.eventHandler.OnTicketTransferred(w.handleTicketTransferred)
	w.eventHandler.OnOrderRefunded(w.handleOrderRefunded)

	return w
}

// Start consumes until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	err := w.notifier.SendReceipt(ctx, event)
	w.record("receipt", err, zap.Int64("order_id", event.OrderID))
	return nil
}

func (w *NotificationWorker) handleTicketTransferred(ctx context.Context, event *models.TicketTransferredEvent) error {
	err := w.notifier.SendTransferNotice(ctx, event)
	w.record("transfer", err, zap.Int64("ticket_id", event.TicketID))
	return nil
}

func (w *NotificationWorker) handleOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error {
	err := w.notifier.SendRefundNotice(ctx, event)
	w.record("refund", err, zap.Int64("order_id", event.OrderID))
	return nil
}

// record never fails the message; a lost email must not block the partition
func (w *NotificationWorker) record(kind string, err error, field zap.Field) {
	if err != nil {
		util.NotificationsTotal.WithLabelValues(kind, "failed").Inc()
		w.logger.Warn("Failed to send notification",
			zap.String("type", kind),
			field,
			zap.Error(err))
		return
	}
	util.NotificationsTotal.WithLabelValues(kind, "sent").Inc()
}
