package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/processor"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

const refundLockTTL = time.Minute

// RefundRequest asks for part or all of an order back. Empty TicketIDs means
// every ticket of the order is invalidated.
type RefundRequest struct {
	Amount    int64   `json:"amount" binding:"required,min=1"`
	Reason    string  `json:"reason"`
	TicketIDs []int64 `json:"ticket_ids,omitempty"`
}

// RefundService reverses completed orders. Sold capacity is never released.
type RefundService struct {
	repo      store.Repository
	processor PaymentProcessor
	publisher EventPublisher
	locker    Locker
	logger    *zap.Logger
}

// NewRefundService creates a new refund service. locker may be nil.
func NewRefundService(repo store.Repository, processor PaymentProcessor, publisher EventPublisher, locker Locker) *RefundService {
	return &RefundService{
		repo:      repo,
		processor: processor,
		publisher: publisher,
		locker:    locker,
		logger:    util.GetLogger(),
	}
}

// Refund reverses amount through the processor first and records it only on
// success. A processor failure leaves no local trace.
func (s *RefundService) Refund(ctx context.Context, actorID, orderID int64, req RefundRequest) (*models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Refund")
	defer span.End()

	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", models.ErrInvalidInput)
	}

	if s.locker != nil {
		lockKey := fmt.Sprintf("refund:%d", orderID)
		acquired, err := s.locker.AcquireLock(ctx, lockKey, refundLockTTL)
		if err != nil {
			s.logger.Warn("Refund lock unavailable", zap.Error(err))
		} else if !acquired {
			return nil, models.ErrRequestInProgress
		} else {
			defer func() {
				if err := s.locker.ReleaseLock(context.Background(), lockKey); err != nil {
					s.logger.Warn("Failed to release refund lock", zap.Error(err))
				}
			}()
		}
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	event, err := s.repo.GetEventByID(ctx, order.EventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != actorID {
		return nil, models.ErrForbidden
	}

	payment, err := s.checkRefundable(ctx, order, req.Amount)
	if err != nil {
		util.RefundsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	result, err := s.processor.Refund(ctx, processor.RefundRequest{
		ExternalRef:    payment.ExternalRef,
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: fmt.Sprintf("refund-%d-%d-%d", order.ID, order.RefundedAmount, req.Amount),
	})
	if err != nil {
		util.RefundsTotal.WithLabelValues("processor_error").Inc()
		s.logger.Warn("Processor refused refund",
			zap.Int64("order_id", order.ID),
			zap.Int64("amount", req.Amount),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", models.ErrRefundProcessor,
			&models.ProcessorError{Op: "refund", Err: err})
	}

	refund := &models.Refund{
		OrderID:     order.ID,
		Amount:      req.Amount,
		Reason:      strings.TrimSpace(req.Reason),
		Status:      models.RefundStatusSucceeded,
		ExternalRef: result.ID,
		ActorID:     actorID,
	}

	var (
		full       bool
		refundedTo int64
		ticketIDs  []int64
	)

	err = s.repo.RunInTx(ctx, func(tx store.Repository) error {
		locked, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status != models.OrderStatusCompleted {
			return fmt.Errorf("%w: order is %s", models.ErrNotRefundable, locked.Status)
		}

		if err := tx.AddOrderRefundedAmount(ctx, order.ID, req.Amount); err != nil {
			return err
		}
		if err := tx.CreateRefund(ctx, refund); err != nil {
			return fmt.Errorf("failed to create refund: %w", err)
		}

		refundedTo = locked.RefundedAmount + req.Amount
		full = refundedTo >= locked.TotalAmount

		selection := req.TicketIDs
		if full {
			selection = nil
			if err := tx.UpdateOrderStatus(ctx, order.ID, models.OrderStatusRefunded); err != nil {
				return fmt.Errorf("failed to update order status: %w", err)
			}
			if err := tx.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusRefunded); err != nil {
				return fmt.Errorf("failed to update payment status: %w", err)
			}
		}

		ticketIDs, err = tx.RefundTickets(ctx, order.ID, selection)
		if err != nil {
			return fmt.Errorf("failed to refund tickets: %w", err)
		}
		return nil
	})
	if err != nil {
		util.RefundsTotal.WithLabelValues("record_failed").Inc()
		s.logger.Error("Refund issued by processor but not recorded, reconcile manually",
			zap.Int64("order_id", order.ID),
			zap.String("refund_ref", result.ID),
			zap.Int64("amount", req.Amount),
			zap.Error(err))
		return nil, err
	}

	util.RefundsTotal.WithLabelValues("succeeded").Inc()
	util.RefundedAmountTotal.Add(float64(req.Amount))
	s.logger.Info("Order refunded",
		zap.Int64("order_id", order.ID),
		zap.Int64("amount", req.Amount),
		zap.Bool("full", full),
		zap.Int("tickets", len(ticketIDs)))

	pubCtx, cancel := publishContext(ctx)
	defer cancel()
	if err := s.publisher.PublishOrderRefunded(pubCtx, &models.OrderRefundedEvent{
		OrderID:        order.ID,
		RefundID:       refund.ID,
		BillingEmail:   order.BillingEmail,
		Amount:         req.Amount,
		RefundedAmount: refundedTo,
		Currency:       order.Currency,
		FullRefund:     full,
		TicketIDs:      ticketIDs,
	}); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(models.EventTypeOrderRefunded).Inc()
		s.logger.Warn("Failed to publish order.refunded", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return refund, nil
}

func (s *RefundService) checkRefundable(ctx context.Context, order *models.Order, amount int64) (*models.Payment, error) {
	if order.Status != models.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: order is %s", models.ErrNotRefundable, order.Status)
	}

	payment, err := s.repo.GetPaymentByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNotRefundable, err)
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: payment is %s", models.ErrNotRefundable, payment.Status)
	}

	if order.RefundedAmount+amount > order.TotalAmount {
		return nil, fmt.Errorf("%w: %d already refunded of %d", models.ErrRefundExceedsTotal,
			order.RefundedAmount, order.TotalAmount)
	}
	return payment, nil
}
