package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/processor"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// releaseTimeout bounds the claim release, which runs even after the request
// context is gone
const releaseTimeout = 2 * time.Second

// WebhookService acknowledges provider events exactly once and hands payment
// confirmations to the fulfillment writer
type WebhookService struct {
	repo        store.Repository
	fulfillment *FulfillmentService
	guard       ReplayGuard
	claimTTL    time.Duration
	logger      *zap.Logger
}

// NewWebhookService creates a new webhook service. guard may be nil. claimTTL
// is how long a delivery stays in flight before another attempt may take it.
func NewWebhookService(repo store.Repository, fulfillment *FulfillmentService, guard ReplayGuard, claimTTL time.Duration) *WebhookService {
	return &WebhookService{
		repo:        repo,
		fulfillment: fulfillment,
		guard:       guard,
		claimTTL:    claimTTL,
		logger:      util.GetLogger(),
	}
}

// HandleEvent processes one verified provider event. A nil error means the
// delivery should be acknowledged; errors ask the provider to retry.
func (s *WebhookService) HandleEvent(ctx context.Context, event *processor.WebhookEvent) error {
	ctx, span := util.StartSpan(ctx, "WebhookService.HandleEvent")
	defer span.End()

	if s.guard != nil {
		claimed, err := s.guard.ClaimWebhookEvent(ctx, event.ID, s.claimTTL)
		if err != nil {
			s.logger.Warn("Webhook replay guard unavailable", zap.Error(err))
		} else if !claimed {
			return s.claimedElsewhere(ctx, event.ID)
		}
	}

	processed, err := s.repo.IsEventProcessed(ctx, event.ID)
	if err != nil {
		s.release(ctx, event.ID)
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		s.logger.Info("Event already processed", zap.String("event_id", event.ID))
		return nil
	}

	if event.Payment != nil {
		p := event.Payment
		_, err := s.fulfillment.ConfirmPayment(ctx, PaymentConfirmation{
			ExternalRef: p.ExternalRef,
			OrderID:     p.OrderID,
			Amount:      p.Amount,
			Currency:    p.Currency,
			MetaVersion: p.MetaVersion,
		})
		if err != nil && retryable(err) {
			s.release(ctx, event.ID)
			return err
		}
	}

	if err := s.repo.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
		s.logger.Warn("Failed to mark event processed", zap.String("event_id", event.ID), zap.Error(err))
		s.release(ctx, event.ID)
	}
	return nil
}

// Business failures are final: a retry of the same signal cannot succeed,
// and fulfillment already raised the operator alert.
func retryable(err error) bool {
	switch {
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrSoldOut),
		errors.Is(err, models.ErrOrderNotPayable),
		errors.Is(err, models.ErrInvalidPromoCode),
		errors.Is(err, models.ErrTierNotFound),
		errors.Is(err, models.ErrInvalidInput):
		return false
	}
	return true
}

// claimedElsewhere acks a delivery another attempt already finished and asks
// the provider to come back while one is still running
func (s *WebhookService) claimedElsewhere(ctx context.Context, eventID string) error {
	processed, err := s.repo.IsEventProcessed(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		s.logger.Info("Event already processed", zap.String("event_id", eventID))
		return nil
	}
	s.logger.Info("Webhook event in flight elsewhere", zap.String("event_id", eventID))
	return models.ErrDeliveryInFlight
}

func (s *WebhookService) release(ctx context.Context, eventID string) {
	if s.guard == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.guard.ReleaseWebhookEvent(ctx, eventID); err != nil {
		s.logger.Warn("Failed to release webhook claim", zap.String("event_id", eventID), zap.Error(err))
	}
}
