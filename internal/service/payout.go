package service

import (
	"context"
	"fmt"
	"strings"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// Balance is what an organizer can still withdraw
type Balance struct {
	OrganizerID int64  `json:"organizer_id"`
	Available   int64  `json:"available"`
	Currency    string `json:"currency"`
}

// PayoutService lets organizers withdraw settled revenue
type PayoutService struct {
	repo     store.Repository
	currency string
	logger   *zap.Logger
}

// NewPayoutService creates a new payout service
func NewPayoutService(repo store.Repository, currency string) *PayoutService {
	return &PayoutService{
		repo:     repo,
		currency: strings.ToLower(currency),
		logger:   util.GetLogger(),
	}
}

func (s *PayoutService) currencyOrDefault(currency string) string {
	if c := strings.ToLower(strings.TrimSpace(currency)); c != "" {
		return c
	}
	return s.currency
}

// Balance returns settled revenue in one currency net of refunds and earlier
// payouts. An empty currency means the service default.
func (s *PayoutService) Balance(ctx context.Context, organizerID int64, currency string) (*Balance, error) {
	ctx, span := util.StartSpan(ctx, "PayoutService.Balance")
	defer span.End()

	currency = s.currencyOrDefault(currency)
	available, err := s.repo.GetOrganizerBalance(ctx, organizerID, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to compute balance: %w", err)
	}
	return &Balance{OrganizerID: organizerID, Available: available, Currency: currency}, nil
}

// RequestPayout records a pending payout if the balance in that currency
// covers it. Requests for one organizer are serialised by a
// transaction-scoped lock.
func (s *PayoutService) RequestPayout(ctx context.Context, organizerID, amount int64, currency string) (*models.Payout, error) {
	ctx, span := util.StartSpan(ctx, "PayoutService.RequestPayout")
	defer span.End()

	if amount <= 0 {
		return nil, fmt.Errorf("%w: payout amount must be positive", models.ErrInvalidInput)
	}

	payout := &models.Payout{
		OrganizerID: organizerID,
		Amount:      amount,
		Currency:    s.currencyOrDefault(currency),
		Status:      models.PayoutStatusPending,
	}

	err := s.repo.RunInTx(ctx, func(tx store.Repository) error {
		if err := tx.LockOrganizerPayouts(ctx, organizerID); err != nil {
			return fmt.Errorf("failed to lock payouts: %w", err)
		}
		available, err := tx.GetOrganizerBalance(ctx, organizerID, payout.Currency)
		if err != nil {
			return fmt.Errorf("failed to compute balance: %w", err)
		}
		if amount > available {
			return fmt.Errorf("%w: %d %s available", models.ErrInsufficientBalance, available, payout.Currency)
		}
		return tx.CreatePayout(ctx, payout)
	})
	if err != nil {
		return nil, err
	}

	util.PayoutsRequestedTotal.Inc()
	s.logger.Info("Payout requested",
		zap.Int64("organizer_id", organizerID),
		zap.Int64("payout_id", payout.ID),
		zap.Int64("amount", amount),
		zap.String("currency", payout.Currency))
	return payout, nil
}

// ListPayouts returns an organizer's payouts, newest first
func (s *PayoutService) ListPayouts(ctx context.Context, organizerID int64) ([]models.Payout, error) {
	return s.repo.GetPayoutsByOrganizer(ctx, organizerID)
}
