package store

import (
	"context"
	"strings"

	"ticketing-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateRefund appends a refund record
func (s *Store) CreateRefund(ctx context.Context, refund *models.Refund) error {
	query := `
		INSERT INTO refunds (order_id, amount, reason, status, external_ref, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := sqlx.GetContext(ctx, s.q, refund, query,
		refund.OrderID, refund.Amount, refund.Reason, refund.Status, refund.ExternalRef, refund.ActorID)
	return mapError(err)
}

// GetRefundsByOrderID lists refunds of an order, oldest first
func (s *Store) GetRefundsByOrderID(ctx context.Context, orderID int64) ([]models.Refund, error) {
	var refunds []models.Refund
	err := sqlx.SelectContext(ctx, s.q, &refunds,
		"SELECT * FROM refunds WHERE order_id = $1 ORDER BY id", orderID)
	return refunds, err
}

// GetOrganizerBalance is settled revenue minus refunds minus payouts not
// rejected, all in one currency
func (s *Store) GetOrganizerBalance(ctx context.Context, organizerID int64, currency string) (int64, error) {
	query := `
		SELECT
			COALESCE((SELECT SUM(p.amount) FROM payments p
				JOIN orders o ON o.id = p.order_id
				JOIN events e ON e.id = o.event_id
				WHERE e.organizer_id = $1 AND LOWER(p.currency) = $2
					AND p.status IN ('completed', 'refunded')), 0)
			- COALESCE((SELECT SUM(r.amount) FROM refunds r
				JOIN orders o ON o.id = r.order_id
				JOIN events e ON e.id = o.event_id
				WHERE e.organizer_id = $1 AND LOWER(o.currency) = $2), 0)
			- COALESCE((SELECT SUM(amount) FROM payouts
				WHERE organizer_id = $1 AND LOWER(currency) = $2 AND status <> 'rejected'), 0)`

	var balance int64
	err := sqlx.GetContext(ctx, s.q, &balance, query, organizerID, strings.ToLower(currency))
	return balance, err
}

// LockOrganizerPayouts takes a transaction-scoped advisory lock per organizer
func (s *Store) LockOrganizerPayouts(ctx context.Context, organizerID int64) error {
	_, err := s.q.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", organizerID)
	return err
}

// CreatePayout creates a payout request
func (s *Store) CreatePayout(ctx context.Context, payout *models.Payout) error {
	query := `
		INSERT INTO payouts (organizer_id, amount, currency, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, s.q, payout, query,
		payout.OrganizerID, payout.Amount, payout.Currency, payout.Status)
}

// GetPayoutsByOrganizer lists an organizer's payouts, newest first
func (s *Store) GetPayoutsByOrganizer(ctx context.Context, organizerID int64) ([]models.Payout, error) {
	var payouts []models.Payout
	err := sqlx.SelectContext(ctx, s.q, &payouts,
		"SELECT * FROM payouts WHERE organizer_id = $1 ORDER BY created_at DESC", organizerID)
	return payouts, err
}
