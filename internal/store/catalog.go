package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ticketing-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateEvent creates a new event
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (organizer_id, title, venue, address, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, s.q, event, query,
		event.OrganizerID, event.Title, event.Venue, event.Address,
		event.StartsAt, event.EndsAt, event.Status)
}

// GetEventByID retrieves an event by ID
func (s *Store) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	err := sqlx.GetContext(ctx, s.q, &event, "SELECT * FROM events WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrEventNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEventStatus updates event status
func (s *Store) UpdateEventStatus(ctx context.Context, id int64, status models.EventStatus) error {
	n, err := s.execAffected(ctx,
		"UPDATE events SET status = $1, updated_at = NOW() WHERE id = $2",
		status, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", models.ErrEventNotFound, id)
	}
	return nil
}

// CreateTier creates a ticket tier
func (s *Store) CreateTier(ctx context.Context, tier *models.TicketTier) error {
	query := `
		INSERT INTO ticket_tiers (event_id, name, base_price, currency, total_quantity, sale_starts_at, sale_ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, s.q, tier, query,
		tier.EventID, tier.Name, tier.BasePrice, tier.Currency,
		tier.TotalQuantity, tier.SaleStartsAt, tier.SaleEndsAt)
}

// GetTiersByEventID retrieves all tiers of an event
func (s *Store) GetTiersByEventID(ctx context.Context, eventID int64) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	err := sqlx.SelectContext(ctx, s.q, &tiers,
		"SELECT * FROM ticket_tiers WHERE event_id = $1 ORDER BY id", eventID)
	return tiers, err
}

// LockTiers selects tiers FOR UPDATE in ascending id order so concurrent
// writers always acquire the row locks in the same sequence
func (s *Store) LockTiers(ctx context.Context, ids []int64) ([]models.TicketTier, error) {
	if len(ids) == 0 {
		return []models.TicketTier{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM ticket_tiers WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, err
	}
	query = s.q.Rebind(query)

	var tiers []models.TicketTier
	if err := sqlx.SelectContext(ctx, s.q, &tiers, query, args...); err != nil {
		return nil, fmt.Errorf("failed to lock tiers: %w", err)
	}
	return tiers, nil
}

// IncrementTierSold adds to sold_quantity, refusing to pass total_quantity
func (s *Store) IncrementTierSold(ctx context.Context, tierID int64, quantity int) error {
	n, err := s.execAffected(ctx, `
		UPDATE ticket_tiers SET sold_quantity = sold_quantity + $1
		WHERE id = $2 AND (total_quantity IS NULL OR sold_quantity + $1 <= total_quantity)`,
		quantity, tierID)
	if err != nil {
		return err
	}
	if n == 0 {
		return &models.SoldOutError{TierID: tierID}
	}
	return nil
}

// CreatePromoCode creates a promo code
func (s *Store) CreatePromoCode(ctx context.Context, promo *models.PromoCode) error {
	query := `
		INSERT INTO promo_codes (event_id, code, discount_type, discount_value, max_uses, valid_from, valid_to, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := sqlx.GetContext(ctx, s.q, promo, query,
		promo.EventID, promo.Code, promo.DiscountType, promo.DiscountValue,
		promo.MaxUses, promo.ValidFrom, promo.ValidTo, promo.Active)
	return mapError(err)
}

// GetPromoCode looks a code up case-insensitively within an event
func (s *Store) GetPromoCode(ctx context.Context, eventID int64, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := sqlx.GetContext(ctx, s.q, &promo,
		"SELECT * FROM promo_codes WHERE event_id = $1 AND LOWER(code) = LOWER($2)", eventID, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPromoCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// GetPromoCodeByID retrieves a promo code by ID
func (s *Store) GetPromoCodeByID(ctx context.Context, id int64) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := sqlx.GetContext(ctx, s.q, &promo, "SELECT * FROM promo_codes WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPromoCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// IncrementPromoUses bumps current_uses by one unless max_uses is reached.
// It reports false when the guard refused the increment.
func (s *Store) IncrementPromoUses(ctx context.Context, id int64) (bool, error) {
	n, err := s.execAffected(ctx, `
		UPDATE promo_codes SET current_uses = current_uses + 1
		WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses)`, id)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
