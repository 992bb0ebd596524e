package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// CreateEventRequest represents an organizer's new event
type CreateEventRequest struct {
	Title    string    `json:"title" binding:"required"`
	Venue    string    `json:"venue"`
	Address  string    `json:"address"`
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required"`
}

// CreateTierRequest represents a new ticket tier. A nil TotalQuantity means
// unlimited capacity.
type CreateTierRequest struct {
	Name          string     `json:"name" binding:"required"`
	BasePrice     int64      `json:"base_price"`
	Currency      string     `json:"currency"`
	TotalQuantity *int       `json:"total_quantity"`
	SaleStartsAt  *time.Time `json:"sale_starts_at"`
	SaleEndsAt    *time.Time `json:"sale_ends_at"`
}

// CreatePromoCodeRequest represents a new promo code
type CreatePromoCodeRequest struct {
	Code          string              `json:"code" binding:"required"`
	DiscountType  models.DiscountType `json:"discount_type" binding:"required"`
	DiscountValue int64               `json:"discount_value" binding:"required,min=1"`
	MaxUses       *int                `json:"max_uses"`
	ValidFrom     *time.Time          `json:"valid_from"`
	ValidTo       *time.Time          `json:"valid_to"`
}

// CatalogService manages events, tiers and promo codes
type CatalogService struct {
	repo            store.Repository
	defaultCurrency string
	logger          *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo store.Repository, defaultCurrency string) *CatalogService {
	return &CatalogService{
		repo:            repo,
		defaultCurrency: strings.ToLower(defaultCurrency),
		logger:          util.GetLogger(),
	}
}

// CreateEvent creates a draft event owned by organizerID
func (s *CatalogService) CreateEvent(ctx context.Context, organizerID int64, req *CreateEventRequest) (*models.Event, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateEvent")
	defer span.End()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}
	if req.EndsAt.Before(req.StartsAt) {
		return nil, fmt.Errorf("%w: event cannot end before it starts", models.ErrInvalidInput)
	}

	event := &models.Event{
		OrganizerID: organizerID,
		Title:       title,
		Venue:       strings.TrimSpace(req.Venue),
		Address:     strings.TrimSpace(req.Address),
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Status:      models.EventStatusDraft,
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.logger.Info("Event created", zap.Int64("event_id", event.ID), zap.Int64("organizer_id", organizerID))
	return event, nil
}

// GetEvent returns an event
func (s *CatalogService) GetEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	return s.repo.GetEventByID(ctx, eventID)
}

// PublishEvent puts a draft event on sale
func (s *CatalogService) PublishEvent(ctx context.Context, organizerID, eventID int64) (*models.Event, error) {
	return s.transition(ctx, organizerID, eventID, models.EventStatusPublished, models.EventStatusDraft)
}

// CancelEvent takes an event off sale. Existing orders are refunded
// separately through the refund flow.
func (s *CatalogService) CancelEvent(ctx context.Context, organizerID, eventID int64) (*models.Event, error) {
	return s.transition(ctx, organizerID, eventID, models.EventStatusCancelled,
		models.EventStatusDraft, models.EventStatusPublished)
}

func (s *CatalogService) transition(ctx context.Context, organizerID, eventID int64, to models.EventStatus, from ...models.EventStatus) (*models.Event, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.transition")
	defer span.End()

	event, err := s.ownedEvent(ctx, organizerID, eventID)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, st := range from {
		if event.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: event is %s", models.ErrInvalidInput, event.Status)
	}

	if err := s.repo.UpdateEventStatus(ctx, eventID, to); err != nil {
		return nil, err
	}
	event.Status = to

	s.logger.Info("Event status changed", zap.Int64("event_id", eventID), zap.String("status", string(to)))
	return event, nil
}

// CreateTier adds a tier to an organizer's event
func (s *CatalogService) CreateTier(ctx context.Context, organizerID, eventID int64, req *CreateTierRequest) (*models.TicketTier, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateTier")
	defer span.End()

	if _, err := s.ownedEvent(ctx, organizerID, eventID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: tier name is required", models.ErrInvalidInput)
	case req.BasePrice < 0:
		return nil, fmt.Errorf("%w: price cannot be negative", models.ErrInvalidInput)
	case req.TotalQuantity != nil && *req.TotalQuantity < 0:
		return nil, fmt.Errorf("%w: quantity cannot be negative", models.ErrInvalidInput)
	case req.SaleStartsAt != nil && req.SaleEndsAt != nil && req.SaleEndsAt.Before(*req.SaleStartsAt):
		return nil, fmt.Errorf("%w: sale window ends before it starts", models.ErrInvalidInput)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	tier := &models.TicketTier{
		EventID:       eventID,
		Name:          name,
		BasePrice:     req.BasePrice,
		Currency:      currency,
		TotalQuantity: req.TotalQuantity,
		SaleStartsAt:  req.SaleStartsAt,
		SaleEndsAt:    req.SaleEndsAt,
	}
	if err := s.repo.CreateTier(ctx, tier); err != nil {
		return nil, fmt.Errorf("failed to create tier: %w", err)
	}

	s.logger.Info("Tier created", zap.Int64("event_id", eventID), zap.Int64("tier_id", tier.ID))
	return tier, nil
}

// ListTiers returns the tiers of an event
func (s *CatalogService) ListTiers(ctx context.Context, eventID int64) ([]models.TicketTier, error) {
	if _, err := s.repo.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.repo.GetTiersByEventID(ctx, eventID)
}

// CreatePromoCode adds a discount code to an organizer's event
func (s *CatalogService) CreatePromoCode(ctx context.Context, organizerID, eventID int64, req *CreatePromoCodeRequest) (*models.PromoCode, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreatePromoCode")
	defer span.End()

	if _, err := s.ownedEvent(ctx, organizerID, eventID); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.Code)
	switch {
	case code == "":
		return nil, fmt.Errorf("%w: code is required", models.ErrInvalidInput)
	case req.DiscountType != models.DiscountPercentage && req.DiscountType != models.DiscountFixed:
		return nil, fmt.Errorf("%w: unknown discount type %q", models.ErrInvalidInput, req.DiscountType)
	case req.DiscountValue <= 0:
		return nil, fmt.Errorf("%w: discount must be positive", models.ErrInvalidInput)
	case req.DiscountType == models.DiscountPercentage && req.DiscountValue > 100:
		return nil, fmt.Errorf("%w: percentage cannot exceed 100", models.ErrInvalidInput)
	case req.MaxUses != nil && *req.MaxUses < 1:
		return nil, fmt.Errorf("%w: max uses must be at least 1", models.ErrInvalidInput)
	case req.ValidFrom != nil && req.ValidTo != nil && req.ValidTo.Before(*req.ValidFrom):
		return nil, fmt.Errorf("%w: validity window ends before it starts", models.ErrInvalidInput)
	}

	promo := &models.PromoCode{
		EventID:       eventID,
		Code:          code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MaxUses:       req.MaxUses,
		ValidFrom:     req.ValidFrom,
		ValidTo:       req.ValidTo,
		Active:        true,
	}
	if err := s.repo.CreatePromoCode(ctx, promo); err != nil {
		if errors.Is(err, models.ErrIntegrityViolation) {
			return nil, fmt.Errorf("%w: code %q already exists for this event", models.ErrInvalidInput, code)
		}
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}

	s.logger.Info("Promo code created", zap.Int64("event_id", eventID), zap.Int64("promo_code_id", promo.ID))
	return promo, nil
}

func (s *CatalogService) ownedEvent(ctx context.Context, organizerID, eventID int64) (*models.Event, error) {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, models.ErrForbidden
	}
	return event, nil
}
