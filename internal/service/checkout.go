package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/processor"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const checkoutLockTTL = 30 * time.Second

// CheckoutService prices orders and opens payment sessions for them
type CheckoutService struct {
	repo        store.Repository
	processor   PaymentProcessor
	fulfillment *FulfillmentService
	locker      Locker
	sessionTTL  time.Duration
	maxTickets  int
	logger      *zap.Logger
	now         func() time.Time
}

// NewCheckoutService creates a new checkout service. locker may be nil;
// maxTickets of zero leaves orders capped only per line.
func NewCheckoutService(
	repo store.Repository,
	processor PaymentProcessor,
	fulfillment *FulfillmentService,
	locker Locker,
	sessionTTL time.Duration,
	maxTickets int,
) *CheckoutService {
	return &CheckoutService{
		repo:        repo,
		processor:   processor,
		fulfillment: fulfillment,
		locker:      locker,
		sessionTTL:  sessionTTL,
		maxTickets:  maxTickets,
		logger:      util.GetLogger(),
		now:         time.Now,
	}
}

// CheckoutRequest represents a request to buy tickets
type CheckoutRequest struct {
	EventID        int64         `json:"event_id" binding:"required"`
	Lines          []LineRequest `json:"lines" binding:"required,min=1,max=20,dive"`
	PromoCode      string        `json:"promo_code,omitempty"`
	BillingName    string        `json:"billing_name" binding:"required"`
	BillingEmail   string        `json:"billing_email" binding:"required,email"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// CheckoutResponse tells the buyer where to pay
type CheckoutResponse struct {
	OrderID     int64              `json:"order_id"`
	Status      models.OrderStatus `json:"status"`
	SessionID   string             `json:"session_id,omitempty"`
	CheckoutURL string             `json:"checkout_url,omitempty"`
	Total       int64              `json:"total"`
	Currency    string             `json:"currency"`
	Replayed    bool               `json:"replayed,omitempty"`
}

// OrderDetails is an order with everything hanging off it
type OrderDetails struct {
	Order   *models.Order      `json:"order"`
	Items   []models.OrderItem `json:"items"`
	Tickets []models.Ticket    `json:"tickets"`
	Refunds []models.Refund    `json:"refunds"`
}

// Quote prices lines for an event without writing anything
func (s *CheckoutService) Quote(ctx context.Context, eventID int64, lines []LineRequest, promoCode string) (*Quote, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Quote")
	defer span.End()

	quote, _, err := s.price(ctx, eventID, lines, promoCode)
	return quote, err
}

func (s *CheckoutService) price(ctx context.Context, eventID int64, lines []LineRequest, promoCode string) (*Quote, []models.TicketTier, error) {
	tiers, err := s.repo.GetTiersByEventID(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tiers: %w", err)
	}

	var promo *models.PromoCode
	if code := strings.TrimSpace(promoCode); code != "" {
		promo, err = s.repo.GetPromoCode(ctx, eventID, code)
		if errors.Is(err, models.ErrPromoCodeNotFound) {
			return nil, nil, fmt.Errorf("%w: unknown code", models.ErrInvalidPromoCode)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load promo code: %w", err)
		}
	}

	quote, err := CalculateQuote(lines, tiers, promo, s.now(), s.maxTickets)
	if err != nil {
		return nil, nil, err
	}
	return quote, tiers, nil
}

// CreateCheckout writes a pending order and opens a payment session for it.
// Repeating a request with the same idempotency key returns the first order.
func (s *CheckoutService) CreateCheckout(ctx context.Context, buyerID int64, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckout")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	if s.locker != nil {
		lockKey := "checkout:" + req.IdempotencyKey
		acquired, err := s.locker.AcquireLock(ctx, lockKey, checkoutLockTTL)
		if err != nil {
			s.logger.Warn("Checkout lock unavailable", zap.Error(err))
		} else if !acquired {
			return nil, models.ErrRequestInProgress
		} else {
			defer func() {
				if err := s.locker.ReleaseLock(context.Background(), lockKey); err != nil {
					s.logger.Warn("Failed to release checkout lock", zap.Error(err))
				}
			}()
		}
	}

	existing, err := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		if existing.BuyerID != buyerID {
			return nil, fmt.Errorf("%w: idempotency key belongs to another buyer", models.ErrForbidden)
		}
		s.logger.Info("Duplicate checkout request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existing.ID))
		resp := checkoutResponse(existing)
		resp.Replayed = true
		return resp, nil
	}

	event, err := s.repo.GetEventByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if event.Status != models.EventStatusPublished || now.After(event.EndsAt) {
		s.reject("event_not_on_sale")
		return nil, models.ErrEventNotOnSale
	}

	quote, tiers, err := s.price(ctx, event.ID, req.Lines, req.PromoCode)
	if err != nil {
		s.reject(rejectReason(err))
		return nil, err
	}

	byID := tiersByID(tiers)
	for _, line := range quote.Lines {
		tier := byID[line.TierID]
		if err := CheckSaleWindow(tier, now); err != nil {
			s.reject("not_on_sale")
			return nil, fmt.Errorf("tier %q: %w", tier.Name, err)
		}
		if err := CheckInventory(tier, line.Quantity); err != nil {
			s.reject("sold_out")
			return nil, err
		}
	}

	order := &models.Order{
		BuyerID:        buyerID,
		EventID:        event.ID,
		Status:         models.OrderStatusPending,
		Subtotal:       quote.Subtotal,
		DiscountAmount: quote.Discount,
		TotalAmount:    quote.Total,
		Currency:       quote.Currency,
		PromoCodeID:    quote.PromoCodeID,
		BillingName:    req.BillingName,
		BillingEmail:   req.BillingEmail,
		IdempotencyKey: req.IdempotencyKey,
	}

	err = s.repo.RunInTx(ctx, func(tx store.Repository) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		for _, line := range quote.Lines {
			item := &models.OrderItem{
				OrderID:   order.ID,
				TierID:    line.TierID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			}
			if err := tx.CreateOrderItem(ctx, item); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.reject("db_error")
		return nil, err
	}

	util.CheckoutsCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("total", order.TotalAmount),
		zap.String("currency", order.Currency))

	if order.TotalAmount == 0 {
		return s.fulfillFree(ctx, order)
	}

	sess, err := s.processor.CreateCheckoutSession(ctx, processor.CheckoutRequest{
		OrderID:       order.ID,
		EventID:       event.ID,
		Currency:      order.Currency,
		CustomerEmail: order.BillingEmail,
		Lines:         checkoutLines(quote),
		Total:         order.TotalAmount,
		Discounted:    order.DiscountAmount > 0,
		ExpiresAt:     now.Add(s.sessionTTL),
	})
	if err != nil {
		s.reject("processor_error")
		if uerr := s.repo.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled); uerr != nil {
			s.logger.Error("Failed to cancel order after processor failure",
				zap.Int64("order_id", order.ID), zap.Error(uerr))
		}
		return nil, &models.ProcessorError{Op: "create checkout session", Err: err}
	}

	if err := s.repo.SetOrderCheckoutSession(ctx, order.ID, sess.ID, sess.URL); err != nil {
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}
	order.CheckoutSessionID = &sess.ID
	order.CheckoutURL = &sess.URL

	return checkoutResponse(order), nil
}

// fulfillFree completes orders that cost nothing without a processor round trip
func (s *CheckoutService) fulfillFree(ctx context.Context, order *models.Order) (*CheckoutResponse, error) {
	result, err := s.fulfillment.ConfirmPayment(ctx, PaymentConfirmation{
		ExternalRef: fmt.Sprintf("free:%d", order.ID),
		OrderID:     order.ID,
		Amount:      0,
		Currency:    order.Currency,
	})
	if err != nil {
		return nil, err
	}
	return checkoutResponse(result.Order), nil
}

// GetOrder returns an order to its buyer or to the event's organizer
func (s *CheckoutService) GetOrder(ctx context.Context, requesterID, orderID int64) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.GetOrder")
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != requesterID {
		event, err := s.repo.GetEventByID(ctx, order.EventID)
		if err != nil {
			return nil, err
		}
		if event.OrganizerID != requesterID {
			return nil, models.ErrForbidden
		}
	}

	items, err := s.repo.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.repo.GetTicketsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	refunds, err := s.repo.GetRefundsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &OrderDetails{Order: order, Items: items, Tickets: tickets, Refunds: refunds}, nil
}

func (s *CheckoutService) reject(reason string) {
	util.CheckoutsRejectedTotal.WithLabelValues(reason).Inc()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidPromoCode):
		return "invalid_promo"
	case errors.Is(err, models.ErrTierNotFound):
		return "tier_not_found"
	case errors.Is(err, models.ErrSoldOut):
		return "sold_out"
	default:
		return "invalid_request"
	}
}

func checkoutLines(quote *Quote) []processor.LineItem {
	lines := make([]processor.LineItem, 0, len(quote.Lines))
	for _, l := range quote.Lines {
		lines = append(lines, processor.LineItem{Name: l.TierName, UnitAmount: l.UnitPrice, Quantity: l.Quantity})
	}
	return lines
}

func checkoutResponse(order *models.Order) *CheckoutResponse {
	resp := &CheckoutResponse{
		OrderID:  order.ID,
		Status:   order.Status,
		Total:    order.TotalAmount,
		Currency: order.Currency,
	}
	if order.CheckoutSessionID != nil {
		resp.SessionID = *order.CheckoutSessionID
	}
	if order.CheckoutURL != nil {
		resp.CheckoutURL = *order.CheckoutURL
	}
	return resp
}
