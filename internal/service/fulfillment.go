package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// PaymentConfirmation is a verified "payment succeeded" signal
type PaymentConfirmation struct {
	ExternalRef string
	OrderID     int64
	Amount      int64
	Currency    string
	MetaVersion string
}

// FulfillmentResult is the committed order. AlreadyProcessed marks a replay
// of a confirmation that had been committed before.
type FulfillmentResult struct {
	Order            *models.Order   `json:"order"`
	Tickets          []models.Ticket `json:"tickets"`
	AlreadyProcessed bool            `json:"already_processed"`
}

// FulfillmentService turns a confirmed payment into a completed order with
// tickets, in one transaction
type FulfillmentService struct {
	repo      store.Repository
	issuer    CredentialIssuer
	publisher EventPublisher
	logger    *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(repo store.Repository, issuer CredentialIssuer, publisher EventPublisher) *FulfillmentService {
	return &FulfillmentService{
		repo:      repo,
		issuer:    issuer,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// ConfirmPayment commits the order behind a settled payment. Replays of an
// external reference that was already committed return the stored result.
func (s *FulfillmentService) ConfirmPayment(ctx context.Context, conf PaymentConfirmation) (*FulfillmentResult, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.ConfirmPayment")
	defer span.End()

	if conf.ExternalRef == "" || conf.OrderID <= 0 {
		return nil, fmt.Errorf("%w: payment reference and order id are required", models.ErrInvalidInput)
	}

	existing, err := s.repo.GetPaymentByExternalRef(ctx, conf.ExternalRef)
	if err != nil {
		return nil, fmt.Errorf("failed to check payment reference: %w", err)
	}
	if existing != nil {
		return s.replay(ctx, existing)
	}

	start := time.Now()
	var (
		order   *models.Order
		items   []models.OrderItem
		tiers   map[int64]*models.TicketTier
		tickets []models.Ticket
		replay  *models.Payment
	)

	err = s.repo.RunInTx(ctx, func(tx store.Repository) error {
		var err error
		order, err = tx.LockOrder(ctx, conf.OrderID)
		if err != nil {
			return err
		}

		// a concurrent delivery may have committed while we waited on the lock
		replay, err = tx.GetPaymentByExternalRef(ctx, conf.ExternalRef)
		if err != nil {
			return fmt.Errorf("failed to re-check payment reference: %w", err)
		}
		if replay != nil {
			return nil
		}

		if order.Status != models.OrderStatusPending {
			return fmt.Errorf("%w: order %d is %s", models.ErrOrderNotPayable, order.ID, order.Status)
		}

		items, err = tx.GetOrderItemsByOrderID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		tiers, err = s.lockTiers(ctx, tx, items)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := CheckInventory(tiers[item.TierID], item.Quantity); err != nil {
				return err
			}
		}

		currency := strings.ToLower(conf.Currency)
		if currency == "" {
			currency = order.Currency
		}
		if err := tx.CompleteOrder(ctx, order.ID, conf.Amount, currency); err != nil {
			return fmt.Errorf("failed to complete order: %w", err)
		}
		order.Status = models.OrderStatusCompleted
		order.TotalAmount = conf.Amount
		order.Currency = currency

		payment := &models.Payment{
			OrderID:     order.ID,
			Amount:      conf.Amount,
			Currency:    currency,
			Status:      models.PaymentStatusCompleted,
			ExternalRef: conf.ExternalRef,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		tickets, err = s.issueTickets(ctx, tx, order, items)
		if err != nil {
			return err
		}

		for _, item := range items {
			if err := tx.IncrementTierSold(ctx, item.TierID, item.Quantity); err != nil {
				return fmt.Errorf("failed to increment sold quantity: %w", err)
			}
		}

		if order.PromoCodeID != nil {
			ok, err := tx.IncrementPromoUses(ctx, *order.PromoCodeID)
			if err != nil {
				return fmt.Errorf("failed to increment promo uses: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: usage limit reached", models.ErrInvalidPromoCode)
			}
		}

		return nil
	})
	util.FulfillmentLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		s.reportFailure(conf, err)
		return nil, err
	}
	if replay != nil {
		return s.replay(ctx, replay)
	}

	util.OrdersCompletedTotal.Inc()
	util.TicketsIssuedTotal.Add(float64(len(tickets)))
	s.logger.Info("Order fulfilled",
		zap.Int64("order_id", order.ID),
		zap.String("external_ref", conf.ExternalRef),
		zap.Int("tickets", len(tickets)))

	s.publishCompleted(ctx, order, items, tiers, tickets)

	return &FulfillmentResult{Order: order, Tickets: tickets}, nil
}

// lockTiers locks every tier of the order in ascending id order
func (s *FulfillmentService) lockTiers(ctx context.Context, tx store.Repository, items []models.OrderItem) (map[int64]*models.TicketTier, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.TierID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked, err := tx.LockTiers(ctx, ids)
	if err != nil {
		return nil, err
	}

	tiers := tiersByID(locked)
	for _, id := range ids {
		if _, ok := tiers[id]; !ok {
			return nil, &models.TierNotFoundError{TierID: id}
		}
	}
	return tiers, nil
}

func (s *FulfillmentService) issueTickets(ctx context.Context, tx store.Repository, order *models.Order, items []models.OrderItem) ([]models.Ticket, error) {
	var tickets []models.Ticket
	for _, item := range items {
		for n := 0; n < item.Quantity; n++ {
			ticket := models.Ticket{
				OrderID:       order.ID,
				EventID:       order.EventID,
				TierID:        item.TierID,
				HolderID:      order.BuyerID,
				AttendeeName:  order.BillingName,
				AttendeeEmail: order.BillingEmail,
				PricePaid:     item.UnitPrice,
				Status:        models.TicketStatusConfirmed,
			}
			if err := tx.CreateTicket(ctx, &ticket); err != nil {
				return nil, fmt.Errorf("failed to create ticket: %w", err)
			}

			cred, err := s.issuer.Issue(ticket.ID, ticket.EventID, ticket.OrderID, ticket.TierID)
			if err != nil {
				return nil, fmt.Errorf("failed to issue credential: %w", err)
			}
			if err := tx.SetTicketCredential(ctx, ticket.ID, cred); err != nil {
				return nil, fmt.Errorf("failed to store credential: %w", err)
			}
			ticket.Credential = &cred

			tickets = append(tickets, ticket)
		}
	}
	return tickets, nil
}

func (s *FulfillmentService) replay(ctx context.Context, payment *models.Payment) (*FulfillmentResult, error) {
	util.FulfillmentReplaysTotal.Inc()
	s.logger.Info("Payment already processed",
		zap.String("external_ref", payment.ExternalRef),
		zap.Int64("order_id", payment.OrderID))

	order, err := s.repo.GetOrderByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.repo.GetTicketsByOrderID(ctx, payment.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	return &FulfillmentResult{Order: order, Tickets: tickets, AlreadyProcessed: true}, nil
}

// reportFailure raises the operator alert: money may be captured for an order
// that could not be fulfilled
func (s *FulfillmentService) reportFailure(conf PaymentConfirmation, err error) {
	fields := []zap.Field{
		zap.Int64("order_id", conf.OrderID),
		zap.String("external_ref", conf.ExternalRef),
		zap.Int64("amount", conf.Amount),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, models.ErrSoldOut):
		util.FulfillmentFailuresTotal.WithLabelValues("sold_out").Inc()
		s.logger.Error("Payment captured but tier sold out, order needs a refund", fields...)
	case errors.Is(err, models.ErrOrderNotFound):
		util.FulfillmentFailuresTotal.WithLabelValues("order_not_found").Inc()
		s.logger.Error("Payment references unknown order", fields...)
	case errors.Is(err, models.ErrOrderNotPayable):
		util.FulfillmentFailuresTotal.WithLabelValues("not_payable").Inc()
		s.logger.Error("Payment captured for order not awaiting payment", fields...)
	case errors.Is(err, models.ErrInvalidPromoCode):
		util.FulfillmentFailuresTotal.WithLabelValues("promo_exhausted").Inc()
		s.logger.Error("Payment captured but promo code exhausted", fields...)
	case errors.Is(err, models.ErrIntegrityViolation):
		util.FulfillmentFailuresTotal.WithLabelValues("integrity").Inc()
		s.logger.Error("Integrity violation while fulfilling order", fields...)
	default:
		util.FulfillmentFailuresTotal.WithLabelValues("internal").Inc()
		s.logger.Error("Failed to fulfill order", fields...)
	}
}

func (s *FulfillmentService) publishCompleted(ctx context.Context, order *models.Order, items []models.OrderItem, tiers map[int64]*models.TicketTier, tickets []models.Ticket) {
	ctx, cancel := publishContext(ctx)
	defer cancel()

	var title string
	if event, err := s.repo.GetEventByID(ctx, order.EventID); err == nil {
		title = event.Title
	}

	itemData := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		itemData = append(itemData, models.OrderItemData{
			TierID:    item.TierID,
			TierName:  tiers[item.TierID].Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	deliveries := make([]models.TicketDelivery, 0, len(tickets))
	for _, t := range tickets {
		deliveries = append(deliveries, delivery(&t))
	}

	event := &models.OrderCompletedEvent{
		OrderID:         order.ID,
		TicketedEventID: order.EventID,
		EventTitle:      title,
		BuyerID:         order.BuyerID,
		BillingName:     order.BillingName,
		BillingEmail:    order.BillingEmail,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		Items:           itemData,
		Tickets:         deliveries,
	}

	if err := s.publisher.PublishOrderCompleted(ctx, event); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(models.EventTypeOrderCompleted).Inc()
		s.logger.Warn("Failed to publish order.completed, receipt will not be sent",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

func delivery(t *models.Ticket) models.TicketDelivery {
	d := models.TicketDelivery{
		TicketID:      t.ID,
		TierID:        t.TierID,
		AttendeeName:  t.AttendeeName,
		AttendeeEmail: t.AttendeeEmail,
	}
	if t.Credential != nil {
		d.Credential = *t.Credential
	}
	return d
}
