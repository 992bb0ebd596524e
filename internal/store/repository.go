package store

import (
	"context"
	"time"

	"ticketing-service/internal/models"
)

// Repository is everything the services need from persistence.
// Methods called inside RunInTx share one database transaction.
type Repository interface {
	RunInTx(ctx context.Context, fn func(Repository) error) error

	CreateEvent(ctx context.Context, event *models.Event) error
	GetEventByID(ctx context.Context, id int64) (*models.Event, error)
	UpdateEventStatus(ctx context.Context, id int64, status models.EventStatus) error

	CreateTier(ctx context.Context, tier *models.TicketTier) error
	GetTiersByEventID(ctx context.Context, eventID int64) ([]models.TicketTier, error)
	LockTiers(ctx context.Context, ids []int64) ([]models.TicketTier, error)
	IncrementTierSold(ctx context.Context, tierID int64, quantity int) error

	CreatePromoCode(ctx context.Context, promo *models.PromoCode) error
	GetPromoCode(ctx context.Context, eventID int64, code string) (*models.PromoCode, error)
	GetPromoCodeByID(ctx context.Context, id int64) (*models.PromoCode, error)
	IncrementPromoUses(ctx context.Context, id int64) (bool, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	SetOrderCheckoutSession(ctx context.Context, orderID int64, sessionID, url string) error
	CompleteOrder(ctx context.Context, orderID, amount int64, currency string) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
	AddOrderRefundedAmount(ctx context.Context, orderID, amount int64) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByExternalRef(ctx context.Context, ref string) (*models.Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error

	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	SetTicketCredential(ctx context.Context, ticketID int64, credential string) error
	GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error)
	LockTicket(ctx context.Context, id int64) (*models.Ticket, error)
	GetTicketsByOrderID(ctx context.Context, orderID int64) ([]models.Ticket, error)
	MarkTicketCheckedIn(ctx context.Context, ticketID int64, at time.Time) (bool, error)
	UpdateTicketHolder(ctx context.Context, ticketID int64, holder models.TicketHolder, credential string) error
	RefundTickets(ctx context.Context, orderID int64, ticketIDs []int64) ([]int64, error)

	CreateRefund(ctx context.Context, refund *models.Refund) error
	GetRefundsByOrderID(ctx context.Context, orderID int64) ([]models.Refund, error)

	GetOrganizerBalance(ctx context.Context, organizerID int64, currency string) (int64, error)
	LockOrganizerPayouts(ctx context.Context, organizerID int64) error
	CreatePayout(ctx context.Context, payout *models.Payout) error
	GetPayoutsByOrganizer(ctx context.Context, organizerID int64) ([]models.Payout, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}
