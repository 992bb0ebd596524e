package models

import "time"

// Event is something organizers sell tickets for
type Event struct {
	ID          int64       `db:"id" json:"id"`
	OrganizerID int64       `db:"organizer_id" json:"organizer_id"`
	Title       string      `db:"title" json:"title"`
	Venue       string      `db:"venue" json:"venue"`
	Address     string      `db:"address" json:"address"`
	StartsAt    time.Time   `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time   `db:"ends_at" json:"ends_at"`
	Status      EventStatus `db:"status" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// TicketTier is a priced category of ticket for an event.
// TotalQuantity nil means unlimited capacity; zero means no seats at all.
type TicketTier struct {
	ID            int64      `db:"id" json:"id"`
	EventID       int64      `db:"event_id" json:"event_id"`
	Name          string     `db:"name" json:"name"`
	BasePrice     int64      `db:"base_price" json:"base_price"`
	Currency      string     `db:"currency" json:"currency"`
	TotalQuantity *int       `db:"total_quantity" json:"total_quantity"`
	SoldQuantity  int        `db:"sold_quantity" json:"sold_quantity"`
	SaleStartsAt  *time.Time `db:"sale_starts_at" json:"sale_starts_at,omitempty"`
	SaleEndsAt    *time.Time `db:"sale_ends_at" json:"sale_ends_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Unlimited reports whether the tier has no capacity cap
func (t *TicketTier) Unlimited() bool {
	return t.TotalQuantity == nil
}

// Remaining returns seats left, or -1 for unlimited tiers
func (t *TicketTier) Remaining() int {
	if t.TotalQuantity == nil {
		return -1
	}
	if left := *t.TotalQuantity - t.SoldQuantity; left > 0 {
		return left
	}
	return 0
}

// PromoCode discounts an order for one event
type PromoCode struct {
	ID            int64        `db:"id" json:"id"`
	EventID       int64        `db:"event_id" json:"event_id"`
	Code          string       `db:"code" json:"code"`
	DiscountType  DiscountType `db:"discount_type" json:"discount_type"`
	DiscountValue int64        `db:"discount_value" json:"discount_value"`
	MaxUses       *int         `db:"max_uses" json:"max_uses"`
	CurrentUses   int          `db:"current_uses" json:"current_uses"`
	ValidFrom     *time.Time   `db:"valid_from" json:"valid_from,omitempty"`
	ValidTo       *time.Time   `db:"valid_to" json:"valid_to,omitempty"`
	Active        bool         `db:"active" json:"active"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// Exhausted reports whether the code has hit its usage cap
func (p *PromoCode) Exhausted() bool {
	return p.MaxUses != nil && p.CurrentUses >= *p.MaxUses
}

// Order represents a buyer's purchase for one event
type Order struct {
	ID                int64       `db:"id" json:"id"`
	BuyerID           int64       `db:"buyer_id" json:"buyer_id"`
	EventID           int64       `db:"event_id" json:"event_id"`
	Status            OrderStatus `db:"status" json:"status"`
	Subtotal          int64       `db:"subtotal" json:"subtotal"`
	DiscountAmount    int64       `db:"discount_amount" json:"discount_amount"`
	TotalAmount       int64       `db:"total_amount" json:"total_amount"`
	RefundedAmount    int64       `db:"refunded_amount" json:"refunded_amount"`
	Currency          string      `db:"currency" json:"currency"`
	PromoCodeID       *int64      `db:"promo_code_id" json:"promo_code_id,omitempty"`
	BillingName       string      `db:"billing_name" json:"billing_name"`
	BillingEmail      string      `db:"billing_email" json:"billing_email"`
	CheckoutSessionID *string     `db:"checkout_session_id" json:"checkout_session_id,omitempty"`
	CheckoutURL       *string     `db:"checkout_url" json:"checkout_url,omitempty"`
	IdempotencyKey    string      `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// OrderItem is one tier line of an order with its price snapshot
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	TierID    int64 `db:"tier_id" json:"tier_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// Payment is the settled payment backing an order
type Payment struct {
	ID          int64         `db:"id" json:"id"`
	OrderID     int64         `db:"order_id" json:"order_id"`
	Amount      int64         `db:"amount" json:"amount"`
	Currency    string        `db:"currency" json:"currency"`
	Status      PaymentStatus `db:"status" json:"status"`
	ExternalRef string        `db:"external_ref" json:"external_ref"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Ticket is one admission
type Ticket struct {
	ID            int64        `db:"id" json:"id"`
	OrderID       int64        `db:"order_id" json:"order_id"`
	EventID       int64        `db:"event_id" json:"event_id"`
	TierID        int64        `db:"tier_id" json:"tier_id"`
	HolderID      int64        `db:"holder_id" json:"holder_id"`
	AttendeeName  string       `db:"attendee_name" json:"attendee_name"`
	AttendeeEmail string       `db:"attendee_email" json:"attendee_email"`
	AttendeePhone string       `db:"attendee_phone" json:"attendee_phone,omitempty"`
	PricePaid     int64        `db:"price_paid" json:"price_paid"`
	Status        TicketStatus `db:"status" json:"status"`
	Credential    *string      `db:"credential" json:"-"`
	CheckedInAt   *time.Time   `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// TicketHolder carries the attendee identity written on a ticket
type TicketHolder struct {
	HolderID int64  `json:"holder_id,omitempty"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone,omitempty"`
}

// Refund is an append-only record of a processor reversal
type Refund struct {
	ID          int64     `db:"id" json:"id"`
	OrderID     int64     `db:"order_id" json:"order_id"`
	Amount      int64     `db:"amount" json:"amount"`
	Reason      string    `db:"reason" json:"reason"`
	Status      string    `db:"status" json:"status"`
	ExternalRef string    `db:"external_ref" json:"external_ref"`
	ActorID     int64     `db:"actor_id" json:"actor_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Payout is an organizer's withdrawal of settled revenue
type Payout struct {
	ID          int64        `db:"id" json:"id"`
	OrganizerID int64        `db:"organizer_id" json:"organizer_id"`
	Amount      int64        `db:"amount" json:"amount"`
	Currency    string       `db:"currency" json:"currency"`
	Status      PayoutStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// ProcessedEvent for webhook idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

type EventStatus string

// Event statuses
const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

type DiscountType string

// Discount types
const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type TicketStatus string

// Ticket statuses
const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusConfirmed TicketStatus = "confirmed"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusRefunded  TicketStatus = "refunded"
	TicketStatusCheckedIn TicketStatus = "checked_in"
)

type PayoutStatus string

// Payout statuses
const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusPaid     PayoutStatus = "paid"
	PayoutStatusRejected PayoutStatus = "rejected"
)

// RefundStatusSucceeded is the only status a persisted refund row carries
const RefundStatusSucceeded = "succeeded"
