package models

import "time"

// Event types
const (
	EventTypeOrderCompleted    = "order.completed"
	EventTypeOrderRefunded     = "order.refunded"
	EventTypeTicketTransferred = "ticket.transferred"
	EventTypeTicketCheckedIn   = "ticket.checked_in"
)

// BaseEvent contains common fields for all domain events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCompletedEvent published after the fulfillment transaction commits
type OrderCompletedEvent struct {
	BaseEvent
	OrderID         int64            `json:"order_id"`
	TicketedEventID int64            `json:"ticketed_event_id"`
	EventTitle      string           `json:"event_title"`
	BuyerID         int64            `json:"buyer_id"`
	BillingName     string           `json:"billing_name"`
	BillingEmail    string           `json:"billing_email"`
	TotalAmount     int64            `json:"total_amount"`
	Currency        string           `json:"currency"`
	Items           []OrderItemData  `json:"items"`
	Tickets         []TicketDelivery `json:"tickets"`
}

// OrderRefundedEvent published after a refund is recorded
type OrderRefundedEvent struct {
	BaseEvent
	OrderID        int64   `json:"order_id"`
	RefundID       int64   `json:"refund_id"`
	BillingEmail   string  `json:"billing_email"`
	Amount         int64   `json:"amount"`
	RefundedAmount int64   `json:"refunded_amount"`
	Currency       string  `json:"currency"`
	FullRefund     bool    `json:"full_refund"`
	TicketIDs      []int64 `json:"ticket_ids"`
}

// TicketTransferredEvent notifies the new holder of a ticket
type TicketTransferredEvent struct {
	BaseEvent
	TicketDelivery
	OrderID       int64  `json:"order_id"`
	PreviousEmail string `json:"previous_email"`
	EventTitle    string `json:"event_title"`
}

// TicketCheckedInEvent published when a scan wins the check-in
type TicketCheckedInEvent struct {
	BaseEvent
	TicketID        int64     `json:"ticket_id"`
	TicketedEventID int64     `json:"ticketed_event_id"`
	ScannerID       int64     `json:"scanner_id"`
	CheckedInAt     time.Time `json:"checked_in_at"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	TierID    int64  `json:"tier_id"`
	TierName  string `json:"tier_name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// TicketDelivery is what a holder needs to get in the door
type TicketDelivery struct {
	TicketID      int64  `json:"ticket_id"`
	TierID        int64  `json:"tier_id"`
	AttendeeName  string `json:"attendee_name"`
	AttendeeEmail string `json:"attendee_email"`
	Credential    string `json:"credential"`
}
