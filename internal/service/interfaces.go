package service

import (
	"context"
	"time"

	"ticketing-service/internal/credential"
	"ticketing-service/internal/models"
	"ticketing-service/internal/processor"
)

// PaymentProcessor is the hosted payment provider
type PaymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, req processor.CheckoutRequest) (*processor.Session, error)
	Refund(ctx context.Context, req processor.RefundRequest) (*processor.RefundResult, error)
}

// EventPublisher emits domain events after commits
type EventPublisher interface {
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
	PublishTicketTransferred(ctx context.Context, event *models.TicketTransferredEvent) error
	PublishTicketCheckedIn(ctx context.Context, event *models.TicketCheckedInEvent) error
}

// CredentialIssuer signs and verifies ticket credentials
type CredentialIssuer interface {
	Issue(ticketID, eventID, orderID, tierID int64) (string, error)
	Parse(token string) (*credential.Claims, error)
}

// Locker serialises requests sharing a key across instances
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// ReplayGuard marks a webhook delivery as in flight. The claim expires on its
// own; processed_events stays the record of what was handled.
type ReplayGuard interface {
	ClaimWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ReleaseWebhookEvent(ctx context.Context, eventID string) error
}

// publishTimeout bounds an event publish made after the transaction committed
const publishTimeout = 3 * time.Second

// publishContext keeps the caller's values but not its cancellation, so a
// committed change is still announced when the client goes away
func publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
}

func nowUTC(now func() time.Time) time.Time {
	return now().UTC().Truncate(time.Microsecond)
}
