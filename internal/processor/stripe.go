package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticketing-service/internal/util"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

// MetadataVersion tags the metadata written on checkout sessions
const MetadataVersion = "1"

var (
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrMalformedMetadata   = errors.New("malformed checkout metadata")
	ErrUnsupportedMetadata = errors.New("unsupported checkout metadata version")
)

// LineItem is one priced row on the hosted checkout page
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int
}

type CheckoutRequest struct {
	OrderID       int64
	EventID       int64
	Currency      string
	CustomerEmail string
	Lines         []LineItem
	Total         int64
	Discounted    bool
	ExpiresAt     time.Time
}

type Session struct {
	ID  string
	URL string
}

type RefundRequest struct {
	ExternalRef    string
	Amount         int64
	Reason         string
	IdempotencyKey string
}

type RefundResult struct {
	ID     string
	Status string
}

// PaymentSucceeded is the verified payment signal extracted from a webhook
type PaymentSucceeded struct {
	ExternalRef string
	OrderID     int64
	EventID     int64
	Amount      int64
	Currency    string
	MetaVersion string
}

// WebhookEvent is a verified provider event. Payment is nil for event types
// that do not confirm a payment.
type WebhookEvent struct {
	ID      string
	Type    string
	Payment *PaymentSucceeded
}

type Stripe struct {
	webhookSecret string
	successURL    string
	cancelURL     string
	logger        *zap.Logger
}

// NewStripe configures the global stripe client with a bounded HTTP timeout
func NewStripe(secretKey, webhookSecret, successURL, cancelURL string, timeout time.Duration) *Stripe {
	stripe.Key = secretKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
	}))

	return &Stripe{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
		logger:        util.GetLogger(),
	}
}

// CreateCheckoutSession opens a hosted checkout for a pending order
func (s *Stripe) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "Stripe.CreateCheckoutSession")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ProcessorLatency.WithLabelValues("checkout").Observe(time.Since(start).Seconds())
	}()

	orderID := strconv.FormatInt(req.OrderID, 10)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         buildLineItems(req),
		SuccessURL:        stripe.String(strings.ReplaceAll(s.successURL, "{ORDER_ID}", orderID)),
		CancelURL:         stripe.String(strings.ReplaceAll(s.cancelURL, "{ORDER_ID}", orderID)),
		ClientReferenceID: stripe.String(orderID),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		Metadata: map[string]string{
			"meta_version": MetadataVersion,
			"order_id":     orderID,
			"event_id":     strconv.FormatInt(req.EventID, 10),
		},
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-order-" + orderID)

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// A discounted order is charged as one combined line since the per-tier
// prices no longer add up to what the buyer pays
func buildLineItems(req CheckoutRequest) []*stripe.CheckoutSessionLineItemParams {
	if req.Discounted {
		return []*stripe.CheckoutSessionLineItemParams{
			lineItem(req.Currency, fmt.Sprintf("Order #%d", req.OrderID), req.Total, 1),
		}
	}

	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines))
	for _, line := range req.Lines {
		items = append(items, lineItem(req.Currency, line.Name, line.UnitAmount, line.Quantity))
	}
	return items
}

func lineItem(currency, name string, unitAmount int64, quantity int) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency: stripe.String(currency),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
			UnitAmount: stripe.Int64(unitAmount),
		},
		Quantity: stripe.Int64(int64(quantity)),
	}
}

// Refund reverses part or all of a captured payment
func (s *Stripe) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	ctx, span := util.StartSpan(ctx, "Stripe.Refund")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ProcessorLatency.WithLabelValues("refund").Observe(time.Since(start).Seconds())
	}()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ExternalRef),
		Amount:        stripe.Int64(req.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	return &RefundResult{ID: r.ID, Status: string(r.Status)}, nil
}

// ParseWebhook verifies the signature and extracts a payment confirmation
// from completed checkout sessions
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := &WebhookEvent{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			s.logger.Info("Checkout session not paid yet",
				zap.String("session_id", sess.ID),
				zap.String("payment_status", string(sess.PaymentStatus)))
			return result, nil
		}

		payment, err := paymentFromSession(&sess)
		if err != nil {
			return nil, err
		}
		result.Payment = payment
	}

	return result, nil
}

func paymentFromSession(sess *stripe.CheckoutSession) (*PaymentSucceeded, error) {
	version := sess.Metadata["meta_version"]
	if version != MetadataVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMetadata, version)
	}

	orderID, err := strconv.ParseInt(sess.Metadata["order_id"], 10, 64)
	if err != nil || orderID <= 0 {
		return nil, fmt.Errorf("%w: order_id %q", ErrMalformedMetadata, sess.Metadata["order_id"])
	}
	eventID, err := strconv.ParseInt(sess.Metadata["event_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: event_id %q", ErrMalformedMetadata, sess.Metadata["event_id"])
	}

	ref := sess.ID
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		ref = sess.PaymentIntent.ID
	}

	return &PaymentSucceeded{
		ExternalRef: ref,
		OrderID:     orderID,
		EventID:     eventID,
		Amount:      sess.AmountTotal,
		Currency:    string(sess.Currency),
		MetaVersion: version,
	}, nil
}
