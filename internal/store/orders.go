package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ticketing-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, event_id, status, subtotal, discount_amount, total_amount,
			currency, promo_code_id, billing_name, billing_email, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.q, order, query,
		order.BuyerID, order.EventID, order.Status, order.Subtotal, order.DiscountAmount,
		order.TotalAmount, order.Currency, order.PromoCodeID, order.BillingName,
		order.BillingEmail, order.IdempotencyKey)
	return mapError(err)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT * FROM orders WHERE id = $1", id)
}

// LockOrder retrieves an order and holds its row lock until the transaction ends
func (s *Store) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
}

func (s *Store) getOrder(ctx context.Context, query string, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SetOrderCheckoutSession records the processor session on a pending order
func (s *Store) SetOrderCheckoutSession(ctx context.Context, orderID int64, sessionID, url string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE orders SET checkout_session_id = $1, checkout_url = $2, updated_at = NOW() WHERE id = $3",
		sessionID, url, orderID)
	return mapError(err)
}

// CompleteOrder moves a pending order to completed with the settled amount
func (s *Store) CompleteOrder(ctx context.Context, orderID, amount int64, currency string) error {
	n, err := s.execAffected(ctx, `
		UPDATE orders SET status = $1, total_amount = $2, currency = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		models.OrderStatusCompleted, amount, currency, orderID, models.OrderStatusPending)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrOrderNotPayable
	}
	return nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// AddOrderRefundedAmount accumulates refunded money, never past the total
func (s *Store) AddOrderRefundedAmount(ctx context.Context, orderID, amount int64) error {
	n, err := s.execAffected(ctx, `
		UPDATE orders SET refunded_amount = refunded_amount + $1, updated_at = NOW()
		WHERE id = $2 AND refunded_amount + $1 <= total_amount`,
		amount, orderID)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrRefundExceedsTotal
	}
	return nil
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, tier_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return sqlx.GetContext(ctx, s.q, &item.ID, query,
		item.OrderID, item.TierID, item.Quantity, item.UnitPrice)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, s.q, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY tier_id", orderID)
	return items, err
}

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, amount, currency, status, external_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.q, payment, query,
		payment.OrderID, payment.Amount, payment.Currency, payment.Status, payment.ExternalRef)
	return mapError(err)
}

// GetPaymentByExternalRef returns nil, nil when no payment carries the reference
func (s *Store) GetPaymentByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, s.q, &payment, "SELECT * FROM payments WHERE external_ref = $1", ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByOrderID retrieves payment for an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, s.q, &payment,
		"SELECT * FROM payments WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %d", models.ErrPaymentNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatus updates payment status
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2",
		status, paymentID)
	return err
}

// IsEventProcessed checks if a provider event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.q, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a provider event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
