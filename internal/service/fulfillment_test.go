package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ticketing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirm(order *models.Order, ref string) PaymentConfirmation {
	return PaymentConfirmation{ExternalRef: ref, OrderID: order.ID, Amount: order.TotalAmount, Currency: "USD"}
}

func TestConfirmPaymentCommitsOrder(t *testing.T) {
	f := newFixture()
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 5000, intPtr(10))
	order := f.seedPendingOrder(tier, 3, nil)

	result, err := f.fulfillment.ConfirmPayment(context.Background(), confirm(order, "pi_1"))
	require.NoError(t, err)

	assert.False(t, result.AlreadyProcessed)
	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
	assert.Equal(t, "usd", result.Order.Currency)
	require.Len(t, result.Tickets, 3)

	seen := map[string]bool{}
	for _, ticket := range result.Tickets {
		assert.Equal(t, models.TicketStatusConfirmed, ticket.Status)
		assert.Equal(t, int64(5000), ticket.PricePaid)
		assert.Equal(t, buyerID, ticket.HolderID)
		require.NotNil(t, ticket.Credential)
		assert.False(t, seen[*ticket.Credential], "credentials must be unique")
		seen[*ticket.Credential] = true

		claims, err := f.issuer.Parse(*ticket.Credential)
		require.NoError(t, err)
		assert.Equal(t, ticket.ID, claims.TicketID)
		assert.Equal(t, order.ID, claims.OrderID)
	}

	assert.Equal(t, 3, f.repo.tier(tier.ID).SoldQuantity)
	stored, err := f.repo.GetPaymentByExternalRef(context.Background(), "pi_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)

	require.Len(t, f.publisher.completed, 1)
	assert.Equal(t, "Spring Concert", f.publisher.completed[0].EventTitle)
	assert.Len(t, f.publisher.completed[0].Tickets, 3)
}

func TestConfirmPaymentUsesSettledAmount(t *testing.T) {
	f := newFixture()
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 5000, nil)
	order := f.seedPendingOrder(tier, 1, nil)

	conf := confirm(order, "pi_settled")
	conf.Amount = 4500
	result, err := f.fulfillment.ConfirmPayment(context.Background(), conf)
	require.NoError(t, err)

	assert.Equal(t, int64(4500), result.Order.TotalAmount)
	assert.Equal(t, int64(4500), f.repo.order(order.ID).TotalAmount)
	// the ticket keeps the tier price snapshot
	assert.Equal(t, int64(5000), result.Tickets[0].PricePaid)
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture()
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 5000, intPtr(10))
	order := f.seedPendingOrder(tier, 2, nil)

	first, err := f.fulfillment.ConfirmPayment(context.Background(), confirm(order, "pi_dup"))
	require.NoError(t, err)
	second, err := f.fulfillment.ConfirmPayment(context.Background(), confirm(order, "pi_dup"))
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, second.Tickets, 2)

	_, payments, tickets, _ := f.repo.count()
	assert.Equal(t, 1, payments)
	assert.Equal(t, 2, tickets)
	assert.Equal(t, 2, f.repo.tier(tier.ID).SoldQuantity)
	assert.Len(t, f.publisher.completed, 1)
}

func TestConfirmPaymentConcurrentReplays(t *testing.T) {
	f := newFixture()
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 5000, intPtr(10))
	order := f.seedPendingOrder(tier, 1, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.fulfillment.ConfirmPayment(context.Background(), confirm(order, "pi_race"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	_, payments, tickets, _ := f.repo.count()
	assert.Equal(t, 1, payments)
	assert.Equal(t, 1, tickets)
	assert.Equal(t, 1, f.repo.tier(tier.ID).SoldQuantity)
	assert.Equal(t, models.OrderStatusCompleted, f.repo.order(order.ID).Status)
}

// Two buyers race for the last two seats, then a third arrives
func TestConfirmPaymentLastSeats(t *testing.T) {
	f := newFixture()
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 5000, intPtr(2))
	a := f.seedPendingOrder(tier, 1, nil)
	b := f.seedPendingOrder(tier, 1, nil)

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = f.fulfillment.ConfirmPayment(context.Background(), confirm(a, "pi_a"))
	}()
	go func() {
		defer wg.Done()
		_, errB = f.fulfillment.ConfirmPayment(context.Background(), confirm(b, "pi_b"))
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, 2, f.repo.tier(tier.ID).SoldQuantity)

	c := f.seedPendingOrder(tier, 1, nil)
	_, err := f.fulfillment.ConfirmPayment(context.Background(), confirm(c, "pi_c"))
	assert.ErrorIs(t, err, models.ErrSoldOut)

	assert.Equal(t, 2, f.repo.tier(tier.ID).SoldQuantity)
	assert.Empty(t, f.repo.ticketsOf(c.ID))
	assert.Equal(t, models.OrderStatusPending, f.repo.order(c.ID).Status)
	payment, err := f.repo.GetPaymentByExternalRef(context.Background(), "pi_c")
	require.NoError(t, err)
	assert.Nil(t, payment)
}

func TestConfirmPaymentNeverOversells(t *testing.T) {
	f := newFixture()
	event := f.seedEvent()
	capacity := 5
	tier := f.seedTier(event.ID, "GA", 1000, intPtr(capacity))

	const buyers = 12
	orders := make([]*models.Order, buyers)
	for i := range orders {
		orders[i] = f.seedPendingOrder(tier, 1, nil)
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i, order := range orders {
		wg.Add(1)
		go func(i int, order *models.Order) {
			defer wg.Done()
			_, errs[i] = f.fulfillment.ConfirmPayment(context.Background(), confirm(order, fmt.Sprintf("pi_%d", i)))
		}(i, order)
	}
	wg.Wait()

	succeeded, soldOut := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, models.ErrSoldOut):
			soldOut++
		}
	}
	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, buyers-capacity, soldOut)
	assert.Equal(t, capacity, f.repo.tier(tier.ID).SoldQuantity)
}

func TestConfirmPaymentPromoUsageBound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 1000, nil)
	code := &models.PromoCode{EventID: event.ID, Code: "ONCE", DiscountType: models.DiscountFixed,
		DiscountValue: 100, MaxUses: intPtr(1), Active: true}
	require.NoError(t, f.repo.CreatePromoCode(ctx, code))

	first := f.seedPendingOrder(tier, 2, &code.ID)
	second := f.seedPendingOrder(tier, 1, &code.ID)

	_, err := f.fulfillment.ConfirmPayment(ctx, confirm(first, "pi_first"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.promo(code.ID).CurrentUses, "counted once per order")

	_, err = f.fulfillment.ConfirmPayment(ctx, confirm(second, "pi_second"))
	assert.ErrorIs(t, err, models.ErrInvalidPromoCode)

	assert.Equal(t, 1, f.repo.promo(code.ID).CurrentUses)
	assert.Equal(t, 2, f.repo.tier(tier.ID).SoldQuantity)
	assert.Empty(t, f.repo.ticketsOf(second.ID))
	assert.Equal(t, models.OrderStatusPending, f.repo.order(second.ID).Status)
}

func TestConfirmPaymentUnknownOrder(t *testing.T) {
	f := newFixture()

	_, err := f.fulfillment.ConfirmPayment(context.Background(), PaymentConfirmation{ExternalRef: "pi_x", OrderID: 999})
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestConfirmPaymentRejectsCancelledOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 1000, nil)
	order := f.seedPendingOrder(tier, 1, nil)
	require.NoError(t, f.repo.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled))

	_, err := f.fulfillment.ConfirmPayment(ctx, confirm(order, "pi_late"))
	assert.ErrorIs(t, err, models.ErrOrderNotPayable)
}

func TestConfirmPaymentRequiresReference(t *testing.T) {
	f := newFixture()

	_, err := f.fulfillment.ConfirmPayment(context.Background(), PaymentConfirmation{OrderID: 1})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestConfirmPaymentSurvivesPublishFailure(t *testing.T) {
	f := newFixture()
	f.publisher.err = fmt.Errorf("broker down")
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 1000, nil)
	order := f.seedPendingOrder(tier, 1, nil)

	result, err := f.fulfillment.ConfirmPayment(context.Background(), confirm(order, "pi_nobroker"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
}

func TestConfirmPaymentPublishesOnDetachedContext(t *testing.T) {
	f := newFixture()
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 1000, nil)
	order := f.seedPendingOrder(tier, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var pubErr error
	var hasDeadline bool
	var deadline time.Time
	f.publisher.onPublish = func(pubCtx context.Context) {
		// the request goes away once the order is committed
		cancel()
		pubErr = pubCtx.Err()
		deadline, hasDeadline = pubCtx.Deadline()
	}

	start := time.Now()
	result, err := f.fulfillment.ConfirmPayment(ctx, confirm(order, "pi_detached"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
	require.Len(t, f.publisher.completed, 1)
	assert.NoError(t, pubErr)
	require.True(t, hasDeadline)
	assert.False(t, deadline.After(time.Now().Add(publishTimeout)))
	assert.True(t, deadline.After(start))
}
