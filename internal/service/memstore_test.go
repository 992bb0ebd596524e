package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ticketing-service/internal/credential"
	"ticketing-service/internal/models"
	"ticketing-service/internal/processor"
	"ticketing-service/internal/store"
)

// memData is the whole fake database. Rows are stored by value so a shallow
// map copy is a full snapshot.
type memData struct {
	nextID    int64
	events    map[int64]models.Event
	tiers     map[int64]models.TicketTier
	promos    map[int64]models.PromoCode
	orders    map[int64]models.Order
	items     map[int64]models.OrderItem
	payments  map[int64]models.Payment
	tickets   map[int64]models.Ticket
	refunds   map[int64]models.Refund
	payouts   map[int64]models.Payout
	processed map[string]string
}

func newMemData() *memData {
	return &memData{
		events:    map[int64]models.Event{},
		tiers:     map[int64]models.TicketTier{},
		promos:    map[int64]models.PromoCode{},
		orders:    map[int64]models.Order{},
		items:     map[int64]models.OrderItem{},
		payments:  map[int64]models.Payment{},
		tickets:   map[int64]models.Ticket{},
		refunds:   map[int64]models.Refund{},
		payouts:   map[int64]models.Payout{},
		processed: map[string]string{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) clone() *memData {
	return &memData{
		nextID:    d.nextID,
		events:    copyMap(d.events),
		tiers:     copyMap(d.tiers),
		promos:    copyMap(d.promos),
		orders:    copyMap(d.orders),
		items:     copyMap(d.items),
		payments:  copyMap(d.payments),
		tickets:   copyMap(d.tickets),
		refunds:   copyMap(d.refunds),
		payouts:   copyMap(d.payouts),
		processed: copyMap(d.processed),
	}
}

func (d *memData) id() int64 {
	d.nextID++
	return d.nextID
}

// memStore is a store.Repository fake. Transactions are fully serialised by
// one mutex and roll back to a snapshot on error.
type memStore struct {
	mu   *sync.Mutex
	data **memData
	inTx bool

	failCreateRefund error
}

var _ store.Repository = (*memStore)(nil)

func newMemStore() *memStore {
	d := newMemData()
	return &memStore{mu: &sync.Mutex{}, data: &d}
}

func (m *memStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memStore) db() *memData { return *m.data }

func (m *memStore) RunInTx(ctx context.Context, fn func(store.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.db().clone()
	tx := &memStore{mu: m.mu, data: m.data, inTx: true, failCreateRefund: m.failCreateRefund}
	if err := fn(tx); err != nil {
		*m.data = snapshot
		return err
	}
	return nil
}

func (m *memStore) CreateEvent(ctx context.Context, event *models.Event) error {
	defer m.lock()()
	d := m.db()
	event.ID = d.id()
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	d.events[event.ID] = *event
	return nil
}

func (m *memStore) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	defer m.lock()()
	e, ok := m.db().events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrEventNotFound, id)
	}
	return &e, nil
}

func (m *memStore) UpdateEventStatus(ctx context.Context, id int64, status models.EventStatus) error {
	defer m.lock()()
	d := m.db()
	e, ok := d.events[id]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrEventNotFound, id)
	}
	e.Status = status
	d.events[id] = e
	return nil
}

func (m *memStore) CreateTier(ctx context.Context, tier *models.TicketTier) error {
	defer m.lock()()
	d := m.db()
	tier.ID = d.id()
	tier.CreatedAt = time.Now()
	d.tiers[tier.ID] = *tier
	return nil
}

func (m *memStore) GetTiersByEventID(ctx context.Context, eventID int64) ([]models.TicketTier, error) {
	defer m.lock()()
	var tiers []models.TicketTier
	for _, t := range m.db().tiers {
		if t.EventID == eventID {
			tiers = append(tiers, t)
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].ID < tiers[j].ID })
	return tiers, nil
}

func (m *memStore) LockTiers(ctx context.Context, ids []int64) ([]models.TicketTier, error) {
	defer m.lock()()
	var tiers []models.TicketTier
	for _, id := range ids {
		if t, ok := m.db().tiers[id]; ok {
			tiers = append(tiers, t)
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].ID < tiers[j].ID })
	return tiers, nil
}

func (m *memStore) IncrementTierSold(ctx context.Context, tierID int64, quantity int) error {
	defer m.lock()()
	d := m.db()
	t, ok := d.tiers[tierID]
	if !ok {
		return &models.TierNotFoundError{TierID: tierID}
	}
	if t.TotalQuantity != nil && t.SoldQuantity+quantity > *t.TotalQuantity {
		return &models.SoldOutError{TierID: t.ID, TierName: t.Name, Remaining: t.Remaining()}
	}
	t.SoldQuantity += quantity
	d.tiers[tierID] = t
	return nil
}

func (m *memStore) CreatePromoCode(ctx context.Context, promo *models.PromoCode) error {
	defer m.lock()()
	d := m.db()
	for _, p := range d.promos {
		if p.EventID == promo.EventID && strings.EqualFold(p.Code, promo.Code) {
			return models.ErrIntegrityViolation
		}
	}
	promo.ID = d.id()
	promo.CreatedAt = time.Now()
	d.promos[promo.ID] = *promo
	return nil
}

func (m *memStore) GetPromoCode(ctx context.Context, eventID int64, code string) (*models.PromoCode, error) {
	defer m.lock()()
	for _, p := range m.db().promos {
		if p.EventID == eventID && strings.EqualFold(p.Code, code) {
			return &p, nil
		}
	}
	return nil, models.ErrPromoCodeNotFound
}

func (m *memStore) GetPromoCodeByID(ctx context.Context, id int64) (*models.PromoCode, error) {
	defer m.lock()()
	p, ok := m.db().promos[id]
	if !ok {
		return nil, models.ErrPromoCodeNotFound
	}
	return &p, nil
}

func (m *memStore) IncrementPromoUses(ctx context.Context, id int64) (bool, error) {
	defer m.lock()()
	d := m.db()
	p, ok := d.promos[id]
	if !ok || p.Exhausted() {
		return false, nil
	}
	p.CurrentUses++
	d.promos[id] = p
	return true, nil
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	defer m.lock()()
	d := m.db()
	for _, o := range d.orders {
		if order.IdempotencyKey != "" && o.IdempotencyKey == order.IdempotencyKey {
			return models.ErrIntegrityViolation
		}
	}
	order.ID = d.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	d.orders[order.ID] = *order
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	defer m.lock()()
	o, ok := m.db().orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	return &o, nil
}

func (m *memStore) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return m.GetOrderByID(ctx, id)
}

func (m *memStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	defer m.lock()()
	for _, o := range m.db().orders {
		if o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *memStore) updateOrder(id int64, fn func(*models.Order) error) error {
	d := m.db()
	o, ok := d.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	if err := fn(&o); err != nil {
		return err
	}
	d.orders[id] = o
	return nil
}

func (m *memStore) SetOrderCheckoutSession(ctx context.Context, orderID int64, sessionID, url string) error {
	defer m.lock()()
	return m.updateOrder(orderID, func(o *models.Order) error {
		o.CheckoutSessionID = &sessionID
		o.CheckoutURL = &url
		return nil
	})
}

func (m *memStore) CompleteOrder(ctx context.Context, orderID, amount int64, currency string) error {
	defer m.lock()()
	return m.updateOrder(orderID, func(o *models.Order) error {
		if o.Status != models.OrderStatusPending {
			return models.ErrOrderNotPayable
		}
		o.Status = models.OrderStatusCompleted
		o.TotalAmount = amount
		o.Currency = currency
		return nil
	})
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	defer m.lock()()
	return m.updateOrder(orderID, func(o *models.Order) error {
		o.Status = status
		return nil
	})
}

func (m *memStore) AddOrderRefundedAmount(ctx context.Context, orderID, amount int64) error {
	defer m.lock()()
	return m.updateOrder(orderID, func(o *models.Order) error {
		if o.RefundedAmount+amount > o.TotalAmount {
			return models.ErrRefundExceedsTotal
		}
		o.RefundedAmount += amount
		return nil
	})
}

func (m *memStore) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	defer m.lock()()
	d := m.db()
	item.ID = d.id()
	d.items[item.ID] = *item
	return nil
}

func (m *memStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	defer m.lock()()
	var items []models.OrderItem
	for _, it := range m.db().items {
		if it.OrderID == orderID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].TierID < items[j].TierID })
	return items, nil
}

func (m *memStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	defer m.lock()()
	d := m.db()
	for _, p := range d.payments {
		if p.ExternalRef == payment.ExternalRef || p.OrderID == payment.OrderID {
			return models.ErrIntegrityViolation
		}
	}
	payment.ID = d.id()
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	d.payments[payment.ID] = *payment
	return nil
}

func (m *memStore) GetPaymentByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	defer m.lock()()
	for _, p := range m.db().payments {
		if p.ExternalRef == ref {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	defer m.lock()()
	for _, p := range m.db().payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: order %d", models.ErrPaymentNotFound, orderID)
}

func (m *memStore) UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	defer m.lock()()
	d := m.db()
	p, ok := d.payments[paymentID]
	if !ok {
		return models.ErrPaymentNotFound
	}
	p.Status = status
	d.payments[paymentID] = p
	return nil
}

func (m *memStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	defer m.lock()()
	d := m.db()
	ticket.ID = d.id()
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	d.tickets[ticket.ID] = *ticket
	return nil
}

func (m *memStore) setCredential(id int64, cred string) error {
	d := m.db()
	for _, t := range d.tickets {
		if t.ID != id && t.Credential != nil && *t.Credential == cred {
			return models.ErrIntegrityViolation
		}
	}
	t, ok := d.tickets[id]
	if !ok {
		return models.ErrTicketNotFound
	}
	t.Credential = &cred
	d.tickets[id] = t
	return nil
}

func (m *memStore) SetTicketCredential(ctx context.Context, ticketID int64, cred string) error {
	defer m.lock()()
	return m.setCredential(ticketID, cred)
}

func (m *memStore) GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error) {
	defer m.lock()()
	t, ok := m.db().tickets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrTicketNotFound, id)
	}
	return &t, nil
}

func (m *memStore) LockTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	return m.GetTicketByID(ctx, id)
}

func (m *memStore) GetTicketsByOrderID(ctx context.Context, orderID int64) ([]models.Ticket, error) {
	defer m.lock()()
	var tickets []models.Ticket
	for _, t := range m.db().tickets {
		if t.OrderID == orderID {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
	return tickets, nil
}

func (m *memStore) MarkTicketCheckedIn(ctx context.Context, ticketID int64, at time.Time) (bool, error) {
	defer m.lock()()
	d := m.db()
	t, ok := d.tickets[ticketID]
	if !ok || t.CheckedInAt != nil || t.Status != models.TicketStatusConfirmed {
		return false, nil
	}
	t.CheckedInAt = &at
	t.Status = models.TicketStatusCheckedIn
	d.tickets[ticketID] = t
	return true, nil
}

func (m *memStore) UpdateTicketHolder(ctx context.Context, ticketID int64, holder models.TicketHolder, cred string) error {
	defer m.lock()()
	if err := m.setCredential(ticketID, cred); err != nil {
		return err
	}
	d := m.db()
	t := d.tickets[ticketID]
	t.HolderID = holder.HolderID
	t.AttendeeName = holder.Name
	t.AttendeeEmail = holder.Email
	t.AttendeePhone = holder.Phone
	d.tickets[ticketID] = t
	return nil
}

func (m *memStore) RefundTickets(ctx context.Context, orderID int64, ticketIDs []int64) ([]int64, error) {
	defer m.lock()()
	selected := map[int64]bool{}
	for _, id := range ticketIDs {
		selected[id] = true
	}

	d := m.db()
	var refunded []int64
	for id, t := range d.tickets {
		if t.OrderID != orderID || t.CheckedInAt != nil {
			continue
		}
		if t.Status != models.TicketStatusConfirmed && t.Status != models.TicketStatusPending {
			continue
		}
		if len(selected) > 0 && !selected[id] {
			continue
		}
		t.Status = models.TicketStatusRefunded
		d.tickets[id] = t
		refunded = append(refunded, id)
	}
	sort.Slice(refunded, func(i, j int) bool { return refunded[i] < refunded[j] })
	return refunded, nil
}

func (m *memStore) CreateRefund(ctx context.Context, refund *models.Refund) error {
	defer m.lock()()
	if m.failCreateRefund != nil {
		return m.failCreateRefund
	}
	d := m.db()
	refund.ID = d.id()
	refund.CreatedAt = time.Now()
	d.refunds[refund.ID] = *refund
	return nil
}

func (m *memStore) GetRefundsByOrderID(ctx context.Context, orderID int64) ([]models.Refund, error) {
	defer m.lock()()
	var refunds []models.Refund
	for _, r := range m.db().refunds {
		if r.OrderID == orderID {
			refunds = append(refunds, r)
		}
	}
	sort.Slice(refunds, func(i, j int) bool { return refunds[i].ID < refunds[j].ID })
	return refunds, nil
}

func (m *memStore) GetOrganizerBalance(ctx context.Context, organizerID int64, currency string) (int64, error) {
	defer m.lock()()
	d := m.db()
	currency = strings.ToLower(currency)
	owned := func(orderID int64) bool {
		o, ok := d.orders[orderID]
		return ok && d.events[o.EventID].OrganizerID == organizerID && strings.ToLower(o.Currency) == currency
	}

	var balance int64
	for _, p := range d.payments {
		if owned(p.OrderID) && strings.ToLower(p.Currency) == currency && (p.Status == models.PaymentStatusCompleted || p.Status == models.PaymentStatusRefunded) {
			balance += p.Amount
		}
	}
	for _, r := range d.refunds {
		if owned(r.OrderID) {
			balance -= r.Amount
		}
	}
	for _, p := range d.payouts {
		if p.OrganizerID == organizerID && strings.ToLower(p.Currency) == currency && p.Status != models.PayoutStatusRejected {
			balance -= p.Amount
		}
	}
	return balance, nil
}

func (m *memStore) LockOrganizerPayouts(ctx context.Context, organizerID int64) error {
	if !m.inTx {
		return errors.New("advisory lock outside transaction")
	}
	return nil
}

func (m *memStore) CreatePayout(ctx context.Context, payout *models.Payout) error {
	defer m.lock()()
	d := m.db()
	payout.ID = d.id()
	payout.CreatedAt = time.Now()
	d.payouts[payout.ID] = *payout
	return nil
}

func (m *memStore) GetPayoutsByOrganizer(ctx context.Context, organizerID int64) ([]models.Payout, error) {
	defer m.lock()()
	var payouts []models.Payout
	for _, p := range m.db().payouts {
		if p.OrganizerID == organizerID {
			payouts = append(payouts, p)
		}
	}
	sort.Slice(payouts, func(i, j int) bool { return payouts[i].ID > payouts[j].ID })
	return payouts, nil
}

func (m *memStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	defer m.lock()()
	_, ok := m.db().processed[eventID]
	return ok, nil
}

func (m *memStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	defer m.lock()()
	m.db().processed[eventID] = eventType
	return nil
}

// test helpers reading state directly

func (m *memStore) tier(id int64) models.TicketTier {
	defer m.lock()()
	return m.db().tiers[id]
}

func (m *memStore) order(id int64) models.Order {
	defer m.lock()()
	return m.db().orders[id]
}

func (m *memStore) promo(id int64) models.PromoCode {
	defer m.lock()()
	return m.db().promos[id]
}

func (m *memStore) count() (orders, payments, tickets, refunds int) {
	defer m.lock()()
	d := m.db()
	return len(d.orders), len(d.payments), len(d.tickets), len(d.refunds)
}

func (m *memStore) ticketsOf(orderID int64) []models.Ticket {
	tickets, _ := m.GetTicketsByOrderID(context.Background(), orderID)
	return tickets
}

// fakeProcessor stands in for the payment provider
type fakeProcessor struct {
	mu        sync.Mutex
	sessions  []processor.CheckoutRequest
	refunds   []processor.RefundRequest
	createErr error
	refundErr error
}

func (p *fakeProcessor) CreateCheckoutSession(ctx context.Context, req processor.CheckoutRequest) (*processor.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.sessions = append(p.sessions, req)
	id := fmt.Sprintf("cs_test_%d", len(p.sessions))
	return &processor.Session{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (p *fakeProcessor) Refund(ctx context.Context, req processor.RefundRequest) (*processor.RefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	p.refunds = append(p.refunds, req)
	return &processor.RefundResult{ID: fmt.Sprintf("re_test_%d", len(p.refunds)), Status: "succeeded"}, nil
}

// fakePublisher records published events
type fakePublisher struct {
	mu          sync.Mutex
	completed   []*models.OrderCompletedEvent
	refunded    []*models.OrderRefundedEvent
	transferred []*models.TicketTransferredEvent
	checkedIn   []*models.TicketCheckedInEvent
	onPublish   func(ctx context.Context)
	err         error
}

func (p *fakePublisher) record(ctx context.Context) {
	if p.onPublish != nil {
		p.onPublish(ctx)
	}
}

func (p *fakePublisher) PublishOrderCompleted(ctx context.Context, e *models.OrderCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	p.record(ctx)
	return p.err
}

func (p *fakePublisher) PublishOrderRefunded(ctx context.Context, e *models.OrderRefundedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunded = append(p.refunded, e)
	p.record(ctx)
	return p.err
}

func (p *fakePublisher) PublishTicketTransferred(ctx context.Context, e *models.TicketTransferredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transferred = append(p.transferred, e)
	p.record(ctx)
	return p.err
}

func (p *fakePublisher) PublishTicketCheckedIn(ctx context.Context, e *models.TicketCheckedInEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkedIn = append(p.checkedIn, e)
	p.record(ctx)
	return p.err
}

// fakeLocker is an in-process Locker
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

const (
	organizerID int64 = 100
	buyerID     int64 = 200
)

// fixture wires every service against one memStore
type fixture struct {
	repo        *memStore
	processor   *fakeProcessor
	publisher   *fakePublisher
	issuer      *credential.Issuer
	fulfillment *FulfillmentService
	checkout    *CheckoutService
	webhook     *WebhookService
	checkin     *CheckInService
	transfer    *TransferService
	refund      *RefundService
	catalog     *CatalogService
	payout      *PayoutService
	tickets     *TicketService
	now         time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newMemStore(),
		processor: &fakeProcessor{},
		publisher: &fakePublisher{},
		issuer:    credential.NewIssuer("test-signing-key"),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.fulfillment = NewFulfillmentService(f.repo, f.issuer, f.publisher)
	f.checkout = NewCheckoutService(f.repo, f.processor, f.fulfillment, &fakeLocker{}, 30*time.Minute, maxTicketsPerOrder)
	f.checkout.now = clock
	f.webhook = NewWebhookService(f.repo, f.fulfillment, nil, time.Hour)
	f.checkin = NewCheckInService(f.repo, f.issuer, f.publisher)
	f.checkin.now = clock
	f.transfer = NewTransferService(f.repo, f.issuer, f.publisher)
	f.transfer.now = clock
	f.refund = NewRefundService(f.repo, f.processor, f.publisher, &fakeLocker{})
	f.catalog = NewCatalogService(f.repo, "usd")
	f.payout = NewPayoutService(f.repo, "usd")
	f.tickets = NewTicketService(f.repo, 128)
	return f
}

func intPtr(n int) *int { return &n }

// seedEvent stores a published event starting a week after the fixture clock
const maxTicketsPerOrder = 10

func (f *fixture) seedEvent() *models.Event {
	event := &models.Event{
		OrganizerID: organizerID,
		Title:       "Spring Concert",
		Venue:       "Main Hall",
		StartsAt:    f.now.Add(7 * 24 * time.Hour),
		EndsAt:      f.now.Add(7*24*time.Hour + 3*time.Hour),
		Status:      models.EventStatusPublished,
	}
	if err := f.repo.CreateEvent(context.Background(), event); err != nil {
		panic(err)
	}
	return event
}

func (f *fixture) seedTier(eventID int64, name string, price int64, total *int) *models.TicketTier {
	return f.seedTierIn(eventID, name, price, total, "usd")
}

func (f *fixture) seedTierIn(eventID int64, name string, price int64, total *int, currency string) *models.TicketTier {
	tier := &models.TicketTier{EventID: eventID, Name: name, BasePrice: price, Currency: currency, TotalQuantity: total}
	if err := f.repo.CreateTier(context.Background(), tier); err != nil {
		panic(err)
	}
	return tier
}

// seedPendingOrder writes a pending order for quantity seats of tier
func (f *fixture) seedPendingOrder(tier *models.TicketTier, quantity int, promoID *int64) *models.Order {
	ctx := context.Background()
	order := &models.Order{
		BuyerID:      buyerID,
		EventID:      tier.EventID,
		Status:       models.OrderStatusPending,
		Subtotal:     tier.BasePrice * int64(quantity),
		TotalAmount:  tier.BasePrice * int64(quantity),
		Currency:     tier.Currency,
		PromoCodeID:  promoID,
		BillingName:  "Ada Buyer",
		BillingEmail: "ada@example.com",
	}
	if err := f.repo.CreateOrder(ctx, order); err != nil {
		panic(err)
	}
	item := &models.OrderItem{OrderID: order.ID, TierID: tier.ID, Quantity: quantity, UnitPrice: tier.BasePrice}
	if err := f.repo.CreateOrderItem(ctx, item); err != nil {
		panic(err)
	}
	return order
}

// completedOrder runs a pending order through fulfillment
func (f *fixture) completedOrder(tier *models.TicketTier, quantity int) *FulfillmentResult {
	order := f.seedPendingOrder(tier, quantity, nil)
	result, err := f.fulfillment.ConfirmPayment(context.Background(), PaymentConfirmation{
		ExternalRef: fmt.Sprintf("pi_%d", order.ID),
		OrderID:     order.ID,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
	})
	if err != nil {
		panic(err)
	}
	return result
}
