package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"ticketing-service/internal/credential"
	"ticketing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuedTicket(t *testing.T, f *fixture) (*models.Event, models.Ticket) {
	t.Helper()
	event := f.seedEvent()
	tier := f.seedTier(event.ID, "GA", 2500, intPtr(50))
	result := f.completedOrder(tier, 1)
	require.Len(t, result.Tickets, 1)
	return event, result.Tickets[0]
}

func TestScanChecksInOnce(t *testing.T) {
	f := newFixture()
	event, ticket := issuedTicket(t, f)

	first, err := f.checkin.Scan(context.Background(), organizerID, event.ID, *ticket.Credential)
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.False(t, first.AlreadyScanned)
	assert.Equal(t, ticket.ID, first.TicketID)
	assert.Equal(t, f.now, first.CheckedInAt)

	f.now = f.now.Add(10 * time.Minute)
	second, err := f.checkin.Scan(context.Background(), organizerID, event.ID, *ticket.Credential)
	require.NoError(t, err)
	assert.False(t, second.Valid)
	assert.True(t, second.AlreadyScanned)
	assert.Equal(t, first.CheckedInAt, second.CheckedInAt)

	stored, err := f.repo.GetTicketByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCheckedIn, stored.Status)
	assert.Len(t, f.publisher.checkedIn, 1)
}

func TestScanReportsStoredCheckInInUTC(t *testing.T) {
	f := newFixture()
	event, ticket := issuedTicket(t, f)

	// drivers hand back timestamptz in the session zone
	tokyo := time.FixedZone("JST", 9*60*60)
	at := f.now.Add(-5 * time.Minute).In(tokyo)
	won, err := f.repo.MarkTicketCheckedIn(context.Background(), ticket.ID, at)
	require.NoError(t, err)
	require.True(t, won)

	result, err := f.checkin.Scan(context.Background(), organizerID, event.ID, *ticket.Credential)
	require.NoError(t, err)
	assert.True(t, result.AlreadyScanned)
	assert.Equal(t, time.UTC, result.CheckedInAt.Location())
	assert.True(t, at.Equal(result.CheckedInAt))
}

func TestScanPublishesAfterCallerCancels(t *testing.T) {
	f := newFixture()
	event, ticket := issuedTicket(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var pubErr error
	var deadline time.Time
	f.publisher.onPublish = func(pubCtx context.Context) {
		cancel()
		pubErr = pubCtx.Err()
		deadline, _ = pubCtx.Deadline()
	}

	result, err := f.checkin.Scan(ctx, organizerID, event.ID, *ticket.Credential)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.NoError(t, pubErr)
	assert.WithinDuration(t, time.Now().Add(publishTimeout), deadline, publishTimeout)
	assert.Len(t, f.publisher.checkedIn, 1)
}

func TestScanConcurrentExactlyOnce(t *testing.T) {
	f := newFixture()
	event, ticket := issuedTicket(t, f)

	const scanners = 2
	results := make([]*ScanResult, scanners)
	errs := make([]error, scanners)

	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.checkin.Scan(context.Background(), organizerID, event.ID, *ticket.Credential)
		}(i)
	}
	wg.Wait()

	valid, repeat := 0, 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Valid {
			valid++
		}
		if results[i].AlreadyScanned {
			repeat++
		}
	}
	assert.Equal(t, 1, valid)
	assert.Equal(t, 1, repeat)
	assert.Equal(t, results[0].CheckedInAt, results[1].CheckedInAt)
}

func TestScanRejectsWrongEvent(t *testing.T) {
	f := newFixture()
	_, ticket := issuedTicket(t, f)
	other := f.seedEvent()

	_, err := f.checkin.Scan(context.Background(), organizerID, other.ID, *ticket.Credential)
	assert.ErrorIs(t, err, models.ErrWrongEvent)
}

func TestScanRejectsOtherOrganizer(t *testing.T) {
	f := newFixture()
	event, ticket := issuedTicket(t, f)

	_, err := f.checkin.Scan(context.Background(), organizerID+1, event.ID, *ticket.Credential)
	assert.ErrorIs(t, err, models.ErrWrongEvent)
}

func TestScanRejectsRefundedTicket(t *testing.T) {
	f := newFixture()
	event, ticket := issuedTicket(t, f)
	_, err := f.repo.RefundTickets(context.Background(), ticket.OrderID, nil)
	require.NoError(t, err)

	_, err = f.checkin.Scan(context.Background(), organizerID, event.ID, *ticket.Credential)
	var statusErr *models.TicketStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, models.TicketStatusRefunded, statusErr.Status)
}

func TestScanRejectsForgedAndSupersededCredentials(t *testing.T) {
	f := newFixture()
	event, ticket := issuedTicket(t, f)

	forged, err := credential.NewIssuer("someone-else").Issue(ticket.ID, event.ID, ticket.OrderID, ticket.TierID)
	require.NoError(t, err)
	_, err = f.checkin.Scan(context.Background(), organizerID, event.ID, forged)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)

	// validly signed but not the stored credential
	stale, err := f.issuer.Issue(ticket.ID, event.ID, ticket.OrderID, ticket.TierID)
	require.NoError(t, err)
	_, err = f.checkin.Scan(context.Background(), organizerID, event.ID, stale)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)

	_, err = f.checkin.Scan(context.Background(), organizerID, event.ID, "garbage")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}
