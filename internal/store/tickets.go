package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticketing-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateTicket inserts a ticket. The credential is set afterwards since it
// embeds the generated ticket id.
func (s *Store) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	query := `
		INSERT INTO tickets (order_id, event_id, tier_id, holder_id, attendee_name, attendee_email,
			attendee_phone, price_paid, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.q, ticket, query,
		ticket.OrderID, ticket.EventID, ticket.TierID, ticket.HolderID, ticket.AttendeeName,
		ticket.AttendeeEmail, ticket.AttendeePhone, ticket.PricePaid, ticket.Status)
	return mapError(err)
}

// SetTicketCredential overwrites the credential bound to a ticket
func (s *Store) SetTicketCredential(ctx context.Context, ticketID int64, credential string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE tickets SET credential = $1, updated_at = NOW() WHERE id = $2",
		credential, ticketID)
	return mapError(err)
}

// GetTicketByID retrieves a ticket by ID
func (s *Store) GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error) {
	return s.getTicket(ctx, "SELECT * FROM tickets WHERE id = $1", id)
}

// LockTicket retrieves a ticket FOR UPDATE
func (s *Store) LockTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	return s.getTicket(ctx, "SELECT * FROM tickets WHERE id = $1 FOR UPDATE", id)
}

func (s *Store) getTicket(ctx context.Context, query string, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := sqlx.GetContext(ctx, s.q, &ticket, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrTicketNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketsByOrderID retrieves all tickets of an order
func (s *Store) GetTicketsByOrderID(ctx context.Context, orderID int64) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := sqlx.SelectContext(ctx, s.q, &tickets,
		"SELECT * FROM tickets WHERE order_id = $1 ORDER BY id", orderID)
	return tickets, err
}

// MarkTicketCheckedIn is the check-in compare-and-set. It reports false when
// another scan already won or the ticket left the confirmed state.
func (s *Store) MarkTicketCheckedIn(ctx context.Context, ticketID int64, at time.Time) (bool, error) {
	n, err := s.execAffected(ctx, `
		UPDATE tickets SET status = $1, checked_in_at = $2, updated_at = NOW()
		WHERE id = $3 AND checked_in_at IS NULL AND status = $4`,
		models.TicketStatusCheckedIn, at, ticketID, models.TicketStatusConfirmed)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateTicketHolder rewrites the attendee and binds a fresh credential
func (s *Store) UpdateTicketHolder(ctx context.Context, ticketID int64, holder models.TicketHolder, credential string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE tickets SET holder_id = $1, attendee_name = $2, attendee_email = $3, attendee_phone = $4,
			credential = $5, updated_at = NOW()
		WHERE id = $6`,
		holder.HolderID, holder.Name, holder.Email, holder.Phone, credential, ticketID)
	return mapError(err)
}

// RefundTickets marks live tickets of an order refunded and returns their ids.
// An empty ticketIDs selects every ticket of the order. Checked-in tickets
// are left alone.
func (s *Store) RefundTickets(ctx context.Context, orderID int64, ticketIDs []int64) ([]int64, error) {
	query := `
		UPDATE tickets SET status = ?, updated_at = NOW()
		WHERE order_id = ? AND checked_in_at IS NULL AND status IN (?, ?)`
	args := []interface{}{models.TicketStatusRefunded, orderID,
		models.TicketStatusConfirmed, models.TicketStatusPending}

	if len(ticketIDs) > 0 {
		query += " AND id IN (?)"
		args = append(args, ticketIDs)
	}
	query += " RETURNING id"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	query = s.q.Rebind(query)

	var ids []int64
	if err := sqlx.SelectContext(ctx, s.q, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to refund tickets: %w", err)
	}
	return ids, nil
}
