package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// TransferService hands a ticket to a new attendee
type TransferService struct {
	repo      store.Repository
	issuer    CredentialIssuer
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewTransferService creates a new transfer service
func NewTransferService(repo store.Repository, issuer CredentialIssuer, publisher EventPublisher) *TransferService {
	return &TransferService{
		repo:      repo,
		issuer:    issuer,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Transfer rewrites the attendee on a ticket and re-issues its credential.
// The previous credential stops validating. Order and payment are untouched.
func (s *TransferService) Transfer(ctx context.Context, requesterID, ticketID int64, holder models.TicketHolder) (*models.Ticket, error) {
	ctx, span := util.StartSpan(ctx, "TransferService.Transfer")
	defer span.End()

	holder.Name = strings.TrimSpace(holder.Name)
	holder.Email = strings.TrimSpace(holder.Email)
	if holder.Name == "" || holder.Email == "" {
		return nil, fmt.Errorf("%w: new holder name and email are required", models.ErrInvalidInput)
	}

	var (
		ticket        *models.Ticket
		event         *models.Event
		previousEmail string
	)

	err := s.repo.RunInTx(ctx, func(tx store.Repository) error {
		var err error
		ticket, err = tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}

		order, err := tx.GetOrderByID(ctx, ticket.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != requesterID {
			return models.ErrNotOwner
		}
		if ticket.CheckedInAt != nil {
			return models.ErrAlreadyCheckedIn
		}
		if ticket.Status != models.TicketStatusConfirmed {
			return fmt.Errorf("%w: ticket is %s", models.ErrNotTransferable, ticket.Status)
		}

		event, err = tx.GetEventByID(ctx, ticket.EventID)
		if err != nil {
			return err
		}
		if !s.now().Before(event.StartsAt) {
			return models.ErrEventPassed
		}

		if holder.HolderID == 0 {
			holder.HolderID = ticket.HolderID
		}
		cred, err := s.issuer.Issue(ticket.ID, ticket.EventID, ticket.OrderID, ticket.TierID)
		if err != nil {
			return fmt.Errorf("failed to issue credential: %w", err)
		}
		if err := tx.UpdateTicketHolder(ctx, ticket.ID, holder, cred); err != nil {
			return fmt.Errorf("failed to update ticket holder: %w", err)
		}

		previousEmail = ticket.AttendeeEmail
		ticket.HolderID = holder.HolderID
		ticket.AttendeeName = holder.Name
		ticket.AttendeeEmail = holder.Email
		ticket.AttendeePhone = holder.Phone
		ticket.Credential = &cred
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.TransfersTotal.Inc()
	s.logger.Info("Ticket transferred",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("order_id", ticket.OrderID),
		zap.Int64("holder_id", ticket.HolderID))

	pubCtx, cancel := publishContext(ctx)
	defer cancel()
	if err := s.publisher.PublishTicketTransferred(pubCtx, &models.TicketTransferredEvent{
		TicketDelivery: delivery(ticket),
		OrderID:        ticket.OrderID,
		PreviousEmail:  previousEmail,
		EventTitle:     event.Title,
	}); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(models.EventTypeTicketTransferred).Inc()
		s.logger.Warn("Failed to publish ticket.transferred, new holder will not be notified",
			zap.Int64("ticket_id", ticket.ID),
			zap.Error(err))
	}

	return ticket, nil
}
