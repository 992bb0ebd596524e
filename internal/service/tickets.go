package service

import (
	"context"

	"ticketing-service/internal/credential"
	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"
)

// TicketService serves ticket credentials to their owners
type TicketService struct {
	repo   store.Repository
	qrSize int
}

// NewTicketService creates a new ticket service
func NewTicketService(repo store.Repository, qrSize int) *TicketService {
	return &TicketService{repo: repo, qrSize: qrSize}
}

// QRCode renders the live credential of a ticket as a PNG. Only the order's
// buyer or the ticket's holder may fetch it.
func (s *TicketService) QRCode(ctx context.Context, requesterID, ticketID int64) ([]byte, error) {
	ctx, span := util.StartSpan(ctx, "TicketService.QRCode")
	defer span.End()

	ticket, err := s.repo.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.HolderID != requesterID {
		order, err := s.repo.GetOrderByID(ctx, ticket.OrderID)
		if err != nil {
			return nil, err
		}
		if order.BuyerID != requesterID {
			return nil, models.ErrForbidden
		}
	}
	if ticket.Credential == nil || ticket.Status != models.TicketStatusConfirmed {
		return nil, &models.TicketStatusError{Status: ticket.Status}
	}

	return credential.RenderQR(*ticket.Credential, s.qrSize)
}
