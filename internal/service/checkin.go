package service

import (
	"context"
	"fmt"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// ScanResult is what door staff see after a scan. A repeat scan is not an
// error: AlreadyScanned is set with the original check-in time.
type ScanResult struct {
	Valid          bool      `json:"valid"`
	AlreadyScanned bool      `json:"already_scanned,omitempty"`
	TicketID       int64     `json:"ticket_id"`
	TierID         int64     `json:"tier_id"`
	AttendeeName   string    `json:"attendee_name"`
	CheckedInAt    time.Time `json:"checked_in_at"`
}

// CheckInService validates scanned credentials at the venue
type CheckInService struct {
	repo      store.Repository
	issuer    CredentialIssuer
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewCheckInService creates a new check-in service
func NewCheckInService(repo store.Repository, issuer CredentialIssuer, publisher EventPublisher) *CheckInService {
	return &CheckInService{
		repo:      repo,
		issuer:    issuer,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Scan moves the ticket behind token from confirmed to checked in, exactly once
func (s *CheckInService) Scan(ctx context.Context, scannerID, eventID int64, token string) (*ScanResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckInService.Scan")
	defer span.End()

	claims, err := s.issuer.Parse(token)
	if err != nil {
		util.CheckInsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCredential, err)
	}

	ticket, err := s.repo.GetTicketByID(ctx, claims.TicketID)
	if err != nil {
		util.CheckInsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	// a transfer overwrites the stored credential; older tokens stop validating
	if ticket.Credential == nil || *ticket.Credential != token {
		util.CheckInsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: superseded", models.ErrInvalidCredential)
	}

	if ticket.EventID != eventID {
		util.CheckInsTotal.WithLabelValues("wrong_event").Inc()
		return nil, models.ErrWrongEvent
	}
	event, err := s.repo.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != scannerID {
		util.CheckInsTotal.WithLabelValues("wrong_event").Inc()
		return nil, models.ErrWrongEvent
	}

	if ticket.CheckedInAt != nil {
		return s.alreadyScanned(ticket), nil
	}
	if ticket.Status != models.TicketStatusConfirmed {
		util.CheckInsTotal.WithLabelValues(string(ticket.Status)).Inc()
		return nil, &models.TicketStatusError{Status: ticket.Status}
	}

	at := nowUTC(s.now)
	won, err := s.repo.MarkTicketCheckedIn(ctx, ticket.ID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to check in ticket: %w", err)
	}
	if !won {
		// lost the race; report whatever the winner wrote
		current, err := s.repo.GetTicketByID(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
		if current.CheckedInAt == nil {
			util.CheckInsTotal.WithLabelValues(string(current.Status)).Inc()
			return nil, &models.TicketStatusError{Status: current.Status}
		}
		return s.alreadyScanned(current), nil
	}

	util.CheckInsTotal.WithLabelValues("valid").Inc()
	s.logger.Info("Ticket checked in",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("event_id", eventID),
		zap.Int64("scanner_id", scannerID))

	pubCtx, cancel := publishContext(ctx)
	defer cancel()
	if err := s.publisher.PublishTicketCheckedIn(pubCtx, &models.TicketCheckedInEvent{
		TicketID:        ticket.ID,
		TicketedEventID: ticket.EventID,
		ScannerID:       scannerID,
		CheckedInAt:     at,
	}); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(models.EventTypeTicketCheckedIn).Inc()
		s.logger.Warn("Failed to publish ticket.checked_in", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}

	return &ScanResult{
		Valid:        true,
		TicketID:     ticket.ID,
		TierID:       ticket.TierID,
		AttendeeName: ticket.AttendeeName,
		CheckedInAt:  at,
	}, nil
}

func (s *CheckInService) alreadyScanned(ticket *models.Ticket) *ScanResult {
	util.CheckInsTotal.WithLabelValues("already_scanned").Inc()
	return &ScanResult{
		AlreadyScanned: true,
		TicketID:       ticket.ID,
		TierID:         ticket.TierID,
		AttendeeName:   ticket.AttendeeName,
		CheckedInAt:    ticket.CheckedInAt.UTC(),
	}
}
