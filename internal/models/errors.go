package models

import (
	"errors"
	"fmt"
)

// Validation and lookup errors
var (
	ErrEventNotFound     = errors.New("event not found")
	ErrTierNotFound      = errors.New("tier not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrPromoCodeNotFound = errors.New("promo code not found")
	ErrInvalidQuantity   = errors.New("invalid ticket quantity")
	ErrInvalidInput      = errors.New("invalid input")
	ErrMixedCurrency     = errors.New("tiers in one order must share a currency")
	ErrForbidden         = errors.New("forbidden")
)

// Business-rule conflicts
var (
	ErrSoldOut             = errors.New("sold out")
	ErrTierNotOnSale       = errors.New("tier is not on sale")
	ErrEventNotOnSale      = errors.New("event is not on sale")
	ErrInvalidPromoCode    = errors.New("invalid promo code")
	ErrOrderNotPayable     = errors.New("order is not awaiting payment")
	ErrWrongEvent          = errors.New("ticket does not belong to this event")
	ErrNotTransferable     = errors.New("ticket is not transferable")
	ErrEventPassed         = errors.New("event has already started")
	ErrAlreadyCheckedIn    = errors.New("ticket already checked in")
	ErrNotOwner            = errors.New("requester does not own this ticket")
	ErrNotRefundable       = errors.New("order is not refundable")
	ErrRefundExceedsTotal  = errors.New("refund exceeds order total")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTicketStatus = errors.New("ticket status does not admit entry")
	ErrInvalidCredential   = errors.New("credential is not valid")
	ErrRequestInProgress   = errors.New("another request for this resource is in progress")
)

// External and integrity failures
var (
	ErrPaymentProcessor   = errors.New("payment processor error")
	ErrRefundProcessor    = errors.New("refund processor error")
	ErrIntegrityViolation = errors.New("integrity violation")
	ErrDeliveryInFlight   = errors.New("webhook delivery is being processed")
)

// TierNotFoundError names the tier that is missing from the event
type TierNotFoundError struct {
	TierID int64
}

func (e *TierNotFoundError) Error() string {
	return fmt.Sprintf("tier %d not found for event", e.TierID)
}

func (e *TierNotFoundError) Unwrap() error { return ErrTierNotFound }

// SoldOutError names the tier that cannot cover the requested quantity
type SoldOutError struct {
	TierID    int64
	TierName  string
	Remaining int
}

func (e *SoldOutError) Error() string {
	return fmt.Sprintf("tier %q (%d) sold out: %d remaining", e.TierName, e.TierID, e.Remaining)
}

func (e *SoldOutError) Unwrap() error { return ErrSoldOut }

// TicketStatusError is returned when a scanned ticket is in an absorbing state
type TicketStatusError struct {
	Status TicketStatus
}

func (e *TicketStatusError) Error() string {
	return fmt.Sprintf("ticket is %s", e.Status)
}

func (e *TicketStatusError) Unwrap() error { return ErrInvalidTicketStatus }

// ProcessorError wraps a failed call to the payment processor
type ProcessorError struct {
	Op  string
	Err error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessorError) Is(target error) bool { return target == ErrPaymentProcessor }

func (e *ProcessorError) Unwrap() error { return e.Err }
