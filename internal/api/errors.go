package api

import (
	"errors"
	"net/http"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// checked in order; the first match wins
var errorMappings = []errorMapping{
	{models.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{models.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{models.ErrMixedCurrency, http.StatusBadRequest, "mixed_currency"},
	{models.ErrInvalidCredential, http.StatusBadRequest, "invalid_credential"},

	{models.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
	{models.ErrTierNotFound, http.StatusNotFound, "tier_not_found"},
	{models.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{models.ErrTicketNotFound, http.StatusNotFound, "ticket_not_found"},
	{models.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{models.ErrPromoCodeNotFound, http.StatusNotFound, "promo_code_not_found"},

	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
	{models.ErrNotOwner, http.StatusForbidden, "not_owner"},

	{models.ErrSoldOut, http.StatusConflict, "sold_out"},
	{models.ErrTierNotOnSale, http.StatusConflict, "tier_not_on_sale"},
	{models.ErrEventNotOnSale, http.StatusConflict, "event_not_on_sale"},
	{models.ErrInvalidPromoCode, http.StatusConflict, "invalid_promo_code"},
	{models.ErrOrderNotPayable, http.StatusConflict, "order_not_payable"},
	{models.ErrWrongEvent, http.StatusConflict, "wrong_event"},
	{models.ErrNotTransferable, http.StatusConflict, "not_transferable"},
	{models.ErrEventPassed, http.StatusConflict, "event_passed"},
	{models.ErrAlreadyCheckedIn, http.StatusConflict, "already_checked_in"},
	{models.ErrInvalidTicketStatus, http.StatusConflict, "invalid_ticket_status"},
	{models.ErrNotRefundable, http.StatusConflict, "not_refundable"},
	{models.ErrRefundExceedsTotal, http.StatusConflict, "refund_exceeds_total"},
	{models.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
	{models.ErrRequestInProgress, http.StatusConflict, "request_in_progress"},

	{models.ErrRefundProcessor, http.StatusBadGateway, "refund_processor_error"},
	{models.ErrPaymentProcessor, http.StatusBadGateway, "payment_processor_error"},
}

// respondError writes the status and machine-readable code for err
func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			body := gin.H{"error": err.Error(), "code": m.code}
			var soldOut *models.SoldOutError
			if errors.As(err, &soldOut) {
				body["tier_id"] = soldOut.TierID
				body["remaining"] = soldOut.Remaining
			}
			var status *models.TicketStatusError
			if errors.As(err, &status) {
				body["ticket_status"] = status.Status
			}
			c.JSON(m.status, body)
			return
		}
	}

	util.GetLogger().Error("Unhandled request error",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
		"code":  "internal",
	})
}

func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"error": message, "code": "invalid_input"}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
