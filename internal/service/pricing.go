package service

import (
	"fmt"
	"strings"
	"time"

	"ticketing-service/internal/models"
)

// MaxLineQuantity caps a single line; keep the binding tag in step
const MaxLineQuantity = 100

// LineRequest asks for a quantity of one tier
type LineRequest struct {
	TierID   int64 `json:"tier_id" binding:"required"`
	Quantity int   `json:"quantity" binding:"required,min=1,max=100"`
}

// QuoteLine is a priced line of a quote
type QuoteLine struct {
	TierID    int64  `json:"tier_id"`
	TierName  string `json:"tier_name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// Quote is the priced result for a set of lines and an optional promo code
type Quote struct {
	Lines       []QuoteLine `json:"lines"`
	Subtotal    int64       `json:"subtotal"`
	Discount    int64       `json:"discount"`
	Total       int64       `json:"total"`
	Currency    string      `json:"currency"`
	PromoCodeID *int64      `json:"promo_code_id,omitempty"`
}

// CalculateQuote prices lines against the event's tiers. It has no side
// effects: the same inputs always produce the same quote. Lines naming the
// same tier are merged. maxTickets caps the whole order; zero leaves only the
// per-line cap.
func CalculateQuote(lines []LineRequest, tiers []models.TicketTier, promo *models.PromoCode, now time.Time, maxTickets int) (*Quote, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no lines requested", models.ErrInvalidInput)
	}

	byID := tiersByID(tiers)
	quote := &Quote{}
	index := make(map[int64]int, len(lines))
	total := 0

	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, models.ErrInvalidQuantity
		}
		if line.Quantity > MaxLineQuantity {
			return nil, fmt.Errorf("%w: at most %d per line", models.ErrInvalidQuantity, MaxLineQuantity)
		}
		total += line.Quantity
		if maxTickets > 0 && total > maxTickets {
			return nil, fmt.Errorf("%w: at most %d tickets per order", models.ErrInvalidQuantity, maxTickets)
		}

		tier, ok := byID[line.TierID]
		if !ok {
			return nil, &models.TierNotFoundError{TierID: line.TierID}
		}

		currency := strings.ToLower(tier.Currency)
		if quote.Currency == "" {
			quote.Currency = currency
		} else if quote.Currency != currency {
			return nil, models.ErrMixedCurrency
		}

		lineTotal := tier.BasePrice * int64(line.Quantity)
		quote.Subtotal += lineTotal

		if i, seen := index[tier.ID]; seen {
			quote.Lines[i].Quantity += line.Quantity
			quote.Lines[i].LineTotal += lineTotal
			continue
		}
		index[tier.ID] = len(quote.Lines)
		quote.Lines = append(quote.Lines, QuoteLine{
			TierID:    tier.ID,
			TierName:  tier.Name,
			Quantity:  line.Quantity,
			UnitPrice: tier.BasePrice,
			LineTotal: lineTotal,
		})
	}

	if promo != nil {
		eventID := byID[quote.Lines[0].TierID].EventID
		if err := ValidatePromoCode(promo, eventID, now); err != nil {
			return nil, err
		}
		quote.Discount = discountFor(promo, quote.Subtotal)
		quote.PromoCodeID = &promo.ID
	}

	quote.Total = quote.Subtotal - quote.Discount
	return quote, nil
}

// ValidatePromoCode checks a code can be applied to an order for eventID at now
func ValidatePromoCode(promo *models.PromoCode, eventID int64, now time.Time) error {
	switch {
	case !promo.Active:
		return fmt.Errorf("%w: inactive", models.ErrInvalidPromoCode)
	case promo.EventID != eventID:
		return fmt.Errorf("%w: not valid for this event", models.ErrInvalidPromoCode)
	case promo.ValidFrom != nil && now.Before(*promo.ValidFrom):
		return fmt.Errorf("%w: not yet valid", models.ErrInvalidPromoCode)
	case promo.ValidTo != nil && now.After(*promo.ValidTo):
		return fmt.Errorf("%w: expired", models.ErrInvalidPromoCode)
	case promo.Exhausted():
		return fmt.Errorf("%w: usage limit reached", models.ErrInvalidPromoCode)
	}
	return nil
}

// discountFor floors percentage discounts and caps every discount at the subtotal
func discountFor(promo *models.PromoCode, subtotal int64) int64 {
	var discount int64
	switch promo.DiscountType {
	case models.DiscountPercentage:
		discount = subtotal * promo.DiscountValue / 100
	case models.DiscountFixed:
		discount = promo.DiscountValue
	}

	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}
