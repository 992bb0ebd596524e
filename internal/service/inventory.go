package service

import (
	"time"

	"ticketing-service/internal/models"
)

// CheckInventory passes when the tier can still cover requested seats.
// Outside a transaction holding the tier lock this is advisory only.
func CheckInventory(tier *models.TicketTier, requested int) error {
	if requested < 1 {
		return models.ErrInvalidQuantity
	}
	if tier.Unlimited() {
		return nil
	}
	if tier.SoldQuantity+requested > *tier.TotalQuantity {
		return &models.SoldOutError{
			TierID:    tier.ID,
			TierName:  tier.Name,
			Remaining: tier.Remaining(),
		}
	}
	return nil
}

// CheckSaleWindow passes when now falls inside the tier's sale window
func CheckSaleWindow(tier *models.TicketTier, now time.Time) error {
	if tier.SaleStartsAt != nil && now.Before(*tier.SaleStartsAt) {
		return models.ErrTierNotOnSale
	}
	if tier.SaleEndsAt != nil && now.After(*tier.SaleEndsAt) {
		return models.ErrTierNotOnSale
	}
	return nil
}

func tiersByID(tiers []models.TicketTier) map[int64]*models.TicketTier {
	m := make(map[int64]*models.TicketTier, len(tiers))
	for i := range tiers {
		m[tiers[i].ID] = &tiers[i]
	}
	return m
}
