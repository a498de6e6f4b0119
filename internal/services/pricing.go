package services

import (
	"github.com/shopspring/decimal"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/utils"
)

// Pricing computes cart and booking totals for a platform fee rate
type Pricing struct {
	feeRate decimal.Decimal
}

// NewPricing creates a pricing policy; 0.05 is a 5% platform fee
func NewPricing(feeRate decimal.Decimal) Pricing {
	return Pricing{feeRate: feeRate}
}

// FromSubtotal derives the fee and total from a subtotal
func (p Pricing) FromSubtotal(subtotal decimal.Decimal) models.Totals {
	subtotal = utils.RoundMoney(subtotal)
	fee := utils.RoundMoney(subtotal.Mul(p.feeRate))
	return models.Totals{
		Subtotal:    subtotal,
		PlatformFee: fee,
		Total:       subtotal.Add(fee),
	}
}

// CartTotals sums the captured unit prices of items whose listing still
// exists. Dangling items contribute zero.
func (p Pricing) CartTotals(items []models.CartItem) models.Totals {
	subtotal := decimal.Zero
	for i := range items {
		if items[i].Resolved() {
			subtotal = subtotal.Add(items[i].LineTotal())
		}
	}
	return p.FromSubtotal(subtotal)
}
