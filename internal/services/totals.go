package service

import (
	"github.com/aaravmahajanofficial/storefront-cart/internal/config"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/shopspring/decimal"
)

type TaxCalculator interface {
	CalculateTax(subtotal decimal.Decimal) decimal.Decimal
}

type ShippingCalculator interface {
	CalculateShipping(subtotal decimal.Decimal) decimal.Decimal
}

// PercentageTax applies one flat rate to the subtotal, rounded to cents.
type PercentageTax struct {
	Rate decimal.Decimal
}

func (t PercentageTax) CalculateTax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(t.Rate).Round(2)
}

// FlatRateShipping charges Fee below FreeThreshold and nothing at or above
// it. An empty cart ships for free.
type FlatRateShipping struct {
	FreeThreshold decimal.Decimal
	Fee           decimal.Decimal
}

func (s FlatRateShipping) CalculateShipping(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || subtotal.GreaterThanOrEqual(s.FreeThreshold) {
		return decimal.Zero
	}

	return s.Fee
}

type TotalsCalculator struct {
	Tax      TaxCalculator
	Shipping ShippingCalculator
}

func NewTotalsCalculator(cfg *config.Cart) *TotalsCalculator {
	return &TotalsCalculator{
		Tax: PercentageTax{Rate: decimal.NewFromFloat(cfg.TaxRate)},
		Shipping: FlatRateShipping{
			FreeThreshold: decimal.NewFromFloat(cfg.FreeShippingThreshold),
			Fee:           decimal.NewFromFloat(cfg.FlatShippingFee),
		},
	}
}

// Apply recomputes every derived amount on cart from its items. Discounts are
// carried through unchanged.
func (t *TotalsCalculator) Apply(cart *models.Cart) {

	subtotal := decimal.Zero
	for _, item := range cart.Items {
		subtotal = subtotal.Add(item.Total)
	}

	cart.Subtotal = subtotal
	cart.TaxAmount = t.Tax.CalculateTax(subtotal)
	cart.ShippingAmount = t.Shipping.CalculateShipping(subtotal)
	cart.Total = subtotal.Add(cart.TaxAmount).Add(cart.ShippingAmount).Sub(cart.DiscountAmount)
}
