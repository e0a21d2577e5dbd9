package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/express-checkout/internal/money"
)

// DefaultRate is the Los Angeles, CA sales tax rate (9.5%).
var DefaultRate = decimal.RequireFromString("0.095")

// Calculator computes tax and tax-inclusive totals for a subtotal.
type Calculator interface {
	Tax(subtotal decimal.Decimal) decimal.Decimal
	Total(subtotal decimal.Decimal) decimal.Decimal
}

// RateCalculator applies a flat tax rate.
type RateCalculator struct {
	rate decimal.Decimal
}

// NewRateCalculator returns a calculator for the given rate (0.095 == 9.5%).
func NewRateCalculator(rate decimal.Decimal) RateCalculator {
	return RateCalculator{rate: rate}
}

// DefaultCalculator uses DefaultRate.
func DefaultCalculator() RateCalculator {
	return NewRateCalculator(DefaultRate)
}

// Rate returns the configured rate.
func (c RateCalculator) Rate() decimal.Decimal { return c.rate }

// Tax returns subtotal*rate rounded to cents.
func (c RateCalculator) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return money.Round2(subtotal.Mul(c.rate))
}

// Total adds the already rounded tax to subtotal and rounds again. This is
// not the same as rounding subtotal*(1+rate) once.
func (c RateCalculator) Total(subtotal decimal.Decimal) decimal.Decimal {
	return money.Round2(subtotal.Add(c.Tax(subtotal)))
}

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Zero is the summary of an empty cart.
func Zero() Summary {
	return Summary{Subtotal: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero}
}

// Compute calculates cart totals given the provided items.
func Compute(items []Item, calc Calculator) Summary {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	subtotal = money.Round2(subtotal)
	if calc == nil {
		return Summary{Subtotal: subtotal, Tax: decimal.Zero, Total: subtotal}
	}
	return Summary{
		Subtotal: subtotal,
		Tax:      calc.Tax(subtotal),
		Total:    calc.Total(subtotal),
	}
}
