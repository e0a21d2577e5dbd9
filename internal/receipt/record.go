// Package receipt holds the immutable record of a completed purchase along
// with its confirmation codes, document rendering and storage.
package receipt

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/express-checkout/internal/cart"
	"github.com/noah-isme/express-checkout/internal/money"
	"github.com/noah-isme/express-checkout/internal/shipping"
)

// DateLayout renders purchase times as a medium date with a short time.
const DateLayout = "Jan 2, 2006 at 3:04 PM"

// Record is created once per succeeded payment and never mutated. Owner is
// the session that paid; lookups from any other session miss.
type Record struct {
	ID               uuid.UUID            `json:"id"`
	Owner            string               `json:"owner,omitempty"`
	ConfirmationCode string               `json:"confirmationCode"`
	Items            []cart.LineItem      `json:"items"`
	Subtotal         decimal.Decimal      `json:"subtotal"`
	Tax              decimal.Decimal      `json:"tax"`
	Total            decimal.Decimal      `json:"total"`
	Shipping         shipping.Destination `json:"shipping"`
	PurchasedAt      time.Time            `json:"purchasedAt"`
}

// FormattedDate returns PurchasedAt in DateLayout.
func (r Record) FormattedDate() string {
	return r.PurchasedAt.Format(DateLayout)
}

// UnitCount sums the purchased quantities.
func (r Record) UnitCount() int {
	n := 0
	for _, it := range r.Items {
		n += it.Quantity
	}
	return n
}

// RowKind tags the payload of a RowValue.
type RowKind int

const (
	RowAmount RowKind = iota
	RowText
)

// RowValue is either a monetary amount or a literal label such as "Free".
type RowValue struct {
	Kind   RowKind
	Amount decimal.Decimal
	Text   string
}

// Amount wraps a monetary row value.
func Amount(d decimal.Decimal) RowValue { return RowValue{Kind: RowAmount, Amount: d} }

// Text wraps a literal row value.
func Text(s string) RowValue { return RowValue{Kind: RowText, Text: s} }

// Format renders the value with f when it is an amount.
func (v RowValue) Format(f money.Formatter) string {
	if v.Kind == RowText {
		return v.Text
	}
	return f.Format(v.Amount)
}

// SummaryRow is one labelled line in the totals block of a receipt.
type SummaryRow struct {
	Label string
	Value RowValue
}

// SummaryRows returns Subtotal, Tax, Shipping and Total in display order.
// Shipping is always free.
func (r Record) SummaryRows() []SummaryRow {
	return []SummaryRow{
		{Label: "Subtotal", Value: Amount(r.Subtotal)},
		{Label: "Tax", Value: Amount(r.Tax)},
		{Label: "Shipping", Value: Text("Free")},
		{Label: "Total", Value: Amount(r.Total)},
	}
}
