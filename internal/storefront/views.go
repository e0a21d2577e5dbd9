package storefront

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/express-checkout/internal/cart"
	"github.com/noah-isme/express-checkout/internal/checkout"
	"github.com/noah-isme/express-checkout/internal/money"
	"github.com/noah-isme/express-checkout/internal/payment"
	"github.com/noah-isme/express-checkout/internal/pricing"
	"github.com/noah-isme/express-checkout/internal/receipt"
)

type lineView struct {
	cart.LineItem
	Subtotal          decimal.Decimal `json:"subtotal"`
	FormattedSubtotal string          `json:"formattedSubtotal"`
}

type totalsView struct {
	pricing.Summary
	FormattedSubtotal string `json:"formattedSubtotal"`
	FormattedTax      string `json:"formattedTax"`
	FormattedTotal    string `json:"formattedTotal"`
}

type cartView struct {
	Items    []lineView `json:"items"`
	Units    int        `json:"units"`
	Totals   totalsView `json:"totals"`
	PayLater string     `json:"payLater,omitempty"`
}

type rowView struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type receiptView struct {
	receipt.Record
	FormattedDate    string    `json:"formattedDate"`
	FormattedAddress string    `json:"formattedAddress"`
	Units            int       `json:"units"`
	Rows             []rowView `json:"rows"`
}

type checkoutView struct {
	Processing       bool             `json:"processing"`
	Outcome          checkout.Outcome `json:"outcome"`
	Totals           totalsView       `json:"totals"`
	PaymentAvailable bool             `json:"paymentAvailable"`
	Request          *payment.Request `json:"request,omitempty"`
	Receipt          *receiptView     `json:"receipt,omitempty"`
}

func newTotalsView(s pricing.Summary, f money.Formatter) totalsView {
	return totalsView{
		Summary:           s,
		FormattedSubtotal: f.Format(s.Subtotal),
		FormattedTax:      f.Format(s.Tax),
		FormattedTotal:    f.Format(s.Total),
	}
}

func newCartView(snap checkout.Snapshot, f money.Formatter) cartView {
	lines := make([]lineView, 0, len(snap.Items))
	for _, it := range snap.Items {
		sub := it.Subtotal()
		lines = append(lines, lineView{LineItem: it, Subtotal: sub, FormattedSubtotal: f.Format(sub)})
	}
	return cartView{
		Items:  lines,
		Units:  cart.State{Items: snap.Items}.TotalUnits(),
		Totals: newTotalsView(snap.Totals, f),
	}
}

func newReceiptView(r receipt.Record, f money.Formatter) *receiptView {
	rows := make([]rowView, 0, 4)
	for _, row := range r.SummaryRows() {
		rows = append(rows, rowView{Label: row.Label, Value: row.Value.Format(f)})
	}
	return &receiptView{
		Record:           r,
		FormattedDate:    r.FormattedDate(),
		FormattedAddress: r.Shipping.FormattedAddress(),
		Units:            r.UnitCount(),
		Rows:             rows,
	}
}
