package receipt

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/noah-isme/express-checkout/internal/money"
)

// Renderer writes a receipt document.
type Renderer interface {
	Render(w io.Writer, r Record) error
	ContentType() string
}

// TextRenderer lays a receipt out as a plain-text document.
type TextRenderer struct {
	Formatter money.Formatter
}

func (TextRenderer) ContentType() string { return "text/plain; charset=utf-8" }

// Render writes the title, confirmation, date, shipping address, the item
// table, the totals block and a closing line.
func (t TextRenderer) Render(w io.Writer, r Record) error {
	f := t.Formatter
	if f.Currency() == "" {
		f = money.DefaultFormatter()
	}
	var b strings.Builder
	b.WriteString("Receipt\n\n")
	fmt.Fprintf(&b, "Confirmation #: %s\n", r.ConfirmationCode)
	fmt.Fprintf(&b, "Date: %s\n\n", r.FormattedDate())
	b.WriteString("Shipping Address\n")
	if addr := r.Shipping.FormattedAddress(); addr != "" {
		b.WriteString(addr)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Item\tQty\tPrice\tTotal\t")
	for _, it := range r.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			it.Product.Name, strconv.Itoa(it.Quantity), f.Format(it.Product.Price), f.Format(it.Subtotal()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	b.WriteString("\n")

	tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, row := range r.SummaryRows() {
		fmt.Fprintf(tw, "%s\t%s\t\n", row.Label, row.Value.Format(f))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	b.WriteString("\nThank you for your purchase!\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// JSONRenderer writes the record as indented JSON.
type JSONRenderer struct{}

func (JSONRenderer) ContentType() string { return "application/json" }

func (JSONRenderer) Render(w io.Writer, r Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
