package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Places is the number of fractional digits every settled amount carries.
const Places int32 = 2

// Round returns value rounded to places fractional digits. Ties round away
// from zero regardless of sign, so -12.345 becomes -12.35.
func Round(value decimal.Decimal, places int32) decimal.Decimal {
	return value.Round(places)
}

// Round2 rounds value to Places fractional digits.
func Round2(value decimal.Decimal) decimal.Decimal {
	return Round(value, Places)
}

// MustParse parses a decimal literal and panics on malformed input. Intended
// for constants and tests.
func MustParse(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// MaxWholeDigits bounds the integer part of amounts accepted by ParseAmount.
const MaxWholeDigits = 10

const maxAmountLen = 32

// ErrInvalidAmount is returned by ParseAmount for malformed or out of range
// input.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a caller supplied amount. The value must be
// non-negative, carry at most Places fractional digits and at most
// MaxWholeDigits integer digits. The checks read only the coefficient and
// exponent, so inputs like 1e20000000 are rejected without being expanded.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxAmountLen {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	exp := d.Exponent()
	if exp < -Places {
		return decimal.Zero, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, Places)
	}
	if exp > MaxWholeDigits || d.NumDigits()+int(exp) > MaxWholeDigits {
		return decimal.Zero, fmt.Errorf("%w: more than %d integer digits", ErrInvalidAmount, MaxWholeDigits)
	}
	return d, nil
}

var symbols = map[string]string{
	"USD": "$",
	"CAD": "CA$",
	"AUD": "A$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"IDR": "Rp",
}

// Formatter renders amounts for display. It never participates in arithmetic.
type Formatter struct {
	currency string
	group    string
	decimal  string
}

// NewFormatter builds a formatter for the ISO currency code and BCP 47 locale.
// Unknown locales fall back to American English.
func NewFormatter(currencyCode, locale string) Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.AmericanEnglish
	}
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if code == "" {
		code = "USD"
	}
	group, dec := separators(tag)
	return Formatter{currency: code, group: group, decimal: dec}
}

// separators asks the locale's number printer how it writes 1234567.5 and
// reads the grouping and decimal marks back out. Locales that print other
// digit systems fall back to "," and ".".
func separators(tag language.Tag) (group, dec string) {
	out := message.NewPrinter(tag).Sprint(number.Decimal(1234567.5, number.Scale(1)))
	one := strings.Index(out, "1")
	mid := strings.Index(out, "234")
	last := strings.Index(out, "567")
	if one < 0 || mid <= one || last <= mid || !strings.HasSuffix(out, "5") {
		return ",", "."
	}
	dec = out[last+3 : len(out)-1]
	if dec == "" {
		return ",", "."
	}
	return out[one+1 : mid], dec
}

// DefaultFormatter formats US dollars for the en-US locale.
func DefaultFormatter() Formatter {
	return NewFormatter("USD", "en-US")
}

// Currency returns the ISO currency code.
func (f Formatter) Currency() string { return f.currency }

// Format renders amount with the currency symbol and two fraction digits,
// e.g. "$1,234.50" or "-$3.00". Digits come from the exact decimal, so
// amounts of any size print without loss.
func (f Formatter) Format(amount decimal.Decimal) string {
	group, dec := f.group, f.decimal
	if dec == "" {
		group, dec = ",", "."
	}
	rounded := Round2(amount)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Neg()
	}
	whole, frac, _ := strings.Cut(rounded.StringFixed(Places), ".")
	return sign + f.symbol() + groupDigits(whole, group) + dec + frac
}

func groupDigits(whole, sep string) string {
	if len(whole) <= 3 || sep == "" {
		return whole
	}
	var b strings.Builder
	b.Grow(len(whole) + len(whole)/3*len(sep))
	head := len(whole) % 3
	if head == 0 {
		head = 3
	}
	b.WriteString(whole[:head])
	for i := head; i < len(whole); i += 3 {
		b.WriteString(sep)
		b.WriteString(whole[i : i+3])
	}
	return b.String()
}

func (f Formatter) symbol() string {
	code := f.currency
	if code == "" {
		code = "USD"
	}
	if sym, ok := symbols[code]; ok {
		return sym
	}
	return code + " "
}
