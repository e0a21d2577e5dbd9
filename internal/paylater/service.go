// Package paylater decides installment eligibility and phrases the
// installment offer.
package paylater

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/express-checkout/internal/money"
	"github.com/noah-isme/express-checkout/internal/payment"
)

// Installments is the fixed number of monthly payments offered.
const Installments = 4

var installmentCount = decimal.NewFromInt(Installments)

// Window is the inclusive range of eligible order amounts.
type Window struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// DefaultWindow is 50.00 to 1000.00 inclusive.
func DefaultWindow() Window {
	return Window{Min: decimal.NewFromInt(50), Max: decimal.NewFromInt(1000)}
}

// Contains reports whether amount lies within the window bounds.
func (w Window) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(w.Min) && amount.LessThanOrEqual(w.Max)
}

// Config wires a Service.
type Config struct {
	Window     Window
	Capability payment.CapabilityChecker
	Formatter  money.Formatter
}

// Service answers installment questions for an amount. It holds no state
// between calls.
type Service struct {
	window     Window
	capability payment.CapabilityChecker
	format     money.Formatter
}

// NewService validates cfg and returns a Service. A zero Window uses
// DefaultWindow and a zero Formatter formats US dollars.
func NewService(cfg Config) (*Service, error) {
	if cfg.Capability == nil {
		return nil, errors.New("paylater: capability checker is required")
	}
	if cfg.Window.Min.IsZero() && cfg.Window.Max.IsZero() {
		cfg.Window = DefaultWindow()
	}
	if cfg.Window.Min.IsNegative() || cfg.Window.Min.GreaterThan(cfg.Window.Max) {
		return nil, fmt.Errorf("paylater: invalid window %s-%s", cfg.Window.Min, cfg.Window.Max)
	}
	if cfg.Formatter.Currency() == "" {
		cfg.Formatter = money.DefaultFormatter()
	}
	return &Service{window: cfg.Window, capability: cfg.Capability, format: cfg.Formatter}, nil
}

// Window returns the configured eligibility window.
func (s *Service) Window() Window { return s.window }

// IsEligible reports whether the device can pay and amount lies in the window.
func (s *Service) IsEligible(amount decimal.Decimal) bool {
	return s.capability.CanMakePayments() && s.window.Contains(amount)
}

// MonthlyInstallment returns amount split over Installments, rounded to cents.
func (s *Service) MonthlyInstallment(amount decimal.Decimal) decimal.Decimal {
	return money.Round2(amount.Div(installmentCount))
}

// InstallmentMessage returns the detail-page offer, or false when amount is
// not eligible.
func (s *Service) InstallmentMessage(amount decimal.Decimal) (string, bool) {
	if !s.IsEligible(amount) {
		return "", false
	}
	return fmt.Sprintf("Pay %s/mo. for %d months with Pay Later", s.monthly(amount), Installments), true
}

// ListingMessage returns the product-list offer, or false when amount is not
// eligible.
func (s *Service) ListingMessage(amount decimal.Decimal) (string, bool) {
	if !s.IsEligible(amount) {
		return "", false
	}
	return fmt.Sprintf("From %s/mo. for %d months", s.monthly(amount), Installments), true
}

// CartMessage returns the cart-page offer, or false when amount is not
// eligible.
func (s *Service) CartMessage(amount decimal.Decimal) (string, bool) {
	if !s.IsEligible(amount) {
		return "", false
	}
	return fmt.Sprintf("Pay in %d installments of %s", Installments, s.monthly(amount)), true
}

// ShortMessage is the compact monthly figure. It is available regardless of
// eligibility.
func (s *Service) ShortMessage(amount decimal.Decimal) string {
	return fmt.Sprintf("Pay %s/mo.", s.monthly(amount))
}

func (s *Service) monthly(amount decimal.Decimal) string {
	return s.format.Format(s.MonthlyInstallment(amount))
}

// Quote bundles every installment figure for one amount.
type Quote struct {
	Amount       decimal.Decimal `json:"amount"`
	Eligible     bool            `json:"eligible"`
	Installments int             `json:"installments"`
	Monthly      decimal.Decimal `json:"monthly"`
	Detail       string          `json:"detail,omitempty"`
	Listing      string          `json:"listing,omitempty"`
	Cart         string          `json:"cart,omitempty"`
	Short        string          `json:"short"`
}

// Quote computes every figure for amount.
func (s *Service) Quote(amount decimal.Decimal) Quote {
	q := Quote{
		Amount:       amount,
		Eligible:     s.IsEligible(amount),
		Installments: Installments,
		Monthly:      s.MonthlyInstallment(amount),
		Short:        s.ShortMessage(amount),
	}
	q.Detail, _ = s.InstallmentMessage(amount)
	q.Listing, _ = s.ListingMessage(amount)
	q.Cart, _ = s.CartMessage(amount)
	return q
}
