package paylater_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/express-checkout/internal/money"
	"github.com/noah-isme/express-checkout/internal/paylater"
	"github.com/noah-isme/express-checkout/internal/payment"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T, capable bool) *paylater.Service {
	t.Helper()
	svc, err := paylater.NewService(paylater.Config{
		Capability: payment.StaticCapability{Device: capable},
		Formatter:  money.NewFormatter("USD", "en-US"),
	})
	require.NoError(t, err)
	return svc
}

func TestEligibilityBounds(t *testing.T) {
	svc := newService(t, true)
	cases := map[string]bool{
		"49.99":   false,
		"50.00":   true,
		"110.00":  true,
		"1000.00": true,
		"1000.01": false,
		"0":       false,
	}
	for amount, want := range cases {
		require.Equal(t, want, svc.IsEligible(dec(amount)), amount)
	}
}

func TestIneligibleWithoutCapability(t *testing.T) {
	svc := newService(t, false)
	require.False(t, svc.IsEligible(dec("110")))
	msg, ok := svc.InstallmentMessage(dec("110"))
	require.False(t, ok)
	require.Empty(t, msg)
}

func TestMonthlyInstallment(t *testing.T) {
	svc := newService(t, true)
	require.Equal(t, "27.50", svc.MonthlyInstallment(dec("110")).StringFixed(2))
	require.Equal(t, "44.50", svc.MonthlyInstallment(dec("178")).StringFixed(2))
	// 100.01 / 4 = 25.0025
	require.Equal(t, "25.00", svc.MonthlyInstallment(dec("100.01")).StringFixed(2))
	// 100.02 / 4 = 25.005 rounds away from zero
	require.Equal(t, "25.01", svc.MonthlyInstallment(dec("100.02")).StringFixed(2))
}

func TestMessages(t *testing.T) {
	svc := newService(t, true)

	msg, ok := svc.InstallmentMessage(dec("110"))
	require.True(t, ok)
	require.Equal(t, "Pay $27.50/mo. for 4 months with Pay Later", msg)

	listing, ok := svc.ListingMessage(dec("110"))
	require.True(t, ok)
	require.Equal(t, "From $27.50/mo. for 4 months", listing)

	cartMsg, ok := svc.CartMessage(dec("110"))
	require.True(t, ok)
	require.Equal(t, "Pay in 4 installments of $27.50", cartMsg)

	require.Equal(t, "Pay $10.00/mo.", svc.ShortMessage(dec("40")))

	_, ok = svc.ListingMessage(dec("40"))
	require.False(t, ok)
}

func TestQuote(t *testing.T) {
	svc := newService(t, true)
	q := svc.Quote(dec("40"))
	require.False(t, q.Eligible)
	require.Empty(t, q.Detail)
	require.Equal(t, "Pay $10.00/mo.", q.Short)
	require.Equal(t, paylater.Installments, q.Installments)

	q = svc.Quote(dec("205.86"))
	require.True(t, q.Eligible)
	require.Equal(t, "51.47", q.Monthly.StringFixed(2))
	require.Equal(t, "Pay $51.47/mo. for 4 months with Pay Later", q.Detail)
}

func TestNewServiceValidation(t *testing.T) {
	_, err := paylater.NewService(paylater.Config{})
	require.Error(t, err)

	_, err = paylater.NewService(paylater.Config{
		Capability: payment.StaticCapability{Device: true},
		Window:     paylater.Window{Min: dec("100"), Max: dec("10")},
	})
	require.Error(t, err)

	svc, err := paylater.NewService(paylater.Config{Capability: payment.StaticCapability{Device: true}})
	require.NoError(t, err)
	require.True(t, svc.Window().Min.Equal(dec("50")))
	require.True(t, svc.Window().Max.Equal(dec("1000")))
}
