package payment_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/express-checkout/internal/payment"
	"github.com/noah-isme/express-checkout/internal/resilience"
)

type eligibility bool

func (e eligibility) IsEligible(decimal.Decimal) bool { return bool(e) }

func collect(t *testing.T, ch <-chan payment.Result) []payment.Result {
	t.Helper()
	var out []payment.Result
	timeout := time.After(2 * time.Second)
	for {
		select {
		case res, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, res)
		case <-timeout:
			t.Fatal("result channel never closed")
		}
	}
}

func TestOrchestratorDeliversExactlyOnce(t *testing.T) {
	cases := []struct {
		name       string
		auth       payment.Authorizer
		authorized bool
		wantErr    bool
	}{
		{"approved", payment.Simulator{Approve: true, Presentable: true}, true, false},
		{"declined", payment.Simulator{Approve: false, Presentable: true}, false, false},
		{"not presentable", payment.Simulator{Approve: true}, false, true},
		{"nil authorizer", nil, false, true},
		{"panic", payment.AuthorizerFunc(func(context.Context, payment.Request) (bool, error) { panic("sheet crashed") }), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := payment.NewOrchestrator(payment.DefaultMerchant(), tc.auth)
			results := collect(t, o.Start(context.Background(), dec("10"), dec("0.95")))
			require.Len(t, results, 1)
			require.Equal(t, tc.authorized, results[0].Authorized)
			if tc.wantErr {
				require.ErrorIs(t, results[0].Err, payment.ErrNotPresented)
			} else {
				require.NoError(t, results[0].Err)
			}
		})
	}
}

func TestOrchestratorAppliesPayLaterFields(t *testing.T) {
	var seen payment.Request
	auth := payment.AuthorizerFunc(func(_ context.Context, req payment.Request) (bool, error) {
		seen = req
		return true, nil
	})
	o := payment.NewOrchestrator(payment.DefaultMerchant(), auth)
	o.PayLater = eligibility(true)
	collect(t, o.Start(context.Background(), dec("188.00"), dec("17.86")))
	require.NotEmpty(t, seen.RequiredBillingFields)

	o.PayLater = eligibility(false)
	collect(t, o.Start(context.Background(), dec("188.00"), dec("17.86")))
	require.Empty(t, seen.RequiredBillingFields)
}

func TestSimulatorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := payment.Simulator{Delay: time.Hour, Approve: true, Presentable: true}.Authorize(ctx, payment.Request{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGuardedOpensAfterPresentationFailures(t *testing.T) {
	var calls atomic.Int32
	failing := payment.AuthorizerFunc(func(context.Context, payment.Request) (bool, error) {
		calls.Add(1)
		return false, errors.New("sheet unavailable")
	})
	g := payment.Guarded{
		Next:    failing,
		Breaker: resilience.NewBreaker(resilience.Settings{MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Hour, Target: "payment-test"}),
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.Authorize(ctx, payment.Request{})
		require.Error(t, err)
	}
	ok, err := g.Authorize(ctx, payment.Request{})
	require.False(t, ok)
	require.ErrorIs(t, err, payment.ErrNotPresented)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.EqualValues(t, 2, calls.Load())
}

func TestGuardedDeclineKeepsBreakerClosed(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.Settings{MinRequests: 1, OpenFor: time.Hour, Target: "payment-test-decline"})
	g := payment.Guarded{Next: payment.Simulator{Presentable: true}, Breaker: breaker}
	for i := 0; i < 3; i++ {
		ok, err := g.Authorize(context.Background(), payment.Request{})
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.Equal(t, resilience.Closed, breaker.State())
}
