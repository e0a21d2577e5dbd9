package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/express-checkout/internal/obs"
)

// ErrNotPresented reports that the payment sheet could not be shown.
var ErrNotPresented = errors.New("payment: sheet could not be presented")

// Authorizer presents a request to the customer and reports whether it was
// authorized. A non-nil error means nothing was presented.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req Request) (bool, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, req Request) (bool, error) { return f(ctx, req) }

// EligibilityChecker reports whether an amount qualifies for installments.
type EligibilityChecker interface {
	IsEligible(amount decimal.Decimal) bool
}

// Result is the single outcome of a payment attempt.
type Result struct {
	Authorized bool
	Err        error
}

// Orchestrator starts payment attempts and delivers exactly one Result per
// attempt.
type Orchestrator struct {
	Merchant   Merchant
	Authorizer Authorizer
	// PayLater, when set, switches on the installment contact fields for
	// eligible totals.
	PayLater EligibilityChecker
	Logger   zerolog.Logger
}

// NewOrchestrator returns an orchestrator for merchant backed by auth.
func NewOrchestrator(merchant Merchant, auth Authorizer) *Orchestrator {
	return &Orchestrator{Merchant: merchant, Authorizer: auth, Logger: zerolog.Nop()}
}

// Request returns the request Start would present for the given totals.
func (o *Orchestrator) Request(subtotal, tax decimal.Decimal) Request {
	req := o.Merchant.BuildRequest(subtotal, tax)
	if o.PayLater != nil {
		req = ConfigureForPayLater(req, o.PayLater.IsEligible(req.Total()))
	}
	return req
}

// Start presents the request on its own goroutine. The returned channel
// yields one Result and is then closed, even if the authorizer panics.
func (o *Orchestrator) Start(ctx context.Context, subtotal, tax decimal.Decimal) <-chan Result {
	out := make(chan Result, 1)
	req := o.Request(subtotal, tax)

	go func() {
		ctx, span := obs.Tracer("payment").Start(ctx, "Orchestrator.Authorize")
		start := time.Now()
		var res Result
		defer func() {
			if r := recover(); r != nil {
				res = Result{Err: fmt.Errorf("%w: authorizer panic: %v", ErrNotPresented, r)}
			}
			label := resultLabel(res)
			span.SetAttributes(
				attribute.String("payment.merchant_id", req.MerchantID),
				attribute.String("payment.total", req.Total().StringFixed(2)),
				attribute.String("payment.result", label),
			)
			if res.Err != nil {
				span.RecordError(res.Err)
				span.SetStatus(codes.Error, res.Err.Error())
			}
			span.End()
			if obs.PaymentAuthorizationDuration != nil {
				obs.PaymentAuthorizationDuration.WithLabelValues(label).Observe(obs.DurationMillis(time.Since(start)))
			}
			o.Logger.Debug().Str("result", label).Str("total", req.Total().StringFixed(2)).Msg("payment resolved")
			out <- res
			close(out)
		}()

		if o.Authorizer == nil {
			res = Result{Err: ErrNotPresented}
			return
		}
		ok, err := o.Authorizer.Authorize(ctx, req)
		res = Result{Authorized: ok && err == nil, Err: err}
	}()

	return out
}

func resultLabel(res Result) string {
	switch {
	case res.Err != nil:
		return "not_presented"
	case res.Authorized:
		return "authorized"
	default:
		return "declined"
	}
}
