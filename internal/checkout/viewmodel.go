// Package checkout derives cart totals and drives a payment attempt from
// start to a single recorded outcome.
package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/express-checkout/internal/cart"
	"github.com/noah-isme/express-checkout/internal/events"
	"github.com/noah-isme/express-checkout/internal/obs"
	"github.com/noah-isme/express-checkout/internal/payment"
	"github.com/noah-isme/express-checkout/internal/pricing"
	"github.com/noah-isme/express-checkout/internal/receipt"
	"github.com/noah-isme/express-checkout/internal/shipping"
)

var errResultDropped = errors.New("checkout: payment result channel closed without a result")

// PaymentStarter begins a payment attempt whose channel yields exactly one
// result.
type PaymentStarter interface {
	Start(ctx context.Context, subtotal, tax decimal.Decimal) <-chan payment.Result
}

// ReceiptSink publishes a freshly issued receipt.
type ReceiptSink interface {
	Publish(ctx context.Context, r receipt.Record) error
}

// Emitter records domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// CodeSource mints confirmation codes.
type CodeSource interface {
	Next() string
}

// Dispatcher runs fn on the goroutine that owns the cart. Payment results
// arrive on another goroutine and are handed back through it, so the cart is
// only ever mutated by its owner.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(fn func())

func (f DispatchFunc) Dispatch(fn func()) { f(fn) }

// Outcome is the result of the latest payment attempt.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePending
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// MarshalText renders the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Snapshot is a consistent view of the view-model.
type Snapshot struct {
	Items      []cart.LineItem `json:"items"`
	Totals     pricing.Summary `json:"totals"`
	Processing bool            `json:"processing"`
	Outcome    Outcome         `json:"outcome"`
	Receipt    *receipt.Record `json:"receipt,omitempty"`
}

// Config wires a ViewModel. Cart, Tax, Payments, Shipping and Dispatcher are
// required. Owner is stamped on every receipt issued.
type Config struct {
	Owner      string
	Cart       *cart.Store
	Tax        pricing.Calculator
	Payments   PaymentStarter
	Shipping   shipping.Provider
	Dispatcher Dispatcher
	Receipts   ReceiptSink
	Events     Emitter
	Codes      CodeSource
	Now        func() time.Time
	Logger     *zerolog.Logger
}

type listener struct {
	id int
	fn func(Snapshot)
}

// ViewModel keeps totals in step with a cart and runs checkouts against it.
// Cart notifications and payment completions are expected on the goroutine
// that owns the cart; reads are safe from any goroutine.
type ViewModel struct {
	owner      string
	tax        pricing.Calculator
	payments   PaymentStarter
	shipping   shipping.Provider
	dispatcher Dispatcher
	receipts   ReceiptSink
	events     Emitter
	codes      CodeSource
	now        func() time.Time
	logger     *zerolog.Logger

	mu          sync.Mutex
	store       *cart.Store
	unsubscribe func()
	items       []cart.LineItem
	totals      pricing.Summary
	processing  bool
	outcome     Outcome
	receipt     *receipt.Record
	listeners   []listener
	nextID      int
}

// NewViewModel validates cfg, binds to cfg.Cart and computes the initial
// totals.
func NewViewModel(cfg Config) (*ViewModel, error) {
	switch {
	case cfg.Cart == nil:
		return nil, errors.New("checkout: cart is required")
	case cfg.Tax == nil:
		return nil, errors.New("checkout: tax calculator is required")
	case cfg.Payments == nil:
		return nil, errors.New("checkout: payment starter is required")
	case cfg.Shipping == nil:
		return nil, errors.New("checkout: shipping provider is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("checkout: dispatcher is required")
	}
	vm := &ViewModel{
		owner:      cfg.Owner,
		tax:        cfg.Tax,
		payments:   cfg.Payments,
		shipping:   cfg.Shipping,
		dispatcher: cfg.Dispatcher,
		receipts:   cfg.Receipts,
		events:     cfg.Events,
		codes:      cfg.Codes,
		now:        cfg.Now,
		logger:     cfg.Logger,
		totals:     pricing.Zero(),
	}
	if vm.codes == nil {
		vm.codes = receipt.NewCodeGenerator(receipt.DefaultPrefix, nil)
	}
	if vm.now == nil {
		vm.now = time.Now
	}
	if vm.logger == nil {
		nop := zerolog.Nop()
		vm.logger = &nop
	}
	vm.Bind(cfg.Cart)
	return vm, nil
}

// Bind switches the view-model to another cart and recomputes totals from it.
func (vm *ViewModel) Bind(store *cart.Store) {
	if store == nil {
		return
	}
	vm.mu.Lock()
	prev := vm.unsubscribe
	vm.store = store
	vm.mu.Unlock()
	if prev != nil {
		prev()
	}
	unsubscribe := store.Subscribe(vm.onCartChanged)
	vm.mu.Lock()
	vm.unsubscribe = unsubscribe
	vm.mu.Unlock()
	vm.onCartChanged(store.State())
}

func (vm *ViewModel) onCartChanged(state cart.State) {
	vm.mu.Lock()
	vm.items = state.Items
	vm.totals = pricing.Compute(pricingItems(state.Items), vm.tax)
	snap := vm.snapshotLocked()
	vm.mu.Unlock()
	vm.notify(snap)
}

func pricingItems(items []cart.LineItem) []pricing.Item {
	out := make([]pricing.Item, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Item{Qty: it.Quantity, UnitPrice: it.Product.Price})
	}
	return out
}

// Checkout starts a payment for the current totals. It returns false without
// doing anything when the cart is empty or a payment is already in flight.
// The attempt is not tied to ctx cancellation.
func (vm *ViewModel) Checkout(ctx context.Context) bool {
	vm.mu.Lock()
	if vm.processing || len(vm.items) == 0 {
		vm.mu.Unlock()
		return false
	}
	vm.processing = true
	vm.outcome = OutcomePending
	totals := vm.totals
	units := cart.State{Items: vm.items}.TotalUnits()
	snap := vm.snapshotLocked()
	vm.mu.Unlock()
	vm.notify(snap)

	attemptID := uuid.New()
	ctx, span := obs.Tracer("checkout").Start(context.WithoutCancel(ctx), "ViewModel.Checkout",
		trace.WithAttributes(
			attribute.String("checkout.attempt_id", attemptID.String()),
			attribute.String("checkout.total", totals.Total.StringFixed(2)),
			attribute.Int("checkout.units", units),
		))
	vm.count("started")
	vm.emit(ctx, events.TopicCheckoutStarted, attemptID, map[string]any{
		"subtotal": totals.Subtotal,
		"tax":      totals.Tax,
		"total":    totals.Total,
		"units":    units,
	})

	results := vm.payments.Start(ctx, totals.Subtotal, totals.Tax)
	go func() {
		res, ok := <-results
		if !ok {
			res = payment.Result{Err: errResultDropped}
		}
		vm.dispatcher.Dispatch(func() {
			defer span.End()
			vm.complete(ctx, span, attemptID, res)
		})
	}()
	return true
}

func (vm *ViewModel) complete(ctx context.Context, span trace.Span, attemptID uuid.UUID, res payment.Result) {
	if !res.Authorized || res.Err != nil {
		vm.mu.Lock()
		vm.processing = false
		vm.outcome = OutcomeFailed
		snap := vm.snapshotLocked()
		vm.mu.Unlock()

		reason := "declined"
		if res.Err != nil {
			reason = "not_presented"
			span.RecordError(res.Err)
		}
		span.SetStatus(codes.Error, reason)
		vm.count("failed")
		vm.logger.Info().Str("attempt_id", attemptID.String()).Str("reason", reason).Msg("checkout failed")
		vm.emit(ctx, events.TopicPaymentFailed, attemptID, map[string]string{"reason": reason})
		vm.notify(snap)
		return
	}

	vm.mu.Lock()
	items := append([]cart.LineItem(nil), vm.items...)
	totals := vm.totals
	store := vm.store
	vm.mu.Unlock()

	rec := receipt.Record{
		ID:               uuid.New(),
		Owner:            vm.owner,
		ConfirmationCode: vm.codes.Next(),
		Items:            items,
		Subtotal:         totals.Subtotal,
		Tax:              totals.Tax,
		Total:            totals.Total,
		Shipping:         vm.shipping.Destination(ctx),
		PurchasedAt:      vm.now(),
	}
	span.SetAttributes(attribute.String("checkout.confirmation_code", rec.ConfirmationCode))
	if vm.receipts != nil {
		if err := vm.receipts.Publish(ctx, rec); err != nil {
			vm.logger.Error().Err(err).Str("receipt_id", rec.ID.String()).Msg("publish receipt")
		}
	}

	vm.mu.Lock()
	vm.receipt = &rec
	vm.mu.Unlock()

	store.Clear()

	vm.mu.Lock()
	vm.processing = false
	vm.outcome = OutcomeSucceeded
	snap := vm.snapshotLocked()
	vm.mu.Unlock()

	vm.count("succeeded")
	vm.logger.Info().Str("attempt_id", attemptID.String()).Str("confirmation_code", rec.ConfirmationCode).Msg("checkout succeeded")
	vm.emit(ctx, events.TopicPaymentSucceeded, attemptID, map[string]string{
		"receiptId":        rec.ID.String(),
		"confirmationCode": rec.ConfirmationCode,
	})
	vm.notify(snap)
}

// DismissReceipt drops the held receipt. It returns the dismissed record and
// whether there was one.
func (vm *ViewModel) DismissReceipt(ctx context.Context) (receipt.Record, bool) {
	vm.mu.Lock()
	held := vm.receipt
	vm.receipt = nil
	snap := vm.snapshotLocked()
	vm.mu.Unlock()
	if held == nil {
		return receipt.Record{}, false
	}
	vm.emit(ctx, events.TopicReceiptDismissed, held.ID, map[string]string{"confirmationCode": held.ConfirmationCode})
	vm.notify(snap)
	return *held, true
}

// Snapshot returns the current state.
func (vm *ViewModel) Snapshot() Snapshot {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.snapshotLocked()
}

// Totals returns the current totals.
func (vm *ViewModel) Totals() pricing.Summary {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.totals
}

// Processing reports whether a payment is in flight.
func (vm *ViewModel) Processing() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.processing
}

// Outcome returns the result of the latest attempt.
func (vm *ViewModel) Outcome() Outcome {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.outcome
}

// Receipt returns the held receipt, if any.
func (vm *ViewModel) Receipt() (receipt.Record, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.receipt == nil {
		return receipt.Record{}, false
	}
	return *vm.receipt, true
}

// Subscribe registers fn for state changes and returns a function removing
// it. fn runs outside the view-model's lock.
func (vm *ViewModel) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	vm.mu.Lock()
	vm.nextID++
	id := vm.nextID
	vm.listeners = append(vm.listeners, listener{id: id, fn: fn})
	vm.mu.Unlock()
	return func() {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		for i, l := range vm.listeners {
			if l.id == id {
				vm.listeners = append(vm.listeners[:i:i], vm.listeners[i+1:]...)
				return
			}
		}
	}
}

func (vm *ViewModel) snapshotLocked() Snapshot {
	snap := Snapshot{
		Items:      append([]cart.LineItem(nil), vm.items...),
		Totals:     vm.totals,
		Processing: vm.processing,
		Outcome:    vm.outcome,
	}
	if vm.receipt != nil {
		rec := *vm.receipt
		snap.Receipt = &rec
	}
	return snap
}

func (vm *ViewModel) notify(snap Snapshot) {
	vm.mu.Lock()
	subs := append([]listener(nil), vm.listeners...)
	vm.mu.Unlock()
	for _, l := range subs {
		l.fn(snap)
	}
}

func (vm *ViewModel) emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) {
	if vm.events == nil {
		return
	}
	if _, err := vm.events.Emit(ctx, topic, aggregateID, payload); err != nil {
		vm.logger.Warn().Err(err).Str("topic", topic).Msg("emit event")
	}
}

func (vm *ViewModel) count(result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
}
