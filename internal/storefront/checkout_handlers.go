package storefront

import (
	"net/http"

	"github.com/noah-isme/express-checkout/internal/cart"
	"github.com/noah-isme/express-checkout/internal/checkout"
	"github.com/noah-isme/express-checkout/internal/common"
)

func (h *Handler) paymentAvailable() bool {
	if h.Capability == nil {
		return false
	}
	if len(h.Networks) == 0 {
		return h.Capability.CanMakePayments()
	}
	return h.Capability.CanMakePaymentsUsingNetworks(h.Networks)
}

func (h *Handler) checkoutView(snap checkout.Snapshot) checkoutView {
	view := checkoutView{
		Processing:       snap.Processing,
		Outcome:          snap.Outcome,
		Totals:           newTotalsView(snap.Totals, h.Formatter),
		PaymentAvailable: h.paymentAvailable(),
	}
	if h.Preview != nil && len(snap.Items) > 0 {
		req := h.Preview.Request(snap.Totals.Subtotal, snap.Totals.Tax)
		view.Request = &req
	}
	if snap.Receipt != nil {
		view.Receipt = newReceiptView(*snap.Receipt, h.Formatter)
	}
	return view
}

// StartCheckout begins a payment for the session cart. The response is 202
// whether or not an attempt started; started reports which.
func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	if !h.paymentAvailable() {
		common.JSONError(w, http.StatusConflict, "PAYMENT_UNAVAILABLE", "express payments are not available", nil)
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var started bool
	if !h.run(w, r, sess, func(_ *cart.Store, vm *checkout.ViewModel) { started = vm.Checkout(r.Context()) }) {
		return
	}
	common.Data(w, http.StatusAccepted, map[string]any{
		"started":  started,
		"checkout": h.checkoutView(sess.Snapshot()),
	})
}

// GetCheckout reports the checkout state of the session.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, h.checkoutView(sess.Snapshot()))
}
