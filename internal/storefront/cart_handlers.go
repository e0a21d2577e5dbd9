package storefront

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/express-checkout/internal/cart"
	"github.com/noah-isme/express-checkout/internal/checkout"
	"github.com/noah-isme/express-checkout/internal/common"
)

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=-1000,lte=1000"`
}

func (h *Handler) cartView(snap checkout.Snapshot) cartView {
	view := newCartView(snap, h.Formatter)
	view.PayLater, _ = h.PayLater.CartMessage(snap.Totals.Total)
	return view
}

// GetCart returns the session cart with totals.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, h.cartView(sess.Snapshot()))
}

// AddItem adds one unit of a product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate().Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "productId must be a uuid", validationDetails(err))
		return
	}
	p, err := h.Catalog.Get(uuid.MustParse(req.ProductID))
	if err != nil {
		writeLookupError(w, err, "product not found")
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var line cart.LineItem
	if !h.run(w, r, sess, func(store *cart.Store, _ *checkout.ViewModel) { line = store.Add(p) }) {
		return
	}
	status := http.StatusCreated
	if line.Quantity > 1 {
		status = http.StatusOK
	}
	common.Data(w, status, h.cartView(sess.Snapshot()))
}

// UpdateItem sets a line quantity. Zero or less removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate().Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "quantity is required", validationDetails(err))
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var found bool
	if !h.run(w, r, sess, func(store *cart.Store, _ *checkout.ViewModel) {
		_, found = store.Item(itemID)
		store.UpdateQuantity(itemID, *req.Quantity)
	}) {
		return
	}
	if !found {
		writeLookupError(w, cart.ErrItemNotFound, "cart item not found")
		return
	}
	common.Data(w, http.StatusOK, h.cartView(sess.Snapshot()))
}

// RemoveItem deletes a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var removed bool
	if !h.run(w, r, sess, func(store *cart.Store, _ *checkout.ViewModel) { removed = store.Remove(itemID) }) {
		return
	}
	if !removed {
		writeLookupError(w, cart.ErrItemNotFound, "cart item not found")
		return
	}
	common.Data(w, http.StatusOK, h.cartView(sess.Snapshot()))
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.run(w, r, sess, func(store *cart.Store, _ *checkout.ViewModel) { store.Clear() }) {
		return
	}
	common.Data(w, http.StatusOK, h.cartView(sess.Snapshot()))
}
