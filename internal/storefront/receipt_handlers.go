package storefront

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/express-checkout/internal/cart"
	"github.com/noah-isme/express-checkout/internal/checkout"
	"github.com/noah-isme/express-checkout/internal/common"
	"github.com/noah-isme/express-checkout/internal/receipt"
)

// lookup finds one of sess's receipts: the active store first, then the
// receipt the session still holds.
func (h *Handler) lookup(ctx context.Context, sess *Session, id uuid.UUID) (receipt.Record, error) {
	if h.Receipts != nil {
		rec, err := h.Receipts.GetOwned(ctx, sess.ID, id)
		if err == nil || !errors.Is(err, receipt.ErrNotFound) {
			return rec, err
		}
	}
	if held := sess.Snapshot().Receipt; held != nil && held.ID == id {
		return *held, nil
	}
	return receipt.Record{}, receipt.ErrNotFound
}

func (h *Handler) findByCode(ctx context.Context, sess *Session, code string) (receipt.Record, error) {
	if h.Receipts != nil {
		rec, err := h.Receipts.FindByCode(ctx, sess.ID, code)
		if err == nil || !errors.Is(err, receipt.ErrNotFound) {
			return rec, err
		}
	}
	if held := sess.Snapshot().Receipt; held != nil && held.ConfirmationCode == code {
		return *held, nil
	}
	if h.Archive != nil {
		return h.Archive.FindByConfirmation(ctx, sess.ID, code)
	}
	return receipt.Record{}, receipt.ErrNotFound
}

func (h *Handler) receiptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid receipt id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// GetReceipt returns one of the session's receipts.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.receiptID(w, r)
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	rec, err := h.lookup(r.Context(), sess, id)
	if err != nil {
		writeLookupError(w, err, "receipt not found")
		return
	}
	common.Data(w, http.StatusOK, newReceiptView(rec, h.Formatter))
}

// FindReceipt looks a receipt up by confirmation code, falling back to the
// archive once the active copy has expired.
func (h *Handler) FindReceipt(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
	if err := h.validate().Var(code, "required,max=32"); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	rec, err := h.findByCode(r.Context(), sess, code)
	if err != nil {
		writeLookupError(w, err, "receipt not found")
		return
	}
	common.Data(w, http.StatusOK, newReceiptView(rec, h.Formatter))
}

// GetReceiptDocument serves the exported document, rendering it on demand
// when the export has not run yet. format=json selects the JSON rendering.
func (h *Handler) GetReceiptDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.receiptID(w, r)
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	rec, err := h.lookup(r.Context(), sess, id)
	if err != nil {
		writeLookupError(w, err, "receipt not found")
		return
	}
	var renderer receipt.Renderer = receipt.TextRenderer{Formatter: h.Formatter}
	asJSON := r.URL.Query().Get("format") == "json"
	if asJSON {
		renderer = receipt.JSONRenderer{}
	}
	if !asJSON && h.Receipts != nil {
		doc, err := h.Receipts.Document(r.Context(), id)
		if err == nil {
			writeDocument(w, renderer.ContentType(), doc)
			return
		}
		if !errors.Is(err, receipt.ErrNotFound) {
			writeLookupError(w, err, "receipt not found")
			return
		}
	}
	var buf bytes.Buffer
	if err := renderer.Render(&buf, rec); err != nil {
		h.Logger.Error().Err(err).Str("receipt_id", id.String()).Msg("render receipt")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render receipt", nil)
		return
	}
	writeDocument(w, renderer.ContentType(), buf.Bytes())
}

// DismissReceipt drops the session's held receipt and its active copy.
func (h *Handler) DismissReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.receiptID(w, r)
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var held bool
	if !h.run(w, r, sess, func(_ *cart.Store, vm *checkout.ViewModel) {
		if rec, ok := vm.Receipt(); ok && rec.ID == id {
			_, held = vm.DismissReceipt(r.Context())
		}
	}) {
		return
	}
	stored := false
	if h.Receipts != nil {
		switch err := h.Receipts.Dismiss(r.Context(), sess.ID, id); {
		case err == nil:
			stored = true
		case !errors.Is(err, receipt.ErrNotFound):
			writeLookupError(w, err, "receipt not found")
			return
		}
	}
	if !held && !stored {
		writeLookupError(w, receipt.ErrNotFound, "receipt not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDocument(w http.ResponseWriter, contentType string, doc []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
