package paylater

import (
	"net/http"

	"github.com/noah-isme/express-checkout/internal/common"
	"github.com/noah-isme/express-checkout/internal/money"
)

// Handler exposes installment quotes over HTTP.
type Handler struct {
	Svc *Service
}

// Quote handles GET /paylater?amount=.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pay later service not configured", nil)
		return
	}
	amount, err := money.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must be a non-negative decimal with at most 2 places", nil)
		return
	}
	common.Data(w, http.StatusOK, h.Svc.Quote(amount))
}
