package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/express-checkout/internal/common"
	"github.com/noah-isme/express-checkout/internal/money"
)

// OfferMessages phrases the installment offer shown beside a price.
type OfferMessages interface {
	ListingMessage(amount decimal.Decimal) (string, bool)
	InstallmentMessage(amount decimal.Decimal) (string, bool)
}

// CartCounter reports how many units of each product the caller's cart
// holds. Errors should be *common.AppError so they render with a status.
type CartCounter interface {
	InCart(r *http.Request) (map[uuid.UUID]int, error)
}

// Handler exposes the product endpoints. Catalog is required.
type Handler struct {
	Catalog   *Catalog
	Offers    OfferMessages
	Carts     CartCounter
	Formatter money.Formatter
}

type productView struct {
	Product
	FormattedPrice string `json:"formattedPrice"`
	PayLater       string `json:"payLater,omitempty"`
	InCart         int    `json:"inCartQuantity"`
}

func (h *Handler) view(p Product, payLater string, inCart int) productView {
	return productView{
		Product:        p,
		FormattedPrice: h.Formatter.Format(p.Price),
		PayLater:       payLater,
		InCart:         inCart,
	}
}

func (h *Handler) inCart(r *http.Request) (map[uuid.UUID]int, error) {
	if h.Carts == nil {
		return nil, nil
	}
	return h.Carts.InCart(r)
}

// Products handles GET /products with per-product listing messages.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	counts, err := h.inCart(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	products := h.Catalog.List()
	out := make([]productView, 0, len(products))
	for _, p := range products {
		var msg string
		if h.Offers != nil {
			msg, _ = h.Offers.ListingMessage(p.Price)
		}
		out = append(out, h.view(p, msg, counts[p.ID]))
	}
	common.Data(w, http.StatusOK, out)
}

// ProductDetail handles GET /products/{id} with the installment detail
// message.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	p, err := h.Catalog.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	counts, err := h.inCart(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var msg string
	if h.Offers != nil {
		msg, _ = h.Offers.InstallmentMessage(p.Price)
	}
	common.Data(w, http.StatusOK, h.view(p, msg, counts[p.ID]))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.WriteError(w, err)
}
