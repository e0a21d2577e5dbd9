package storefront

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/express-checkout/internal/cart"
	"github.com/noah-isme/express-checkout/internal/catalog"
	"github.com/noah-isme/express-checkout/internal/checkout"
	"github.com/noah-isme/express-checkout/internal/common"
	"github.com/noah-isme/express-checkout/internal/mainloop"
	"github.com/noah-isme/express-checkout/internal/money"
	"github.com/noah-isme/express-checkout/internal/obs"
	"github.com/noah-isme/express-checkout/internal/paylater"
	"github.com/noah-isme/express-checkout/internal/payment"
	"github.com/noah-isme/express-checkout/internal/receipt"
)

// ReceiptReader is the active receipt store as seen by the HTTP layer. Every
// lookup is scoped to the owning session.
type ReceiptReader interface {
	GetOwned(ctx context.Context, owner string, id uuid.UUID) (receipt.Record, error)
	FindByCode(ctx context.Context, owner, code string) (receipt.Record, error)
	Document(ctx context.Context, id uuid.UUID) ([]byte, error)
	Dismiss(ctx context.Context, owner string, id uuid.UUID) error
}

// ConfirmationLookup finds archived receipts by confirmation code.
type ConfirmationLookup interface {
	FindByConfirmation(ctx context.Context, owner, code string) (receipt.Record, error)
}

// RequestPreviewer shapes the payment request for a set of totals.
type RequestPreviewer interface {
	Request(subtotal, tax decimal.Decimal) payment.Request
}

// Handler serves the storefront API. Sessions, Catalog and PayLater are
// required.
type Handler struct {
	Sessions   *Sessions
	Catalog    *catalog.Catalog
	PayLater   *paylater.Service
	Capability payment.CapabilityChecker
	Networks   []payment.Network
	Preview    RequestPreviewer
	Receipts   ReceiptReader
	Archive    ConfirmationLookup
	Formatter  money.Formatter
	Validate   *validator.Validate
	Logger     zerolog.Logger
}

// Router builds the /api/v1 routes. checkoutMW wraps only POST /checkout.
func (h *Handler) Router(checkoutMW ...func(http.Handler) http.Handler) http.Handler {
	products := &catalog.Handler{
		Catalog:   h.Catalog,
		Offers:    h.PayLater,
		Carts:     cartCounter{h: h},
		Formatter: h.Formatter,
	}
	quotes := &paylater.Handler{Svc: h.PayLater}

	r := chi.NewRouter()
	r.Use(h.sessionMiddleware)

	r.Get("/products", products.Products)
	r.Get("/products/{id}", products.ProductDetail)

	r.Get("/cart", h.GetCart)
	r.Post("/cart/items", h.AddItem)
	r.Patch("/cart/items/{itemId}", h.UpdateItem)
	r.Delete("/cart/items/{itemId}", h.RemoveItem)
	r.Delete("/cart", h.ClearCart)

	r.With(checkoutMW...).Post("/checkout", h.StartCheckout)
	r.Get("/checkout", h.GetCheckout)

	r.Get("/receipts", h.FindReceipt)
	r.Get("/receipts/{id}", h.GetReceipt)
	r.Get("/receipts/{id}/document", h.GetReceiptDocument)
	r.Delete("/receipts/{id}", h.DismissReceipt)

	r.Get("/paylater", quotes.Quote)
	return r
}

func (h *Handler) validate() *validator.Validate {
	if h.Validate == nil {
		h.Validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return h.Validate
}

func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(obs.SessionHeader))
		if id == "" {
			id = DefaultSessionID
		}
		if err := h.validate().Var(id, "max=64,alphanum|uuid"); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
			return
		}
		w.Header().Set(obs.SessionHeader, id)
		next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), id)))
	})
}

// sessionFor resolves the request's session. Errors are *common.AppError.
func (h *Handler) sessionFor(r *http.Request) (*Session, error) {
	id, ok := common.SessionID(r.Context())
	if !ok {
		id = DefaultSessionID
	}
	sess, err := h.Sessions.Get(id)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, ErrTooManySessions):
		return nil, common.NewAppError("SESSION_LIMIT", "too many active sessions", http.StatusServiceUnavailable, err)
	default:
		h.Logger.Error().Err(err).Str("session_id", id).Msg("open session")
		return nil, common.NewAppError("INTERNAL", "failed to open session", http.StatusInternalServerError, err)
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := h.sessionFor(r)
	if err != nil {
		common.WriteError(w, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, sess *Session, fn func(*cart.Store, *checkout.ViewModel)) bool {
	if err := sess.Do(r.Context(), fn); err != nil {
		status, code := http.StatusInternalServerError, "INTERNAL"
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status, code = http.StatusServiceUnavailable, "UNAVAILABLE"
		case errors.Is(err, mainloop.ErrClosed):
			status, code = http.StatusServiceUnavailable, "SESSION_EXPIRED"
		}
		h.Logger.Warn().Err(err).Str("session_id", sess.ID).Msg("session operation")
		common.JSONError(w, status, code, "session unavailable", nil)
		return false
	}
	return true
}

// cartCounter feeds the product endpoints the caller's in-cart quantities.
type cartCounter struct{ h *Handler }

func (c cartCounter) InCart(r *http.Request) (map[uuid.UUID]int, error) {
	sess, err := c.h.sessionFor(r)
	if err != nil {
		return nil, err
	}
	items := sess.Snapshot().Items
	counts := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		counts[it.Product.ID] = it.Quantity
	}
	return counts, nil
}

func writeLookupError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, receipt.ErrNotFound), errors.Is(err, cart.ErrItemNotFound):
		common.WriteError(w, common.NewAppError("NOT_FOUND", notFound, http.StatusNotFound, err))
	default:
		common.WriteError(w, err)
	}
}

func validationDetails(err error) []map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, map[string]string{"field": fe.Field(), "rule": fe.Tag()})
	}
	return out
}
