package cart

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/express-checkout/internal/catalog"
	"github.com/noah-isme/express-checkout/internal/obs"
)

// ErrItemNotFound is reported by callers that need to distinguish a missing
// line from an effective mutation. The store itself treats it as a no-op.
var ErrItemNotFound = errors.New("cart item not found")

// LineItem pairs a product with a quantity. Its identity is independent of
// the product identity.
type LineItem struct {
	ID       uuid.UUID       `json:"id"`
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Subtotal returns unit price times quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Product.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Same reports whether both values describe the same line.
func (li LineItem) Same(other LineItem) bool {
	return li.ID == other.ID
}

// State is an immutable view of the cart lines in insertion order.
type State struct {
	Items []LineItem
}

// Subtotal sums every line subtotal.
func (s State) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// TotalUnits sums every line quantity.
func (s State) TotalUnits() int {
	units := 0
	for _, it := range s.Items {
		units += it.Quantity
	}
	return units
}

// Len returns the number of lines.
func (s State) Len() int { return len(s.Items) }

// Empty reports whether the cart has no lines.
func (s State) Empty() bool { return len(s.Items) == 0 }

// Listener receives the latest state after every effective mutation.
type Listener func(State)

type subscription struct {
	id int
	fn Listener
}

// Store owns the cart lines. It is the only writer of cart state and is not
// safe for concurrent use: every call must come from the same goroutine (or
// be serialised by the caller).
type Store struct {
	items     []LineItem
	listeners []subscription
	nextSubID int
	newID     func() uuid.UUID
}

// Option customises a Store.
type Option func(*Store)

// WithIDGenerator overrides how line identifiers are minted.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore returns an empty cart.
func NewStore(opts ...Option) *Store {
	s := &Store{newID: uuid.New}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add puts one unit of p in the cart. When a line for the product exists its
// quantity is incremented and its identity kept.
func (s *Store) Add(p catalog.Product) LineItem {
	if idx := s.indexOfProduct(p.ID); idx >= 0 {
		item := s.items[idx]
		item.Product = p
		item.Quantity++
		s.items[idx] = item
		s.publish("add")
		return item
	}
	item := LineItem{ID: s.newID(), Product: p, Quantity: 1}
	s.items = append(s.items, item)
	s.publish("add")
	return item
}

// Remove deletes the line with the given identity. It reports whether a line
// was removed; listeners only hear about effective removals.
func (s *Store) Remove(itemID uuid.UUID) bool {
	idx := s.indexOfItem(itemID)
	if idx < 0 {
		return false
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.publish("remove")
	return true
}

// UpdateQuantity sets the quantity of a line in place. A quantity of zero or
// less removes the line.
func (s *Store) UpdateQuantity(itemID uuid.UUID, quantity int) bool {
	if quantity <= 0 {
		return s.Remove(itemID)
	}
	idx := s.indexOfItem(itemID)
	if idx < 0 || s.items[idx].Quantity == quantity {
		return false
	}
	s.items[idx].Quantity = quantity
	s.publish("update")
	return true
}

// Clear empties the cart. Listeners are notified even when it was already
// empty so that derived totals always settle at zero.
func (s *Store) Clear() {
	s.items = nil
	s.publish("clear")
}

// Contains reports whether any line holds the product.
func (s *Store) Contains(productID uuid.UUID) bool {
	return s.indexOfProduct(productID) >= 0
}

// QuantityOf returns the quantity held for a product, 0 when absent.
func (s *Store) QuantityOf(productID uuid.UUID) int {
	if idx := s.indexOfProduct(productID); idx >= 0 {
		return s.items[idx].Quantity
	}
	return 0
}

// Item returns the line with the given identity.
func (s *Store) Item(itemID uuid.UUID) (LineItem, bool) {
	if idx := s.indexOfItem(itemID); idx >= 0 {
		return s.items[idx], true
	}
	return LineItem{}, false
}

// Items returns a copy of the lines.
func (s *Store) Items() []LineItem {
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// State returns a snapshot of the cart.
func (s *Store) State() State {
	return State{Items: s.Items()}
}

// Subtotal sums every line subtotal.
func (s *Store) Subtotal() decimal.Decimal { return s.State().Subtotal() }

// TotalUnits sums every line quantity.
func (s *Store) TotalUnits() int { return s.State().TotalUnits() }

// Subscribe registers fn for change notifications and returns a function
// that removes the registration.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.nextSubID++
	id := s.nextSubID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	return func() {
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) publish(op string) {
	if obs.CartMutationsTotal != nil {
		obs.CartMutationsTotal.WithLabelValues(op).Inc()
	}
	if len(s.listeners) == 0 {
		return
	}
	subs := make([]subscription, len(s.listeners))
	copy(subs, s.listeners)
	for _, sub := range subs {
		sub.fn(s.State())
	}
}

func (s *Store) indexOfProduct(productID uuid.UUID) int {
	for i, it := range s.items {
		if it.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfItem(itemID uuid.UUID) int {
	for i, it := range s.items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}
