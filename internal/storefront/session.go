// Package storefront is the application shell around the checkout core: it
// owns per-session carts and serves them over HTTP.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/express-checkout/internal/cart"
	"github.com/noah-isme/express-checkout/internal/checkout"
	"github.com/noah-isme/express-checkout/internal/mainloop"
	"github.com/noah-isme/express-checkout/internal/pricing"
	"github.com/noah-isme/express-checkout/internal/shipping"
)

// DefaultSessionID is used when a request names no session.
const DefaultSessionID = "kiosk"

// ErrTooManySessions is returned when the registry is full.
var ErrTooManySessions = errors.New("storefront: session limit reached")

// SessionConfig holds the collaborators shared by every session.
type SessionConfig struct {
	Tax      pricing.Calculator
	Payments checkout.PaymentStarter
	Shipping shipping.Provider
	Receipts checkout.ReceiptSink
	Events   checkout.Emitter
	Codes    checkout.CodeSource
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Session is one shopper's cart and checkout. Every cart mutation and every
// payment completion runs on the session's loop.
type Session struct {
	ID   string
	loop *mainloop.Loop
	cart *cart.Store
	vm   *checkout.ViewModel
}

// NewSession starts a session loop and binds a fresh cart to a view-model.
func NewSession(id string, cfg SessionConfig) (*Session, error) {
	logger := cfg.Logger.With().Str("session_id", id).Logger()
	loop := mainloop.New(mainloop.WithPanicHandler(func(v any) {
		logger.Error().Str("panic", fmt.Sprint(v)).Msg("session loop recovered panic")
	}))
	store := cart.NewStore()
	vm, err := checkout.NewViewModel(checkout.Config{
		Owner:      id,
		Cart:       store,
		Tax:        cfg.Tax,
		Payments:   cfg.Payments,
		Shipping:   cfg.Shipping,
		Dispatcher: checkout.DispatchFunc(loop.Dispatch),
		Receipts:   cfg.Receipts,
		Events:     cfg.Events,
		Codes:      cfg.Codes,
		Now:        cfg.Now,
		Logger:     &logger,
	})
	if err != nil {
		loop.Close()
		return nil, err
	}
	return &Session{ID: id, loop: loop, cart: store, vm: vm}, nil
}

// Do runs fn on the session loop and waits for it.
func (s *Session) Do(ctx context.Context, fn func(store *cart.Store, vm *checkout.ViewModel)) error {
	return s.loop.Do(ctx, func() { fn(s.cart, s.vm) })
}

// Snapshot returns the view-model state. Safe from any goroutine.
func (s *Session) Snapshot() checkout.Snapshot { return s.vm.Snapshot() }

// Close stops the session loop after draining queued work.
func (s *Session) Close() { s.loop.Close() }

// DefaultIdleTTL is how long an untouched session survives.
const DefaultIdleTTL = 30 * time.Minute

type tracked struct {
	sess     *Session
	lastUsed time.Time
}

// Sessions creates sessions on first use and closes them once they sit idle
// for longer than the idle TTL. A session with a payment in flight is never
// evicted.
type Sessions struct {
	cfg   SessionConfig
	limit int
	idle  time.Duration
	now   func() time.Time

	mu   sync.Mutex
	byID map[string]*tracked
}

// NewSessions returns a registry. A non-positive limit means unbounded; a
// non-positive idleTTL keeps sessions until Close.
func NewSessions(cfg SessionConfig, limit int, idleTTL time.Duration) *Sessions {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sessions{cfg: cfg, limit: limit, idle: idleTTL, now: now, byID: make(map[string]*tracked)}
}

// Get returns the session for id, creating it when missing. A full registry
// first evicts idle sessions and only then reports ErrTooManySessions.
func (s *Sessions) Get(id string) (*Session, error) {
	now := s.now()
	s.mu.Lock()
	if t, ok := s.byID[id]; ok {
		t.lastUsed = now
		s.mu.Unlock()
		return t.sess, nil
	}
	var evicted []*Session
	if s.full() {
		evicted = s.evictLocked(now)
	}
	defer closeAll(evicted)
	defer s.mu.Unlock()
	if s.full() {
		return nil, ErrTooManySessions
	}
	sess, err := NewSession(id, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	s.byID[id] = &tracked{sess: sess, lastUsed: now}
	return sess, nil
}

func (s *Sessions) full() bool {
	return s.limit > 0 && len(s.byID) >= s.limit
}

func (s *Sessions) evictLocked(now time.Time) []*Session {
	if s.idle <= 0 {
		return nil
	}
	var evicted []*Session
	for id, t := range s.byID {
		if now.Sub(t.lastUsed) < s.idle || t.sess.Snapshot().Processing {
			continue
		}
		delete(s.byID, id)
		evicted = append(evicted, t.sess)
	}
	return evicted
}

// Sweep closes every idle session and reports how many it closed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	evicted := s.evictLocked(s.now())
	s.mu.Unlock()
	closeAll(evicted)
	return len(evicted)
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Sessions) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.cfg.Logger.Debug().Int("evicted", n).Msg("idle sessions closed")
			}
		}
	}
}

// Len reports how many sessions are open.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Close stops every session.
func (s *Sessions) Close() {
	s.mu.Lock()
	open := make([]*Session, 0, len(s.byID))
	for _, t := range s.byID {
		open = append(open, t.sess)
	}
	s.byID = make(map[string]*tracked)
	s.mu.Unlock()
	closeAll(open)
}

func closeAll(sessions []*Session) {
	for _, sess := range sessions {
		sess.Close()
	}
}
