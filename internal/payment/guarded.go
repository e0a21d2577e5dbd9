package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/express-checkout/internal/resilience"
)

// Guarded trips a circuit breaker when the wrapped authorizer keeps failing to
// present. Declines are healthy answers and count as successes.
type Guarded struct {
	Next    Authorizer
	Breaker *resilience.Breaker
}

func (g Guarded) Authorize(ctx context.Context, req Request) (bool, error) {
	if g.Next == nil {
		return false, ErrNotPresented
	}
	if g.Breaker == nil {
		return g.Next.Authorize(ctx, req)
	}
	var approved bool
	err := g.Breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		approved, err = g.Next.Authorize(ctx, req)
		return err
	})
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return false, fmt.Errorf("%w: %w", ErrNotPresented, err)
	}
	return approved, err
}
