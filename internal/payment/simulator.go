package payment

import (
	"context"
	"time"
)

// Simulator stands in for the platform payment sheet.
type Simulator struct {
	// Delay is how long the customer takes to respond.
	Delay time.Duration
	// Approve decides the customer's answer.
	Approve bool
	// Presentable false makes every attempt fail to present.
	Presentable bool
}

// Authorize waits for Delay, then reports Approve. A cancelled context while
// waiting counts as the sheet being dismissed.
func (s Simulator) Authorize(ctx context.Context, _ Request) (bool, error) {
	if !s.Presentable {
		return false, ErrNotPresented
	}
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, nil
		case <-timer.C:
		}
	}
	return s.Approve, nil
}
