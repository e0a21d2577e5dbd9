package storefront

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/express-checkout/internal/checkout"
	"github.com/noah-isme/express-checkout/internal/events"
	"github.com/noah-isme/express-checkout/internal/receipt"
)

// ReceiptSaver persists a receipt.
type ReceiptSaver interface {
	Save(ctx context.Context, r receipt.Record) error
}

// ReceiptPublisher makes an issued receipt retrievable: it keeps the record
// in the active store, copies it to the archive when one is configured and
// announces it on the bus.
type ReceiptPublisher struct {
	Store   ReceiptSaver
	Archive ReceiptSaver
	Events  checkout.Emitter
	Logger  zerolog.Logger
}

// Publish implements checkout.ReceiptSink. The issued event is only emitted
// once the active store holds the record, since exports read it from there.
func (p ReceiptPublisher) Publish(ctx context.Context, r receipt.Record) error {
	if p.Store == nil {
		return errors.New("storefront: receipt store not configured")
	}
	if err := p.Store.Save(ctx, r); err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	var archiveErr error
	if p.Archive != nil {
		if err := p.Archive.Save(ctx, r); err != nil {
			archiveErr = fmt.Errorf("archive receipt: %w", err)
			p.Logger.Warn().Err(err).Str("receipt_id", r.ID.String()).Msg("archive receipt")
		}
	}
	if p.Events != nil {
		if _, err := p.Events.Emit(ctx, events.TopicReceiptIssued, r.ID, map[string]any{
			"confirmationCode": r.ConfirmationCode,
			"total":            r.Total,
			"units":            r.UnitCount(),
		}); err != nil {
			p.Logger.Warn().Err(err).Str("receipt_id", r.ID.String()).Msg("emit receipt issued")
		}
	}
	return archiveErr
}
