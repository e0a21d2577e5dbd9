// Package jobs runs receipt document exports on the asynq queue.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/express-checkout/internal/events"
	"github.com/noah-isme/express-checkout/internal/obs"
	"github.com/noah-isme/express-checkout/internal/receipt"
)

// TypeReceiptExport renders and stores a receipt document.
const TypeReceiptExport = "receipt:export"

// DefaultQueue receives export tasks unless configured otherwise.
const DefaultQueue = "receipts"

// ExportPayload is the task body of TypeReceiptExport.
type ExportPayload struct {
	ReceiptID uuid.UUID `json:"receiptId"`
}

// NewExportTask builds an export task for the receipt.
func NewExportTask(receiptID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(ExportPayload{ReceiptID: receiptID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReceiptExport, data), nil
}

// Enqueuer is the part of asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExportNotifier enqueues an export whenever a receipt is issued. The task id
// is the receipt id so a receipt is exported at most once.
type ExportNotifier struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
	Logger   zerolog.Logger
}

func (n ExportNotifier) Notify(ctx context.Context, ev events.Event) error {
	if ev.Topic != events.TopicReceiptIssued || n.Client == nil {
		return nil
	}
	task, err := NewExportTask(ev.AggregateID)
	if err != nil {
		return fmt.Errorf("build export task: %w", err)
	}
	queue := strings.TrimSpace(n.Queue)
	if queue == "" {
		queue = DefaultQueue
	}
	opts := []asynq.Option{asynq.TaskID(ev.AggregateID.String()), asynq.Queue(queue)}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	info, err := n.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue receipt export: %w", err)
	}
	n.Logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Msg("receipt export enqueued")
	return nil
}

// DocumentStore loads receipts and keeps their rendered documents.
type DocumentStore interface {
	Get(ctx context.Context, id uuid.UUID) (receipt.Record, error)
	SaveDocument(ctx context.Context, id uuid.UUID, doc []byte) error
}

// ExportHandler renders receipt documents on the worker.
type ExportHandler struct {
	Store    DocumentStore
	Renderer receipt.Renderer
	Logger   zerolog.Logger
}

// ProcessTask implements asynq.Handler. Receipts that no longer exist are not
// retried.
func (h ExportHandler) ProcessTask(ctx context.Context, task *asynq.Task) (err error) {
	defer func() {
		if obs.ReceiptExportTotal == nil {
			return
		}
		result := "ok"
		switch {
		case errors.Is(err, asynq.SkipRetry):
			result = "skipped"
		case err != nil:
			result = "error"
		}
		obs.ReceiptExportTotal.WithLabelValues(result).Inc()
	}()

	var payload ExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode export payload: %v: %w", err, asynq.SkipRetry)
	}
	rec, err := h.Store.Get(ctx, payload.ReceiptID)
	if errors.Is(err, receipt.ErrNotFound) {
		return fmt.Errorf("receipt %s: %v: %w", payload.ReceiptID, err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	renderer := h.Renderer
	if renderer == nil {
		renderer = receipt.TextRenderer{}
	}
	var buf bytes.Buffer
	if err := renderer.Render(&buf, rec); err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	if err := h.Store.SaveDocument(ctx, rec.ID, buf.Bytes()); err != nil {
		return err
	}
	h.Logger.Info().Str("receipt_id", rec.ID.String()).Int("bytes", buf.Len()).Msg("receipt exported")
	return nil
}

// NewServeMux routes export tasks to h.
func NewServeMux(h ExportHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeReceiptExport, h)
	return mux
}
