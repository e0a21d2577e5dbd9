package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DB is the subset of pgxpool.Pool the archive uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Archive keeps the order history in Postgres. Receipts outlive their Redis
// TTL here.
type Archive struct {
	db DB
}

// NewArchive returns an archive over db.
func NewArchive(db DB) *Archive {
	return &Archive{db: db}
}

const insertReceipt = `
INSERT INTO receipts (id, session_id, confirmation_code, subtotal, tax, total, shipping, items, purchased_at)
VALUES ($1::uuid, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::jsonb, $8::jsonb, $9)
ON CONFLICT (id) DO NOTHING`

const selectByCode = `
SELECT id::text, session_id, confirmation_code, subtotal::text, tax::text, total::text, shipping, items, purchased_at
FROM receipts
WHERE session_id = $1 AND confirmation_code = $2
ORDER BY purchased_at DESC
LIMIT 1`

// Save archives r. Saving the same receipt twice is a no-op.
func (a *Archive) Save(ctx context.Context, r Record) error {
	shipping, err := json.Marshal(r.Shipping)
	if err != nil {
		return fmt.Errorf("encode shipping: %w", err)
	}
	items, err := json.Marshal(r.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	_, err = a.db.Exec(ctx, insertReceipt,
		r.ID.String(), r.Owner, r.ConfirmationCode,
		r.Subtotal.String(), r.Tax.String(), r.Total.String(),
		string(shipping), string(items), r.PurchasedAt.UTC())
	if err != nil {
		return fmt.Errorf("archive receipt: %w", err)
	}
	return nil
}

// FindByConfirmation returns owner's most recent receipt with the code.
// Codes may collide; the newest purchase wins.
func (a *Archive) FindByConfirmation(ctx context.Context, owner, code string) (Record, error) {
	var (
		id, subtotal, tax, total string
		shipping, items          []byte
		purchasedAt              time.Time
		r                        Record
	)
	err := a.db.QueryRow(ctx, selectByCode, owner, code).Scan(
		&id, &r.Owner, &r.ConfirmationCode, &subtotal, &tax, &total, &shipping, &items, &purchasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("find receipt: %w", err)
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return Record{}, fmt.Errorf("decode receipt id: %w", err)
	}
	for dst, src := range map[*decimal.Decimal]string{&r.Subtotal: subtotal, &r.Tax: tax, &r.Total: total} {
		if *dst, err = decimal.NewFromString(src); err != nil {
			return Record{}, fmt.Errorf("decode amount: %w", err)
		}
	}
	if err := json.Unmarshal(shipping, &r.Shipping); err != nil {
		return Record{}, fmt.Errorf("decode shipping: %w", err)
	}
	if err := json.Unmarshal(items, &r.Items); err != nil {
		return Record{}, fmt.Errorf("decode items: %w", err)
	}
	r.PurchasedAt = purchasedAt
	return r, nil
}
