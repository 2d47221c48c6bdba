// Package posting applies batch quantity changes together with their ledger rows.
//
// Every method confirms the batch mutation first and only then appends the
// ledger row, inside the caller's transaction.
package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/id"
	"pestctl/internal/core/types"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/ledger"
)

// Posting describes the movement a stock change belongs to.
type Posting struct {
	Type       ledger.MovementType
	MovementID id.ID
	LineID     *id.ID
	Date       time.Time
	Actor      string
	Note       string
}

// Engine couples the batch store with the ledger.
type Engine struct {
	batches *batch.Store
	ledger  ledger.Repository
}

// NewEngine creates a posting engine.
func NewEngine(batches *batch.Store, ledgerRepo ledger.Repository) *Engine {
	return &Engine{batches: batches, ledger: ledgerRepo}
}

// Debit takes qty from b and records an outgoing row.
// Zero quantities post nothing and return b unchanged.
func (e *Engine) Debit(ctx context.Context, b *batch.Batch, qty decimal.Decimal, unit string, p Posting) (*batch.Batch, error) {
	if qty.IsZero() {
		return b, nil
	}
	updated, err := e.batches.Decrement(ctx, b, qty, unit)
	if err != nil {
		return nil, err
	}
	if err := e.record(ctx, updated, decimal.Zero, qty, p); err != nil {
		return nil, err
	}
	return updated, nil
}

// Credit adds qty back to an existing batch and records an incoming row.
// Zero quantities post nothing and return nil.
func (e *Engine) Credit(ctx context.Context, batchID id.ID, qty decimal.Decimal, p Posting) (*batch.Batch, error) {
	if qty.IsZero() {
		return nil, nil
	}
	updated, err := e.batches.Increment(ctx, batchID, qty)
	if err != nil {
		return nil, err
	}
	if err := e.record(ctx, updated, qty, decimal.Zero, p); err != nil {
		return nil, err
	}
	return updated, nil
}

// Receive credits qty to the batch at key, creating it from meta when needed,
// and records an incoming row.
func (e *Engine) Receive(ctx context.Context, companyID id.ID, key batch.Key, qty decimal.Decimal, meta batch.Meta, p Posting) (*batch.Batch, error) {
	if qty.IsZero() {
		return nil, nil
	}
	updated, _, err := e.batches.UpsertAtDestination(ctx, companyID, key, qty, meta)
	if err != nil {
		return nil, err
	}
	if err := e.record(ctx, updated, qty, decimal.Zero, p); err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *Engine) record(ctx context.Context, b *batch.Batch, in, out decimal.Decimal, p Posting) error {
	date := p.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	entry := &ledger.Entry{
		ID:             id.New(),
		CompanyID:      b.CompanyID,
		ItemID:         b.ItemID,
		BatchID:        b.ID,
		Location:       b.Location,
		MovementType:   p.Type,
		MovementID:     p.MovementID,
		MovementLineID: p.LineID,
		Date:           date,
		QtyIn:          in,
		QtyOut:         out,
		BalanceQty:     b.CurrentQty,
		Rate:           b.Rate,
		BalanceValue:   types.RoundMoney(b.CurrentQty.Mul(b.Rate)),
		Actor:          p.Actor,
		Note:           p.Note,
	}
	if err := e.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("append ledger %s for batch %s: %w", p.Type, b.ID, err)
	}
	return nil
}
