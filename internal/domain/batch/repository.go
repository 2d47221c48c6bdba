package batch

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
)

// Reader provides read access to batches.
type Reader interface {
	GetByID(ctx context.Context, companyID, batchID id.ID) (*Batch, error)
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Batch], error)
}

// Repository persists batches. Mutating methods must run inside the caller's transaction.
type Repository interface {
	Reader

	// ListForUpdate returns and row-locks every batch of item at loc.
	ListForUpdate(ctx context.Context, companyID, itemID id.ID, loc entity.Location) ([]*Batch, error)

	// GetForUpdate returns and row-locks one batch. Missing batches yield NOT_FOUND.
	GetForUpdate(ctx context.Context, companyID, batchID id.ID) (*Batch, error)

	// Decrement subtracts qty only while current_qty >= qty. ok is false when the
	// guard rejected the update; the returned batch carries the new balance.
	Decrement(ctx context.Context, batchID id.ID, qty decimal.Decimal) (b *Batch, ok bool, err error)

	// Increment adds qty and returns the updated batch.
	Increment(ctx context.Context, batchID id.ID, qty decimal.Decimal) (*Batch, error)

	// Upsert finds the batch by key and adds qty, or creates it with meta and
	// initial_qty = current_qty = qty.
	Upsert(ctx context.Context, companyID id.ID, key Key, qty decimal.Decimal, meta Meta) (b *Batch, created bool, err error)

	// MarkExpired flags batches whose expiry date is before asOf.
	MarkExpired(ctx context.Context, asOf time.Time) (int64, error)
}
