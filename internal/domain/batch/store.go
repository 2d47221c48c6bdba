package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
)

// Store implements allocation and guarded quantity changes on top of a Repository.
type Store struct {
	repo Repository
	now  func() time.Time
}

// NewStore creates a batch store.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

// WithClock overrides the clock used for expiry checks.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Demand describes stock required from one location, in base units.
type Demand struct {
	CompanyID id.ID
	ItemID    id.ID
	Location  entity.Location
	Qty       decimal.Decimal
	// Unit is reported in stock errors. It is the item base unit.
	Unit string
}

// AllocateFEFO locks the candidate batches of the demand and allocates from
// them first-expiry-first-out. Nothing is mutated.
func (s *Store) AllocateFEFO(ctx context.Context, d Demand) ([]Allocation, error) {
	candidates, err := s.repo.ListForUpdate(ctx, d.CompanyID, d.ItemID, d.Location)
	if err != nil {
		return nil, fmt.Errorf("lock candidate batches: %w", err)
	}

	asOf := s.now()
	allocations, shortfall := SelectFEFO(candidates, d.Qty, asOf)
	if shortfall.IsPositive() {
		return nil, insufficient(d, Available(candidates, asOf), shortfall)
	}
	return allocations, nil
}

// SelectSpecific validates a caller-named batch against the demand.
// Each mismatch yields a distinct INVALID_BATCH reason.
func (s *Store) SelectSpecific(ctx context.Context, batchID id.ID, d Demand) (Allocation, error) {
	b, err := s.repo.GetForUpdate(ctx, d.CompanyID, batchID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return Allocation{}, apperror.NewInvalidBatch(batchID.String(), apperror.BatchNotFound)
		}
		return Allocation{}, fmt.Errorf("lock batch: %w", err)
	}

	switch {
	case b.ItemID != d.ItemID:
		return Allocation{}, apperror.NewInvalidBatch(batchID.String(), apperror.BatchWrongItem)
	case !b.Location.Equal(d.Location):
		return Allocation{}, apperror.NewInvalidBatch(batchID.String(), apperror.BatchWrongLocation)
	case b.IsExpiredAt(s.now()):
		return Allocation{}, apperror.NewInvalidBatch(batchID.String(), apperror.BatchExpired)
	case b.CurrentQty.LessThan(d.Qty):
		return Allocation{}, insufficient(d, b.CurrentQty, d.Qty.Sub(b.CurrentQty)).
			WithDetail("batch_id", batchID.String())
	}
	return Allocation{Batch: b, Qty: d.Qty}, nil
}

// Decrement takes qty from b with a guarded update. A rejected guard fails
// with INSUFFICIENT_STOCK, which aborts the enclosing transaction.
func (s *Store) Decrement(ctx context.Context, b *Batch, qty decimal.Decimal, unit string) (*Batch, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("decrement quantity must be positive")
	}
	updated, ok, err := s.repo.Decrement(ctx, b.ID, qty)
	if err != nil {
		return nil, fmt.Errorf("decrement batch %s: %w", b.ID, err)
	}
	if !ok {
		available := decimal.Zero
		if updated != nil {
			available = updated.CurrentQty
		}
		d := Demand{CompanyID: b.CompanyID, ItemID: b.ItemID, Location: b.Location, Qty: qty, Unit: unit}
		return nil, insufficient(d, available, qty.Sub(available)).WithDetail("batch_id", b.ID.String())
	}
	return updated, nil
}

// Increment adds qty to an existing batch.
func (s *Store) Increment(ctx context.Context, batchID id.ID, qty decimal.Decimal) (*Batch, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("increment quantity must be positive")
	}
	b, err := s.repo.Increment(ctx, batchID, qty)
	if err != nil {
		return nil, fmt.Errorf("increment batch %s: %w", batchID, err)
	}
	return b, nil
}

// UpsertAtDestination credits qty to the batch identified by key, creating it
// with meta when absent.
func (s *Store) UpsertAtDestination(ctx context.Context, companyID id.ID, key Key, qty decimal.Decimal, meta Meta) (*Batch, bool, error) {
	if !qty.IsPositive() {
		return nil, false, apperror.NewValidation("upsert quantity must be positive")
	}
	if key.BatchNo == "" || key.Location.IsZero() {
		return nil, false, apperror.NewValidation("batch key requires batch number and location")
	}
	b, created, err := s.repo.Upsert(ctx, companyID, key, qty, meta)
	if err != nil {
		return nil, false, fmt.Errorf("upsert batch %s at %s: %w", key.BatchNo, key.Location, err)
	}
	return b, created, nil
}

// Get returns a batch of the company.
func (s *Store) Get(ctx context.Context, companyID, batchID id.ID) (*Batch, error) {
	return s.repo.GetByID(ctx, companyID, batchID)
}

// List returns batches matching filter.
func (s *Store) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Batch], error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.List(ctx, filter)
}

// SweepExpired flags batches that expired before asOf. Quantities are untouched.
func (s *Store) SweepExpired(ctx context.Context, asOf time.Time) (int64, error) {
	n, err := s.repo.MarkExpired(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark expired batches: %w", err)
	}
	return n, nil
}

func insufficient(d Demand, available, shortfall decimal.Decimal) *apperror.AppError {
	return apperror.NewInsufficientStock(
		d.ItemID.String(),
		d.Qty.String(),
		available.String(),
		shortfall.String(),
		d.Unit,
	).WithDetail("location", d.Location.String())
}
