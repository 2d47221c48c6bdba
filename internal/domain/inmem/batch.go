package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/ledger"
)

// Batches returns the batch repository.
func (s *Store) Batches() *BatchRepo { return &BatchRepo{s} }

// BatchRepo implements batch.Repository.
type BatchRepo struct{ s *Store }

var _ batch.Repository = (*BatchRepo)(nil)

// SeedBatch stores b as opening stock and writes the matching ledger row so
// the batch reconciles from the start.
func (s *Store) SeedBatch(b *batch.Batch) *batch.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id.IsNil(b.ID) {
		b.ID = id.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	if b.InitialQty.IsZero() {
		b.InitialQty = b.CurrentQty
	}
	b.UpdatedAt = b.CreatedAt
	s.st.batches[b.ID] = b.Clone()
	s.appendLedgerLocked(&ledger.Entry{
		ID:           id.New(),
		CompanyID:    b.CompanyID,
		ItemID:       b.ItemID,
		BatchID:      b.ID,
		Location:     b.Location,
		MovementType: ledger.TypeReceipt,
		MovementID:   id.Nil(),
		Date:         b.CreatedAt,
		QtyIn:        b.CurrentQty,
		QtyOut:       decimal.Zero,
		BalanceQty:   b.CurrentQty,
		Rate:         b.Rate,
		BalanceValue: b.CurrentQty.Mul(b.Rate).Round(2),
		Note:         "opening stock",
	})
	return b.Clone()
}

func (r *BatchRepo) GetByID(_ context.Context, companyID, batchID id.ID) (*batch.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.st.batches[batchID]
	if !ok || b.CompanyID != companyID {
		return nil, apperror.NewNotFound("batch", batchID.String())
	}
	return b.Clone(), nil
}

func (r *BatchRepo) GetForUpdate(ctx context.Context, companyID, batchID id.ID) (*batch.Batch, error) {
	return r.GetByID(ctx, companyID, batchID)
}

func (r *BatchRepo) ListForUpdate(_ context.Context, companyID, itemID id.ID, loc entity.Location) ([]*batch.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*batch.Batch
	for _, b := range r.s.st.batches {
		if b.CompanyID == companyID && b.ItemID == itemID && b.Location.Equal(loc) {
			out = append(out, b.Clone())
		}
	}
	sortBatches(out)
	return out, nil
}

func (r *BatchRepo) List(_ context.Context, f batch.ListFilter) (domain.ListResult[*batch.Batch], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*batch.Batch
	for _, b := range r.s.st.batches {
		if b.CompanyID != f.CompanyID {
			continue
		}
		if f.ItemID != nil && b.ItemID != *f.ItemID {
			continue
		}
		if f.Location != nil && !b.Location.Equal(*f.Location) {
			continue
		}
		if !f.IncludeEmpty && !b.CurrentQty.IsPositive() {
			continue
		}
		out = append(out, b.Clone())
	}
	sortBatches(out)
	return domain.Paginate(out, f.Page), nil
}

func (r *BatchRepo) Decrement(_ context.Context, batchID id.ID, qty decimal.Decimal) (*batch.Batch, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.st.batches[batchID]
	if !ok {
		return nil, false, apperror.NewNotFound("batch", batchID.String())
	}
	if b.CurrentQty.LessThan(qty) {
		return b.Clone(), false, nil
	}
	b.CurrentQty = b.CurrentQty.Sub(qty)
	b.UpdatedAt = r.s.now()
	return b.Clone(), true, nil
}

func (r *BatchRepo) Increment(_ context.Context, batchID id.ID, qty decimal.Decimal) (*batch.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.st.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("batch", batchID.String())
	}
	b.CurrentQty = b.CurrentQty.Add(qty)
	b.UpdatedAt = r.s.now()
	return b.Clone(), nil
}

func (r *BatchRepo) Upsert(_ context.Context, companyID id.ID, key batch.Key, qty decimal.Decimal, meta batch.Meta) (*batch.Batch, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.st.batches {
		if b.CompanyID == companyID && b.Key() == key {
			b.CurrentQty = b.CurrentQty.Add(qty)
			b.UpdatedAt = r.s.now()
			return b.Clone(), false, nil
		}
	}
	now := r.s.now()
	b := &batch.Batch{
		ID:         id.New(),
		CompanyID:  companyID,
		ItemID:     key.ItemID,
		BatchNo:    key.BatchNo,
		MfgDate:    meta.MfgDate,
		ExpiryDate: meta.ExpiryDate,
		InitialQty: qty,
		CurrentQty: qty,
		Rate:       meta.Rate,
		GSTRate:    meta.GSTRate,
		Location:   key.Location,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.s.st.batches[b.ID] = b
	return b.Clone(), true, nil
}

func (r *BatchRepo) MarkExpired(_ context.Context, asOf time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, b := range r.s.st.batches {
		if !b.Expired && b.IsExpiredAt(asOf) {
			b.Expired = true
			b.UpdatedAt = r.s.now()
			n++
		}
	}
	return n, nil
}

func sortBatches(bs []*batch.Batch) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].CreatedAt.Before(bs[j].CreatedAt)
		}
		return bs[i].ID.String() < bs[j].ID.String()
	})
}
