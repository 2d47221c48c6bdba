package ledger

import (
	"context"
	"fmt"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
	"pestctl/internal/domain/batch"
)

// Service serves ledger queries.
type Service struct {
	repo    Repository
	batches batch.Reader
}

// NewService creates a ledger service.
func NewService(repo Repository, batches batch.Reader) *Service {
	return &Service{repo: repo, batches: batches}
}

// List returns ledger rows matching filter, oldest first.
func (s *Service) List(ctx context.Context, filter Filter) (domain.ListResult[*Entry], error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.ListResult[*Entry]{}, apperror.NewValidation("'to' must not be before 'from'")
	}
	filter.Page = filter.Page.Normalize()
	return s.repo.List(ctx, filter)
}

// Reconcile replays the history of a batch and compares it with current_qty.
func (s *Service) Reconcile(ctx context.Context, companyID, batchID id.ID) (*Reconciliation, error) {
	b, err := s.batches.GetByID(ctx, companyID, batchID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListByBatch(ctx, companyID, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch ledger: %w", err)
	}

	replayed := Replay(entries)
	return &Reconciliation{
		BatchID:    batchID,
		CurrentQty: b.CurrentQty,
		LedgerQty:  replayed,
		Entries:    len(entries),
		Balanced:   replayed.Equal(b.CurrentQty),
	}, nil
}
