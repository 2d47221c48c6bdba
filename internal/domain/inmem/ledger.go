package inmem

import (
	"context"

	"pestctl/internal/core/id"
	"pestctl/internal/domain"
	"pestctl/internal/domain/ledger"
)

// Ledger returns the ledger repository.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s} }

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct{ s *Store }

var _ ledger.Repository = (*LedgerRepo)(nil)

func (r *LedgerRepo) Append(_ context.Context, e *ledger.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendLedgerLocked(e)
	return nil
}

func (s *Store) appendLedgerLocked(e *ledger.Entry) {
	s.st.seq++
	e.Seq = s.st.seq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	cp := *e
	s.st.ledger = append(s.st.ledger, &cp)
}

func (r *LedgerRepo) List(_ context.Context, f ledger.Filter) (domain.ListResult[*ledger.Entry], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*ledger.Entry
	for _, e := range r.s.st.ledger {
		if e.CompanyID != f.CompanyID {
			continue
		}
		if f.ItemID != nil && e.ItemID != *f.ItemID {
			continue
		}
		if f.BatchID != nil && e.BatchID != *f.BatchID {
			continue
		}
		if f.Location != nil && !e.Location.Equal(*f.Location) {
			continue
		}
		if f.From != nil && e.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && e.Date.After(*f.To) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return domain.Paginate(out, f.Page), nil
}

func (r *LedgerRepo) ListByBatch(_ context.Context, companyID, batchID id.ID) ([]*ledger.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*ledger.Entry
	for _, e := range r.s.st.ledger {
		if e.CompanyID == companyID && e.BatchID == batchID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// LedgerLen returns the number of ledger rows.
func (s *Store) LedgerLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.ledger)
}
