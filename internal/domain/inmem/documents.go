package inmem

import (
	"context"
	"sort"
	"time"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
	"pestctl/internal/domain/approval"
	"pestctl/internal/domain/movement"
)

func cloneMovement(m *movement.Movement) *movement.Movement {
	c := *m
	c.Lines = make([]*movement.Line, len(m.Lines))
	for i, l := range m.Lines {
		cp := *l
		c.Lines[i] = &cp
	}
	return &c
}

// Movements returns the movement repository.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s} }

// MovementRepo implements movement.Repository.
type MovementRepo struct{ s *Store }

var _ movement.Repository = (*MovementRepo)(nil)

func (r *MovementRepo) Create(_ context.Context, m *movement.Movement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.movements[m.ID] = cloneMovement(m)
	return nil
}

func (r *MovementRepo) GetByID(_ context.Context, companyID, movementID id.ID) (*movement.Movement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.st.movements[movementID]
	if !ok || m.CompanyID != companyID {
		return nil, apperror.NewNotFound("movement", movementID.String())
	}
	return cloneMovement(m), nil
}

func (r *MovementRepo) SetApproval(_ context.Context, movementID, approvalID id.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.st.movements[movementID]
	if !ok {
		return apperror.NewNotFound("movement", movementID.String())
	}
	m.ApprovalID = &approvalID
	return nil
}

func (r *MovementRepo) UpdateStatus(_ context.Context, companyID, movementID id.ID, status movement.Status, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.st.movements[movementID]
	if !ok || m.CompanyID != companyID {
		return apperror.NewNotFound("movement", movementID.String())
	}
	m.Status = status
	m.UpdatedAt = at
	return nil
}

func (r *MovementRepo) MarkReceived(_ context.Context, companyID, movementID id.ID, by string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.st.movements[movementID]
	if !ok || m.CompanyID != companyID {
		return apperror.NewNotFound("movement", movementID.String())
	}
	m.Status = movement.StatusReceived
	m.ReceivedBy = by
	m.ReceivedAt = &at
	m.UpdatedAt = at
	return nil
}

func (r *MovementRepo) List(_ context.Context, f movement.ListFilter) (domain.ListResult[*movement.Movement], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*movement.Movement
	for _, m := range r.s.st.movements {
		if m.CompanyID != f.CompanyID {
			continue
		}
		if f.Kind != nil && m.Kind != *f.Kind {
			continue
		}
		if f.Status != nil && m.Status != *f.Status {
			continue
		}
		if f.Location != nil && !m.Source.Equal(*f.Location) && !m.Destination.Equal(*f.Location) {
			continue
		}
		if f.From != nil && m.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && m.Date.After(*f.To) {
			continue
		}
		out = append(out, cloneMovement(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return domain.Paginate(out, f.Page), nil
}

// Approvals returns the approval repository.
func (s *Store) Approvals() *ApprovalRepo { return &ApprovalRepo{s} }

// ApprovalRepo implements approval.Repository.
type ApprovalRepo struct{ s *Store }

var _ approval.Repository = (*ApprovalRepo)(nil)

func (r *ApprovalRepo) Create(_ context.Context, a *approval.Approval) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.approvals[a.ID] = a.Clone()
	return nil
}

func (r *ApprovalRepo) GetByID(_ context.Context, companyID, approvalID id.ID) (*approval.Approval, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.st.approvals[approvalID]
	if !ok || a.CompanyID != companyID {
		return nil, apperror.NewNotFound("approval", approvalID.String())
	}
	return a.Clone(), nil
}

func (r *ApprovalRepo) GetForUpdate(ctx context.Context, companyID, approvalID id.ID) (*approval.Approval, error) {
	return r.GetByID(ctx, companyID, approvalID)
}

func (r *ApprovalRepo) SaveResolution(_ context.Context, a *approval.Approval) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.approvals[a.ID]; !ok {
		return apperror.NewNotFound("approval", a.ID.String())
	}
	r.s.st.approvals[a.ID] = a.Clone()
	return nil
}

func (r *ApprovalRepo) List(_ context.Context, f approval.ListFilter) (domain.ListResult[*approval.Approval], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*approval.Approval
	for _, a := range r.s.st.approvals {
		if a.CompanyID != f.CompanyID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Scope != nil && !a.ApproverScope.Equal(*f.Scope) {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return domain.Paginate(out, f.Page), nil
}
