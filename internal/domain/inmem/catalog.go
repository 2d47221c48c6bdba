package inmem

import (
	"context"
	"sort"
	"strings"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/location"
)

// Items returns the item repository.
func (s *Store) Items() *ItemRepo { return &ItemRepo{s} }

// ItemRepo implements catalog.Repository.
type ItemRepo struct{ s *Store }

var _ catalog.Repository = (*ItemRepo)(nil)

func (r *ItemRepo) Create(_ context.Context, item *catalog.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.items[item.ID]; ok {
		return apperror.NewDuplicate("item", "id", item.ID.String())
	}
	r.s.st.items[item.ID] = item.Clone()
	return nil
}

func (r *ItemRepo) Update(_ context.Context, item *catalog.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.st.items[item.ID]
	if !ok || cur.CompanyID != item.CompanyID {
		return apperror.NewNotFound("item", item.ID.String())
	}
	r.s.st.items[item.ID] = item.Clone()
	return nil
}

func (r *ItemRepo) GetByID(_ context.Context, companyID, itemID id.ID) (*catalog.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	it, ok := r.s.st.items[itemID]
	if !ok || it.CompanyID != companyID {
		return nil, apperror.NewNotFound("item", itemID.String())
	}
	return it.Clone(), nil
}

func (r *ItemRepo) List(_ context.Context, f catalog.ListFilter) (domain.ListResult[*catalog.Item], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*catalog.Item
	for _, it := range r.s.st.items {
		if it.CompanyID != f.CompanyID {
			continue
		}
		if f.Category != "" && !strings.EqualFold(it.Category, f.Category) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(it.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, it.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return domain.Paginate(out, f.Page), nil
}

// AddBranch registers a branch of a company. main marks it as the warehouse.
func (s *Store) AddBranch(companyID, branchID id.ID, main bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.branches[branchID] = companyID
	if main {
		s.st.mainBranch[companyID] = branchID
	}
}

// AddTechnician registers a technician of a company.
func (s *Store) AddTechnician(companyID, technicianID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.technicians[technicianID] = companyID
}

// Directory returns the read-only company directory.
func (s *Store) Directory() location.Directory { return directory{s} }

type directory struct{ s *Store }

func (d directory) MainBranch(_ context.Context, companyID id.ID) (id.ID, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	b, ok := d.s.st.mainBranch[companyID]
	if !ok {
		return id.Nil(), apperror.NewNotFound("main branch", companyID.String())
	}
	return b, nil
}

func (d directory) BranchExists(_ context.Context, companyID, branchID id.ID) (bool, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	c, ok := d.s.st.branches[branchID]
	return ok && c == companyID, nil
}

func (d directory) TechnicianExists(_ context.Context, companyID, technicianID id.ID) (bool, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	c, ok := d.s.st.technicians[technicianID]
	return ok && c == companyID, nil
}
