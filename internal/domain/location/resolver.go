// Package location resolves tagged stock locations against the company directory.
package location

import (
	"context"
	"fmt"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
)

// Directory is the read-only view of company structure maintained outside the engine.
type Directory interface {
	// MainBranch returns the branch designated as the company warehouse.
	MainBranch(ctx context.Context, companyID id.ID) (id.ID, error)
	BranchExists(ctx context.Context, companyID, branchID id.ID) (bool, error)
	TechnicianExists(ctx context.Context, companyID, technicianID id.ID) (bool, error)
}

// Resolver turns caller-supplied locations into concrete stock locations.
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver over dir.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve validates loc within companyID and rewrites WAREHOUSE to the main branch.
// An absent location resolves to itself.
func (r *Resolver) Resolve(ctx context.Context, companyID id.ID, loc entity.Location) (entity.Location, error) {
	if loc.IsZero() {
		return loc, nil
	}

	switch loc.Kind {
	case entity.LocationWarehouse:
		if loc.ID != companyID && !id.IsNil(loc.ID) {
			return entity.Location{}, apperror.NewForbidden("warehouse belongs to another company")
		}
		branchID, err := r.dir.MainBranch(ctx, companyID)
		if err != nil {
			return entity.Location{}, fmt.Errorf("resolve main branch: %w", err)
		}
		return entity.Branch(branchID), nil

	case entity.LocationCompany:
		if loc.ID != companyID {
			return entity.Location{}, apperror.NewForbidden("company location belongs to another company")
		}
		return loc, nil

	case entity.LocationBranch:
		ok, err := r.dir.BranchExists(ctx, companyID, loc.ID)
		if err != nil {
			return entity.Location{}, fmt.Errorf("lookup branch: %w", err)
		}
		if !ok {
			return entity.Location{}, apperror.NewNotFound("branch", loc.ID)
		}
		return loc, nil

	case entity.LocationTechnician:
		ok, err := r.dir.TechnicianExists(ctx, companyID, loc.ID)
		if err != nil {
			return entity.Location{}, fmt.Errorf("lookup technician: %w", err)
		}
		if !ok {
			return entity.Location{}, apperror.NewNotFound("technician", loc.ID)
		}
		return loc, nil
	}

	return entity.Location{}, apperror.NewValidation("unknown location kind").WithDetail("kind", string(loc.Kind))
}

// ResolvePair resolves the source and destination of a movement.
func (r *Resolver) ResolvePair(ctx context.Context, companyID id.ID, source, destination entity.Location) (entity.Location, entity.Location, error) {
	src, err := r.Resolve(ctx, companyID, source)
	if err != nil {
		return entity.Location{}, entity.Location{}, err
	}
	dst, err := r.Resolve(ctx, companyID, destination)
	if err != nil {
		return entity.Location{}, entity.Location{}, err
	}
	return src, dst, nil
}
