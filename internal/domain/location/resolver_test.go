package location

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
)

type fakeDirectory struct {
	main        map[id.ID]id.ID
	branches    map[id.ID]id.ID // branch -> company
	technicians map[id.ID]id.ID // technician -> company
}

func (d fakeDirectory) MainBranch(_ context.Context, companyID id.ID) (id.ID, error) {
	b, ok := d.main[companyID]
	if !ok {
		return id.Nil(), apperror.NewNotFound("main branch", companyID)
	}
	return b, nil
}

func (d fakeDirectory) BranchExists(_ context.Context, companyID, branchID id.ID) (bool, error) {
	return d.branches[branchID] == companyID, nil
}

func (d fakeDirectory) TechnicianExists(_ context.Context, companyID, technicianID id.ID) (bool, error) {
	return d.technicians[technicianID] == companyID, nil
}

func TestResolver_Resolve(t *testing.T) {
	company, other := id.New(), id.New()
	mainBranch, branch, foreignBranch := id.New(), id.New(), id.New()
	tech := id.New()

	r := NewResolver(fakeDirectory{
		main:        map[id.ID]id.ID{company: mainBranch},
		branches:    map[id.ID]id.ID{mainBranch: company, branch: company, foreignBranch: other},
		technicians: map[id.ID]id.ID{tech: company},
	})
	ctx := context.Background()

	tests := []struct {
		name    string
		in      entity.Location
		want    entity.Location
		errCode string
	}{
		{"warehouse resolves to main branch", entity.Warehouse(company), entity.Branch(mainBranch), ""},
		{"branch passes through", entity.Branch(branch), entity.Branch(branch), ""},
		{"technician passes through", entity.Technician(tech), entity.Technician(tech), ""},
		{"own company", entity.Company(company), entity.Company(company), ""},
		{"absent location", entity.Location{}, entity.Location{}, ""},
		{"foreign company", entity.Company(other), entity.Location{}, apperror.CodeForbidden},
		{"foreign warehouse", entity.Warehouse(other), entity.Location{}, apperror.CodeForbidden},
		{"foreign branch", entity.Branch(foreignBranch), entity.Location{}, apperror.CodeNotFound},
		{"unknown technician", entity.Technician(id.New()), entity.Location{}, apperror.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, company, tt.in)
			if tt.errCode != "" {
				require.Error(t, err)
				assert.True(t, apperror.HasCode(err, tt.errCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestResolver_MissingMainBranch(t *testing.T) {
	r := NewResolver(fakeDirectory{})
	_, err := r.Resolve(context.Background(), id.New(), entity.Warehouse(id.Nil()))
	assert.True(t, apperror.IsNotFound(err))
}
