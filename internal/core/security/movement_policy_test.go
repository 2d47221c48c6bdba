package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestctl/internal/core/apperror"
	appctx "pestctl/internal/core/context"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
)

func TestMovementPolicy_DefaultTable(t *testing.T) {
	policy, err := NewMovementPolicy(DefaultMovementRules())
	require.NoError(t, err)

	company := id.New()
	branchA, branchB := id.New(), id.New()
	tech := id.New()
	otherTech := id.New()

	admin := Actor{UserID: "u-admin", CompanyID: company, Role: RoleAdmin}
	manager := Actor{UserID: "u-bm", CompanyID: company, BranchID: branchA, Role: RoleBranchManager}
	technician := Actor{UserID: "u-tech", CompanyID: company, TechnicianID: tech, Role: RoleTechnician}

	tests := []struct {
		name    string
		actor   Actor
		kind    entity.MovementKind
		src     entity.Location
		dst     entity.Location
		allowed bool
	}{
		{"admin receipt to company", admin, entity.MovementReceipt, entity.Location{}, entity.Company(company), true},
		{"admin issue company to branch", admin, entity.MovementIssue, entity.Company(company), entity.Branch(branchA), true},
		{"admin consumption", admin, entity.MovementConsumption, entity.Technician(tech), entity.Location{}, true},
		{"admin issue to company denied", admin, entity.MovementIssue, entity.Branch(branchA), entity.Company(company), false},
		{"manager issues from own branch", manager, entity.MovementIssue, entity.Branch(branchA), entity.Technician(tech), true},
		{"manager issues from other branch", manager, entity.MovementIssue, entity.Branch(branchB), entity.Technician(tech), false},
		{"manager receipt into own branch", manager, entity.MovementReceipt, entity.Location{}, entity.Branch(branchA), true},
		{"manager receipt into company", manager, entity.MovementReceipt, entity.Location{}, entity.Company(company), false},
		{"technician returns own stock", technician, entity.MovementReturn, entity.Technician(tech), entity.Branch(branchA), true},
		{"technician returns other stock", technician, entity.MovementReturn, entity.Technician(otherTech), entity.Branch(branchA), false},
		{"technician consumes own stock", technician, entity.MovementConsumption, entity.Technician(tech), entity.Location{}, true},
		{"technician cannot issue", technician, entity.MovementIssue, entity.Branch(branchA), entity.Technician(tech), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.AuthorizeMovement(context.Background(), tt.actor, tt.kind, tt.src, tt.dst)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
		})
	}
}

func TestNewMovementPolicy_RejectsBadCondition(t *testing.T) {
	_, err := NewMovementPolicy([]MovementRule{
		{Role: RoleAdmin, Kind: entity.MovementIssue, Source: entity.LocationBranch, Destination: entity.LocationBranch, Condition: "source.id +"},
	})
	assert.Error(t, err)

	_, err = NewMovementPolicy([]MovementRule{
		{Role: RoleAdmin, Kind: entity.MovementIssue, Source: entity.LocationBranch, Destination: entity.LocationBranch, Condition: "source.id"},
	})
	assert.Error(t, err, "non-boolean condition")
}

func TestActor_Covers(t *testing.T) {
	branch, tech := id.New(), id.New()

	assert.True(t, Actor{Role: RoleAdmin}.Covers(entity.Branch(branch)))
	assert.True(t, Actor{Role: RoleBranchManager, BranchID: branch}.Covers(entity.Branch(branch)))
	assert.False(t, Actor{Role: RoleBranchManager, BranchID: branch}.Covers(entity.Branch(id.New())))
	assert.False(t, Actor{Role: RoleTechnician, BranchID: branch}.Covers(entity.Branch(branch)))
	assert.True(t, Actor{Role: RoleTechnician, TechnicianID: tech}.Covers(entity.Technician(tech)))
	assert.False(t, Actor{Role: RoleBranchManager, BranchID: branch}.Covers(entity.Company(id.New())))
}

func TestActorFromContext(t *testing.T) {
	_, err := ActorFromContext(context.Background())
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	company, branch := id.New(), id.New()
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:    "u-1",
		CompanyID: company.String(),
		BranchID:  branch.String(),
		Role:      string(RoleBranchManager),
	})
	actor, err := ActorFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, company, actor.CompanyID)
	assert.Equal(t, branch, actor.BranchID)
	assert.Equal(t, RoleBranchManager, actor.Role)

	ctx = appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-2", CompanyID: "nope"})
	_, err = ActorFromContext(ctx)
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
}
