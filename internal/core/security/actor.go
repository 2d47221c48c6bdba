// Package security provides caller identity and movement authorization.
package security

import (
	"context"

	"pestctl/internal/core/apperror"
	appctx "pestctl/internal/core/context"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
)

// Role is the caller role supplied by the identity provider.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleBranchManager Role = "branch_manager"
	RoleTechnician    Role = "technician"
)

// Actor is the resolved caller of an engine operation.
type Actor struct {
	UserID       string
	CompanyID    id.ID
	BranchID     id.ID
	TechnicianID id.ID
	Role         Role
}

// ActorFromContext builds an Actor from the authenticated user in ctx.
func ActorFromContext(ctx context.Context) (Actor, error) {
	user := appctx.GetUser(ctx)
	if user == nil || user.UserID == "" {
		return Actor{}, apperror.NewUnauthorized("authentication required")
	}

	companyID, err := id.Parse(user.CompanyID)
	if err != nil {
		return Actor{}, apperror.NewForbidden("caller has no company scope")
	}

	actor := Actor{UserID: user.UserID, CompanyID: companyID, Role: Role(user.Role)}
	if user.BranchID != "" {
		if actor.BranchID, err = id.Parse(user.BranchID); err != nil {
			return Actor{}, apperror.NewForbidden("invalid branch scope")
		}
	}
	if user.TechnicianID != "" {
		if actor.TechnicianID, err = id.Parse(user.TechnicianID); err != nil {
			return Actor{}, apperror.NewForbidden("invalid technician scope")
		}
	}
	return actor, nil
}

// IsAdmin reports whether the actor administers the whole company.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Covers reports whether the actor may act on behalf of the given location,
// e.g. resolve an approval assigned to it.
func (a Actor) Covers(scope entity.Location) bool {
	if a.IsAdmin() {
		return true
	}
	switch scope.Kind {
	case entity.LocationBranch:
		return a.Role == RoleBranchManager && !id.IsNil(a.BranchID) && a.BranchID == scope.ID
	case entity.LocationTechnician:
		return !id.IsNil(a.TechnicianID) && a.TechnicianID == scope.ID
	}
	return false
}

// attributes exposes the actor to policy conditions.
func (a Actor) attributes() map[string]string {
	return map[string]string{
		"user_id":       a.UserID,
		"role":          string(a.Role),
		"company_id":    a.CompanyID.String(),
		"branch_id":     idString(a.BranchID),
		"technician_id": idString(a.TechnicianID),
	}
}

func idString(v id.ID) string {
	if id.IsNil(v) {
		return ""
	}
	return v.String()
}
