package approval

import (
	"context"

	"pestctl/internal/core/id"
	"pestctl/internal/domain"
)

// Repository persists approvals with their items.
type Repository interface {
	// Create inserts the header and all items.
	Create(ctx context.Context, a *Approval) error

	GetByID(ctx context.Context, companyID, approvalID id.ID) (*Approval, error)

	// GetForUpdate loads the approval and row-locks the header.
	GetForUpdate(ctx context.Context, companyID, approvalID id.ID) (*Approval, error)

	// SaveResolution writes the header status fields and every item's approved fields.
	SaveResolution(ctx context.Context, a *Approval) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Approval], error)
}

// IssueUpdater moves the paired Issue to the status matching a resolution.
type IssueUpdater interface {
	ApplyApprovalStatus(ctx context.Context, companyID, issueID id.ID, status Status) error
}
