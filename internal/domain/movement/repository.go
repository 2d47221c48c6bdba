package movement

import (
	"context"
	"time"

	"pestctl/internal/core/id"
	"pestctl/internal/domain"
)

// Repository persists movements with their lines.
type Repository interface {
	// Create inserts the header and all lines.
	Create(ctx context.Context, m *Movement) error

	// GetByID loads the header and lines.
	GetByID(ctx context.Context, companyID, movementID id.ID) (*Movement, error)

	// SetApproval links an issue with its approval.
	SetApproval(ctx context.Context, movementID, approvalID id.ID) error

	// UpdateStatus changes the header status.
	UpdateStatus(ctx context.Context, companyID, movementID id.ID, status Status, at time.Time) error

	// MarkReceived stores the receipt confirmation and sets status RECEIVED.
	MarkReceived(ctx context.Context, companyID, movementID id.ID, by string, at time.Time) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Movement], error)
}
