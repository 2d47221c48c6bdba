package ledger

import (
	"context"

	"pestctl/internal/core/id"
	"pestctl/internal/domain"
)

// Repository stores ledger rows. There is no update or delete.
type Repository interface {
	// Append inserts e and fills its Seq and CreatedAt.
	Append(ctx context.Context, e *Entry) error

	List(ctx context.Context, filter Filter) (domain.ListResult[*Entry], error)

	// ListByBatch returns the whole history of a batch in seq order.
	ListByBatch(ctx context.Context, companyID, batchID id.ID) ([]*Entry, error)
}
