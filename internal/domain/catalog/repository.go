package catalog

import (
	"context"

	"pestctl/internal/core/id"
	"pestctl/internal/domain"
)

// Reader loads a single item with its conversions.
// The catalog cache implements it on top of a Repository.
type Reader interface {
	GetByID(ctx context.Context, companyID, itemID id.ID) (*Item, error)
}

// Repository persists items and conversions.
type Repository interface {
	Reader

	// Create inserts the item and its conversions.
	Create(ctx context.Context, item *Item) error

	// Update rewrites item attributes and replaces its conversion set.
	Update(ctx context.Context, item *Item) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Item], error)
}
