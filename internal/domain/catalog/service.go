package catalog

import (
	"context"
	"fmt"
	"time"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/core/tx"
	"pestctl/internal/domain"
	"pestctl/internal/domain/uom"
	"pestctl/pkg/logger"
)

// Service provides item catalog operations.
type Service struct {
	repo      Repository
	reader    Reader
	txManager tx.Manager
}

// NewService creates a catalog service. reader may be nil, in which case
// lookups go straight to repo.
func NewService(repo Repository, reader Reader, txManager tx.Manager) *Service {
	if reader == nil {
		reader = repo
	}
	return &Service{repo: repo, reader: reader, txManager: txManager}
}

// Create registers a new item.
func (s *Service) Create(ctx context.Context, item *Item) error {
	item.Normalize()
	if err := item.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(item.ID) {
		item.ID = id.New()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, item)
	})
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}

	logger.Info(ctx, "item created", "item_id", item.ID, "base_unit", item.BaseUnit)
	return nil
}

// Update edits an item. The base unit is fixed once the item exists because
// batch quantities are stored in it.
func (s *Service) Update(ctx context.Context, item *Item) error {
	item.Normalize()
	if err := item.Validate(ctx); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, item.CompanyID, item.ID)
		if err != nil {
			return err
		}
		if current.BaseUnit != item.BaseUnit {
			return apperror.NewValidation("base unit cannot be changed").
				WithDetail("field", "base_unit").
				WithDetail("current", current.BaseUnit)
		}
		item.CreatedAt = current.CreatedAt
		item.UpdatedAt = time.Now().UTC()
		return s.repo.Update(ctx, item)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "item updated", "item_id", item.ID, "conversions", len(item.Conversions))
	return nil
}

// Get returns an item of the company.
func (s *Service) Get(ctx context.Context, companyID, itemID id.ID) (*Item, error) {
	return s.reader.GetByID(ctx, companyID, itemID)
}

// List returns items of the company.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Item], error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.List(ctx, filter)
}

// Converter returns the unit converter of an item.
func (s *Service) Converter(ctx context.Context, companyID, itemID id.ID) (*Item, *uom.Converter, error) {
	item, err := s.Get(ctx, companyID, itemID)
	if err != nil {
		return nil, nil, err
	}
	return item, item.Converter(), nil
}
