// Package catalog_repo provides PostgreSQL implementations of the item
// catalog and the company directory.
package catalog_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/uom"
	"pestctl/internal/infrastructure/storage/postgres"
)

const (
	itemsTable       = "items"
	conversionsTable = "item_conversions"
)

var itemColumns = postgres.ExtractDBColumns[catalog.Item]()

type conversionRow struct {
	ItemID id.ID `db:"item_id"`
	uom.Conversion
}

// ItemRepo implements catalog.Repository.
type ItemRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ catalog.Repository = (*ItemRepo)(nil)

// NewItemRepo creates a new item repository.
func NewItemRepo(txManager *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the item and its conversions.
func (r *ItemRepo) Create(ctx context.Context, item *catalog.Item) error {
	sql, args, err := r.builder.Insert(itemsTable).SetMap(postgres.StructToMap(item)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if _, dup := postgres.IsUniqueViolation(err); dup {
			return apperror.NewDuplicate("item", "id", item.ID.String()).WithCause(err)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return r.insertConversions(ctx, item)
}

// Update rewrites item attributes and replaces the conversion set.
func (r *ItemRepo) Update(ctx context.Context, item *catalog.Item) error {
	sql, args, err := r.builder.Update(itemsTable).
		Set("name", item.Name).
		Set("category", item.Category).
		Set("gst_rate", item.GSTRate).
		Set("updated_at", item.UpdatedAt).
		Where(squirrel.Eq{"id": item.ID, "company_id": item.CompanyID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	q := r.txManager.GetQuerier(ctx)
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("item", item.ID.String())
	}

	if _, err := q.Exec(ctx, `DELETE FROM `+conversionsTable+` WHERE item_id = $1`, item.ID); err != nil {
		return fmt.Errorf("clear conversions: %w", err)
	}
	return r.insertConversions(ctx, item)
}

func (r *ItemRepo) insertConversions(ctx context.Context, item *catalog.Item) error {
	if len(item.Conversions) == 0 {
		return nil
	}
	q := r.builder.Insert(conversionsTable).Columns("item_id", "from_unit", "to_unit", "factor")
	for _, c := range item.Conversions {
		q = q.Values(item.ID, c.FromUnit, c.ToUnit, c.Factor)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert conversions: %w", err)
	}
	return nil
}

// GetByID loads an item with its conversions.
func (r *ItemRepo) GetByID(ctx context.Context, companyID, itemID id.ID) (*catalog.Item, error) {
	sql, args, err := r.builder.Select(itemColumns...).From(itemsTable).
		Where(squirrel.Eq{"id": itemID, "company_id": companyID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var item catalog.Item
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &item, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("item", itemID.String())
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	if err := r.attachConversions(ctx, []*catalog.Item{&item}); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns items ordered by name.
func (r *ItemRepo) List(ctx context.Context, f catalog.ListFilter) (domain.ListResult[*catalog.Item], error) {
	result := domain.ListResult[*catalog.Item]{Limit: f.Limit, Offset: f.Offset, Items: []*catalog.Item{}}

	q := r.builder.Select(itemColumns...).From(itemsTable).
		Where(squirrel.Eq{"company_id": f.CompanyID})
	if f.Category != "" {
		q = q.Where(squirrel.ILike{"category": strings.TrimSpace(f.Category)})
	}
	if f.Search != "" {
		q = q.Where(squirrel.ILike{"name": "%" + strings.TrimSpace(f.Search) + "%"})
	}

	querier := r.txManager.GetQuerier(ctx)
	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count items: %w", err)
	}

	sql, args, err := q.OrderBy("name", "id").Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list items: %w", err)
	}
	if err := r.attachConversions(ctx, result.Items); err != nil {
		return result, err
	}
	return result, nil
}

func (r *ItemRepo) attachConversions(ctx context.Context, items []*catalog.Item) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[id.ID]*catalog.Item, len(items))
	ids := make([]id.ID, 0, len(items))
	for _, it := range items {
		it.Conversions = []uom.Conversion{}
		byID[it.ID] = it
		ids = append(ids, it.ID)
	}

	sql, args, err := r.builder.Select("item_id", "from_unit", "to_unit", "factor").
		From(conversionsTable).
		Where(squirrel.Eq{"item_id": ids}).
		OrderBy("item_id", "from_unit", "to_unit").ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	var rows []conversionRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return fmt.Errorf("load conversions: %w", err)
	}
	for _, row := range rows {
		if it, ok := byID[row.ItemID]; ok {
			it.Conversions = append(it.Conversions, row.Conversion)
		}
	}
	return nil
}
