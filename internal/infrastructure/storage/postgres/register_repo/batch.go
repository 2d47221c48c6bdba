// Package register_repo provides PostgreSQL implementations of the stock
// registers: batches and the append-only ledger.
package register_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
	"pestctl/internal/domain/batch"
	"pestctl/internal/infrastructure/storage/postgres"
)

const batchesTable = "batches"

var batchColumns = append(postgres.ExtractDBColumns[batch.Batch](), "location_kind", "location_id")

type batchRow struct {
	batch.Batch
	LocationKind string `db:"location_kind"`
	LocationID   *id.ID `db:"location_id"`
}

func (r *batchRow) toDomain() *batch.Batch {
	b := r.Batch
	b.Location = postgres.JoinLocation(r.LocationKind, r.LocationID)
	return &b
}

type upsertRow struct {
	batchRow
	Created bool `db:"created"`
}

// BatchRepo implements batch.Repository.
type BatchRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
	now       func() time.Time
}

var _ batch.Repository = (*BatchRepo)(nil)

// NewBatchRepo creates a new batch repository.
func NewBatchRepo(txManager *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:       time.Now,
	}
}

func locationEq(loc entity.Location) squirrel.Eq {
	return squirrel.Eq{"location_kind": string(loc.Kind), "location_id": loc.ID}
}

func (r *BatchRepo) selectOne(ctx context.Context, q squirrel.Sqlizer, batchID id.ID) (*batch.Batch, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var row batchRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID.String())
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return row.toDomain(), nil
}

// GetByID retrieves a batch of the company.
func (r *BatchRepo) GetByID(ctx context.Context, companyID, batchID id.ID) (*batch.Batch, error) {
	q := r.builder.Select(batchColumns...).From(batchesTable).
		Where(squirrel.Eq{"id": batchID, "company_id": companyID})
	return r.selectOne(ctx, q, batchID)
}

// GetForUpdate retrieves and row-locks a batch.
func (r *BatchRepo) GetForUpdate(ctx context.Context, companyID, batchID id.ID) (*batch.Batch, error) {
	q := r.builder.Select(batchColumns...).From(batchesTable).
		Where(squirrel.Eq{"id": batchID, "company_id": companyID}).
		Suffix("FOR UPDATE")
	return r.selectOne(ctx, q, batchID)
}

// ListForUpdate locks every batch of the item at loc in FEFO order.
// Locks are always taken in the same order, so concurrent issues from one
// location queue up instead of deadlocking.
func (r *BatchRepo) ListForUpdate(ctx context.Context, companyID, itemID id.ID, loc entity.Location) ([]*batch.Batch, error) {
	q := r.builder.Select(batchColumns...).From(batchesTable).
		Where(squirrel.Eq{"company_id": companyID, "item_id": itemID}).
		Where(locationEq(loc)).
		OrderBy("expiry_date ASC NULLS LAST", "created_at", "id").
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []*batchRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("lock batches: %w", err)
	}
	out := make([]*batch.Batch, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// List returns stock on hand matching filter.
func (r *BatchRepo) List(ctx context.Context, f batch.ListFilter) (domain.ListResult[*batch.Batch], error) {
	result := domain.ListResult[*batch.Batch]{Limit: f.Limit, Offset: f.Offset, Items: []*batch.Batch{}}

	q := r.builder.Select(batchColumns...).From(batchesTable).
		Where(squirrel.Eq{"company_id": f.CompanyID})
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.Location != nil {
		q = q.Where(locationEq(*f.Location))
	}
	if !f.IncludeEmpty {
		q = q.Where(squirrel.Gt{"current_qty": 0})
	}

	querier := r.txManager.GetQuerier(ctx)
	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count batches: %w", err)
	}

	sql, args, err := q.OrderBy("item_id", "expiry_date ASC NULLS LAST", "created_at", "id").
		Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	var rows []*batchRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, fmt.Errorf("list batches: %w", err)
	}
	for _, row := range rows {
		result.Items = append(result.Items, row.toDomain())
	}
	return result, nil
}

func returning() string {
	return "RETURNING " + strings.Join(batchColumns, ", ")
}

// Decrement subtracts qty guarded by current_qty >= qty. When the guard
// rejects the update the current row is returned with ok = false.
func (r *BatchRepo) Decrement(ctx context.Context, batchID id.ID, qty decimal.Decimal) (*batch.Batch, bool, error) {
	q := r.builder.Update(batchesTable).
		Set("current_qty", squirrel.Expr("current_qty - ?", qty)).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": batchID}).
		Where(squirrel.GtOrEq{"current_qty": qty}).
		Suffix(returning())

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build update: %w", err)
	}
	var row batchRow
	err = pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...)
	if err == nil {
		return row.toDomain(), true, nil
	}
	if !pgxscan.NotFound(err) {
		return nil, false, fmt.Errorf("decrement batch: %w", err)
	}

	current, err := r.selectOne(ctx, r.builder.Select(batchColumns...).From(batchesTable).
		Where(squirrel.Eq{"id": batchID}), batchID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// Increment adds qty to a batch.
func (r *BatchRepo) Increment(ctx context.Context, batchID id.ID, qty decimal.Decimal) (*batch.Batch, error) {
	q := r.builder.Update(batchesTable).
		Set("current_qty", squirrel.Expr("current_qty + ?", qty)).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": batchID}).
		Suffix(returning())
	return r.selectOne(ctx, q, batchID)
}

// Upsert credits qty to the batch at key or creates it from meta.
func (r *BatchRepo) Upsert(ctx context.Context, companyID id.ID, key batch.Key, qty decimal.Decimal, meta batch.Meta) (*batch.Batch, bool, error) {
	now := r.now().UTC()
	b := batch.Batch{
		ID:         id.New(),
		CompanyID:  companyID,
		ItemID:     key.ItemID,
		BatchNo:    key.BatchNo,
		MfgDate:    meta.MfgDate,
		ExpiryDate: meta.ExpiryDate,
		InitialQty: qty,
		CurrentQty: qty,
		Rate:       meta.Rate,
		GSTRate:    meta.GSTRate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	data := postgres.StructToMap(b)
	data["location_kind"], data["location_id"] = postgres.LocationArgs(key.Location)

	q := r.builder.Insert(batchesTable).SetMap(data).
		Suffix(`ON CONFLICT (company_id, item_id, batch_no, location_kind, location_id) DO UPDATE SET
			current_qty = batches.current_qty + EXCLUDED.current_qty,
			updated_at = EXCLUDED.updated_at ` + returning() + `, (xmax = 0) AS created`)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build upsert: %w", err)
	}
	var row upsertRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		return nil, false, fmt.Errorf("upsert batch: %w", err)
	}
	return row.toDomain(), row.Created, nil
}

// MarkExpired flags unexpired batches of every company whose expiry date is before asOf.
func (r *BatchRepo) MarkExpired(ctx context.Context, asOf time.Time) (int64, error) {
	y, m, d := asOf.UTC().Date()
	q := r.builder.Update(batchesTable).
		Set("expired", true).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"expired": false}).
		Where(squirrel.Lt{"expiry_date": time.Date(y, m, d, 0, 0, 0, 0, time.UTC)})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SeedBatch inserts opening stock together with its RECEIPT ledger row.
// Used by cmd/seed.
func (r *BatchRepo) SeedBatch(ctx context.Context, ledgerRepo *LedgerRepo, b *batch.Batch, actor string) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		qty := b.CurrentQty
		created, _, err := r.Upsert(ctx, b.CompanyID, b.Key(), qty, b.Meta())
		if err != nil {
			return err
		}
		*b = *created
		return ledgerRepo.Append(ctx, openingEntry(b, qty, actor))
	})
}
