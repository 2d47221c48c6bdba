package register_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"pestctl/internal/core/id"
	"pestctl/internal/core/types"
	"pestctl/internal/domain"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/ledger"
	"pestctl/internal/infrastructure/storage/postgres"
)

const ledgerTable = "stock_ledger"

var ledgerColumns = append(postgres.ExtractDBColumns[ledger.Entry](), "location_kind", "location_id")

type ledgerRow struct {
	ledger.Entry
	LocationKind string `db:"location_kind"`
	LocationID   *id.ID `db:"location_id"`
}

func (r *ledgerRow) toDomain() *ledger.Entry {
	e := r.Entry
	e.Location = postgres.JoinLocation(r.LocationKind, r.LocationID)
	return &e
}

// LedgerRepo implements ledger.Repository. Rows are only ever inserted.
type LedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts e and fills Seq and CreatedAt from the database.
func (r *LedgerRepo) Append(ctx context.Context, e *ledger.Entry) error {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	data := postgres.StructToMap(e)
	delete(data, "seq")
	data["location_kind"], data["location_id"] = postgres.LocationArgs(e.Location)

	sql, args, err := r.builder.Insert(ledgerTable).SetMap(data).
		Suffix("RETURNING seq, created_at").ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&e.Seq, &e.CreatedAt); err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	return nil
}

// List returns ledger rows in posting order.
func (r *LedgerRepo) List(ctx context.Context, f ledger.Filter) (domain.ListResult[*ledger.Entry], error) {
	result := domain.ListResult[*ledger.Entry]{Limit: f.Limit, Offset: f.Offset, Items: []*ledger.Entry{}}

	q := r.builder.Select(ledgerColumns...).From(ledgerTable).
		Where(squirrel.Eq{"company_id": f.CompanyID})
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.BatchID != nil {
		q = q.Where(squirrel.Eq{"batch_id": *f.BatchID})
	}
	if f.Location != nil {
		q = q.Where(squirrel.Eq{"location_kind": string(f.Location.Kind), "location_id": f.Location.ID})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"entry_date": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"entry_date": *f.To})
	}

	querier := r.txManager.GetQuerier(ctx)
	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count ledger rows: %w", err)
	}

	sql, args, err := q.OrderBy("seq").Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	var rows []*ledgerRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, fmt.Errorf("list ledger: %w", err)
	}
	for _, row := range rows {
		result.Items = append(result.Items, row.toDomain())
	}
	return result, nil
}

// ListByBatch returns the complete history of a batch.
func (r *LedgerRepo) ListByBatch(ctx context.Context, companyID, batchID id.ID) ([]*ledger.Entry, error) {
	sql, args, err := r.builder.Select(ledgerColumns...).From(ledgerTable).
		Where(squirrel.Eq{"company_id": companyID, "batch_id": batchID}).
		OrderBy("seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []*ledgerRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list batch ledger: %w", err)
	}
	out := make([]*ledger.Entry, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func openingEntry(b *batch.Batch, qty decimal.Decimal, actor string) *ledger.Entry {
	return &ledger.Entry{
		ID:           id.New(),
		CompanyID:    b.CompanyID,
		ItemID:       b.ItemID,
		BatchID:      b.ID,
		Location:     b.Location,
		MovementType: ledger.TypeReceipt,
		MovementID:   id.Nil(),
		Date:         b.UpdatedAt,
		QtyIn:        qty,
		QtyOut:       decimal.Zero,
		BalanceQty:   b.CurrentQty,
		Rate:         b.Rate,
		BalanceValue: types.RoundMoney(b.CurrentQty.Mul(b.Rate)),
		Actor:        strings.TrimSpace(actor),
		Note:         "opening stock",
	}
}
