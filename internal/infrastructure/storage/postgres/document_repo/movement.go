// Package document_repo provides PostgreSQL implementations of the movement
// and approval document repositories.
package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
	"pestctl/internal/domain/movement"
	"pestctl/internal/infrastructure/storage/postgres"
)

const (
	movementsTable     = "movements"
	movementLinesTable = "movement_lines"
)

var (
	movementColumns = append(postgres.ExtractDBColumns[movement.Movement](),
		"source_kind", "source_id", "destination_kind", "destination_id")
	movementLineColumns = postgres.ExtractDBColumns[movement.Line]()
)

type movementRow struct {
	movement.Movement
	SourceKind      string `db:"source_kind"`
	SourceID        *id.ID `db:"source_id"`
	DestinationKind string `db:"destination_kind"`
	DestinationID   *id.ID `db:"destination_id"`
}

func (r *movementRow) toDomain() *movement.Movement {
	m := r.Movement
	m.Source = postgres.JoinLocation(r.SourceKind, r.SourceID)
	m.Destination = postgres.JoinLocation(r.DestinationKind, r.DestinationID)
	m.Lines = []*movement.Line{}
	return &m
}

// MovementRepo implements movement.Repository.
type MovementRepo struct {
	txManager *postgres.TxManager
	bulk      *postgres.BulkWriter
	builder   squirrel.StatementBuilderType
}

var _ movement.Repository = (*MovementRepo)(nil)

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txManager *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txManager: txManager,
		bulk:      postgres.NewBulkWriter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the header and copies the lines.
func (r *MovementRepo) Create(ctx context.Context, m *movement.Movement) error {
	data := postgres.StructToMap(m)
	data["source_kind"], data["source_id"] = postgres.LocationArgs(m.Source)
	data["destination_kind"], data["destination_id"] = postgres.LocationArgs(m.Destination)

	sql, args, err := r.builder.Insert(movementsTable).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if _, dup := postgres.IsUniqueViolation(err); dup {
			return apperror.NewDuplicate("movement", "number", m.Number).WithCause(err)
		}
		return fmt.Errorf("insert movement: %w", err)
	}

	rows := make([][]any, len(m.Lines))
	for i, l := range m.Lines {
		rows[i] = postgres.StructValues(l, movementLineColumns)
	}
	if _, err := r.bulk.CopyRows(ctx, movementLinesTable, movementLineColumns, rows); err != nil {
		return err
	}
	return nil
}

// GetByID loads a movement with its lines.
func (r *MovementRepo) GetByID(ctx context.Context, companyID, movementID id.ID) (*movement.Movement, error) {
	sql, args, err := r.builder.Select(movementColumns...).From(movementsTable).
		Where(squirrel.Eq{"id": movementID, "company_id": companyID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var row movementRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID.String())
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	m := row.toDomain()
	if err := r.attachLines(ctx, []*movement.Movement{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MovementRepo) attachLines(ctx context.Context, ms []*movement.Movement) error {
	if len(ms) == 0 {
		return nil
	}
	byID := make(map[id.ID]*movement.Movement, len(ms))
	ids := make([]id.ID, 0, len(ms))
	for _, m := range ms {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	sql, args, err := r.builder.Select(movementLineColumns...).From(movementLinesTable).
		Where(squirrel.Eq{"movement_id": ids}).
		OrderBy("movement_id", "line_no").ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	var lines []*movement.Line
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return fmt.Errorf("load movement lines: %w", err)
	}
	for _, l := range lines {
		if m, ok := byID[l.MovementID]; ok {
			m.Lines = append(m.Lines, l)
		}
	}
	return nil
}

func (r *MovementRepo) update(ctx context.Context, q squirrel.UpdateBuilder, movementID id.ID) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update movement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("movement", movementID.String())
	}
	return nil
}

// SetApproval links an issue with its approval.
func (r *MovementRepo) SetApproval(ctx context.Context, movementID, approvalID id.ID) error {
	return r.update(ctx, r.builder.Update(movementsTable).
		Set("approval_id", approvalID).
		Where(squirrel.Eq{"id": movementID}), movementID)
}

// UpdateStatus changes the header status.
func (r *MovementRepo) UpdateStatus(ctx context.Context, companyID, movementID id.ID, status movement.Status, at time.Time) error {
	return r.update(ctx, r.builder.Update(movementsTable).
		Set("status", status).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": movementID, "company_id": companyID}), movementID)
}

// MarkReceived stores the receipt confirmation.
func (r *MovementRepo) MarkReceived(ctx context.Context, companyID, movementID id.ID, by string, at time.Time) error {
	return r.update(ctx, r.builder.Update(movementsTable).
		Set("status", movement.StatusReceived).
		Set("received_by", by).
		Set("received_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": movementID, "company_id": companyID}), movementID)
}

// List returns movements newest first. A location filter matches either side.
func (r *MovementRepo) List(ctx context.Context, f movement.ListFilter) (domain.ListResult[*movement.Movement], error) {
	result := domain.ListResult[*movement.Movement]{Limit: f.Limit, Offset: f.Offset, Items: []*movement.Movement{}}

	q := r.builder.Select(movementColumns...).From(movementsTable).
		Where(squirrel.Eq{"company_id": f.CompanyID})
	if f.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": *f.Kind})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	if f.Location != nil {
		kind := string(f.Location.Kind)
		q = q.Where(squirrel.Or{
			squirrel.Eq{"source_kind": kind, "source_id": f.Location.ID},
			squirrel.Eq{"destination_kind": kind, "destination_id": f.Location.ID},
		})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"movement_date": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"movement_date": *f.To})
	}

	querier := r.txManager.GetQuerier(ctx)
	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count movements: %w", err)
	}

	sql, args, err := q.OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	var rows []*movementRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, fmt.Errorf("list movements: %w", err)
	}
	for _, row := range rows {
		result.Items = append(result.Items, row.toDomain())
	}
	if err := r.attachLines(ctx, result.Items); err != nil {
		return result, err
	}
	return result, nil
}
