package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/core/types"
	"pestctl/internal/domain"
	"pestctl/internal/domain/approval"
	"pestctl/internal/infrastructure/storage/postgres"
)

const (
	approvalsTable     = "approvals"
	approvalItemsTable = "approval_items"
)

var (
	approvalColumns = append(postgres.ExtractDBColumns[approval.Approval](),
		"source_kind", "source_id", "scope_kind", "scope_id")
	amountColumns = []string{
		"original_base_amount", "original_gst_amount", "original_total_amount",
		"approved_base_amount", "approved_gst_amount", "approved_total_amount",
	}
	approvalItemColumns = append(postgres.ExtractDBColumns[approval.Item](), amountColumns...)
)

type approvalRow struct {
	approval.Approval
	SourceKind string `db:"source_kind"`
	SourceID   *id.ID `db:"source_id"`
	ScopeKind  string `db:"scope_kind"`
	ScopeID    *id.ID `db:"scope_id"`
}

func (r *approvalRow) toDomain() *approval.Approval {
	a := r.Approval
	a.Source = postgres.JoinLocation(r.SourceKind, r.SourceID)
	a.ApproverScope = postgres.JoinLocation(r.ScopeKind, r.ScopeID)
	a.Items = []*approval.Item{}
	return &a
}

type approvalItemRow struct {
	approval.Item
	OriginalBase  decimal.Decimal `db:"original_base_amount"`
	OriginalGST   decimal.Decimal `db:"original_gst_amount"`
	OriginalTotal decimal.Decimal `db:"original_total_amount"`
	ApprovedBase  decimal.Decimal `db:"approved_base_amount"`
	ApprovedGST   decimal.Decimal `db:"approved_gst_amount"`
	ApprovedTotal decimal.Decimal `db:"approved_total_amount"`
}

func (r *approvalItemRow) toDomain() *approval.Item {
	it := r.Item
	it.OriginalAmounts = types.Amounts{Base: r.OriginalBase, GST: r.OriginalGST, Total: r.OriginalTotal}
	it.ApprovedAmounts = types.Amounts{Base: r.ApprovedBase, GST: r.ApprovedGST, Total: r.ApprovedTotal}
	return &it
}

func amountValues(it *approval.Item) []any {
	return []any{
		it.OriginalAmounts.Base, it.OriginalAmounts.GST, it.OriginalAmounts.Total,
		it.ApprovedAmounts.Base, it.ApprovedAmounts.GST, it.ApprovedAmounts.Total,
	}
}

// ApprovalRepo implements approval.Repository.
type ApprovalRepo struct {
	txManager *postgres.TxManager
	bulk      *postgres.BulkWriter
	builder   squirrel.StatementBuilderType
}

var _ approval.Repository = (*ApprovalRepo)(nil)

// NewApprovalRepo creates a new approval repository.
func NewApprovalRepo(txManager *postgres.TxManager) *ApprovalRepo {
	return &ApprovalRepo{
		txManager: txManager,
		bulk:      postgres.NewBulkWriter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the header and copies the items.
func (r *ApprovalRepo) Create(ctx context.Context, a *approval.Approval) error {
	data := postgres.StructToMap(a)
	data["source_kind"], data["source_id"] = postgres.LocationArgs(a.Source)
	data["scope_kind"], data["scope_id"] = postgres.LocationArgs(a.ApproverScope)

	sql, args, err := r.builder.Insert(approvalsTable).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if _, dup := postgres.IsUniqueViolation(err); dup {
			return apperror.NewDuplicate("approval", "issue_id", a.IssueID.String()).WithCause(err)
		}
		return fmt.Errorf("insert approval: %w", err)
	}

	itemCols := postgres.ExtractDBColumns[approval.Item]()
	rows := make([][]any, len(a.Items))
	for i, it := range a.Items {
		rows[i] = append(postgres.StructValues(it, itemCols), amountValues(it)...)
	}
	if _, err := r.bulk.CopyRows(ctx, approvalItemsTable, approvalItemColumns, rows); err != nil {
		return err
	}
	return nil
}

func (r *ApprovalRepo) get(ctx context.Context, companyID, approvalID id.ID, lock bool) (*approval.Approval, error) {
	q := r.builder.Select(approvalColumns...).From(approvalsTable).
		Where(squirrel.Eq{"id": approvalID, "company_id": companyID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var row approvalRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("approval", approvalID.String())
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}
	a := row.toDomain()
	if err := r.attachItems(ctx, []*approval.Approval{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID loads an approval with its items.
func (r *ApprovalRepo) GetByID(ctx context.Context, companyID, approvalID id.ID) (*approval.Approval, error) {
	return r.get(ctx, companyID, approvalID, false)
}

// GetForUpdate loads an approval and row-locks its header. Concurrent
// resolutions of the same approval serialize here.
func (r *ApprovalRepo) GetForUpdate(ctx context.Context, companyID, approvalID id.ID) (*approval.Approval, error) {
	return r.get(ctx, companyID, approvalID, true)
}

func (r *ApprovalRepo) attachItems(ctx context.Context, as []*approval.Approval) error {
	if len(as) == 0 {
		return nil
	}
	byID := make(map[id.ID]*approval.Approval, len(as))
	ids := make([]id.ID, 0, len(as))
	for _, a := range as {
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}

	sql, args, err := r.builder.Select(approvalItemColumns...).From(approvalItemsTable).
		Where(squirrel.Eq{"approval_id": ids}).
		OrderBy("approval_id", "line_no").ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	var rows []*approvalItemRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return fmt.Errorf("load approval items: %w", err)
	}
	for _, row := range rows {
		if a, ok := byID[row.ApprovalID]; ok {
			a.Items = append(a.Items, row.toDomain())
		}
	}
	return nil
}

// SaveResolution writes the header and every item in one batch.
func (r *ApprovalRepo) SaveResolution(ctx context.Context, a *approval.Approval) error {
	stmts := make([]postgres.Statement, 0, len(a.Items)+1)

	header, args, err := r.builder.Update(approvalsTable).
		Set("status", a.Status).
		Set("approver_id", a.ApproverID).
		Set("resolved_at", a.ResolvedAt).
		Set("rejection_reason", a.RejectionReason).
		Set("updated_at", a.UpdatedAt).
		Where(squirrel.Eq{"id": a.ID, "company_id": a.CompanyID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	stmts = append(stmts, postgres.Statement{SQL: header, Args: args, ExpectRows: 1})

	for _, it := range a.Items {
		sql, args, err := r.builder.Update(approvalItemsTable).
			Set("approved_qty", it.ApprovedQty).
			Set("approved_unit", it.ApprovedUnit).
			Set("approved_base_qty", it.ApprovedBaseQty).
			Set("approved_base_amount", it.ApprovedAmounts.Base).
			Set("approved_gst_amount", it.ApprovedAmounts.GST).
			Set("approved_total_amount", it.ApprovedAmounts.Total).
			Set("status", it.Status).
			Set("destination_batch_id", it.DestinationBatchID).
			Where(squirrel.Eq{"id": it.ID, "approval_id": a.ID}).ToSql()
		if err != nil {
			return fmt.Errorf("build item update: %w", err)
		}
		stmts = append(stmts, postgres.Statement{SQL: sql, Args: args, ExpectRows: 1})
	}

	if err := r.bulk.ExecBatch(ctx, stmts); err != nil {
		return fmt.Errorf("save resolution: %w", err)
	}
	return nil
}

// List returns approvals newest first.
func (r *ApprovalRepo) List(ctx context.Context, f approval.ListFilter) (domain.ListResult[*approval.Approval], error) {
	result := domain.ListResult[*approval.Approval]{Limit: f.Limit, Offset: f.Offset, Items: []*approval.Approval{}}

	q := r.builder.Select(approvalColumns...).From(approvalsTable).
		Where(squirrel.Eq{"company_id": f.CompanyID})
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	if f.Scope != nil {
		q = q.Where(squirrel.Eq{"scope_kind": string(f.Scope.Kind), "scope_id": f.Scope.ID})
	}

	querier := r.txManager.GetQuerier(ctx)
	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count approvals: %w", err)
	}

	sql, args, err := q.OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.Limit)).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	var rows []*approvalRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, fmt.Errorf("list approvals: %w", err)
	}
	for _, row := range rows {
		result.Items = append(result.Items, row.toDomain())
	}
	if err := r.attachItems(ctx, result.Items); err != nil {
		return result, err
	}
	return result, nil
}
