package catalog_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/domain/location"
	"pestctl/internal/infrastructure/storage/postgres"
)

// DirectoryRepo reads branches and technicians, which are maintained by the
// surrounding platform. It implements location.Directory.
type DirectoryRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ location.Directory = (*DirectoryRepo)(nil)

// NewDirectoryRepo creates a directory repository.
func NewDirectoryRepo(txManager *postgres.TxManager) *DirectoryRepo {
	return &DirectoryRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// MainBranch returns the branch flagged is_main.
func (r *DirectoryRepo) MainBranch(ctx context.Context, companyID id.ID) (id.ID, error) {
	sql, args, err := r.builder.Select("id").From("branches").
		Where(squirrel.Eq{"company_id": companyID, "is_main": true}).ToSql()
	if err != nil {
		return id.Nil(), fmt.Errorf("build query: %w", err)
	}
	var branchID id.ID
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&branchID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return id.Nil(), apperror.NewNotFound("main branch", companyID.String())
		}
		return id.Nil(), fmt.Errorf("get main branch: %w", err)
	}
	return branchID, nil
}

// BranchExists reports whether the branch belongs to the company.
func (r *DirectoryRepo) BranchExists(ctx context.Context, companyID, branchID id.ID) (bool, error) {
	return r.exists(ctx, "branches", companyID, branchID)
}

// TechnicianExists reports whether the technician belongs to the company.
func (r *DirectoryRepo) TechnicianExists(ctx context.Context, companyID, technicianID id.ID) (bool, error) {
	return r.exists(ctx, "technicians", companyID, technicianID)
}

func (r *DirectoryRepo) exists(ctx context.Context, table string, companyID, rowID id.ID) (bool, error) {
	var ok bool
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1 AND company_id = $2)`,
		rowID, companyID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return ok, nil
}

// CreateBranch registers a branch. Used by cmd/seed and tests.
func (r *DirectoryRepo) CreateBranch(ctx context.Context, companyID, branchID id.ID, name string, main bool) error {
	sql, args, err := r.builder.Insert("branches").
		Columns("id", "company_id", "name", "is_main").
		Values(branchID, companyID, name, main).
		Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert branch: %w", err)
	}
	return nil
}

// CreateTechnician registers a technician. Used by cmd/seed and tests.
func (r *DirectoryRepo) CreateTechnician(ctx context.Context, companyID, technicianID id.ID, branchID *id.ID, name string) error {
	sql, args, err := r.builder.Insert("technicians").
		Columns("id", "company_id", "branch_id", "name").
		Values(technicianID, companyID, branchID, name).
		Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert technician: %w", err)
	}
	return nil
}
