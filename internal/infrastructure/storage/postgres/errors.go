package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories translate into application errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// IsUniqueViolation reports a unique constraint failure and returns its constraint name.
func IsUniqueViolation(err error) (string, bool) {
	code, constraint := pgCode(err)
	return constraint, code == pgUniqueViolation
}

// IsForeignKeyViolation reports a foreign key failure.
func IsForeignKeyViolation(err error) bool {
	code, _ := pgCode(err)
	return code == pgForeignKeyViolation
}

// IsCheckViolation reports a CHECK constraint failure, e.g. a batch going negative.
func IsCheckViolation(err error) (string, bool) {
	code, constraint := pgCode(err)
	return constraint, code == pgCheckViolation
}
