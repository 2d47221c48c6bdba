package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BulkWriter sends many rows or statements in one round trip. Movement lines
// and approval items are written through it.
type BulkWriter struct {
	txManager *TxManager
}

// NewBulkWriter creates a bulk writer.
func NewBulkWriter(txManager *TxManager) *BulkWriter {
	return &BulkWriter{txManager: txManager}
}

// CopyRows inserts rows with the COPY protocol. Each row holds values in
// columns order. Requires a transaction.
func (w *BulkWriter) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx := w.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("copy into %s requires transaction context", table)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// Statement is one query of a batch.
type Statement struct {
	SQL  string
	Args []any
	// ExpectRows fails the batch when the statement affects a different number of rows. Zero skips the check.
	ExpectRows int64
}

// ExecBatch runs statements with pgx.Batch. Requires a transaction.
func (w *BulkWriter) ExecBatch(ctx context.Context, stmts []Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	tx := w.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("batch exec requires transaction context")
	}

	batch := &pgx.Batch{}
	for _, s := range stmts {
		batch.Queue(s.SQL, s.Args...)
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i, s := range stmts {
		tag, err := results.Exec()
		if err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
		if s.ExpectRows > 0 && tag.RowsAffected() != s.ExpectRows {
			return fmt.Errorf("batch statement %d: affected %d rows, want %d", i, tag.RowsAffected(), s.ExpectRows)
		}
	}
	return nil
}
