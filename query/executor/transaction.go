package executor

import (
	"context"
	"database/sql"
	"fmt"
)

// Queryer is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLHandle adapts database/sql to Handle.
type SQLHandle struct {
	q       Queryer
	release func() error
}

// NewSQLHandle returns a handle running on q. release, when not nil, is
// called once when the handle is released.
func NewSQLHandle(q Queryer, release func() error) *SQLHandle {
	return &SQLHandle{q: q, release: release}
}

// Query runs a query and returns its rows as a cursor.
func (h *SQLHandle) Query(ctx context.Context, query string, params []any) (Cursor, error) {
	rows, err := h.q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &sqlCursor{rows: rows, width: len(cols)}, nil
}

// Exec runs a statement and returns the number of affected rows.
func (h *SQLHandle) Exec(ctx context.Context, query string, params []any) (int64, error) {
	res, err := h.q.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Release calls the release function once.
func (h *SQLHandle) Release() error {
	if h.release == nil {
		return nil
	}
	release := h.release
	h.release = nil
	return release()
}

type sqlCursor struct {
	rows  *sql.Rows
	width int
}

func (c *sqlCursor) Next() bool   { return c.rows.Next() }
func (c *sqlCursor) Err() error   { return c.rows.Err() }
func (c *sqlCursor) Close() error { return c.rows.Close() }

// Values scans the current row without conversion. Byte slices are copied
// by database/sql when scanning into *any.
func (c *sqlCursor) Values() ([]any, error) {
	values := make([]any, c.width)
	ptrs := make([]any, c.width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return values, nil
}

// Tx is a database transaction whose handles all run on the same *sql.Tx.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a transaction on db.
func Begin(ctx context.Context, db *sql.DB, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Handle returns a handle on the transaction. Releasing it leaves the
// transaction open.
func (t *Tx) Handle() *SQLHandle { return NewSQLHandle(t.tx, nil) }

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}
