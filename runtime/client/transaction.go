package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/satishbabariya/objql/internal/debug"
	"github.com/satishbabariya/objql/query/executor"
)

// IsolationLevel represents transaction isolation levels
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads (default)
	ReadCommitted IsolationLevel = iota
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

// ToSQLIsolationLevel converts IsolationLevel to sql.IsolationLevel
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}

// NewTxOptions creates sql.TxOptions from isolation level
func NewTxOptions(isolation IsolationLevel, readOnly bool) *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: isolation.ToSQLIsolationLevel(),
		ReadOnly:  readOnly,
	}
}

// Tx runs queries inside a database transaction. It offers the same
// operations as Client and shares its plan caches and identity map.
type Tx struct {
	*session
	tx *executor.Tx
}

// TransactionFunc is a function that runs within a transaction
type TransactionFunc func(tx *Tx) error

// Transaction executes fn within a database transaction. If fn returns an
// error or panics, the transaction is rolled back; otherwise it is
// committed.
func (c *Client) Transaction(ctx context.Context, fn TransactionFunc) error {
	return c.TransactionWithOptions(ctx, nil, fn)
}

// TransactionWithOptions is Transaction with explicit transaction options.
func (c *Client) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn TransactionFunc) (err error) {
	etx, err := executor.Begin(ctx, c.db, opts)
	if err != nil {
		return err
	}
	tx := &Tx{tx: etx}
	s := *c.session
	s.acquire = func(context.Context) (executor.Handle, error) { return etx.Handle(), nil }
	tx.session = &s

	defer func() {
		if p := recover(); p != nil {
			if rerr := etx.Rollback(); rerr != nil {
				debug.Error("Rollback after panic failed", "error", rerr)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := etx.Rollback(); rerr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rerr)
		}
		return err
	}
	return etx.Commit()
}
