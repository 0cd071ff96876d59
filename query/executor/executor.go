// Package executor runs compiled plans against a database and streams the
// materialized results.
package executor

import (
	"context"
	"fmt"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/satishbabariya/objql/internal/debug"
	"github.com/satishbabariya/objql/query/compiler"
	"github.com/satishbabariya/objql/query/mapping"
)

var (
	// ErrNoRows is returned by First and Single when the query yields
	// nothing.
	ErrNoRows = errors.NewKind("sequence contains no elements")
	// ErrMoreThanOneRow is returned by Single and SingleOrDefault when the
	// query yields more than one value.
	ErrMoreThanOneRow = errors.NewKind("sequence contains more than one element")
	// ErrNotAStatement is returned when Exec runs a plan producing rows.
	ErrNotAStatement = errors.NewKind("query plan %016x produces rows, use Query")
)

// Cursor is a forward only result set.
type Cursor interface {
	// Next moves to the next row, reporting false once there is none.
	Next() bool
	// Values returns the driver values of the current row in column
	// order.
	Values() ([]any, error)
	Err() error
	Close() error
}

// Handle is the execution context a query runs in: a connection or a
// transaction. An enumerator holds it until it is closed.
type Handle interface {
	Query(ctx context.Context, sql string, params []any) (Cursor, error)
	Exec(ctx context.Context, sql string, params []any) (int64, error)
	// Release gives the handle back. It must be safe to call once per
	// acquisition.
	Release() error
}

// Options are the per execution inputs of materialization.
type Options struct {
	// Version identifies the execution. Collections loaded through
	// mapping.CollectionLoader receive it.
	Version int64
	// Commit filters every materialized entity.
	Commit func(obj any) any
	// Cache maps loaded entities to their canonical instances.
	Cache mapping.ObjectCache
}

// Query returns an enumerator over the results of e. The cursor is opened
// on the first call to Next. The enumerator owns h and releases it when
// closed.
func Query(h Handle, e *compiler.Execution, opts Options) (*Enumerator, error) {
	if !e.Plan.IsQuery() {
		return nil, compiler.ErrNotAQuery.New(e.Plan.Tree.Kind())
	}
	return newEnumerator(h, e, opts), nil
}

// Exec runs a statement and returns the number of affected rows. The
// handle is released before returning.
func Exec(ctx context.Context, h Handle, e *compiler.Execution) (n int64, err error) {
	defer func() {
		if rerr := h.Release(); rerr != nil {
			debug.Warn("Failed to release handle", "error", rerr)
		}
	}()
	if e.Plan.IsQuery() {
		return 0, ErrNotAStatement.New(e.Plan.Key)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err = h.Exec(ctx, e.Statement.SQL, e.Params)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	return n, nil
}
