package executor

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/satishbabariya/objql/internal/debug"
	"github.com/satishbabariya/objql/query/compiler"
	"github.com/satishbabariya/objql/query/materialize"
)

type state int

const (
	stateNotStarted state = iota
	stateOpen
	stateRowAvailable
	stateExhausted
)

var stateNames = [...]string{"not-started", "open", "row-available", "exhausted"}

func (s state) String() string { return stateNames[s] }

// Enumerator assembles logical results from cursor rows. Rows continuing
// the previous logical object, as decided by the plan's row-group key, are
// folded into it, so one value is yielded per object no matter how many
// rows its collections span.
type Enumerator struct {
	handle Handle
	exec   *compiler.Execution
	plan   *materialize.Plan
	env    *materialize.Env

	state   state
	cursor  Cursor
	pending *materialize.Row
	current any
	closed  bool
}

func newEnumerator(h Handle, e *compiler.Execution, opts Options) *Enumerator {
	return &Enumerator{
		handle: h,
		exec:   e,
		plan:   e.Plan.Materializer,
		env: &materialize.Env{
			Version: opts.Version,
			Params:  e.Values,
			Commit:  opts.Commit,
			Cache:   opts.Cache,
		},
	}
}

// advance performs one step: open the cursor, read one row, or finalize.
// It reports whether a value became current.
func (e *Enumerator) advance(ctx context.Context) (bool, error) {
	switch e.state {
	case stateNotStarted:
		if err := ctx.Err(); err != nil {
			return false, err
		}
		c, err := e.handle.Query(ctx, e.exec.Statement.SQL, e.exec.Params)
		if err != nil {
			return false, fmt.Errorf("query failed: %w", err)
		}
		e.cursor = c
		e.state = stateOpen
		debug.Debug("Cursor open", "plan", e.exec.Plan.Key)
		return false, nil

	case stateOpen, stateRowAvailable:
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !e.cursor.Next() {
			if err := e.cursor.Err(); err != nil {
				return false, fmt.Errorf("read row: %w", err)
			}
			return e.finalize(), nil
		}
		values, err := e.cursor.Values()
		if err != nil {
			return false, fmt.Errorf("read row: %w", err)
		}
		e.env.Values = values
		row, err := e.plan.Read(e.env)
		if err != nil {
			return false, err
		}
		e.state = stateRowAvailable
		if e.plan.Continues(e.pending, row) {
			e.plan.Combine(e.pending, row)
			return false, nil
		}
		prev := e.pending
		e.pending = row
		if prev == nil {
			return false, nil
		}
		e.current = e.plan.Finish(prev, e.env.Version)
		return true, nil
	}
	return false, nil
}

// finalize yields the pending object, if any, and releases the cursor and
// handle.
func (e *Enumerator) finalize() bool {
	e.state = stateExhausted
	e.release()
	if e.pending == nil {
		return false
	}
	e.current = e.plan.Finish(e.pending, e.env.Version)
	e.pending = nil
	return true
}

// Next returns the next logical result. It returns io.EOF once the
// results are exhausted. A failed or cancelled read closes the enumerator.
func (e *Enumerator) Next(ctx context.Context) (any, error) {
	for e.state != stateExhausted {
		ok, err := e.advance(ctx)
		if err != nil {
			e.Close()
			return nil, err
		}
		if ok {
			return e.current, nil
		}
	}
	return nil, io.EOF
}

// All drains the enumerator.
func (e *Enumerator) All(ctx context.Context) ([]any, error) {
	defer e.Close()
	var out []any
	for {
		v, err := e.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// Iter returns the results as a sequence. The enumerator is closed when the
// sequence ends or the consumer stops early.
func (e *Enumerator) Iter(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		defer e.Close()
		for {
			v, err := e.Next(ctx)
			if err == io.EOF {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the cursor and the handle. Each release is attempted even
// when the other fails; failures are logged.
func (e *Enumerator) Close() error {
	e.state = stateExhausted
	e.pending = nil
	e.release()
	return nil
}

func (e *Enumerator) release() {
	if e.closed {
		return
	}
	e.closed = true
	if e.cursor != nil {
		if err := e.cursor.Close(); err != nil {
			debug.Warn("Failed to close cursor", "plan", e.exec.Plan.Key, "error", err)
		}
		e.cursor = nil
	}
	if err := e.handle.Release(); err != nil {
		debug.Warn("Failed to release handle", "plan", e.exec.Plan.Key, "error", err)
	}
}
