package executor

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/objql/internal/demo"
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/compiler"
	"github.com/satishbabariya/objql/query/materialize"
	"github.com/satishbabariya/objql/query/sqlgen"
)

type fakeCursor struct {
	rows     [][]any
	pos      int
	closeErr error
	closed   int
}

func (c *fakeCursor) Next() bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Values() ([]any, error) { return c.rows[c.pos-1], nil }
func (c *fakeCursor) Err() error             { return nil }

func (c *fakeCursor) Close() error {
	c.closed++
	return c.closeErr
}

type fakeHandle struct {
	cursor     *fakeCursor
	queries    []string
	params     [][]any
	affected   int64
	releaseErr error
	released   int
}

func (h *fakeHandle) Query(_ context.Context, sql string, params []any) (Cursor, error) {
	h.queries = append(h.queries, sql)
	h.params = append(h.params, params)
	return h.cursor, nil
}

func (h *fakeHandle) Exec(_ context.Context, sql string, params []any) (int64, error) {
	h.queries = append(h.queries, sql)
	h.params = append(h.params, params)
	return h.affected, nil
}

func (h *fakeHandle) Release() error {
	h.released++
	return h.releaseErr
}

func col(name string, typ reflect.Type) *ast.Column {
	return &ast.Column{Alias: "t0", Name: name, Typ: typ}
}

// orderExecution builds an execution of orders joined to their lines. The
// rows carry order id, total, line id and line product.
func orderExecution(t *testing.T, agg ast.Aggregator) *compiler.Execution {
	t.Helper()
	sel := &ast.Select{Alias: "t0", From: &ast.Table{Alias: "t1", Name: "orders"}}
	for _, n := range []string{"id", "total", "l_id", "l_product"} {
		sel.Columns = append(sel.Columns, ast.ColumnDecl{Name: n, Expr: &ast.Column{Alias: "t1", Name: n}})
	}
	projector := &ast.Entity{
		Typ:    reflect.TypeOf(&demo.Order{}),
		Fields: []string{"ID", "Total", "Lines"},
		Args: []ast.Node{
			col("id", ast.Int64Type),
			col("total", ast.Float64Type),
			&ast.Collection{
				Typ: reflect.TypeOf([]*demo.Line{}),
				Projector: &ast.Entity{
					Typ:    reflect.TypeOf(&demo.Line{}),
					Fields: []string{"ID", "Product"},
					Args:   []ast.Node{col("l_id", ast.Int64Type), col("l_product", ast.StringType)},
					Keys:   []string{"ID"},
				},
			},
		},
		Keys: []string{"ID"},
	}
	proj := &ast.Projection{Select: sel, Projector: projector, Aggregator: agg}
	m, err := materialize.Build(proj, &sqlgen.Postgres{}, demo.Model())
	require.NoError(t, err)
	return &compiler.Execution{
		Plan:      &compiler.Plan{Key: 1, Tree: proj, Materializer: m},
		Statement: &sqlgen.Statement{SQL: "SELECT ..."},
		Params:    []any{int64(7)},
	}
}

var orderRows = [][]any{
	{int64(10), 250.0, int64(100), "keyboard"},
	{int64(10), 250.0, int64(101), "mouse"},
	{int64(11), 75.0, nil, nil},
	{int64(12), 120.0, int64(102), "monitor"},
}

func TestEnumeratorGroupsRows(t *testing.T) {
	h := &fakeHandle{cursor: &fakeCursor{rows: orderRows}}
	e, err := Query(h, orderExecution(t, ast.AggregatorNone), Options{})
	require.NoError(t, err)
	assert.Equal(t, stateNotStarted, e.state)
	assert.Empty(t, h.queries, "the cursor opens lazily")

	ctx := context.Background()
	v, err := e.Next(ctx)
	require.NoError(t, err)
	first := v.(*demo.Order)
	assert.Equal(t, int64(10), first.ID)
	assert.Len(t, first.Lines, 2)
	assert.Equal(t, stateRowAvailable, e.state)
	assert.Equal(t, []any{int64(7)}, h.params[0])

	v, err = e.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, v.(*demo.Order).Lines)

	v, err = e.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), v.(*demo.Order).ID)
	assert.Equal(t, stateExhausted, e.state)

	_, err = e.Next(ctx)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 1, h.cursor.closed)
	assert.Equal(t, 1, h.released)

	require.NoError(t, e.Close())
	assert.Equal(t, 1, h.released)
}

func TestEnumeratorAll(t *testing.T) {
	h := &fakeHandle{cursor: &fakeCursor{rows: orderRows}}
	e, err := Query(h, orderExecution(t, ast.AggregatorNone), Options{})
	require.NoError(t, err)

	all, err := e.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)

	var lines int
	for _, v := range all {
		lines += len(v.(*demo.Order).Lines)
	}
	assert.Equal(t, 3, lines)
}

func TestEnumeratorIterStopsEarly(t *testing.T) {
	h := &fakeHandle{cursor: &fakeCursor{rows: orderRows}}
	e, err := Query(h, orderExecution(t, ast.AggregatorNone), Options{})
	require.NoError(t, err)

	var ids []int64
	for v, err := range e.Iter(context.Background()) {
		require.NoError(t, err)
		ids = append(ids, v.(*demo.Order).ID)
		break
	}
	assert.Equal(t, []int64{10}, ids)
	assert.Equal(t, 1, h.cursor.closed)
	assert.Equal(t, 1, h.released)
}

func TestEnumeratorCancellation(t *testing.T) {
	h := &fakeHandle{cursor: &fakeCursor{rows: orderRows}}
	e, err := Query(h, orderExecution(t, ast.AggregatorNone), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = e.Next(ctx)
	require.NoError(t, err)

	cancel()
	_, err = e.Next(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, h.cursor.closed)
	assert.Equal(t, 1, h.released)

	_, err = e.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestCancelledBeforeOpen(t *testing.T) {
	h := &fakeHandle{cursor: &fakeCursor{rows: orderRows}}
	e, err := Query(h, orderExecution(t, ast.AggregatorNone), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Next(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, h.queries)
	assert.Equal(t, 0, h.cursor.closed)
	assert.Equal(t, 1, h.released)
}

func TestCloseReleasesBothOnFailure(t *testing.T) {
	h := &fakeHandle{
		cursor:     &fakeCursor{rows: orderRows, closeErr: errors.New("cursor broken")},
		releaseErr: errors.New("handle broken"),
	}
	e, err := Query(h, orderExecution(t, ast.AggregatorNone), Options{})
	require.NoError(t, err)

	_, err = e.Next(context.Background())
	require.NoError(t, err)
	assert.NoError(t, e.Close())
	assert.Equal(t, 1, h.cursor.closed)
	assert.Equal(t, 1, h.released)
}

func TestAggregators(t *testing.T) {
	ctx := context.Background()
	run := func(agg ast.Aggregator, rows [][]any) (any, error) {
		h := &fakeHandle{cursor: &fakeCursor{rows: rows}}
		e, err := Query(h, orderExecution(t, agg), Options{})
		require.NoError(t, err)
		defer func() { assert.Equal(t, 1, h.released) }()
		return e.Aggregate(ctx)
	}

	v, err := run(ast.AggregatorFirst, orderRows)
	require.NoError(t, err)
	assert.Len(t, v.(*demo.Order).Lines, 2)

	_, err = run(ast.AggregatorFirst, nil)
	assert.True(t, ErrNoRows.Is(err))

	v, err = run(ast.AggregatorFirstOrDefault, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = run(ast.AggregatorSingle, orderRows[:2])
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.(*demo.Order).ID)

	_, err = run(ast.AggregatorSingle, orderRows)
	assert.True(t, ErrMoreThanOneRow.Is(err))

	_, err = run(ast.AggregatorSingleOrDefault, orderRows)
	assert.True(t, ErrMoreThanOneRow.Is(err))

	v, err = run(ast.AggregatorSingleOrDefault, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = run(ast.AggregatorNone, orderRows)
	require.NoError(t, err)
	assert.Len(t, v, 3)
}

func TestCommitFilterSeesEveryRow(t *testing.T) {
	h := &fakeHandle{cursor: &fakeCursor{rows: orderRows[:2]}}
	var committed int
	e, err := Query(h, orderExecution(t, ast.AggregatorNone), Options{
		Version: 9,
		Commit: func(obj any) any {
			committed++
			return obj
		},
	})
	require.NoError(t, err)
	_, err = e.All(context.Background())
	require.NoError(t, err)
	// The order is committed once per physical row, each line once.
	assert.Equal(t, 4, committed)
}

func TestExec(t *testing.T) {
	h := &fakeHandle{affected: 3}
	e := &compiler.Execution{
		Plan:      &compiler.Plan{Key: 2, Tree: &ast.Delete{}},
		Statement: &sqlgen.Statement{SQL: "DELETE FROM orders"},
	}
	n, err := Exec(context.Background(), h, e)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, h.released)

	_, err = Exec(context.Background(), &fakeHandle{}, orderExecution(t, ast.AggregatorNone))
	assert.True(t, ErrNotAStatement.Is(err))

	_, err = Query(&fakeHandle{}, e, Options{})
	assert.True(t, compiler.ErrNotAQuery.Is(err))
}
