package materialize

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/objql/internal/demo"
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/sqlgen"
)

var (
	orderType  = reflect.TypeOf(&demo.Order{})
	lineType   = reflect.TypeOf(&demo.Line{})
	statusType = reflect.TypeOf(demo.Status(""))
)

func col(name string, typ reflect.Type) *ast.Column {
	return &ast.Column{Alias: "t0", Name: name, Typ: typ}
}

// orderSelect declares the columns of orders left joined to their lines.
func orderSelect() *ast.Select {
	names := []string{"id", "customer_id", "total", "status", "l_id", "l_order_id", "l_product", "l_quantity"}
	sel := &ast.Select{Alias: "t0", From: &ast.Table{Alias: "t1", Name: "orders"}}
	for _, n := range names {
		sel.Columns = append(sel.Columns, ast.ColumnDecl{Name: n, Expr: &ast.Column{Alias: "t1", Name: n}})
	}
	return sel
}

func orderEntity(lines bool) *ast.Entity {
	e := &ast.Entity{
		Typ:    orderType,
		Fields: []string{"ID", "CustomerID", "Total", "Status"},
		Args: []ast.Node{
			col("id", ast.Int64Type),
			col("customer_id", ast.Int64Type),
			col("total", ast.Float64Type),
			col("status", statusType),
		},
		Keys: []string{"ID"},
	}
	if lines {
		e.Fields = append(e.Fields, "Lines")
		e.Args = append(e.Args, &ast.Collection{
			Typ: reflect.TypeOf([]*demo.Line{}),
			Projector: &ast.Entity{
				Typ:    lineType,
				Fields: []string{"ID", "OrderID", "Product", "Quantity"},
				Args: []ast.Node{
					col("l_id", ast.Int64Type),
					col("l_order_id", ast.Int64Type),
					col("l_product", ast.StringType),
					col("l_quantity", ast.Int64Type),
				},
				Keys: []string{"ID"},
			},
		})
	}
	return e
}

func build(t *testing.T, sel *ast.Select, projector ast.Node) *Plan {
	t.Helper()
	plan, err := Build(&ast.Projection{Select: sel, Projector: projector}, &sqlgen.Postgres{}, demo.Model())
	require.NoError(t, err)
	return plan
}

// readAll drives a plan the way the executor does: rows continuing the
// previous logical object are combined into it.
func readAll(t *testing.T, plan *Plan, env *Env, rows [][]any) []any {
	t.Helper()
	var out []any
	var prev *Row
	for _, values := range rows {
		env.Values = values
		cur, err := plan.Read(env)
		require.NoError(t, err)
		if plan.Continues(prev, cur) {
			plan.Combine(prev, cur)
			continue
		}
		if prev != nil {
			out = append(out, plan.Finish(prev, env.Version))
		}
		prev = cur
	}
	if prev != nil {
		out = append(out, plan.Finish(prev, env.Version))
	}
	return out
}

func TestReadEntity(t *testing.T) {
	plan := build(t, orderSelect(), orderEntity(false))
	assert.False(t, plan.Grouped())
	assert.Equal(t, orderType, plan.Type)

	got := readAll(t, plan, &Env{}, [][]any{
		{int64(10), int64(1), 250.0, []byte("open"), nil, nil, nil, nil},
		{int64(11), int64(1), "75", "shipped", nil, nil, nil, nil},
	})
	require.Len(t, got, 2)

	o := got[0].(*demo.Order)
	assert.Equal(t, int64(10), o.ID)
	assert.Equal(t, 250.0, o.Total)
	assert.Equal(t, demo.StatusOpen, o.Status)
	assert.False(t, o.Modified(), "loaded entities start unmodified")

	o = got[1].(*demo.Order)
	assert.Equal(t, 75.0, o.Total)
	assert.Equal(t, demo.StatusShipped, o.Status)
}

func TestReadGroupsCollections(t *testing.T) {
	plan := build(t, orderSelect(), orderEntity(true))
	require.True(t, plan.Grouped())

	got := readAll(t, plan, &Env{Version: 3}, [][]any{
		{int64(10), int64(1), 250.0, "open", int64(100), int64(10), "keyboard", int64(1)},
		{int64(10), int64(1), 250.0, "open", int64(101), int64(10), "mouse", int64(2)},
		{int64(11), int64(1), 75.0, "shipped", nil, nil, nil, nil},
		{int64(12), int64(2), 120.0, "open", int64(102), int64(12), "monitor", int64(1)},
	})
	require.Len(t, got, 3)

	first := got[0].(*demo.Order)
	require.Len(t, first.Lines, 2)
	assert.Equal(t, "keyboard", first.Lines[0].Product)
	assert.Equal(t, int64(2), first.Lines[1].Quantity)

	empty := got[1].(*demo.Order)
	assert.NotNil(t, empty.Lines)
	assert.Empty(t, empty.Lines)

	last := got[2].(*demo.Order)
	require.Len(t, last.Lines, 1)
	assert.Equal(t, int64(12), last.Lines[0].OrderID)
}

func TestNullKeyCommitsNil(t *testing.T) {
	plan := build(t, orderSelect(), orderEntity(false))

	var committed []any
	env := &Env{Commit: func(obj any) any {
		committed = append(committed, obj)
		return obj
	}}
	got := readAll(t, plan, env, [][]any{{nil, nil, nil, nil, nil, nil, nil, nil}})
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
	assert.Equal(t, []any{nil}, committed)
}

type identity struct {
	typ reflect.Type
	id  int64
}

type identityMap map[identity]any

func (m identityMap) Submit(obj any) any {
	var id int64
	switch o := obj.(type) {
	case *demo.Order:
		id = o.ID
	case *demo.Line:
		id = o.ID
	default:
		return obj
	}
	key := identity{reflect.TypeOf(obj), id}
	if cur, ok := m[key]; ok {
		return cur
	}
	m[key] = obj
	return obj
}

func TestObjectCache(t *testing.T) {
	plan := build(t, orderSelect(), orderEntity(true))

	cache := identityMap{}
	row := []any{int64(10), int64(1), 250.0, "open", int64(100), int64(10), "keyboard", int64(1)}
	first := readAll(t, plan, &Env{Cache: cache}, [][]any{row})
	again := readAll(t, plan, &Env{Cache: cache}, [][]any{row})

	require.Len(t, again, 1)
	assert.Same(t, first[0], again[0])
	// Reloading replaces the collection instead of appending to it.
	lines := again[0].(*demo.Order).Lines
	require.Len(t, lines, 1)
	assert.Same(t, first[0].(*demo.Order).Lines[0], lines[0])
	assert.Len(t, cache, 2, "orders and lines are cached under separate keys")
}

func TestReadOwnedCollection(t *testing.T) {
	lines := orderEntity(true).Args[4].(*ast.Collection)
	owner := &ast.New{
		Typ:    ast.OwnerType(lines.Typ, ast.Int64Type),
		Fields: ast.OwnerFields(1),
		Args:   []ast.Node{lines, col("id", ast.Int64Type)},
	}
	plan := build(t, orderSelect(), owner)
	require.True(t, plan.Grouped())
	assert.Equal(t, reflect.TypeOf([]*demo.Line{}), plan.Type)

	got := readAll(t, plan, &Env{}, [][]any{
		{int64(10), int64(1), 250.0, "open", int64(100), int64(10), "keyboard", int64(1)},
		{int64(10), int64(1), 250.0, "open", int64(101), int64(10), "mouse", int64(2)},
		{int64(11), int64(1), 75.0, "shipped", nil, nil, nil, nil},
	})
	require.Len(t, got, 2)

	first := got[0].([]*demo.Line)
	require.Len(t, first, 2)
	assert.Equal(t, "mouse", first[1].Product)
	assert.Equal(t, []*demo.Line{}, got[1])
}

type summary struct {
	ID      int64
	Version int64
	Limit   int64
	Double  float64
	LineIDs []int64
}

func TestReadStructWithCollection(t *testing.T) {
	projector := &ast.New{
		Typ:    reflect.TypeOf(summary{}),
		Fields: []string{"ID", "Version", "Limit", "Double", "LineIDs"},
		Args: []ast.Node{
			col("id", ast.Int64Type),
			&ast.Version{},
			&ast.Placeholder{Index: 0, Typ: ast.Int64Type},
			ast.NewBinary(ast.OpMul, col("total", ast.Float64Type), ast.NewLiteral(2.0)),
			&ast.Collection{Typ: reflect.TypeOf([]int64{}), Projector: col("l_id", ast.Int64Type)},
		},
	}
	plan := build(t, orderSelect(), projector)

	got := readAll(t, plan, &Env{Version: 7, Params: []any{int32(5)}}, [][]any{
		{int64(10), int64(1), 250.0, "open", int64(100), int64(10), "keyboard", int64(1)},
		{int64(10), int64(1), 250.0, "open", int64(101), int64(10), "mouse", int64(2)},
	})
	require.Len(t, got, 1)
	assert.Equal(t, summary{ID: 10, Version: 7, Limit: 5, Double: 500, LineIDs: []int64{100, 101}}, got[0])
}

func TestReadTuple(t *testing.T) {
	plan := build(t, orderSelect(), &ast.Tuple{Items: []ast.Node{
		col("id", ast.Int64Type),
		col("status", statusType),
	}})
	got := readAll(t, plan, &Env{}, [][]any{{int64(10), int64(1), 250.0, "open", nil, nil, nil, nil}})
	assert.Equal(t, []any{ast.TupleValue{Items: []any{int64(10), demo.StatusOpen}}}, got)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(&ast.Projection{
		Select:    orderSelect(),
		Projector: &ast.Column{Alias: "t9", Name: "id", Typ: ast.Int64Type},
	}, &sqlgen.Postgres{}, demo.Model())
	assert.True(t, ErrUnresolvedColumn.Is(err))

	_, err = Build(&ast.Projection{
		Select:    orderSelect(),
		Projector: &ast.Collection{Typ: reflect.TypeOf([]int64{}), Projector: col("l_id", ast.Int64Type)},
	}, &sqlgen.Postgres{}, demo.Model())
	assert.True(t, ErrUnsupportedProjector.Is(err))

	_, err = Build(&ast.Projection{
		Select: orderSelect(),
		Projector: &ast.Conditional{
			Test: ast.NewLiteral(true),
			Then: &ast.Collection{Typ: reflect.TypeOf([]int64{}), Projector: col("l_id", ast.Int64Type)},
			Else: ast.NewLiteral(nil),
		},
	}, &sqlgen.Postgres{}, demo.Model())
	assert.True(t, ErrUnsupportedProjector.Is(err))
}

func TestShortRow(t *testing.T) {
	plan := build(t, orderSelect(), orderEntity(false))
	_, err := plan.Read(&Env{Values: []any{int64(1)}})
	assert.True(t, ErrShortRow.Is(err))
}
