package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/objql/internal/demo"
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/binder"
	"github.com/satishbabariya/objql/query/builder"
	"github.com/satishbabariya/objql/query/evaluator"
	"github.com/satishbabariya/objql/query/transform"
)

type E = builder.Expr

func optimize(t *testing.T, q *builder.Query) ast.Node {
	t.Helper()
	model := demo.Model()
	n, _, err := evaluator.Evaluate(q.Node(), evaluator.Options{IsEnum: model.IsEnum})
	require.NoError(t, err)
	bound, err := binder.Bind(model, n)
	require.NoError(t, err)
	out, err := New(Options{}).Optimize(bound)
	require.NoError(t, err)
	return out
}

func optimizeProjection(t *testing.T, q *builder.Query) *ast.Projection {
	t.Helper()
	out := optimize(t, q)
	proj, ok := out.(*ast.Projection)
	require.True(t, ok, "expected projection, got %s", out.Kind())
	return proj
}

func collect[T ast.Node](n ast.Node) []T {
	var out []T
	ast.Inspect(n, func(n ast.Node) bool {
		if x, ok := n.(T); ok {
			out = append(out, x)
		}
		return true
	})
	return out
}

func ordered(n ast.Node) []*ast.Select {
	var out []*ast.Select
	for _, s := range collect[*ast.Select](n) {
		if len(s.OrderBy) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func TestFilterAndProjectionMergeIntoOneSelect(t *testing.T) {
	proj := optimizeProjection(t, builder.From[demo.Order]().
		Where(func(o E) E { return o.Field("Total").Gt(100) }).
		Where(func(o E) E { return o.Field("Status").Eq(demo.StatusOpen) }).
		Select(func(o E) E { return o.Field("Total") }))

	require.Len(t, collect[*ast.Select](proj), 1)
	sel := proj.Select
	assert.IsType(t, &ast.Table{}, sel.From)
	require.Len(t, sel.Columns, 1)
	assert.Len(t, ast.SplitAnd(sel.Where), 2)
}

func TestIncludeCollectionBecomesLeftJoin(t *testing.T) {
	proj := optimizeProjection(t, builder.From[demo.Order]().Include("Lines"))

	assert.Empty(t, collect[*ast.Projection](proj.Projector))
	require.Len(t, collect[*ast.Collection](proj.Projector), 1)

	joins := collect[*ast.Join](proj)
	require.Len(t, joins, 1)
	assert.Equal(t, ast.JoinLeft, joins[0].Join)
	assert.NotNil(t, joins[0].Condition)

	// rows of one order arrive together
	require.NotEmpty(t, proj.Select.OrderBy)
	assert.Equal(t, "id", proj.Select.OrderBy[0].Expr.(*ast.Column).Name)
}

func TestOrderingsMoveOutward(t *testing.T) {
	proj := optimizeProjection(t, builder.From[demo.Order]().
		OrderBy(func(o E) E { return o.Field("Total") }).
		Where(func(o E) E { return o.Field("Status").Eq(demo.StatusOpen) }).
		Select(func(o E) E { return o.Field("ID") }))

	sels := ordered(proj)
	require.Len(t, sels, 1)
	assert.Same(t, proj.Select, sels[0])
}

func TestOrderingsDroppedUnderDistinct(t *testing.T) {
	proj := optimizeProjection(t, builder.From[demo.Order]().
		OrderBy(func(o E) E { return o.Field("Total") }).
		Select(func(o E) E { return o.Field("Status") }).
		Distinct())

	assert.True(t, proj.Select.Distinct)
	assert.Empty(t, ordered(proj))
}

func TestPagedSelectKeepsOrdering(t *testing.T) {
	proj := optimizeProjection(t, builder.From[demo.Order]().
		OrderBy(func(o E) E { return o.Field("Total") }).
		Skip(1).Take(2).
		Select(func(o E) E { return o.Field("ID") }))

	var pagedOrdered bool
	for _, s := range collect[*ast.Select](proj) {
		if s.Take != nil && len(s.OrderBy) > 0 {
			pagedOrdered = true
		}
	}
	assert.True(t, pagedOrdered)
	assert.NotEmpty(t, proj.Select.OrderBy)
}

func TestGroupAggregatesBecomeGroupColumns(t *testing.T) {
	type total struct {
		Key   int64
		Total float64
	}
	proj := optimizeProjection(t, builder.From[demo.Order]().
		GroupBy(func(o E) E { return o.Field("CustomerID") }).
		Select(func(g E) E {
			return builder.New[total](
				builder.F("Key", g.Key()),
				builder.F("Total", g.Elements().Sum(func(o E) E { return o.Field("Total") })),
			)
		}))

	assert.Empty(t, collect[*ast.AggregateSubquery](proj))
	assert.Empty(t, collect[*ast.Scalar](proj))
	var sums int
	for _, a := range collect[*ast.Aggregate](proj) {
		if a.Name == "SUM" {
			sums++
		}
	}
	assert.Equal(t, 1, sums)
}

func TestNormalizeStatements(t *testing.T) {
	out := optimize(t, builder.From[demo.Order]().
		Where(func(o E) E { return o.Field("Status").Eq(demo.StatusShipped) }).
		Delete())
	del, ok := out.(*ast.Delete)
	require.True(t, ok)
	assert.Empty(t, collect[*ast.Exists](del))
	cmp, ok := del.Where.(*ast.Binary)
	require.True(t, ok)
	col := cmp.Left.(*ast.Column)
	assert.Equal(t, del.Table.Alias, col.Alias)
	assert.Equal(t, "status", col.Name)

	out = optimize(t, builder.From[demo.Order]().Update(func(o E) builder.Set {
		return builder.Set{"Total": o.Field("Total").Mul(2)}
	}))
	upd := out.(*ast.Update)
	assert.Nil(t, upd.Where)

	out = optimize(t, builder.Insert(&demo.Line{OrderID: 10, Product: "pen", Quantity: 3}))
	ins := out.(*ast.Insert)
	require.Len(t, ins.Assignments, 3)
	for _, a := range ins.Assignments {
		assert.False(t, a.Computed)
	}
}

func TestOptimizeIsIdempotent(t *testing.T) {
	queries := map[string]*builder.Query{
		"filter":  builder.From[demo.Order]().Where(func(o E) E { return o.Field("Total").Gt(1) }),
		"include": builder.From[demo.Customer]().Include("Orders.Lines"),
		"paged":   builder.From[demo.Order]().OrderBy(func(o E) E { return o.Field("Total") }).Skip(1).Take(2),
		"group": builder.From[demo.Order]().GroupByInto(func(o E) E { return o.Field("Status") }, func(k E, elems *builder.Query) E {
			return elems.Count().Expr()
		}),
		"reference": builder.From[demo.Order]().Where(func(o E) E { return o.Field("Customer").Field("Name").Eq("Ada") }),
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			once := optimize(t, q)
			twice, err := New(Options{}).Optimize(once)
			require.NoError(t, err)
			assert.Equal(t, ast.Format(once), ast.Format(twice))
		})
	}
}

func TestRewriteCrossApply(t *testing.T) {
	left := &ast.Table{Alias: "a", Name: "orders"}
	right := &ast.Select{
		Alias:   "b",
		Columns: []ast.ColumnDecl{{Name: "x", Expr: &ast.Column{Alias: "c", Name: "x"}}},
		From:    &ast.Table{Alias: "c", Name: "lines"},
		Where:   ast.NewBinary(ast.OpEq, &ast.Column{Alias: "c", Name: "fk"}, &ast.Column{Alias: "a", Name: "id"}),
	}
	out, same, err := RewriteCrossApply(&ast.Join{Join: ast.JoinOuterApply, Left: left, Right: right})
	require.NoError(t, err)
	assert.Equal(t, transform.NewTree, same)

	j := out.(*ast.Join)
	assert.Equal(t, ast.JoinLeft, j.Join)
	assert.Equal(t, "(= b.fk a.id)", ast.Format(j.Condition))
	sel := j.Right.(*ast.Select)
	assert.Nil(t, sel.Where)
	require.Len(t, sel.Columns, 2)
	assert.Equal(t, "fk", sel.Columns[1].Name)

	// a right side reading the left row outside its filter stays an apply
	correlated := *right
	correlated.Columns = []ast.ColumnDecl{{Name: "x", Expr: &ast.Column{Alias: "a", Name: "x"}}}
	_, same, err = RewriteCrossApply(&ast.Join{Join: ast.JoinCrossApply, Left: left, Right: &correlated})
	require.NoError(t, err)
	assert.Equal(t, transform.SameTree, same)
}

func TestEliminateConditionals(t *testing.T) {
	x := &ast.Column{Alias: "t0", Name: "x", Typ: ast.BoolType}
	y := &ast.Column{Alias: "t0", Name: "y", Typ: ast.BoolType}
	name := &ast.Column{Alias: "t0", Name: "name", Typ: ast.StringType}

	tests := []struct {
		in   ast.Node
		want string
	}{
		{&ast.Conditional{Test: ast.NewLiteral(true), Then: x, Else: y, Typ: ast.BoolType}, "t0.x"},
		{&ast.Conditional{Test: ast.NewLiteral(false), Then: x, Else: y, Typ: ast.BoolType}, "t0.y"},
		{ast.NewBinary(ast.OpAnd, ast.NewLiteral(true), x), "t0.x"},
		{ast.NewBinary(ast.OpOr, x, ast.NewLiteral(true)), "(lit<bool> true)"},
		{ast.NewNot(ast.NewNot(x)), "t0.x"},
		{ast.NewBinary(ast.OpCoalesce, ast.NewLiteral(nil), name), "t0.name"},
		{ast.NewBinary(ast.OpCoalesce, ast.NewLiteral((*string)(nil)), name), "t0.name"},
		{ast.NewBinary(ast.OpCoalesce, ast.NewLiteral("n/a"), name), `(lit<string> "n/a")`},
		{ast.NewBinary(ast.OpCoalesce, name, ast.NewLiteral("n/a")), `(coalesce t0.name (lit<string> "n/a"))`},
		{ast.NewBinary(ast.OpCoalesce, ast.NewCaptured((*string)(nil)), name), "(coalesce (captured<*string> <nil>) t0.name)"},
	}
	for _, tt := range tests {
		out, _, err := EliminateConditionals(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ast.Format(out))
	}
}

func TestBatchMaxIterations(t *testing.T) {
	b := &Batch{Desc: "flip", Iterations: 3, Rules: []Rule{{
		Name: "always",
		Apply: func(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
			return ast.NewLiteral(1), transform.NewTree, nil
		},
	}}}
	_, _, err := b.Eval(ast.NewLiteral(0))
	require.Error(t, err)
	assert.True(t, ErrMaxIterations.Is(err))
}
