package sqlgen

import (
	"reflect"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/objql/internal/demo"
	"github.com/satishbabariya/objql/query/ast"
)

func col(alias ast.Alias, name string) *ast.Column {
	return &ast.Column{Alias: alias, Name: name}
}

func dialects(t *testing.T) map[string]Dialect {
	t.Helper()
	out := make(map[string]Dialect)
	for _, p := range []string{"postgres", "mysql", "sqlite", "sqlserver"} {
		d, err := NewDialect(p, "")
		require.NoError(t, err)
		out[p] = d
	}
	return out
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func pagedSelect() *ast.Select {
	return &ast.Select{
		Alias: "t1",
		Columns: []ast.ColumnDecl{
			{Name: "id", Expr: col("t0", "id")},
			{Name: "total", Expr: col("t0", "total")},
		},
		From: &ast.Table{Alias: "t0", Name: "orders"},
		Where: ast.And(
			ast.NewBinary(ast.OpGt, col("t0", "total"), &ast.Placeholder{Index: 0, Typ: ast.Float64Type}),
			ast.NewBinary(ast.OpEq, col("t0", "status"), ast.NewLiteral("open")),
		),
		OrderBy: []ast.Ordering{{Expr: col("t0", "total"), Descending: true}},
		Skip:    &ast.Placeholder{Index: 1, Typ: ast.Int64Type},
		Take:    ast.NewLiteral(10),
	}
}

func applySelect() *ast.Select {
	return &ast.Select{
		Alias: "t3",
		Columns: []ast.ColumnDecl{
			{Name: "id", Expr: col("t0", "id")},
			{Name: "product", Expr: col("t1", "product")},
		},
		From: &ast.Join{
			Join: ast.JoinOuterApply,
			Left: &ast.Table{Alias: "t0", Name: "orders"},
			Right: &ast.Select{
				Alias:   "t1",
				Columns: []ast.ColumnDecl{{Name: "product", Expr: col("t2", "product")}},
				From:    &ast.Table{Alias: "t2", Name: "lines"},
				Where:   ast.NewBinary(ast.OpEq, col("t2", "order_id"), col("t0", "id")),
				Take:    ast.NewLiteral(1),
			},
		},
	}
}

func TestFormatSelectGolden(t *testing.T) {
	for name, d := range dialects(t) {
		t.Run(name, func(t *testing.T) {
			st, err := Format(pagedSelect(), d, Options{Values: []any{99.5, int64(20)}})
			require.NoError(t, err)
			golden(t).Assert(t, "select_"+name, []byte(st.SQL))
			assert.Equal(t, []any{99.5, int64(20)}, st.Params)
			assert.True(t, st.Cacheable)
		})
	}
}

func TestFormatApplyGolden(t *testing.T) {
	for _, name := range []string{"postgres", "sqlserver"} {
		d, err := NewDialect(name, "")
		require.NoError(t, err)
		st, err := Format(applySelect(), d, Options{})
		require.NoError(t, err)
		golden(t).Assert(t, "apply_"+name, []byte(st.SQL))
	}
}

func TestApplyUnsupported(t *testing.T) {
	old, err := NewDialect("mysql", "5.7.44")
	require.NoError(t, err)
	maria, err := NewDialect("mysql", "10.11.6-MariaDB")
	require.NoError(t, err)

	for _, d := range []Dialect{&SQLite{}, old, maria} {
		_, err := Format(applySelect(), d, Options{})
		require.Error(t, err, d.Name())
		assert.True(t, ErrApplyUnsupported.Is(err))
	}

	modern, err := NewDialect("mysql", "8.0.36")
	require.NoError(t, err)
	st, err := Format(applySelect(), modern, Options{})
	require.NoError(t, err)
	assert.Contains(t, st.SQL, "LEFT JOIN LATERAL (")
}

func TestNewDialect(t *testing.T) {
	d, err := NewDialect("PostgreSQL", "")
	require.NoError(t, err)
	assert.IsType(t, &Postgres{}, d)

	_, err = NewDialect("oracle", "")
	assert.True(t, ErrUnknownProvider.Is(err))

	_, err = NewDialect("mysql", "not-a-version")
	assert.Error(t, err)
}

func TestFormatStatements(t *testing.T) {
	orders := &ast.Table{Alias: "t0", Name: "orders"}
	pg := &Postgres{}

	st, err := Format(&ast.Delete{
		Table: orders,
		Where: ast.NewBinary(ast.OpEq, col("t0", "status"), ast.NewLiteral("shipped")),
	}, pg, Options{})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM \"orders\"\nWHERE \"orders\".\"status\" = 'shipped'", st.SQL)

	st, err = Format(&ast.Update{
		Table: orders,
		Assignments: []ast.Assignment{{
			Column: "total",
			Expr:   ast.NewBinary(ast.OpMul, col("t0", "total"), ast.NewLiteral(2)),
		}},
	}, &MySQL{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `orders`\nSET `total` = `orders`.`total` * 2", st.SQL)

	st, err = Format(&ast.Insert{Table: &ast.Table{Alias: "t0", Name: "customers"}}, &MySQL{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `customers` () VALUES ()", st.SQL)

	st, err = Format(&ast.Command{
		SQL:  "DELETE FROM lines WHERE order_id = {0} AND quantity < {1}",
		Args: []ast.Node{&ast.Placeholder{Index: 0, Typ: ast.Int64Type}, ast.NewLiteral(3)},
	}, &SQLServer{}, Options{Values: []any{int64(10)}})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM lines WHERE order_id = @p1 AND quantity < 3", st.SQL)
	assert.Equal(t, []any{int64(10)}, st.Params)
}

func TestRefreshInsert(t *testing.T) {
	value := &ast.Placeholder{Index: 0, Typ: reflect.TypeOf(&demo.Line{})}
	ins := &ast.Insert{
		Table: &ast.Table{Alias: "t0", Name: "lines"},
		Assignments: []ast.Assignment{
			{Column: "order_id", Expr: &ast.Member{Expr: value, Name: "OrderID", Typ: ast.Int64Type}},
			{Column: "product", Expr: &ast.Member{Expr: value, Name: "Product", Typ: ast.StringType}},
		},
	}
	st, err := Format(ins, &Postgres{}, Options{Values: []any{&demo.Line{OrderID: 10, Product: "pen"}}})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO \"lines\" (\"order_id\", \"product\")\nVALUES ($1, $2)", st.SQL)
	assert.Equal(t, []any{int64(10), "pen"}, st.Params)
	require.True(t, st.Cacheable)

	params, err := st.Refresh([]any{&demo.Line{OrderID: 11, Product: "ink"}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(11), "ink"}, params)
	assert.Equal(t, []any{int64(10), "pen"}, st.Params)

	_, err = st.Refresh(nil)
	assert.True(t, ErrMissingValue.Is(err))
}

func TestCacheability(t *testing.T) {
	ids := &ast.Placeholder{Index: 0, Typ: reflect.TypeOf([]int64(nil))}
	sel := func(where ast.Node) *ast.Select {
		return &ast.Select{
			Alias:   "t1",
			Columns: []ast.ColumnDecl{{Name: "id", Expr: col("t0", "id")}},
			From:    &ast.Table{Alias: "t0", Name: "orders"},
			Where:   where,
		}
	}
	in := &ast.In{Expr: col("t0", "id"), Values: []ast.Node{ids}}

	st, err := Format(sel(in), &Postgres{}, Options{Values: []any{[]int64{1, 2, 3}}})
	require.NoError(t, err)
	assert.Contains(t, st.SQL, `WHERE t0."id" IN ($1, $2, $3)`)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, st.Params)
	assert.False(t, st.Cacheable)

	st, err = Format(sel(in), &Postgres{}, Options{Values: []any{[]int64{}}})
	require.NoError(t, err)
	assert.Contains(t, st.SQL, "WHERE 1 = 0")
	assert.Empty(t, st.Params)

	_, err = Format(sel(in), &Postgres{}, Options{})
	assert.True(t, ErrMissingValue.Is(err))

	total := &ast.Placeholder{Index: 0, Typ: ast.Float64Type}
	twice := ast.NewBinary(ast.OpOr,
		ast.NewBinary(ast.OpGt, col("t0", "total"), total),
		ast.NewBinary(ast.OpLt, col("t0", "tax"), total),
	)
	st, err = Format(sel(twice), &Postgres{}, Options{Values: []any{5.0}})
	require.NoError(t, err)
	assert.Equal(t, []any{5.0, 5.0}, st.Params)
	assert.False(t, st.Cacheable)

	city := &ast.Placeholder{Index: 0, Typ: reflect.TypeOf((*string)(nil))}
	sameCity := ast.NewBinary(ast.OpOr,
		ast.NewBinary(ast.OpAnd, &ast.IsNull{Expr: col("t0", "city")}, &ast.IsNull{Expr: city}),
		ast.NewBinary(ast.OpEq, col("t0", "city"), city),
	)
	st, err = Format(sel(sameCity), &Postgres{}, Options{Values: []any{(*string)(nil)}})
	require.NoError(t, err)
	assert.Contains(t, st.SQL, `WHERE t0."city" IS NULL AND 1 = 1 OR t0."city" = $1`)
	assert.False(t, st.Cacheable)

	london := "London"
	st, err = Format(sel(sameCity), &Postgres{}, Options{Values: []any{&london}})
	require.NoError(t, err)
	assert.Contains(t, st.SQL, `WHERE t0."city" IS NULL AND 1 = 0 OR t0."city" = $1`)
	assert.Equal(t, []any{&london}, st.Params)
}

func TestFormatExpressions(t *testing.T) {
	a, b, c := col("t0", "a"), col("t0", "b"), col("t0", "c")
	x := ast.NewBinary(ast.OpGt, a, ast.NewLiteral(1))
	y := ast.NewBinary(ast.OpLt, b, ast.NewLiteral(2))
	z := ast.NewBinary(ast.OpEq, c, ast.NewLiteral(3))
	flag := &ast.Column{Alias: "t0", Name: "flag", Typ: ast.BoolType}
	qty := &ast.Column{Alias: "t0", Name: "qty", Typ: reflect.TypeOf(int32(0))}

	tests := []struct {
		name string
		d    Dialect
		expr ast.Node
		want string
	}{
		{"sub-right", &Postgres{}, ast.NewBinary(ast.OpSub, a, ast.NewBinary(ast.OpSub, b, c)), `t0."a" - (t0."b" - t0."c")`},
		{"mul-add", &Postgres{}, ast.NewBinary(ast.OpMul, ast.NewBinary(ast.OpAdd, a, b), c), `(t0."a" + t0."b") * t0."c"`},
		{"or-in-and", &Postgres{}, ast.NewBinary(ast.OpAnd, ast.NewBinary(ast.OpOr, x, y), z), `((t0."a" > 1 OR t0."b" < 2) AND t0."c" = 3)`},
		{"bool-value", &Postgres{}, x, `(t0."a" > 1)`},
		{"bool-value-mssql", &SQLServer{}, x, `CASE WHEN t0.[a] > 1 THEN 1 ELSE 0 END`},
		{"not", &SQLite{}, ast.NewNot(flag), `(NOT t0."flag" = 1)`},
		{"coalesce", &MySQL{}, ast.NewBinary(ast.OpCoalesce, a, ast.NewLiteral("n/a")), "COALESCE(t0.`a`, 'n/a')"},
		{"cast", &Postgres{}, &ast.Unary{Op: ast.OpConvert, Operand: qty, Typ: ast.Float64Type}, `CAST(t0."qty" AS DOUBLE PRECISION)`},
		{"cast-same", &SQLite{}, &ast.Unary{Op: ast.OpConvert, Operand: qty, Typ: ast.Int64Type}, `t0."qty"`},
		{"len-mssql", &SQLServer{}, &ast.Function{Name: "LENGTH", Args: []ast.Node{a}}, `LEN(t0.[a])`},
		{"count", &Postgres{}, &ast.Aggregate{Name: "COUNT"}, `COUNT(*)`},
		{"distinct-sum", &Postgres{}, &ast.Aggregate{Name: "SUM", Arg: a, Distinct: true}, `SUM(DISTINCT t0."a")`},
		{"case", &Postgres{}, &ast.Conditional{Test: flag, Then: a, Else: ast.NewLiteral(nil)}, `CASE WHEN t0."flag" = TRUE THEN t0."a" ELSE NULL END`},
		{"is-null", &Postgres{}, &ast.IsNull{Expr: a}, `(t0."a" IS NULL)`},
		{"escape", &MySQL{}, ast.NewLiteral(`it's a\b`), `'it''s a\\b'`},
		{"time", &Postgres{}, ast.NewLiteral(time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)), `'2024-05-01 12:30:00'`},
		{"enum", &Postgres{}, &ast.Constant{Value: demo.StatusOpen, Typ: reflect.TypeOf(demo.StatusOpen)}, `'open'`},
		{"negate", &Postgres{}, &ast.Unary{Op: ast.OpNegate, Operand: ast.NewBinary(ast.OpAdd, a, b)}, `-(t0."a" + t0."b")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFormatter(tt.d, nil)
			require.NoError(t, f.expr(tt.expr))
			assert.Equal(t, tt.want, f.finish().SQL)
		})
	}
}

func TestFormatPredicates(t *testing.T) {
	flag := &ast.Column{Alias: "t0", Name: "flag", Typ: ast.BoolType}
	x := ast.NewBinary(ast.OpGt, col("t0", "a"), ast.NewLiteral(1))
	y := ast.NewBinary(ast.OpLt, col("t0", "b"), ast.NewLiteral(2))
	z := ast.NewBinary(ast.OpEq, col("t0", "c"), ast.NewLiteral(3))
	tests := []struct {
		d    Dialect
		pred ast.Node
		want string
	}{
		{&Postgres{}, ast.NewBinary(ast.OpAnd, ast.NewBinary(ast.OpOr, x, y), z), `(t0."a" > 1 OR t0."b" < 2) AND t0."c" = 3`},
		{&Postgres{}, ast.NewBinary(ast.OpOr, ast.NewBinary(ast.OpAnd, x, y), z), `t0."a" > 1 AND t0."b" < 2 OR t0."c" = 3`},
		{&Postgres{}, ast.NewLiteral(true), "1 = 1"},
		{&Postgres{}, ast.NewLiteral(false), "1 = 0"},
		{&Postgres{}, flag, `t0."flag" = TRUE`},
		{&SQLServer{}, flag, `t0.[flag] = 1`},
	}
	for _, tt := range tests {
		f := newFormatter(tt.d, nil)
		require.NoError(t, f.predicate(tt.pred))
		assert.Equal(t, tt.want, f.finish().SQL)
	}
}

func TestFormatConcat(t *testing.T) {
	name := &ast.Placeholder{Index: 0, Typ: ast.StringType}
	like := &ast.Binary{
		Op:   ast.OpLike,
		Left: col("t0", "name"),
		Right: &ast.Function{Name: "CONCAT", Args: []ast.Node{
			ast.NewLiteral("%"), name, ast.NewLiteral("%"),
		}},
		Typ: ast.BoolType,
	}
	tests := map[string]string{
		"postgres":  `t0."name" LIKE ('%' || $1::text || '%')`,
		"mysql":     "t0.`name` LIKE CONCAT('%', ?, '%')",
		"sqlite":    `t0."name" LIKE ('%' || ? || '%')`,
		"sqlserver": `t0.[name] LIKE CONCAT('%', @p1, '%')`,
	}
	for name, d := range dialects(t) {
		f := newFormatter(d, []any{"da"})
		require.NoError(t, f.predicate(like))
		st := f.finish()
		assert.Equal(t, tests[name], st.SQL, name)
		assert.Equal(t, []any{"da"}, st.Params)
	}
}

func TestFormatUnion(t *testing.T) {
	operand := func(alias ast.Alias, status string, take bool) *ast.Select {
		s := &ast.Select{
			Alias:   alias,
			Columns: []ast.ColumnDecl{{Name: "id", Expr: col("t0", "id")}},
			From:    &ast.Table{Alias: "t0", Name: "orders"},
			Where:   ast.NewBinary(ast.OpEq, col("t0", "status"), ast.NewLiteral(status)),
		}
		if take {
			s.OrderBy = []ast.Ordering{{Expr: col("t0", "id")}}
			s.Take = ast.NewLiteral(5)
		}
		return s
	}
	sel := &ast.Select{
		Alias:   "t4",
		Columns: []ast.ColumnDecl{{Name: "id", Expr: col("t3", "id")}},
		From:    &ast.Union{Alias: "t3", Left: operand("t1", "open", false), Right: operand("t2", "shipped", true), All: true},
	}
	st, err := Format(sel, &SQLite{}, Options{})
	require.NoError(t, err)
	golden(t).Assert(t, "union_sqlite", []byte(st.SQL))
}

func TestFormatRejectsProjectors(t *testing.T) {
	sel := &ast.Select{
		Alias:   "t1",
		Columns: []ast.ColumnDecl{{Name: "x", Expr: &ast.Entity{Typ: reflect.TypeOf(&demo.Order{})}}},
		From:    &ast.Table{Alias: "t0", Name: "orders"},
	}
	_, err := Format(sel, &Postgres{}, Options{})
	assert.True(t, ErrUnsupportedNode.Is(err))
}

func TestReaders(t *testing.T) {
	d := &Postgres{}

	v, err := d.Reader(ast.Int64Type)([]byte("42"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Interface())

	v, err = d.Reader(reflect.TypeOf(demo.Status("")))("open")
	require.NoError(t, err)
	assert.Equal(t, demo.StatusOpen, v.Interface())

	v, err = d.Reader(reflect.TypeOf((*string)(nil)))(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNil())

	v, err = d.Reader(reflect.TypeOf((*string)(nil)))("London")
	require.NoError(t, err)
	assert.Equal(t, "London", *v.Interface().(*string))

	v, err = d.Reader(ast.BoolType)(int64(1))
	require.NoError(t, err)
	assert.Equal(t, true, v.Interface())

	v, err = d.Reader(reflect.TypeOf(time.Time{}))("2024-05-01 12:30:00")
	require.NoError(t, err)
	assert.Equal(t, 2024, v.Interface().(time.Time).Year())

	_, err = d.Reader(ast.Int64Type)("many")
	assert.True(t, ErrUnreadable.Is(err))
}
