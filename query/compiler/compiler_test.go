package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/objql/internal/demo"
	"github.com/satishbabariya/objql/query/builder"
	"github.com/satishbabariya/objql/query/sqlgen"
)

type E = builder.Expr

func newCompiler(t *testing.T, opts Options) *Compiler {
	t.Helper()
	opts.Model = demo.Model()
	if opts.Dialect == nil {
		opts.Dialect = &sqlgen.Postgres{}
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func ordersOver(min any) *builder.Query {
	return builder.From[demo.Order]().Where(func(o E) E { return o.Field("Total").Gt(min) })
}

func TestNewRequiresModelAndDialect(t *testing.T) {
	_, err := New(Options{Dialect: &sqlgen.Postgres{}})
	assert.True(t, ErrNoModel.Is(err))
	_, err = New(Options{Model: demo.Model()})
	assert.True(t, ErrNoDialect.Is(err))
}

func TestPrepareReusesPlanAcrossValues(t *testing.T) {
	c := newCompiler(t, Options{})

	first, err := c.Prepare(ordersOver(100).Node())
	require.NoError(t, err)
	second, err := c.Prepare(ordersOver(200).Node())
	require.NoError(t, err)

	assert.Same(t, first.Plan, second.Plan)
	assert.Same(t, first.Statement, second.Statement)
	assert.Contains(t, first.Statement.SQL, "WHERE")
	assert.Contains(t, first.Statement.SQL, "$1")
	assert.Equal(t, []any{100}, first.Params)
	assert.Equal(t, []any{200}, second.Params)
	// The cached template keeps the parameters it was formatted with.
	assert.Equal(t, []any{100}, second.Statement.Params)

	st := c.Stats()
	assert.Equal(t, 1, st.Plans.Size)
	assert.Equal(t, int64(1), st.Plans.Hits)
	assert.Equal(t, 1, st.Statements.Size)
	assert.Equal(t, int64(1), st.Statements.Hits)
}

func TestDifferentShapesGetDifferentPlans(t *testing.T) {
	c := newCompiler(t, Options{})

	a, err := c.Prepare(ordersOver(1).Node())
	require.NoError(t, err)
	b, err := c.Prepare(builder.From[demo.Order]().Node())
	require.NoError(t, err)

	assert.NotEqual(t, a.Plan.Key, b.Plan.Key)
	assert.NotContains(t, b.Statement.SQL, "WHERE")
	assert.Equal(t, 2, c.Stats().Plans.Size)
}

func TestExpandedListIsNotCached(t *testing.T) {
	c := newCompiler(t, Options{})
	q := func(ids []int64) *builder.Query {
		return builder.From[demo.Order]().Where(func(o E) E { return o.Field("ID").In(ids) })
	}

	a, err := c.Prepare(q([]int64{1, 2}).Node())
	require.NoError(t, err)
	b, err := c.Prepare(q([]int64{3, 4, 5}).Node())
	require.NoError(t, err)

	assert.Same(t, a.Plan, b.Plan)
	assert.False(t, a.Statement.Cacheable)
	assert.Equal(t, []any{int64(1), int64(2)}, a.Params)
	assert.Equal(t, []any{int64(3), int64(4), int64(5)}, b.Params)
	assert.Equal(t, 0, c.Stats().Statements.Size)
}

func TestCompiledQuery(t *testing.T) {
	c := newCompiler(t, Options{})
	q, err := c.Compile(builder.From[demo.Order]().
		Where(func(o E) E { return o.Field("Total").Gt(builder.Arg[float64](0)) }).Node())
	require.NoError(t, err)
	require.True(t, q.Plan().IsQuery())

	e1, err := q.Prepare(10.0)
	require.NoError(t, err)
	e2, err := q.Prepare(20.0)
	require.NoError(t, err)

	assert.Equal(t, []any{10.0}, e1.Params)
	assert.Equal(t, []any{20.0}, e2.Params)
	assert.Same(t, e1.Statement, e2.Statement)

	_, err = q.Prepare()
	assert.Error(t, err)
}

func TestStatementPlans(t *testing.T) {
	c := newCompiler(t, Options{})
	e, err := c.Prepare(ordersOver(500).Delete().Node())
	require.NoError(t, err)

	assert.False(t, e.Plan.IsQuery())
	assert.Contains(t, e.Statement.SQL, "DELETE FROM")
	assert.Equal(t, []any{500}, e.Params)
}

func TestDisabledCaches(t *testing.T) {
	c := newCompiler(t, Options{PlanCacheSize: -1, StatementCacheSize: -1})

	a, err := c.Prepare(ordersOver(1).Node())
	require.NoError(t, err)
	b, err := c.Prepare(ordersOver(2).Node())
	require.NoError(t, err)

	assert.NotSame(t, a.Plan, b.Plan)
	assert.Equal(t, a.Plan.Key, b.Plan.Key)
	assert.Equal(t, a.Statement.SQL, b.Statement.SQL)
	assert.Equal(t, 0, c.Stats().Plans.Size)
}

func TestConcurrentPrepare(t *testing.T) {
	c := newCompiler(t, Options{PlanCacheSize: 2})

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			var q *builder.Query
			switch i % 3 {
			case 0:
				q = ordersOver(i)
			case 1:
				q = builder.From[demo.Order]()
			default:
				q = builder.From[demo.Customer]()
			}
			e, err := c.Prepare(q.Node())
			if err != nil {
				return err
			}
			if i%3 == 0 && (len(e.Params) != 1 || e.Params[0] != i) {
				t.Errorf("call %d got params %v", i, e.Params)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, c.Stats().Plans.Size, 2)
}

func TestExplain(t *testing.T) {
	c := newCompiler(t, Options{})
	x, err := c.Explain(ordersOver(100).First().Node())
	require.NoError(t, err)

	assert.Equal(t, "first", x.Aggregator)
	assert.NotEmpty(t, x.Projector)
	assert.Contains(t, x.Tree, "orders")
	md := x.Markdown()
	assert.Contains(t, md, "```sql\n"+x.SQL+"\n```")
	assert.Contains(t, md, "1. `100`")
}
