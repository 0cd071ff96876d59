package dsl

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/objql/internal/demo"
	"github.com/satishbabariya/objql/query/builder"
	"github.com/satishbabariya/objql/query/compiler"
	"github.com/satishbabariya/objql/query/sqlgen"
)

func TestParseMatchesBuilder(t *testing.T) {
	cases := []struct {
		input string
		want  *builder.Query
	}{
		{
			`orders | where Total > 100 and Status == "open" | orderby ID desc | take 5`,
			builder.From[demo.Order]().
				Where(func(o E) E {
					return o.Field("Total").Gt(float64(100)).And(o.Field("Status").Eq(demo.StatusOpen))
				}).
				OrderByDescending(func(o E) E { return o.Field("ID") }).
				Take(5),
		},
		{
			`customers | where City == null or not (Name startswith "A")`,
			builder.From[demo.Customer]().Where(func(c E) E {
				return c.Field("City").IsNull().Or(c.Field("Name").StartsWith("A").Not())
			}),
		},
		{
			`orders | include Lines | orderby CustomerID | thenby Total desc | skip 1`,
			builder.From[demo.Order]().Include("Lines").
				OrderBy(func(o E) E { return o.Field("CustomerID") }).
				ThenByDescending(func(o E) E { return o.Field("Total") }).
				Skip(1),
		},
		{
			`orders | select ID, Total * 2`,
			builder.From[demo.Order]().Select(func(o E) E {
				return builder.Tuple(o.Field("ID"), o.Field("Total").Mul(float64(2)))
			}),
		},
		{
			`orders | where Customer.Name == "Ada" | sum Total`,
			builder.From[demo.Order]().
				Where(func(o E) E { return o.Field("Customer").Field("Name").Eq("Ada") }).
				Sum(func(o E) E { return o.Field("Total") }),
		},
		{
			`orders | count Status != "shipped"`,
			builder.From[demo.Order]().Count(func(o E) E { return o.Field("Status").Ne(demo.StatusShipped) }),
		},
		{
			`lines | first`,
			builder.From[demo.Line]().First(),
		},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			p, err := Parse(demo.Model(), tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want.String(), p.Query.String())
			assert.False(t, p.Statement)
			assert.Empty(t, p.Params)
		})
	}
}

func TestParseArguments(t *testing.T) {
	p, err := Parse(demo.Model(), `orders | where CustomerID == $0 and Total >= $1 and Status == $2`)
	require.NoError(t, err)
	require.Len(t, p.Params, 3)
	assert.Equal(t, reflect.TypeOf(int64(0)), p.Params[0])
	assert.Equal(t, reflect.TypeOf(float64(0)), p.Params[1])
	assert.Equal(t, reflect.TypeOf(demo.StatusOpen), p.Params[2])

	args, err := p.Args([]string{"1", "99.5", "open"})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), 99.5, demo.StatusOpen}, args)

	_, err = p.Args([]string{"1"})
	assert.ErrorContains(t, err, "takes 3 argument(s), got 1")
	_, err = p.Args([]string{"x", "1", "open"})
	assert.ErrorContains(t, err, "argument $0")
}

func TestParseDelete(t *testing.T) {
	p, err := Parse(demo.Model(), `orders | where Status == "shipped" | delete`)
	require.NoError(t, err)
	assert.True(t, p.Statement)
	assert.Equal(t, "orders", p.Entity.Table)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		`invoices`:                                `unknown source "invoices"`,
		`orders | where Amount > 1`:               "Order has no field Amount",
		`orders | where Total > "x"`:              "cannot use x as float64",
		`orders | where $0 == $1`:                 "cannot infer the type of $0",
		`orders | where ID == $1`:                 "argument $0 is never used",
		`orders | count | take 1`:                 "nothing can follow a terminal stage",
		`orders | delete | take 1`:                "nothing can follow a terminal stage",
		`orders | sum`:                            "sum needs a value to aggregate",
		`orders | where ID == $0 or Status == $0`: "$0 is used as both",
		`orders | where`:                          "unexpected",
	}
	for input, want := range cases {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(demo.Model(), input)
			assert.ErrorContains(t, err, want)
		})
	}
}

func TestParsedQueryCompiles(t *testing.T) {
	c, err := compiler.New(compiler.Options{Model: demo.Model(), Dialect: &sqlgen.Postgres{}})
	require.NoError(t, err)

	p, err := Parse(demo.Model(), `orders | where Total > $0 | orderby ID`)
	require.NoError(t, err)
	args, err := p.Args([]string{"100"})
	require.NoError(t, err)

	x, err := c.Explain(p.Query.Node(), args...)
	require.NoError(t, err)
	assert.Contains(t, x.SQL, `FROM "orders"`)
	assert.Contains(t, x.SQL, "ORDER BY")
	assert.Equal(t, []any{100.0}, x.Params)
}
