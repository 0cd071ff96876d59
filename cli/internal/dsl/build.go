package dsl

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/builder"
	"github.com/satishbabariya/objql/query/mapping"
)

type E = builder.Expr

// Pipeline is a parsed pipeline turned into a query.
type Pipeline struct {
	Text   string
	Entity *mapping.Entity
	Query  *builder.Query
	// Params holds the type of each $n argument, indexed by n.
	Params []reflect.Type
	// Statement is true when the pipeline ends in delete.
	Statement bool
}

// Parse parses input and builds its query against model. Sources are
// named by table.
func Parse(model *mapping.Model, input string) (*Pipeline, error) {
	raw, err := parser.ParseString("", input)
	if err != nil {
		return nil, err
	}
	var entity *mapping.Entity
	for _, e := range model.Entities() {
		if e.Table == raw.Source {
			entity = e
		}
	}
	if entity == nil {
		return nil, fmt.Errorf("unknown source %q", raw.Source)
	}

	b := &queryBuilder{params: map[int]reflect.Type{}}
	p := &Pipeline{Text: input, Entity: entity}
	q := builder.FromNode(&ast.Source{Elem: entity.Type})
	for _, st := range raw.Stages {
		if p.Statement || !isSequence(q) {
			return nil, fmt.Errorf("%s: nothing can follow a terminal stage", st.Pos)
		}
		q, err = b.stage(q, st)
		if err != nil {
			return nil, err
		}
		p.Statement = st.Delete
	}
	p.Query = q
	p.Params = make([]reflect.Type, len(b.params))
	for i := range p.Params {
		t, ok := b.params[i]
		if !ok {
			return nil, fmt.Errorf("argument $%d is never used", i)
		}
		p.Params[i] = t
	}
	return p, nil
}

// Args converts textual arguments to the parameter types.
func (p *Pipeline) Args(values []string) ([]any, error) {
	if len(values) != len(p.Params) {
		return nil, fmt.Errorf("pipeline takes %d argument(s), got %d", len(p.Params), len(values))
	}
	args := make([]any, len(values))
	for i, s := range values {
		v, err := convertText(s, p.Params[i])
		if err != nil {
			return nil, fmt.Errorf("argument $%d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func convertText(s string, t reflect.Type) (any, error) {
	var (
		v   any
		err error
	)
	switch t.Kind() {
	case reflect.String:
		v = s
	case reflect.Bool:
		v, err = cast.ToBoolE(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err = cast.ToInt64E(s)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err = cast.ToUint64E(s)
	case reflect.Float32, reflect.Float64:
		v, err = cast.ToFloat64E(s)
	default:
		return nil, fmt.Errorf("unsupported argument type %s", t)
	}
	if err != nil {
		return nil, err
	}
	return reflect.ValueOf(v).Convert(t).Interface(), nil
}

func isSequence(q *builder.Query) bool {
	return ast.IsSequence(q.Type())
}

type queryBuilder struct {
	params map[int]reflect.Type
	err    error
}

// lambda adapts f to a builder callback. The first error raised inside
// is kept in b.err.
func (b *queryBuilder) lambda(f func(E) (value, error)) func(E) E {
	return func(x E) E {
		v, err := f(x)
		if err == nil {
			var e E
			if e, err = v.resolve(b, nil); err == nil {
				return e
			}
		}
		if b.err == nil {
			b.err = err
		}
		return builder.Lit(false)
	}
}

func (b *queryBuilder) check(q *builder.Query) (*builder.Query, error) {
	if b.err != nil {
		return nil, b.err
	}
	return q, nil
}

func (b *queryBuilder) stage(q *builder.Query, st *stage) (*builder.Query, error) {
	switch {
	case st.Where != nil:
		return b.check(q.Where(b.lambda(func(x E) (value, error) { return b.expr(x, st.Where) })))
	case st.Order != nil:
		key := b.lambda(func(x E) (value, error) { return b.expr(x, st.Order.Key) })
		switch {
		case st.Order.Then && st.Order.Desc:
			return b.check(q.ThenByDescending(key))
		case st.Order.Then:
			return b.check(q.ThenBy(key))
		case st.Order.Desc:
			return b.check(q.OrderByDescending(key))
		}
		return b.check(q.OrderBy(key))
	case st.Take != nil:
		return q.Take(*st.Take), nil
	case st.Skip != nil:
		return q.Skip(*st.Skip), nil
	case st.Include != nil:
		return q.Include(strings.Join(st.Include, ".")), nil
	case st.Select != nil:
		return b.check(q.Select(b.lambda(func(x E) (value, error) {
			if len(st.Select) == 1 {
				return b.expr(x, st.Select[0])
			}
			items := make([]any, len(st.Select))
			for i, s := range st.Select {
				v, err := b.expr(x, s)
				if err != nil {
					return value{}, err
				}
				if items[i], err = v.resolve(b, nil); err != nil {
					return value{}, err
				}
			}
			return typed(builder.Tuple(items...)), nil
		})))
	case st.Distinct:
		return q.Distinct(), nil
	case st.Delete:
		return q.Delete(), nil
	case st.Aggregate != nil:
		return b.aggregate(q, st.Aggregate)
	}
	return nil, fmt.Errorf("%s: empty stage", st.Pos)
}

func (b *queryBuilder) aggregate(q *builder.Query, a *aggregate) (*builder.Query, error) {
	var fn func(E) E
	if a.Arg != nil {
		fn = b.lambda(func(x E) (value, error) { return b.expr(x, a.Arg) })
	}
	var preds []func(E) E
	if fn != nil {
		preds = append(preds, fn)
	}
	switch a.Op {
	case "first":
		return b.check(q.First(preds...))
	case "firstordefault":
		return b.check(q.FirstOrDefault(preds...))
	case "single":
		return b.check(q.Single(preds...))
	case "singleordefault":
		return b.check(q.SingleOrDefault(preds...))
	case "last":
		return b.check(q.Last(preds...))
	case "lastordefault":
		return b.check(q.LastOrDefault(preds...))
	case "any":
		return b.check(q.Any(preds...))
	case "count":
		return b.check(q.Count(preds...))
	}
	if fn == nil {
		return nil, fmt.Errorf("%s needs a value to aggregate", a.Op)
	}
	switch a.Op {
	case "sum":
		return b.check(q.Sum(fn))
	case "min":
		return b.check(q.Min(fn))
	case "max":
		return b.check(q.Max(fn))
	}
	return b.check(q.Average(fn))
}

// value is an expression whose type may still be open: literals and
// arguments take the type of the operand they meet.
type value struct {
	expr  E
	typed bool
	lit   any
	param int
	isArg bool
}

func typed(e E) value { return value{expr: e, typed: true} }

func (v value) resolve(b *queryBuilder, t reflect.Type) (E, error) {
	if v.typed {
		return v.expr, nil
	}
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v.isArg {
		if t == nil {
			return E{}, fmt.Errorf("cannot infer the type of $%d", v.param)
		}
		if prev, ok := b.params[v.param]; ok && prev != t {
			return E{}, fmt.Errorf("$%d is used as both %s and %s", v.param, prev, t)
		}
		b.params[v.param] = t
		return builder.FromNode(&ast.Argument{Index: v.param, Typ: t}).Expr(), nil
	}
	if t != nil && v.lit != nil {
		lv := reflect.ValueOf(v.lit)
		if !sameClass(lv.Kind(), t.Kind()) {
			return E{}, fmt.Errorf("cannot use %v as %s", v.lit, t)
		}
		return builder.Value(lv.Convert(t).Interface()), nil
	}
	return builder.Value(v.lit), nil
}

func sameClass(a, b reflect.Kind) bool {
	return class(a) != 0 && class(a) == class(b)
}

func class(k reflect.Kind) int {
	switch k {
	case reflect.Bool:
		return 1
	case reflect.String:
		return 2
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 3
	}
	return 0
}

// pair resolves two operands against each other.
func (b *queryBuilder) pair(l, r value) (E, E, error) {
	var t reflect.Type
	switch {
	case l.typed:
		t = l.expr.Type()
	case r.typed:
		t = r.expr.Type()
	}
	le, err := l.resolve(b, t)
	if err != nil {
		return E{}, E{}, err
	}
	re, err := r.resolve(b, t)
	if err != nil {
		return E{}, E{}, err
	}
	return le, re, nil
}

func (b *queryBuilder) expr(x E, e *expr) (value, error) {
	acc, err := b.and(x, e.Left)
	if err != nil {
		return value{}, err
	}
	for _, r := range e.Right {
		rv, err := b.and(x, r)
		if err != nil {
			return value{}, err
		}
		l, r, err := b.pair(acc, rv)
		if err != nil {
			return value{}, err
		}
		acc = typed(l.Or(r))
	}
	return acc, nil
}

func (b *queryBuilder) and(x E, e *andExpr) (value, error) {
	acc, err := b.not(x, e.Left)
	if err != nil {
		return value{}, err
	}
	for _, r := range e.Right {
		rv, err := b.not(x, r)
		if err != nil {
			return value{}, err
		}
		l, r, err := b.pair(acc, rv)
		if err != nil {
			return value{}, err
		}
		acc = typed(l.And(r))
	}
	return acc, nil
}

func (b *queryBuilder) not(x E, e *notExpr) (value, error) {
	v, err := b.compare(x, e.Compare)
	if err != nil || !e.Not {
		return v, err
	}
	ne, err := v.resolve(b, ast.BoolType)
	if err != nil {
		return value{}, err
	}
	return typed(ne.Not()), nil
}

func (b *queryBuilder) compare(x E, c *compare) (value, error) {
	lv, err := b.sum(x, c.Left)
	if err != nil || c.Op == "" {
		return lv, err
	}
	rv, err := b.sum(x, c.Right)
	if err != nil {
		return value{}, err
	}
	if isNull(rv) || isNull(lv) {
		operand := lv
		if isNull(lv) {
			operand = rv
		}
		e, err := operand.resolve(b, nil)
		if err != nil {
			return value{}, err
		}
		switch c.Op {
		case "==":
			return typed(e.IsNull()), nil
		case "!=":
			return typed(e.NotNull()), nil
		}
		return value{}, fmt.Errorf("null cannot be compared with %s", c.Op)
	}
	l, r, err := b.pair(lv, rv)
	if err != nil {
		return value{}, err
	}
	switch c.Op {
	case "==":
		return typed(l.Eq(r)), nil
	case "!=":
		return typed(l.Ne(r)), nil
	case ">":
		return typed(l.Gt(r)), nil
	case ">=":
		return typed(l.Ge(r)), nil
	case "<":
		return typed(l.Lt(r)), nil
	case "<=":
		return typed(l.Le(r)), nil
	case "contains":
		return typed(l.Contains(r)), nil
	case "startswith":
		return typed(l.StartsWith(r)), nil
	}
	return typed(l.EndsWith(r)), nil
}

func isNull(v value) bool { return !v.typed && !v.isArg && v.lit == nil }

func (b *queryBuilder) sum(x E, s *sum) (value, error) {
	acc, err := b.term(x, s.Left)
	if err != nil {
		return value{}, err
	}
	for _, r := range s.Right {
		rv, err := b.term(x, r.Term)
		if err != nil {
			return value{}, err
		}
		if acc, err = b.arith(acc, rv, r.Op); err != nil {
			return value{}, err
		}
	}
	return acc, nil
}

func (b *queryBuilder) term(x E, t *term) (value, error) {
	acc, err := b.unary(x, t.Left)
	if err != nil {
		return value{}, err
	}
	for _, r := range t.Right {
		rv, err := b.unary(x, r.Unary)
		if err != nil {
			return value{}, err
		}
		if acc, err = b.arith(acc, rv, r.Op); err != nil {
			return value{}, err
		}
	}
	return acc, nil
}

func (b *queryBuilder) arith(lv, rv value, op string) (value, error) {
	l, r, err := b.pair(lv, rv)
	if err != nil {
		return value{}, err
	}
	switch op {
	case "+":
		return typed(l.Add(r)), nil
	case "-":
		return typed(l.Sub(r)), nil
	case "*":
		return typed(l.Mul(r)), nil
	case "/":
		return typed(l.Div(r)), nil
	}
	return typed(l.Mod(r)), nil
}

func (b *queryBuilder) unary(x E, u *unary) (value, error) {
	v, err := b.primary(x, u.Primary)
	if err != nil || !u.Neg {
		return v, err
	}
	switch n := v.lit.(type) {
	case int64:
		if !v.typed && !v.isArg {
			v.lit = -n
			return v, nil
		}
	case float64:
		if !v.typed && !v.isArg {
			v.lit = -n
			return v, nil
		}
	}
	e, err := v.resolve(b, nil)
	if err != nil {
		return value{}, err
	}
	return typed(e.Neg()), nil
}

func (b *queryBuilder) primary(x E, p *primary) (value, error) {
	switch {
	case p.Number != nil:
		if strings.Contains(*p.Number, ".") {
			f, err := strconv.ParseFloat(*p.Number, 64)
			return value{lit: f}, err
		}
		n, err := strconv.ParseInt(*p.Number, 10, 64)
		return value{lit: n}, err
	case p.String != nil:
		return value{lit: *p.String}, nil
	case p.Param != nil:
		n, err := strconv.Atoi(strings.TrimPrefix(*p.Param, "$"))
		return value{param: n, isArg: true}, err
	case p.Null:
		return value{}, nil
	case p.True:
		return value{lit: true}, nil
	case p.False:
		return value{lit: false}, nil
	case p.Sub != nil:
		return b.expr(x, p.Sub)
	}
	e := x
	for _, name := range p.Path {
		st := e.Type()
		if st != nil && st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		if st == nil || st.Kind() != reflect.Struct {
			return value{}, fmt.Errorf("%s: cannot access %s on %v", p.Pos, name, e.Type())
		}
		if _, ok := st.FieldByName(name); !ok {
			return value{}, fmt.Errorf("%s: %s has no field %s", p.Pos, st.Name(), name)
		}
		e = e.Field(name)
	}
	return typed(e), nil
}
