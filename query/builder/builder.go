// Package builder provides a fluent API composing query operators into an
// operator tree. Nothing is evaluated here: the tree is handed to the
// compiler, which binds it to tables and generates SQL.
//
//	q := builder.From[Order]().
//		Where(func(o builder.Expr) builder.Expr { return o.Field("Total").Gt(100) }).
//		OrderBy(func(o builder.Expr) builder.Expr { return o.Field("ID") })
package builder

import (
	"reflect"
	"sort"

	"github.com/satishbabariya/objql/query/ast"
)

// Query is a sequence valued operator tree, or a scalar one once a
// terminal operator such as Count or First was applied.
type Query struct {
	node ast.Node
}

// From starts a query over the mapped struct T.
func From[T any]() *Query {
	return &Query{node: &ast.Source{Elem: reflect.TypeOf((*T)(nil))}}
}

// FromNode wraps an existing operator tree.
func FromNode(n ast.Node) *Query {
	return &Query{node: n}
}

// Node returns the operator tree.
func (q *Query) Node() ast.Node { return q.node }

// Type returns the Go type the query produces.
func (q *Query) Type() reflect.Type { return q.node.Type() }

// ElemType returns the element type of a sequence valued query.
func (q *Query) ElemType() reflect.Type { return ast.ElemType(q.node.Type()) }

// Expr turns the query into an expression usable inside a lambda.
func (q *Query) Expr() Expr { return Expr{node: q.node} }

// String returns the canonical form of the operator tree.
func (q *Query) String() string { return ast.Format(q.node) }

func (q *Query) call(method string, typ reflect.Type, args ...ast.Node) *Query {
	return &Query{node: &ast.Call{Method: method, Args: append([]ast.Node{q.node}, args...), Typ: typ}}
}

func lambda(params []reflect.Type, f func(args []Expr) Expr) *ast.Lambda {
	names := []string{"x", "y"}
	l := &ast.Lambda{Params: make([]*ast.Parameter, len(params))}
	args := make([]Expr, len(params))
	for i, t := range params {
		p := &ast.Parameter{Name: names[i%len(names)], Typ: t}
		l.Params[i] = p
		args[i] = Expr{node: p}
	}
	l.Body = f(args).node
	return l
}

func lambda1(t reflect.Type, f func(Expr) Expr) *ast.Lambda {
	return lambda([]reflect.Type{t}, func(a []Expr) Expr { return f(a[0]) })
}

func lambda2(t1, t2 reflect.Type, f func(Expr, Expr) Expr) *ast.Lambda {
	return lambda([]reflect.Type{t1, t2}, func(a []Expr) Expr { return f(a[0], a[1]) })
}

func (q *Query) optionalPredicate(preds []func(Expr) Expr) []ast.Node {
	if len(preds) == 0 || preds[0] == nil {
		return nil
	}
	return []ast.Node{lambda1(q.ElemType(), preds[0])}
}

// Where filters the sequence.
func (q *Query) Where(pred func(Expr) Expr) *Query {
	return q.call("Where", q.Type(), lambda1(q.ElemType(), pred))
}

// Select projects each element.
func (q *Query) Select(sel func(Expr) Expr) *Query {
	l := lambda1(q.ElemType(), sel)
	return q.call("Select", reflect.SliceOf(l.Type()), l)
}

// SelectMany projects each element to a sequence and flattens the result.
func (q *Query) SelectMany(sel func(Expr) Expr) *Query {
	l := lambda1(q.ElemType(), sel)
	return q.call("SelectMany", reflect.SliceOf(ast.ElemType(l.Type())), l)
}

// Join correlates the sequence with inner on equal keys.
func (q *Query) Join(inner *Query, outerKey, innerKey func(Expr) Expr, result func(outer, inner Expr) Expr) *Query {
	return q.join("Join", inner, outerKey, innerKey, result)
}

// LeftJoin is like Join but keeps outer elements without a match; their
// inner value is nil.
func (q *Query) LeftJoin(inner *Query, outerKey, innerKey func(Expr) Expr, result func(outer, inner Expr) Expr) *Query {
	return q.join("LeftJoin", inner, outerKey, innerKey, result)
}

func (q *Query) join(method string, inner *Query, outerKey, innerKey func(Expr) Expr, result func(Expr, Expr) Expr) *Query {
	ok := lambda1(q.ElemType(), outerKey)
	ik := lambda1(inner.ElemType(), innerKey)
	rs := lambda2(q.ElemType(), inner.ElemType(), result)
	return q.call(method, reflect.SliceOf(rs.Type()), inner.node, ok, ik, rs)
}

// GroupBy groups elements by key. Each group is a struct with a Key field
// and an Elements slice.
func (q *Query) GroupBy(key func(Expr) Expr) *Query {
	k := lambda1(q.ElemType(), key)
	return q.call("GroupBy", reflect.SliceOf(ast.GroupType(k.Type(), q.ElemType())), k)
}

// GroupByElement groups the projected elements by key.
func (q *Query) GroupByElement(key, elem func(Expr) Expr) *Query {
	k := lambda1(q.ElemType(), key)
	e := lambda1(q.ElemType(), elem)
	return q.call("GroupBy", reflect.SliceOf(ast.GroupType(k.Type(), e.Type())), k, e)
}

// GroupByInto groups elements by key and builds one result per group from
// the key and the group's elements.
func (q *Query) GroupByInto(key func(Expr) Expr, result func(key Expr, elems *Query) Expr) *Query {
	k := lambda1(q.ElemType(), key)
	seq := reflect.SliceOf(q.ElemType())
	r := lambda2(k.Type(), seq, func(kx, gx Expr) Expr { return result(kx, gx.Seq()) })
	return q.call("GroupBy", reflect.SliceOf(r.Type()), k, r)
}

// OrderBy sorts ascending by key.
func (q *Query) OrderBy(key func(Expr) Expr) *Query {
	return q.call("OrderBy", q.Type(), lambda1(q.ElemType(), key))
}

// OrderByDescending sorts descending by key.
func (q *Query) OrderByDescending(key func(Expr) Expr) *Query {
	return q.call("OrderByDescending", q.Type(), lambda1(q.ElemType(), key))
}

// ThenBy adds an ascending key to the current ordering.
func (q *Query) ThenBy(key func(Expr) Expr) *Query {
	return q.call("ThenBy", q.Type(), lambda1(q.ElemType(), key))
}

// ThenByDescending adds a descending key to the current ordering.
func (q *Query) ThenByDescending(key func(Expr) Expr) *Query {
	return q.call("ThenByDescending", q.Type(), lambda1(q.ElemType(), key))
}

// Distinct removes duplicate elements.
func (q *Query) Distinct() *Query { return q.call("Distinct", q.Type()) }

// Skip bypasses the first n elements. n may be an int or an Expr.
func (q *Query) Skip(n any) *Query { return q.call("Skip", q.Type(), toNode(n)) }

// Take limits the sequence to n elements. n may be an int or an Expr.
func (q *Query) Take(n any) *Query { return q.call("Take", q.Type(), toNode(n)) }

// Include loads the related objects named by a dotted property path along
// with each element.
func (q *Query) Include(path string) *Query {
	return q.call("Include", q.Type(), ast.NewLiteral(path))
}

// Union concatenates other and removes duplicates.
func (q *Query) Union(other *Query) *Query { return q.call("Union", q.Type(), other.node) }

// Concat concatenates other.
func (q *Query) Concat(other *Query) *Query { return q.call("Concat", q.Type(), other.node) }

// ForUpdate locks the selected rows.
func (q *Query) ForUpdate() *Query { return q.call("ForUpdate", q.Type()) }

// First returns the first element, optionally of those matching pred.
func (q *Query) First(pred ...func(Expr) Expr) *Query {
	return q.call("First", q.ElemType(), q.optionalPredicate(pred)...)
}

// FirstOrDefault is like First but yields the zero value for no element.
func (q *Query) FirstOrDefault(pred ...func(Expr) Expr) *Query {
	return q.call("FirstOrDefault", q.ElemType(), q.optionalPredicate(pred)...)
}

// Single returns the only element and fails when there is not exactly one.
func (q *Query) Single(pred ...func(Expr) Expr) *Query {
	return q.call("Single", q.ElemType(), q.optionalPredicate(pred)...)
}

// SingleOrDefault is like Single but yields the zero value for no element.
func (q *Query) SingleOrDefault(pred ...func(Expr) Expr) *Query {
	return q.call("SingleOrDefault", q.ElemType(), q.optionalPredicate(pred)...)
}

// Last returns the last element of an ordered sequence.
func (q *Query) Last(pred ...func(Expr) Expr) *Query {
	return q.call("Last", q.ElemType(), q.optionalPredicate(pred)...)
}

// LastOrDefault is like Last but yields the zero value for no element.
func (q *Query) LastOrDefault(pred ...func(Expr) Expr) *Query {
	return q.call("LastOrDefault", q.ElemType(), q.optionalPredicate(pred)...)
}

// Any reports whether the sequence has elements, optionally matching pred.
func (q *Query) Any(pred ...func(Expr) Expr) *Query {
	return q.call("Any", ast.BoolType, q.optionalPredicate(pred)...)
}

// All reports whether every element matches pred.
func (q *Query) All(pred func(Expr) Expr) *Query {
	return q.call("All", ast.BoolType, lambda1(q.ElemType(), pred))
}

// Contains reports whether the sequence holds value.
func (q *Query) Contains(value any) *Query {
	return q.call("Contains", ast.BoolType, toNode(value))
}

// Count counts the elements, optionally of those matching pred.
func (q *Query) Count(pred ...func(Expr) Expr) *Query {
	return q.call("Count", ast.Int64Type, q.optionalPredicate(pred)...)
}

// Sum adds up the selected values.
func (q *Query) Sum(sel func(Expr) Expr) *Query {
	l := lambda1(q.ElemType(), sel)
	return q.call("Sum", l.Type(), l)
}

// Min returns the smallest selected value.
func (q *Query) Min(sel func(Expr) Expr) *Query {
	l := lambda1(q.ElemType(), sel)
	return q.call("Min", l.Type(), l)
}

// Max returns the largest selected value.
func (q *Query) Max(sel func(Expr) Expr) *Query {
	l := lambda1(q.ElemType(), sel)
	return q.call("Max", l.Type(), l)
}

// Average returns the mean of the selected values.
func (q *Query) Average(sel func(Expr) Expr) *Query {
	return q.call("Average", ast.Float64Type, lambda1(q.ElemType(), sel))
}

// Delete removes the rows of the sequence.
func (q *Query) Delete() *Query { return q.call("Delete", ast.Int64Type) }

// Set maps property names to new values.
type Set map[string]any

// Update sets properties of the rows of the sequence. The values may refer
// to the current row through the lambda parameter.
func (q *Query) Update(set func(Expr) Set) *Query {
	elem := q.ElemType()
	l := lambda1(elem, func(x Expr) Expr {
		s := set(x)
		names := make([]string, 0, len(s))
		for k := range s {
			names = append(names, k)
		}
		sort.Strings(names)
		n := &ast.New{Typ: elem}
		for _, name := range names {
			n.Fields = append(n.Fields, name)
			n.Args = append(n.Args, toNode(s[name]))
		}
		return Expr{node: n}
	})
	return q.call("Update", ast.Int64Type, l)
}

// Insert writes obj, a pointer to a mapped struct, as a new row.
func Insert[T any](obj *T) *Query {
	return From[T]().call("Insert", ast.Int64Type, ast.NewCaptured(obj))
}
