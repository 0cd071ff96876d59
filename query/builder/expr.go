package builder

import (
	"reflect"

	"github.com/satishbabariya/objql/query/ast"
)

// Expr is a value expression inside a lambda.
type Expr struct {
	node ast.Node
}

// Node returns the expression tree.
func (e Expr) Node() ast.Node { return e.node }

// Type returns the Go type of the expression.
func (e Expr) Type() reflect.Type { return e.node.Type() }

// Value captures v. Captured values become query parameters, so queries
// differing only in captured values share one compiled plan.
func Value(v any) Expr { return Expr{node: ast.NewCaptured(v)} }

// Lit embeds v as a literal in the generated SQL.
func Lit(v any) Expr { return Expr{node: ast.NewLiteral(v)} }

// Ref reads the value ptr points to each time the query runs.
func Ref[T any](ptr *T) Expr {
	return Expr{node: &ast.Unary{Op: ast.OpDeref, Operand: ast.NewCaptured(ptr), Typ: reflect.TypeOf((*T)(nil)).Elem()}}
}

// Arg refers to the i-th argument of a compiled query.
func Arg[T any](i int) Expr {
	return Expr{node: &ast.Argument{Index: i, Typ: reflect.TypeOf((*T)(nil)).Elem()}}
}

// Convert converts e to T.
func Convert[T any](e Expr) Expr {
	return Expr{node: &ast.Unary{Op: ast.OpConvert, Operand: e.node, Typ: reflect.TypeOf((*T)(nil)).Elem()}}
}

// Field binds one field of a constructed struct.
type Field struct {
	Name  string
	Value any
}

// F returns a field binding.
func F(name string, value any) Field { return Field{Name: name, Value: value} }

// New constructs a T, which may be a struct or a pointer to one.
func New[T any](fields ...Field) Expr {
	n := &ast.New{Typ: reflect.TypeOf((*T)(nil)).Elem()}
	for _, f := range fields {
		n.Fields = append(n.Fields, f.Name)
		n.Args = append(n.Args, toNode(f.Value))
	}
	return Expr{node: n}
}

// Tuple groups values, typically to form a composite key.
func Tuple(values ...any) Expr {
	t := &ast.Tuple{}
	for _, v := range values {
		t.Items = append(t.Items, toNode(v))
	}
	return Expr{node: t}
}

// If evaluates to then when test holds and to otherwise else.
func If(test Expr, then, otherwise any) Expr {
	t, o := toNode(then), toNode(otherwise)
	return Expr{node: &ast.Conditional{Test: test.node, Then: t, Else: o, Typ: t.Type()}}
}

func toNode(v any) ast.Node {
	switch x := v.(type) {
	case Expr:
		return x.node
	case *Query:
		return x.node
	case ast.Node:
		return x
	}
	return ast.NewCaptured(v)
}

// Field accesses a field of a struct valued expression.
func (e Expr) Field(name string) Expr {
	typ := ast.AnyType()
	st := e.node.Type()
	if st != nil && st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st != nil && st.Kind() == reflect.Struct {
		if f, ok := st.FieldByName(name); ok {
			typ = f.Type
		}
	}
	return Expr{node: &ast.Member{Expr: e.node, Name: name, Typ: typ}}
}

// Key returns the key of a group.
func (e Expr) Key() Expr { return e.Field("Key") }

// Elements returns the elements of a group as a query.
func (e Expr) Elements() *Query { return e.Field("Elements").Seq() }

// Seq treats a sequence valued expression, such as a collection property,
// as a query.
func (e Expr) Seq() *Query { return &Query{node: e.node} }

func (e Expr) binary(op ast.BinaryOp, v any) Expr {
	return Expr{node: ast.NewBinary(op, e.node, toNode(v))}
}

// Eq compares for equality.
func (e Expr) Eq(v any) Expr { return e.binary(ast.OpEq, v) }

// Ne compares for inequality.
func (e Expr) Ne(v any) Expr { return e.binary(ast.OpNe, v) }

// Gt compares with >.
func (e Expr) Gt(v any) Expr { return e.binary(ast.OpGt, v) }

// Ge compares with >=.
func (e Expr) Ge(v any) Expr { return e.binary(ast.OpGe, v) }

// Lt compares with <.
func (e Expr) Lt(v any) Expr { return e.binary(ast.OpLt, v) }

// Le compares with <=.
func (e Expr) Le(v any) Expr { return e.binary(ast.OpLe, v) }

// And is the logical conjunction.
func (e Expr) And(v Expr) Expr { return e.binary(ast.OpAnd, v) }

// Or is the logical disjunction.
func (e Expr) Or(v Expr) Expr { return e.binary(ast.OpOr, v) }

// Not negates a boolean expression.
func (e Expr) Not() Expr { return Expr{node: ast.NewNot(e.node)} }

// Neg negates a number.
func (e Expr) Neg() Expr {
	return Expr{node: &ast.Unary{Op: ast.OpNegate, Operand: e.node, Typ: e.node.Type()}}
}

func (e Expr) Add(v any) Expr { return e.binary(ast.OpAdd, v) }
func (e Expr) Sub(v any) Expr { return e.binary(ast.OpSub, v) }
func (e Expr) Mul(v any) Expr { return e.binary(ast.OpMul, v) }
func (e Expr) Div(v any) Expr { return e.binary(ast.OpDiv, v) }
func (e Expr) Mod(v any) Expr { return e.binary(ast.OpMod, v) }

// Coalesce yields v when e is null.
func (e Expr) Coalesce(v any) Expr { return e.binary(ast.OpCoalesce, v) }

// IsNull tests for null.
func (e Expr) IsNull() Expr { return e.binary(ast.OpEq, Lit(nil)) }

// NotNull tests for a value.
func (e Expr) NotNull() Expr { return e.binary(ast.OpNe, Lit(nil)) }

func (e Expr) method(name string, typ reflect.Type, args ...any) Expr {
	c := &ast.Call{Method: name, Args: []ast.Node{e.node}, Typ: typ}
	for _, a := range args {
		c.Args = append(c.Args, toNode(a))
	}
	return Expr{node: c}
}

// Contains tests a string for a substring.
func (e Expr) Contains(v any) Expr { return e.method("StringContains", ast.BoolType, v) }

// StartsWith tests a string for a prefix.
func (e Expr) StartsWith(v any) Expr { return e.method("StartsWith", ast.BoolType, v) }

// EndsWith tests a string for a suffix.
func (e Expr) EndsWith(v any) Expr { return e.method("EndsWith", ast.BoolType, v) }

// ToUpper upper cases a string.
func (e Expr) ToUpper() Expr { return e.method("ToUpper", ast.StringType) }

// ToLower lower cases a string.
func (e Expr) ToLower() Expr { return e.method("ToLower", ast.StringType) }

// Trim removes surrounding white space.
func (e Expr) Trim() Expr { return e.method("Trim", ast.StringType) }

// Len returns the length of a string.
func (e Expr) Len() Expr { return e.method("Len", reflect.TypeOf(0)) }

// In tests membership in values, a slice captured as one parameter.
func (e Expr) In(values any) Expr {
	return Expr{node: &ast.Call{Method: "Contains", Args: []ast.Node{toNode(values), e.node}, Typ: ast.BoolType}}
}
