package ast

import (
	"reflect"
)

// Constant is a value embedded in the tree. A captured constant comes from
// the caller's environment and is turned into a placeholder by the partial
// evaluator; a literal constant is inlined in the generated SQL.
type Constant struct {
	Value    any
	Typ      reflect.Type
	Captured bool
}

// NewLiteral returns a literal constant of the value's dynamic type.
func NewLiteral(v any) *Constant {
	return &Constant{Value: v, Typ: typeOf(v)}
}

// NewCaptured returns a captured constant of the value's dynamic type.
func NewCaptured(v any) *Constant {
	return &Constant{Value: v, Typ: typeOf(v), Captured: true}
}

func typeOf(v any) reflect.Type {
	if v == nil {
		return anyType
	}
	return reflect.TypeOf(v)
}

func (c *Constant) Kind() Kind                            { return KindConstant }
func (c *Constant) Type() reflect.Type                    { return c.Typ }
func (c *Constant) Children() []Node                      { return nil }
func (c *Constant) String() string                        { return Format(c) }
func (c *Constant) WithChildren(ch ...Node) (Node, error) { return c, checkLen(c, ch, 0) }

// IsLiteral reports whether n is a literal (non captured) constant.
func IsLiteral(n Node) bool {
	c, ok := n.(*Constant)
	return ok && !c.Captured
}

// LiteralBool returns the value of a literal boolean constant.
func LiteralBool(n Node) (value bool, ok bool) {
	c, isConst := n.(*Constant)
	if !isConst || c.Captured {
		return false, false
	}
	value, ok = c.Value.(bool)
	return value, ok
}

// Parameter is a lambda parameter. Parameters are compared by identity.
type Parameter struct {
	Name string
	Typ  reflect.Type
}

func (p *Parameter) Kind() Kind                            { return KindParameter }
func (p *Parameter) Type() reflect.Type                    { return p.Typ }
func (p *Parameter) Children() []Node                      { return nil }
func (p *Parameter) String() string                        { return Format(p) }
func (p *Parameter) WithChildren(ch ...Node) (Node, error) { return p, checkLen(p, ch, 0) }

// Argument refers to a positional argument of a compiled query.
type Argument struct {
	Index int
	Typ   reflect.Type
}

func (a *Argument) Kind() Kind                            { return KindArgument }
func (a *Argument) Type() reflect.Type                    { return a.Typ }
func (a *Argument) Children() []Node                      { return nil }
func (a *Argument) String() string                        { return Format(a) }
func (a *Argument) WithChildren(ch ...Node) (Node, error) { return a, checkLen(a, ch, 0) }

// Lambda is a function literal used as an operator argument.
type Lambda struct {
	Params []*Parameter
	Body   Node
}

func (l *Lambda) Kind() Kind         { return KindLambda }
func (l *Lambda) Type() reflect.Type { return l.Body.Type() }
func (l *Lambda) Children() []Node   { return []Node{l.Body} }
func (l *Lambda) String() string     { return Format(l) }

func (l *Lambda) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(l, ch, 1); err != nil {
		return nil, err
	}
	return &Lambda{Params: l.Params, Body: ch[0]}, nil
}

// Member is a field access.
type Member struct {
	Expr Node
	Name string
	Typ  reflect.Type
}

func (m *Member) Kind() Kind         { return KindMember }
func (m *Member) Type() reflect.Type { return m.Typ }
func (m *Member) Children() []Node   { return []Node{m.Expr} }
func (m *Member) String() string     { return Format(m) }

func (m *Member) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(m, ch, 1); err != nil {
		return nil, err
	}
	return &Member{Expr: ch[0], Name: m.Name, Typ: m.Typ}, nil
}

// UnaryOp is the operator of a Unary node.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
	OpConvert
	OpDeref
)

var unaryNames = [...]string{OpNot: "not", OpNegate: "neg", OpConvert: "convert", OpDeref: "deref"}

func (o UnaryOp) String() string { return unaryNames[o] }

// Unary is a single operand operation. Convert changes the operand to Typ;
// Deref reads the value a pointer constant points to.
type Unary struct {
	Op      UnaryOp
	Operand Node
	Typ     reflect.Type
}

func (u *Unary) Kind() Kind         { return KindUnary }
func (u *Unary) Type() reflect.Type { return u.Typ }
func (u *Unary) Children() []Node   { return []Node{u.Operand} }
func (u *Unary) String() string     { return Format(u) }

func (u *Unary) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(u, ch, 1); err != nil {
		return nil, err
	}
	return &Unary{Op: u.Op, Operand: ch[0], Typ: u.Typ}, nil
}

// NewNot negates a boolean expression.
func NewNot(n Node) *Unary {
	return &Unary{Op: OpNot, Operand: n, Typ: BoolType}
}

// BinaryOp is the operator of a Binary node.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpCoalesce
	OpLike
	OpConcat
)

var binaryNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "=", OpNe: "<>", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "and", OpOr: "or", OpCoalesce: "coalesce", OpLike: "like", OpConcat: "||",
}

func (o BinaryOp) String() string { return binaryNames[o] }

// IsComparison reports whether the operator yields a boolean from two values.
func (o BinaryOp) IsComparison() bool {
	return o >= OpEq && o <= OpGe || o == OpLike
}

// IsLogical reports whether the operator combines two booleans.
func (o BinaryOp) IsLogical() bool {
	return o == OpAnd || o == OpOr
}

// Binary is a two operand operation.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
	Typ   reflect.Type
}

// NewBinary builds a binary node typing comparisons and logical operators
// as bool and everything else after the left operand.
func NewBinary(op BinaryOp, left, right Node) *Binary {
	typ := left.Type()
	if op.IsComparison() || op.IsLogical() {
		typ = BoolType
	}
	return &Binary{Op: op, Left: left, Right: right, Typ: typ}
}

func (b *Binary) Kind() Kind         { return KindBinary }
func (b *Binary) Type() reflect.Type { return b.Typ }
func (b *Binary) Children() []Node   { return []Node{b.Left, b.Right} }
func (b *Binary) String() string     { return Format(b) }

func (b *Binary) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(b, ch, 2); err != nil {
		return nil, err
	}
	return &Binary{Op: b.Op, Left: ch[0], Right: ch[1], Typ: b.Typ}, nil
}

// And joins the non nil predicates with a logical and.
func And(preds ...Node) Node {
	var out Node
	for _, p := range preds {
		if p == nil {
			continue
		}
		if out == nil {
			out = p
			continue
		}
		out = NewBinary(OpAnd, out, p)
	}
	return out
}

// SplitAnd flattens a conjunction into its terms.
func SplitAnd(n Node) []Node {
	if n == nil {
		return nil
	}
	if b, ok := n.(*Binary); ok && b.Op == OpAnd {
		return append(SplitAnd(b.Left), SplitAnd(b.Right)...)
	}
	return []Node{n}
}

// Conditional is a ternary expression.
type Conditional struct {
	Test Node
	Then Node
	Else Node
	Typ  reflect.Type
}

func (c *Conditional) Kind() Kind         { return KindConditional }
func (c *Conditional) Type() reflect.Type { return c.Typ }
func (c *Conditional) Children() []Node   { return []Node{c.Test, c.Then, c.Else} }
func (c *Conditional) String() string     { return Format(c) }

func (c *Conditional) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(c, ch, 3); err != nil {
		return nil, err
	}
	return &Conditional{Test: ch[0], Then: ch[1], Else: ch[2], Typ: c.Typ}, nil
}

// Call invokes a query operator (Where, Select, Count...) or a scalar method
// (Contains, ToUpper...). For operators Args[0] is the source sequence.
type Call struct {
	Method string
	Args   []Node
	Typ    reflect.Type
}

func (c *Call) Kind() Kind         { return KindCall }
func (c *Call) Type() reflect.Type { return c.Typ }
func (c *Call) Children() []Node   { return c.Args }
func (c *Call) String() string     { return Format(c) }

func (c *Call) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(c, ch, len(c.Args)); err != nil {
		return nil, err
	}
	return &Call{Method: c.Method, Args: ch, Typ: c.Typ}, nil
}

// New constructs a plain struct value from field bindings. Typ may be a
// struct type or a pointer to one.
type New struct {
	Typ    reflect.Type
	Fields []string
	Args   []Node
}

func (n *New) Kind() Kind         { return KindNew }
func (n *New) Type() reflect.Type { return n.Typ }
func (n *New) Children() []Node   { return n.Args }
func (n *New) String() string     { return Format(n) }

func (n *New) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(n, ch, len(n.Args)); err != nil {
		return nil, err
	}
	return &New{Typ: n.Typ, Fields: n.Fields, Args: ch}, nil
}

// Arg returns the binding of the named field.
func (n *New) Arg(field string) (Node, bool) {
	for i, f := range n.Fields {
		if f == field {
			return n.Args[i], true
		}
	}
	return nil, false
}

// Source is the root of a query over a mapped type. Elem is the pointer
// type of the mapped struct.
type Source struct {
	Elem reflect.Type
}

func (s *Source) Kind() Kind                            { return KindSource }
func (s *Source) Type() reflect.Type                    { return reflect.SliceOf(s.Elem) }
func (s *Source) Children() []Node                      { return nil }
func (s *Source) String() string                        { return Format(s) }
func (s *Source) WithChildren(ch ...Node) (Node, error) { return s, checkLen(s, ch, 0) }

// Version reads the execution version of the running query.
type Version struct{}

func (v *Version) Kind() Kind                            { return KindVersion }
func (v *Version) Type() reflect.Type                    { return Int64Type }
func (v *Version) Children() []Node                      { return nil }
func (v *Version) String() string                        { return Format(v) }
func (v *Version) WithChildren(ch ...Node) (Node, error) { return v, checkLen(v, ch, 0) }

var queryOperators = map[string]bool{
	"Where": true, "Select": true, "SelectMany": true, "Join": true, "LeftJoin": true,
	"GroupBy": true, "OrderBy": true, "OrderByDescending": true, "ThenBy": true,
	"ThenByDescending": true, "Distinct": true, "Skip": true, "Take": true,
	"First": true, "FirstOrDefault": true, "Single": true, "SingleOrDefault": true,
	"Last": true, "LastOrDefault": true, "Any": true, "All": true, "Contains": true,
	"Count": true, "Sum": true, "Min": true, "Max": true, "Average": true,
	"Include": true, "Union": true, "Concat": true, "ForUpdate": true,
	"Delete": true, "Update": true, "Insert": true,
}

// IsQueryOperator reports whether a call invokes a query operator rather
// than a scalar method.
func IsQueryOperator(c *Call) bool {
	if !queryOperators[c.Method] {
		return false
	}
	// Contains over a plain slice value is a membership test, evaluable on
	// the client.
	if c.Method == "Contains" && len(c.Args) == 2 {
		switch c.Args[0].(type) {
		case *Constant, *Placeholder, *Argument, *Unary:
			return false
		}
	}
	return true
}
