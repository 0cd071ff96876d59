package ast

import (
	"reflect"
)

// Alias names one relational scope (a table, select or union).
type Alias string

// Table is a physical table bound to an alias.
type Table struct {
	Alias Alias
	Name  string
	Elem  reflect.Type
}

func (t *Table) Kind() Kind { return KindTable }
func (t *Table) Type() reflect.Type {
	if t.Elem == nil {
		return RowsType
	}
	return reflect.SliceOf(t.Elem)
}
func (t *Table) Children() []Node                      { return nil }
func (t *Table) String() string                        { return Format(t) }
func (t *Table) WithChildren(ch ...Node) (Node, error) { return t, checkLen(t, ch, 0) }

// Column references the named column of the scope declared by Alias.
type Column struct {
	Alias Alias
	Name  string
	Typ   reflect.Type
}

func (c *Column) Kind() Kind                            { return KindColumn }
func (c *Column) Type() reflect.Type                    { return c.Typ }
func (c *Column) Children() []Node                      { return nil }
func (c *Column) String() string                        { return Format(c) }
func (c *Column) WithChildren(ch ...Node) (Node, error) { return c, checkLen(c, ch, 0) }

// ColumnDecl declares one output column of a select.
type ColumnDecl struct {
	Name string
	Expr Node
}

// Ordering is one ORDER BY term.
type Ordering struct {
	Expr       Node
	Descending bool
}

// Select is a relational scope.
type Select struct {
	Alias     Alias
	Columns   []ColumnDecl
	From      Node
	Where     Node
	OrderBy   []Ordering
	GroupBy   []Node
	Distinct  bool
	Skip      Node
	Take      Node
	ForUpdate bool
}

func (s *Select) Kind() Kind         { return KindSelect }
func (s *Select) Type() reflect.Type { return RowsType }
func (s *Select) String() string     { return Format(s) }

// Children lays out From, Where, Skip, Take, then the column expressions,
// the ordering expressions and the grouping expressions.
func (s *Select) Children() []Node {
	ch := make([]Node, 0, 4+len(s.Columns)+len(s.OrderBy)+len(s.GroupBy))
	ch = append(ch, s.From, s.Where, s.Skip, s.Take)
	for _, c := range s.Columns {
		ch = append(ch, c.Expr)
	}
	for _, o := range s.OrderBy {
		ch = append(ch, o.Expr)
	}
	return append(ch, s.GroupBy...)
}

func (s *Select) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(s, ch, 4+len(s.Columns)+len(s.OrderBy)+len(s.GroupBy)); err != nil {
		return nil, err
	}
	ns := *s
	ns.From, ns.Where, ns.Skip, ns.Take = ch[0], ch[1], ch[2], ch[3]
	ch = ch[4:]
	ns.Columns = make([]ColumnDecl, len(s.Columns))
	for i, c := range s.Columns {
		ns.Columns[i] = ColumnDecl{Name: c.Name, Expr: ch[i]}
	}
	ch = ch[len(s.Columns):]
	if len(s.OrderBy) > 0 {
		ns.OrderBy = make([]Ordering, len(s.OrderBy))
		for i, o := range s.OrderBy {
			ns.OrderBy[i] = Ordering{Expr: ch[i], Descending: o.Descending}
		}
	}
	ch = ch[len(s.OrderBy):]
	if len(s.GroupBy) > 0 {
		ns.GroupBy = append([]Node(nil), ch...)
	}
	return &ns, nil
}

// Column returns the declaration of the named output column.
func (s *Select) Column(name string) (ColumnDecl, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDecl{}, false
}

// IsDefaultScope reports whether the select only filters or renames its
// source and carries no ordering, grouping or paging.
func (s *Select) IsDefaultScope() bool {
	return !s.Distinct && !s.ForUpdate && s.Skip == nil && s.Take == nil &&
		len(s.OrderBy) == 0 && len(s.GroupBy) == 0
}

// JoinKind is the kind of a Join.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinCross
	JoinCrossApply
	JoinOuterApply
)

var joinNames = [...]string{
	JoinInner: "inner", JoinLeft: "left", JoinCross: "cross",
	JoinCrossApply: "cross-apply", JoinOuterApply: "outer-apply",
}

func (k JoinKind) String() string { return joinNames[k] }

// IsApply reports whether the right side may depend on the left row.
func (k JoinKind) IsApply() bool {
	return k == JoinCrossApply || k == JoinOuterApply
}

// Join combines two sources.
type Join struct {
	Join      JoinKind
	Left      Node
	Right     Node
	Condition Node
}

func (j *Join) Kind() Kind         { return KindJoin }
func (j *Join) Type() reflect.Type { return RowsType }
func (j *Join) Children() []Node   { return []Node{j.Left, j.Right, j.Condition} }
func (j *Join) String() string     { return Format(j) }

func (j *Join) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(j, ch, 3); err != nil {
		return nil, err
	}
	return &Join{Join: j.Join, Left: ch[0], Right: ch[1], Condition: ch[2]}, nil
}

// Union concatenates two selects with identical column lists.
type Union struct {
	Alias Alias
	Left  *Select
	Right *Select
	All   bool
}

func (u *Union) Kind() Kind         { return KindUnion }
func (u *Union) Type() reflect.Type { return RowsType }
func (u *Union) Children() []Node   { return []Node{u.Left, u.Right} }
func (u *Union) String() string     { return Format(u) }

func (u *Union) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(u, ch, 2); err != nil {
		return nil, err
	}
	l, err := childSelect(u, ch, 0)
	if err != nil {
		return nil, err
	}
	r, err := childSelect(u, ch, 1)
	if err != nil {
		return nil, err
	}
	return &Union{Alias: u.Alias, Left: l, Right: r, All: u.All}, nil
}

// Aggregator is the client side reduction applied to a projection's rows.
type Aggregator int

const (
	AggregatorNone Aggregator = iota
	AggregatorFirst
	AggregatorFirstOrDefault
	AggregatorSingle
	AggregatorSingleOrDefault
)

var aggregatorNames = [...]string{
	AggregatorNone: "", AggregatorFirst: "first", AggregatorFirstOrDefault: "first-or-default",
	AggregatorSingle: "single", AggregatorSingleOrDefault: "single-or-default",
}

func (a Aggregator) String() string { return aggregatorNames[a] }

// Projection pairs a select with the projector that builds one result value
// per row of it.
type Projection struct {
	Select     *Select
	Projector  Node
	Aggregator Aggregator
}

func (p *Projection) Kind() Kind { return KindProjection }
func (p *Projection) Type() reflect.Type {
	if p.Aggregator != AggregatorNone {
		return p.Projector.Type()
	}
	return reflect.SliceOf(p.Projector.Type())
}
func (p *Projection) Children() []Node { return []Node{p.Select, p.Projector} }
func (p *Projection) String() string   { return Format(p) }

func (p *Projection) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(p, ch, 2); err != nil {
		return nil, err
	}
	s, err := childSelect(p, ch, 0)
	if err != nil {
		return nil, err
	}
	return &Projection{Select: s, Projector: ch[1], Aggregator: p.Aggregator}, nil
}

// IsSingleton reports whether the projection yields one value.
func (p *Projection) IsSingleton() bool { return p.Aggregator != AggregatorNone }

// Aggregate is an aggregate function evaluated over a grouped select. A nil
// Arg means COUNT(*).
type Aggregate struct {
	Name     string
	Arg      Node
	Distinct bool
	Typ      reflect.Type
}

func (a *Aggregate) Kind() Kind         { return KindAggregate }
func (a *Aggregate) Type() reflect.Type { return a.Typ }
func (a *Aggregate) Children() []Node   { return []Node{a.Arg} }
func (a *Aggregate) String() string     { return Format(a) }

func (a *Aggregate) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(a, ch, 1); err != nil {
		return nil, err
	}
	return &Aggregate{Name: a.Name, Arg: ch[0], Distinct: a.Distinct, Typ: a.Typ}, nil
}

// AggregateSubquery is an aggregate over a group's elements. Subquery is the
// correlated scalar subquery computing it; InGroup is the same aggregate
// expressed against the grouped select identified by GroupAlias.
type AggregateSubquery struct {
	GroupAlias Alias
	InGroup    Node
	Subquery   *Scalar
}

func (a *AggregateSubquery) Kind() Kind         { return KindAggregateSubquery }
func (a *AggregateSubquery) Type() reflect.Type { return a.Subquery.Type() }
func (a *AggregateSubquery) Children() []Node   { return []Node{a.InGroup, a.Subquery} }
func (a *AggregateSubquery) String() string     { return Format(a) }

func (a *AggregateSubquery) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(a, ch, 2); err != nil {
		return nil, err
	}
	sq, ok := ch[1].(*Scalar)
	if !ok {
		return nil, ErrInvalidChild.New(a.Kind(), 1, KindScalar, ch[1].Kind())
	}
	return &AggregateSubquery{GroupAlias: a.GroupAlias, InGroup: ch[0], Subquery: sq}, nil
}

// Scalar is a subquery producing one value.
type Scalar struct {
	Select *Select
	Typ    reflect.Type
}

func (s *Scalar) Kind() Kind         { return KindScalar }
func (s *Scalar) Type() reflect.Type { return s.Typ }
func (s *Scalar) Children() []Node   { return []Node{s.Select} }
func (s *Scalar) String() string     { return Format(s) }

func (s *Scalar) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(s, ch, 1); err != nil {
		return nil, err
	}
	sel, err := childSelect(s, ch, 0)
	if err != nil {
		return nil, err
	}
	return &Scalar{Select: sel, Typ: s.Typ}, nil
}

// Exists tests whether a subquery yields rows.
type Exists struct {
	Select *Select
}

func (e *Exists) Kind() Kind         { return KindExists }
func (e *Exists) Type() reflect.Type { return BoolType }
func (e *Exists) Children() []Node   { return []Node{e.Select} }
func (e *Exists) String() string     { return Format(e) }

func (e *Exists) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(e, ch, 1); err != nil {
		return nil, err
	}
	sel, err := childSelect(e, ch, 0)
	if err != nil {
		return nil, err
	}
	return &Exists{Select: sel}, nil
}

// In tests membership of Expr in a subquery or in a list of values.
type In struct {
	Expr   Node
	Select *Select
	Values []Node
}

func (in *In) Kind() Kind         { return KindIn }
func (in *In) Type() reflect.Type { return BoolType }
func (in *In) String() string     { return Format(in) }

func (in *In) Children() []Node {
	ch := []Node{in.Expr, nil}
	if in.Select != nil {
		ch[1] = in.Select
	}
	return append(ch, in.Values...)
}

func (in *In) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(in, ch, 2+len(in.Values)); err != nil {
		return nil, err
	}
	sel, err := childSelect(in, ch, 1)
	if err != nil {
		return nil, err
	}
	var values []Node
	if len(in.Values) > 0 {
		values = append(values, ch[2:]...)
	}
	return &In{Expr: ch[0], Select: sel, Values: values}, nil
}

// IsNull tests an expression for SQL NULL.
type IsNull struct {
	Expr Node
}

func (n *IsNull) Kind() Kind         { return KindIsNull }
func (n *IsNull) Type() reflect.Type { return BoolType }
func (n *IsNull) Children() []Node   { return []Node{n.Expr} }
func (n *IsNull) String() string     { return Format(n) }

func (n *IsNull) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(n, ch, 1); err != nil {
		return nil, err
	}
	return &IsNull{Expr: ch[0]}, nil
}

// Function is a SQL scalar function call.
type Function struct {
	Name string
	Args []Node
	Typ  reflect.Type
}

func (f *Function) Kind() Kind         { return KindFunction }
func (f *Function) Type() reflect.Type { return f.Typ }
func (f *Function) Children() []Node   { return f.Args }
func (f *Function) String() string     { return Format(f) }

func (f *Function) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(f, ch, len(f.Args)); err != nil {
		return nil, err
	}
	return &Function{Name: f.Name, Args: ch, Typ: f.Typ}, nil
}

// Placeholder stands for the value at Index of the dynamic parameter array.
type Placeholder struct {
	Index int
	Typ   reflect.Type
}

func (p *Placeholder) Kind() Kind                            { return KindPlaceholder }
func (p *Placeholder) Type() reflect.Type                    { return p.Typ }
func (p *Placeholder) Children() []Node                      { return nil }
func (p *Placeholder) String() string                        { return Format(p) }
func (p *Placeholder) WithChildren(ch ...Node) (Node, error) { return p, checkLen(p, ch, 0) }

// Tuple groups several values, typically the components of a composite key.
type Tuple struct {
	Items []Node
}

func (t *Tuple) Kind() Kind         { return KindTuple }
func (t *Tuple) Type() reflect.Type { return TupleType }
func (t *Tuple) Children() []Node   { return t.Items }
func (t *Tuple) String() string     { return Format(t) }

func (t *Tuple) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(t, ch, len(t.Items)); err != nil {
		return nil, err
	}
	return &Tuple{Items: ch}, nil
}

// Entity builds an instance of a mapped type. Keys names the fields that
// form its primary key.
type Entity struct {
	Typ    reflect.Type
	Fields []string
	Args   []Node
	Keys   []string
}

func (e *Entity) Kind() Kind         { return KindEntity }
func (e *Entity) Type() reflect.Type { return e.Typ }
func (e *Entity) Children() []Node   { return e.Args }
func (e *Entity) String() string     { return Format(e) }

func (e *Entity) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(e, ch, len(e.Args)); err != nil {
		return nil, err
	}
	return &Entity{Typ: e.Typ, Fields: e.Fields, Args: ch, Keys: e.Keys}, nil
}

// Arg returns the binding of the named field.
func (e *Entity) Arg(field string) (Node, bool) {
	for i, f := range e.Fields {
		if f == field {
			return e.Args[i], true
		}
	}
	return nil, false
}

// WithArg returns a copy of the entity with the named field bound to n,
// appending the field when it is not bound yet.
func (e *Entity) WithArg(field string, n Node) *Entity {
	ne := &Entity{Typ: e.Typ, Keys: e.Keys}
	ne.Fields = append([]string(nil), e.Fields...)
	ne.Args = append([]Node(nil), e.Args...)
	for i, f := range ne.Fields {
		if f == field {
			ne.Args[i] = n
			return ne
		}
	}
	ne.Fields = append(ne.Fields, field)
	ne.Args = append(ne.Args, n)
	return ne
}

// Collection is a related collection whose rows were joined into the
// enclosing select. Projector builds one element per row.
type Collection struct {
	Typ       reflect.Type
	Projector Node
}

func (c *Collection) Kind() Kind         { return KindCollection }
func (c *Collection) Type() reflect.Type { return c.Typ }
func (c *Collection) Children() []Node   { return []Node{c.Projector} }
func (c *Collection) String() string     { return Format(c) }

func (c *Collection) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(c, ch, 1); err != nil {
		return nil, err
	}
	return &Collection{Typ: c.Typ, Projector: ch[0]}, nil
}
