package binder

import (
	"reflect"
	"strings"

	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/columns"
)

func (b *binder) bindOperator(c *ast.Call) (ast.Node, error) {
	src := c.Args[0]
	args := c.Args[1:]
	switch c.Method {
	case "Where":
		return b.bindWhere(src, lambdaArg(args, 0))
	case "Select":
		return b.bindSelect(src, lambdaArg(args, 0))
	case "SelectMany":
		return b.bindSelectMany(src, lambdaArg(args, 0))
	case "Join", "LeftJoin":
		if len(args) != 4 {
			return nil, ErrUnsupportedQuery.New(c.Method + " arity")
		}
		return b.bindJoin(c.Method == "LeftJoin", src, args[0], lambdaArg(args, 1), lambdaArg(args, 2), lambdaArg(args, 3))
	case "GroupBy":
		return b.bindGroupBy(c, src, args)
	case "OrderBy", "OrderByDescending":
		return b.bindOrderBy(src, lambdaArg(args, 0), c.Method == "OrderByDescending")
	case "ThenBy", "ThenByDescending":
		b.thenBys = append(b.thenBys, ordering{key: lambdaArg(args, 0), descending: c.Method == "ThenByDescending"})
		return b.bind(src)
	case "Distinct":
		return b.bindDistinct(src)
	case "Skip", "Take":
		return b.bindPaging(src, args[0], c.Method == "Take")
	case "First", "FirstOrDefault", "Single", "SingleOrDefault", "Last", "LastOrDefault":
		return b.bindFirst(c, src, lambdaArg(args, 0))
	case "Any":
		return b.bindAny(c, src, lambdaArg(args, 0))
	case "All":
		return b.bindAll(c, src, lambdaArg(args, 0))
	case "Contains":
		return b.bindContains(c, src, args[0])
	case "Count", "Sum", "Min", "Max", "Average":
		return b.bindAggregate(c, src, lambdaArg(args, 0))
	case "Include":
		return b.bindInclude(src, args[0])
	case "Union", "Concat":
		return b.bindUnion(src, args[0], c.Method == "Concat")
	case "ForUpdate":
		proj, err := b.bindSequence(src)
		if err != nil {
			return nil, err
		}
		sel := *proj.Select
		sel.ForUpdate = true
		return &ast.Projection{Select: &sel, Projector: proj.Projector}, nil
	case "Delete":
		return b.bindDelete(c, src)
	case "Update":
		return b.bindUpdate(c, src, lambdaArg(args, 0))
	case "Insert":
		return b.bindInsert(c, src, args[0])
	}
	return nil, ErrUnsupportedQuery.New("operator " + c.Method)
}

func lambdaArg(args []ast.Node, i int) *ast.Lambda {
	if i >= len(args) {
		return nil
	}
	l, _ := args[i].(*ast.Lambda)
	return l
}

func requireLambda(l *ast.Lambda, op string) error {
	if l == nil {
		return ErrUnsupportedQuery.New(op + " without a function argument")
	}
	return nil
}

func (b *binder) isRoot(c *ast.Call) bool { return ast.Node(c) == b.root }

func (b *binder) bindWhere(src ast.Node, pred *ast.Lambda) (*ast.Projection, error) {
	if err := requireLambda(pred, "Where"); err != nil {
		return nil, err
	}
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	sc := b.pushScope(proj.Select.Alias)
	where, err := b.bindLambda(pred, framePredicate, proj.Projector)
	b.popScope()
	if err != nil {
		return nil, err
	}
	return b.project(proj.Projector, sc.wrap(proj.Select), sc.aliases, func(s *ast.Select) {
		s.Where = where
	})
}

func (b *binder) bindSelect(src ast.Node, sel *ast.Lambda) (*ast.Projection, error) {
	if err := requireLambda(sel, "Select"); err != nil {
		return nil, err
	}
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	sc := b.pushScope(proj.Select.Alias)
	body, err := b.bindLambda(sel, frameSelector, proj.Projector)
	b.popScope()
	if err != nil {
		return nil, err
	}
	return b.project(withOwner(body, proj.Projector), sc.wrap(proj.Select), sc.aliases, nil)
}

// withOwner carries the keys of the source element along with a selector
// that yields a sequence, so the joined rows of one element are read into
// one result.
func withOwner(body, src ast.Node) ast.Node {
	nested, ok := body.(*ast.Projection)
	if !ok || nested.IsSingleton() {
		return body
	}
	keys := ast.KeyExprs(src)
	if len(keys) == 0 {
		return body
	}
	types := make([]reflect.Type, len(keys))
	for i, k := range keys {
		if types[i] = k.Type(); types[i] == nil {
			types[i] = ast.AnyType()
		}
	}
	return &ast.New{
		Typ:    ast.OwnerType(body.Type(), types...),
		Fields: ast.OwnerFields(len(keys)),
		Args:   append([]ast.Node{body}, keys...),
	}
}

func (b *binder) bindSelectMany(src ast.Node, sel *ast.Lambda) (*ast.Projection, error) {
	if err := requireLambda(sel, "SelectMany"); err != nil {
		return nil, err
	}
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	sc := b.pushScope(proj.Select.Alias)
	body, err := b.bindLambda(sel, frameSelector, proj.Projector)
	b.popScope()
	if err != nil {
		return nil, err
	}
	coll, err := b.toSequence(body)
	if err != nil {
		return nil, err
	}
	from := &ast.Join{Join: ast.JoinCrossApply, Left: sc.wrap(proj.Select), Right: coll.Select}
	return b.project(coll.Projector, from, append(sc.aliases, coll.Select.Alias), nil)
}

func (b *binder) bindJoin(left bool, outer, inner ast.Node, outerKey, innerKey, result *ast.Lambda) (*ast.Projection, error) {
	if outerKey == nil || innerKey == nil || result == nil {
		return nil, ErrUnsupportedQuery.New("join without key or result selector")
	}
	op, err := b.bindSequence(outer)
	if err != nil {
		return nil, err
	}
	ip, err := b.bindSequence(inner)
	if err != nil {
		return nil, err
	}
	sc := b.pushScope(op.Select.Alias, ip.Select.Alias)
	defer b.popScope()
	ok, err := b.bindLambda(outerKey, framePredicate, op.Projector)
	if err != nil {
		return nil, err
	}
	ik, err := b.bindLambda(innerKey, framePredicate, ip.Projector)
	if err != nil {
		return nil, err
	}
	rs, err := b.bindLambda(result, frameSelector, op.Projector, ip.Projector)
	if err != nil {
		return nil, err
	}
	cond, err := keyEquality(ok, ik)
	if err != nil {
		return nil, err
	}
	kind := ast.JoinInner
	if left {
		kind = ast.JoinLeft
	}
	join := &ast.Join{Join: kind, Left: op.Select, Right: ip.Select, Condition: cond}
	return b.project(rs, sc.wrap(join), sc.aliases, nil)
}

func (b *binder) bindGroupBy(c *ast.Call, src ast.Node, args []ast.Node) (ast.Node, error) {
	keySel := lambdaArg(args, 0)
	if err := requireLambda(keySel, "GroupBy"); err != nil {
		return nil, err
	}
	var elemSel, resultSel *ast.Lambda
	switch len(args) {
	case 1:
	case 2:
		l := lambdaArg(args, 1)
		if l == nil {
			return nil, ErrUnsupportedQuery.New("GroupBy argument")
		}
		if len(l.Params) == 2 {
			resultSel = l
		} else {
			elemSel = l
		}
	case 3:
		elemSel, resultSel = lambdaArg(args, 1), lambdaArg(args, 2)
	default:
		return nil, ErrUnsupportedQuery.New("GroupBy arity")
	}

	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	outer := b.pushScope(proj.Select.Alias)
	keyExpr, err := b.bindLambda(keySel, frameSelector, proj.Projector)
	if err != nil {
		b.popScope()
		return nil, err
	}
	elemExpr := proj.Projector
	if elemSel != nil {
		if elemExpr, err = b.bindLambda(elemSel, frameSelector, proj.Projector); err != nil {
			b.popScope()
			return nil, err
		}
	}
	b.popScope()
	keyPC, err := columns.Project(keyExpr, proj.Select.Alias, outer.aliases...)
	if err != nil {
		return nil, err
	}
	groupExprs := declExprs(keyPC.Columns)

	// The elements of each group come from a second copy of the source,
	// correlated on the key.
	basis, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	inner := b.pushScope(basis.Select.Alias)
	subKey, err := b.bindLambda(keySel, frameSelector, basis.Projector)
	if err != nil {
		b.popScope()
		return nil, err
	}
	subElem := basis.Projector
	if elemSel != nil {
		if subElem, err = b.bindLambda(elemSel, frameSelector, basis.Projector); err != nil {
			b.popScope()
			return nil, err
		}
	}
	b.popScope()
	subKeyPC, err := columns.Project(subKey, basis.Select.Alias, inner.aliases...)
	if err != nil {
		return nil, err
	}
	correlation := nullsEqual(declExprs(subKeyPC.Columns), groupExprs)
	elements, err := b.project(subElem, inner.wrap(basis.Select), inner.aliases, func(s *ast.Select) {
		s.Where = correlation
	})
	if err != nil {
		return nil, err
	}

	alias := b.aliases.Next()
	info := &groupInfo{alias: alias, element: elemExpr}
	b.groups[elements] = info

	var resultExpr ast.Node
	if resultSel != nil {
		saved := b.currentGroup
		b.currentGroup = elements
		resultExpr, err = b.bindLambda(resultSel, frameSelector, keyExpr, elements)
		b.currentGroup = saved
		if err != nil {
			return nil, err
		}
	} else {
		resultExpr = &ast.New{
			Typ:    ast.ElemType(c.Typ),
			Fields: []string{"Key", "Elements"},
			Args:   []ast.Node{keyExpr, elements},
		}
	}

	pc, err := columns.Project(resultExpr, alias, outer.aliases...)
	if err != nil {
		return nil, err
	}
	if g, ok := pc.Projector.(*ast.New); ok && ast.IsGroupType(g.Typ) {
		if el, ok := g.Arg("Elements"); ok {
			b.groups[el] = info
		}
	}
	return &ast.Projection{
		Select:    &ast.Select{Alias: alias, Columns: pc.Columns, From: outer.wrap(proj.Select), GroupBy: groupExprs},
		Projector: pc.Projector,
	}, nil
}

func declExprs(decls []ast.ColumnDecl) []ast.Node {
	out := make([]ast.Node, len(decls))
	for i, d := range decls {
		out[i] = d.Expr
	}
	return out
}

func (b *binder) bindOrderBy(src ast.Node, key *ast.Lambda, desc bool) (*ast.Projection, error) {
	if err := requireLambda(key, "OrderBy"); err != nil {
		return nil, err
	}
	thenBys := b.thenBys
	b.thenBys = nil
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	sc := b.pushScope(proj.Select.Alias)
	defer b.popScope()

	var orderings []ast.Ordering
	add := func(l *ast.Lambda, desc bool) error {
		e, err := b.bindLambda(l, frameSelector, proj.Projector)
		if err != nil {
			return err
		}
		for _, k := range components(e) {
			orderings = append(orderings, ast.Ordering{Expr: k, Descending: desc})
		}
		return nil
	}
	if err := add(key, desc); err != nil {
		return nil, err
	}
	// ThenBy calls were collected outermost first.
	for i := len(thenBys) - 1; i >= 0; i-- {
		if err := add(thenBys[i].key, thenBys[i].descending); err != nil {
			return nil, err
		}
	}
	return b.project(proj.Projector, sc.wrap(proj.Select), sc.aliases, func(s *ast.Select) {
		s.OrderBy = orderings
	})
}

func (b *binder) bindDistinct(src ast.Node) (*ast.Projection, error) {
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	return b.project(proj.Projector, proj.Select, []ast.Alias{proj.Select.Alias}, func(s *ast.Select) {
		s.Distinct = true
	})
}

func (b *binder) bindPaging(src, count ast.Node, take bool) (*ast.Projection, error) {
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	n, err := b.bind(count)
	if err != nil {
		return nil, err
	}
	// Take right after Skip pages the same select.
	if take && proj.Select.Skip != nil && proj.Select.Take == nil {
		sel := *proj.Select
		sel.Take = n
		return &ast.Projection{Select: &sel, Projector: proj.Projector}, nil
	}
	return b.project(proj.Projector, proj.Select, []ast.Alias{proj.Select.Alias}, func(s *ast.Select) {
		if take {
			s.Take = n
		} else {
			s.Skip = n
		}
	})
}

var firstAggregators = map[string]ast.Aggregator{
	"First":           ast.AggregatorFirst,
	"FirstOrDefault":  ast.AggregatorFirstOrDefault,
	"Last":            ast.AggregatorFirst,
	"LastOrDefault":   ast.AggregatorFirstOrDefault,
	"Single":          ast.AggregatorSingle,
	"SingleOrDefault": ast.AggregatorSingleOrDefault,
}

func (b *binder) bindFirst(c *ast.Call, src ast.Node, pred *ast.Lambda) (ast.Node, error) {
	var (
		proj *ast.Projection
		err  error
	)
	if pred != nil {
		proj, err = b.bindWhere(src, pred)
	} else {
		proj, err = b.bindSequence(src)
	}
	if err != nil {
		return nil, err
	}
	root := b.isRoot(c)
	take := ast.Node(ast.NewLiteral(1))
	if root && strings.HasPrefix(c.Method, "Single") {
		// A second row is read to detect sequences with more than one element.
		take = ast.NewLiteral(2)
	}
	from := proj.Select
	if strings.HasPrefix(c.Method, "Last") {
		if len(from.OrderBy) == 0 {
			return nil, ErrUnsupportedQuery.New(c.Method + " requires an ordered sequence")
		}
		if from.Skip != nil || from.Take != nil {
			return nil, ErrUnsupportedQuery.New(c.Method + " over a paged sequence")
		}
		reversed := *from
		reversed.OrderBy = make([]ast.Ordering, len(from.OrderBy))
		for i, o := range from.OrderBy {
			reversed.OrderBy[i] = ast.Ordering{Expr: o.Expr, Descending: !o.Descending}
		}
		from = &reversed
	}
	out, err := b.project(proj.Projector, from, []ast.Alias{from.Alias}, func(s *ast.Select) {
		s.Take = take
	})
	if err != nil {
		return nil, err
	}
	out.Aggregator = firstAggregators[c.Method]
	if root || !ast.IsScalar(out.Projector.Type()) {
		return out, nil
	}
	return b.scalarSubquery(out)
}

// scalarSubquery turns a projection of a single column into a scalar
// subquery.
func (b *binder) scalarSubquery(proj *ast.Projection) (ast.Node, error) {
	col, ok := proj.Projector.(*ast.Column)
	if !ok || col.Alias != proj.Select.Alias {
		return nil, ErrUnsupportedQuery.New("scalar subquery over " + proj.Projector.Kind().String())
	}
	decl, _ := proj.Select.Column(col.Name)
	sel := *proj.Select
	sel.Columns = []ast.ColumnDecl{decl}
	return &ast.Scalar{Select: &sel, Typ: col.Typ}, nil
}

// singleton wraps a scalar database expression into a query returning one
// row with one column.
func (b *binder) singleton(expr ast.Node) *ast.Projection {
	alias := b.aliases.Next()
	return &ast.Projection{
		Select:     &ast.Select{Alias: alias, Columns: []ast.ColumnDecl{{Name: "value", Expr: expr}}},
		Projector:  &ast.Column{Alias: alias, Name: "value", Typ: expr.Type()},
		Aggregator: ast.AggregatorSingleOrDefault,
	}
}

// predicate returns a boolean subquery test, as a value when used inside a
// selector.
func (b *binder) predicate(n ast.Node) ast.Node {
	if !b.inSelector() {
		return n
	}
	return &ast.Conditional{Test: n, Then: ast.NewLiteral(true), Else: ast.NewLiteral(false), Typ: ast.BoolType}
}

func (b *binder) bindAny(c *ast.Call, src ast.Node, pred *ast.Lambda) (ast.Node, error) {
	var (
		proj *ast.Projection
		err  error
	)
	if pred != nil {
		proj, err = b.bindWhere(src, pred)
	} else {
		proj, err = b.bindSequence(src)
	}
	if err != nil {
		return nil, err
	}
	exists := &ast.Exists{Select: proj.Select}
	if b.isRoot(c) {
		return b.singleton(exists), nil
	}
	return b.predicate(exists), nil
}

func (b *binder) bindAll(c *ast.Call, src ast.Node, pred *ast.Lambda) (ast.Node, error) {
	if err := requireLambda(pred, "All"); err != nil {
		return nil, err
	}
	negated := &ast.Lambda{Params: pred.Params, Body: ast.NewNot(pred.Body)}
	proj, err := b.bindWhere(src, negated)
	if err != nil {
		return nil, err
	}
	all := ast.NewNot(&ast.Exists{Select: proj.Select})
	if b.isRoot(c) {
		return b.singleton(all), nil
	}
	return b.predicate(all), nil
}

func (b *binder) bindContains(c *ast.Call, src, value ast.Node) (ast.Node, error) {
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	v, err := b.bind(value)
	if err != nil {
		return nil, err
	}
	if !ast.IsScalar(proj.Projector.Type()) {
		if ent, ok := proj.Projector.(*ast.Entity); ok {
			return b.containsEntity(c, proj, ent, v)
		}
		return nil, ErrUnsupportedQuery.New("Contains over a sequence of " + proj.Projector.Type().String())
	}
	sub, err := b.project(proj.Projector, proj.Select, []ast.Alias{proj.Select.Alias}, nil)
	if err != nil {
		return nil, err
	}
	col, ok := sub.Projector.(*ast.Column)
	if !ok {
		return nil, ErrUnsupportedQuery.New("Contains over computed values")
	}
	decl, _ := sub.Select.Column(col.Name)
	sub.Select.Columns = []ast.ColumnDecl{decl}
	in := &ast.In{Expr: v, Select: sub.Select}
	if b.isRoot(c) {
		return b.singleton(in), nil
	}
	return b.predicate(in), nil
}

// containsEntity tests for an element with the same key.
func (b *binder) containsEntity(c *ast.Call, proj *ast.Projection, ent *ast.Entity, v ast.Node) (ast.Node, error) {
	cond, err := keyEquality(ent, v)
	if err != nil {
		return nil, err
	}
	sel, err := b.project(ent, proj.Select, []ast.Alias{proj.Select.Alias}, func(s *ast.Select) {
		s.Where = cond
	})
	if err != nil {
		return nil, err
	}
	exists := &ast.Exists{Select: sel.Select}
	if b.isRoot(c) {
		return b.singleton(exists), nil
	}
	return b.predicate(exists), nil
}

var aggregateNames = map[string]string{
	"Count": "COUNT", "Sum": "SUM", "Min": "MIN", "Max": "MAX", "Average": "AVG",
}

func (b *binder) bindAggregate(c *ast.Call, src ast.Node, arg *ast.Lambda) (ast.Node, error) {
	name := aggregateNames[c.Method]
	hasPredicate := c.Method == "Count"
	if hasPredicate && arg != nil {
		where, err := b.bindWhere(src, arg)
		if err != nil {
			return nil, err
		}
		return b.aggregate(c, name, where, nil, false)
	}
	if !hasPredicate {
		if err := requireLambda(arg, c.Method); err != nil {
			return nil, err
		}
	}
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	return b.aggregate(c, name, proj, arg, true)
}

func (b *binder) aggregate(c *ast.Call, name string, proj *ast.Projection, arg *ast.Lambda, groupable bool) (ast.Node, error) {
	typ := c.Typ
	var argExpr ast.Node
	if arg != nil {
		var err error
		if argExpr, err = b.bindLambda(arg, frameSelector, proj.Projector); err != nil {
			return nil, err
		}
	}
	agg := &ast.Aggregate{Name: name, Arg: argExpr, Typ: typ}
	alias := b.aliases.Next()
	sel := &ast.Select{Alias: alias, Columns: []ast.ColumnDecl{{Name: "value", Expr: agg}}, From: proj.Select}
	if b.isRoot(c) {
		return &ast.Projection{
			Select:     sel,
			Projector:  &ast.Column{Alias: alias, Name: "value", Typ: typ},
			Aggregator: ast.AggregatorSingleOrDefault,
		}, nil
	}
	subquery := &ast.Scalar{Select: sel, Typ: typ}
	info, ok := b.groups[ast.Node(proj)]
	if !groupable || !ok {
		return subquery, nil
	}
	var inArg ast.Node
	if arg != nil {
		var err error
		if inArg, err = b.bindLambda(arg, frameSelector, info.element); err != nil {
			return nil, err
		}
	}
	inGroup := &ast.Aggregate{Name: name, Arg: inArg, Typ: typ}
	if ast.Node(proj) == b.currentGroup {
		return inGroup, nil
	}
	return &ast.AggregateSubquery{GroupAlias: info.alias, InGroup: inGroup, Subquery: subquery}, nil
}

func (b *binder) bindInclude(src, path ast.Node) (ast.Node, error) {
	c, ok := path.(*ast.Constant)
	if !ok {
		return nil, ErrUnsupportedQuery.New("Include path must be a literal")
	}
	p, ok := c.Value.(string)
	if !ok || p == "" {
		return nil, ErrUnsupportedQuery.New("Include path must be a property path")
	}
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, err
	}
	return b.includeProjection(proj, strings.Split(p, "."))
}

func (b *binder) bindUnion(left, right ast.Node, all bool) (*ast.Projection, error) {
	lp, err := b.bindSequence(left)
	if err != nil {
		return nil, err
	}
	rp, err := b.bindSequence(right)
	if err != nil {
		return nil, err
	}
	alias := b.aliases.Next()
	lpc, err := columns.Project(lp.Projector, alias, lp.Select.Alias)
	if err != nil {
		return nil, err
	}
	rpc, err := columns.Project(rp.Projector, alias, rp.Select.Alias)
	if err != nil {
		return nil, err
	}
	if !sameNames(lpc.Columns, rpc.Columns) {
		return nil, ErrUnsupportedQuery.New("union of differently shaped sequences")
	}
	union := &ast.Union{
		Alias: alias,
		Left:  &ast.Select{Alias: b.aliases.Next(), Columns: lpc.Columns, From: lp.Select},
		Right: &ast.Select{Alias: b.aliases.Next(), Columns: rpc.Columns, From: rp.Select},
		All:   all,
	}
	return b.project(lpc.Projector, union, []ast.Alias{alias}, nil)
}

func sameNames(a, b []ast.ColumnDecl) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}
