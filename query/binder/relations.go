package binder

import (
	"reflect"

	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/mapping"
)

func (b *binder) bindMember(m *ast.Member) (ast.Node, error) {
	if inner, ok := m.Expr.(*ast.Member); ok {
		owner, err := b.bind(inner.Expr)
		if err != nil {
			return nil, err
		}
		// The key of a referenced object is the owner's foreign key; no
		// join is needed to read it.
		if ent, ok := owner.(*ast.Entity); ok {
			if fk, ok := b.foreignKey(ent, inner.Name, m.Name); ok {
				return fk, nil
			}
		}
		src, err := b.member(owner, inner.Name)
		if err != nil {
			return nil, err
		}
		return b.member(src, m.Name)
	}
	src, err := b.bind(m.Expr)
	if err != nil {
		return nil, err
	}
	return b.member(src, m.Name)
}

func (b *binder) foreignKey(ent *ast.Entity, ref, key string) (ast.Node, bool) {
	desc, err := b.model.Entity(ent.Typ)
	if err != nil {
		return nil, false
	}
	info, err := desc.ResolveColumn(ref, key)
	if err != nil || info.Owner != desc {
		return nil, false
	}
	return ent.Arg(info.Property.Name)
}

// member reads a field of a bound value.
func (b *binder) member(src ast.Node, name string) (ast.Node, error) {
	switch src := src.(type) {
	case *ast.Entity:
		if arg, ok := src.Arg(name); ok {
			return arg, nil
		}
		desc, err := b.model.Entity(src.Typ)
		if err != nil {
			return nil, err
		}
		p, err := desc.Property(name)
		if err != nil {
			return nil, err
		}
		if p.Relation == nil {
			return nil, mapping.ErrMissingMapping.New(desc.Name(), name)
		}
		switch p.Relation.Kind {
		case mapping.RelationReference:
			sc := b.scopeFor(src)
			if sc == nil {
				return nil, ErrUnsupportedQuery.New("navigation to " + name + " outside of a query")
			}
			return b.referenceJoin(sc, src, desc, p)
		case mapping.RelationCollection:
			return b.collectionProjection(src, desc, p)
		}
	case *ast.New:
		if arg, ok := src.Arg(name); ok {
			return arg, nil
		}
	case *ast.Projection:
		if !src.IsSingleton() {
			break
		}
		inner, err := b.member(src.Projector, name)
		if err != nil {
			return nil, err
		}
		proj := &ast.Projection{Select: src.Select, Projector: inner, Aggregator: src.Aggregator}
		if !ast.IsScalar(inner.Type()) {
			return proj, nil
		}
		out, err := b.project(inner, src.Select, []ast.Alias{src.Select.Alias}, nil)
		if err != nil {
			return nil, err
		}
		return b.scalarSubquery(out)
	}
	return nil, ErrUnsupportedQuery.New("member " + name + " of " + src.Kind().String())
}

// referenceJoin joins the target of a reference into the scope and returns
// the target entity. Navigating the same reference twice reuses the join.
func (b *binder) referenceJoin(sc *scope, ent *ast.Entity, desc *mapping.Entity, p *mapping.Property) (*ast.Entity, error) {
	target, err := desc.Target(p)
	if err != nil {
		return nil, err
	}
	fks := make([]ast.Node, len(p.Relation.Keys))
	for i, k := range p.Relation.Keys {
		fk, ok := ent.Arg(k)
		if !ok {
			return nil, mapping.ErrMissingMapping.New(desc.Name(), k)
		}
		fks[i] = fk
	}
	memo := target.Table + ":" + ast.Format(&ast.Tuple{Items: fks})
	if e, ok := sc.refs[memo]; ok {
		return e, nil
	}
	if len(target.Keys) != len(fks) {
		return nil, mapping.ErrInvalidMapping.New(desc.Name(), p.Name, "foreign key arity")
	}
	alias := b.aliases.Next()
	te := b.entityProjector(target, alias)
	var preds []ast.Node
	for i, k := range target.Keys {
		preds = append(preds, ast.NewBinary(ast.OpEq, &ast.Column{Alias: alias, Name: k.Column, Typ: k.Type}, fks[i]))
	}
	sc.joins = append(sc.joins, &ast.Join{
		Join:      ast.JoinLeft,
		Right:     &ast.Table{Alias: alias, Name: target.Table, Elem: target.Type},
		Condition: ast.And(preds...),
	})
	sc.aliases = append(sc.aliases, alias)
	sc.refs[memo] = te
	return te, nil
}

// collectionProjection binds a related collection as a subquery over the
// child table correlated on the owner's key.
func (b *binder) collectionProjection(ent *ast.Entity, desc *mapping.Entity, p *mapping.Property) (*ast.Projection, error) {
	target, err := desc.Target(p)
	if err != nil {
		return nil, err
	}
	child, err := b.bindSource(target.Type)
	if err != nil {
		return nil, err
	}
	ce := child.Projector.(*ast.Entity)
	if len(p.Relation.Keys) != len(desc.Keys) {
		return nil, mapping.ErrInvalidMapping.New(desc.Name(), p.Name, "foreign key arity")
	}
	var preds []ast.Node
	for i, k := range desc.Keys {
		owner, ok := ent.Arg(k.Name)
		if !ok {
			return nil, mapping.ErrMissingMapping.New(desc.Name(), k.Name)
		}
		fk, ok := ce.Arg(p.Relation.Keys[i])
		if !ok {
			return nil, mapping.ErrMissingMapping.New(target.Name(), p.Relation.Keys[i])
		}
		preds = append(preds, ast.NewBinary(ast.OpEq, fk, owner))
	}
	return b.project(ce, child.Select, []ast.Alias{child.Select.Alias}, func(s *ast.Select) {
		s.Where = ast.And(preds...)
	})
}

// includeProjection loads the relations named by path with every element of
// proj.
func (b *binder) includeProjection(proj *ast.Projection, path []string) (*ast.Projection, error) {
	ent, ok := proj.Projector.(*ast.Entity)
	if !ok {
		return nil, ErrUnsupportedQuery.New("Include over a sequence of " + proj.Projector.Kind().String())
	}
	sc := newScope(proj.Select.Alias)
	ne, err := b.includeEntity(sc, ent, path)
	if err != nil {
		return nil, err
	}
	if len(sc.joins) == 0 {
		return &ast.Projection{Select: proj.Select, Projector: ne, Aggregator: proj.Aggregator}, nil
	}
	out, err := b.project(ne, sc.wrap(proj.Select), sc.aliases, nil)
	if err != nil {
		return nil, err
	}
	out.Aggregator = proj.Aggregator
	return out, nil
}

func (b *binder) includeEntity(sc *scope, ent *ast.Entity, path []string) (*ast.Entity, error) {
	desc, err := b.model.Entity(ent.Typ)
	if err != nil {
		return nil, err
	}
	p, err := desc.Property(path[0])
	if err != nil {
		return nil, err
	}
	if p.Relation == nil {
		return nil, ErrUnsupportedQuery.New("Include of " + desc.Name() + "." + p.Name + ", which is not a relation")
	}
	existing, bound := ent.Arg(p.Name)
	switch p.Relation.Kind {
	case mapping.RelationCollection:
		var child *ast.Projection
		if bound {
			child, _ = existing.(*ast.Projection)
		}
		if child == nil {
			if child, err = b.collectionProjection(ent, desc, p); err != nil {
				return nil, err
			}
		}
		if len(path) > 1 {
			if child, err = b.includeProjection(child, path[1:]); err != nil {
				return nil, err
			}
		}
		return ent.WithArg(p.Name, child), nil
	default:
		var target *ast.Entity
		if bound {
			target, _ = existing.(*ast.Entity)
		}
		if target == nil {
			if target, err = b.referenceJoin(sc, ent, desc, p); err != nil {
				return nil, err
			}
		}
		if len(path) > 1 {
			if target, err = b.includeEntity(sc, target, path[1:]); err != nil {
				return nil, err
			}
		}
		return ent.WithArg(p.Name, target), nil
	}
}

func (b *binder) bindBinary(n *ast.Binary) (ast.Node, error) {
	l, err := b.bind(n.Left)
	if err != nil {
		return nil, err
	}
	r, err := b.bind(n.Right)
	if err != nil {
		return nil, err
	}
	if n.Op == ast.OpEq || n.Op == ast.OpNe {
		var other ast.Node
		switch {
		case isNullLiteral(r):
			other = l
		case isNullLiteral(l):
			other = r
		}
		if other != nil {
			keys := components(other)
			var test ast.Node = &ast.IsNull{Expr: keys[0]}
			if n.Op == ast.OpNe {
				test = ast.NewNot(test)
			}
			return test, nil
		}
		if isStructured(l) || isStructured(r) {
			eq, err := keyEquality(l, r)
			if err != nil {
				return nil, err
			}
			if n.Op == ast.OpNe {
				return ast.NewNot(eq), nil
			}
			return eq, nil
		}
		if isNullable(r) {
			return nullSafeCompare(n.Op, l, r), nil
		}
		if isNullable(l) {
			return nullSafeCompare(n.Op, r, l), nil
		}
	}
	if l == n.Left && r == n.Right {
		return n, nil
	}
	return &ast.Binary{Op: n.Op, Left: l, Right: r, Typ: n.Typ}, nil
}

// isNullable reports whether n is a parameter whose value may be nil.
func isNullable(n ast.Node) bool {
	p, ok := n.(*ast.Placeholder)
	if !ok || p.Typ == nil {
		return false
	}
	switch p.Typ.Kind() {
	case reflect.Pointer, reflect.Interface:
		return true
	}
	return false
}

// nullSafeCompare compares a with the nullable parameter p so that two
// nulls are equal and a null never equals a value.
func nullSafeCompare(op ast.BinaryOp, a, p ast.Node) ast.Node {
	aNull, pNull := &ast.IsNull{Expr: a}, &ast.IsNull{Expr: p}
	if op == ast.OpEq {
		return ast.NewBinary(ast.OpOr, ast.NewBinary(ast.OpAnd, aNull, pNull), ast.NewBinary(ast.OpEq, a, p))
	}
	// (a IS NULL AND p IS NOT NULL) OR (a IS NOT NULL AND p IS NULL) OR a <> p
	return ast.NewBinary(ast.OpOr,
		ast.NewBinary(ast.OpOr,
			ast.NewBinary(ast.OpAnd, aNull, ast.NewNot(pNull)),
			ast.NewBinary(ast.OpAnd, ast.NewNot(aNull), pNull)),
		ast.NewBinary(ast.OpNe, a, p))
}

func isNullLiteral(n ast.Node) bool {
	c, ok := n.(*ast.Constant)
	return ok && !c.Captured && c.Value == nil
}

func isStructured(n ast.Node) bool {
	switch n.(type) {
	case *ast.Entity, *ast.New, *ast.Tuple:
		return true
	}
	return false
}

var sqlFunctions = map[string]string{
	"ToUpper": "UPPER", "ToLower": "LOWER", "Trim": "TRIM", "Len": "LENGTH",
}

// bindMethod binds a scalar method call to its SQL counterpart.
func (b *binder) bindMethod(c *ast.Call) (ast.Node, error) {
	args := make([]ast.Node, len(c.Args))
	for i, a := range c.Args {
		bound, err := b.bind(a)
		if err != nil {
			return nil, err
		}
		args[i] = bound
	}
	pct := ast.NewLiteral("%")
	concat := func(parts ...ast.Node) ast.Node {
		return &ast.Function{Name: "CONCAT", Args: parts, Typ: ast.StringType}
	}
	like := func(pattern ast.Node) ast.Node {
		return &ast.Binary{Op: ast.OpLike, Left: args[0], Right: pattern, Typ: ast.BoolType}
	}
	switch c.Method {
	case "StringContains":
		return like(concat(pct, args[1], pct)), nil
	case "StartsWith":
		return like(concat(args[1], pct)), nil
	case "EndsWith":
		return like(concat(pct, args[1])), nil
	case "Contains":
		if seq, ok := args[0].(*ast.Projection); ok {
			return nil, ErrUnsupportedQuery.New("Contains over " + seq.Kind().String())
		}
		return &ast.In{Expr: args[1], Values: []ast.Node{args[0]}}, nil
	}
	if fn, ok := sqlFunctions[c.Method]; ok {
		return &ast.Function{Name: fn, Args: args, Typ: c.Typ}, nil
	}
	return nil, ErrUnsupportedQuery.New("method " + c.Method)
}

// assignments binds the field values of an update body.
func (b *binder) assignments(desc *mapping.Entity, set ast.Node) ([]ast.Assignment, error) {
	n, ok := set.(*ast.New)
	if !ok {
		return nil, ErrUnsupportedQuery.New("update values must be a field set")
	}
	out := make([]ast.Assignment, 0, len(n.Fields))
	for i, f := range n.Fields {
		p, err := desc.Property(f)
		if err != nil {
			return nil, err
		}
		if !p.IsPersisted() {
			return nil, ErrUnsupportedQuery.New("update of relation " + desc.Name() + "." + f)
		}
		v, err := b.bind(n.Args[i])
		if err != nil {
			return nil, err
		}
		out = append(out, ast.Assignment{Column: p.Column, Expr: v, Computed: p.Computed})
	}
	return out, nil
}
