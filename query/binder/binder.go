// Package binder lowers an operator tree into the relational tree: every
// sequence becomes a projection (a select plus the projector building one
// value per row), related object navigation becomes joins and correlated
// subqueries, and terminal operators become aggregates, subqueries or
// client side aggregators.
package binder

import (
	"reflect"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/satishbabariya/objql/internal/debug"
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/columns"
	"github.com/satishbabariya/objql/query/mapping"
)

// ErrUnsupportedQuery is returned for operators, arities and combinations
// the binder does not handle.
var ErrUnsupportedQuery = errors.NewKind("unsupported query shape: %s")

type frameKind int

const (
	framePredicate frameKind = iota
	frameSelector
)

// groupInfo ties the element subquery of a GroupBy back to the grouped
// select, so aggregates over the group can be computed there.
type groupInfo struct {
	alias   ast.Alias
	element ast.Node
}

// scope collects the joins added while binding a lambda body over one
// source, for related object navigation.
type scope struct {
	aliases []ast.Alias
	joins   []*ast.Join
	refs    map[string]*ast.Entity
}

func newScope(aliases ...ast.Alias) *scope {
	return &scope{aliases: aliases, refs: make(map[string]*ast.Entity)}
}

func (s *scope) declares(a ast.Alias) bool {
	for _, x := range s.aliases {
		if x == a {
			return true
		}
	}
	return false
}

// wrap left joins the related tables onto from.
func (s *scope) wrap(from ast.Node) ast.Node {
	for _, j := range s.joins {
		from = &ast.Join{Join: ast.JoinLeft, Left: from, Right: j.Right, Condition: j.Condition}
	}
	return from
}

type binder struct {
	model        *mapping.Model
	aliases      *ast.AliasGenerator
	root         ast.Node
	params       map[*ast.Parameter]ast.Node
	groups       map[ast.Node]*groupInfo
	currentGroup ast.Node
	frames       []frameKind
	scopes       []*scope
	thenBys      []ordering
}

type ordering struct {
	key        *ast.Lambda
	descending bool
}

// Bind lowers the operator tree n. The result is a *ast.Projection for
// queries and an Insert, Update or Delete node for writes.
func Bind(model *mapping.Model, n ast.Node) (ast.Node, error) {
	b := &binder{
		model:   model,
		aliases: ast.NewAliasGenerator(ast.MaxAlias(n)),
		root:    n,
		params:  make(map[*ast.Parameter]ast.Node),
		groups:  make(map[ast.Node]*groupInfo),
	}
	out, err := b.bind(n)
	if err != nil {
		return nil, err
	}
	if ast.IsStatement(out) {
		return out, nil
	}
	proj, ok := out.(*ast.Projection)
	if !ok {
		return nil, ErrUnsupportedQuery.New("query does not produce rows: " + out.Kind().String())
	}
	debug.Debug("Bound query", "aliases", ast.MaxAlias(proj))
	return proj, nil
}

func (b *binder) pushFrame(k frameKind) { b.frames = append(b.frames, k) }
func (b *binder) popFrame()             { b.frames = b.frames[:len(b.frames)-1] }

func (b *binder) inSelector() bool {
	return len(b.frames) > 0 && b.frames[len(b.frames)-1] == frameSelector
}

func (b *binder) pushScope(aliases ...ast.Alias) *scope {
	s := newScope(aliases...)
	b.scopes = append(b.scopes, s)
	return s
}

func (b *binder) popScope() { b.scopes = b.scopes[:len(b.scopes)-1] }

// scopeFor finds the innermost scope declaring the alias the node reads.
func (b *binder) scopeFor(n ast.Node) *scope {
	var alias ast.Alias
	ast.Inspect(n, func(n ast.Node) bool {
		if alias != "" {
			return false
		}
		if c, ok := n.(*ast.Column); ok {
			alias = c.Alias
		}
		return alias == ""
	})
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if b.scopes[i].declares(alias) {
			return b.scopes[i]
		}
	}
	return nil
}

// bindLambda binds the body of l with its parameters mapped to args.
func (b *binder) bindLambda(l *ast.Lambda, frame frameKind, args ...ast.Node) (ast.Node, error) {
	if len(l.Params) != len(args) {
		return nil, ErrUnsupportedQuery.New("lambda arity")
	}
	for i, p := range l.Params {
		b.params[p] = args[i]
	}
	b.pushFrame(frame)
	defer b.popFrame()
	return b.bind(l.Body)
}

func (b *binder) bind(n ast.Node) (ast.Node, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case *ast.Call:
		if ast.IsQueryOperator(n) {
			return b.bindOperator(n)
		}
		return b.bindMethod(n)
	case *ast.Source:
		return b.bindSource(n.Elem)
	case *ast.Parameter:
		bound, ok := b.params[n]
		if !ok {
			return nil, ErrUnsupportedQuery.New("unbound parameter " + n.Name)
		}
		return bound, nil
	case *ast.Member:
		return b.bindMember(n)
	case *ast.Binary:
		return b.bindBinary(n)
	case *ast.Lambda:
		return nil, ErrUnsupportedQuery.New("lambda outside of an operator")
	case *ast.Constant, *ast.Placeholder, *ast.Argument, *ast.Version, *ast.Column:
		return n, nil
	}
	children := n.Children()
	bound := make([]ast.Node, len(children))
	changed := false
	for i, c := range children {
		bc, err := b.bind(c)
		if err != nil {
			return nil, err
		}
		bound[i] = bc
		changed = changed || bc != c
	}
	if !changed {
		return n, nil
	}
	return n.WithChildren(bound...)
}

// bindSequence binds n and returns it as a projection.
func (b *binder) bindSequence(n ast.Node) (*ast.Projection, error) {
	bound, err := b.bind(n)
	if err != nil {
		return nil, err
	}
	return b.toSequence(bound)
}

func (b *binder) toSequence(n ast.Node) (*ast.Projection, error) {
	switch n := n.(type) {
	case *ast.Projection:
		if n.IsSingleton() {
			return nil, ErrUnsupportedQuery.New("single value used as a sequence")
		}
		return n, nil
	case *ast.New:
		if ast.IsGroupType(n.Typ) {
			if el, ok := n.Arg("Elements"); ok {
				return b.toSequence(el)
			}
		}
	}
	return nil, ErrUnsupportedQuery.New("not a sequence: " + n.Kind().String())
}

// bindSource binds the root of a query over a mapped type.
func (b *binder) bindSource(elem reflect.Type) (*ast.Projection, error) {
	ent, err := b.model.Entity(elem)
	if err != nil {
		return nil, err
	}
	tableAlias := b.aliases.Next()
	table := &ast.Table{Alias: tableAlias, Name: ent.Table, Elem: ent.Type}
	alias := b.aliases.Next()
	pc, err := columns.Project(b.entityProjector(ent, tableAlias), alias, tableAlias)
	if err != nil {
		return nil, err
	}
	return &ast.Projection{
		Select:    &ast.Select{Alias: alias, Columns: pc.Columns, From: table},
		Projector: pc.Projector,
	}, nil
}

// entityProjector builds an entity from the persisted columns of a table.
func (b *binder) entityProjector(ent *mapping.Entity, alias ast.Alias) *ast.Entity {
	e := &ast.Entity{Typ: ent.Type, Keys: ent.KeyNames()}
	for _, c := range ent.Columns(mapping.NoFollow, mapping.AllPersisted) {
		e.Fields = append(e.Fields, c.Property.Name)
		e.Args = append(e.Args, &ast.Column{Alias: alias, Name: c.Column, Typ: c.Property.Type})
	}
	return e
}

// project wraps source in a new select computing projector.
func (b *binder) project(projector ast.Node, from ast.Node, sources []ast.Alias, configure func(*ast.Select)) (*ast.Projection, error) {
	alias := b.aliases.Next()
	pc, err := columns.Project(projector, alias, sources...)
	if err != nil {
		return nil, err
	}
	sel := &ast.Select{Alias: alias, Columns: pc.Columns, From: from}
	if configure != nil {
		configure(sel)
	}
	return &ast.Projection{Select: sel, Projector: pc.Projector}, nil
}

// keyEquality compares two bound values component wise.
func keyEquality(a, b ast.Node) (ast.Node, error) {
	ak, bk := components(a), components(b)
	if len(ak) != len(bk) {
		return nil, ErrUnsupportedQuery.New("join keys of different arity")
	}
	var preds []ast.Node
	for i := range ak {
		preds = append(preds, ast.NewBinary(ast.OpEq, ak[i], bk[i]))
	}
	return ast.And(preds...), nil
}

func components(n ast.Node) []ast.Node {
	switch n := n.(type) {
	case *ast.New:
		var out []ast.Node
		for _, a := range n.Args {
			out = append(out, components(a)...)
		}
		return out
	case *ast.Tuple:
		var out []ast.Node
		for _, a := range n.Items {
			out = append(out, components(a)...)
		}
		return out
	case *ast.Entity:
		return ast.KeyExprs(n)
	}
	return []ast.Node{n}
}

// nullsEqual builds (a IS NULL AND b IS NULL) OR a = b for each pair.
func nullsEqual(as, bs []ast.Node) ast.Node {
	var preds []ast.Node
	for i := range as {
		bothNull := ast.NewBinary(ast.OpAnd, &ast.IsNull{Expr: as[i]}, &ast.IsNull{Expr: bs[i]})
		preds = append(preds, ast.NewBinary(ast.OpOr, bothNull, ast.NewBinary(ast.OpEq, as[i], bs[i])))
	}
	return ast.And(preds...)
}
