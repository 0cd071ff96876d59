// Package columns decides which parts of a projector become output columns
// of a select and rewrites the projector to read them back.
package columns

import (
	"fmt"

	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/transform"
)

// MustBeColumn reports nodes that can only be evaluated by the database.
func MustBeColumn(n ast.Node) bool {
	switch n.(type) {
	case *ast.Column, *ast.Scalar, *ast.Exists, *ast.In, *ast.Aggregate, *ast.AggregateSubquery:
		return true
	}
	return false
}

// CanBeColumn is the default candidate test: database only nodes and scalar
// valued expressions over them.
func CanBeColumn(n ast.Node) bool {
	if MustBeColumn(n) {
		return true
	}
	if !ast.IsScalar(n.Type()) {
		return false
	}
	switch n := n.(type) {
	case *ast.Binary, *ast.Conditional, *ast.Function, *ast.IsNull, *ast.Constant, *ast.Placeholder:
		return true
	case *ast.Unary:
		return n.Op != ast.OpDeref
	}
	return false
}

// Options tunes a projection.
type Options struct {
	// CanBeColumn overrides the candidate test.
	CanBeColumn func(ast.Node) bool
	// Existing columns are kept first and reused when the same expression is
	// projected again.
	Existing []ast.ColumnDecl
}

// Projected is the result of a projection.
type Projected struct {
	Columns   []ast.ColumnDecl
	Projector ast.Node
}

// Project lifts the column candidates of expr into the column list of a new
// select aliased newAlias whose FROM declares sources, and rewrites expr to
// read them through newAlias.
func Project(expr ast.Node, newAlias ast.Alias, sources ...ast.Alias) (*Projected, error) {
	return ProjectWith(expr, Options{}, newAlias, sources...)
}

// ProjectWith is Project with options.
func ProjectWith(expr ast.Node, opts Options, newAlias ast.Alias, sources ...ast.Alias) (*Projected, error) {
	canBe := opts.CanBeColumn
	if canBe == nil {
		canBe = CanBeColumn
	}
	p := &projector{
		candidates: Nominate(expr, canBe),
		sources:    make(map[ast.Alias]bool, len(sources)),
		newAlias:   newAlias,
		names:      make(map[string]bool),
		mapped:     make(map[string]string),
		memo:       make(map[string]string),
	}
	for _, s := range sources {
		p.sources[s] = true
	}
	for _, c := range opts.Existing {
		p.declare(c.Name, c.Expr)
	}

	out, _, err := transform.Pre(expr, p.visit)
	if err != nil {
		return nil, err
	}
	return &Projected{Columns: p.columns, Projector: out}, nil
}

// Nominate returns the column candidates of expr. Subqueries are candidates
// as a whole; nothing inside them is nominated.
func Nominate(expr ast.Node, canBe func(ast.Node) bool) map[ast.Node]bool {
	nm := &nominator{canBe: canBe, candidates: make(map[ast.Node]bool)}
	nm.nominate(expr)
	return nm.candidates
}

type nominator struct {
	canBe      func(ast.Node) bool
	candidates map[ast.Node]bool
}

// nominate reports whether n may be part of a column expression.
func (nm *nominator) nominate(n ast.Node) bool {
	switch n.(type) {
	case nil:
		return true
	case *ast.Scalar, *ast.Exists, *ast.In, *ast.AggregateSubquery:
		if nm.canBe(n) {
			nm.candidates[n] = true
			return true
		}
		return false
	case *ast.Projection, *ast.Select:
		return false
	case *ast.Constant, *ast.Placeholder:
		// Values are read from parameters unless they are part of a larger
		// column expression.
		return nm.canBe(n)
	}
	ok := true
	for _, c := range n.Children() {
		if !nm.nominate(c) {
			ok = false
		}
	}
	if ok && nm.canBe(n) {
		nm.candidates[n] = true
		return true
	}
	return false
}

type projector struct {
	candidates map[ast.Node]bool
	sources    map[ast.Alias]bool
	newAlias   ast.Alias
	columns    []ast.ColumnDecl
	names      map[string]bool
	mapped     map[string]string
	memo       map[string]string
	synthetic  int
}

func columnKey(c *ast.Column) string { return string(c.Alias) + "." + c.Name }

func (p *projector) declare(name string, expr ast.Node) {
	p.columns = append(p.columns, ast.ColumnDecl{Name: name, Expr: expr})
	p.names[name] = true
	if c, ok := expr.(*ast.Column); ok {
		if _, seen := p.mapped[columnKey(c)]; !seen {
			p.mapped[columnKey(c)] = name
		}
		return
	}
	shape := ast.Format(expr)
	if _, seen := p.memo[shape]; !seen {
		p.memo[shape] = name
	}
}

func (p *projector) visit(n ast.Node) (ast.Node, transform.TreeIdentity, bool, error) {
	if p.candidates[n] {
		out := p.column(n)
		return out, transform.TreeIdentity(out == n), false, nil
	}
	if proj, ok := n.(*ast.Projection); ok {
		out, same, err := p.lift(proj)
		return out, same, false, err
	}
	return n, transform.SameTree, true, nil
}

// column returns the reference to the output column computing n.
func (p *projector) column(n ast.Node) ast.Node {
	if c, ok := n.(*ast.Column); ok {
		if name, ok := p.mapped[columnKey(c)]; ok {
			return &ast.Column{Alias: p.newAlias, Name: name, Typ: c.Typ}
		}
		if !p.sources[c.Alias] {
			// outer reference, already in scope
			return c
		}
		name := p.uniqueName(c.Name)
		p.declare(name, c)
		return &ast.Column{Alias: p.newAlias, Name: name, Typ: c.Typ}
	}
	shape := ast.Format(n)
	if name, ok := p.memo[shape]; ok {
		return &ast.Column{Alias: p.newAlias, Name: name, Typ: n.Type()}
	}
	name := p.nextName()
	p.declare(name, n)
	return &ast.Column{Alias: p.newAlias, Name: name, Typ: n.Type()}
}

// lift rewrites references to the source scopes inside a nested projection
// so that they read the new scope instead.
func (p *projector) lift(proj *ast.Projection) (ast.Node, transform.TreeIdentity, error) {
	return transform.Columns(proj, func(c *ast.Column) (ast.Node, bool) {
		if !p.sources[c.Alias] {
			return c, false
		}
		return p.column(c), true
	})
}

func (p *projector) uniqueName(base string) string {
	if !p.names[base] {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if !p.names[name] {
			return name
		}
	}
}

func (p *projector) nextName() string {
	for {
		name := fmt.Sprintf("COL%d", p.synthetic)
		p.synthetic++
		if !p.names[name] {
			return name
		}
	}
}

// Expose makes expr an output column of sel, reusing an existing column
// computing the same expression, and returns the reference to it.
func Expose(sel *ast.Select, expr ast.Node) (*ast.Select, *ast.Column) {
	shape := ast.Format(expr)
	names := make(map[string]bool, len(sel.Columns))
	for _, c := range sel.Columns {
		if ast.Format(c.Expr) == shape {
			return sel, &ast.Column{Alias: sel.Alias, Name: c.Name, Typ: expr.Type()}
		}
		names[c.Name] = true
	}
	p := &projector{names: names}
	var name string
	if c, ok := expr.(*ast.Column); ok {
		name = p.uniqueName(c.Name)
	} else {
		name = p.nextName()
	}
	ns := *sel
	ns.Columns = append(append([]ast.ColumnDecl(nil), sel.Columns...), ast.ColumnDecl{Name: name, Expr: expr})
	return &ns, &ast.Column{Alias: sel.Alias, Name: name, Typ: expr.Type()}
}
