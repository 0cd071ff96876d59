package optimizer

import (
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/columns"
	"github.com/satishbabariya/objql/query/transform"
)

// LiftOrderings moves the orderings of inner selects to the outermost
// select of the query. Orderings of paged selects stay in place and are
// repeated outside. Orderings reaching a grouped, distinct or aggregating
// select are dropped, and so are those of subqueries in expression
// position.
func LiftOrderings(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	var l lifter
	var out ast.Node
	switch n := n.(type) {
	case *ast.Projection:
		sel, _, err := l.lift(n.Select, true)
		if err != nil {
			return nil, transform.SameTree, err
		}
		out = &ast.Projection{Select: sel, Projector: n.Projector, Aggregator: n.Aggregator}
	default:
		var err error
		if out, err = l.exprs(n); err != nil {
			return nil, transform.SameTree, err
		}
	}
	return out, identity(n, out), nil
}

type lifter struct{}

func (l *lifter) lift(sel *ast.Select, root bool) (*ast.Select, []ast.Ordering, error) {
	from, gathered, err := l.from(sel.From)
	if err != nil {
		return nil, nil, err
	}
	ns := *sel
	ns.From = from
	if err := l.selectExprs(&ns); err != nil {
		return nil, nil, err
	}

	var all []ast.Ordering
	for _, o := range ns.OrderBy {
		all = appendOrdering(all, o)
	}
	blocked := len(ns.GroupBy) > 0 || ns.Distinct || hasAggregates(&ns)
	if !blocked {
		for _, o := range gathered {
			all = appendOrdering(all, o)
		}
	}

	switch {
	case root:
		ns.OrderBy = all
		return &ns, nil, nil
	case paged(&ns):
		ns.OrderBy = all
	default:
		ns.OrderBy = nil
	}

	out := &ns
	var up []ast.Ordering
	for _, o := range all {
		if ns.Distinct && !declares(out, o.Expr) {
			// a new column would change what is distinct
			continue
		}
		var col *ast.Column
		out, col = columns.Expose(out, o.Expr)
		up = append(up, ast.Ordering{Expr: col, Descending: o.Descending})
	}
	return out, up, nil
}

// standalone lifts a select that feeds no ordering outward.
func (l *lifter) standalone(sel *ast.Select) (*ast.Select, error) {
	out, _, err := l.lift(sel, true)
	if err != nil {
		return nil, err
	}
	if !paged(out) && len(out.OrderBy) > 0 {
		ns := *out
		ns.OrderBy = nil
		out = &ns
	}
	return out, nil
}

func (l *lifter) from(n ast.Node) (ast.Node, []ast.Ordering, error) {
	switch f := n.(type) {
	case *ast.Select:
		return l.lift(f, false)
	case *ast.Join:
		left, lo, err := l.from(f.Left)
		if err != nil {
			return nil, nil, err
		}
		right, ro, err := l.from(f.Right)
		if err != nil {
			return nil, nil, err
		}
		cond, err := l.exprs(f.Condition)
		if err != nil {
			return nil, nil, err
		}
		return &ast.Join{Join: f.Join, Left: left, Right: right, Condition: cond}, append(lo, ro...), nil
	case *ast.Union:
		left, err := l.standalone(f.Left)
		if err != nil {
			return nil, nil, err
		}
		right, err := l.standalone(f.Right)
		if err != nil {
			return nil, nil, err
		}
		return &ast.Union{Alias: f.Alias, Left: left, Right: right, All: f.All}, nil, nil
	}
	return n, nil, nil
}

func (l *lifter) selectExprs(s *ast.Select) error {
	var err error
	if s.Where, err = l.exprs(s.Where); err != nil {
		return err
	}
	cols := make([]ast.ColumnDecl, len(s.Columns))
	for i, c := range s.Columns {
		e, err := l.exprs(c.Expr)
		if err != nil {
			return err
		}
		cols[i] = ast.ColumnDecl{Name: c.Name, Expr: e}
	}
	s.Columns = cols
	return nil
}

// exprs handles the subqueries of an expression.
func (l *lifter) exprs(n ast.Node) (ast.Node, error) {
	out, _, err := transform.Pre(n, func(n ast.Node) (ast.Node, transform.TreeIdentity, bool, error) {
		sel := subquerySelect(n)
		if sel == nil {
			return n, transform.SameTree, true, nil
		}
		lifted, err := l.standalone(sel)
		if err != nil {
			return nil, transform.SameTree, false, err
		}
		out, err := withSubquerySelect(n, lifted)
		if err != nil {
			return nil, transform.SameTree, false, err
		}
		if in, ok := out.(*ast.In); ok {
			expr, err := l.exprs(in.Expr)
			if err != nil {
				return nil, transform.SameTree, false, err
			}
			out = &ast.In{Expr: expr, Select: in.Select}
		}
		return out, transform.NewTree, false, nil
	})
	return out, err
}

// subquerySelect returns the select of a subquery in expression position.
func subquerySelect(n ast.Node) *ast.Select {
	switch n := n.(type) {
	case *ast.Scalar:
		return n.Select
	case *ast.Exists:
		return n.Select
	case *ast.In:
		return n.Select
	}
	return nil
}

func withSubquerySelect(n ast.Node, sel *ast.Select) (ast.Node, error) {
	switch n := n.(type) {
	case *ast.Scalar:
		return &ast.Scalar{Select: sel, Typ: n.Typ}, nil
	case *ast.Exists:
		return &ast.Exists{Select: sel}, nil
	case *ast.In:
		return &ast.In{Expr: n.Expr, Select: sel, Values: n.Values}, nil
	}
	return nil, ast.ErrInvalidChild.New(n.Kind(), 0, ast.KindSelect, n.Kind())
}

// hasAggregates reports whether the columns of s aggregate its rows.
func hasAggregates(s *ast.Select) bool {
	for _, c := range s.Columns {
		found := false
		ast.Inspect(c.Expr, func(n ast.Node) bool {
			switch n.(type) {
			case *ast.Aggregate:
				found = true
			case *ast.Select:
				return false
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

func declares(s *ast.Select, expr ast.Node) bool {
	shape := ast.Format(expr)
	for _, c := range s.Columns {
		if ast.Format(c.Expr) == shape {
			return true
		}
	}
	return false
}
