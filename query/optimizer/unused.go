package optimizer

import (
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/transform"
)

// RemoveUnusedColumns drops output columns no enclosing scope reads. The
// tree is walked from the outside in so a column's readers are all known
// before its select is visited. Distinct selects and the operands of a
// plain union keep every column since removing one changes their rows.
func RemoveUnusedColumns(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	r := &remover{used: make(map[ast.Alias]map[string]bool)}
	var out ast.Node
	switch n := n.(type) {
	case *ast.Projection:
		r.mark(n.Projector)
		sel, err := r.visitSelect(n.Select, false)
		if err != nil {
			return nil, transform.SameTree, err
		}
		out = &ast.Projection{Select: sel, Projector: n.Projector, Aggregator: n.Aggregator}
	default:
		r.mark(n)
		var err error
		if out, err = r.subqueries(n); err != nil {
			return nil, transform.SameTree, err
		}
	}
	return out, identity(n, out), nil
}

type remover struct {
	used map[ast.Alias]map[string]bool
}

// mark records the columns n reads, leaving nested selects to their own
// visit.
func (r *remover) mark(n ast.Node) {
	ast.Inspect(n, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Select:
			return false
		case *ast.Column:
			if r.used[n.Alias] == nil {
				r.used[n.Alias] = make(map[string]bool)
			}
			r.used[n.Alias][n.Name] = true
		}
		return true
	})
}

func (r *remover) visitSelect(sel *ast.Select, keepAll bool) (*ast.Select, error) {
	ns := *sel
	if !keepAll && !sel.Distinct {
		used := r.used[sel.Alias]
		var cols []ast.ColumnDecl
		for _, c := range sel.Columns {
			if used[c.Name] {
				cols = append(cols, c)
			}
		}
		ns.Columns = cols
	}

	for _, c := range ns.Columns {
		r.mark(c.Expr)
	}
	r.mark(ns.Where)
	r.mark(ns.Skip)
	r.mark(ns.Take)
	for _, o := range ns.OrderBy {
		r.mark(o.Expr)
	}
	for _, g := range ns.GroupBy {
		r.mark(g)
	}

	// Subqueries may read the sources of this select, so they go first.
	var err error
	if ns.Where, err = r.subqueries(ns.Where); err != nil {
		return nil, err
	}
	cols := make([]ast.ColumnDecl, len(ns.Columns))
	for i, c := range ns.Columns {
		e, err := r.subqueries(c.Expr)
		if err != nil {
			return nil, err
		}
		cols[i] = ast.ColumnDecl{Name: c.Name, Expr: e}
	}
	ns.Columns = cols

	if ns.From, err = r.from(ns.From); err != nil {
		return nil, err
	}
	return &ns, nil
}

func (r *remover) from(n ast.Node) (ast.Node, error) {
	switch f := n.(type) {
	case *ast.Select:
		return r.visitSelect(f, false)
	case *ast.Join:
		r.mark(f.Condition)
		cond, err := r.subqueries(f.Condition)
		if err != nil {
			return nil, err
		}
		// the right side of an apply reads the left one
		right, err := r.from(f.Right)
		if err != nil {
			return nil, err
		}
		left, err := r.from(f.Left)
		if err != nil {
			return nil, err
		}
		return &ast.Join{Join: f.Join, Left: left, Right: right, Condition: cond}, nil
	case *ast.Union:
		names := r.used[f.Alias]
		r.used[f.Left.Alias] = copyNames(names, r.used[f.Left.Alias])
		r.used[f.Right.Alias] = copyNames(names, r.used[f.Right.Alias])
		left, err := r.visitSelect(f.Left, !f.All)
		if err != nil {
			return nil, err
		}
		right, err := r.visitSelect(f.Right, !f.All)
		if err != nil {
			return nil, err
		}
		return &ast.Union{Alias: f.Alias, Left: left, Right: right, All: f.All}, nil
	}
	return n, nil
}

func copyNames(src, dst map[string]bool) map[string]bool {
	if dst == nil {
		dst = make(map[string]bool, len(src))
	}
	for k := range src {
		dst[k] = true
	}
	return dst
}

// subqueries visits the selects of subqueries in expression position. An
// EXISTS reads no column of its select.
func (r *remover) subqueries(n ast.Node) (ast.Node, error) {
	out, _, err := transform.Pre(n, func(n ast.Node) (ast.Node, transform.TreeIdentity, bool, error) {
		sel := subquerySelect(n)
		if sel == nil {
			return n, transform.SameTree, true, nil
		}
		_, exists := n.(*ast.Exists)
		visited, err := r.visitSelect(sel, !exists)
		if err != nil {
			return nil, transform.SameTree, false, err
		}
		out, err := withSubquerySelect(n, visited)
		if err != nil {
			return nil, transform.SameTree, false, err
		}
		if in, ok := out.(*ast.In); ok {
			expr, err := r.subqueries(in.Expr)
			if err != nil {
				return nil, transform.SameTree, false, err
			}
			out = &ast.In{Expr: expr, Select: in.Select}
		}
		return out, transform.NewTree, false, nil
	})
	return out, err
}
