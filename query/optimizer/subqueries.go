package optimizer

import (
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/transform"
)

// RemoveRedundantSubqueries removes selects that only rename their source
// and merges a select into its leftmost source select when the two clause
// sets can be combined without changing the rows.
func RemoveRedundantSubqueries(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	out, _, err := transform.Node(n, func(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
		switch n := n.(type) {
		case *ast.Select:
			out, err := simplifySelect(n)
			if err != nil {
				return nil, transform.SameTree, err
			}
			return out, transform.TreeIdentity(out == n), nil
		case *ast.Projection:
			if _, ok := n.Select.From.(*ast.Select); !ok || !isRedundant(n.Select) {
				return n, transform.SameTree, nil
			}
			out, err := removeSubqueries(n, map[ast.Alias]*ast.Select{n.Select.Alias: n.Select})
			if err != nil {
				return nil, transform.SameTree, err
			}
			return out, transform.NewTree, nil
		}
		return n, transform.SameTree, nil
	})
	if err != nil {
		return nil, transform.SameTree, err
	}
	return out, identity(n, out), nil
}

func simplifySelect(sel *ast.Select) (*ast.Select, error) {
	redundant := make(map[ast.Alias]*ast.Select)
	gatherRedundant(sel.From, redundant)
	if len(redundant) > 0 {
		out, err := removeSubqueries(sel, redundant)
		if err != nil {
			return nil, err
		}
		sel = out.(*ast.Select)
	}
	for canMerge(sel) {
		var err error
		if sel, err = merge(sel); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

func gatherRedundant(n ast.Node, out map[ast.Alias]*ast.Select) {
	switch f := n.(type) {
	case *ast.Select:
		if isRedundant(f) {
			out[f.Alias] = f
		}
	case *ast.Join:
		gatherRedundant(f.Left, out)
		gatherRedundant(f.Right, out)
	}
}

func isRedundant(s *ast.Select) bool {
	return s.IsDefaultScope() && s.Where == nil && (isSimpleProjection(s) || isNameMapProjection(s))
}

// isSimpleProjection reports whether every column passes a source column
// through under its own name.
func isSimpleProjection(s *ast.Select) bool {
	for _, c := range s.Columns {
		col, ok := c.Expr.(*ast.Column)
		if !ok || col.Name != c.Name {
			return false
		}
	}
	return true
}

// isNameMapProjection reports whether s renames the columns of its source
// select one to one, in order.
func isNameMapProjection(s *ast.Select) bool {
	from, ok := s.From.(*ast.Select)
	if !ok || len(s.Columns) != len(from.Columns) {
		return false
	}
	for i, c := range s.Columns {
		col, ok := c.Expr.(*ast.Column)
		if !ok || col.Name != from.Columns[i].Name {
			return false
		}
	}
	return true
}

// isColumnProjection reports whether every column of s reads a source
// column or a literal.
func isColumnProjection(s *ast.Select) bool {
	for _, c := range s.Columns {
		switch c.Expr.(type) {
		case *ast.Column:
		case *ast.Constant:
			if !ast.IsLiteral(c.Expr) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func leftmostSelect(n ast.Node) *ast.Select {
	switch f := n.(type) {
	case *ast.Select:
		return f
	case *ast.Join:
		return leftmostSelect(f.Left)
	}
	return nil
}

func canMerge(sel *ast.Select) bool {
	from := leftmostSelect(sel.From)
	if from == nil || !isColumnProjection(from) {
		return false
	}
	selOrdered := len(sel.OrderBy) > 0
	selGrouped := len(sel.GroupBy) > 0
	selAggregates := hasAggregates(sel)
	_, selJoined := sel.From.(*ast.Join)
	fromOrdered := len(from.OrderBy) > 0
	fromGrouped := len(from.GroupBy) > 0
	fromAggregates := hasAggregates(from)

	switch {
	case selOrdered && fromOrdered, selGrouped && fromGrouped:
		return false
	case fromOrdered && (selGrouped || selAggregates || sel.Distinct):
		return false
	case fromGrouped:
		return false
	case from.Take != nil && (sel.Take != nil || sel.Skip != nil || sel.Distinct || selAggregates || selGrouped || selJoined):
		return false
	case from.Skip != nil && (sel.Skip != nil || sel.Distinct || selAggregates || selGrouped || selJoined):
		return false
	case from.Distinct && (sel.Take != nil || sel.Skip != nil || !isNameMapProjection(sel) || selGrouped || selAggregates || selOrdered || selJoined):
		return false
	case fromAggregates && (sel.Take != nil || sel.Skip != nil || sel.Distinct || selAggregates || selGrouped || selJoined):
		return false
	}
	return true
}

func merge(sel *ast.Select) (*ast.Select, error) {
	from := leftmostSelect(sel.From)
	out, err := removeSubqueries(sel, map[ast.Alias]*ast.Select{from.Alias: from})
	if err != nil {
		return nil, err
	}
	ns := *out.(*ast.Select)
	ns.Where = ast.And(from.Where, ns.Where)
	if len(ns.OrderBy) == 0 {
		ns.OrderBy = from.OrderBy
	}
	if len(ns.GroupBy) == 0 {
		ns.GroupBy = from.GroupBy
	}
	if ns.Skip == nil {
		ns.Skip = from.Skip
	}
	if ns.Take == nil {
		ns.Take = from.Take
	}
	ns.Distinct = ns.Distinct || from.Distinct
	ns.ForUpdate = ns.ForUpdate || from.ForUpdate
	return &ns, nil
}

// removeSubqueries replaces the given selects by their sources and their
// column references by the expressions the columns declared.
func removeSubqueries(n ast.Node, remove map[ast.Alias]*ast.Select) (ast.Node, error) {
	var substitute func(c *ast.Column) (ast.Node, bool)
	substitute = func(c *ast.Column) (ast.Node, bool) {
		s, ok := remove[c.Alias]
		if !ok {
			return c, false
		}
		decl, ok := s.Column(c.Name)
		if !ok {
			return c, false
		}
		out, _, err := transform.Columns(decl.Expr, substitute)
		if err != nil {
			return c, false
		}
		return out, true
	}
	out, _, err := transform.Node(n, func(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
		switch n := n.(type) {
		case *ast.Select:
			if _, ok := remove[n.Alias]; ok {
				return n.From, transform.NewTree, nil
			}
		case *ast.Column:
			if out, changed := substitute(n); changed {
				return out, transform.NewTree, nil
			}
		}
		return n, transform.SameTree, nil
	})
	return out, err
}
