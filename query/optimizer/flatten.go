package optimizer

import (
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/columns"
	"github.com/satishbabariya/objql/query/transform"
)

// FlattenCollections joins the nested projections of a projector into the
// enclosing select. Each nested projection becomes the right side of an
// outer apply and its projector becomes a Collection read from the joined
// rows. The joined select is ordered by the parent key so the rows of one
// parent arrive together.
func FlattenCollections(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	if _, ok := n.(*ast.Projection); !ok {
		return n, transform.SameTree, nil
	}
	f := &flattener{aliases: ast.NewAliasGenerator(ast.MaxAlias(n))}
	return transform.Node(n, func(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
		p, ok := n.(*ast.Projection)
		if !ok {
			return n, transform.SameTree, nil
		}
		return f.flatten(p)
	})
}

type flattener struct {
	aliases *ast.AliasGenerator
}

func (f *flattener) flatten(p *ast.Projection) (ast.Node, transform.TreeIdentity, error) {
	same := transform.SameTree
	for {
		nested := nestedProjection(p.Projector)
		if nested == nil {
			return p, same, nil
		}
		var err error
		if p, err = f.join(p, nested); err != nil {
			return nil, transform.SameTree, err
		}
		same = transform.NewTree
	}
}

// nestedProjection returns the first projection found in a projector,
// without looking inside it.
func nestedProjection(n ast.Node) *ast.Projection {
	var found *ast.Projection
	ast.Inspect(n, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		if p, ok := n.(*ast.Projection); ok {
			found = p
			return false
		}
		return true
	})
	return found
}

func paged(s *ast.Select) bool { return s.Skip != nil || s.Take != nil }

// exposeOrderings moves the orderings of sel to its output columns and
// returns them expressed against sel's alias. Paged selects keep their own
// ordering since it decides which rows survive.
func exposeOrderings(sel *ast.Select) (*ast.Select, []ast.Ordering) {
	if len(sel.OrderBy) == 0 {
		return sel, nil
	}
	out := sel
	var orderings []ast.Ordering
	for _, o := range sel.OrderBy {
		var col *ast.Column
		out, col = columns.Expose(out, o.Expr)
		orderings = append(orderings, ast.Ordering{Expr: col, Descending: o.Descending})
	}
	if !paged(out) {
		ns := *out
		ns.OrderBy = nil
		out = &ns
	}
	return out, orderings
}

func (f *flattener) join(p *ast.Projection, nested *ast.Projection) (*ast.Projection, error) {
	outer, orderings := exposeOrderings(p.Select)
	for _, k := range ast.KeyExprs(p.Projector) {
		orderings = appendOrdering(orderings, ast.Ordering{Expr: k})
	}

	child := nested.Select
	var replacement ast.Node
	if nested.IsSingleton() {
		// at most one row per parent, nothing to group
		replacement = nested.Projector
	} else {
		var childOrderings []ast.Ordering
		child, childOrderings = exposeOrderings(child)
		for _, o := range childOrderings {
			orderings = appendOrdering(orderings, o)
		}
		replacement = &ast.Collection{Typ: nested.Type(), Projector: nested.Projector}
	}

	projector, _, err := transform.Replace(p.Projector, map[ast.Node]ast.Node{nested: replacement})
	if err != nil {
		return nil, err
	}
	alias := f.aliases.Next()
	pc, err := columns.Project(projector, alias, outer.Alias, child.Alias)
	if err != nil {
		return nil, err
	}
	return &ast.Projection{
		Select: &ast.Select{
			Alias:   alias,
			Columns: pc.Columns,
			From:    &ast.Join{Join: ast.JoinOuterApply, Left: outer, Right: child},
			OrderBy: orderings,
		},
		Projector:  pc.Projector,
		Aggregator: p.Aggregator,
	}, nil
}

func appendOrdering(os []ast.Ordering, o ast.Ordering) []ast.Ordering {
	shape := ast.Format(o.Expr)
	for _, e := range os {
		if ast.Format(e.Expr) == shape {
			return os
		}
	}
	return append(os, o)
}
