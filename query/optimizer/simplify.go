package optimizer

import (
	"reflect"

	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/transform"
)

// CollateGroupKeys flattens structured grouping keys into their scalar
// components and drops constant ones.
func CollateGroupKeys(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	return transform.Node(n, func(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
		sel, ok := n.(*ast.Select)
		if !ok || len(sel.GroupBy) == 0 {
			return n, transform.SameTree, nil
		}
		var keys []ast.Node
		changed := false
		for _, g := range sel.GroupBy {
			switch g.(type) {
			case *ast.New, *ast.Tuple, *ast.Entity, *ast.Constant, *ast.Placeholder:
				keys = append(keys, ast.KeyExprs(g)...)
				changed = true
			default:
				keys = append(keys, g)
			}
		}
		if !changed {
			return n, transform.SameTree, nil
		}
		ns := *sel
		ns.GroupBy = keys
		return &ns, transform.NewTree, nil
	})
}

// EliminateConditionals folds boolean logic over literal operands,
// conditionals whose test is a literal and COALESCE with a literal head.
func EliminateConditionals(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	return transform.Node(n, func(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
		switch n := n.(type) {
		case *ast.Conditional:
			if v, ok := ast.LiteralBool(n.Test); ok {
				if v {
					return n.Then, transform.NewTree, nil
				}
				return n.Else, transform.NewTree, nil
			}
		case *ast.Unary:
			if n.Op != ast.OpNot {
				break
			}
			if v, ok := ast.LiteralBool(n.Operand); ok {
				return ast.NewLiteral(!v), transform.NewTree, nil
			}
			if inner, ok := n.Operand.(*ast.Unary); ok && inner.Op == ast.OpNot {
				return inner.Operand, transform.NewTree, nil
			}
		case *ast.Binary:
			if out, ok := foldLogical(n); ok {
				return out, transform.NewTree, nil
			}
			if out, ok := foldCoalesce(n); ok {
				return out, transform.NewTree, nil
			}
		case *ast.Select:
			// WHERE TRUE says nothing.
			if v, ok := ast.LiteralBool(n.Where); ok && v {
				ns := *n
				ns.Where = nil
				return &ns, transform.NewTree, nil
			}
		}
		return n, transform.SameTree, nil
	})
}

func foldLogical(b *ast.Binary) (ast.Node, bool) {
	if !b.Op.IsLogical() {
		return nil, false
	}
	lv, lok := ast.LiteralBool(b.Left)
	rv, rok := ast.LiteralBool(b.Right)
	switch b.Op {
	case ast.OpAnd:
		switch {
		case lok && !lv, rok && !rv:
			return ast.NewLiteral(false), true
		case lok:
			return b.Right, true
		case rok:
			return b.Left, true
		}
	case ast.OpOr:
		switch {
		case lok && lv, rok && rv:
			return ast.NewLiteral(true), true
		case lok:
			return b.Right, true
		case rok:
			return b.Left, true
		}
	}
	return nil, false
}

func foldCoalesce(b *ast.Binary) (ast.Node, bool) {
	if b.Op != ast.OpCoalesce {
		return nil, false
	}
	c, ok := b.Left.(*ast.Constant)
	if !ok || c.Captured {
		return nil, false
	}
	if isNil(c.Value) {
		return b.Right, true
	}
	return b.Left, true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
