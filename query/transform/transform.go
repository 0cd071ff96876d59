// Package transform rewrites query trees. A rewrite rebuilds a node only
// when one of its children changed, so unchanged subtrees are shared and
// callers can tell from the returned TreeIdentity whether anything moved.
package transform

import (
	"errors"

	"github.com/satishbabariya/objql/query/ast"
)

// TreeIdentity tells whether a rewrite produced a different tree.
type TreeIdentity bool

const (
	SameTree TreeIdentity = true
	NewTree  TreeIdentity = false
)

// NodeFunc rewrites a single node.
type NodeFunc func(n ast.Node) (ast.Node, TreeIdentity, error)

// PreFunc rewrites a single node before its children. Returning descend
// false keeps the children of the returned node untouched.
type PreFunc func(n ast.Node) (out ast.Node, same TreeIdentity, descend bool, err error)

// Node applies f to the tree from the bottom up.
func Node(n ast.Node, f NodeFunc) (ast.Node, TreeIdentity, error) {
	if n == nil {
		return nil, SameTree, nil
	}
	children := n.Children()
	if len(children) == 0 {
		return f(n)
	}

	var (
		newChildren []ast.Node
		err         error
	)
	for i, c := range children {
		if c == nil {
			continue
		}
		c, same, err := Node(c, f)
		if err != nil {
			return nil, SameTree, err
		}
		if !same {
			if newChildren == nil {
				newChildren = make([]ast.Node, len(children))
				copy(newChildren, children)
			}
			newChildren[i] = c
		}
	}

	sameC := SameTree
	if newChildren != nil {
		sameC = NewTree
		n, err = n.WithChildren(newChildren...)
		if err != nil {
			return nil, SameTree, err
		}
	}

	n, sameN, err := f(n)
	if err != nil {
		return nil, SameTree, err
	}
	return n, sameC && sameN, nil
}

// Pre applies f to the tree from the top down.
func Pre(n ast.Node, f PreFunc) (ast.Node, TreeIdentity, error) {
	if n == nil {
		return nil, SameTree, nil
	}
	n, sameN, descend, err := f(n)
	if err != nil {
		return nil, SameTree, err
	}
	if !descend {
		return n, sameN, nil
	}

	children := n.Children()
	var newChildren []ast.Node
	for i, c := range children {
		if c == nil {
			continue
		}
		c, same, err := Pre(c, f)
		if err != nil {
			return nil, SameTree, err
		}
		if !same {
			if newChildren == nil {
				newChildren = make([]ast.Node, len(children))
				copy(newChildren, children)
			}
			newChildren[i] = c
		}
	}
	if newChildren == nil {
		return n, sameN, nil
	}
	n, err = n.WithChildren(newChildren...)
	if err != nil {
		return nil, SameTree, err
	}
	return n, NewTree, nil
}

// Replace substitutes nodes found in repl, by identity, everywhere in the
// tree.
func Replace(n ast.Node, repl map[ast.Node]ast.Node) (ast.Node, TreeIdentity, error) {
	if len(repl) == 0 {
		return n, SameTree, nil
	}
	return Pre(n, func(n ast.Node) (ast.Node, TreeIdentity, bool, error) {
		if r, ok := repl[n]; ok {
			return r, NewTree, false, nil
		}
		return n, SameTree, true, nil
	})
}

// Columns rewrites every column reference with f.
func Columns(n ast.Node, f func(c *ast.Column) (ast.Node, bool)) (ast.Node, TreeIdentity, error) {
	return Node(n, func(n ast.Node) (ast.Node, TreeIdentity, error) {
		c, ok := n.(*ast.Column)
		if !ok {
			return n, SameTree, nil
		}
		if r, changed := f(c); changed {
			return r, NewTree, nil
		}
		return n, SameTree, nil
	})
}

var errStop = errors.New("stop")

// Any reports whether f holds for some node of the tree, checking parents
// before children.
func Any(n ast.Node, f func(ast.Node) bool) bool {
	_, _, err := Pre(n, func(n ast.Node) (ast.Node, TreeIdentity, bool, error) {
		if f(n) {
			return nil, SameTree, false, errStop
		}
		return n, SameTree, true, nil
	})
	return errors.Is(err, errStop)
}
