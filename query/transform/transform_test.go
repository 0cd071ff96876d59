package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/objql/query/ast"
)

func sample() (*ast.Binary, *ast.Column) {
	col := &ast.Column{Alias: "t0", Name: "total", Typ: ast.Int64Type}
	return ast.NewBinary(ast.OpAdd,
		ast.NewBinary(ast.OpMul, ast.NewLiteral(int64(2)), ast.NewLiteral(int64(3))),
		col), col
}

func double(n ast.Node) (ast.Node, TreeIdentity, error) {
	if c, ok := n.(*ast.Constant); ok {
		return ast.NewLiteral(c.Value.(int64) * 2), NewTree, nil
	}
	return n, SameTree, nil
}

func TestNode(t *testing.T) {
	tree, col := sample()

	out, same, err := Node(tree, double)
	require.NoError(t, err)
	assert.Equal(t, NewTree, same)
	assert.Equal(t, "(+ (* (lit<int64> 4) (lit<int64> 6)) t0.total)", out.String())
	assert.Same(t, col, out.(*ast.Binary).Right, "unchanged subtrees are shared")
	assert.Equal(t, "(+ (* (lit<int64> 2) (lit<int64> 3)) t0.total)", tree.String(), "input is not modified")

	out, same, err = Node(tree, func(n ast.Node) (ast.Node, TreeIdentity, error) {
		return n, SameTree, nil
	})
	require.NoError(t, err)
	assert.Equal(t, SameTree, same)
	assert.Same(t, tree, out)

	boom := errors.New("boom")
	_, _, err = Node(tree, func(n ast.Node) (ast.Node, TreeIdentity, error) { return nil, SameTree, boom })
	assert.ErrorIs(t, err, boom)

	out, same, err = Node(nil, double)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, SameTree, same)
}

func TestPre(t *testing.T) {
	tree, _ := sample()
	var visited []ast.Kind
	out, same, err := Pre(tree, func(n ast.Node) (ast.Node, TreeIdentity, bool, error) {
		visited = append(visited, n.Kind())
		if b, ok := n.(*ast.Binary); ok && b.Op == ast.OpMul {
			return ast.NewLiteral(int64(6)), NewTree, false, nil
		}
		return n, SameTree, true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, NewTree, same)
	assert.Equal(t, "(+ (lit<int64> 6) t0.total)", out.String())
	assert.Equal(t, []ast.Kind{ast.KindBinary, ast.KindBinary, ast.KindColumn}, visited)
}

func TestReplace(t *testing.T) {
	tree, col := sample()
	repl := &ast.Column{Alias: "t1", Name: "total", Typ: ast.Int64Type}

	out, same, err := Replace(tree, map[ast.Node]ast.Node{col: repl})
	require.NoError(t, err)
	assert.Equal(t, NewTree, same)
	assert.Same(t, repl, out.(*ast.Binary).Right)

	// Replacement is by identity, not by structure.
	other := &ast.Column{Alias: "t0", Name: "total", Typ: ast.Int64Type}
	out, same, err = Replace(tree, map[ast.Node]ast.Node{other: repl})
	require.NoError(t, err)
	assert.Equal(t, SameTree, same)
	assert.Same(t, tree, out)
}

func TestColumns(t *testing.T) {
	tree, _ := sample()
	out, same, err := Columns(tree, func(c *ast.Column) (ast.Node, bool) {
		return &ast.Column{Alias: "t9", Name: c.Name, Typ: c.Typ}, c.Alias == "t0"
	})
	require.NoError(t, err)
	assert.Equal(t, NewTree, same)
	assert.Equal(t, map[ast.Alias]bool{"t9": true}, ast.ReferencedAliases(out))
}

func TestAny(t *testing.T) {
	tree, _ := sample()
	assert.True(t, Any(tree, func(n ast.Node) bool { return n.Kind() == ast.KindColumn }))
	assert.False(t, Any(tree, func(n ast.Node) bool { return n.Kind() == ast.KindPlaceholder }))
}
