package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// AliasGenerator hands out scope aliases t0, t1, ...
type AliasGenerator struct {
	next int
}

// NewAliasGenerator returns a generator starting at t<start>.
func NewAliasGenerator(start int) *AliasGenerator {
	return &AliasGenerator{next: start}
}

// Next returns a fresh alias.
func (g *AliasGenerator) Next() Alias {
	a := Alias(fmt.Sprintf("t%d", g.next))
	g.next++
	return a
}

// Inspect walks the tree in pre-order. Returning false from fn skips the
// children of the node. Nil child slots are not visited.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		if c != nil {
			Inspect(c, fn)
		}
	}
}

// DeclaredAliases returns the aliases declared by tables, selects and
// unions in the tree.
func DeclaredAliases(n Node) map[Alias]bool {
	out := make(map[Alias]bool)
	Inspect(n, func(n Node) bool {
		switch n := n.(type) {
		case *Table:
			out[n.Alias] = true
		case *Select:
			out[n.Alias] = true
		case *Union:
			out[n.Alias] = true
		}
		return true
	})
	return out
}

// SourceAliases returns the aliases a select's FROM clause makes visible,
// without descending into the sources themselves.
func SourceAliases(from Node) []Alias {
	switch f := from.(type) {
	case *Table:
		return []Alias{f.Alias}
	case *Select:
		return []Alias{f.Alias}
	case *Union:
		return []Alias{f.Alias}
	case *Join:
		return append(SourceAliases(f.Left), SourceAliases(f.Right)...)
	}
	return nil
}

// ReferencedAliases returns the aliases of every column referenced in the
// tree.
func ReferencedAliases(n Node) map[Alias]bool {
	out := make(map[Alias]bool)
	Inspect(n, func(n Node) bool {
		if c, ok := n.(*Column); ok {
			out[c.Alias] = true
		}
		return true
	})
	return out
}

// References reports whether the tree references a column of any of the
// given aliases.
func References(n Node, aliases map[Alias]bool) bool {
	found := false
	Inspect(n, func(n Node) bool {
		if found {
			return false
		}
		if c, ok := n.(*Column); ok && aliases[c.Alias] {
			found = true
		}
		return !found
	})
	return found
}

// MaxAlias returns one past the highest alias number declared in the tree,
// so later passes can keep numbering without collisions.
func MaxAlias(n Node) int {
	max := 0
	note := func(a Alias) {
		s := string(a)
		if !strings.HasPrefix(s, "t") {
			return
		}
		if v, err := strconv.Atoi(s[1:]); err == nil && v+1 > max {
			max = v + 1
		}
	}
	Inspect(n, func(n Node) bool {
		switch n := n.(type) {
		case *Table:
			note(n.Alias)
		case *Select:
			note(n.Alias)
		case *Union:
			note(n.Alias)
		case *Column:
			note(n.Alias)
		}
		return true
	})
	return max
}

// MaxPlaceholder returns one past the highest placeholder index in the tree.
func MaxPlaceholder(n Node) int {
	max := 0
	Inspect(n, func(n Node) bool {
		if p, ok := n.(*Placeholder); ok && p.Index+1 > max {
			max = p.Index + 1
		}
		return true
	})
	return max
}

// KeyExprs returns the expressions identifying the object a projector
// builds: the primary key of an entity, otherwise every row dependent
// value outside of nested collections.
func KeyExprs(n Node) []Node {
	switch n := n.(type) {
	case nil:
		return nil
	case *Entity:
		var out []Node
		for _, k := range n.Keys {
			if a, ok := n.Arg(k); ok {
				out = append(out, KeyExprs(a)...)
			}
		}
		if len(out) > 0 {
			return out
		}
		for _, a := range n.Args {
			out = append(out, KeyExprs(a)...)
		}
		return out
	case *New:
		var out []Node
		for _, a := range n.Args {
			out = append(out, KeyExprs(a)...)
		}
		return out
	case *Tuple:
		var out []Node
		for _, a := range n.Items {
			out = append(out, KeyExprs(a)...)
		}
		return out
	case *Collection, *Projection, *Constant, *Placeholder, *Version:
		return nil
	}
	return []Node{n}
}

// HasCollections reports whether the projector assembles nested
// collections from joined rows.
func HasCollections(n Node) bool {
	found := false
	Inspect(n, func(n Node) bool {
		if _, ok := n.(*Collection); ok {
			found = true
		}
		return !found
	})
	return found
}
