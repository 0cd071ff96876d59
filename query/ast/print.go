package ast

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Format returns the canonical textual form of a tree. Two trees with the
// same form are interchangeable: placeholders print their index and type
// but never a value.
func Format(n Node) string {
	var p printer
	p.node(n)
	return p.sb.String()
}

// Shape is an alias of Format used where the text serves as a cache key.
func Shape(n Node) string { return Format(n) }

// Hash returns the xxhash digest of the canonical form of n.
func Hash(n Node) uint64 {
	return xxhash.Sum64String(Format(n))
}

type printer struct {
	sb strings.Builder
}

func (p *printer) write(parts ...string) {
	for _, s := range parts {
		p.sb.WriteString(s)
	}
}

func (p *printer) typ(t reflect.Type) {
	if t == nil {
		p.write("<nil>")
		return
	}
	p.write("<", t.String(), ">")
}

func (p *printer) list(nodes []Node) {
	for _, n := range nodes {
		p.write(" ")
		p.node(n)
	}
}

func (p *printer) fields(names []string, args []Node) {
	for i, n := range args {
		p.write(" (", names[i], " ")
		p.node(n)
		p.write(")")
	}
}

func (p *printer) value(v any) {
	switch x := v.(type) {
	case nil:
		p.write("null")
	case string:
		p.write(strconv.Quote(x))
	case []byte:
		p.write(fmt.Sprintf("x'%x'", x))
	default:
		p.write(fmt.Sprintf("%v", x))
	}
}

func (p *printer) node(n Node) {
	if n == nil {
		p.write("nil")
		return
	}
	switch n := n.(type) {
	case *Constant:
		if n.Captured {
			p.write("(captured")
		} else {
			p.write("(lit")
		}
		p.typ(n.Typ)
		p.write(" ")
		p.value(n.Value)
		p.write(")")
	case *Parameter:
		p.write("$", n.Name)
	case *Argument:
		p.write("arg#", strconv.Itoa(n.Index))
		p.typ(n.Typ)
	case *Lambda:
		p.write("(lambda (")
		for i, prm := range n.Params {
			if i > 0 {
				p.write(" ")
			}
			p.write("$", prm.Name)
		}
		p.write(") ")
		p.node(n.Body)
		p.write(")")
	case *Member:
		p.node(n.Expr)
		p.write(".", n.Name)
	case *Unary:
		p.write("(", n.Op.String())
		if n.Op == OpConvert {
			p.typ(n.Typ)
		}
		p.write(" ")
		p.node(n.Operand)
		p.write(")")
	case *Binary:
		p.write("(", n.Op.String(), " ")
		p.node(n.Left)
		p.write(" ")
		p.node(n.Right)
		p.write(")")
	case *Conditional:
		p.write("(if ")
		p.node(n.Test)
		p.write(" ")
		p.node(n.Then)
		p.write(" ")
		p.node(n.Else)
		p.write(")")
	case *Call:
		p.write("(call ", n.Method)
		p.list(n.Args)
		p.write(")")
	case *New:
		p.write("(new")
		p.typ(n.Typ)
		p.fields(n.Fields, n.Args)
		p.write(")")
	case *Source:
		p.write("(source")
		p.typ(n.Elem)
		p.write(")")
	case *Version:
		p.write("(version)")
	case *Table:
		p.write("(table ", string(n.Alias), " ", n.Name, ")")
	case *Column:
		p.write(string(n.Alias), ".", n.Name)
	case *Select:
		p.selectNode(n)
	case *Join:
		p.write("(join ", n.Join.String(), " ")
		p.node(n.Left)
		p.write(" ")
		p.node(n.Right)
		if n.Condition != nil {
			p.write(" (on ")
			p.node(n.Condition)
			p.write(")")
		}
		p.write(")")
	case *Union:
		p.write("(union ", string(n.Alias))
		if n.All {
			p.write(" all")
		}
		p.write(" ")
		p.node(n.Left)
		p.write(" ")
		p.node(n.Right)
		p.write(")")
	case *Projection:
		p.write("(projection")
		if n.Aggregator != AggregatorNone {
			p.write(" ", n.Aggregator.String())
		}
		p.write(" ")
		p.node(n.Select)
		p.write(" ")
		p.node(n.Projector)
		p.write(")")
	case *Aggregate:
		p.write("(", strings.ToLower(n.Name))
		p.typ(n.Typ)
		if n.Distinct {
			p.write(" distinct")
		}
		if n.Arg != nil {
			p.write(" ")
			p.node(n.Arg)
		}
		p.write(")")
	case *AggregateSubquery:
		p.write("(aggregate-subquery ", string(n.GroupAlias), " ")
		p.node(n.InGroup)
		p.write(" ")
		p.node(n.Subquery)
		p.write(")")
	case *Scalar:
		p.write("(scalar")
		p.typ(n.Typ)
		p.write(" ")
		p.node(n.Select)
		p.write(")")
	case *Exists:
		p.write("(exists ")
		p.node(n.Select)
		p.write(")")
	case *In:
		p.write("(in ")
		p.node(n.Expr)
		if n.Select != nil {
			p.write(" ")
			p.node(n.Select)
		}
		p.list(n.Values)
		p.write(")")
	case *IsNull:
		p.write("(is-null ")
		p.node(n.Expr)
		p.write(")")
	case *Function:
		p.write("(fn ", n.Name)
		p.typ(n.Typ)
		p.list(n.Args)
		p.write(")")
	case *Placeholder:
		p.write("?", strconv.Itoa(n.Index))
		p.typ(n.Typ)
	case *Tuple:
		p.write("(tuple")
		p.list(n.Items)
		p.write(")")
	case *Entity:
		p.write("(entity")
		p.typ(n.Typ)
		p.fields(n.Fields, n.Args)
		p.write(")")
	case *Collection:
		p.write("(collection")
		p.typ(n.Typ)
		p.write(" ")
		p.node(n.Projector)
		p.write(")")
	case *Insert:
		p.write("(insert ")
		p.node(n.Table)
		p.assignments(n.Assignments)
		p.write(")")
	case *Update:
		p.write("(update ")
		p.node(n.Table)
		p.assignments(n.Assignments)
		if n.Where != nil {
			p.write(" (where ")
			p.node(n.Where)
			p.write(")")
		}
		p.write(")")
	case *Delete:
		p.write("(delete ")
		p.node(n.Table)
		if n.Where != nil {
			p.write(" (where ")
			p.node(n.Where)
			p.write(")")
		}
		p.write(")")
	case *Command:
		p.write("(command ", strconv.Quote(n.SQL))
		p.list(n.Args)
		p.write(")")
	default:
		p.write(fmt.Sprintf("(unknown %T)", n))
	}
}

func (p *printer) assignments(as []Assignment) {
	for _, a := range as {
		p.write(" (set ", a.Column)
		if a.Computed {
			p.write(" computed")
		}
		p.write(" ")
		p.node(a.Expr)
		p.write(")")
	}
}

func (p *printer) selectNode(s *Select) {
	p.write("(select ", string(s.Alias))
	if s.Distinct {
		p.write(" distinct")
	}
	p.write(" (columns")
	for _, c := range s.Columns {
		p.write(" (", c.Name, " ")
		p.node(c.Expr)
		p.write(")")
	}
	p.write(")")
	if s.From != nil {
		p.write(" (from ")
		p.node(s.From)
		p.write(")")
	}
	if s.Where != nil {
		p.write(" (where ")
		p.node(s.Where)
		p.write(")")
	}
	if len(s.GroupBy) > 0 {
		p.write(" (group-by")
		p.list(s.GroupBy)
		p.write(")")
	}
	if len(s.OrderBy) > 0 {
		p.write(" (order-by")
		for _, o := range s.OrderBy {
			if o.Descending {
				p.write(" (desc ")
			} else {
				p.write(" (asc ")
			}
			p.node(o.Expr)
			p.write(")")
		}
		p.write(")")
	}
	if s.Skip != nil {
		p.write(" (skip ")
		p.node(s.Skip)
		p.write(")")
	}
	if s.Take != nil {
		p.write(" (take ")
		p.node(s.Take)
		p.write(")")
	}
	if s.ForUpdate {
		p.write(" for-update")
	}
	p.write(")")
}
