package ast

import (
	"reflect"
)

// Assignment sets one column of a written row. Computed columns are
// produced by the database.
type Assignment struct {
	Column   string
	Expr     Node
	Computed bool
}

func assignmentExprs(as []Assignment) []Node {
	out := make([]Node, len(as))
	for i, a := range as {
		out[i] = a.Expr
	}
	return out
}

func withAssignmentExprs(as []Assignment, ch []Node) []Assignment {
	out := make([]Assignment, len(as))
	for i, a := range as {
		out[i] = Assignment{Column: a.Column, Expr: ch[i], Computed: a.Computed}
	}
	return out
}

// Insert writes one row into Table.
type Insert struct {
	Table       *Table
	Assignments []Assignment
}

func (i *Insert) Kind() Kind         { return KindInsert }
func (i *Insert) Type() reflect.Type { return Int64Type }
func (i *Insert) Children() []Node   { return assignmentExprs(i.Assignments) }
func (i *Insert) String() string     { return Format(i) }

func (i *Insert) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(i, ch, len(i.Assignments)); err != nil {
		return nil, err
	}
	return &Insert{Table: i.Table, Assignments: withAssignmentExprs(i.Assignments, ch)}, nil
}

// Update sets columns of the rows of Table matching Where.
type Update struct {
	Table       *Table
	Where       Node
	Assignments []Assignment
}

func (u *Update) Kind() Kind         { return KindUpdate }
func (u *Update) Type() reflect.Type { return Int64Type }
func (u *Update) String() string     { return Format(u) }

func (u *Update) Children() []Node {
	return append([]Node{u.Where}, assignmentExprs(u.Assignments)...)
}

func (u *Update) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(u, ch, 1+len(u.Assignments)); err != nil {
		return nil, err
	}
	return &Update{Table: u.Table, Where: ch[0], Assignments: withAssignmentExprs(u.Assignments, ch[1:])}, nil
}

// Delete removes the rows of Table matching Where.
type Delete struct {
	Table *Table
	Where Node
}

func (d *Delete) Kind() Kind         { return KindDelete }
func (d *Delete) Type() reflect.Type { return Int64Type }
func (d *Delete) Children() []Node   { return []Node{d.Where} }
func (d *Delete) String() string     { return Format(d) }

func (d *Delete) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(d, ch, 1); err != nil {
		return nil, err
	}
	return &Delete{Table: d.Table, Where: ch[0]}, nil
}

// Command is raw statement text with positional arguments, used for DDL
// and other statements the binder does not model.
type Command struct {
	SQL  string
	Args []Node
}

func (c *Command) Kind() Kind         { return KindCommand }
func (c *Command) Type() reflect.Type { return Int64Type }
func (c *Command) Children() []Node   { return c.Args }
func (c *Command) String() string     { return Format(c) }

func (c *Command) WithChildren(ch ...Node) (Node, error) {
	if err := checkLen(c, ch, len(c.Args)); err != nil {
		return nil, err
	}
	return &Command{SQL: c.SQL, Args: ch}, nil
}

// IsStatement reports whether n is a write statement rather than a query.
func IsStatement(n Node) bool {
	switch n.Kind() {
	case KindInsert, KindUpdate, KindDelete, KindCommand:
		return true
	}
	return false
}
