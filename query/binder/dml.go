package binder

import (
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/mapping"
)

// target resolves the table a write applies to and the predicate tying its
// rows to the rows of the bound sequence.
func (b *binder) target(c *ast.Call, src ast.Node) (*mapping.Entity, *ast.Table, ast.Node, error) {
	if !b.isRoot(c) {
		return nil, nil, nil, ErrUnsupportedQuery.New(c.Method + " inside a query")
	}
	proj, err := b.bindSequence(src)
	if err != nil {
		return nil, nil, nil, err
	}
	ent, ok := proj.Projector.(*ast.Entity)
	if !ok {
		return nil, nil, nil, ErrUnsupportedQuery.New(c.Method + " over a sequence of " + proj.Projector.Kind().String())
	}
	desc, err := b.model.Entity(ent.Typ)
	if err != nil {
		return nil, nil, nil, err
	}
	table := &ast.Table{Alias: b.aliases.Next(), Name: desc.Table, Elem: desc.Type}
	var preds []ast.Node
	for _, k := range desc.Keys {
		arg, ok := ent.Arg(k.Name)
		if !ok {
			return nil, nil, nil, mapping.ErrMissingMapping.New(desc.Name(), k.Name)
		}
		preds = append(preds, ast.NewBinary(ast.OpEq, arg, &ast.Column{Alias: table.Alias, Name: k.Column, Typ: k.Type}))
	}
	if len(preds) == 0 {
		return nil, nil, nil, ErrUnsupportedQuery.New(c.Method + " of " + desc.Name() + ", which has no primary key")
	}
	exists := &ast.Exists{Select: &ast.Select{Alias: b.aliases.Next(), From: proj.Select, Where: ast.And(preds...)}}
	return desc, table, exists, nil
}

func (b *binder) bindDelete(c *ast.Call, src ast.Node) (ast.Node, error) {
	_, table, where, err := b.target(c, src)
	if err != nil {
		return nil, err
	}
	return &ast.Delete{Table: table, Where: where}, nil
}

func (b *binder) bindUpdate(c *ast.Call, src ast.Node, set *ast.Lambda) (ast.Node, error) {
	if err := requireLambda(set, "Update"); err != nil {
		return nil, err
	}
	desc, table, where, err := b.target(c, src)
	if err != nil {
		return nil, err
	}
	// The new values are computed from the target row itself.
	sc := b.pushScope(table.Alias)
	body, err := b.bindLambda(set, frameSelector, b.entityProjector(desc, table.Alias))
	b.popScope()
	if err != nil {
		return nil, err
	}
	if len(sc.joins) > 0 {
		return nil, ErrUnsupportedQuery.New("Update values reading related objects")
	}
	assigns, err := b.assignments(desc, body)
	if err != nil {
		return nil, err
	}
	return &ast.Update{Table: table, Where: where, Assignments: assigns}, nil
}

func (b *binder) bindInsert(c *ast.Call, src, obj ast.Node) (ast.Node, error) {
	if !b.isRoot(c) {
		return nil, ErrUnsupportedQuery.New("Insert inside a query")
	}
	s, ok := src.(*ast.Source)
	if !ok {
		return nil, ErrUnsupportedQuery.New("Insert into a filtered sequence")
	}
	desc, err := b.model.Entity(s.Elem)
	if err != nil {
		return nil, err
	}
	value, err := b.bind(obj)
	if err != nil {
		return nil, err
	}
	table := &ast.Table{Alias: b.aliases.Next(), Name: desc.Table, Elem: desc.Type}
	var assigns []ast.Assignment
	for _, p := range desc.Persisted() {
		assigns = append(assigns, ast.Assignment{
			Column:   p.Column,
			Expr:     &ast.Member{Expr: value, Name: p.Name, Typ: p.Type},
			Computed: p.Computed,
		})
	}
	return &ast.Insert{Table: table, Assignments: assigns}, nil
}
