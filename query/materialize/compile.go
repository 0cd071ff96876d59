package materialize

import (
	"fmt"
	"reflect"

	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/evaluator"
	"github.com/satishbabariya/objql/query/mapping"
)

type readFunc func(s *rowState) (reflect.Value, error)

// rowState is the state of reading one row. owner and path locate the
// struct field the value being read will be stored in, so collections
// found inside by-value structs can be attached later.
type rowState struct {
	env   *Env
	row   *Row
	owner reflect.Value
	path  []int
}

func (s *rowState) at(owner reflect.Value, path []int) *rowState {
	return &rowState{env: s.env, row: s.row, owner: owner, path: path}
}

type scope struct {
	alias    ast.Alias
	ordinals map[string]int
}

type builder struct {
	readers ReaderProvider
	model   *mapping.Model
	// scopes are innermost first
	scopes []scope
	links  int
}

func (b *builder) push(sel *ast.Select) {
	sc := scope{alias: sel.Alias, ordinals: make(map[string]int, len(sel.Columns))}
	for i, c := range sel.Columns {
		sc.ordinals[c.Name] = i
	}
	b.scopes = append([]scope{sc}, b.scopes...)
}

func (b *builder) ordinal(c *ast.Column) (int, error) {
	for _, sc := range b.scopes {
		if sc.alias != c.Alias {
			continue
		}
		if i, ok := sc.ordinals[c.Name]; ok {
			return i, nil
		}
	}
	return 0, ErrUnresolvedColumn.New(c.Alias, c.Name)
}

func (b *builder) compileAll(nodes []ast.Node) ([]readFunc, error) {
	out := make([]readFunc, len(nodes))
	for i, n := range nodes {
		r, err := b.compile(n)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// compileKeys compiles row-group key expressions. Columns are read as raw
// driver values so a SQL NULL stays distinguishable from a zero value.
func (b *builder) compileKeys(nodes []ast.Node) ([]readFunc, error) {
	out := make([]readFunc, len(nodes))
	for i, n := range nodes {
		c, ok := n.(*ast.Column)
		if !ok {
			r, err := b.compile(n)
			if err != nil {
				return nil, err
			}
			out[i] = r
			continue
		}
		ord, err := b.ordinal(c)
		if err != nil {
			return nil, err
		}
		name := string(c.Alias) + "." + c.Name
		out[i] = func(s *rowState) (reflect.Value, error) {
			raw, err := rawValue(s.env, ord, name)
			if err != nil || raw == nil {
				return reflect.Value{}, err
			}
			if bs, ok := raw.([]byte); ok {
				raw = string(bs)
			}
			return reflect.ValueOf(raw), nil
		}
	}
	return out, nil
}

func rawValue(env *Env, ord int, name string) (any, error) {
	if ord >= len(env.Values) {
		return nil, ErrShortRow.New(len(env.Values), name, ord)
	}
	return env.Values[ord], nil
}

func (b *builder) compile(n ast.Node) (readFunc, error) {
	switch n := n.(type) {
	case *ast.Column:
		return b.column(n)
	case *ast.Constant:
		v := reflect.ValueOf(n.Value)
		if n.Value == nil {
			v = reflect.Zero(n.Typ)
		}
		return func(*rowState) (reflect.Value, error) { return v, nil }, nil
	case *ast.Placeholder:
		return func(s *rowState) (reflect.Value, error) {
			if n.Index >= len(s.env.Params) {
				return reflect.Zero(n.Typ), nil
			}
			return evaluator.ConvertValue(reflect.ValueOf(s.env.Params[n.Index]), n.Typ)
		}, nil
	case *ast.Version:
		return func(s *rowState) (reflect.Value, error) {
			return reflect.ValueOf(s.env.Version), nil
		}, nil
	case *ast.Entity:
		return b.entity(n)
	case *ast.New:
		return b.newStruct(n)
	case *ast.Tuple:
		items, err := b.compileAll(n.Items)
		if err != nil {
			return nil, err
		}
		return func(s *rowState) (reflect.Value, error) {
			t := ast.TupleValue{Items: make([]any, len(items))}
			for i, item := range items {
				v, err := item(s)
				if err != nil {
					return reflect.Value{}, err
				}
				if v.IsValid() {
					t.Items[i] = v.Interface()
				}
			}
			return reflect.ValueOf(t), nil
		}, nil
	case *ast.Conditional:
		return b.conditional(n)
	case *ast.Unary, *ast.Binary, *ast.Member, *ast.Call:
		return b.interpret(n)
	case *ast.Collection:
		return nil, ErrUnsupportedProjector.New("collection outside of an object")
	}
	return nil, ErrUnsupportedProjector.New(n.Kind())
}

func (b *builder) column(c *ast.Column) (readFunc, error) {
	ord, err := b.ordinal(c)
	if err != nil {
		return nil, err
	}
	typ := c.Typ
	if typ == nil {
		typ = ast.AnyType()
	}
	read := b.readers.Reader(typ)
	name := string(c.Alias) + "." + c.Name
	return func(s *rowState) (reflect.Value, error) {
		raw, err := rawValue(s.env, ord, name)
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := read(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("read %s: %w", name, err)
		}
		return v, nil
	}, nil
}

func (b *builder) conditional(c *ast.Conditional) (readFunc, error) {
	if ast.HasCollections(c) {
		return nil, ErrUnsupportedProjector.New("collection under a conditional")
	}
	test, err := b.compile(c.Test)
	if err != nil {
		return nil, err
	}
	then, err := b.compile(c.Then)
	if err != nil {
		return nil, err
	}
	els, err := b.compile(c.Else)
	if err != nil {
		return nil, err
	}
	return func(s *rowState) (reflect.Value, error) {
		t, err := test(s)
		if err != nil {
			return reflect.Value{}, err
		}
		if t.IsValid() && t.Kind() == reflect.Bool && t.Bool() {
			return then(s)
		}
		return els(s)
	}, nil
}

// interpret computes client side operators over values read from the row
// by substituting them as constants.
func (b *builder) interpret(n ast.Node) (readFunc, error) {
	if ast.HasCollections(n) {
		return nil, ErrUnsupportedProjector.New(fmt.Sprintf("collection under %s", n.Kind()))
	}
	children := n.Children()
	reads := make([]readFunc, len(children))
	for i, c := range children {
		if c == nil {
			continue
		}
		r, err := b.compile(c)
		if err != nil {
			return nil, err
		}
		reads[i] = r
	}
	return func(s *rowState) (reflect.Value, error) {
		consts := make([]ast.Node, len(children))
		for i, r := range reads {
			if r == nil {
				continue
			}
			v, err := r(s)
			if err != nil {
				return reflect.Value{}, err
			}
			c := &ast.Constant{Typ: children[i].Type()}
			if v.IsValid() {
				c.Value = v.Interface()
			}
			consts[i] = c
		}
		bound, err := n.WithChildren(consts...)
		if err != nil {
			return reflect.Value{}, err
		}
		out, err := evaluator.Interpret(bound, nil)
		if err != nil {
			return reflect.Value{}, err
		}
		return evaluator.ConvertValue(reflect.ValueOf(out), n.Type())
	}, nil
}

type elemFunc func(s *rowState) (*Row, error)

// collection compiles the reading of one element of a joined collection.
// An element whose key reads as NULL comes from an outer join without a
// match and is skipped.
func (b *builder) collection(c *ast.Collection) (elemFunc, error) {
	read, err := b.compile(c.Projector)
	if err != nil {
		return nil, err
	}
	keys, err := b.compileKeys(ast.KeyExprs(c.Projector))
	if err != nil {
		return nil, err
	}
	return func(s *rowState) (*Row, error) {
		child := &rowState{env: s.env, row: &Row{}}
		key, err := readKey(keys, child)
		if err != nil {
			return nil, err
		}
		if len(key) > 0 && allNil(key) {
			return nil, nil
		}
		v, err := read(child)
		if err != nil {
			return nil, err
		}
		if !v.IsValid() || v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, nil
		}
		child.row.Key = key
		child.row.Value = v
		return child.row, nil
	}, nil
}

type fieldRead struct {
	prop *mapping.Property
	read readFunc
}

type collectionRead struct {
	id   int
	prop *mapping.Property
	elem elemFunc
}

// entity compiles the construction of a mapped object: fresh instance,
// loaded fields, end of initialization, object cache and commit filter.
// A NULL primary key column yields the commit of nil.
func (b *builder) entity(e *ast.Entity) (readFunc, error) {
	desc, err := b.model.Entity(e.Typ)
	if err != nil {
		return nil, err
	}
	var keyOrds []int
	for _, k := range e.Keys {
		if c, ok := mustArg(e, k).(*ast.Column); ok {
			ord, err := b.ordinal(c)
			if err != nil {
				return nil, err
			}
			keyOrds = append(keyOrds, ord)
		}
	}
	var fields []fieldRead
	var colls []collectionRead
	for i, name := range e.Fields {
		prop, err := desc.Property(name)
		if err != nil {
			return nil, err
		}
		if c, ok := e.Args[i].(*ast.Collection); ok {
			elem, err := b.collection(c)
			if err != nil {
				return nil, err
			}
			b.links++
			colls = append(colls, collectionRead{id: b.links, prop: prop, elem: elem})
			continue
		}
		read, err := b.compile(e.Args[i])
		if err != nil {
			return nil, err
		}
		fields = append(fields, fieldRead{prop: prop, read: read})
	}
	typ := e.Typ

	return func(s *rowState) (reflect.Value, error) {
		for _, ord := range keyOrds {
			if ord < len(s.env.Values) && s.env.Values[ord] == nil {
				return committed(s.env.commit(nil), typ)
			}
		}
		v := desc.New()
		for _, f := range fields {
			val, err := f.read(s.at(v, f.prop.Index))
			if err != nil {
				return reflect.Value{}, err
			}
			if val.IsValid() && val.Type() != f.prop.Type {
				if val, err = evaluator.ConvertValue(val, f.prop.Type); err != nil {
					return reflect.Value{}, fmt.Errorf("%s.%s: %w", desc.Name(), f.prop.Name, err)
				}
			}
			f.prop.Assign(v, val)
		}
		desc.Finish(v)

		obj := v.Interface()
		if s.env.Cache != nil {
			obj = s.env.Cache.Submit(obj)
		}
		out, err := committed(s.env.commit(obj), typ)
		if err != nil || out.IsNil() {
			return out, err
		}
		for _, c := range colls {
			link := &Link{id: c.id, owner: out, attach: propertyAttacher{c.prop}}
			row, err := c.elem(s)
			if err != nil {
				return reflect.Value{}, err
			}
			if row != nil {
				link.Rows = append(link.Rows, row)
			}
			s.row.Links = append(s.row.Links, link)
		}
		return out, nil
	}, nil
}

func mustArg(e *ast.Entity, field string) ast.Node {
	a, _ := e.Arg(field)
	return a
}

func committed(obj any, typ reflect.Type) (reflect.Value, error) {
	if obj == nil {
		return reflect.Zero(typ), nil
	}
	return evaluator.ConvertValue(reflect.ValueOf(obj), typ)
}

type newField struct {
	index []int
	typ   reflect.Type
	read  readFunc
}

type newCollection struct {
	id    int
	index []int
	elem  elemFunc
}

// newStruct compiles a plain struct construction. Collections of a
// by-value struct are attached through the path from the nearest owner.
func (b *builder) newStruct(n *ast.New) (readFunc, error) {
	st := n.Typ
	ptr := st.Kind() == reflect.Pointer
	if ptr {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, ErrUnsupportedProjector.New(fmt.Sprintf("construction of %s", n.Typ))
	}
	var fields []newField
	var colls []newCollection
	for i, name := range n.Fields {
		sf, ok := st.FieldByName(name)
		if !ok {
			return nil, ErrUnsupportedProjector.New(fmt.Sprintf("field %s of %s", name, st))
		}
		if c, ok := n.Args[i].(*ast.Collection); ok {
			elem, err := b.collection(c)
			if err != nil {
				return nil, err
			}
			b.links++
			colls = append(colls, newCollection{id: b.links, index: sf.Index, elem: elem})
			continue
		}
		read, err := b.compile(n.Args[i])
		if err != nil {
			return nil, err
		}
		fields = append(fields, newField{index: sf.Index, typ: sf.Type, read: read})
	}

	return func(s *rowState) (reflect.Value, error) {
		v := reflect.New(st).Elem()
		out := v
		owner, path := s.owner, s.path
		if ptr {
			out = v.Addr()
			owner, path = out, nil
		} else if !owner.IsValid() {
			owner, path = v, nil
		}
		for _, f := range fields {
			val, err := f.read(s.at(owner, join(path, f.index)))
			if err != nil {
				return reflect.Value{}, err
			}
			if !val.IsValid() {
				continue
			}
			if val.Type() != f.typ {
				if val, err = evaluator.ConvertValue(val, f.typ); err != nil {
					return reflect.Value{}, err
				}
			}
			v.FieldByIndex(f.index).Set(val)
		}
		for _, c := range colls {
			link := &Link{id: c.id, owner: owner, attach: fieldAttacher{join(path, c.index)}}
			row, err := c.elem(s)
			if err != nil {
				return reflect.Value{}, err
			}
			if row != nil {
				link.Rows = append(link.Rows, row)
			}
			s.row.Links = append(s.row.Links, link)
		}
		return out, nil
	}, nil
}

func join(path, index []int) []int {
	out := make([]int, 0, len(path)+len(index))
	return append(append(out, path...), index...)
}

// propertyAttacher fills a collection property of an entity.
type propertyAttacher struct {
	prop *mapping.Property
}

func (a propertyAttacher) reset(owner reflect.Value) {
	if _, ok := owner.Interface().(mapping.CollectionLoader); ok {
		return
	}
	f := a.prop.Field(owner)
	f.Set(reflect.MakeSlice(f.Type(), 0, 0))
}

func (a propertyAttacher) add(owner, item reflect.Value, version int64) {
	a.prop.AddLoaded(owner, item, version)
}

// fieldAttacher fills a slice field of a plain struct.
type fieldAttacher struct {
	path []int
}

func (a fieldAttacher) field(owner reflect.Value) reflect.Value {
	if owner.Kind() == reflect.Pointer {
		owner = owner.Elem()
	}
	return owner.FieldByIndex(a.path)
}

func (a fieldAttacher) reset(owner reflect.Value) {
	f := a.field(owner)
	f.Set(reflect.MakeSlice(f.Type(), 0, 0))
}

func (a fieldAttacher) add(owner, item reflect.Value, _ int64) {
	f := a.field(owner)
	f.Set(reflect.Append(f, item))
}
