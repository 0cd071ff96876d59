package ast

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID    int64
	Total float64
}

var orderPtr = reflect.TypeOf(&order{})

func orderSelect(alias Alias, limit Node) *Select {
	t := &Table{Alias: "t0", Name: "orders", Elem: orderPtr}
	return &Select{
		Alias: alias,
		From:  t,
		Columns: []ColumnDecl{
			{Name: "id", Expr: &Column{Alias: "t0", Name: "id", Typ: Int64Type}},
			{Name: "total", Expr: &Column{Alias: "t0", Name: "total", Typ: Float64Type}},
		},
		Where: NewBinary(OpGt,
			&Column{Alias: "t0", Name: "total", Typ: Float64Type},
			&Placeholder{Index: 0, Typ: Float64Type}),
		OrderBy: []Ordering{{Expr: &Column{Alias: "t0", Name: "id", Typ: Int64Type}, Descending: true}},
		Take:    limit,
	}
}

func TestFormatAndHashAreStructural(t *testing.T) {
	a := orderSelect("t1", NewLiteral(10))
	b := orderSelect("t1", NewLiteral(10))
	c := orderSelect("t1", NewLiteral(20))

	assert.Equal(t, Format(a), Format(b))
	assert.Equal(t, Hash(a), Hash(b))
	assert.Equal(t, Shape(a), Format(a))
	assert.NotEqual(t, Hash(a), Hash(c))
	assert.Contains(t, Format(a), `orders`)
}

func TestSelectWithChildrenRoundTrip(t *testing.T) {
	s := orderSelect("t1", nil)
	ch := s.Children()
	require.Len(t, ch, 4+2+1)

	n, err := s.WithChildren(ch...)
	require.NoError(t, err)
	assert.NotSame(t, s, n)
	assert.Equal(t, Format(s), Format(n))

	_, err = s.WithChildren(ch[:3]...)
	assert.True(t, ErrInvalidChildren.Is(err))
}

func TestAliases(t *testing.T) {
	s := orderSelect("t4", nil)

	assert.Equal(t, map[Alias]bool{"t0": true, "t4": true}, DeclaredAliases(s))
	assert.Equal(t, 5, MaxAlias(s))
	assert.Equal(t, 1, MaxPlaceholder(s))
	assert.True(t, References(s.Where, map[Alias]bool{"t0": true}))
	assert.False(t, References(s.Where, map[Alias]bool{"t4": true}))

	g := NewAliasGenerator(MaxAlias(s))
	assert.Equal(t, Alias("t5"), g.Next())
	assert.Equal(t, Alias("t6"), g.Next())
}

func TestInspectSkipsChildren(t *testing.T) {
	s := orderSelect("t1", nil)
	var kinds []Kind
	Inspect(s, func(n Node) bool {
		kinds = append(kinds, n.Kind())
		return n.Kind() != KindBinary
	})
	assert.Contains(t, kinds, KindBinary)
	assert.NotContains(t, kinds, KindPlaceholder)
}

func TestKeyExprs(t *testing.T) {
	id := &Column{Alias: "t0", Name: "id", Typ: Int64Type}
	total := &Column{Alias: "t0", Name: "total", Typ: Float64Type}
	e := &Entity{Typ: orderPtr, Fields: []string{"ID", "Total"}, Args: []Node{id, total}, Keys: []string{"ID"}}

	assert.Equal(t, []Node{id}, KeyExprs(e))

	// Without a bound key every argument identifies the object.
	e.Keys = nil
	assert.Equal(t, []Node{id, total}, KeyExprs(e))

	nested := &Tuple{Items: []Node{id, &Collection{Typ: reflect.SliceOf(orderPtr), Projector: e}, NewLiteral(1)}}
	assert.Equal(t, []Node{id}, KeyExprs(nested))
	assert.True(t, HasCollections(nested))
	assert.False(t, HasCollections(e))
}

func TestEntityWithArg(t *testing.T) {
	id := &Column{Alias: "t0", Name: "id", Typ: Int64Type}
	e := &Entity{Typ: orderPtr, Fields: []string{"ID"}, Args: []Node{id}, Keys: []string{"ID"}}

	total := &Column{Alias: "t0", Name: "total", Typ: Float64Type}
	e2 := e.WithArg("Total", total)
	assert.Len(t, e.Fields, 1)
	a, ok := e2.Arg("Total")
	require.True(t, ok)
	assert.Same(t, total, a)

	e3 := e2.WithArg("ID", NewLiteral(int64(1)))
	a, _ = e3.Arg("ID")
	assert.True(t, IsLiteral(a))
	a, _ = e2.Arg("ID")
	assert.Same(t, id, a)
}

func TestTypes(t *testing.T) {
	assert.True(t, IsSequence(reflect.TypeOf([]int{})))
	assert.False(t, IsSequence(reflect.TypeOf([]byte{})))
	assert.Equal(t, Int64Type, ElemType(reflect.TypeOf([]int64{})))
	assert.Equal(t, Int64Type, ElemType(Int64Type))
	assert.True(t, IsScalar(StringType))
	assert.False(t, IsScalar(orderPtr))

	g := GroupType(StringType, orderPtr)
	assert.True(t, IsGroupType(g))
	assert.False(t, IsGroupType(orderPtr))

	o := OwnerType(reflect.SliceOf(orderPtr), Int64Type, StringType)
	assert.True(t, IsOwnerType(o))
	assert.Equal(t, []string{"Items", "Key0", "Key1"}, OwnerFields(2))
	assert.Equal(t, StringType, o.Field(2).Type)
	assert.False(t, IsOwnerType(g))
	assert.False(t, IsGroupType(o))
}
