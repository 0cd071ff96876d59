package mapping_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/objql/internal/demo"
	"github.com/satishbabariya/objql/query/mapping"
)

var (
	orderType    = reflect.TypeOf(&demo.Order{})
	customerType = reflect.TypeOf(&demo.Customer{})
)

func names(props []*mapping.Property) []string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.Name
	}
	return out
}

func columns(cols []mapping.ColumnInfo) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Owner.Table + "." + c.Column
	}
	return out
}

func TestModelDescribesEntities(t *testing.T) {
	m := demo.Model()

	var tables []string
	for _, e := range m.Entities() {
		tables = append(tables, e.Table)
	}
	assert.Equal(t, []string{"customers", "lines", "orders"}, tables)

	e, err := m.Entity(reflect.TypeOf(demo.Order{}))
	require.NoError(t, err)
	same, err := m.Entity(orderType)
	require.NoError(t, err)
	assert.Same(t, e, same)

	assert.Equal(t, orderType, e.Type)
	assert.Equal(t, "Order", e.Name())
	assert.Equal(t, []string{"ID"}, e.KeyNames())
	assert.Equal(t, []string{"ID", "CustomerID", "Total", "Status"}, names(e.Persisted()))

	p, err := e.Property("CustomerID")
	require.NoError(t, err)
	assert.Equal(t, "customer_id", p.Column)
	assert.True(t, p.IsPersisted())

	ref, err := e.Property("Customer")
	require.NoError(t, err)
	require.NotNil(t, ref.Relation)
	assert.Equal(t, mapping.RelationReference, ref.Relation.Kind)
	assert.Equal(t, []string{"CustomerID"}, ref.Relation.Keys)
	target, err := e.Target(ref)
	require.NoError(t, err)
	assert.Equal(t, "customers", target.Table)

	lines, err := e.Property("Lines")
	require.NoError(t, err)
	assert.Equal(t, mapping.RelationCollection, lines.Relation.Kind)
	assert.Equal(t, []string{"OrderID"}, lines.Relation.Keys)

	_, err = e.Property("Nope")
	assert.True(t, mapping.ErrMissingMapping.Is(err))
	_, err = e.Target(p)
	assert.True(t, mapping.ErrInvalidMapping.Is(err))

	assert.True(t, m.IsEntity(customerType))
	assert.False(t, m.IsEntity(reflect.TypeOf(0)))
	assert.True(t, m.IsEnum(reflect.TypeOf(demo.StatusOpen)))
	assert.False(t, m.IsEnum(reflect.TypeOf("")))
}

type LineItem struct {
	ID       int64 `orm:",pk"`
	HTTPCode int
	Meta     map[string]string
	Skipped  string `orm:"-"`
}

type Renamed struct {
	ID int64 `orm:"id,pk"`
}

func (Renamed) TableName() string { return "legacy_renamed" }

func TestModelNamingDefaults(t *testing.T) {
	m, err := mapping.NewModel(LineItem{}, &Renamed{})
	require.NoError(t, err)

	e, err := m.Entity(reflect.TypeOf(LineItem{}))
	require.NoError(t, err)
	assert.Equal(t, "line_items", e.Table)
	assert.Equal(t, []string{"ID", "HTTPCode"}, names(e.Properties))
	code, err := e.Property("HTTPCode")
	require.NoError(t, err)
	assert.Equal(t, "http_code", code.Column)

	r, err := m.Entity(reflect.TypeOf(Renamed{}))
	require.NoError(t, err)
	assert.Equal(t, "legacy_renamed", r.Table)
}

type untagged struct{ ID int64 }

type badOption struct {
	ID int64 `orm:"id,pk,serial"`
}

type badRef struct {
	ID       int64          `orm:"id,pk"`
	Customer *demo.Customer `orm:",ref=CustomerID"`
}

type badMany struct {
	ID    int64       `orm:"id,pk"`
	Lines []demo.Line `orm:",many=OrderID"`
}

func TestModelErrors(t *testing.T) {
	tests := []struct {
		name   string
		sample any
		kind   interface{ Is(error) bool }
	}{
		{"untagged", untagged{}, mapping.ErrNotMapped},
		{"not a struct", 3, mapping.ErrNotMapped},
		{"unknown option", badOption{}, mapping.ErrInvalidMapping},
		{"unknown foreign key", badRef{}, mapping.ErrInvalidMapping},
		{"many of values", badMany{}, mapping.ErrInvalidMapping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mapping.NewModel(tt.sample)
			require.Error(t, err)
			assert.True(t, tt.kind.Is(err), err.Error())
		})
	}

	assert.Panics(t, func() { mapping.MustNewModel(untagged{}) })

	_, err := demo.Model().Entity(nil)
	assert.True(t, mapping.ErrNotMapped.Is(err))
}

func TestResolveColumn(t *testing.T) {
	e, err := demo.Model().Entity(orderType)
	require.NoError(t, err)

	c, err := e.ResolveColumn("Total")
	require.NoError(t, err)
	assert.Equal(t, "total", c.Column)
	assert.Equal(t, 0, c.Depth)

	// The key of a reference resolves to the foreign key on the owner.
	c, err = e.ResolveColumn("Customer", "ID")
	require.NoError(t, err)
	assert.Equal(t, "orders", c.Owner.Table)
	assert.Equal(t, "customer_id", c.Column)
	assert.Equal(t, []string{"Customer", "ID"}, c.Path)
	assert.Equal(t, 0, c.Depth)

	c, err = e.ResolveColumn("Customer", "Name")
	require.NoError(t, err)
	assert.Equal(t, "customers", c.Owner.Table)
	assert.Equal(t, "name", c.Column)
	assert.Equal(t, []string{"Customer", "Name"}, c.Path)
	assert.Equal(t, 1, c.Depth)

	for _, path := range [][]string{{}, {"Customer"}, {"Lines", "ID"}, {"Total", "X"}, {"Missing"}} {
		_, err := e.ResolveColumn(path...)
		assert.True(t, mapping.ErrMissingMapping.Is(err), "%v", path)
	}
}

func TestColumns(t *testing.T) {
	e, err := demo.Model().Entity(orderType)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"orders.id", "orders.customer_id", "orders.total", "orders.status"},
		columns(e.Columns(mapping.NoFollow, mapping.AllPersisted)))

	follow := func(depth int, p *mapping.Property) bool { return depth == 0 }
	keysOnly := func(depth int, p *mapping.Property) bool { return depth == 0 || p.Key }
	assert.Equal(t,
		[]string{"orders.id", "orders.customer_id", "orders.total", "orders.status", "customers.id"},
		columns(e.Columns(follow, keysOnly)))

	all := e.Columns(follow, nil)
	require.Len(t, all, 7)
	assert.Equal(t, []string{"Customer", "City"}, all[6].Path)
	assert.Equal(t, 1, all[6].Depth)
}

func TestInstanceLifecycle(t *testing.T) {
	m := demo.Model()
	orders, err := m.Entity(orderType)
	require.NoError(t, err)
	lines, err := m.Entity(reflect.TypeOf(&demo.Line{}))
	require.NoError(t, err)

	v := orders.New()
	for name, value := range map[string]any{"ID": int64(10), "Total": 250.0, "Status": demo.StatusOpen} {
		p, err := orders.Property(name)
		require.NoError(t, err)
		p.Assign(v, reflect.ValueOf(value))
	}
	o := v.Interface().(*demo.Order)
	assert.True(t, o.Modified(), "Total is assigned through SetTotal")
	assert.Equal(t, 250.0, o.Total)

	orders.Finish(v)
	assert.False(t, o.Modified())

	p, _ := orders.Property("CustomerID")
	p.Assign(v, reflect.Value{})
	assert.Zero(t, o.CustomerID)

	coll, _ := orders.Property("Lines")
	item := lines.New()
	coll.AddLoaded(v, item, 1)
	coll.AddLoaded(v, lines.New(), 1)
	assert.Len(t, o.Lines, 2)
	assert.Same(t, item.Interface(), o.Lines[0])

	assert.Equal(t, []any{int64(10)}, orders.KeyOf(o))
	assert.Nil(t, orders.KeyOf((*demo.Order)(nil)))
	assert.Nil(t, orders.KeyOf(demo.Order{}))
}
