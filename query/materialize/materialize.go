// Package materialize compiles the projector of an optimized projection
// into closures that build result values from cursor rows. Rows of one
// logical object, spread over several physical rows by joined
// collections, are recognized by their row-group key and combined.
package materialize

import (
	"reflect"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/mapping"
	"github.com/satishbabariya/objql/query/sqlgen"
)

var (
	// ErrUnsupportedProjector is returned for projector nodes that cannot
	// be built from a row.
	ErrUnsupportedProjector = errors.NewKind("cannot materialize %s")
	// ErrUnresolvedColumn is returned when a column does not belong to any
	// select in scope.
	ErrUnresolvedColumn = errors.NewKind("column %s.%s is not in scope")
	// ErrShortRow is returned when the cursor row has fewer values than the
	// select declares.
	ErrShortRow = errors.NewKind("row has %d values, column %s needs ordinal %d")
)

// ReaderProvider chooses how a column value of a given type is read.
type ReaderProvider interface {
	Reader(t reflect.Type) sqlgen.ReadFunc
}

// Env is what a plan reads one row with.
type Env struct {
	// Values are the driver values of the current row, in select column
	// order.
	Values []any
	// Version is the execution version of the running query.
	Version int64
	// Params are the placeholder values of the execution.
	Params []any
	// Commit filters every finished entity. A nil Commit keeps entities
	// as they are.
	Commit func(obj any) any
	// Cache maps loaded entities to their canonical instances.
	Cache mapping.ObjectCache
}

func (env *Env) commit(obj any) any {
	if env.Commit == nil {
		return obj
	}
	return env.Commit(obj)
}

// Row is the value read from one physical row together with the rows of
// the collections it owns.
type Row struct {
	// Key identifies the logical object the row belongs to.
	Key   []any
	Value reflect.Value
	Links []*Link
}

// Link holds the elements read for one collection of an object.
type Link struct {
	id     int
	owner  reflect.Value
	attach attacher
	Rows   []*Row
}

// attacher adds elements to a collection owned by an object.
type attacher interface {
	reset(owner reflect.Value)
	add(owner, item reflect.Value, version int64)
}

// Plan builds result values from rows.
type Plan struct {
	// Type is the type of one result value.
	Type       reflect.Type
	Aggregator ast.Aggregator

	read    readFunc
	keys    []readFunc
	grouped bool
	// owned plans read a sequence into an owner struct and yield its items.
	owned bool
	text  string
}

// Build compiles the projector of p. Columns are read through readers and
// entities are described by model.
func Build(p *ast.Projection, readers ReaderProvider, model *mapping.Model) (*Plan, error) {
	b := &builder{readers: readers, model: model}
	b.push(p.Select)
	read, err := b.compile(p.Projector)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Type:       p.Projector.Type(),
		Aggregator: p.Aggregator,
		read:       read,
		grouped:    ast.HasCollections(p.Projector),
		owned:      ast.IsOwnerType(p.Projector.Type()),
		text:       ast.Format(p.Projector),
	}
	if plan.owned {
		plan.Type = plan.Type.Field(0).Type
	}
	if plan.grouped {
		if plan.keys, err = b.compileKeys(ast.KeyExprs(p.Projector)); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// Read builds the value of the current row.
func (p *Plan) Read(env *Env) (*Row, error) {
	s := &rowState{env: env, row: &Row{}}
	v, err := p.read(s)
	if err != nil {
		return nil, err
	}
	s.row.Value = v
	if p.grouped {
		if s.row.Key, err = readKey(p.keys, s); err != nil {
			return nil, err
		}
	}
	return s.row, nil
}

// Continues reports whether cur belongs to the same logical object as
// prev.
func (p *Plan) Continues(prev, cur *Row) bool {
	return p.grouped && prev != nil && len(prev.Key) > 0 && sameKey(prev.Key, cur.Key)
}

// Combine folds the collection elements read with cur into prev.
func (p *Plan) Combine(prev, cur *Row) {
	combine(prev, cur)
}

// Finish attaches the collected elements to their owners and returns the
// value of r.
func (p *Plan) Finish(r *Row, version int64) any {
	finish(r, version)
	if !r.Value.IsValid() {
		return nil
	}
	if p.owned {
		return r.Value.Field(0).Interface()
	}
	return r.Value.Interface()
}

// Grouped reports whether physical rows may be combined.
func (p *Plan) Grouped() bool { return p.grouped }

func (p *Plan) String() string { return p.text }

func combine(prev, cur *Row) {
	for _, cl := range cur.Links {
		pl := findLink(prev.Links, cl.id)
		if pl == nil {
			prev.Links = append(prev.Links, cl)
			continue
		}
		for _, child := range cl.Rows {
			if n := len(pl.Rows); n > 0 && len(child.Key) > 0 && sameKey(pl.Rows[n-1].Key, child.Key) {
				combine(pl.Rows[n-1], child)
				continue
			}
			pl.Rows = append(pl.Rows, child)
		}
	}
}

func findLink(links []*Link, id int) *Link {
	for _, l := range links {
		if l.id == id {
			return l
		}
	}
	return nil
}

func finish(r *Row, version int64) {
	for _, l := range r.Links {
		l.attach.reset(l.owner)
		for _, child := range l.Rows {
			finish(child, version)
			l.attach.add(l.owner, child.Value, version)
		}
	}
}

func readKey(keys []readFunc, s *rowState) ([]any, error) {
	out := make([]any, len(keys))
	for i, k := range keys {
		v, err := k(s)
		if err != nil {
			return nil, err
		}
		if v.IsValid() {
			out[i] = v.Interface()
		}
	}
	return out, nil
}

func sameKey(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func allNil(key []any) bool {
	for _, k := range key {
		if k != nil {
			return false
		}
	}
	return true
}
