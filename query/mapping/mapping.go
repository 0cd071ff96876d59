// Package mapping describes how Go struct types map to tables. Mapped
// structs carry `orm` tags:
//
//	type Order struct {
//		ID         int64     `orm:"id,pk,computed"`
//		CustomerID int64     `orm:"customer_id"`
//		Customer   *Customer `orm:",ref=CustomerID"`
//		Lines      []*Line   `orm:",many=OrderID"`
//	}
//
// The first tag element is the column name (defaults to the snake cased
// field name). ref names the foreign key properties of the owner pointing at
// the target's primary key; many names the foreign key properties of the
// child pointing back at the owner. Composite keys are separated by "|".
package mapping

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrMissingMapping is returned when a property has no persisted
	// column or relationship metadata.
	ErrMissingMapping = errors.NewKind("missing mapping: %s has no property %s")
	// ErrNotMapped is returned for types that are not mapped structs.
	ErrNotMapped = errors.NewKind("type %s is not a mapped entity")
	// ErrInvalidMapping is returned for malformed tags.
	ErrInvalidMapping = errors.NewKind("invalid mapping of %s.%s: %s")
)

// TagName is the struct tag key read by the model.
const TagName = "orm"

// RelationKind tells how a property relates to another entity.
type RelationKind int

const (
	RelationNone RelationKind = iota
	RelationReference
	RelationCollection
)

// Relation describes a navigation property.
type Relation struct {
	Kind RelationKind
	// Target is the pointer type of the related entity.
	Target reflect.Type
	// Keys are the foreign key properties: on the owner for a reference,
	// on the child for a collection. They pair up with the primary key of
	// the other side.
	Keys []string
}

// Property is one mapped field.
type Property struct {
	Name     string
	Column   string
	Index    []int
	Type     reflect.Type
	Key      bool
	Computed bool
	Relation *Relation

	setter reflect.Value
}

// IsPersisted reports whether the property is stored in a column.
func (p *Property) IsPersisted() bool { return p.Relation == nil }

// Entity describes a mapped struct.
type Entity struct {
	// Type is the pointer type instances are handled as.
	Type       reflect.Type
	Struct     reflect.Type
	Table      string
	Properties []*Property
	Keys       []*Property

	model  *Model
	byName map[string]*Property
}

// Name returns the struct name.
func (e *Entity) Name() string { return e.Struct.Name() }

// Property returns the named property.
func (e *Entity) Property(name string) (*Property, error) {
	p, ok := e.byName[name]
	if !ok {
		return nil, ErrMissingMapping.New(e.Name(), name)
	}
	return p, nil
}

// Persisted returns the properties stored in columns, in field order.
func (e *Entity) Persisted() []*Property {
	out := make([]*Property, 0, len(e.Properties))
	for _, p := range e.Properties {
		if p.IsPersisted() {
			out = append(out, p)
		}
	}
	return out
}

// KeyNames returns the names of the primary key properties.
func (e *Entity) KeyNames() []string {
	out := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		out[i] = k.Name
	}
	return out
}

// Target returns the entity a navigation property points at.
func (e *Entity) Target(p *Property) (*Entity, error) {
	if p.Relation == nil {
		return nil, ErrInvalidMapping.New(e.Name(), p.Name, "not a relation")
	}
	return e.model.Entity(p.Relation.Target)
}

// Model is a registry of mapped entities and enum types.
type Model struct {
	mu       sync.RWMutex
	entities map[reflect.Type]*Entity
	enums    map[reflect.Type]bool
}

// NewModel returns a model with the given entities registered. Samples may
// be values or pointers of the mapped structs.
func NewModel(samples ...any) (*Model, error) {
	m := &Model{
		entities: make(map[reflect.Type]*Entity),
		enums:    make(map[reflect.Type]bool),
	}
	for _, s := range samples {
		if _, err := m.Entity(reflect.TypeOf(s)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNewModel is like NewModel but panics on error.
func MustNewModel(samples ...any) *Model {
	m, err := NewModel(samples...)
	if err != nil {
		panic(err)
	}
	return m
}

// RegisterEnum marks the dynamic types of the samples as enums. Enum
// conversions are folded at compile time.
func (m *Model) RegisterEnum(samples ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		m.enums[reflect.TypeOf(s)] = true
	}
}

// IsEnum reports whether t was registered as an enum.
func (m *Model) IsEnum(t reflect.Type) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enums[t]
}

// IsEntity reports whether t is a mapped struct or a pointer to one.
func (m *Model) IsEntity(t reflect.Type) bool {
	_, err := m.Entity(t)
	return err == nil
}

// Entities returns the registered entities sorted by table name.
func (m *Model) Entities() []*Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// Entity returns the description of t, which may be a struct or a pointer
// to one, building it on first use.
func (m *Model) Entity(t reflect.Type) (*Entity, error) {
	if t == nil {
		return nil, ErrNotMapped.New("<nil>")
	}
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, ErrNotMapped.New(t)
	}

	m.mu.RLock()
	e, ok := m.entities[st]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	e, err := m.describe(st)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entities[st]; ok {
		return existing, nil
	}
	m.entities[st] = e
	return e, nil
}

type tableNamer interface {
	TableName() string
}

func (m *Model) describe(st reflect.Type) (*Entity, error) {
	e := &Entity{
		Type:   reflect.PointerTo(st),
		Struct: st,
		Table:  snakeCase(st.Name()) + "s",
		model:  m,
		byName: make(map[string]*Property),
	}
	if tn, ok := reflect.New(st).Interface().(tableNamer); ok {
		e.Table = tn.TableName()
	}

	tagged := false
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, hasTag := f.Tag.Lookup(TagName)
		if hasTag {
			tagged = true
		}
		if tag == "-" {
			continue
		}
		p, err := parseProperty(st, f, tag)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		if p.Relation == nil {
			if setter, ok := e.Type.MethodByName("Set" + p.Name); ok &&
				setter.Type.NumIn() == 2 && p.Type.AssignableTo(setter.Type.In(1)) {
				p.setter = setter.Func
			}
		}
		e.Properties = append(e.Properties, p)
		e.byName[p.Name] = p
		if p.Key {
			e.Keys = append(e.Keys, p)
		}
	}
	if !tagged {
		return nil, ErrNotMapped.New(st)
	}

	for _, p := range e.Properties {
		if p.Relation == nil || p.Relation.Kind != RelationReference {
			continue
		}
		for _, k := range p.Relation.Keys {
			fk, ok := e.byName[k]
			if !ok || !fk.IsPersisted() {
				return nil, ErrInvalidMapping.New(st.Name(), p.Name, "unknown foreign key "+k)
			}
		}
	}
	return e, nil
}

func parseProperty(st reflect.Type, f reflect.StructField, tag string) (*Property, error) {
	parts := strings.Split(tag, ",")
	p := &Property{
		Name:   f.Name,
		Column: strings.TrimSpace(parts[0]),
		Index:  f.Index,
		Type:   f.Type,
	}
	if p.Column == "" {
		p.Column = snakeCase(f.Name)
	}
	for _, opt := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "pk":
			p.Key = true
		case "computed":
			p.Computed = true
		case "ref":
			if f.Type.Kind() != reflect.Pointer || f.Type.Elem().Kind() != reflect.Struct {
				return nil, ErrInvalidMapping.New(st.Name(), f.Name, "ref needs a struct pointer")
			}
			p.Relation = &Relation{Kind: RelationReference, Target: f.Type, Keys: strings.Split(value, "|")}
		case "many":
			if f.Type.Kind() != reflect.Slice || f.Type.Elem().Kind() != reflect.Pointer {
				return nil, ErrInvalidMapping.New(st.Name(), f.Name, "many needs a slice of struct pointers")
			}
			p.Relation = &Relation{Kind: RelationCollection, Target: f.Type.Elem(), Keys: strings.Split(value, "|")}
		case "":
		default:
			return nil, ErrInvalidMapping.New(st.Name(), f.Name, "unknown option "+key)
		}
	}
	if p.Relation == nil && !isColumnType(f.Type) {
		return nil, nil
	}
	return p, nil
}

func isColumnType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct:
		return t.PkgPath() == "time"
	case reflect.Pointer:
		return isColumnType(t.Elem())
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	case reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Array:
		return false
	}
	return true
}

func snakeCase(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
