package mapping

import (
	"reflect"
)

// Initializer is implemented by entities that track their construction.
// BeginInitialize is called on a fresh instance before any field is set
// and EndInitialize once every loaded field is in place.
type Initializer interface {
	BeginInitialize(m *Model)
	EndInitialize()
}

// ModificationTracker is implemented by entities that record changed
// fields. Loaded instances start clean.
type ModificationTracker interface {
	ResetModified()
}

// CollectionLoader is implemented by entities that want to receive the
// elements of a loaded collection themselves. version is the execution
// version the elements were read at.
type CollectionLoader interface {
	AddLoaded(property string, item any, version int64)
}

// ObjectCache maps loaded instances to their canonical instance, typically
// an identity map keyed by primary key.
type ObjectCache interface {
	Submit(obj any) any
}

// New returns a pointer to a fresh instance ready to receive loaded values.
func (e *Entity) New() reflect.Value {
	v := reflect.New(e.Struct)
	if in, ok := v.Interface().(Initializer); ok {
		in.BeginInitialize(e.model)
	}
	return v
}

// Finish completes the construction started by New.
func (e *Entity) Finish(v reflect.Value) {
	obj := v.Interface()
	if in, ok := obj.(Initializer); ok {
		in.EndInitialize()
	}
	if mt, ok := obj.(ModificationTracker); ok {
		mt.ResetModified()
	}
}

// Field returns the addressable field of the instance pointed to by v.
func (p *Property) Field(v reflect.Value) reflect.Value {
	return v.Elem().FieldByIndex(p.Index)
}

// Assign stores a loaded value. Keys and computed properties are written
// directly; other properties go through their SetX method when the entity
// declares one.
func (p *Property) Assign(v reflect.Value, value reflect.Value) {
	if !value.IsValid() {
		return
	}
	if !p.Key && !p.Computed && p.setter.IsValid() {
		p.setter.Call([]reflect.Value{v, value})
		return
	}
	p.Field(v).Set(value)
}

// AddLoaded appends a loaded element to a collection property, through
// the entity's CollectionLoader when it implements one.
func (p *Property) AddLoaded(v reflect.Value, item reflect.Value, version int64) {
	if cl, ok := v.Interface().(CollectionLoader); ok {
		cl.AddLoaded(p.Name, item.Interface(), version)
		return
	}
	f := p.Field(v)
	f.Set(reflect.Append(f, item))
}

// KeyOf returns the primary key values of an instance.
func (e *Entity) KeyOf(obj any) []any {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil
	}
	out := make([]any, len(e.Keys))
	for i, k := range e.Keys {
		out[i] = k.Field(v).Interface()
	}
	return out
}
