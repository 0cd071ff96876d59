package ast

import (
	"reflect"
	"strconv"
	"time"
)

var (
	anyType = reflect.TypeOf((*any)(nil)).Elem()
	// BoolType is the type of predicates.
	BoolType = reflect.TypeOf(false)
	// Int64Type is the type of counts and versions.
	Int64Type = reflect.TypeOf(int64(0))
	// Float64Type is the type of averages.
	Float64Type = reflect.TypeOf(float64(0))
	// StringType is the type of text values.
	StringType = reflect.TypeOf("")
	// TupleType is the type of Tuple nodes.
	TupleType = reflect.TypeOf(TupleValue{})
	// RowsType is the nominal type of relational sources.
	RowsType = reflect.TypeOf([]TupleValue(nil))

	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

// AnyType is the empty interface type.
func AnyType() reflect.Type { return anyType }

// TupleValue is the materialized form of a Tuple node.
type TupleValue struct {
	Items []any
}

// IsSequence reports whether t is a sequence type. Byte slices are scalars.
func IsSequence(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Slice && t != bytesType && t.Elem().Kind() != reflect.Uint8
}

// ElemType returns the element type of a sequence type, or t itself.
func ElemType(t reflect.Type) reflect.Type {
	if IsSequence(t) {
		return t.Elem()
	}
	return t
}

// IsScalar reports whether values of t can be stored in a single column.
func IsScalar(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Pointer:
		return IsScalar(t.Elem())
	case reflect.Struct:
		return t == timeType
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	case reflect.Interface:
		return t == anyType
	}
	return false
}

// GroupType returns the struct type a GroupBy yields for the given key and
// element types: struct{ Key K; Elements []E }.
func GroupType(key, elem reflect.Type) reflect.Type {
	return reflect.StructOf([]reflect.StructField{
		{Name: "Key", Type: key},
		{Name: "Elements", Type: reflect.SliceOf(elem)},
	})
}

// IsGroupType reports whether t was built by GroupType.
func IsGroupType(t reflect.Type) bool {
	if t == nil || t.Kind() != reflect.Struct || t.Name() != "" || t.NumField() != 2 {
		return false
	}
	return t.Field(0).Name == "Key" && t.Field(1).Name == "Elements"
}

// OwnerType returns the struct a sequence valued selector result is read
// into together with the keys of the element it was selected from:
// struct{ Items T; Key0 K0; Key1 K1; ... }.
func OwnerType(items reflect.Type, keys ...reflect.Type) reflect.Type {
	fields := []reflect.StructField{{Name: "Items", Type: items}}
	for i, k := range keys {
		fields = append(fields, reflect.StructField{Name: "Key" + strconv.Itoa(i), Type: k})
	}
	return reflect.StructOf(fields)
}

// OwnerFields returns the field names of an OwnerType with n keys.
func OwnerFields(n int) []string {
	out := []string{"Items"}
	for i := range n {
		out = append(out, "Key"+strconv.Itoa(i))
	}
	return out
}

// IsOwnerType reports whether t was built by OwnerType.
func IsOwnerType(t reflect.Type) bool {
	if t == nil || t.Kind() != reflect.Struct || t.Name() != "" || t.NumField() < 2 {
		return false
	}
	return t.Field(0).Name == "Items" && t.Field(1).Name == "Key0"
}
