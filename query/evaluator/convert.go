package evaluator

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cast"
)

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

// ConvertValue converts v to t. Database and caller values rarely come in
// the exact Go type of the target, so numeric, text, boolean and time
// values are converted by value rather than by Go conversion rules. An
// invalid v yields the zero value of t.
func ConvertValue(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return v, nil
	}
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			v = reflect.Value{}
			break
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Zero(t), nil
	}
	if v.Type() == t {
		return v, nil
	}
	if t.Kind() == reflect.Interface {
		if v.Type().Implements(t) {
			out := reflect.New(t).Elem()
			out.Set(v)
			return out, nil
		}
		return reflect.Value{}, fmt.Errorf("convert %s to %s: not implemented", v.Type(), t)
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Zero(t), nil
		}
		if t.Kind() != reflect.Pointer {
			return ConvertValue(v.Elem(), t)
		}
	}
	if t.Kind() == reflect.Pointer {
		inner, err := ConvertValue(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(inner)
		return ptr, nil
	}

	if class(v.Kind()) != 0 && class(v.Kind()) == class(t.Kind()) {
		return v.Convert(t), nil
	}

	var (
		out any
		err error
	)
	switch {
	case t == timeType:
		out, err = cast.ToTimeE(v.Interface())
	case t == bytesType || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8):
		switch x := v.Interface().(type) {
		case []byte:
			out = x
		case string:
			out = []byte(x)
		default:
			err = fmt.Errorf("not bytes")
		}
	default:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out, err = cast.ToInt64E(v.Interface())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out, err = cast.ToUint64E(v.Interface())
		case reflect.Float32, reflect.Float64:
			out, err = cast.ToFloat64E(v.Interface())
		case reflect.String:
			out, err = cast.ToStringE(v.Interface())
		case reflect.Bool:
			out, err = cast.ToBoolE(v.Interface())
		default:
			if v.Type().ConvertibleTo(t) {
				return v.Convert(t), nil
			}
			err = fmt.Errorf("unsupported target")
		}
	}
	if err != nil {
		return reflect.Value{}, fmt.Errorf("convert %s to %s: %w", v.Type(), t, err)
	}
	return reflect.ValueOf(out).Convert(t), nil
}

func class(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return 1
	case reflect.String:
		return 2
	case reflect.Bool:
		return 3
	}
	return 0
}
