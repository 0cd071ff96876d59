package sqlgen

import (
	"reflect"
	"time"

	"github.com/spf13/cast"
	errors "gopkg.in/src-d/go-errors.v1"
)

// ErrUnreadable is returned when a driver value cannot be converted to the
// type a column is read as.
var ErrUnreadable = errors.NewKind("cannot read %T as %s")

var timeType = reflect.TypeOf(time.Time{})

// kindTime stands for time.Time in the type name tables.
const kindTime = reflect.UnsafePointer + 1

var postgresTypes = map[reflect.Kind]string{
	reflect.Bool: "BOOLEAN", reflect.String: "TEXT",
	reflect.Int: "BIGINT", reflect.Int8: "SMALLINT", reflect.Int16: "SMALLINT",
	reflect.Int32: "INTEGER", reflect.Int64: "BIGINT",
	reflect.Uint: "BIGINT", reflect.Uint8: "SMALLINT", reflect.Uint16: "INTEGER",
	reflect.Uint32: "BIGINT", reflect.Uint64: "NUMERIC(20)",
	reflect.Float32: "REAL", reflect.Float64: "DOUBLE PRECISION",
	kindTime: "TIMESTAMP",
}

var mysqlTypes = map[reflect.Kind]string{
	reflect.Bool: "UNSIGNED", reflect.String: "CHAR",
	reflect.Int: "SIGNED", reflect.Int8: "SIGNED", reflect.Int16: "SIGNED",
	reflect.Int32: "SIGNED", reflect.Int64: "SIGNED",
	reflect.Uint: "UNSIGNED", reflect.Uint8: "UNSIGNED", reflect.Uint16: "UNSIGNED",
	reflect.Uint32: "UNSIGNED", reflect.Uint64: "UNSIGNED",
	reflect.Float32: "DOUBLE", reflect.Float64: "DOUBLE",
	kindTime: "DATETIME",
}

var sqliteTypes = map[reflect.Kind]string{
	reflect.Bool: "INTEGER", reflect.String: "TEXT",
	reflect.Int: "INTEGER", reflect.Int8: "INTEGER", reflect.Int16: "INTEGER",
	reflect.Int32: "INTEGER", reflect.Int64: "INTEGER",
	reflect.Uint: "INTEGER", reflect.Uint8: "INTEGER", reflect.Uint16: "INTEGER",
	reflect.Uint32: "INTEGER", reflect.Uint64: "INTEGER",
	reflect.Float32: "REAL", reflect.Float64: "REAL",
	kindTime: "TEXT",
}

var sqlserverTypes = map[reflect.Kind]string{
	reflect.Bool: "BIT", reflect.String: "NVARCHAR(MAX)",
	reflect.Int: "BIGINT", reflect.Int8: "SMALLINT", reflect.Int16: "SMALLINT",
	reflect.Int32: "INT", reflect.Int64: "BIGINT",
	reflect.Uint: "BIGINT", reflect.Uint8: "TINYINT", reflect.Uint16: "INT",
	reflect.Uint32: "BIGINT", reflect.Uint64: "DECIMAL(20)",
	reflect.Float32: "REAL", reflect.Float64: "FLOAT",
	kindTime: "DATETIME2",
}

func typeName(t reflect.Type, names map[reflect.Kind]string) (string, bool) {
	if t == nil {
		return "", false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return names[kindTime], true
	}
	name, ok := names[t.Kind()]
	return name, ok
}

// ReadFunc converts a value produced by the database driver to the Go
// type of a column. A nil source yields the zero value.
type ReadFunc func(src any) (reflect.Value, error)

// readerFor returns the conversion to t. Named types, such as enums, are
// converted from their underlying kind.
func readerFor(t reflect.Type) ReadFunc {
	if t.Kind() == reflect.Pointer {
		elem := readerFor(t.Elem())
		return func(src any) (reflect.Value, error) {
			if src == nil {
				return reflect.Zero(t), nil
			}
			v, err := elem(src)
			if err != nil {
				return reflect.Value{}, err
			}
			p := reflect.New(t.Elem())
			p.Elem().Set(v)
			return p, nil
		}
	}
	if t == timeType {
		return func(src any) (reflect.Value, error) {
			if src == nil {
				return reflect.Zero(t), nil
			}
			v, err := cast.ToTimeE(text(src))
			if err != nil {
				return reflect.Value{}, ErrUnreadable.New(src, t)
			}
			return reflect.ValueOf(v), nil
		}
	}
	var conv func(any) (any, error)
	switch t.Kind() {
	case reflect.Bool:
		conv = func(src any) (any, error) { return cast.ToBoolE(text(src)) }
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		conv = func(src any) (any, error) { return cast.ToInt64E(text(src)) }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		conv = func(src any) (any, error) { return cast.ToUint64E(text(src)) }
	case reflect.Float32, reflect.Float64:
		conv = func(src any) (any, error) { return cast.ToFloat64E(text(src)) }
	case reflect.String:
		conv = func(src any) (any, error) { return cast.ToStringE(src) }
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			conv = func(src any) (any, error) {
				switch s := src.(type) {
				case []byte:
					return append([]byte(nil), s...), nil
				case string:
					return []byte(s), nil
				}
				return nil, ErrUnreadable.New(src, t)
			}
		}
	case reflect.Interface:
		return func(src any) (reflect.Value, error) {
			if src == nil {
				return reflect.Zero(t), nil
			}
			if b, ok := src.([]byte); ok {
				src = string(b)
			}
			return reflect.ValueOf(&src).Elem(), nil
		}
	}
	return func(src any) (reflect.Value, error) {
		if src == nil {
			return reflect.Zero(t), nil
		}
		if conv == nil {
			v := reflect.ValueOf(src)
			if v.Type().ConvertibleTo(t) {
				return v.Convert(t), nil
			}
			return reflect.Value{}, ErrUnreadable.New(src, t)
		}
		out, err := conv(src)
		if err != nil {
			return reflect.Value{}, ErrUnreadable.New(src, t)
		}
		return reflect.ValueOf(out).Convert(t), nil
	}
}

// text turns driver byte slices into strings so cast can parse them.
func text(src any) any {
	if b, ok := src.([]byte); ok {
		return string(b)
	}
	return src
}
