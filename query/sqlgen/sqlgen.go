// Package sqlgen formats optimized relational trees as parameterized SQL
// for different database providers.
package sqlgen

import (
	"fmt"
	"reflect"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/satishbabariya/objql/query/ast"
)

var (
	// ErrUnsupportedNode is returned for nodes that have no SQL form.
	ErrUnsupportedNode = errors.NewKind("cannot format %s node")
	// ErrMissingValue is returned when a placeholder must be expanded but
	// no value was supplied for it.
	ErrMissingValue = errors.NewKind("no value for placeholder %d")
	// ErrInvalidPath is returned by Refresh when a parameter path does not
	// resolve against the new value.
	ErrInvalidPath = errors.NewKind("cannot read %s from %T")
)

// ParamRef tells where the value of one parameter comes from.
type ParamRef struct {
	// Placeholder is the placeholder index, or -1 for a value fixed when
	// the statement was formatted.
	Placeholder int
	// Path names the fields read from the placeholder value.
	Path []string
	// Value is the fixed value when Placeholder is -1.
	Value any
}

// Statement is formatted SQL with its parameters.
type Statement struct {
	SQL    string
	Params []any
	Refs   []ParamRef
	// Cacheable reports whether Refresh can rebind the statement to new
	// placeholder values: every placeholder occurrence became exactly one
	// parameter.
	Cacheable bool
}

// Options tunes formatting.
type Options struct {
	// Values are the placeholder values, indexed by placeholder index.
	Values []any
}

// Format renders a projection, select or statement.
func Format(n ast.Node, d Dialect, opts Options) (*Statement, error) {
	f := newFormatter(d, opts.Values)
	if err := f.root(n); err != nil {
		return nil, err
	}
	return f.finish(), nil
}

// Refresh returns the parameters of the statement for new placeholder
// values. The statement itself is not modified.
func (s *Statement) Refresh(values []any) ([]any, error) {
	out := make([]any, len(s.Refs))
	for i, ref := range s.Refs {
		if ref.Placeholder < 0 {
			out[i] = ref.Value
			continue
		}
		if ref.Placeholder >= len(values) {
			return nil, ErrMissingValue.New(ref.Placeholder)
		}
		v, err := readPath(values[ref.Placeholder], ref.Path)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// readPath follows field names through structs and pointers. A nil
// pointer along the way yields nil.
func readPath(v any, path []string) (any, error) {
	if len(path) == 0 {
		return v, nil
	}
	rv := reflect.ValueOf(v)
	for _, name := range path {
		for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
			if rv.IsNil() {
				return nil, nil
			}
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			return nil, ErrInvalidPath.New(name, v)
		}
		rv = rv.FieldByName(name)
		if !rv.IsValid() {
			return nil, ErrInvalidPath.New(name, v)
		}
	}
	return rv.Interface(), nil
}

func (s *Statement) String() string {
	return fmt.Sprintf("%s %v", s.SQL, s.Params)
}
