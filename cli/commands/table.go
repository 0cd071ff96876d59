package commands

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/satishbabariya/objql/query/ast"
)

// resultTable lays results out as rows. Structs get one column per
// exported field; loaded references show their first field and
// collections their length. Tuples get one column per item and anything
// else a single value column. elem is the static element type and may be
// an interface, in which case the first non nil result decides.
func resultTable(elem reflect.Type, results []any) ([]string, [][]string) {
	sample := elem
	for _, r := range results {
		if sample != nil && sample.Kind() != reflect.Interface {
			break
		}
		if r != nil {
			sample = reflect.TypeOf(r)
		}
	}

	st := sample
	if st != nil && st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	switch {
	case st == ast.TupleType:
		return tupleTable(results)
	case st != nil && st.Kind() == reflect.Struct:
		return structTable(st, results)
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{cell(reflect.ValueOf(r))}
	}
	return []string{"value"}, rows
}

func structTable(st reflect.Type, results []any) ([]string, [][]string) {
	var (
		headers []string
		fields  []int
	)
	for i := 0; i < st.NumField(); i++ {
		if f := st.Field(i); f.IsExported() {
			headers = append(headers, f.Name)
			fields = append(fields, i)
		}
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		v := reflect.Indirect(reflect.ValueOf(r))
		row := make([]string, len(fields))
		for j, i := range fields {
			if v.IsValid() {
				row[j] = cell(v.Field(i))
			}
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func tupleTable(results []any) ([]string, [][]string) {
	var headers []string
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		var items []any
		switch t := r.(type) {
		case ast.TupleValue:
			items = t.Items
		case *ast.TupleValue:
			items = t.Items
		}
		for len(headers) < len(items) {
			headers = append(headers, "#"+strconv.Itoa(len(headers)+1))
		}
		row := make([]string, len(items))
		for i, it := range items {
			row[i] = cell(reflect.ValueOf(it))
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func cell(v reflect.Value) string {
	if !v.IsValid() {
		return "NULL"
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return "NULL"
		}
		e := v.Elem()
		if e.Kind() == reflect.Struct && e.NumField() > 0 {
			return fmt.Sprintf("→ %s", cell(e.Field(0)))
		}
		return cell(e)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return fmt.Sprintf("%x", v.Bytes())
		}
		return fmt.Sprintf("[%d]", v.Len())
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	}
	return fmt.Sprint(v.Interface())
}
