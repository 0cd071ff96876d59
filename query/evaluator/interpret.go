package evaluator

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/satishbabariya/objql/query/ast"
)

// Interpret computes the value of a client evaluable tree. args are the
// arguments of a compiled query.
func Interpret(n ast.Node, args []any) (any, error) {
	v, err := eval(n, args)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

func eval(n ast.Node, args []any) (reflect.Value, error) {
	switch n := n.(type) {
	case *ast.Constant:
		return constantValue(n), nil
	case *ast.Argument:
		if n.Index >= len(args) {
			return reflect.Value{}, ErrMissingArgument.New(n.Index, len(args))
		}
		if args[n.Index] == nil {
			return reflect.Value{}, nil
		}
		return ConvertValue(reflect.ValueOf(args[n.Index]), n.Typ)
	case *ast.Unary:
		return evalUnary(n, args)
	case *ast.Binary:
		return evalBinary(n, args)
	case *ast.Conditional:
		t, err := eval(n.Test, args)
		if err != nil {
			return reflect.Value{}, err
		}
		if truthy(t) {
			return eval(n.Then, args)
		}
		return eval(n.Else, args)
	case *ast.Member:
		v, err := eval(n.Expr, args)
		if err != nil {
			return reflect.Value{}, err
		}
		return member(v, n.Name)
	case *ast.New:
		return evalNew(n, args)
	case *ast.Tuple:
		t := ast.TupleValue{Items: make([]any, len(n.Items))}
		for i, item := range n.Items {
			v, err := Interpret(item, args)
			if err != nil {
				return reflect.Value{}, err
			}
			t.Items[i] = v
		}
		return reflect.ValueOf(t), nil
	case *ast.Call:
		return evalCall(n, args)
	}
	return reflect.Value{}, ErrNotEvaluable.New(n.Kind())
}

func evalUnary(n *ast.Unary, args []any) (reflect.Value, error) {
	v, err := eval(n.Operand, args)
	if err != nil {
		return reflect.Value{}, err
	}
	switch n.Op {
	case ast.OpNot:
		return reflect.ValueOf(!truthy(v)), nil
	case ast.OpNegate:
		if !v.IsValid() {
			return v, nil
		}
		if isFloat(v) {
			return ConvertValue(reflect.ValueOf(-cast.ToFloat64(v.Interface())), n.Typ)
		}
		return ConvertValue(reflect.ValueOf(-cast.ToInt64(v.Interface())), n.Typ)
	case ast.OpConvert:
		return ConvertValue(v, n.Typ)
	case ast.OpDeref:
		for v.IsValid() && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, nil
			}
			v = v.Elem()
		}
		return v, nil
	}
	return reflect.Value{}, ErrNotEvaluable.New(n.Op)
}

func evalBinary(n *ast.Binary, args []any) (reflect.Value, error) {
	l, err := eval(n.Left, args)
	if err != nil {
		return reflect.Value{}, err
	}
	switch n.Op {
	case ast.OpAnd:
		if !truthy(l) {
			return reflect.ValueOf(false), nil
		}
	case ast.OpOr:
		if truthy(l) {
			return reflect.ValueOf(true), nil
		}
	case ast.OpCoalesce:
		if !isNull(l) {
			return l, nil
		}
	}
	r, err := eval(n.Right, args)
	if err != nil {
		return reflect.Value{}, err
	}

	switch n.Op {
	case ast.OpAnd, ast.OpOr:
		return reflect.ValueOf(truthy(r)), nil
	case ast.OpCoalesce:
		return r, nil
	case ast.OpEq:
		return reflect.ValueOf(equal(l, r)), nil
	case ast.OpNe:
		return reflect.ValueOf(!equal(l, r)), nil
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		c, err := compare(l, r)
		if err != nil {
			return reflect.Value{}, err
		}
		var res bool
		switch n.Op {
		case ast.OpLt:
			res = c < 0
		case ast.OpLe:
			res = c <= 0
		case ast.OpGt:
			res = c > 0
		default:
			res = c >= 0
		}
		return reflect.ValueOf(res), nil
	case ast.OpConcat:
		return reflect.ValueOf(cast.ToString(iface(l)) + cast.ToString(iface(r))), nil
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
		return arithmetic(n, l, r)
	}
	return reflect.Value{}, ErrNotEvaluable.New(n.Op)
}

func arithmetic(n *ast.Binary, l, r reflect.Value) (reflect.Value, error) {
	if isNull(l) || isNull(r) {
		return reflect.Value{}, nil
	}
	if l.Kind() == reflect.String && n.Op == ast.OpAdd {
		return ConvertValue(reflect.ValueOf(l.String()+cast.ToString(r.Interface())), n.Typ)
	}
	if isFloat(l) || isFloat(r) {
		a, err := cast.ToFloat64E(l.Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		b, err := cast.ToFloat64E(r.Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		var res float64
		switch n.Op {
		case ast.OpAdd:
			res = a + b
		case ast.OpSub:
			res = a - b
		case ast.OpMul:
			res = a * b
		case ast.OpDiv:
			res = a / b
		default:
			return reflect.Value{}, ErrNotEvaluable.New("float modulo")
		}
		return ConvertValue(reflect.ValueOf(res), n.Typ)
	}
	a, err := cast.ToInt64E(l.Interface())
	if err != nil {
		return reflect.Value{}, err
	}
	b, err := cast.ToInt64E(r.Interface())
	if err != nil {
		return reflect.Value{}, err
	}
	var res int64
	switch n.Op {
	case ast.OpAdd:
		res = a + b
	case ast.OpSub:
		res = a - b
	case ast.OpMul:
		res = a * b
	case ast.OpDiv, ast.OpMod:
		if b == 0 {
			return reflect.Value{}, ErrNotEvaluable.New("division by zero")
		}
		if n.Op == ast.OpDiv {
			res = a / b
		} else {
			res = a % b
		}
	}
	return ConvertValue(reflect.ValueOf(res), n.Typ)
}

func evalNew(n *ast.New, args []any) (reflect.Value, error) {
	t := n.Typ
	ptr := t.Kind() == reflect.Pointer
	if ptr {
		t = t.Elem()
	}
	out := reflect.New(t)
	for i, name := range n.Fields {
		v, err := eval(n.Args[i], args)
		if err != nil {
			return reflect.Value{}, err
		}
		f := out.Elem().FieldByName(name)
		if !f.IsValid() {
			return reflect.Value{}, ErrNotEvaluable.New(t.String() + "." + name)
		}
		cv, err := ConvertValue(v, f.Type())
		if err != nil {
			return reflect.Value{}, err
		}
		f.Set(cv)
	}
	if ptr {
		return out, nil
	}
	return out.Elem(), nil
}

func evalCall(n *ast.Call, args []any) (reflect.Value, error) {
	vals := make([]reflect.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := eval(a, args)
		if err != nil {
			return reflect.Value{}, err
		}
		vals[i] = v
	}
	str := func(i int) string { return cast.ToString(iface(vals[i])) }
	switch n.Method {
	case "StringContains":
		return reflect.ValueOf(strings.Contains(str(0), str(1))), nil
	case "StartsWith":
		return reflect.ValueOf(strings.HasPrefix(str(0), str(1))), nil
	case "EndsWith":
		return reflect.ValueOf(strings.HasSuffix(str(0), str(1))), nil
	case "ToUpper":
		return reflect.ValueOf(strings.ToUpper(str(0))), nil
	case "ToLower":
		return reflect.ValueOf(strings.ToLower(str(0))), nil
	case "Trim":
		return reflect.ValueOf(strings.TrimSpace(str(0))), nil
	case "Len":
		return ConvertValue(reflect.ValueOf(len([]rune(str(0)))), n.Typ)
	case "Contains":
		seq := vals[0]
		for seq.IsValid() && seq.Kind() == reflect.Pointer {
			seq = seq.Elem()
		}
		if !seq.IsValid() || (seq.Kind() != reflect.Slice && seq.Kind() != reflect.Array) {
			return reflect.ValueOf(false), nil
		}
		for i := 0; i < seq.Len(); i++ {
			if equal(seq.Index(i), vals[1]) {
				return reflect.ValueOf(true), nil
			}
		}
		return reflect.ValueOf(false), nil
	}
	return reflect.Value{}, ErrNotEvaluable.New("call " + n.Method)
}

func member(v reflect.Value, name string) (reflect.Value, error) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		f := v.FieldByName(name)
		if !f.IsValid() {
			return reflect.Value{}, ErrNotEvaluable.New(v.Type().String() + "." + name)
		}
		return f, nil
	case reflect.Map:
		return v.MapIndex(reflect.ValueOf(name)), nil
	case reflect.Invalid:
		return reflect.Value{}, nil
	}
	return reflect.Value{}, ErrNotEvaluable.New(v.Type().String() + "." + name)
}

func iface(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

func isNull(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func isFloat(v reflect.Value) bool {
	return v.IsValid() && (v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64)
}

func truthy(v reflect.Value) bool {
	if isNull(v) {
		return false
	}
	return cast.ToBool(v.Interface())
}

func equal(l, r reflect.Value) bool {
	if isNull(l) || isNull(r) {
		return isNull(l) && isNull(r)
	}
	if c, err := compare(l, r); err == nil {
		return c == 0
	}
	return reflect.DeepEqual(l.Interface(), r.Interface())
}

// compare orders two values of compatible kinds.
func compare(l, r reflect.Value) (int, error) {
	if isNull(l) || isNull(r) {
		return 0, ErrNotEvaluable.New("comparison with null")
	}
	li, ri := l.Interface(), r.Interface()
	if lt, ok := li.(time.Time); ok {
		rt, err := cast.ToTimeE(ri)
		if err != nil {
			return 0, err
		}
		return lt.Compare(rt), nil
	}
	if l.Kind() == reflect.String || r.Kind() == reflect.String {
		return strings.Compare(cast.ToString(li), cast.ToString(ri)), nil
	}
	a, err := cast.ToFloat64E(li)
	if err != nil {
		return 0, err
	}
	b, err := cast.ToFloat64E(ri)
	if err != nil {
		return 0, err
	}
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	}
	return 0, nil
}
