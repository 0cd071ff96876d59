// Package evaluator separates the parts of an operator tree that can be
// computed on the client from the parts that must run in the database.
// Client side subtrees are replaced by indexed placeholders whose values are
// computed again for every execution, so queries that differ only in those
// values share one tree shape.
package evaluator

import (
	"reflect"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/transform"
)

// ErrNotEvaluable is returned when a subtree cannot be computed on the client.
var ErrNotEvaluable = errors.NewKind("cannot evaluate %s on the client")

// ErrMissingArgument is returned when a compiled query runs with too few
// arguments.
var ErrMissingArgument = errors.NewKind("missing argument %d: got %d arguments")

// Binding records how to compute the value of one placeholder.
type Binding struct {
	Index int
	Expr  ast.Node
}

// Options tunes the evaluator.
type Options struct {
	// IsEnum reports enum types. Conversions to enums are folded into
	// literals right away.
	IsEnum func(reflect.Type) bool
}

// Evaluate replaces the maximal client evaluable subtrees of n with
// placeholders and returns the rewritten tree with the placeholder bindings.
// Placeholder numbering continues after the highest index already in n.
func Evaluate(n ast.Node, opts Options) (ast.Node, []Binding, error) {
	e := &evaluator{
		opts:       opts,
		candidates: make(map[ast.Node]bool),
		next:       ast.MaxPlaceholder(n),
	}
	e.nominate(n)
	out, _, err := transform.Pre(n, e.visit)
	if err != nil {
		return nil, nil, err
	}
	return out, e.bindings, nil
}

type evaluator struct {
	opts       Options
	candidates map[ast.Node]bool
	bindings   []Binding
	next       int
}

// nominate marks client evaluable nodes bottom up and returns whether n is
// one of them.
func (e *evaluator) nominate(n ast.Node) bool {
	ok := true
	for _, c := range n.Children() {
		if c != nil && !e.nominate(c) {
			ok = false
		}
	}
	if l, isLambda := n.(*ast.Lambda); isLambda {
		delete(e.candidates, l.Body)
	}
	if ok && canBeEvaluated(n) {
		e.candidates[n] = true
		return true
	}
	return false
}

func canBeEvaluated(n ast.Node) bool {
	if n.Kind().IsRelational() {
		return false
	}
	switch n := n.(type) {
	case *ast.Parameter, *ast.Lambda, *ast.Source, *ast.Version, *ast.Placeholder:
		return false
	case *ast.Call:
		return !ast.IsQueryOperator(n)
	}
	return true
}

func (e *evaluator) visit(n ast.Node) (ast.Node, transform.TreeIdentity, bool, error) {
	if !e.candidates[n] {
		return n, transform.SameTree, true, nil
	}
	out, err := e.evaluate(n)
	if err != nil {
		return nil, transform.SameTree, false, err
	}
	if out == n {
		return n, transform.SameTree, false, nil
	}
	return out, transform.NewTree, false, nil
}

func (e *evaluator) evaluate(n ast.Node) (ast.Node, error) {
	if ast.IsLiteral(n) {
		return n, nil
	}
	if u, ok := n.(*ast.Unary); ok && u.Op == ast.OpConvert {
		if c, ok := u.Operand.(*ast.Constant); ok && !c.Captured {
			v, err := ConvertValue(constantValue(c), u.Typ)
			if err != nil {
				return nil, err
			}
			return &ast.Constant{Value: v.Interface(), Typ: u.Typ}, nil
		}
		if e.opts.IsEnum != nil && e.opts.IsEnum(u.Typ) && !hasArguments(u) {
			v, err := Interpret(u, nil)
			if err != nil {
				return nil, err
			}
			return &ast.Constant{Value: v, Typ: u.Typ}, nil
		}
	}
	p := &ast.Placeholder{Index: e.next, Typ: n.Type()}
	e.next++
	e.bindings = append(e.bindings, Binding{Index: p.Index, Expr: n})
	return p, nil
}

func hasArguments(n ast.Node) bool {
	return transform.Any(n, func(n ast.Node) bool {
		_, ok := n.(*ast.Argument)
		return ok
	})
}

func constantValue(c *ast.Constant) reflect.Value {
	if c.Value == nil {
		return reflect.Value{}
	}
	return reflect.ValueOf(c.Value)
}

// Resolve computes the placeholder values for one execution. The result is
// indexed by placeholder index.
func Resolve(bindings []Binding, args []any) ([]any, error) {
	size := 0
	for _, b := range bindings {
		if b.Index+1 > size {
			size = b.Index + 1
		}
	}
	values := make([]any, size)
	for _, b := range bindings {
		v, err := Interpret(b.Expr, args)
		if err != nil {
			return nil, err
		}
		values[b.Index] = v
	}
	return values, nil
}
