// Package optimizer rewrites bound relational trees into shapes the SQL
// formatter can print directly: nested collections become joins, orderings
// move to the outermost select, and unused columns and redundant subqueries
// are removed.
package optimizer

import (
	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/satishbabariya/objql/internal/debug"
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/transform"
)

// ErrMaxIterations is returned when a batch does not reach a fixed point.
var ErrMaxIterations = errors.NewKind("optimizer batch %q did not converge after %d iterations")

// DefaultMaxIterations bounds every fixed point batch.
const DefaultMaxIterations = 8

// RuleFunc rewrites a tree, reporting whether it changed.
type RuleFunc func(n ast.Node) (ast.Node, transform.TreeIdentity, error)

// Rule is one named rewrite.
type Rule struct {
	Name  string
	Apply RuleFunc
}

// Batch runs its rules in order until none of them changes the tree.
type Batch struct {
	Desc       string
	Iterations int
	Rules      []Rule
}

// Eval runs the batch to a fixed point.
func (b *Batch) Eval(n ast.Node) (ast.Node, transform.TreeIdentity, error) {
	same := transform.SameTree
	for i := 0; i < b.Iterations; i++ {
		changed := false
		for _, r := range b.Rules {
			out, s, err := r.Apply(n)
			if err != nil {
				return nil, transform.SameTree, err
			}
			if !s {
				debug.Debug("Optimizer rule changed tree", "batch", b.Desc, "rule", r.Name, "iteration", i)
				changed = true
				n = out
			}
		}
		if !changed {
			return n, same, nil
		}
		same = transform.NewTree
		if b.Iterations == 1 {
			return n, same, nil
		}
	}
	return nil, transform.SameTree, ErrMaxIterations.New(b.Desc, b.Iterations)
}

// Options tunes the optimizer.
type Options struct {
	// MaxIterations bounds fixed point batches. Zero means
	// DefaultMaxIterations.
	MaxIterations int
}

// Optimizer runs the rewrite batches.
type Optimizer struct {
	maxIterations int
}

// New returns an optimizer.
func New(opts Options) *Optimizer {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Optimizer{maxIterations: opts.MaxIterations}
}

func (o *Optimizer) once(desc string, rules ...Rule) *Batch {
	return &Batch{Desc: desc, Iterations: 1, Rules: rules}
}

func (o *Optimizer) fixed(desc string, rules ...Rule) *Batch {
	return &Batch{Desc: desc, Iterations: o.maxIterations, Rules: rules}
}

// Optimize rewrites a bound projection or statement.
func (o *Optimizer) Optimize(n ast.Node) (ast.Node, error) {
	cleanup := o.fixed("cleanup",
		Rule{"remove-unused-columns", RemoveUnusedColumns},
		Rule{"remove-redundant-subqueries", RemoveRedundantSubqueries},
	)
	steps := []*Batch{
		o.once("grouping",
			Rule{"collate-group-keys", CollateGroupKeys},
			Rule{"rewrite-aggregates", RewriteAggregates},
		),
		o.once("flatten-collections", Rule{"flatten-collections", FlattenCollections}),
		o.fixed("lift-orderings", Rule{"lift-orderings", LiftOrderings}),
		cleanup,
	}
	for _, b := range steps {
		out, _, err := b.Eval(n)
		if err != nil {
			return nil, err
		}
		n = out
	}

	apply := o.once("rewrite-cross-apply", Rule{"rewrite-cross-apply", RewriteCrossApply})
	out, same, err := apply.Eval(n)
	if err != nil {
		return nil, err
	}
	n = out
	if !same {
		if n, _, err = cleanup.Eval(n); err != nil {
			return nil, err
		}
	}

	for _, b := range []*Batch{
		o.fixed("eliminate-conditionals", Rule{"eliminate-conditionals", EliminateConditionals}),
		o.once("normalize-statements",
			Rule{"normalize-delete", NormalizeDelete},
			Rule{"normalize-update", NormalizeUpdate},
			Rule{"normalize-insert", NormalizeInsert},
		),
	} {
		if n, _, err = b.Eval(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// identity compares two trees by their canonical form.
func identity(before, after ast.Node) transform.TreeIdentity {
	if before == after {
		return transform.SameTree
	}
	return transform.TreeIdentity(ast.Format(before) == ast.Format(after))
}
