// Package compiler runs the compilation pipeline: partial evaluation,
// binding, optimization, SQL formatting and materializer construction.
// Plans and formatted statements are cached by the structural hash of the
// optimized tree, so queries differing only in values share them.
package compiler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/satishbabariya/objql/internal/debug"
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/query/binder"
	"github.com/satishbabariya/objql/query/cache"
	"github.com/satishbabariya/objql/query/evaluator"
	"github.com/satishbabariya/objql/query/mapping"
	"github.com/satishbabariya/objql/query/materialize"
	"github.com/satishbabariya/objql/query/optimizer"
	"github.com/satishbabariya/objql/query/sqlgen"
)

// Default cache sizes.
const (
	DefaultPlanCacheSize      = 256
	DefaultStatementCacheSize = 256
)

// Options configures a compiler.
type Options struct {
	Model   *mapping.Model
	Dialect sqlgen.Dialect
	// PlanCacheSize bounds the materializer cache. Negative disables it,
	// zero means DefaultPlanCacheSize.
	PlanCacheSize int
	// StatementCacheSize bounds the SQL cache. Negative disables it, zero
	// means DefaultStatementCacheSize.
	StatementCacheSize int
	// MaxIterations bounds the optimizer fixed point batches.
	MaxIterations int
}

// Compiler turns operator trees into executable plans. It is safe for
// concurrent use.
type Compiler struct {
	model      *mapping.Model
	dialect    sqlgen.Dialect
	optimizer  *optimizer.Optimizer
	plans      *cache.LRU[*Plan]
	statements *cache.LRU[*statementEntry]
}

type statementEntry struct {
	shape     string
	statement *sqlgen.Statement
}

// New creates a compiler.
func New(opts Options) (*Compiler, error) {
	if opts.Model == nil {
		return nil, ErrNoModel.New()
	}
	if opts.Dialect == nil {
		return nil, ErrNoDialect.New()
	}
	return &Compiler{
		model:      opts.Model,
		dialect:    opts.Dialect,
		optimizer:  optimizer.New(optimizer.Options{MaxIterations: opts.MaxIterations}),
		plans:      cache.New[*Plan]("plans", cacheSize(opts.PlanCacheSize, DefaultPlanCacheSize)),
		statements: cache.New[*statementEntry]("statements", cacheSize(opts.StatementCacheSize, DefaultStatementCacheSize)),
	}, nil
}

func cacheSize(n, def int) int {
	switch {
	case n < 0:
		return 0
	case n == 0:
		return def
	}
	return n
}

// Model returns the model the compiler binds against.
func (c *Compiler) Model() *mapping.Model { return c.model }

// Dialect returns the dialect statements are formatted for.
func (c *Compiler) Dialect() sqlgen.Dialect { return c.dialect }

// Plan is the cached result of compiling one query shape.
type Plan struct {
	Key   uint64
	Shape string
	// Tree is the optimized projection or statement.
	Tree ast.Node
	// Materializer builds result values. It is nil for statements.
	Materializer *materialize.Plan
}

// IsQuery reports whether the plan produces rows.
func (p *Plan) IsQuery() bool { return p.Materializer != nil }

// Execution is a plan bound to the values of one call.
type Execution struct {
	Plan      *Plan
	Statement *sqlgen.Statement
	// Params are the statement parameters in order.
	Params []any
	// Values are the placeholder values, indexed by placeholder index.
	Values []any
}

// Compiled is a query bound once and executed many times with different
// arguments.
type Compiled struct {
	c        *Compiler
	plan     *Plan
	bindings []evaluator.Binding
}

// Plan returns the compiled plan.
func (q *Compiled) Plan() *Plan { return q.plan }

// Prepare computes the values of one call. args are the positional
// arguments referenced by the query.
func (q *Compiled) Prepare(args ...any) (*Execution, error) {
	return q.c.execution(q.plan, q.bindings, args)
}

// Compile binds and optimizes n once.
func (c *Compiler) Compile(n ast.Node) (*Compiled, error) {
	plan, bindings, err := c.build(n)
	if err != nil {
		return nil, err
	}
	return &Compiled{c: c, plan: plan, bindings: bindings}, nil
}

// Prepare compiles n for one call. The bound tree is looked up in the plan
// cache, so only binding and optimization are repeated.
func (c *Compiler) Prepare(n ast.Node, args ...any) (*Execution, error) {
	plan, bindings, err := c.build(n)
	if err != nil {
		return nil, err
	}
	return c.execution(plan, bindings, args)
}

func (c *Compiler) build(n ast.Node) (*Plan, []evaluator.Binding, error) {
	evaluated, bindings, err := evaluator.Evaluate(n, evaluator.Options{IsEnum: c.model.IsEnum})
	if err != nil {
		return nil, nil, err
	}
	bound, err := binder.Bind(c.model, evaluated)
	if err != nil {
		return nil, nil, err
	}
	optimized, err := c.optimizer.Optimize(bound)
	if err != nil {
		return nil, nil, err
	}
	plan, err := c.plan(optimized)
	if err != nil {
		return nil, nil, err
	}
	return plan, bindings, nil
}

// plan returns the cached plan of tree, building it on a miss. Entries are
// verified against the shape string so a hash collision only costs a
// rebuild. Racing builds of one shape are harmless: the last one wins.
func (c *Compiler) plan(tree ast.Node) (*Plan, error) {
	key := ast.Hash(tree)
	shape := ast.Shape(tree)
	if p, ok := c.plans.Get(key); ok && p.Shape == shape {
		debug.Debug("Plan cache hit", "key", key)
		return p, nil
	}

	p := &Plan{Key: key, Shape: shape, Tree: tree}
	if proj, ok := tree.(*ast.Projection); ok {
		m, err := materialize.Build(proj, c.dialect, c.model)
		if err != nil {
			return nil, err
		}
		p.Materializer = m
	}
	c.plans.Set(key, p)
	debug.Debug("Compiled plan", "key", key, "query", p.IsQuery())
	return p, nil
}

func (c *Compiler) execution(p *Plan, bindings []evaluator.Binding, args []any) (*Execution, error) {
	values, err := evaluator.Resolve(bindings, args)
	if err != nil {
		return nil, err
	}
	stmt, cached, err := c.statement(p, values)
	if err != nil {
		return nil, err
	}
	params := stmt.Params
	if cached {
		if params, err = stmt.Refresh(values); err != nil {
			return nil, err
		}
	}
	return &Execution{Plan: p, Statement: stmt, Params: params, Values: values}, nil
}

// statement returns the formatted SQL of p. A cached template is reused
// when the plan formatted to a cacheable statement before.
func (c *Compiler) statement(p *Plan, values []any) (*sqlgen.Statement, bool, error) {
	if e, ok := c.statements.Get(p.Key); ok && e.shape == p.Shape {
		return e.statement, true, nil
	}
	stmt, err := sqlgen.Format(p.Tree, c.dialect, sqlgen.Options{Values: values})
	if err != nil {
		return nil, false, err
	}
	if stmt.Cacheable {
		c.statements.Set(p.Key, &statementEntry{shape: p.Shape, statement: stmt})
	} else {
		debug.Debug("Statement not cacheable", "key", p.Key)
	}
	return stmt, false, nil
}

// Stats reports the state of both caches.
type Stats struct {
	Plans      cache.Stats
	Statements cache.Stats
}

// Stats returns the cache statistics.
func (c *Compiler) Stats() Stats {
	return Stats{Plans: c.plans.Stats(), Statements: c.statements.Stats()}
}

// Collector returns a prometheus collector for the compiler caches.
func (c *Compiler) Collector(opts prometheus.Opts) prometheus.Collector {
	return cache.NewCollector(opts, c.plans, c.statements)
}

// Reset drops every cached plan and statement.
func (c *Compiler) Reset() {
	c.plans.Clear()
	c.statements.Clear()
}
