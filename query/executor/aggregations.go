package executor

import (
	"context"
	"io"
	"reflect"

	"github.com/satishbabariya/objql/query/ast"
)

// Aggregate reduces the results of the enumerator as the plan's client
// aggregator says. Without an aggregator the results are returned as a
// slice. The enumerator is closed on return.
func (e *Enumerator) Aggregate(ctx context.Context) (any, error) {
	switch e.plan.Aggregator {
	case ast.AggregatorFirst, ast.AggregatorFirstOrDefault:
		return e.first(ctx, e.plan.Aggregator == ast.AggregatorFirstOrDefault)
	case ast.AggregatorSingle, ast.AggregatorSingleOrDefault:
		return e.single(ctx, e.plan.Aggregator == ast.AggregatorSingleOrDefault)
	}
	return e.All(ctx)
}

// First returns the first result.
func (e *Enumerator) First(ctx context.Context) (any, error) { return e.first(ctx, false) }

// FirstOrDefault returns the first result or the zero value of the result
// type.
func (e *Enumerator) FirstOrDefault(ctx context.Context) (any, error) { return e.first(ctx, true) }

// Single returns the only result.
func (e *Enumerator) Single(ctx context.Context) (any, error) { return e.single(ctx, false) }

// SingleOrDefault returns the only result or the zero value of the result
// type.
func (e *Enumerator) SingleOrDefault(ctx context.Context) (any, error) { return e.single(ctx, true) }

func (e *Enumerator) first(ctx context.Context, orDefault bool) (any, error) {
	defer e.Close()
	v, err := e.Next(ctx)
	if err == io.EOF {
		return e.empty(orDefault)
	}
	return v, err
}

func (e *Enumerator) single(ctx context.Context, orDefault bool) (any, error) {
	defer e.Close()
	v, err := e.Next(ctx)
	if err == io.EOF {
		return e.empty(orDefault)
	}
	if err != nil {
		return nil, err
	}
	switch _, err := e.Next(ctx); {
	case err == io.EOF:
		return v, nil
	case err != nil:
		return nil, err
	}
	return nil, ErrMoreThanOneRow.New()
}

func (e *Enumerator) empty(orDefault bool) (any, error) {
	if !orDefault {
		return nil, ErrNoRows.New()
	}
	if e.plan.Type == nil {
		return nil, nil
	}
	return reflect.Zero(e.plan.Type).Interface(), nil
}
