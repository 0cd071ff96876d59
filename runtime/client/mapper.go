package client

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/satishbabariya/objql/query/builder"
	"github.com/satishbabariya/objql/query/executor"
	"github.com/satishbabariya/objql/query/mapping"
)

// Runner is implemented by Client and Tx.
type Runner interface {
	Query(ctx context.Context, q *builder.Query, args ...any) (*executor.Enumerator, error)
}

// ToSlice runs q and collects its results as T.
func ToSlice[T any](ctx context.Context, r Runner, q *builder.Query, args ...any) ([]T, error) {
	e, err := r.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	var results []T
	for v, err := range e.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		t, err := as[T](v)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, nil
}

// First runs q and returns its first result as T. It fails with
// executor.ErrNoRows when there is none.
func First[T any](ctx context.Context, r Runner, q *builder.Query, args ...any) (T, error) {
	var zero T
	e, err := r.Query(ctx, q, args...)
	if err != nil {
		return zero, err
	}
	v, err := e.First(ctx)
	if err != nil {
		return zero, err
	}
	return as[T](v)
}

// Scalar runs q, whose plan ends in a client aggregator such as First or
// Single, and returns the aggregated value as T.
func Scalar[T any](ctx context.Context, r Runner, q *builder.Query, args ...any) (T, error) {
	var zero T
	e, err := r.Query(ctx, q, args...)
	if err != nil {
		return zero, err
	}
	v, err := e.Aggregate(ctx)
	if err != nil {
		return zero, err
	}
	return as[T](v)
}

func as[T any](v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("result is %T, not %s", v, reflect.TypeOf((*T)(nil)).Elem())
	}
	return t, nil
}

// IdentityMap keeps one instance per entity key. Entities loaded again
// resolve to the instance loaded first.
type IdentityMap struct {
	model *mapping.Model
	mu    sync.Mutex
	objs  map[identityKey]any
}

type identityKey struct {
	typ reflect.Type
	key string
}

// NewIdentityMap returns an empty identity map over model.
func NewIdentityMap(model *mapping.Model) *IdentityMap {
	return &IdentityMap{model: model, objs: make(map[identityKey]any)}
}

func (m *IdentityMap) keyOf(obj any) (identityKey, bool) {
	t := reflect.TypeOf(obj)
	desc, err := m.model.Entity(t)
	if err != nil || len(desc.Keys) == 0 {
		return identityKey{}, false
	}
	key := desc.KeyOf(obj)
	if key == nil {
		return identityKey{}, false
	}
	return identityKey{typ: t, key: fmt.Sprintf("%#v", key)}, true
}

// Submit returns the canonical instance for obj.
func (m *IdentityMap) Submit(obj any) any {
	k, ok := m.keyOf(obj)
	if !ok {
		return obj
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.objs[k]; ok {
		return cur
	}
	m.objs[k] = obj
	return obj
}

// Forget drops obj so the next load creates a new instance.
func (m *IdentityMap) Forget(obj any) {
	k, ok := m.keyOf(obj)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objs, k)
}

// Len returns the number of tracked instances.
func (m *IdentityMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objs)
}

// Clear forgets every instance.
func (m *IdentityMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs = make(map[identityKey]any)
}
