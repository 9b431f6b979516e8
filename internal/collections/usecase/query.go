package usecase

import (
	"context"
	"iter"

	"docdb-binder/internal/collections/domain/client"
	"docdb-binder/internal/collections/domain/model"
	"docdb-binder/internal/shared/errors"
)

// Query is an immutable, lazily evaluated query over one collection. Builder methods
// return a new Query; nothing reaches the database until Iter, Seq, All, First or Count.
type Query[T model.Model] struct {
	client client.DatabaseClient
	handle *model.CollectionHandle
	spec   model.QuerySpec
	err    error
}

func newQuery[T model.Model](c client.DatabaseClient, handle *model.CollectionHandle) *Query[T] {
	return &Query[T]{client: c, handle: handle}
}

func (q *Query[T]) derive(mutate func(spec *model.QuerySpec) error) *Query[T] {
	next := &Query[T]{client: q.client, handle: q.handle, spec: q.spec.Clone(), err: q.err}
	if next.err == nil {
		next.err = mutate(&next.spec)
	}
	return next
}

// Where adds a filter; filters are ANDed.
func (q *Query[T]) Where(field string, op model.Operator, value interface{}) *Query[T] {
	return q.derive(func(spec *model.QuerySpec) error {
		if field == "" {
			return errors.NewValidationError("query filter field cannot be empty")
		}
		if !op.Valid() {
			return errors.NewValidationError("unsupported query operator").WithDetail("operator", string(op))
		}
		spec.Filters = append(spec.Filters, model.Filter{Field: field, Operator: op, Value: value})
		return nil
	})
}

// WhereEqual is shorthand for Where(field, OperatorEqual, value).
func (q *Query[T]) WhereEqual(field string, value interface{}) *Query[T] {
	return q.Where(field, model.OperatorEqual, value)
}

// OrderBy appends a sort key.
func (q *Query[T]) OrderBy(field string, direction model.Direction) *Query[T] {
	return q.derive(func(spec *model.QuerySpec) error {
		if field == "" {
			return errors.NewValidationError("order field cannot be empty")
		}
		if direction != model.Ascending && direction != model.Descending {
			return errors.NewValidationError("unsupported order direction").WithDetail("direction", string(direction))
		}
		spec.Orders = append(spec.Orders, model.Order{Field: field, Direction: direction})
		return nil
	})
}

// Limit caps the number of results. Zero means no limit.
func (q *Query[T]) Limit(n int64) *Query[T] {
	return q.derive(func(spec *model.QuerySpec) error {
		if n < 0 {
			return errors.NewValidationError("limit cannot be negative")
		}
		spec.Limit = n
		return nil
	})
}

// Skip discards the first n results.
func (q *Query[T]) Skip(n int64) *Query[T] {
	return q.derive(func(spec *model.QuerySpec) error {
		if n < 0 {
			return errors.NewValidationError("skip cannot be negative")
		}
		spec.Skip = n
		return nil
	})
}

// Spec returns a copy of the query description, or the first builder error.
func (q *Query[T]) Spec() (model.QuerySpec, error) {
	return q.spec.Clone(), q.err
}

// Iter executes the query and returns an iterator over the results.
// The caller must Close the iterator.
func (q *Query[T]) Iter(ctx context.Context) (*Iterator[T], error) {
	if q.err != nil {
		return nil, q.err
	}
	cur, err := q.client.Query(ctx, q.handle, q.spec.Clone())
	if err != nil {
		return nil, err
	}
	return &Iterator[T]{cursor: cur}, nil
}

// Seq executes the query when ranged over and yields each decoded result.
// A failure is yielded once as a zero value with a non-nil error, ending the sequence.
func (q *Query[T]) Seq(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		it, err := q.Iter(ctx)
		if err != nil {
			yield(zero, err)
			return
		}
		defer it.Close(ctx)

		for it.Next(ctx) {
			if !yield(it.Value(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// All executes the query and materializes every result.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	it, err := q.Iter(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close(ctx)

	out := make([]T, 0)
	for it.Next(ctx) {
		out = append(out, it.Value())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// First executes the query with a limit of one. The boolean is false when nothing matched.
func (q *Query[T]) First(ctx context.Context) (T, bool, error) {
	var zero T
	results, err := q.Limit(1).All(ctx)
	if err != nil {
		return zero, false, err
	}
	if len(results) == 0 {
		return zero, false, nil
	}
	return results[0], true, nil
}

// Count returns the number of matching documents. Clients implementing client.Counter
// count on the backend; otherwise results are streamed and counted.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	if counter, ok := q.client.(client.Counter); ok {
		return counter.Count(ctx, q.handle, q.spec.Clone())
	}

	it, err := q.Iter(ctx)
	if err != nil {
		return 0, err
	}
	defer it.Close(ctx)

	var n int64
	for it.Next(ctx) {
		n++
	}
	return n, it.Err()
}

// Iterator decodes query results one at a time.
type Iterator[T model.Model] struct {
	cursor  client.Cursor
	current T
	err     error
}

// Next advances to the next result, decoding it. It returns false at the end or on error.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if !it.cursor.Next(ctx) {
		return false
	}
	var v T
	if err := it.cursor.Decode(&v); err != nil {
		it.err = err
		return false
	}
	it.current = v
	return true
}

// Value returns the result decoded by the last successful Next.
func (it *Iterator[T]) Value() T { return it.current }

// Err returns the first decode or cursor error.
func (it *Iterator[T]) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.cursor.Err()
}

// Close releases the underlying cursor.
func (it *Iterator[T]) Close(ctx context.Context) error {
	return it.cursor.Close(ctx)
}
