package index

import (
	"context"
	"iter"

	"github.com/Aman-CERP/annodex/pkg/element"
)

// FilterIterator passes through the elements of a base iterator that
// match a predicate, converted to T. It is as lazy as its base.
type FilterIterator[T element.Element] struct {
	base    *Iterator
	match   func(element.Element) (T, bool)
	current T
}

// NewFilter wraps base with match.
func NewFilter[T element.Element](base *Iterator, match func(element.Element) (T, bool)) *FilterIterator[T] {
	return &FilterIterator[T]{base: base, match: match}
}

// Next advances to the next matching element.
func (f *FilterIterator[T]) Next() bool {
	for f.base.Next() {
		if v, ok := f.match(f.base.Element()); ok {
			f.current = v
			return true
		}
	}
	var zero T
	f.current = zero
	return false
}

// Element returns the current element.
func (f *FilterIterator[T]) Element() T {
	return f.current
}

// Err returns the base iterator's error.
func (f *FilterIterator[T]) Err() error {
	return f.base.Err()
}

// All adapts the iterator to a range-over-func sequence.
func (f *FilterIterator[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for f.Next() {
			if !yield(f.Element()) {
				return
			}
		}
	}
}

// ListOf lists the annotated elements of concrete type T, such as
// *element.Method.
func ListOf[T element.Element](ctx context.Context, annotation string, src Source, opts ...ListOption) (*FilterIterator[T], error) {
	base, err := List(ctx, annotation, src, opts...)
	if err != nil {
		return nil, err
	}
	return NewFilter(base, func(e element.Element) (T, bool) {
		v, ok := e.(T)
		return v, ok
	}), nil
}

// ListKind lists the annotated elements whose kind is one of kinds.
func ListKind(ctx context.Context, annotation string, src Source, kinds []element.Kind, opts ...ListOption) (*FilterIterator[element.Element], error) {
	base, err := List(ctx, annotation, src, opts...)
	if err != nil {
		return nil, err
	}
	return Filter(base, func(e element.Element) bool {
		for _, k := range kinds {
			if e.Kind() == k {
				return true
			}
		}
		return false
	}), nil
}

// Filter keeps the elements of base for which keep returns true.
func Filter(base *Iterator, keep func(element.Element) bool) *FilterIterator[element.Element] {
	return NewFilter(base, func(e element.Element) (element.Element, bool) {
		return e, keep(e)
	})
}
