// Package predicate provides composable filters over in-memory records, the
// equivalent of the compound predicates a query engine would evaluate.
package predicate

import "strings"

// Predicate reports whether a record matches.
type Predicate[T any] func(T) bool

// True matches everything.
func True[T any]() Predicate[T] {
	return func(T) bool { return true }
}

// And matches when every predicate matches. An empty And matches everything.
func And[T any](ps ...Predicate[T]) Predicate[T] {
	return func(v T) bool {
		for _, p := range ps {
			if !p(v) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches. An empty Or matches nothing.
func Or[T any](ps ...Predicate[T]) Predicate[T] {
	return func(v T) bool {
		for _, p := range ps {
			if p(v) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not[T any](p Predicate[T]) Predicate[T] {
	return func(v T) bool { return !p(v) }
}

// ContainsFold is a case-insensitive substring test.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Filter returns the elements of items that match p, preserving order.
func Filter[T any](items []T, p Predicate[T]) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if p(it) {
			out = append(out, it)
		}
	}
	return out
}
