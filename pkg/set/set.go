// Package set provides a small generic set used for active-state
// configurations.
package set

import "iter"

type Set[T comparable] map[T]struct{}

func New[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	s.Add(items...)
	return s
}

// Add inserts items into the set.
func (s Set[T]) Add(items ...T) {
	for _, item := range items {
		s[item] = struct{}{}
	}
}

// Remove deletes an item from the set.
func (s Set[T]) Remove(item T) {
	delete(s, item)
}

// Contains reports whether the item is in the set.
func (s Set[T]) Contains(item T) bool {
	_, ok := s[item]
	return ok
}

// ContainsAll reports whether every item is in the set.
func (s Set[T]) ContainsAll(items ...T) bool {
	for _, item := range items {
		if !s.Contains(item) {
			return false
		}
	}
	return true
}

// Size returns the number of items in the set.
func (s Set[T]) Size() int {
	return len(s)
}

// Items returns the items as a sequence, in no particular order.
func (s Set[T]) Items() iter.Seq[T] {
	return func(yield func(T) bool) {
		for item := range s {
			if !yield(item) {
				return
			}
		}
	}
}

// Union returns a new set with the items of both sets.
func (s Set[T]) Union(other Set[T]) Set[T] {
	out := make(Set[T], len(s)+len(other))
	for item := range s {
		out[item] = struct{}{}
	}
	for item := range other {
		out[item] = struct{}{}
	}
	return out
}

// Difference returns a new set with the items of s that are not in other.
func (s Set[T]) Difference(other Set[T]) Set[T] {
	out := make(Set[T], len(s))
	for item := range s {
		if !other.Contains(item) {
			out[item] = struct{}{}
		}
	}
	return out
}
