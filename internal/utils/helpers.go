package utils

import "github.com/samber/lo"

// Set is a membership set over comparable values.
type Set[T comparable] map[T]struct{}

// NewSet builds a Set holding items. Duplicates collapse.
func NewSet[T comparable](items ...T) Set[T] {
	return lo.SliceToMap(items, func(item T) (T, struct{}) {
		return item, struct{}{}
	})
}

// Allows reports whether v passes a filter built from s. An empty set allows everything.
func (s Set[T]) Allows(v T) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[v]
	return ok
}

// Has reports whether v is in s.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}
