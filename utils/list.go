package utils

import (
	"cmp"
	"slices"
)

// OrderedList keeps its items sorted as they are added.
type OrderedList[T cmp.Ordered] struct {
	list []T
}

func NewOrderedList[T cmp.Ordered]() *OrderedList[T] {
	return &OrderedList[T]{
		list: make([]T, 0),
	}
}

func (o *OrderedList[T]) Len() int {
	return len(o.list)
}

// Add inserts item at its sorted position, keeping duplicates.
func (o *OrderedList[T]) Add(item T) *OrderedList[T] {
	i, _ := slices.BinarySearch(o.list, item)
	o.list = slices.Insert(o.list, i, item)
	return o
}

// AddNoDuplicate inserts item unless an equal item is already present.
func (o *OrderedList[T]) AddNoDuplicate(item T) *OrderedList[T] {
	i, found := slices.BinarySearch(o.list, item)
	if found {
		return o
	}
	o.list = slices.Insert(o.list, i, item)
	return o
}

// GetUnderlyingList returns the underlying list
// take care of the returned list
func (o *OrderedList[T]) GetUnderlyingList() []T {
	return o.list
}

// UnorderedList keeps items in insertion order.
type UnorderedList[T cmp.Ordered] struct {
	list []T
}

func NewUnorderedList[T cmp.Ordered]() *UnorderedList[T] {
	return &UnorderedList[T]{
		list: make([]T, 0),
	}
}

func (o *UnorderedList[T]) Len() int {
	return len(o.list)
}

func (o *UnorderedList[T]) Add(item T) *UnorderedList[T] {
	o.list = append(o.list, item)
	return o
}

// GetUnderlyingList returns the underlying list
// take care of the returned list
func (o *UnorderedList[T]) GetUnderlyingList() []T {
	return o.list
}
