package jobs

import (
	"github.com/emirpasic/gods/sets/treeset"
)

// Registry indexes values by integer id and iterates them in ascending id order. It is not safe
// for concurrent use; callers lock around it.
type Registry[T any] struct {
	ids  *treeset.Set
	byID map[int]T
}

// NewRegistry constructs an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		ids:  treeset.NewWithIntComparator(),
		byID: make(map[int]T),
	}
}

// Add registers v under id. It returns false, leaving the registry unchanged, if id is taken.
func (r *Registry[T]) Add(id int, v T) bool {
	if _, ok := r.byID[id]; ok {
		return false
	}
	r.ids.Add(id)
	r.byID[id] = v
	return true
}

// Get returns the value registered under id.
func (r *Registry[T]) Get(id int) (T, bool) {
	v, ok := r.byID[id]
	return v, ok
}

// Len returns the number of registered values.
func (r *Registry[T]) Len() int {
	return len(r.byID)
}

// Each calls f in ascending id order until it returns false.
func (r *Registry[T]) Each(f func(id int, v T) bool) {
	it := r.ids.Iterator()
	for it.Next() {
		id := it.Value().(int)
		if !f(id, r.byID[id]) {
			return
		}
	}
}

// Values returns the registered values in ascending id order.
func (r *Registry[T]) Values() []T {
	vs := make([]T, 0, r.Len())
	r.Each(func(_ int, v T) bool {
		vs = append(vs, v)
		return true
	})
	return vs
}
