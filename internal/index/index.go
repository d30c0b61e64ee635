// Package index maintains the derived secondary indexes of the inventory:
// mappings from a key to the set of entity ids currently associated with it.
//
// Indexes are a redundant view of the canonical collections. They carry no
// locking of their own; the owner serializes access.
package index

import (
	"cmp"

	"golang.org/x/exp/slices"
)

// Index maps a key to a set of ids. A key whose set becomes empty is
// removed, so Has never reports a key without members.
type Index[K comparable, V cmp.Ordered] struct {
	sets map[K]map[V]struct{}
}

// New returns an empty index.
func New[K comparable, V cmp.Ordered]() *Index[K, V] {
	return &Index[K, V]{sets: make(map[K]map[V]struct{})}
}

// Add inserts id into the set keyed by key, creating the set if absent.
func (x *Index[K, V]) Add(key K, id V) {
	set, ok := x.sets[key]
	if !ok {
		set = make(map[V]struct{})
		x.sets[key] = set
	}
	set[id] = struct{}{}
}

// Remove deletes id from the set keyed by key and drops the key once the set
// is empty. Removing an absent id is a no-op.
func (x *Index[K, V]) Remove(key K, id V) {
	set, ok := x.sets[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(x.sets, key)
	}
}

// Members returns a sorted copy of the ids keyed by key, or nil.
func (x *Index[K, V]) Members(key K) []V {
	set, ok := x.sets[key]
	if !ok {
		return nil
	}
	out := make([]V, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Each calls fn for every id keyed by key until fn returns false.
func (x *Index[K, V]) Each(key K, fn func(id V) bool) {
	for id := range x.sets[key] {
		if !fn(id) {
			return
		}
	}
}

// Has reports whether key has at least one member.
func (x *Index[K, V]) Has(key K) bool {
	_, ok := x.sets[key]
	return ok
}

// Contains reports whether id is a member of the set keyed by key.
func (x *Index[K, V]) Contains(key K, id V) bool {
	_, ok := x.sets[key][id]
	return ok
}

// Count returns the number of ids keyed by key.
func (x *Index[K, V]) Count(key K) int {
	return len(x.sets[key])
}

// Len returns the number of keys.
func (x *Index[K, V]) Len() int {
	return len(x.sets)
}

// Keys returns every key in arbitrary order.
func (x *Index[K, V]) Keys() []K {
	out := make([]K, 0, len(x.sets))
	for k := range x.sets {
		out = append(out, k)
	}
	return out
}

// Clear removes every key.
func (x *Index[K, V]) Clear() {
	clear(x.sets)
}

// Clone returns an independent copy of the index.
func (x *Index[K, V]) Clone() *Index[K, V] {
	out := &Index[K, V]{sets: make(map[K]map[V]struct{}, len(x.sets))}
	for k, set := range x.sets {
		cp := make(map[V]struct{}, len(set))
		for id := range set {
			cp[id] = struct{}{}
		}
		out.sets[k] = cp
	}
	return out
}

// Equal reports whether both indexes hold exactly the same keys and members.
func (x *Index[K, V]) Equal(other *Index[K, V]) bool {
	if len(x.sets) != len(other.sets) {
		return false
	}
	for k, set := range x.sets {
		o, ok := other.sets[k]
		if !ok || len(o) != len(set) {
			return false
		}
		for id := range set {
			if _, ok := o[id]; !ok {
				return false
			}
		}
	}
	return true
}

// Map returns a plain copy of the index with sorted members, for diffs and
// debugging output.
func (x *Index[K, V]) Map() map[K][]V {
	out := make(map[K][]V, len(x.sets))
	for k := range x.sets {
		out[k] = x.Members(k)
	}
	return out
}
