// Package graph implements InheritanceIndex, the container's answer to
// "what implements this contract". Go has no class hierarchy to walk, so
// the index is built the way the rest of this engine treats every other
// open question: by direct reflect.Type.Implements checks against the set
// of concrete types the caller has registered, bookkept as an adjacency
// map the way a dependency graph would be.
package graph

import (
	"reflect"
	"sort"
	"sync"
)

// InheritanceIndex maps an interface type to the concrete types registered
// against it that satisfy it. It is safe for concurrent use; entries are
// added incrementally as constructors are registered and never removed for
// the lifetime of a container, matching the immutability of the
// configuration registry it supports.
type InheritanceIndex struct {
	mu           sync.RWMutex
	implementors map[reflect.Type][]reflect.Type
	seen         map[reflect.Type]map[reflect.Type]bool
}

// New creates an empty InheritanceIndex.
func New() *InheritanceIndex {
	return &InheritanceIndex{
		implementors: make(map[reflect.Type][]reflect.Type),
		seen:         make(map[reflect.Type]map[reflect.Type]bool),
	}
}

// Add records that concrete satisfies every interface type among ifaces
// that it actually implements, silently skipping any it does not. Adding
// the same (iface, concrete) pair twice is a no-op.
func (idx *InheritanceIndex) Add(concrete reflect.Type, ifaces []reflect.Type) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, iface := range ifaces {
		if iface.Kind() != reflect.Interface || !concrete.Implements(iface) {
			continue
		}

		dup, ok := idx.seen[iface]
		if !ok {
			dup = make(map[reflect.Type]bool)
			idx.seen[iface] = dup
		}
		if dup[concrete] {
			continue
		}
		dup[concrete] = true
		idx.implementors[iface] = append(idx.implementors[iface], concrete)
	}
}

// ImplementorsOf returns the concrete types currently known to implement
// iface, in registration order.
func (idx *InheritanceIndex) ImplementorsOf(iface reflect.Type) []reflect.Type {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	found := idx.implementors[iface]
	out := make([]reflect.Type, len(found))
	copy(out, found)
	return out
}

// Len reports the number of distinct interface types indexed.
func (idx *InheritanceIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.implementors)
}

// Interfaces returns every interface type currently indexed, sorted by
// name for deterministic iteration (diagnostics, tests).
func (idx *InheritanceIndex) Interfaces() []reflect.Type {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]reflect.Type, 0, len(idx.implementors))
	for iface := range idx.implementors {
		out = append(out, iface)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
