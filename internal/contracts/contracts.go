// Package contracts implements the identity and scoping primitives the
// resolution engine is built on: ServiceName (a type qualified by an ordered
// contract stack) and ContractsList (the mutable contract stack threaded
// through one resolution).
package contracts

import (
	"fmt"
	"reflect"
	"strings"
)

// ServiceName identifies a requested service: a type plus the ordered stack
// of contracts active when it was requested. Equality is modulo contract
// case, per spec.
type ServiceName struct {
	Type      reflect.Type
	Contracts []string
}

// New builds a ServiceName, rejecting empty or duplicate (case-insensitive)
// contract names.
func New(t reflect.Type, names []string) (ServiceName, error) {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			return ServiceName{}, fmt.Errorf("contract name cannot be empty")
		}
		lower := strings.ToLower(n)
		if _, ok := seen[lower]; ok {
			return ServiceName{}, fmt.Errorf("invalid contracts %s - duplicates found", formatContracts(names))
		}
		seen[lower] = struct{}{}
	}

	cp := make([]string, len(names))
	copy(cp, names)
	return ServiceName{Type: t, Contracts: cp}, nil
}

// Key returns a canonical, comparable identity for this name: the
// underlying type plus the contract stack lower-cased and joined. Two
// ServiceNames that differ only by contract case produce the same Key.
func (s ServiceName) Key() string {
	if len(s.Contracts) == 0 {
		return s.Type.String()
	}

	lowered := make([]string, len(s.Contracts))
	for i, c := range s.Contracts {
		lowered[i] = strings.ToLower(c)
	}

	return s.Type.String() + "[" + strings.Join(lowered, ",") + "]"
}

// WithContracts returns a copy of s using the given contract stack.
func (s ServiceName) WithContracts(contracts []string) ServiceName {
	cp := make([]string, len(contracts))
	copy(cp, contracts)
	return ServiceName{Type: s.Type, Contracts: cp}
}

// String renders the name for error messages and construction logs.
func (s ServiceName) String() string {
	if len(s.Contracts) == 0 {
		return s.Type.String()
	}
	return fmt.Sprintf("%v%s", s.Type, formatContracts(s.Contracts))
}

func formatContracts(names []string) string {
	return "[" + strings.Join(names, ",") + "]"
}

// PushResult reports the outcome of a ContractsList.Push call.
type PushResult struct {
	OK         bool
	Pushed     int
	Duplicated string
}

// ContractsList is the active contract stack during one resolution. It is
// thread-confined to a single ResolutionContext — per spec §5, a
// ResolutionContext is never shared across goroutines, so no internal
// locking is required here.
type ContractsList struct {
	stack []string
}

// NewContractsList creates an empty contract stack.
func NewContractsList() *ContractsList {
	return &ContractsList{}
}

// Push appends names to the stack, case-insensitively rejecting any name
// already present. On failure nothing is pushed.
func (c *ContractsList) Push(names []string) PushResult {
	if len(names) == 0 {
		return PushResult{OK: true}
	}

	present := make(map[string]struct{}, len(c.stack)+len(names))
	for _, existing := range c.stack {
		present[strings.ToLower(existing)] = struct{}{}
	}

	for _, n := range names {
		lower := strings.ToLower(n)
		if _, ok := present[lower]; ok {
			return PushResult{OK: false, Duplicated: n}
		}
		present[lower] = struct{}{}
	}

	c.stack = append(c.stack, names...)
	return PushResult{OK: true, Pushed: len(names)}
}

// Pop removes and returns the last n entries, in their original order.
func (c *ContractsList) Pop(n int) []string {
	if n <= 0 || n > len(c.stack) {
		return nil
	}

	idx := len(c.stack) - n
	popped := make([]string, n)
	copy(popped, c.stack[idx:])
	c.stack = c.stack[:idx]
	return popped
}

// Snapshot returns a copy of the current ordered stack.
func (c *ContractsList) Snapshot() []string {
	cp := make([]string, len(c.stack))
	copy(cp, c.stack)
	return cp
}

// Len reports the number of active contracts.
func (c *ContractsList) Len() int {
	return len(c.stack)
}

// UnionLookup resolves a contract name to the set of contracts it expands
// to, when that name is a registered union alias.
type UnionLookup func(name string) ([]string, bool)

// ExpandUnions inspects tail (the suffix most recently pushed onto the
// stack) and, for every contract in it that is a union alias, replaces it
// with its member contracts. It returns the Cartesian product of all
// expansions as alternative contract stacks of the same length as tail.
// expanded is false when no element of tail is a union, in which case the
// caller should proceed with tail unchanged.
func ExpandUnions(tail []string, lookup UnionLookup) (combos [][]string, expanded bool) {
	if lookup == nil {
		return nil, false
	}

	options := make([][]string, len(tail))
	anyUnion := false
	for i, name := range tail {
		if members, ok := lookup(name); ok && len(members) > 0 {
			options[i] = members
			anyUnion = true
		} else {
			options[i] = []string{name}
		}
	}

	if !anyUnion {
		return nil, false
	}

	combos = [][]string{{}}
	for _, opts := range options {
		next := make([][]string, 0, len(combos)*len(opts))
		for _, combo := range combos {
			for _, opt := range opts {
				branch := make([]string, len(combo)+1)
				copy(branch, combo)
				branch[len(combo)] = opt
				next = append(next, branch)
			}
		}
		combos = next
	}

	return combos, true
}
