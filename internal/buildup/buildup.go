// Package buildup implements the DependenciesInjector collaborator behind
// Container.BuildUp: filling the exported, `inject`-tagged fields of an
// already-constructed value without routing through the main
// ServiceCache. It is a thin wrapper around go.uber.org/dig, the same
// constructor-graph library the wider ecosystem reaches for when a
// narrower field-injection job doesn't need contract scoping, cycle
// bookkeeping, or memoization.
package buildup

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/dig"
)

// Injector builds up values by resolving and assigning their tagged
// fields. It is safe for concurrent use.
type Injector struct {
	mu sync.Mutex
	c  *dig.Container
}

// New creates an Injector with an empty dig graph.
func New() *Injector {
	return &Injector{c: dig.New()}
}

// Provide registers ctor as the way to produce one of BuildUp's candidate
// field types. ctor follows dig's own constructor conventions: any
// number of parameters, returning a value and an optional error.
func (i *Injector) Provide(ctor any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.c.Provide(ctor)
}

// BuildUp fills every exported field of target (a pointer to a struct)
// tagged `inject:"true"` with a value resolved from the injector's graph.
// Fields without the tag are left untouched. A struct with no tagged
// fields is a no-op, not an error.
func (i *Injector) BuildUp(target any) error {
	if target == nil {
		return fmt.Errorf("build up target cannot be nil")
	}

	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("build up target must be a non-nil pointer to a struct")
	}

	elem := v.Elem()
	structType := elem.Type()

	var fieldIdx []int
	var fieldTypes []reflect.Type
	for fi := 0; fi < structType.NumField(); fi++ {
		f := structType.Field(fi)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("inject"); !ok || tag != "true" {
			continue
		}
		fieldIdx = append(fieldIdx, fi)
		fieldTypes = append(fieldTypes, f.Type)
	}

	if len(fieldIdx) == 0 {
		return nil
	}

	assign := reflect.MakeFunc(reflect.FuncOf(fieldTypes, nil, false), func(args []reflect.Value) []reflect.Value {
		for n, arg := range args {
			elem.Field(fieldIdx[n]).Set(arg)
		}
		return nil
	})

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.c.Invoke(assign.Interface())
}
