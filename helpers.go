package container

import "reflect"

// Resolve is a type-safe wrapper around Container.Resolve for the common
// case of a single, non-enumerable result.
func Resolve[T any](c *Container, contractNames ...string) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()

	resolved := c.Resolve(t, contractNames...)
	v, err := resolved.Instance()
	if err != nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		return zero, &ValidationError{ServiceType: t, Message: "resolved value does not implement the requested type"}
	}
	return typed, nil
}

// MustResolve panics if Resolve fails; intended for wiring code at
// startup where a missing dependency is a programming error.
func MustResolve[T any](c *Container, contractNames ...string) T {
	v, err := Resolve[T](c, contractNames...)
	if err != nil {
		panic(err)
	}
	return v
}

// Create is a type-safe wrapper around Container.Create for the common
// case of a single, non-enumerable result.
func Create[T any](c *Container, arguments map[string]any, contractNames ...string) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()

	v, err := c.Create(t, arguments, contractNames...)
	if err != nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		return zero, &ValidationError{ServiceType: t, Message: "created value does not implement the requested type"}
	}
	return typed, nil
}
