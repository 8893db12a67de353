// Package registry holds the frozen ConfigurationRegistry the resolution
// engine consults: (type, active contract stack) -> *ServiceConfiguration.
// It is populated through a small fluent Builder and is immutable once
// Build() has produced a Registry, matching spec.md's requirement that
// configuration is frozen for the lifetime of a container.
package registry

import (
	"fmt"
	"reflect"
	"strings"
)

// ParameterOverride overrides a single constructor parameter by name.
type ParameterOverride struct {
	HasValue           bool
	Value              any
	Factory            func(resolve func(reflect.Type) (any, error)) (any, error)
	ImplementationType reflect.Type
}

// ImplicitDependency names an additional service to resolve alongside a
// type's constructor parameters.
type ImplicitDependency struct {
	Type      reflect.Type
	Contracts []string
}

// ServiceConfiguration is a record produced by the configuration layer.
// Every field is optional and independent unless documented otherwise.
type ServiceConfiguration struct {
	// ImplementationAssigned is a concrete instance to reuse; mutually
	// exclusive with Factory/FactoryWithTarget.
	ImplementationAssigned any

	// Factory builds the instance directly given the resolving container.
	Factory func(resolve func(reflect.Type) (any, error)) (any, error)

	// FactoryWithTarget additionally receives the requesting parent type;
	// the produced service's identity incorporates that type as an extra
	// contract.
	FactoryWithTarget func(resolve func(reflect.Type) (any, error), parent reflect.Type) (any, error)

	// ImplementationTypes is an explicit candidate list, overriding the
	// automatic interface-implementor scan.
	ImplementationTypes []reflect.Type

	// UseAutosearch unions ImplementationTypes with the scanned
	// interface-implementor set instead of replacing it.
	UseAutosearch bool

	IgnoredImplementation bool
	DontUse               bool

	// ExternallyOwned opts an instance out of container-managed disposal
	// (e.g. a shared connection someone else closes). The zero value
	// means the container owns and disposes the instance, matching the
	// common case of leaving this field unset.
	ExternallyOwned bool

	InstanceFilter func(any) bool

	ImplicitDependencies []ImplicitDependency

	// ParameterOverrides is keyed by constructor parameter name.
	ParameterOverrides map[string]ParameterOverride

	// PerRequest marks a type that can only be produced via Create, never
	// via the singleton-style Resolve path.
	PerRequest bool
}

type scopedKey struct {
	Type     reflect.Type
	Contract string
}

// Registry is the immutable, read-only configuration lookup the resolver
// consumes.
type Registry struct {
	generic map[reflect.Type]*ServiceConfiguration
	scoped  map[scopedKey]*ServiceConfiguration
	unions  map[string][]string
}

// Get returns the configuration for type under the given active contract
// stack, or nil if nothing is configured. Scoped overlays are consulted
// from the most recently pushed contract backwards; the first match wins.
// Falling back to the unscoped/generic definition happens last.
func (r *Registry) Get(t reflect.Type, activeContracts []string) *ServiceConfiguration {
	for i := len(activeContracts) - 1; i >= 0; i-- {
		key := scopedKey{Type: t, Contract: strings.ToLower(activeContracts[i])}
		if cfg, ok := r.scoped[key]; ok {
			return cfg
		}
	}

	if cfg, ok := r.generic[t]; ok {
		return cfg
	}

	return nil
}

// LookupUnion reports the member contracts of a union alias, if name was
// registered as one.
func (r *Registry) LookupUnion(name string) ([]string, bool) {
	members, ok := r.unions[strings.ToLower(name)]
	return members, ok
}

// Builder assembles a Registry. It is not safe for concurrent use; build
// configuration from a single goroutine before calling Build.
type Builder struct {
	generic map[reflect.Type]*ServiceConfiguration
	scoped  map[scopedKey]*ServiceConfiguration
	unions  map[string][]string
}

// NewBuilder creates an empty configuration builder.
func NewBuilder() *Builder {
	return &Builder{
		generic: make(map[reflect.Type]*ServiceConfiguration),
		scoped:  make(map[scopedKey]*ServiceConfiguration),
		unions:  make(map[string][]string),
	}
}

// Bind registers cfg as the unscoped configuration for t, overwriting any
// previous unscoped configuration.
func (b *Builder) Bind(t reflect.Type, cfg *ServiceConfiguration) *Builder {
	b.generic[t] = cfg
	return b
}

// BindContract registers cfg scoped to a single contract name for t.
func (b *Builder) BindContract(t reflect.Type, contract string, cfg *ServiceConfiguration) *Builder {
	b.scoped[scopedKey{Type: t, Contract: strings.ToLower(contract)}] = cfg
	return b
}

// Union registers name as an alias expanding to members.
func (b *Builder) Union(name string, members ...string) *Builder {
	b.unions[strings.ToLower(name)] = members
	return b
}

// MustBuild is like Build but panics on error, for startup wiring code
// where a malformed registry is a programming error.
func (b *Builder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

// Build freezes the builder into an immutable Registry.
func (b *Builder) Build() (*Registry, error) {
	for k, cfg := range b.generic {
		if cfg.ImplementationAssigned != nil && (cfg.Factory != nil || cfg.FactoryWithTarget != nil) {
			return nil, fmt.Errorf("registry: %v configures both an assigned instance and a factory", k)
		}
	}

	r := &Registry{
		generic: make(map[reflect.Type]*ServiceConfiguration, len(b.generic)),
		scoped:  make(map[scopedKey]*ServiceConfiguration, len(b.scoped)),
		unions:  make(map[string][]string, len(b.unions)),
	}
	for k, v := range b.generic {
		r.generic[k] = v
	}
	for k, v := range b.scoped {
		r.scoped[k] = v
	}
	for k, v := range b.unions {
		r.unions[k] = v
	}

	return r, nil
}

// Overlay builds a Registry that consults extra before falling back to
// base, used by Container.Clone to layer configuration changes onto a
// sibling container without mutating the original.
func Overlay(base, extra *Registry) *Registry {
	r := &Registry{
		generic: make(map[reflect.Type]*ServiceConfiguration, len(base.generic)+len(extra.generic)),
		scoped:  make(map[scopedKey]*ServiceConfiguration, len(base.scoped)+len(extra.scoped)),
		unions:  make(map[string][]string, len(base.unions)+len(extra.unions)),
	}
	for k, v := range base.generic {
		r.generic[k] = v
	}
	for k, v := range base.scoped {
		r.scoped[k] = v
	}
	for k, v := range base.unions {
		r.unions[k] = v
	}
	for k, v := range extra.generic {
		r.generic[k] = v
	}
	for k, v := range extra.scoped {
		r.scoped[k] = v
	}
	for k, v := range extra.unions {
		r.unions[k] = v
	}
	return r
}
