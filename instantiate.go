package container

import (
	"fmt"
	"reflect"

	"github.com/artem-zyryanov/simple-container/internal/contracts"
	"github.com/artem-zyryanov/simple-container/internal/reflection"
	"github.com/artem-zyryanov/simple-container/internal/registry"
)

// instantiate is the entry point for turning a configured builder into
// concrete instances: the precondition ladder from the simple-type
// rejection down to the interface-vs-implementation split. Value types and
// open generics get no check of their own here.
func (c *Container) instantiate(ctx *ResolutionContext, b *ServiceBuilder, cfg *registry.ServiceConfiguration) {
	t := b.serviceName.Type

	if reflection.IsSimpleType(t) {
		b.setError("can't create simple type")
		return
	}

	if t == containerType {
		b.addInstance(reflect.ValueOf(c))
		b.setOk()
		return
	}

	if cfg.ImplementationAssigned != nil {
		b.addInstance(reflect.ValueOf(cfg.ImplementationAssigned))
		b.setOk()
		applyInstanceFilter(b, cfg)
		return
	}

	if cfg.Factory != nil {
		resolve := c.resolveFunc(ctx)
		v, err := cfg.Factory(resolve)
		if err != nil {
			b.setError(err.Error())
			return
		}
		b.addInstance(reflect.ValueOf(v))
		b.setOk()
		applyInstanceFilter(b, cfg)
		return
	}

	if cfg.FactoryWithTarget != nil {
		var parent reflect.Type
		if len(ctx.stack) >= 2 {
			parent = ctx.stack[len(ctx.stack)-2].serviceName.Type
		}
		resolve := c.resolveFunc(ctx)
		v, err := cfg.FactoryWithTarget(resolve, parent)
		if err != nil {
			b.setError(err.Error())
			return
		}
		b.addInstance(reflect.ValueOf(v))
		b.setOk()
		applyInstanceFilter(b, cfg)
		return
	}

	if cfg.PerRequest && !b.createNew {
		b.setError(ErrPerRequestViaResolve.Error() + "; use a factory instead")
		return
	}

	if t.Kind() == reflect.Interface {
		c.instantiateInterface(ctx, b, cfg)
	} else {
		c.instantiateImplementation(ctx, b, cfg)
	}

	applyInstanceFilter(b, cfg)
}

func applyInstanceFilter(b *ServiceBuilder, cfg *registry.ServiceConfiguration) {
	if cfg == nil || cfg.InstanceFilter == nil || len(b.instances) == 0 {
		return
	}
	kept := b.instances[:0:0]
	dropped := 0
	for _, inst := range b.instances {
		if cfg.InstanceFilter(inst.Interface()) {
			kept = append(kept, inst)
		} else {
			dropped++
		}
	}
	b.instances = kept
	if dropped > 0 {
		b.addDependency(DependencyRecord{Name: b.serviceName, Comment: fmt.Sprintf("instance filter dropped %d candidate(s)", dropped), Status: StatusNotResolved})
	}
}

// resolveFunc adapts resolveCore into the narrow (reflect.Type) -> (any,
// error) shape ServiceConfiguration.Factory expects.
func (c *Container) resolveFunc(ctx *ResolutionContext) func(reflect.Type) (any, error) {
	return func(t reflect.Type) (any, error) {
		name, err := contracts.New(t, nil)
		if err != nil {
			return nil, err
		}
		service, _ := c.resolveCore(ctx, name, false, nil)
		v, err := service.SingleInstance()
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
}

func (c *Container) instantiateInterface(ctx *ResolutionContext, b *ServiceBuilder, cfg *registry.ServiceConfiguration) {
	t := b.serviceName.Type

	var candidates []reflect.Type
	if len(cfg.ImplementationTypes) > 0 {
		candidates = append(candidates, cfg.ImplementationTypes...)
		if cfg.UseAutosearch {
			candidates = append(candidates, c.inheritance.ImplementorsOf(t)...)
		}
	} else {
		candidates = c.inheritance.ImplementorsOf(t)
	}

	if len(candidates) == 0 {
		b.setError("no implementations for " + formatType(t))
		return
	}

	for _, candidate := range candidates {
		if cfg.IgnoredImplementation || cfg.DontUse {
			b.addDependency(DependencyRecord{Name: contracts.ServiceName{Type: candidate}, Comment: "excluded", Status: StatusNotResolved})
			continue
		}

		// The parent's contracts are already on ctx's stack; the candidate
		// inherits them from there rather than pushing them a second time.
		childName := contracts.ServiceName{Type: candidate}
		child, _ := c.resolveCore(ctx, childName, b.createNew, nil)
		b.linkChild(childName, child, "")
		if b.status == StatusError || b.status == StatusDependencyError {
			return
		}
	}
}

func (c *Container) instantiateImplementation(ctx *ResolutionContext, b *ServiceBuilder, cfg *registry.ServiceConfiguration) {
	if cfg.DontUse {
		b.setError(ErrDontUse.Error())
		return
	}

	t := b.serviceName.Type

	if handled := c.tryFactoryPlugin(b, t); handled {
		return
	}
	if handled := c.tryNestedFactoryPlugin(b, t); handled {
		return
	}

	if reflection.IsDelegate(t) {
		b.setError(ErrCannotConstructDelegate.Error())
		return
	}

	ctor, err := c.introspector.GetConstructor(t)
	if err != nil {
		b.setError(err.Error())
		return
	}

	params := c.introspector.GetParameters(t, ctor)
	actualArgs := make([]reflect.Value, len(params))
	consultedOverrides := make(map[string]bool, len(cfg.ParameterOverrides))

	for i, p := range params {
		dep, ok := c.instantiateDependency(ctx, p, b, cfg, consultedOverrides)
		if !ok {
			if b.status == StatusNotResolved {
				b.setDependencyError(b.errorMessage)
			}
			return
		}
		actualArgs[i] = coerce(dep, p.Type)
	}

	for _, implicit := range cfg.ImplicitDependencies {
		childName := contracts.ServiceName{Type: implicit.Type, Contracts: implicit.Contracts}
		child, _ := c.resolveCore(ctx, childName, false, nil)
		b.useContracts(child.FinalUsedContracts)
		b.addDependency(DependencyRecord{Name: childName, Status: child.Status, Comment: "implicit"})
		if child.Status == StatusError || child.Status == StatusDependencyError {
			b.setDependencyError(child.ErrorMessage)
			return
		}
	}

	if len(cfg.ParameterOverrides) > 0 {
		var unused []string
		for name := range cfg.ParameterOverrides {
			if !consultedOverrides[name] {
				unused = append(unused, name)
			}
		}
		if len(unused) > 0 {
			b.setError(fmt.Sprintf("unused dependency configurations %v", unused))
			return
		}
	}

	// Contracts declared but never consulted by a dependency narrow the
	// final cache identity; resolveCore collapses onto that identity once
	// this builder is sealed (see collapseFinalIdentity).
	results := ctor.Call(actualArgs)
	instance, err := splitCtorResults(results)
	if err != nil {
		b.setError(err.Error())
		return
	}
	b.addInstance(instance)
	b.setOk()
}

func splitCtorResults(results []reflect.Value) (reflect.Value, error) {
	if len(results) == 0 {
		return reflect.Value{}, fmt.Errorf("constructor returned no values")
	}
	if len(results) == 1 {
		return results[0], nil
	}
	last := results[len(results)-1]
	if reflection.ImplementsError(last.Type()) {
		if !last.IsNil() {
			return reflect.Value{}, last.Interface().(error)
		}
		return results[0], nil
	}
	return results[0], nil
}

func coerce(v reflect.Value, target reflect.Type) reflect.Value {
	if !v.IsValid() {
		return reflect.Zero(target)
	}
	if v.Type().AssignableTo(target) {
		return v
	}
	if v.Type().ConvertibleTo(target) {
		return v.Convert(target)
	}
	return v
}

// tryFactoryPlugin handles the case where the whole type being resolved
// is itself a zero-argument function returning some T — the Func<T>
// factory-parameter pattern applied at the top level instead of to a
// single constructor parameter.
func (c *Container) tryFactoryPlugin(b *ServiceBuilder, t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 0 || t.NumOut() == 0 {
		return false
	}

	result := t.Out(0)
	fn := reflect.MakeFunc(t, func(args []reflect.Value) []reflect.Value {
		ctx := newResolutionContext(c)
		name := contracts.ServiceName{Type: result}
		service, _ := c.resolveCore(ctx, name, true, nil)
		v, err := service.SingleInstance()
		out := make([]reflect.Value, t.NumOut())
		if t.NumOut() > 1 {
			errOut := reflect.New(t.Out(1)).Elem()
			if err != nil {
				errOut.Set(reflect.ValueOf(err))
				out[0] = reflect.Zero(result)
			} else {
				out[0] = v
			}
			out[1] = errOut
			return out
		}
		out[0] = v
		return out
	})

	b.addInstance(fn)
	b.setOk()
	return true
}

// tryNestedFactoryPlugin handles a type that is itself a one-argument
// function Func<TArg, T>, where T has a constructor accepting TArg.
func (c *Container) tryNestedFactoryPlugin(b *ServiceBuilder, t reflect.Type) bool {
	arg, result, ok := reflection.IsNestedFactory(t)
	if !ok || !c.introspector.HasConstructor(result) {
		return false
	}

	fn := reflect.MakeFunc(t, func(args []reflect.Value) []reflect.Value {
		ctor, err := c.introspector.GetConstructor(result)
		if err != nil {
			return []reflect.Value{reflect.Zero(result)}
		}
		params := c.introspector.GetParameters(result, ctor)
		callArgs := make([]reflect.Value, len(params))
		for i, p := range params {
			if p.Type == arg {
				callArgs[i] = args[0]
				continue
			}
			ctx := newResolutionContext(c)
			name := contracts.ServiceName{Type: p.Type}
			service, _ := c.resolveCore(ctx, name, true, nil)
			v, _ := service.SingleInstance()
			callArgs[i] = coerce(v, p.Type)
		}
		results := ctor.Call(callArgs)
		instance, _ := splitCtorResults(results)
		return []reflect.Value{instance}
	})

	b.addInstance(fn)
	b.setOk()
	return true
}

// instantiateDependency resolves one constructor parameter, in the
// priority order explicit argument, registry override, resource stream,
// recursive resolution.
func (c *Container) instantiateDependency(ctx *ResolutionContext, p reflection.ParameterInfo, b *ServiceBuilder, cfg *registry.ServiceConfiguration, consulted map[string]bool) (reflect.Value, bool) {
	if b.arguments != nil {
		if v, ok := b.arguments[p.Name]; ok {
			return reflect.ValueOf(v), true
		}
	}

	if override, ok := cfg.ParameterOverrides[p.Name]; ok {
		consulted[p.Name] = true
		switch {
		case override.HasValue:
			return reflect.ValueOf(override.Value), true
		case override.Factory != nil:
			v, err := override.Factory(c.resolveFunc(ctx))
			if err != nil {
				b.setError(err.Error())
				return reflect.Value{}, false
			}
			return reflect.ValueOf(v), true
		case override.ImplementationType != nil:
			name := contracts.ServiceName{Type: override.ImplementationType, Contracts: p.Contracts}
			child, _ := c.resolveCore(ctx, name, false, nil)
			b.useContracts(child.FinalUsedContracts)
			b.addDependency(DependencyRecord{Name: name, Status: child.Status, Comment: "override"})
			if child.Status == StatusError || child.Status == StatusDependencyError {
				b.setDependencyError(child.ErrorMessage)
				return reflect.Value{}, false
			}
			v, err := child.SingleInstance()
			if err != nil {
				b.setError(err.Error())
				return reflect.Value{}, false
			}
			return v, true
		}
	}

	elemType, isEnumerable := reflection.UnwrapEnumerable(p.Type)

	if p.FromResource != "" {
		stream, ok := c.introspector.GetManifestResourceStream(b.serviceName.Type, p.FromResource)
		if !ok {
			b.setError("resource not found: " + p.FromResource)
			return reflect.Value{}, false
		}
		return reflect.ValueOf(stream), true
	}

	if reflection.IsSimpleType(elemType) {
		if p.HasDefault {
			return p.Default, true
		}
		b.setError(fmt.Sprintf("parameter [%s] is not configured", p.Name))
		return reflect.Value{}, false
	}

	depName := contracts.ServiceName{Type: elemType, Contracts: p.Contracts}
	child, _ := c.resolveCore(ctx, depName, false, nil)

	if child.Status == StatusError || child.Status == StatusDependencyError {
		b.useContracts(child.FinalUsedContracts)
		b.setDependencyError(child.ErrorMessage)
		return reflect.Value{}, false
	}

	b.useContracts(child.FinalUsedContracts)
	b.addDependency(DependencyRecord{Name: depName, Status: child.Status})

	if isEnumerable {
		out := reflect.MakeSlice(p.Type, 0, len(child.Instances))
		for _, v := range child.Instances {
			out = reflect.Append(out, v)
		}
		return out, true
	}

	if len(child.Instances) == 0 {
		if p.HasDefault {
			return p.Default, true
		}
		if p.Optional {
			return reflect.Zero(p.Type), true
		}
		b.setDependencyError("not resolved: " + formatType(elemType))
		return reflect.Value{}, false
	}

	if len(child.Instances) > 1 {
		b.setError(ErrAmbiguousImplementation.Error() + ": many implementations for [" + formatType(elemType) + "]")
		return reflect.Value{}, false
	}

	return child.Instances[0], true
}
