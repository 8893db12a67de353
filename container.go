package container

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/artem-zyryanov/simple-container/internal/buildup"
	"github.com/artem-zyryanov/simple-container/internal/cache"
	"github.com/artem-zyryanov/simple-container/internal/contracts"
	"github.com/artem-zyryanov/simple-container/internal/graph"
	"github.com/artem-zyryanov/simple-container/internal/reflection"
	"github.com/artem-zyryanov/simple-container/internal/registry"
	"github.com/google/uuid"
)

var containerType = reflect.TypeOf((*Container)(nil))

// Container is the resolution engine's public surface: Resolve for
// singleton-style lookups, Create for always-fresh instances, BuildUp for
// field injection into an existing value, and Clone for layering
// configuration onto a sibling container that still shares the parent's
// cache and type index.
type Container struct {
	id uuid.UUID

	registry     *registry.Registry
	introspector *reflection.Introspector
	inheritance  *graph.InheritanceIndex
	injector     *buildup.Injector

	cache   *cache.ServiceCache
	topSort *topSortCounter

	disposedMu sync.Mutex
	disposed   bool

	disposablesMu sync.Mutex
	disposables   []*ContainerService
	trackedPtrs   map[uintptr]bool

	parent *Container
}

// New wires a frozen ConfigurationRegistry, a TypeIntrospector, and an
// InheritanceIndex into a ready-to-use Container. These three collaborators
// are built by the configuration layer and the assembly scanner,
// respectively — concerns this engine deliberately treats as external.
func New(reg *registry.Registry, introspector *reflection.Introspector, inheritance *graph.InheritanceIndex) *Container {
	return &Container{
		id:           uuid.New(),
		registry:     reg,
		introspector: introspector,
		inheritance:  inheritance,
		injector:     buildup.New(),
		cache:        cache.New(),
		topSort:      &topSortCounter{},
		trackedPtrs:  make(map[uintptr]bool),
	}
}

// ID returns a stable diagnostic identifier for this container (and for
// every clone sharing its lineage, the clone gets its own fresh ID).
func (c *Container) ID() uuid.UUID { return c.id }

func (c *Container) isDisposed() bool {
	c.disposedMu.Lock()
	defer c.disposedMu.Unlock()
	return c.disposed
}

// ResolvedService is the result of Resolve: a handle whose value access
// may fail, carrying a human-readable construction log for diagnosis.
type ResolvedService struct {
	service *ContainerService
}

// Instance returns the single resolved value, or an error describing why
// resolution failed (including the construction log).
func (r *ResolvedService) Instance() (any, error) {
	v, err := r.service.SingleInstance()
	if err != nil {
		return nil, r.wrapErr(err)
	}
	return v.Interface(), nil
}

// Instances returns every resolved value (for enumerable requests).
func (r *ResolvedService) Instances() ([]any, error) {
	if r.service.Status != StatusOk {
		return nil, r.wrapErr(&ValidationError{ServiceType: r.service.Name.Type, Message: r.service.ErrorMessage})
	}
	out := make([]any, len(r.service.Instances))
	for i, v := range r.service.Instances {
		out[i] = v.Interface()
	}
	return out, nil
}

// Ok reports whether resolution succeeded.
func (r *ResolvedService) Ok() bool { return r.service.Status == StatusOk }

// ConstructionLog renders the construction tree for this resolution.
func (r *ResolvedService) ConstructionLog() string {
	return renderConstructionLog(r.service)
}

func (r *ResolvedService) wrapErr(cause error) error {
	return &ResolutionError{
		ServiceType: r.service.Name.Type,
		Contracts:   r.service.FinalUsedContracts,
		Cause:       fmt.Errorf("%w\n%s", cause, renderConstructionLog(r.service)),
	}
}

// Resolve performs a singleton-style lookup: repeated calls for the same
// (type, contracts) identity return the same underlying instance.
func (c *Container) Resolve(t reflect.Type, contractNames ...string) *ResolvedService {
	if c.isDisposed() {
		return &ResolvedService{service: &ContainerService{Name: contracts.ServiceName{Type: t}, Status: StatusError, ErrorMessage: c.disposedErr().Error()}}
	}

	name, err := contracts.New(t, contractNames)
	if err != nil {
		return &ResolvedService{service: &ContainerService{Name: contracts.ServiceName{Type: t, Contracts: contractNames}, Status: StatusError, ErrorMessage: classifyContractError(err).Error()}}
	}

	ctx := newResolutionContext(c)
	service, _ := c.resolveCore(ctx, name, false, nil)
	return &ResolvedService{service: service}
}

// Create always produces a fresh instance (or, for an enumerable type,
// a fresh instance of every candidate implementation), bypassing the
// singleton cache. Unlike Resolve, a failed Create returns an error
// directly.
func (c *Container) Create(t reflect.Type, arguments map[string]any, contractNames ...string) (any, error) {
	if c.isDisposed() {
		return nil, c.disposedErr()
	}

	name, err := contracts.New(t, contractNames)
	if err != nil {
		return nil, classifyContractError(err)
	}

	ctx := newResolutionContext(c)
	service, _ := c.resolveCore(ctx, name, true, arguments)

	if _, enumerable := reflection.UnwrapEnumerable(t); enumerable {
		if service.Status != StatusOk {
			return nil, &ResolutionError{ServiceType: t, Cause: errComment(service.ErrorMessage)}
		}
		out := reflect.MakeSlice(t, 0, len(service.Instances))
		for _, v := range service.Instances {
			out = reflect.Append(out, v)
		}
		return out.Interface(), nil
	}

	v, err := service.SingleInstance()
	if err != nil {
		return nil, &ResolutionError{ServiceType: t, Cause: errComment(service.ErrorMessage + "\n" + renderConstructionLog(service))}
	}
	return v.Interface(), nil
}

// GetImplementationsOf returns every concrete type currently known to
// implement iface.
func (c *Container) GetImplementationsOf(iface reflect.Type) []reflect.Type {
	return c.inheritance.ImplementorsOf(iface)
}

// BuildUp fills the exported, `inject`-tagged fields of an already
// constructed value, delegating to a DependenciesInjector that bypasses
// the main ServiceCache entirely (the source's own design: build_up acts
// fresh rather than participating in singleton memoization).
func (c *Container) BuildUp(target any) error {
	if c.isDisposed() {
		return c.disposedErr()
	}
	if target == nil {
		return ErrBuildUpNilTarget
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrBuildUpNotPointer
	}
	return c.injector.BuildUp(target)
}

// ProvideForBuildUp registers a constructor BuildUp can use to satisfy a
// field's type.
func (c *Container) ProvideForBuildUp(ctor any) error {
	return c.injector.Provide(ctor)
}

// RegisterConstructor associates a public constructor function with the
// type it produces, wrapping the introspector's registration failures
// into this package's sentinel errors so callers can classify them with
// errors.Is instead of inspecting reflection.CtorError directly.
func (c *Container) RegisterConstructor(t reflect.Type, ctor any) error {
	if ctor == nil {
		return ErrNilConstructor
	}
	if reflect.ValueOf(ctor).Kind() != reflect.Func {
		return ErrConstructorNotFunc
	}

	if err := c.introspector.Register(t, ctor); err != nil {
		var ctorErr *reflection.CtorError
		if errors.As(err, &ctorErr) {
			if ctorErr.Many {
				return ErrManyPublicCtors
			}
			return ErrNoPublicConstructor
		}
		return err
	}
	return nil
}

// disposedErr reports which sentinel describes this container's disposed
// state: a clone surfaces ErrCloneDisposed so a caller can tell a
// reconfigured sibling apart from the root container it was cloned from.
func (c *Container) disposedErr() error {
	if c.parent != nil {
		return ErrCloneDisposed
	}
	return ErrDisposed
}

// Clone produces a sibling container that shares this container's type
// index (introspector, inheritance index) and cache, but resolves
// configuration through overlay first. A nil overlay clones with
// identical configuration.
func (c *Container) Clone(overlay *registry.Registry) *Container {
	reg := c.registry
	if overlay != nil {
		reg = registry.Overlay(c.registry, overlay)
	}

	return &Container{
		id:           uuid.New(),
		registry:     reg,
		introspector: c.introspector,
		inheritance:  c.inheritance,
		injector:     c.injector,
		cache:        c.cache,
		topSort:      c.topSort,
		trackedPtrs:  c.trackedPtrs,
		parent:       c,
	}
}

// trackDisposable records service for disposal, deduplicating by pointer
// identity so a service whose cache identity collapsed onto a narrower
// contract set (see collapseFinalIdentity in resolver.go) is only ever
// closed once.
func (c *Container) trackDisposable(service *ContainerService) {
	if service.Status != StatusOk || !service.ownsInstance || len(service.Instances) == 0 {
		return
	}

	c.disposablesMu.Lock()
	defer c.disposablesMu.Unlock()

	fresh := false
	for _, inst := range service.Instances {
		if inst.Kind() != reflect.Pointer || inst.IsNil() {
			fresh = true
			continue
		}
		ptr := inst.Pointer()
		if !c.trackedPtrs[ptr] {
			c.trackedPtrs[ptr] = true
			fresh = true
		}
	}
	if fresh {
		c.disposables = append(c.disposables, service)
	}
}

// Dispose closes every container-owned disposable instance in reverse
// TopSortIndex order (latest-constructed first), aggregating every error
// encountered. context.Canceled is swallowed per the source's own
// behavior (see DESIGN.md); other errors are collected.
func (c *Container) Dispose(ctx context.Context) error {
	c.disposedMu.Lock()
	if c.disposed {
		c.disposedMu.Unlock()
		return nil
	}
	c.disposed = true
	c.disposedMu.Unlock()

	c.disposablesMu.Lock()
	ordered := make([]*ContainerService, len(c.disposables))
	copy(ordered, c.disposables)
	c.disposablesMu.Unlock()

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TopSortIndex > ordered[j].TopSortIndex })

	var errs []error
	for _, service := range ordered {
		for _, inst := range service.Instances {
			if err := closeInstance(ctx, inst); err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func closeInstance(ctx context.Context, v reflect.Value) error {
	if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil
	}

	if d, ok := v.Interface().(DisposableWithContext); ok {
		return d.Close(ctx)
	}
	if d, ok := v.Interface().(Disposable); ok {
		return d.Close()
	}
	return nil
}
