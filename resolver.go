package container

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/artem-zyryanov/simple-container/internal/cache"
	"github.com/artem-zyryanov/simple-container/internal/contracts"
	"github.com/artem-zyryanov/simple-container/internal/reflection"
	"github.com/artem-zyryanov/simple-container/internal/registry"
)

// ResolutionContext is per-request scratch threaded through one call to
// Resolve or Create (BuildUp goes through the buildup injector instead). It
// is never shared across goroutines: each public entry point allocates its
// own.
type ResolutionContext struct {
	container    *Container
	constructing map[string]contracts.ServiceName
	stack        []*ServiceBuilder
	contractsLst *contracts.ContractsList

	// analyzeOnly makes slot release store nil instead of the sealed
	// service (step 9 of resolveCore). Constructors still run in this mode,
	// and no public entry point sets it.
	analyzeOnly bool
}

func newResolutionContext(c *Container) *ResolutionContext {
	return &ResolutionContext{
		container:    c,
		constructing: make(map[string]contracts.ServiceName),
		contractsLst: contracts.NewContractsList(),
	}
}

// resolveCore is the central recursive algorithm: given a requested
// (type, contract-stack) identity, it produces a sealed ContainerService.
func (c *Container) resolveCore(ctx *ResolutionContext, name contracts.ServiceName, createNew bool, arguments map[string]any) (*ContainerService, error) {
	if elemType, isEnumerable := reflection.UnwrapEnumerable(name.Type); isEnumerable {
		return c.resolveEnumerable(ctx, name, elemType, createNew, arguments)
	}

	key := name.Key()

	// 1. Cycle check.
	if _, already := ctx.constructing[key]; already {
		msg := c.cycleMessage(ctx, name)
		return &ContainerService{Name: name, Status: StatusError, ErrorMessage: msg}, nil
	}
	ctx.constructing[key] = name

	// 2. Contract push.
	pushRes := ctx.contractsLst.Push(name.Contracts)
	if !pushRes.OK {
		delete(ctx.constructing, key)
		msg := fmt.Sprintf("contract [%s] already declared, stack %v", pushRes.Duplicated, ctx.contractsLst.Snapshot())
		return &ContainerService{Name: name, Status: StatusError, ErrorMessage: msg}, nil
	}

	// 3. Configuration lookup.
	cfg := c.registry.Get(name.Type, ctx.contractsLst.Snapshot())

	// 4. Declared name computation.
	declaredContracts := ctx.contractsLst.Snapshot()
	if cfg != nil && cfg.FactoryWithTarget != nil && len(ctx.stack) > 0 {
		parent := ctx.stack[len(ctx.stack)-1].serviceName.Type
		declaredContracts = append(append([]string{}, declaredContracts...), parent.String())
	}
	declaredName := name.WithContracts(declaredContracts)

	// 5. Slot acquisition (singleton path only).
	var slot *cache.Slot
	var acquired bool
	if !createNew {
		slot = c.cache.GetOrCreate(c.slotKey(declaredName, cfg))
		acq := slot.AcquireInstantiateLock()
		if !acq.Acquired {
			delete(ctx.constructing, key)
			ctx.contractsLst.Pop(pushRes.Pushed)
			if svc, ok := acq.Service.(*ContainerService); ok {
				return svc, nil
			}
			return &ContainerService{Name: name, Status: StatusError, ErrorMessage: "no implementations for " + formatType(name.Type)}, nil
		}
		acquired = true
	}

	// 6. Builder setup.
	builder := newServiceBuilder(name, declaredContracts, cfg)
	ctx.stack = append(ctx.stack, builder)

	// 7. Dispatch.
	if cfg == nil {
		builder.setError(ErrNotConfigured.Error() + ": no implementations for " + formatType(name.Type))
	} else if bad := c.unknownUnion(name.Contracts); bad != "" {
		builder.setError(fmt.Sprintf("%s: %s", ErrUnknownUnion, bad))
	} else {
		combos, expanded := contracts.ExpandUnions(name.Contracts, c.lookupUnion)
		if expanded {
			ctx.contractsLst.Pop(pushRes.Pushed)
			for _, combo := range combos {
				childName := contracts.ServiceName{Type: name.Type, Contracts: combo}
				child, _ := c.resolveCore(ctx, childName, createNew, arguments)
				builder.linkChild(childName, child, "")
				if builder.status == StatusError || builder.status == StatusDependencyError {
					break
				}
			}
			ctx.contractsLst.Push(name.Contracts)
		} else {
			builder.createNew = createNew
			builder.arguments = arguments
			c.instantiate(ctx, builder, cfg)
		}
	}

	// 8. Unwind.
	delete(ctx.constructing, key)
	ctx.contractsLst.Pop(pushRes.Pushed)
	ctx.stack = ctx.stack[:len(ctx.stack)-1]

	var topSortIndex int64
	if acquired {
		topSortIndex = c.topSort.next()
	}
	service := builder.seal(topSortIndex)

	// 8.5 Final-identity collapse: fewer contracts were actually consulted
	// than declared, so the true cache identity is narrower (invariant:
	// cache key is (type, final_used_contracts)). Publish this result under
	// that narrower slot too, or adopt whichever result got there first.
	if acquired && service.Status == StatusOk && len(service.FinalUsedContracts) < len(declaredContracts) {
		service = c.collapseFinalIdentity(service, cfg)
	}

	// 9. Release slot.
	if acquired {
		if ctx.analyzeOnly {
			slot.ReleaseInstantiateLock(nil)
		} else {
			slot.ReleaseInstantiateLock(service)
			c.trackDisposable(service)
		}
	}

	return service, nil
}

func (c *Container) cycleMessage(ctx *ResolutionContext, name contracts.ServiceName) string {
	key := name.Key()
	var chain []string
	started := false
	for _, b := range ctx.stack {
		if b.serviceName.Key() == key {
			started = true
		}
		if started {
			chain = append(chain, formatType(b.serviceName.Type))
		}
	}
	chain = append(chain, formatType(name.Type))
	return "cyclic dependency " + strings.Join(chain, " -> ")
}

func (c *Container) lookupUnion(name string) ([]string, bool) {
	return c.registry.LookupUnion(name)
}

// unknownUnion reports the first contract in names that was explicitly
// registered as a union alias but carries no member contracts.
func (c *Container) unknownUnion(names []string) string {
	for _, n := range names {
		if members, ok := c.registry.LookupUnion(n); ok && len(members) == 0 {
			return n
		}
	}
	return ""
}

// resolveEnumerable handles a top-level request for a slice type: it
// resolves the element type (an interface fans out to every registered
// implementor via instantiateInterface) and reports every instance,
// mirroring the per-parameter handling in instantiateDependency.
func (c *Container) resolveEnumerable(ctx *ResolutionContext, name contracts.ServiceName, elemType reflect.Type, createNew bool, arguments map[string]any) (*ContainerService, error) {
	elemName := contracts.ServiceName{Type: elemType, Contracts: name.Contracts}
	child, err := c.resolveCore(ctx, elemName, createNew, arguments)
	if err != nil {
		return nil, err
	}

	return &ContainerService{
		Name:               name,
		DeclaredContracts:  child.DeclaredContracts,
		FinalUsedContracts: child.FinalUsedContracts,
		Status:             child.Status,
		ErrorMessage:       child.ErrorMessage,
		Instances:          child.Instances,
		Dependencies:       child.Dependencies,
		TopSortIndex:       child.TopSortIndex,
		ownsInstance:       child.ownsInstance,
	}, nil
}

// slotKey derives a cache-slot identity that also accounts for which
// ServiceConfiguration produced this resolution. registry.Get returns the
// same *ServiceConfiguration pointer for an unmodified binding, so a
// Container and a Clone that resolve the same (type, contracts) name
// through identical configuration share a slot. A clone's overlay
// replaces that pointer for any type it reconfigures, which gives the
// overlaid type a fresh slot instead of inheriting the base container's
// cached instance.
func (c *Container) slotKey(name contracts.ServiceName, cfg *registry.ServiceConfiguration) string {
	return fmt.Sprintf("%s@%p", name.Key(), cfg)
}

// collapseFinalIdentity publishes service under the narrower (type,
// final_used_contracts) slot its resolution actually turned out to need,
// so a request declaring exactly that final set from the start shares
// this result instead of repeating the work. If another resolver already
// published under that identity first, their result is adopted instead.
func (c *Container) collapseFinalIdentity(service *ContainerService, cfg *registry.ServiceConfiguration) *ContainerService {
	finalName := contracts.ServiceName{Type: service.Name.Type, Contracts: service.FinalUsedContracts}
	slot := c.cache.GetOrCreate(c.slotKey(finalName, cfg))

	acq := slot.AcquireInstantiateLock()
	if !acq.Acquired {
		if svc, ok := acq.Service.(*ContainerService); ok {
			return svc
		}
		return service
	}

	collapsed := &ContainerService{
		Name:               finalName,
		DeclaredContracts:  finalName.Contracts,
		FinalUsedContracts: service.FinalUsedContracts,
		Status:             service.Status,
		ErrorMessage:       service.ErrorMessage,
		Instances:          service.Instances,
		Dependencies:       service.Dependencies,
		TopSortIndex:       service.TopSortIndex,
	}
	slot.ReleaseInstantiateLock(collapsed)
	return service
}
