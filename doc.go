// Package container implements a reflective dependency-injection
// resolution engine: given a frozen configuration registry, a type
// introspector, and an inheritance index, it resolves a requested
// (type, contract stack) into one or more fully constructed instances,
// recursing through constructor parameters, caching by compound identity,
// and synchronizing concurrent resolvers through a per-service slot.
//
// # Basic usage
//
// Build the three collaborators the engine consumes, then resolve:
//
//	reg, err := registry.NewBuilder().
//	    Bind(reflect.TypeOf(&Logger{}), &registry.ServiceConfiguration{}).
//	    Build()
//
//	introspector := reflection.New()
//	introspector.Register(reflect.TypeOf(&Logger{}), NewLogger)
//
//	c := container.New(reg, introspector, graph.New())
//	defer c.Dispose(context.Background())
//
//	logger, err := container.Resolve[*Logger](c)
//
// # Contracts
//
// A contract is a case-insensitive string tag on the active resolution
// stack used to scope configuration overlays. Resolving a type under a
// contract consults configuration bound to that contract before falling
// back to the generic definition:
//
//	reg := registry.NewBuilder().
//	    BindContract(reflect.TypeOf((*Store)(nil)).Elem(), "primary", primaryCfg).
//	    BindContract(reflect.TypeOf((*Store)(nil)).Elem(), "replica", replicaCfg).
//	    MustBuild()
//
//	primary, _ := c.Resolve(storeType, "primary").Instance()
//
// # Resolve versus Create
//
// Resolve is singleton-style: the same (type, contracts) identity always
// returns the same instance, and a failed resolution does not panic or
// return an error directly — it returns a ResolvedService whose Instance
// call surfaces the failure together with a construction log. Create
// always produces a fresh instance (or, for a slice type, one instance
// per registered implementation) and reports failure as a plain error.
//
// # BuildUp
//
// BuildUp fills the exported fields of an already-constructed value that
// are tagged `inject:"true"`, without touching the singleton cache:
//
//	type handler struct {
//	    Logger *Logger `inject:"true"`
//	}
//
//	h := &handler{}
//	c.ProvideForBuildUp(NewLogger)
//	c.BuildUp(h)
//
// # Cloning
//
// Clone produces a sibling container sharing the same cache and type
// index but resolving configuration through an overlay registry first:
//
//	testContainer := c.Clone(testOverlay)
//
// # Disposal
//
// Dispose closes every container-owned instance that implements
// Disposable or DisposableWithContext, in reverse construction order.
package container
