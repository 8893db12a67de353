package container_test

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/artem-zyryanov/simple-container/internal/graph"
	"github.com/artem-zyryanov/simple-container/internal/reflection"
	"github.com/artem-zyryanov/simple-container/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	container "github.com/artem-zyryanov/simple-container"
)

// -- fixtures -----------------------------------------------------------

type greeter interface {
	Greet() string
}

type englishGreeter struct{}

func newEnglishGreeter() *englishGreeter { return &englishGreeter{} }
func (*englishGreeter) Greet() string    { return "hello" }

type frenchGreeter struct{}

func newFrenchGreeter() *frenchGreeter { return &frenchGreeter{} }
func (*frenchGreeter) Greet() string   { return "bonjour" }

type widget struct{ closed bool }

func newWidget() *widget { return &widget{} }
func (w *widget) Close() error {
	w.closed = true
	return nil
}

type counterMaker struct {
	n *int32
}

func newCounterMaker(n *int32) *counterMaker {
	atomic.AddInt32(n, 1)
	return &counterMaker{n: n}
}

type cyclicA struct{ b *cyclicB }

func newCyclicA(b *cyclicB) *cyclicA { return &cyclicA{b: b} }

type cyclicB struct{ a *cyclicA }

func newCyclicB(a *cyclicA) *cyclicB { return &cyclicB{a: a} }

type needsName struct{ Name string }

func newNeedsName(name string) *needsName { return &needsName{Name: name} }

// buildContainer wires a registry + introspector + inheritance index the
// way doc.go's example does, letting each test register only what it needs.
func buildContainer(t *testing.T, wire func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex)) *container.Container {
	t.Helper()
	b := registry.NewBuilder()
	i := reflection.New()
	idx := graph.New()
	if wire != nil {
		wire(b, i, idx)
	}
	return container.New(b.MustBuild(), i, idx)
}

var (
	greeterType  = reflect.TypeOf((*greeter)(nil)).Elem()
	englishType  = reflect.TypeOf(&englishGreeter{})
	frenchType   = reflect.TypeOf(&frenchGreeter{})
	widgetType   = reflect.TypeOf(&widget{})
	counterType  = reflect.TypeOf(&counterMaker{})
	cyclicAType  = reflect.TypeOf(&cyclicA{})
	cyclicBType  = reflect.TypeOf(&cyclicB{})
	needsNameTyp = reflect.TypeOf(&needsName{})
)

// -- simple resolution ---------------------------------------------------

func TestResolve_SingleImplementationReturnsInstance(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(englishType, newEnglishGreeter)
		idx.Add(englishType, []reflect.Type{greeterType})
		b.Bind(greeterType, &registry.ServiceConfiguration{})
		b.Bind(englishType, &registry.ServiceConfiguration{})
	})

	v, err := container.Resolve[greeter](c)
	require.NoError(t, err)
	assert.Equal(t, "hello", v.Greet())
}

func TestResolve_IsMemoized(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(englishType, newEnglishGreeter)
		idx.Add(englishType, []reflect.Type{greeterType})
		b.Bind(greeterType, &registry.ServiceConfiguration{})
		b.Bind(englishType, &registry.ServiceConfiguration{})
	})

	a, err := container.Resolve[greeter](c)
	require.NoError(t, err)
	other, err := container.Resolve[greeter](c)
	require.NoError(t, err)
	assert.Same(t, a, other)
}

func TestResolve_AmbiguousNonEnumerableFailsWithManyImplementations(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(englishType, newEnglishGreeter)
		i.Register(frenchType, newFrenchGreeter)
		idx.Add(englishType, []reflect.Type{greeterType})
		idx.Add(frenchType, []reflect.Type{greeterType})
		b.Bind(greeterType, &registry.ServiceConfiguration{})
		b.Bind(englishType, &registry.ServiceConfiguration{})
		b.Bind(frenchType, &registry.ServiceConfiguration{})
	})

	resolved := c.Resolve(greeterType)
	_, err := resolved.Instance()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "many implementations")
}

func TestResolve_EnumerableReturnsEveryImplementation(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(englishType, newEnglishGreeter)
		i.Register(frenchType, newFrenchGreeter)
		idx.Add(englishType, []reflect.Type{greeterType})
		idx.Add(frenchType, []reflect.Type{greeterType})
		b.Bind(greeterType, &registry.ServiceConfiguration{})
		b.Bind(englishType, &registry.ServiceConfiguration{})
		b.Bind(frenchType, &registry.ServiceConfiguration{})
	})

	sliceType := reflect.SliceOf(greeterType)
	resolved := c.Resolve(sliceType)
	instances, err := resolved.Instances()
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestResolve_NoImplementationsReportsNotFound(t *testing.T) {
	c := buildContainer(t, nil)

	resolved := c.Resolve(greeterType)
	_, err := resolved.Instance()
	require.Error(t, err)
	assert.True(t, container.IsNotFound(err), "expected IsNotFound, got: %v", err)
}

// -- contract scoping -----------------------------------------------------

func TestResolve_ContractScopingPicksOverlayBeforeGeneric(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(englishType, newEnglishGreeter)
		i.Register(frenchType, newFrenchGreeter)
		idx.Add(englishType, []reflect.Type{greeterType})
		idx.Add(frenchType, []reflect.Type{greeterType})
		b.BindContract(greeterType, "c1", &registry.ServiceConfiguration{ImplementationTypes: []reflect.Type{englishType}})
		b.BindContract(greeterType, "c2", &registry.ServiceConfiguration{ImplementationTypes: []reflect.Type{frenchType}})
		b.Bind(englishType, &registry.ServiceConfiguration{})
		b.Bind(frenchType, &registry.ServiceConfiguration{})
	})

	v1, err := container.Resolve[greeter](c, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hello", v1.Greet())

	v2, err := container.Resolve[greeter](c, "c2")
	require.NoError(t, err)
	assert.Equal(t, "bonjour", v2.Greet())

	_, err = container.Resolve[greeter](c, "c3")
	require.Error(t, err)
}

func TestResolve_DuplicateContractOnStackFails(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(englishType, newEnglishGreeter)
		idx.Add(englishType, []reflect.Type{greeterType})
		b.BindContract(greeterType, "c1", &registry.ServiceConfiguration{ImplementationTypes: []reflect.Type{englishType}})
	})

	resolved := c.Resolve(greeterType, "c1", "c1")
	_, err := resolved.Instance()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates found")
}

// -- cycles ----------------------------------------------------------------

func TestResolve_CyclicDependencyFailsWithCycleMessage(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(cyclicAType, newCyclicA)
		i.Register(cyclicBType, newCyclicB)
		b.Bind(cyclicAType, &registry.ServiceConfiguration{})
		b.Bind(cyclicBType, &registry.ServiceConfiguration{})
	})

	resolved := c.Resolve(cyclicAType)
	_, err := resolved.Instance()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic dependency")
}

// -- unconfigured simple-type parameters -----------------------------------

func TestResolve_UnconfiguredSimpleParameterFails(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(needsNameTyp, newNeedsName)
		b.Bind(needsNameTyp, &registry.ServiceConfiguration{})
	})

	resolved := c.Resolve(needsNameTyp)
	_, err := resolved.Instance()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not configured")
}

func TestResolve_ParameterOverrideSuppliesSimpleValue(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(needsNameTyp, newNeedsName)
		b.Bind(needsNameTyp, &registry.ServiceConfiguration{
			ParameterOverrides: map[string]registry.ParameterOverride{
				"arg0": {HasValue: true, Value: "widget"},
			},
		})
	})

	v, err := container.Resolve[*needsName](c)
	require.NoError(t, err)
	assert.Equal(t, "widget", v.Name)
}

func TestResolve_UnusedParameterOverrideFails(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(needsNameTyp, newNeedsName)
		b.Bind(needsNameTyp, &registry.ServiceConfiguration{
			ParameterOverrides: map[string]registry.ParameterOverride{
				"arg0":          {HasValue: true, Value: "widget"},
				"doesNotExist":  {HasValue: true, Value: "x"},
			},
		})
	})

	resolved := c.Resolve(needsNameTyp)
	_, err := resolved.Instance()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unused dependency configurations")
}

// -- concurrency -----------------------------------------------------------

func TestResolve_ConcurrentSingletonResolveInstantiatesOnce(t *testing.T) {
	var calls int32
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(counterType, func() *counterMaker { return newCounterMaker(&calls) })
		b.Bind(counterType, &registry.ServiceConfiguration{})
	})

	const n = 100
	var wg sync.WaitGroup
	results := make([]*counterMaker, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := container.Resolve[*counterMaker](c)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

// -- per-request / Create --------------------------------------------------

func TestCreate_AlwaysProducesFreshInstance(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(widgetType, newWidget)
		b.Bind(widgetType, &registry.ServiceConfiguration{})
	})

	a, err := container.Create[*widget](c, nil)
	require.NoError(t, err)
	other, err := container.Create[*widget](c, nil)
	require.NoError(t, err)
	assert.NotSame(t, a, other)
}

func TestResolve_PerRequestTypeRejectedThroughResolve(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(widgetType, newWidget)
		b.Bind(widgetType, &registry.ServiceConfiguration{PerRequest: true})
	})

	resolved := c.Resolve(widgetType)
	_, err := resolved.Instance()
	require.Error(t, err)

	v, err := container.Create[*widget](c, nil)
	require.NoError(t, err)
	assert.NotNil(t, v)
}

// -- disposal ----------------------------------------------------------------

func TestDispose_ClosesContainerOwnedInstancesOnce(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(widgetType, newWidget)
		b.Bind(widgetType, &registry.ServiceConfiguration{})
	})

	v, err := container.Resolve[*widget](c)
	require.NoError(t, err)
	require.False(t, v.closed)

	require.NoError(t, c.Dispose(context.Background()))
	assert.True(t, v.closed)

	// Dispose is idempotent.
	require.NoError(t, c.Dispose(context.Background()))
}

func TestResolve_AfterDisposeFails(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(englishType, newEnglishGreeter)
		idx.Add(englishType, []reflect.Type{greeterType})
		b.Bind(greeterType, &registry.ServiceConfiguration{})
	})

	require.NoError(t, c.Dispose(context.Background()))

	resolved := c.Resolve(greeterType)
	_, err := resolved.Instance()
	require.Error(t, err)
	assert.True(t, container.IsDisposed(err))
}

// -- construction log --------------------------------------------------------

func TestConstructionLog_RendersTreeOnFailure(t *testing.T) {
	c := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(needsNameTyp, newNeedsName)
		b.Bind(needsNameTyp, &registry.ServiceConfiguration{})
	})

	resolved := c.Resolve(needsNameTyp)
	log := resolved.ConstructionLog()
	assert.NotEmpty(t, log)
	assert.Contains(t, log, "node(s)")
}

// -- GetImplementationsOf -----------------------------------------------------

func TestGetImplementationsOf_ReturnsRegisteredConcreteTypes(t *testing.T) {
	idx := graph.New()
	idx.Add(englishType, []reflect.Type{greeterType})
	idx.Add(frenchType, []reflect.Type{greeterType})

	c := container.New(registry.NewBuilder().MustBuild(), reflection.New(), idx)
	impls := c.GetImplementationsOf(greeterType)
	assert.Len(t, impls, 2)
}

// -- BuildUp -------------------------------------------------------------------

type injectedLogger struct{ prefix string }

func newInjectedLogger() *injectedLogger { return &injectedLogger{prefix: "log"} }

type handlerWithInject struct {
	Logger *injectedLogger `inject:"true"`
}

func TestBuildUp_FillsTaggedFields(t *testing.T) {
	c := buildContainer(t, nil)
	require.NoError(t, c.ProvideForBuildUp(newInjectedLogger))

	h := &handlerWithInject{}
	require.NoError(t, c.BuildUp(h))
	require.NotNil(t, h.Logger)
	assert.Equal(t, "log", h.Logger.prefix)
}

// -- Clone ----------------------------------------------------------------------

func TestClone_OverlayConfigurationWinsOverBase(t *testing.T) {
	base := buildContainer(t, func(b *registry.Builder, i *reflection.Introspector, idx *graph.InheritanceIndex) {
		i.Register(englishType, newEnglishGreeter)
		i.Register(frenchType, newFrenchGreeter)
		idx.Add(englishType, []reflect.Type{greeterType})
		idx.Add(frenchType, []reflect.Type{greeterType})
		b.Bind(greeterType, &registry.ServiceConfiguration{ImplementationTypes: []reflect.Type{englishType}})
		b.Bind(englishType, &registry.ServiceConfiguration{})
		b.Bind(frenchType, &registry.ServiceConfiguration{})
	})

	overlay := registry.NewBuilder().
		Bind(greeterType, &registry.ServiceConfiguration{ImplementationTypes: []reflect.Type{frenchType}}).
		MustBuild()

	clone := base.Clone(overlay)

	baseV, err := container.Resolve[greeter](base)
	require.NoError(t, err)
	assert.Equal(t, "hello", baseV.Greet())

	cloneV, err := container.Resolve[greeter](clone)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", cloneV.Greet())
}

func TestErrors_ResolutionErrorMessageIncludesContracts(t *testing.T) {
	c := buildContainer(t, nil)
	resolved := c.Resolve(greeterType, "c1")
	_, err := resolved.Instance()
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "c1")
}
