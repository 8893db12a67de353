package container

import (
	"reflect"
	"sync/atomic"

	"github.com/artem-zyryanov/simple-container/internal/contracts"
	"github.com/artem-zyryanov/simple-container/internal/graph"
	"github.com/artem-zyryanov/simple-container/internal/registry"
)

// ServiceStatus is the state machine every ServiceBuilder moves through.
// Transitions are monotonic: NotResolved is the only state a builder can
// leave, and DependencyError always wins over a child's own Ok when
// propagated to a parent.
type ServiceStatus int

const (
	StatusNotResolved ServiceStatus = iota
	StatusOk
	StatusError
	StatusDependencyError
)

func (s ServiceStatus) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusError:
		return "error"
	case StatusDependencyError:
		return "dependency_error"
	default:
		return "not_resolved"
	}
}

// DependencyRecord is one entry in a builder's dependency list: either a
// successfully resolved value, or a rejected/ignored candidate kept only
// for the construction log.
type DependencyRecord struct {
	Name    contracts.ServiceName
	Value   reflect.Value
	Comment string
	Status  ServiceStatus
}

// ServiceBuilder is the mutable node for one in-flight resolution. It is
// confined to the ResolutionContext that created it and is never touched
// concurrently.
type ServiceBuilder struct {
	serviceName       contracts.ServiceName
	declaredContracts []string
	config            *registry.ServiceConfiguration

	arguments map[string]any
	createNew bool

	dependencies []DependencyRecord

	usedContracts      map[string]struct{}
	usedContractsOrder []string

	status       ServiceStatus
	errorMessage string

	instances    []reflect.Value
	instantiated bool

	topSortIndex int64
	factory      func(ctx *ResolutionContext) (reflect.Value, error)
}

func newServiceBuilder(name contracts.ServiceName, declaredContracts []string, cfg *registry.ServiceConfiguration) *ServiceBuilder {
	return &ServiceBuilder{
		serviceName:       name,
		declaredContracts: declaredContracts,
		config:            cfg,
		usedContracts:     make(map[string]struct{}),
	}
}

// useContract marks one of the declared contracts as actually consulted
// by a dependency; it drives the final cache identity.
func (b *ServiceBuilder) useContract(name string) {
	if _, ok := b.usedContracts[name]; ok {
		return
	}
	b.usedContracts[name] = struct{}{}
	b.usedContractsOrder = append(b.usedContractsOrder, name)
}

func (b *ServiceBuilder) useContracts(names []string) {
	for _, n := range names {
		b.useContract(n)
	}
}

func (b *ServiceBuilder) finalUsedContracts() []string {
	out := make([]string, 0, len(b.declaredContracts))
	for _, c := range b.declaredContracts {
		if _, ok := b.usedContracts[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// setError transitions the builder to Error, unless it is already in a
// terminal state (monotonic transition).
func (b *ServiceBuilder) setError(msg string) {
	if b.status != StatusNotResolved {
		return
	}
	b.status = StatusError
	b.errorMessage = msg
}

// setDependencyError propagates a child failure upward.
func (b *ServiceBuilder) setDependencyError(msg string) {
	if b.status != StatusNotResolved {
		return
	}
	b.status = StatusDependencyError
	b.errorMessage = msg
}

func (b *ServiceBuilder) setOk() {
	if b.status == StatusNotResolved {
		b.status = StatusOk
	}
}

func (b *ServiceBuilder) addDependency(rec DependencyRecord) {
	b.dependencies = append(b.dependencies, rec)
}

func (b *ServiceBuilder) addInstance(v reflect.Value) {
	b.instances = append(b.instances, v)
	b.instantiated = true
}

// linkChild folds a resolved child ContainerService into this builder:
// its instances become this builder's instances, its status unions in,
// and its used contracts union in. Used by interface dispatch and union
// (contract) expansion, both of which fan out into multiple children that
// jointly determine the parent's outcome.
func (b *ServiceBuilder) linkChild(childName contracts.ServiceName, child *ContainerService, comment string) {
	switch child.Status {
	case StatusOk:
		b.instances = append(b.instances, child.Instances...)
		b.instantiated = true
		b.setOk()
	case StatusError:
		b.setDependencyError(child.ErrorMessage)
	case StatusDependencyError:
		b.setDependencyError(child.ErrorMessage)
	}

	b.useContracts(child.FinalUsedContracts)
	b.addDependency(DependencyRecord{Name: childName, Status: child.Status, Comment: comment})
}

// seal freezes the builder into an immutable ContainerService.
func (b *ServiceBuilder) seal(topSortIndex int64) *ContainerService {
	ownsInstance := true
	if b.config != nil {
		ownsInstance = !b.config.ExternallyOwned
	}

	return &ContainerService{
		Name:               b.serviceName,
		DeclaredContracts:  b.declaredContracts,
		FinalUsedContracts: b.finalUsedContracts(),
		Status:             b.status,
		ErrorMessage:       b.errorMessage,
		Instances:          b.instances,
		Dependencies:       b.dependencies,
		TopSortIndex:       topSortIndex,
		factory:            b.factory,
		ownsInstance:       ownsInstance,
	}
}

// ContainerService is the sealed, immutable result of one resolution.
type ContainerService struct {
	Name               contracts.ServiceName
	DeclaredContracts  []string
	FinalUsedContracts []string
	Status             ServiceStatus
	ErrorMessage       string
	Instances          []reflect.Value
	Dependencies       []DependencyRecord
	TopSortIndex       int64

	factory      func(ctx *ResolutionContext) (reflect.Value, error)
	ownsInstance bool
}

// SingleInstance returns the one instance this service produced, or an
// error if it produced zero, more than one, or failed outright.
func (s *ContainerService) SingleInstance() (reflect.Value, error) {
	if s.Status != StatusOk {
		return reflect.Value{}, &ResolutionError{ServiceType: s.Name.Type, Contracts: s.FinalUsedContracts, Cause: &ValidationError{ServiceType: s.Name.Type, Message: s.ErrorMessage}}
	}
	if len(s.Instances) == 0 {
		return reflect.Value{}, &ValidationError{ServiceType: s.Name.Type, Message: "no implementations for " + formatType(s.Name.Type)}
	}
	if len(s.Instances) > 1 {
		return reflect.Value{}, &ValidationError{ServiceType: s.Name.Type, Message: ErrAmbiguousImplementation.Error() + ": many implementations for [" + formatType(s.Name.Type) + "]"}
	}
	return s.Instances[0], nil
}

// AllInstances returns every instance this service produced.
func (s *ContainerService) AllInstances() []reflect.Value {
	return s.Instances
}

// constructionNode renders this service (recursively, via Dependencies)
// into the graph package's construction-log tree shape.
func (s *ContainerService) constructionNode() *graph.ConstructionNode {
	status := graph.StatusOK
	switch s.Status {
	case StatusError:
		status = graph.StatusError
	case StatusDependencyError:
		status = graph.StatusDependencyError
	}

	node := &graph.ConstructionNode{Name: s.Name.String(), Status: status}
	if s.ErrorMessage != "" {
		node.Err = &ValidationError{ServiceType: s.Name.Type, Message: s.ErrorMessage}
	}
	for _, dep := range s.Dependencies {
		depStatus := graph.StatusOK
		switch dep.Status {
		case StatusError:
			depStatus = graph.StatusError
		case StatusDependencyError:
			depStatus = graph.StatusDependencyError
		case StatusNotResolved:
			depStatus = graph.StatusCached
		}
		node.Children = append(node.Children, &graph.ConstructionNode{
			Name:   dep.Name.String(),
			Status: depStatus,
			Err:    errFromComment(dep.Comment),
		})
	}
	return node
}

func errFromComment(comment string) error {
	if comment == "" {
		return nil
	}
	return errComment(comment)
}

type errComment string

func (e errComment) Error() string { return string(e) }

// topSortCounter is the monotonic counter assigned at slot release,
// shared by every container cloned from the same root (see Container.Clone).
type topSortCounter struct {
	n atomic.Int64
}

func (c *topSortCounter) next() int64 {
	return c.n.Add(1)
}
